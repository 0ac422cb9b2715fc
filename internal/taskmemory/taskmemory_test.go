package taskmemory_test

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hdlmesh/taskmesh/internal/taskmemory"
)

func TestRecordLogWritesExpectedLayout(t *testing.T) {
	root := t.TempDir()
	store, err := taskmemory.NewStore(root)
	require.NoError(t, err)

	path, err := store.RecordLog("node-1", "lint", "no issues found")
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(root, "node-1", "lint", "log.txt"), path)

	content, err := store.ReadLog("node-1", "lint")
	require.NoError(t, err)
	assert.Equal(t, "no issues found", content)

	_, err = os.Stat(path + ".tmp")
	assert.True(t, os.IsNotExist(err), "temp file must be renamed away after a successful write")
}

func TestRecordArtifactPathAndJSON(t *testing.T) {
	root := t.TempDir()
	store, err := taskmemory.NewStore(root)
	require.NoError(t, err)

	_, err = store.RecordArtifactPath("node-2", "implement", "/artifacts/node-2/top.v")
	require.NoError(t, err)
	data, err := os.ReadFile(filepath.Join(root, "node-2", "implement", "artifact_path.txt"))
	require.NoError(t, err)
	assert.Equal(t, "/artifacts/node-2/top.v", string(data))

	_, err = store.RecordJSON("node-2", "reflect", "reflection_insights.json", map[string]string{"cause": "race condition"})
	require.NoError(t, err)
	data, err = os.ReadFile(filepath.Join(root, "node-2", "reflect", "reflection_insights.json"))
	require.NoError(t, err)
	assert.Contains(t, string(data), "race condition")
}
