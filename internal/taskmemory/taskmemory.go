// Package taskmemory persists each node/stage's log output, artifact
// path, and any reflection or distillation JSON payloads to a flat
// filesystem tree, so a node's history can be inspected without a
// database: <root>/<node-id>/<stage>/{log.txt,artifact_path.txt,*.json}.
package taskmemory

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
)

// Store writes task memory under root, creating directories as needed.
type Store struct {
	root string
}

// NewStore constructs a Store rooted at root, creating it if absent.
func NewStore(root string) (*Store, error) {
	if err := os.MkdirAll(root, 0o755); err != nil {
		return nil, fmt.Errorf("create task memory root: %w", err)
	}
	return &Store{root: root}, nil
}

func (s *Store) stageDir(nodeID, stage string) string {
	return filepath.Join(s.root, nodeID, stage)
}

// RecordLog writes content to <node>/<stage>/log.txt, replacing any prior
// content for that node/stage.
func (s *Store) RecordLog(nodeID, stage, content string) (string, error) {
	return s.writeFile(nodeID, stage, "log.txt", []byte(content))
}

// RecordArtifactPath writes artifactPath to <node>/<stage>/artifact_path.txt.
func (s *Store) RecordArtifactPath(nodeID, stage, artifactPath string) (string, error) {
	return s.writeFile(nodeID, stage, "artifact_path.txt", []byte(artifactPath))
}

// RecordJSON marshals payload as indented JSON to <node>/<stage>/<filename>.
func (s *Store) RecordJSON(nodeID, stage, filename string, payload any) (string, error) {
	data, err := json.MarshalIndent(payload, "", "  ")
	if err != nil {
		return "", fmt.Errorf("marshal %s: %w", filename, err)
	}
	return s.writeFile(nodeID, stage, filename, data)
}

// writeFile writes data to a temporary file in the target directory and
// renames it into place, so a crash mid-write never leaves a partially
// written file at the canonical path.
func (s *Store) writeFile(nodeID, stage, filename string, data []byte) (string, error) {
	dir := s.stageDir(nodeID, stage)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", fmt.Errorf("create stage dir: %w", err)
	}
	final := filepath.Join(dir, filename)
	tmp := final + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return "", fmt.Errorf("write %s: %w", filename, err)
	}
	if err := os.Rename(tmp, final); err != nil {
		return "", fmt.Errorf("rename %s into place: %w", filename, err)
	}
	return final, nil
}

// ReadLog reads back a previously recorded log for nodeID/stage.
func (s *Store) ReadLog(nodeID, stage string) (string, error) {
	data, err := os.ReadFile(filepath.Join(s.stageDir(nodeID, stage), "log.txt"))
	if err != nil {
		return "", fmt.Errorf("read log: %w", err)
	}
	return string(data), nil
}
