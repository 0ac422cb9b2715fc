package retry_test

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/hdlmesh/taskmesh/internal/retry"
)

func TestClassifyTypedErrors(t *testing.T) {
	assert.Equal(t, retry.ClassTransient, retry.Classify(retry.NewRetryableError(errors.New("boom"))))
	assert.Equal(t, retry.ClassInput, retry.Classify(retry.NewInputError(errors.New("bad design file"))))
	assert.Equal(t, retry.ClassOther, retry.Classify(errors.New("unexpected panic in handler")))
}

func TestClassifyTextVocabulary(t *testing.T) {
	cases := []string{
		"dial tcp: i/o timeout",
		"operation TIMED OUT after 30s",
		"temporary failure in name resolution",
		"read: connection reset by peer",
		"write: connection aborted",
		"dial tcp: connection refused",
		"429 Rate Limit exceeded",
		"503 Service Unavailable",
	}
	for _, c := range cases {
		assert.True(t, retry.ClassifyText(c), "expected transient classification for %q", c)
	}
	assert.False(t, retry.ClassifyText("syntax error on line 4"))
}

func TestRetryCountAndNextHeaders(t *testing.T) {
	assert.Equal(t, 0, retry.RetryCount(nil))

	headers := map[string]any{retry.HeaderRetryCount: 0}
	next := retry.NextHeaders(headers)
	assert.Equal(t, 1, retry.RetryCount(next))
	assert.Equal(t, 0, retry.RetryCount(headers), "original headers must not be mutated")
}

func TestPolicyShouldRetry(t *testing.T) {
	p := retry.Policy{MaxRetries: 1}
	assert.True(t, p.ShouldRetry(0))
	assert.False(t, p.ShouldRetry(1))
	assert.False(t, p.ShouldRetry(2))
}
