package main

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
)

type resultCodeError struct{ code int }

func (e resultCodeError) Error() string { return "result code error" }
func (e resultCodeError) ResultCode() int { return e.code }

func TestDefaultRetryClassifier_MatchesKnownSubstrings(t *testing.T) {
	t.Parallel()
	assert.True(t, DefaultRetryClassifier(errors.New("steam: ServiceUnavailable")))
	assert.True(t, DefaultRetryClassifier(errors.New("proxy connection timed out after 30s")))
	assert.True(t, DefaultRetryClassifier(errors.New("LogonSessionReplaced by another client")))
}

func TestDefaultRetryClassifier_MatchesResultCode(t *testing.T) {
	t.Parallel()
	assert.True(t, DefaultRetryClassifier(resultCodeError{code: 84}))
	assert.False(t, DefaultRetryClassifier(resultCodeError{code: 5}))
}

func TestDefaultRetryClassifier_NilAndUnrelatedErrorsAreNotRetryable(t *testing.T) {
	t.Parallel()
	assert.False(t, DefaultRetryClassifier(nil))
	assert.False(t, DefaultRetryClassifier(errors.New("invalid password")))
}
