package imap

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestClassify(t *testing.T) {
	tests := []struct {
		name    string
		err     error
		kind    FailureKind
		message string
	}{
		{
			name:    "truncated read",
			err:     errors.New("unexpected EOF"),
			kind:    FailureTransient,
			message: "network transport error",
		},
		{
			name:    "peer reset",
			err:     fmt.Errorf("failed to fetch: read tcp: connection reset by peer"),
			kind:    FailureTransient,
			message: "mail requested too frequently",
		},
		{
			name:    "confused server",
			err:     errors.New("imap: unexpected tagged response A003"),
			kind:    FailureTransient,
			message: "unexpected mail response",
		},
		{
			name:    "anything else is fatal",
			err:     errors.New("NO message not found"),
			kind:    FailureFatal,
			message: "NO message not found",
		},
		{
			name:    "wrapped transient still matches",
			err:     fmt.Errorf("failed to fetch UID 7: %w", errors.New("unexpected EOF")),
			kind:    FailureTransient,
			message: "network transport error",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			kind, message := Classify(tt.err)
			assert.Equal(t, tt.kind, kind)
			assert.Equal(t, tt.message, message)
		})
	}
}
