package imap

import "strings"

// FailureKind classifies a fetch failure for the retry policy.
type FailureKind int

const (
	// FailureTransient means the session is recoverable: reconnect and retry.
	FailureTransient FailureKind = iota
	// FailureFatal means retrying will not help; record the error and move on.
	FailureFatal
)

// Known transient failure shapes, matched against the transport error text.
// These substrings are load-bearing: they are the observed signatures of a
// truncated read, a peer reset and a confused server, and anything outside
// them has never turned out to be recoverable in practice.
var transientPatterns = []struct {
	substring string
	reason    string
}{
	{"unexpected EOF", "network transport error"},
	{"connection reset by peer", "mail requested too frequently"},
	{"unexpected tagged response", "unexpected mail response"},
}

// Classify inspects a fetch error and returns its kind plus a short
// diagnostic. For transient failures the diagnostic names the matched
// pattern; for fatal ones it carries the full error text.
func Classify(err error) (FailureKind, string) {
	if err == nil {
		return FailureFatal, "unknown"
	}

	text := err.Error()
	for _, p := range transientPatterns {
		if strings.Contains(text, p.substring) {
			return FailureTransient, p.reason
		}
	}
	return FailureFatal, text
}
