// Package sink stores downloaded mail artifacts (bodies and attachments)
// in one or more destinations and notifies observers about each write.
package sink

import (
	"context"
	"time"

	"github.com/vdavid/mailvault/internal/mail"
)

// Sink is one artifact destination.
type Sink interface {
	// Name is the storage type tag recorded alongside every artifact
	// written to this sink.
	Name() string
	// Write stores one artifact and returns the storage point: the
	// location string a reader needs, together with the fogname, to
	// find the artifact again. Dated destinations group artifacts by
	// sentAt, the message's send time.
	Write(ctx context.Context, id mail.Identity, artifact mail.Artifact, sentAt time.Time) (string, error)
}

// ArtifactEvent describes one completed artifact write.
type ArtifactEvent struct {
	Identity     mail.Identity
	Fogname      string
	OriginalName string
	StorageType  string
	StoragePoint string
}

// Observer is notified after an artifact has been stored. Observer
// failures are reported to the caller; whether they abort the message is
// the caller's decision.
type Observer interface {
	ArtifactStored(ctx context.Context, event ArtifactEvent) error
}

// ObserverFunc adapts a function to the Observer interface.
type ObserverFunc func(ctx context.Context, event ArtifactEvent) error

func (f ObserverFunc) ArtifactStored(ctx context.Context, event ArtifactEvent) error {
	return f(ctx, event)
}
