package pipeline

import (
	"context"
	"fmt"
	"log"
	"sort"
	"time"

	"github.com/vdavid/mailvault/internal/imap"
	"github.com/vdavid/mailvault/internal/mail"
)

// UIDSource is the mailbox side the producer needs: UID search plus
// recovery after a failed cycle.
type UIDSource interface {
	imap.UIDSearcher
	Reconnect() error
}

// UIDLedger reports which UIDs already have a recorded summary.
type UIDLedger interface {
	RecordedUIDs(ctx context.Context, user, box string) ([]uint32, error)
}

// Producer periodically scans the watched folders, diffs the server's
// UIDs against the recorded ones and enqueues the missing messages in
// ascending UID order.
type Producer struct {
	source  UIDSource
	ledger  UIDLedger
	user    string
	folders []string

	pollInterval   time.Duration
	reconnectDelay time.Duration
	pageSize       uint32

	// nudge wakes the producer before the poll interval elapses, fed by
	// the IDLE watcher. May be nil.
	nudge <-chan struct{}
}

// NewProducer creates a Producer watching folders on source. user is the
// account name with the domain already cut off.
func NewProducer(source UIDSource, ledger UIDLedger, user string, folders []string) *Producer {
	return &Producer{
		source:         source,
		ledger:         ledger,
		user:           user,
		folders:        folders,
		pollInterval:   DefaultPollInterval,
		reconnectDelay: DefaultReconnectDelay,
		pageSize:       imap.DefaultScanPageSize,
	}
}

// SetPollInterval overrides the time between scan cycle starts.
func (p *Producer) SetPollInterval(d time.Duration) {
	p.pollInterval = d
}

// SetReconnectDelay overrides the pause before reconnecting after a
// failed cycle.
func (p *Producer) SetReconnectDelay(d time.Duration) {
	p.reconnectDelay = d
}

// SetNudge installs a wake-up channel that cuts the wait between cycles
// short.
func (p *Producer) SetNudge(nudge <-chan struct{}) {
	p.nudge = nudge
}

// Run scans until ctx is cancelled. The poll interval is measured between
// cycle starts, so a slow scan shortens the following wait. A failed
// cycle is logged, followed by a reconnect pause and a fresh connection;
// the failed cycle restarts immediately after.
func (p *Producer) Run(ctx context.Context, queue chan<- WorkItem) error {
	for {
		cycleStart := time.Now()
		if err := p.cycle(ctx, queue); err != nil {
			if ctx.Err() != nil {
				return nil
			}
			log.Printf("Scan cycle for %s failed: %v", p.user, err)
			if !sleepContext(ctx, p.reconnectDelay) {
				return nil
			}
			if err := p.source.Reconnect(); err != nil {
				log.Printf("Failed to reconnect %s: %v", p.user, err)
			}
			continue
		}

		wait := p.pollInterval - time.Since(cycleStart)
		if wait <= 0 {
			continue
		}
		timer := time.NewTimer(wait)
		select {
		case <-ctx.Done():
			timer.Stop()
			return nil
		case <-p.nudge:
			timer.Stop()
		case <-timer.C:
		}
	}
}

func (p *Producer) cycle(ctx context.Context, queue chan<- WorkItem) error {
	for _, folder := range p.folders {
		// Records key the folder by its escaped form; diffing against
		// the raw name would re-enqueue everything each cycle.
		recorded, err := p.ledger.RecordedUIDs(ctx, p.user, mail.BoxName(folder))
		if err != nil {
			return fmt.Errorf("failed to load recorded UIDs for %s: %w", folder, err)
		}
		seen := make(map[uint32]struct{}, len(recorded))
		for _, uid := range recorded {
			seen[uid] = struct{}{}
		}

		uids, err := imap.ScanUIDs(p.source, folder, 1, 0, p.pageSize)
		if err != nil {
			return fmt.Errorf("failed to scan %s: %w", folder, err)
		}

		missing := make([]uint32, 0, len(uids))
		for _, uid := range uids {
			if _, ok := seen[uid]; !ok {
				missing = append(missing, uid)
			}
		}
		sort.Slice(missing, func(i, j int) bool { return missing[i] < missing[j] })

		if len(missing) > 0 {
			log.Printf("Found %d new messages in %s for %s", len(missing), folder, p.user)
		}
		for _, uid := range missing {
			select {
			case <-ctx.Done():
				return ctx.Err()
			case queue <- WorkItem{Folder: folder, UID: uid}:
			}
		}
	}
	return nil
}
