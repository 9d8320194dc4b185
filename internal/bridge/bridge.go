// Package bridge runs engine operations on background goroutines and streams
// their progress to the presentation layer as typed events.
package bridge

import (
	"context"
	"fmt"
	"log/slog"
	"sync/atomic"

	"github.com/emersion/go-imap/v2"
	"github.com/pkg/errors"

	"github.com/sweepbox/sweepbox/internal/progress"
	"github.com/sweepbox/sweepbox/internal/purge"
	"github.com/sweepbox/sweepbox/internal/scan"
	"github.com/sweepbox/sweepbox/internal/session"
)

//go:generate mockgen -source=bridge.go -destination=mock_engine_test.go -package=bridge

// Scanner enumerates a folder and tallies senders over a subset of it.
type Scanner interface {
	Enumerate(ctx context.Context, creds session.Credentials, folder string) ([]imap.UID, error)
	Scan(ctx context.Context, creds session.Credentials, folder string, uids []imap.UID, rep progress.Reporter) ([]scan.SenderTally, error)
}

// Purger removes every message from each listed sender in turn.
type Purger interface {
	PurgeMany(ctx context.Context, creds session.Credentials, folder string, addresses []string, mode purge.Mode, rep progress.Reporter, onFailure func(address string, err error)) (purge.Summary, error)
}

const eventBuffer = 64

// Bridge owns the event channel and enforces that at most one operation runs
// at a time. It never closes the channel; consumers stop reading when their
// own lifetime ends.
type Bridge struct {
	scanner Scanner
	purger  Purger
	log     *slog.Logger

	events chan Event
	busy   atomic.Bool
}

type BridgeOption func(*Bridge) error

func WithScanner(s Scanner) BridgeOption {
	return func(b *Bridge) error {
		if s == nil {
			return errors.New("scanner is nil")
		}
		b.scanner = s
		return nil
	}
}

func WithPurger(p Purger) BridgeOption {
	return func(b *Bridge) error {
		if p == nil {
			return errors.New("purger is nil")
		}
		b.purger = p
		return nil
	}
}

func WithLogger(logger *slog.Logger) BridgeOption {
	return func(b *Bridge) error {
		if logger == nil {
			return errors.New("logger is nil")
		}
		b.log = logger
		return nil
	}
}

func New(opts ...BridgeOption) (*Bridge, error) {
	b := &Bridge{events: make(chan Event, eventBuffer)}
	for _, opt := range opts {
		if err := opt(b); err != nil {
			return nil, err
		}
	}
	if b.scanner == nil {
		return nil, errors.New("bridge requires a scanner")
	}
	if b.purger == nil {
		return nil, errors.New("bridge requires a purger")
	}
	if b.log == nil {
		return nil, errors.New("bridge requires a logger")
	}
	return b, nil
}

// Events is the stream the presentation layer consumes. The channel is
// buffered; a full buffer only blocks the running operation, never drops.
func (b *Bridge) Events() <-chan Event {
	return b.events
}

// StartScan launches an asynchronous scan of folder. A positive depth
// restricts the scan to the depth most recent messages. Returns an error
// without starting anything if another operation is in flight.
func (b *Bridge) StartScan(ctx context.Context, creds session.Credentials, folder string, depth int) error {
	if !b.busy.CompareAndSwap(false, true) {
		return errors.New("an operation is already running")
	}
	go func() {
		terminal := b.runScan(ctx, creds, folder, depth)
		// Free the bridge before the terminal event lands so a consumer
		// reacting to it can start the next operation immediately.
		b.busy.Store(false)
		b.emit(ctx, terminal)
	}()
	return nil
}

// StartDelete launches an asynchronous purge of the listed senders. Returns
// an error without starting anything if another operation is in flight.
func (b *Bridge) StartDelete(ctx context.Context, creds session.Credentials, folder string, senders []string, mode purge.Mode) error {
	if len(senders) == 0 {
		return errors.New("no senders selected")
	}
	if !b.busy.CompareAndSwap(false, true) {
		return errors.New("an operation is already running")
	}
	go func() {
		terminal := b.runDelete(ctx, creds, folder, senders, mode)
		b.busy.Store(false)
		b.emit(ctx, terminal)
	}()
	return nil
}

func (b *Bridge) runScan(ctx context.Context, creds session.Credentials, folder string, depth int) Event {
	b.emit(ctx, ScanProgress{Fraction: 0, Label: "Fetching message IDs..."})

	uids, err := b.scanner.Enumerate(ctx, creds, folder)
	if err != nil {
		b.log.Warn("scan enumeration failed", "folder", folder, "error", err)
		return ScanError{Message: fmt.Sprintf("Scan failed: %v", err)}
	}

	total := len(uids)
	subset := uids
	if depth > 0 && depth < total {
		subset = uids[total-depth:]
	}
	b.emit(ctx, ScanProgress{
		Fraction: 0.05,
		Label:    fmt.Sprintf("Found %d emails, scanning %d...", total, len(subset)),
	})

	rep := progress.Func(func(fraction float64, label string) {
		b.emit(ctx, ScanProgress{Fraction: fraction, Label: label})
	})
	tallies, err := b.scanner.Scan(ctx, creds, folder, subset, rep)
	if err != nil {
		b.log.Warn("scan failed", "folder", folder, "error", err)
		return ScanError{Message: fmt.Sprintf("Scan failed: %v", err)}
	}

	b.log.Info("scan complete", "folder", folder, "total_messages", total, "senders", len(tallies))
	return ScanComplete{Senders: tallies, TotalMessages: total}
}

func (b *Bridge) runDelete(ctx context.Context, creds session.Credentials, folder string, senders []string, mode purge.Mode) Event {
	rep := progress.Func(func(fraction float64, label string) {
		b.emit(ctx, DeleteProgress{Fraction: fraction, Label: label})
	})
	onFailure := func(address string, err error) {
		b.emit(ctx, DeleteError{Message: fmt.Sprintf("Failed to purge %s: %v", address, err)})
	}

	summary, err := b.purger.PurgeMany(ctx, creds, folder, senders, mode, rep, onFailure)
	if err != nil {
		b.log.Warn("purge stopped", "folder", folder, "error", err)
		return DeleteError{Message: fmt.Sprintf("Purge stopped: %v", err)}
	}

	b.log.Info("purge complete", "folder", folder, "senders_removed", len(summary.Removed), "messages_removed", summary.TotalRemoved)
	return DeleteComplete{Removed: summary.Removed, TotalRemoved: summary.TotalRemoved}
}

// emit delivers event without blocking a cancelled operation forever. An
// event is dropped only when the buffer is full and ctx is already done.
func (b *Bridge) emit(ctx context.Context, event Event) {
	select {
	case b.events <- event:
		return
	default:
	}
	select {
	case b.events <- event:
	case <-ctx.Done():
		b.log.Debug("event dropped after cancellation", "event", fmt.Sprintf("%T", event))
	}
}
