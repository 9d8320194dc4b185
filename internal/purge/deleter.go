// Package purge removes all messages from chosen senders, chunked to stay
// inside server command limits.
package purge

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/pkg/errors"

	"github.com/sweepbox/sweepbox/internal/progress"
	"github.com/sweepbox/sweepbox/internal/provider"
	"github.com/sweepbox/sweepbox/internal/session"
)

// chunkLimit bounds identifiers per protocol command.
const chunkLimit = 1000

// Mode selects how matched messages are removed.
type Mode int

const (
	// ModeTrash moves messages to the provider's trash folder.
	ModeTrash Mode = iota
	// ModePermanent flags messages deleted and expunges them immediately.
	ModePermanent
)

func (m Mode) String() string {
	switch m {
	case ModeTrash:
		return "trash"
	case ModePermanent:
		return "permanent"
	default:
		return "unknown"
	}
}

// ParseMode converts a flag value into a Mode.
func ParseMode(value string) (Mode, error) {
	switch strings.ToLower(strings.TrimSpace(value)) {
	case "trash":
		return ModeTrash, nil
	case "permanent":
		return ModePermanent, nil
	default:
		return 0, errors.Errorf("unknown delete mode %q", value)
	}
}

// SessionOpener opens protocol sessions for purge runs.
type SessionOpener interface {
	Open(ctx context.Context, creds session.Credentials, folder string) (session.Session, error)
}

// Summary accumulates confirmed-successful removals only.
type Summary struct {
	Removed      []string
	TotalRemoved int
}

// Deleter runs bulk removals. Construct with New.
type Deleter struct {
	opener SessionOpener
	log    *slog.Logger
}

type Option func(*Deleter) error

// WithOpener sets the session opener. Required.
func WithOpener(opener SessionOpener) Option {
	return func(d *Deleter) error {
		if opener == nil {
			return errors.New("session opener is required")
		}
		d.opener = opener
		return nil
	}
}

// WithLogger sets the logger. Required.
func WithLogger(log *slog.Logger) Option {
	return func(d *Deleter) error {
		if log == nil {
			return errors.New("logger is required")
		}
		d.log = log
		return nil
	}
}

func New(opts ...Option) (*Deleter, error) {
	d := &Deleter{}
	for _, opt := range opts {
		if err := opt(d); err != nil {
			return nil, err
		}
	}
	if d.opener == nil {
		return nil, errors.New("deleter requires a session opener")
	}
	if d.log == nil {
		return nil, errors.New("deleter requires a logger")
	}
	return d, nil
}

// PurgeSender removes every message from one sender and returns the matched
// count. The address is embedded in a quoted server-side search term, so
// double quotes are stripped first. An empty search result is not an error.
// The first chunk-level failure aborts the remaining chunks and propagates;
// chunks already processed stay removed on the server.
func (d *Deleter) PurgeSender(ctx context.Context, creds session.Credentials, folder, address string, mode Mode) (int, error) {
	address = sanitizeAddress(address)
	if strings.TrimSpace(address) == "" {
		return 0, errors.New("sender address is required")
	}

	sess, err := d.opener.Open(ctx, creds, folder)
	if err != nil {
		return 0, errors.Wrap(err, "open purge session")
	}
	defer d.closeSession(sess)

	uids, err := sess.SearchFrom(ctx, address)
	if err != nil {
		return 0, err
	}
	if len(uids) == 0 {
		return 0, nil
	}

	trash := provider.Resolve(creds.Email).Trash
	for start := 0; start < len(uids); start += chunkLimit {
		end := start + chunkLimit
		if end > len(uids) {
			end = len(uids)
		}
		chunk := uids[start:end]

		if err := ctx.Err(); err != nil {
			return 0, err
		}
		switch mode {
		case ModePermanent:
			if err := sess.MarkDeleted(ctx, chunk); err != nil {
				return 0, err
			}
			if err := sess.ExpungeDeleted(ctx, chunk); err != nil {
				return 0, err
			}
		default:
			if err := sess.MoveTo(ctx, chunk, trash); err != nil {
				return 0, err
			}
		}
	}

	d.log.Info("sender purged", "sender", address, "messages", len(uids), "mode", mode.String())
	return len(uids), nil
}

// CountSender reports how many messages folder holds from address without
// changing any of them. Dry runs use this.
func (d *Deleter) CountSender(ctx context.Context, creds session.Credentials, folder, address string) (int, error) {
	address = sanitizeAddress(address)
	if strings.TrimSpace(address) == "" {
		return 0, errors.New("sender address is required")
	}

	sess, err := d.opener.Open(ctx, creds, folder)
	if err != nil {
		return 0, errors.Wrap(err, "open purge session")
	}
	defer d.closeSession(sess)

	uids, err := sess.SearchFrom(ctx, address)
	if err != nil {
		return 0, err
	}
	return len(uids), nil
}

// PurgeMany processes senders strictly sequentially; bulk mutation against
// one folder is never parallelized. Per-sender failures go to onFailure and
// iteration continues. The summary holds only confirmed successes. A
// cancelled context stops between senders and returns the partial summary
// with the context's error.
func (d *Deleter) PurgeMany(ctx context.Context, creds session.Credentials, folder string, addresses []string, mode Mode, rep progress.Reporter, onFailure func(address string, err error)) (Summary, error) {
	if rep == nil {
		rep = progress.Discard
	}

	var summary Summary
	total := len(addresses)
	for i, address := range addresses {
		if err := ctx.Err(); err != nil {
			return summary, err
		}
		rep.Report(float64(i)/float64(total), fmt.Sprintf("Purging %s...", address))

		removed, err := d.PurgeSender(ctx, creds, folder, address, mode)
		if err != nil {
			if ctxErr := ctx.Err(); ctxErr != nil {
				return summary, ctxErr
			}
			d.log.Warn("sender purge failed", "sender", address, "error", err)
			if onFailure != nil {
				onFailure(address, err)
			}
		} else {
			summary.Removed = append(summary.Removed, address)
			summary.TotalRemoved += removed
		}

		rep.Report(float64(i+1)/float64(total), fmt.Sprintf("Completed %d/%d", i+1, total))
	}
	return summary, nil
}

func (d *Deleter) closeSession(sess session.Session) {
	if err := sess.Close(); err != nil {
		d.log.Debug("session close failed", "error", err)
	}
}

// sanitizeAddress strips double-quote characters so the address cannot break
// out of the quoted search term it is embedded in.
func sanitizeAddress(address string) string {
	return strings.ReplaceAll(address, `"`, "")
}
