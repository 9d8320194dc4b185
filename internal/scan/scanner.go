// Package scan enumerates a mailbox folder and aggregates message counts by
// normalized sender address using a bounded worker pool.
package scan

import (
	"context"
	"fmt"
	"log/slog"
	"regexp"
	"sort"
	"strings"
	"sync"

	"github.com/emersion/go-imap/v2"
	"github.com/pkg/errors"

	"github.com/sweepbox/sweepbox/internal/progress"
	"github.com/sweepbox/sweepbox/internal/session"
)

// DefaultWorkers stays under typical provider concurrent-session caps.
const DefaultWorkers = 10

// enumerateShare is the progress fraction reserved for enumeration; the
// remainder is spread evenly across chunks.
const enumerateShare = 0.05

// SenderTally is one sender's aggregated message count for a single scan.
type SenderTally struct {
	Address string
	Count   int
}

// SessionOpener opens protocol sessions on behalf of workers.
type SessionOpener interface {
	Open(ctx context.Context, creds session.Credentials, folder string) (session.Session, error)
}

// Scanner runs folder scans. Construct with New.
type Scanner struct {
	opener  SessionOpener
	log     *slog.Logger
	workers int
}

type Option func(*Scanner) error

// WithOpener sets the session opener. Required.
func WithOpener(opener SessionOpener) Option {
	return func(s *Scanner) error {
		if opener == nil {
			return errors.New("session opener is required")
		}
		s.opener = opener
		return nil
	}
}

// WithLogger sets the logger. Required.
func WithLogger(log *slog.Logger) Option {
	return func(s *Scanner) error {
		if log == nil {
			return errors.New("logger is required")
		}
		s.log = log
		return nil
	}
}

// WithWorkers overrides the worker pool size.
func WithWorkers(n int) Option {
	return func(s *Scanner) error {
		if n < 1 {
			return errors.New("workers must be at least 1")
		}
		s.workers = n
		return nil
	}
}

func New(opts ...Option) (*Scanner, error) {
	s := &Scanner{workers: DefaultWorkers}
	for _, opt := range opts {
		if err := opt(s); err != nil {
			return nil, err
		}
	}
	if s.opener == nil {
		return nil, errors.New("scanner requires a session opener")
	}
	if s.log == nil {
		return nil, errors.New("scanner requires a logger")
	}
	return s, nil
}

// Enumerate returns every UID in the folder, ascending, via one dedicated
// session that is never reused for fetch work.
func (s *Scanner) Enumerate(ctx context.Context, creds session.Credentials, folder string) ([]imap.UID, error) {
	sess, err := s.opener.Open(ctx, creds, folder)
	if err != nil {
		return nil, errors.Wrap(err, "open enumeration session")
	}
	defer s.closeSession(sess)

	return sess.SearchAll(ctx)
}

// Scan fetches the From header of every given UID through a fixed pool of
// workers and aggregates counts per normalized sender, sorted by count
// descending (ties by address). Each worker lazily opens its own session and
// reuses it across chunks; a fetch error discards that session and drops that
// chunk's contribution, and the worker reconnects on its next chunk. A single
// collector drains worker results, so merge order never matters.
func (s *Scanner) Scan(ctx context.Context, creds session.Credentials, folder string, uids []imap.UID, rep progress.Reporter) ([]SenderTally, error) {
	if rep == nil {
		rep = progress.Discard
	}
	if len(uids) == 0 {
		return nil, nil
	}

	chunks := splitChunks(uids, chunkSize(len(uids), s.workers))
	jobs := make(chan []imap.UID, len(chunks))
	for _, chunk := range chunks {
		jobs <- chunk
	}
	close(jobs)

	results := make(chan chunkResult, len(chunks))
	var wg sync.WaitGroup
	for i := 0; i < s.workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			s.scanWorker(ctx, creds, folder, jobs, results)
		}()
	}
	go func() {
		wg.Wait()
		close(results)
	}()

	counts := make(map[string]int)
	done := 0
	for res := range results {
		done++
		if res.err != nil {
			if ctx.Err() == nil {
				s.log.Warn("scan chunk dropped", "size", res.size, "error", res.err)
			}
		} else {
			for _, addr := range res.senders {
				counts[addr]++
			}
		}
		if ctx.Err() == nil {
			fraction := enumerateShare + (1-enumerateShare)*float64(done)/float64(len(chunks))
			rep.Report(fraction, fmt.Sprintf("Scanned batch %d/%d", done, len(chunks)))
		}
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	tallies := make([]SenderTally, 0, len(counts))
	for addr, count := range counts {
		tallies = append(tallies, SenderTally{Address: addr, Count: count})
	}
	sort.Slice(tallies, func(i, j int) bool {
		if tallies[i].Count != tallies[j].Count {
			return tallies[i].Count > tallies[j].Count
		}
		return tallies[i].Address < tallies[j].Address
	})
	return tallies, nil
}

type chunkResult struct {
	senders []string
	size    int
	err     error
}

func (s *Scanner) scanWorker(ctx context.Context, creds session.Credentials, folder string, jobs <-chan []imap.UID, results chan<- chunkResult) {
	var sess session.Session
	defer func() {
		if sess != nil {
			s.closeSession(sess)
		}
	}()

	for chunk := range jobs {
		if err := ctx.Err(); err != nil {
			results <- chunkResult{size: len(chunk), err: err}
			continue
		}

		if sess == nil {
			opened, err := s.opener.Open(ctx, creds, folder)
			if err != nil {
				results <- chunkResult{size: len(chunk), err: errors.Wrap(err, "open scan session")}
				continue
			}
			sess = opened
		}

		blocks, err := sess.FetchHeaders(ctx, chunk)
		if err != nil {
			// Poison the session; the next chunk reconnects. The failed
			// chunk is not retried.
			s.closeSession(sess)
			sess = nil
			results <- chunkResult{size: len(chunk), err: err}
			continue
		}

		senders := make([]string, 0, len(blocks))
		for _, block := range blocks {
			if addr := senderAddress(block.Raw); addr != "" {
				senders = append(senders, addr)
			}
		}
		results <- chunkResult{senders: senders, size: len(chunk)}
	}
}

func (s *Scanner) closeSession(sess session.Session) {
	if err := sess.Close(); err != nil {
		s.log.Debug("session close failed", "error", err)
	}
}

// chunkSize divides total across workers, rounding up so the chunk count
// never exceeds the worker count.
func chunkSize(total, workers int) int {
	size := (total + workers - 1) / workers
	if size < 1 {
		size = 1
	}
	return size
}

// splitChunks partitions uids into contiguous, disjoint chunks whose union
// is the input.
func splitChunks(uids []imap.UID, size int) [][]imap.UID {
	chunks := make([][]imap.UID, 0, (len(uids)+size-1)/size)
	for start := 0; start < len(uids); start += size {
		end := start + size
		if end > len(uids) {
			end = len(uids)
		}
		chunks = append(chunks, uids[start:end:end])
	}
	return chunks
}

var (
	fromLineRe = regexp.MustCompile(`(?i)From:\s*(.*)`)
	addrRe     = regexp.MustCompile(`<([^>]+)>`)
)

// senderAddress extracts the normalized sender from a raw header block: the
// first case-insensitive From: line, preferring the address inside angle
// brackets over the raw remainder, lowercased. Returns "" when nothing is
// extractable; such messages are excluded from aggregation entirely.
func senderAddress(raw []byte) string {
	m := fromLineRe.FindSubmatch(raw)
	if m == nil {
		return ""
	}
	value := strings.TrimSpace(string(m[1]))
	if am := addrRe.FindStringSubmatch(value); am != nil {
		value = am[1]
	}
	return strings.ToLower(strings.TrimSpace(value))
}
