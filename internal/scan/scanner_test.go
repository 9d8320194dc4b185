package scan

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"sync"
	"testing"

	"github.com/emersion/go-imap/v2"
	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sweepbox/sweepbox/internal/progress"
	"github.com/sweepbox/sweepbox/internal/session"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// stubSession dispatches to function fields, leaving unset operations as
// no-ops.
type stubSession struct {
	SearchAllFunc    func(ctx context.Context) ([]imap.UID, error)
	SearchFromFunc   func(ctx context.Context, address string) ([]imap.UID, error)
	FetchHeadersFunc func(ctx context.Context, uids []imap.UID) ([]session.HeaderBlock, error)
	MoveToFunc       func(ctx context.Context, uids []imap.UID, folder string) error
	MarkDeletedFunc  func(ctx context.Context, uids []imap.UID) error
	ExpungeFunc      func(ctx context.Context, uids []imap.UID) error
	CloseFunc        func() error
}

func (s *stubSession) SearchAll(ctx context.Context) ([]imap.UID, error) {
	if s.SearchAllFunc != nil {
		return s.SearchAllFunc(ctx)
	}
	return nil, nil
}

func (s *stubSession) SearchFrom(ctx context.Context, address string) ([]imap.UID, error) {
	if s.SearchFromFunc != nil {
		return s.SearchFromFunc(ctx, address)
	}
	return nil, nil
}

func (s *stubSession) FetchHeaders(ctx context.Context, uids []imap.UID) ([]session.HeaderBlock, error) {
	if s.FetchHeadersFunc != nil {
		return s.FetchHeadersFunc(ctx, uids)
	}
	return nil, nil
}

func (s *stubSession) MoveTo(ctx context.Context, uids []imap.UID, folder string) error {
	if s.MoveToFunc != nil {
		return s.MoveToFunc(ctx, uids, folder)
	}
	return nil
}

func (s *stubSession) MarkDeleted(ctx context.Context, uids []imap.UID) error {
	if s.MarkDeletedFunc != nil {
		return s.MarkDeletedFunc(ctx, uids)
	}
	return nil
}

func (s *stubSession) ExpungeDeleted(ctx context.Context, uids []imap.UID) error {
	if s.ExpungeFunc != nil {
		return s.ExpungeFunc(ctx, uids)
	}
	return nil
}

func (s *stubSession) Close() error {
	if s.CloseFunc != nil {
		return s.CloseFunc()
	}
	return nil
}

// storeOpener serves sessions reading from a shared uid→header store and
// counts opens.
type storeOpener struct {
	mu    sync.Mutex
	opens int
	store map[imap.UID][]byte
}

func (o *storeOpener) Open(ctx context.Context, creds session.Credentials, folder string) (session.Session, error) {
	o.mu.Lock()
	o.opens++
	o.mu.Unlock()

	return &stubSession{
		FetchHeadersFunc: func(ctx context.Context, uids []imap.UID) ([]session.HeaderBlock, error) {
			blocks := make([]session.HeaderBlock, 0, len(uids))
			for _, uid := range uids {
				raw, ok := o.store[uid]
				if !ok {
					continue
				}
				blocks = append(blocks, session.HeaderBlock{UID: uid, Raw: raw})
			}
			return blocks, nil
		},
	}, nil
}

func (o *storeOpener) openCount() int {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.opens
}

// seedStore builds a deterministic uid→header store mixing quoted display
// names, bare tokens, and headers with no From line.
func seedStore(n int) map[imap.UID][]byte {
	store := make(map[imap.UID][]byte, n)
	for i := 1; i <= n; i++ {
		uid := imap.UID(i)
		switch {
		case i%10 == 0:
			store[uid] = []byte("Subject: no sender here\r\n\r\n")
		case i%3 == 0:
			store[uid] = []byte("From: \"News Desk\" <NEWS@Example.com>\r\n\r\n")
		case i%2 == 0:
			store[uid] = []byte("From: promo@shop.example\r\n\r\n")
		default:
			store[uid] = []byte("To: me@example.com\r\nFrom: alerts <alerts@bank.example>\r\n\r\n")
		}
	}
	return store
}

func expectedCounts(store map[imap.UID][]byte) map[string]int {
	counts := make(map[string]int)
	for _, raw := range store {
		if addr := senderAddress(raw); addr != "" {
			counts[addr]++
		}
	}
	return counts
}

func talliesToMap(tallies []SenderTally) map[string]int {
	m := make(map[string]int, len(tallies))
	for _, tally := range tallies {
		m[tally.Address] = tally.Count
	}
	return m
}

func uidRange(n int) []imap.UID {
	uids := make([]imap.UID, n)
	for i := range uids {
		uids[i] = imap.UID(i + 1)
	}
	return uids
}

func TestNewValidation(t *testing.T) {
	opener := &storeOpener{}

	tests := []struct {
		name    string
		opts    []Option
		wantErr string
	}{
		{
			name:    "requires opener",
			opts:    []Option{WithLogger(discardLogger())},
			wantErr: "scanner requires a session opener",
		},
		{
			name:    "requires logger",
			opts:    []Option{WithOpener(opener)},
			wantErr: "scanner requires a logger",
		},
		{
			name:    "rejects zero workers",
			opts:    []Option{WithOpener(opener), WithLogger(discardLogger()), WithWorkers(0)},
			wantErr: "workers must be at least 1",
		},
		{
			name: "valid",
			opts: []Option{WithOpener(opener), WithLogger(discardLogger()), WithWorkers(4)},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s, err := New(tt.opts...)
			if tt.wantErr != "" {
				require.Error(t, err)
				assert.Contains(t, err.Error(), tt.wantErr)
				return
			}
			require.NoError(t, err)
			require.NotNil(t, s)
		})
	}
}

func TestChunkPartition(t *testing.T) {
	tests := []struct {
		total   int
		workers int
	}{
		{total: 0, workers: 10},
		{total: 1, workers: 10},
		{total: 5, workers: 10},
		{total: 19, workers: 10},
		{total: 29, workers: 10},
		{total: 100, workers: 10},
		{total: 1000, workers: 7},
		{total: 10, workers: 1},
		{total: 21, workers: 10},
		{total: 10000, workers: 10},
	}

	for _, tt := range tests {
		t.Run(fmt.Sprintf("%d over %d", tt.total, tt.workers), func(t *testing.T) {
			uids := uidRange(tt.total)
			chunks := splitChunks(uids, chunkSize(tt.total, tt.workers))

			assert.LessOrEqual(t, len(chunks), tt.workers+1)

			rejoined := make([]imap.UID, 0, tt.total)
			for _, chunk := range chunks {
				require.NotEmpty(t, chunk)
				rejoined = append(rejoined, chunk...)
			}
			assert.Equal(t, uids, rejoined)
		})
	}
}

func TestSenderAddress(t *testing.T) {
	tests := []struct {
		name string
		raw  string
		want string
	}{
		{
			name: "display name with angle brackets",
			raw:  "From: \"Bob\" <BOB@Example.com>\r\n",
			want: "bob@example.com",
		},
		{
			name: "bare token without brackets",
			raw:  "From: marketing-team\r\n",
			want: "marketing-team",
		},
		{
			name: "no from line",
			raw:  "Subject: hello\r\n",
			want: "",
		},
		{
			name: "empty header",
			raw:  "",
			want: "",
		},
		{
			name: "lowercase key",
			raw:  "from: a@b.example\r\n",
			want: "a@b.example",
		},
		{
			name: "from after other headers",
			raw:  "To: me@example.com\r\nFrom: News <news@example.org>\r\n",
			want: "news@example.org",
		},
		{
			name: "empty value",
			raw:  "From:\r\n",
			want: "",
		},
		{
			name: "brackets only",
			raw:  "From: <A@B.Com>\r\n",
			want: "a@b.com",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, senderAddress([]byte(tt.raw)))
		})
	}
}

func TestScanAggregatesAcrossConcurrency(t *testing.T) {
	store := seedStore(100)
	want := expectedCounts(store)
	uids := uidRange(100)

	for _, workers := range []int{1, 10} {
		t.Run(fmt.Sprintf("workers %d", workers), func(t *testing.T) {
			opener := &storeOpener{store: store}
			scanner, err := New(WithOpener(opener), WithLogger(discardLogger()), WithWorkers(workers))
			require.NoError(t, err)

			tallies, err := scanner.Scan(context.Background(), session.Credentials{}, "INBOX", uids, nil)
			require.NoError(t, err)

			assert.Equal(t, want, talliesToMap(tallies))
			assert.LessOrEqual(t, opener.openCount(), workers)

			for i := 1; i < len(tallies); i++ {
				prev, cur := tallies[i-1], tallies[i]
				ordered := prev.Count > cur.Count || (prev.Count == cur.Count && prev.Address < cur.Address)
				assert.True(t, ordered, "tallies must be sorted by count desc then address")
			}
		})
	}
}

func TestScanProgress(t *testing.T) {
	store := seedStore(40)
	opener := &storeOpener{store: store}
	scanner, err := New(WithOpener(opener), WithLogger(discardLogger()), WithWorkers(4))
	require.NoError(t, err)

	var fractions []float64
	var labels []string
	rep := progress.Func(func(fraction float64, label string) {
		fractions = append(fractions, fraction)
		labels = append(labels, label)
	})

	_, err = scanner.Scan(context.Background(), session.Credentials{}, "INBOX", uidRange(40), rep)
	require.NoError(t, err)

	require.Len(t, fractions, 4)
	for i, fraction := range fractions {
		assert.Greater(t, fraction, 0.05)
		if i > 0 {
			assert.GreaterOrEqual(t, fraction, fractions[i-1])
		}
	}
	assert.InDelta(t, 1.0, fractions[len(fractions)-1], 1e-9)
	assert.Equal(t, "Scanned batch 4/4", labels[len(labels)-1])
}

func TestScanEmptyInput(t *testing.T) {
	opener := &storeOpener{}
	scanner, err := New(WithOpener(opener), WithLogger(discardLogger()))
	require.NoError(t, err)

	reported := false
	tallies, err := scanner.Scan(context.Background(), session.Credentials{}, "INBOX", nil,
		progress.Func(func(float64, string) { reported = true }))
	require.NoError(t, err)
	assert.Empty(t, tallies)
	assert.False(t, reported)
	assert.Zero(t, opener.openCount())
}

func TestScanWorkerPoisonsSessionOnFetchError(t *testing.T) {
	var opens, closes, fetches int
	opener := openerFunc(func(ctx context.Context, creds session.Credentials, folder string) (session.Session, error) {
		opens++
		return &stubSession{
			FetchHeadersFunc: func(ctx context.Context, uids []imap.UID) ([]session.HeaderBlock, error) {
				fetches++
				if fetches == 1 {
					return nil, errors.New("connection reset")
				}
				return []session.HeaderBlock{{UID: uids[0], Raw: []byte("From: a@b.example\r\n")}}, nil
			},
			CloseFunc: func() error {
				closes++
				return nil
			},
		}, nil
	})

	scanner, err := New(WithOpener(opener), WithLogger(discardLogger()))
	require.NoError(t, err)

	jobs := make(chan []imap.UID, 3)
	jobs <- []imap.UID{1}
	jobs <- []imap.UID{2}
	jobs <- []imap.UID{3}
	close(jobs)
	results := make(chan chunkResult, 3)

	scanner.scanWorker(context.Background(), session.Credentials{}, "INBOX", jobs, results)
	close(results)

	var failed, succeeded int
	for res := range results {
		if res.err != nil {
			failed++
		} else {
			succeeded++
		}
	}
	assert.Equal(t, 1, failed)
	assert.Equal(t, 2, succeeded)
	assert.Equal(t, 2, opens, "worker reconnects after poisoning its session")
	assert.Equal(t, 2, closes, "poisoned and final sessions are both closed")
}

func TestScanFailedOpenDropsChunkOnly(t *testing.T) {
	var opens int
	opener := openerFunc(func(ctx context.Context, creds session.Credentials, folder string) (session.Session, error) {
		opens++
		if opens == 1 {
			return nil, errors.New("connection refused")
		}
		return &stubSession{
			FetchHeadersFunc: func(ctx context.Context, uids []imap.UID) ([]session.HeaderBlock, error) {
				blocks := make([]session.HeaderBlock, 0, len(uids))
				for _, uid := range uids {
					blocks = append(blocks, session.HeaderBlock{UID: uid, Raw: []byte("From: ok@example.com\r\n")})
				}
				return blocks, nil
			},
		}, nil
	})

	scanner, err := New(WithOpener(opener), WithLogger(discardLogger()), WithWorkers(1))
	require.NoError(t, err)

	jobs := make(chan []imap.UID, 2)
	jobs <- []imap.UID{1, 2}
	jobs <- []imap.UID{3, 4}
	close(jobs)
	results := make(chan chunkResult, 2)

	scanner.scanWorker(context.Background(), session.Credentials{}, "INBOX", jobs, results)
	close(results)

	res1 := <-results
	res2 := <-results
	require.Error(t, res1.err)
	require.NoError(t, res2.err)
	assert.Len(t, res2.senders, 2)
}

func TestScanCancelled(t *testing.T) {
	store := seedStore(50)
	opener := &storeOpener{store: store}
	scanner, err := New(WithOpener(opener), WithLogger(discardLogger()), WithWorkers(5))
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	reported := false
	_, err = scanner.Scan(ctx, session.Credentials{}, "INBOX", uidRange(50),
		progress.Func(func(float64, string) { reported = true }))
	require.ErrorIs(t, err, context.Canceled)
	assert.False(t, reported)
}

func TestEnumerate(t *testing.T) {
	closed := 0
	uids := []imap.UID{1, 5, 9}
	opener := openerFunc(func(ctx context.Context, creds session.Credentials, folder string) (session.Session, error) {
		return &stubSession{
			SearchAllFunc: func(ctx context.Context) ([]imap.UID, error) {
				return uids, nil
			},
			CloseFunc: func() error {
				closed++
				return nil
			},
		}, nil
	})

	scanner, err := New(WithOpener(opener), WithLogger(discardLogger()))
	require.NoError(t, err)

	got, err := scanner.Enumerate(context.Background(), session.Credentials{}, "INBOX")
	require.NoError(t, err)
	assert.Equal(t, uids, got)
	assert.Equal(t, 1, closed, "enumeration session is closed after use")
}

func TestEnumerateOpenError(t *testing.T) {
	opener := openerFunc(func(ctx context.Context, creds session.Credentials, folder string) (session.Session, error) {
		return nil, &session.Error{Kind: session.KindAuth, Op: "login", Err: errors.New("login rejected")}
	})

	scanner, err := New(WithOpener(opener), WithLogger(discardLogger()))
	require.NoError(t, err)

	_, err = scanner.Enumerate(context.Background(), session.Credentials{}, "INBOX")
	require.Error(t, err)
	assert.True(t, session.IsAuth(err), "classification survives wrapping")
}

// openerFunc adapts a function to SessionOpener.
type openerFunc func(ctx context.Context, creds session.Credentials, folder string) (session.Session, error)

func (f openerFunc) Open(ctx context.Context, creds session.Credentials, folder string) (session.Session, error) {
	return f(ctx, creds, folder)
}
