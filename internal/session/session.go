// Package session manages authenticated, folder-selected IMAP connections.
package session

import (
	"context"
	"crypto/tls"
	"io"
	"log/slog"
	"net"
	"slices"
	"strings"
	"time"

	"github.com/emersion/go-imap/v2"
	giimapclient "github.com/emersion/go-imap/v2/imapclient"
	"github.com/pkg/errors"

	"github.com/sweepbox/sweepbox/internal/provider"
)

// DefaultDialTimeout bounds connection establishment.
const DefaultDialTimeout = 30 * time.Second

// Secret is an account password or app password. It renders redacted through
// fmt and slog; convert with string() to read the raw value.
type Secret string

func (s Secret) String() string {
	return "[redacted]"
}

func (s Secret) LogValue() slog.Value {
	return slog.StringValue("[redacted]")
}

// Credentials identify one mailbox account. They are held in memory only for
// the duration of an operation.
type Credentials struct {
	Email  string
	Secret Secret
}

// HeaderBlock is one message's raw header bytes as returned by the server.
type HeaderBlock struct {
	UID imap.UID
	Raw []byte
}

// Session is a live IMAP connection with a folder selected. A Session is
// owned by exactly one caller and is not safe for concurrent use.
type Session interface {
	// SearchAll returns every UID in the selected folder, ascending and
	// deduplicated.
	SearchAll(ctx context.Context) ([]imap.UID, error)
	// SearchFrom returns the UIDs of messages whose From header matches
	// address, via a server-side search.
	SearchFrom(ctx context.Context, address string) ([]imap.UID, error)
	// FetchHeaders fetches the raw From header block for each UID. Messages
	// the server omits from the response are skipped, not errors.
	FetchHeaders(ctx context.Context, uids []imap.UID) ([]HeaderBlock, error)
	// MoveTo moves the messages to another folder.
	MoveTo(ctx context.Context, uids []imap.UID, folder string) error
	// MarkDeleted adds the \Deleted flag to the messages.
	MarkDeleted(ctx context.Context, uids []imap.UID) error
	// ExpungeDeleted removes messages flagged \Deleted, restricted to uids
	// when the server supports UIDPLUS.
	ExpungeDeleted(ctx context.Context, uids []imap.UID) error
	// Close logs out. Best-effort; callers log and continue on failure.
	Close() error
}

// Factory opens Sessions. Construct with NewFactory.
type Factory struct {
	endpoint    string
	tlsConfig   *tls.Config
	dialTimeout time.Duration
	log         *slog.Logger
}

type FactoryOption func(*Factory) error

// WithLogger sets the logger. Required.
func WithLogger(log *slog.Logger) FactoryOption {
	return func(f *Factory) error {
		if log == nil {
			return errors.New("logger is required")
		}
		f.log = log
		return nil
	}
}

// WithDialTimeout overrides the connect timeout.
func WithDialTimeout(d time.Duration) FactoryOption {
	return func(f *Factory) error {
		if d <= 0 {
			return errors.New("dial timeout must be positive")
		}
		f.dialTimeout = d
		return nil
	}
}

// WithEndpoint overrides provider resolution with a fixed host:port, for
// self-hosted servers.
func WithEndpoint(addr string) FactoryOption {
	return func(f *Factory) error {
		addr = strings.TrimSpace(addr)
		if addr == "" {
			return errors.New("endpoint address is required")
		}
		f.endpoint = addr
		return nil
	}
}

// WithTLSConfig overrides the TLS client configuration.
func WithTLSConfig(cfg *tls.Config) FactoryOption {
	return func(f *Factory) error {
		f.tlsConfig = cfg
		return nil
	}
}

func NewFactory(opts ...FactoryOption) (*Factory, error) {
	f := &Factory{dialTimeout: DefaultDialTimeout}
	for _, opt := range opts {
		if err := opt(f); err != nil {
			return nil, err
		}
	}
	if f.log == nil {
		return nil, errors.New("session factory requires a logger")
	}
	return f, nil
}

// Open dials the account's provider, authenticates, and selects folder.
// Failures are classified: connect errors (with timeouts distinguishable),
// TLS handshake errors, authentication rejections, and folder-select
// protocol errors.
func (f *Factory) Open(ctx context.Context, creds Credentials, folder string) (Session, error) {
	if strings.TrimSpace(creds.Email) == "" || strings.TrimSpace(string(creds.Secret)) == "" {
		return nil, &Error{Kind: KindAuth, Op: "login", Err: errors.New("email and secret are required")}
	}
	if strings.TrimSpace(folder) == "" {
		folder = "INBOX"
	}

	addr := f.endpoint
	if addr == "" {
		addr = provider.Resolve(creds.Email).Addr()
	}
	host := addr
	if h, _, err := net.SplitHostPort(addr); err == nil {
		host = h
	}

	dialer := &net.Dialer{Timeout: f.dialTimeout}
	conn, err := dialer.DialContext(ctx, "tcp", addr)
	if err != nil {
		if isTimeout(err) {
			return nil, &Error{
				Kind: KindConnection,
				Op:   "connect",
				Err:  errors.Wrapf(err, "connect to %s timed out after %s", addr, f.dialTimeout),
			}
		}
		return nil, &Error{Kind: KindConnection, Op: "connect", Err: errors.Wrapf(err, "connect to %s", addr)}
	}

	tlsConfig := f.tlsConfig.Clone()
	if tlsConfig == nil {
		tlsConfig = &tls.Config{}
	}
	if tlsConfig.ServerName == "" {
		tlsConfig.ServerName = host
	}
	tlsConn := tls.Client(conn, tlsConfig)
	if err := tlsConn.HandshakeContext(ctx); err != nil {
		_ = conn.Close()
		return nil, &Error{Kind: KindTLS, Op: "tls", Err: errors.Wrapf(err, "tls handshake with %s", addr)}
	}

	client := giimapclient.New(tlsConn, nil)
	if err := client.Login(creds.Email, string(creds.Secret)).Wait(); err != nil {
		_ = client.Close()
		return nil, &Error{Kind: KindAuth, Op: "login", Err: errors.Wrap(err, "login rejected")}
	}
	if _, err := client.Select(folder, nil).Wait(); err != nil {
		_ = client.Logout().Wait()
		return nil, &Error{Kind: KindProtocol, Op: "select", Err: errors.Wrapf(err, "select %q", folder)}
	}

	f.log.Debug("session opened", "addr", addr, "folder", folder)
	return &imapSession{client: client}, nil
}

func isTimeout(err error) bool {
	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	var netErr net.Error
	return errors.As(err, &netErr) && netErr.Timeout()
}

type imapSession struct {
	client *giimapclient.Client
}

func (s *imapSession) SearchAll(ctx context.Context) ([]imap.UID, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	data, err := s.client.UIDSearch(&imap.SearchCriteria{}, nil).Wait()
	if err != nil {
		return nil, &Error{Kind: KindProtocol, Op: "search", Err: errors.Wrap(err, "search all")}
	}

	uids := data.AllUIDs()
	slices.Sort(uids)
	return slices.Compact(uids), nil
}

func (s *imapSession) SearchFrom(ctx context.Context, address string) ([]imap.UID, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if strings.TrimSpace(address) == "" {
		return nil, errors.New("sender address is required")
	}

	criteria := &imap.SearchCriteria{
		Header: []imap.SearchCriteriaHeaderField{{Key: "From", Value: address}},
	}
	data, err := s.client.UIDSearch(criteria, nil).Wait()
	if err != nil {
		return nil, &Error{Kind: KindProtocol, Op: "search", Err: errors.Wrapf(err, "search from %q", address)}
	}

	uids := data.AllUIDs()
	slices.Sort(uids)
	return slices.Compact(uids), nil
}

func (s *imapSession) FetchHeaders(ctx context.Context, uids []imap.UID) ([]HeaderBlock, error) {
	if len(uids) == 0 {
		return nil, nil
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	var uidSet imap.UIDSet
	for _, uid := range uids {
		uidSet.AddNum(uid)
	}

	section := &imap.FetchItemBodySection{
		Specifier:    imap.PartSpecifierHeader,
		HeaderFields: []string{"From"},
		Peek:         true,
	}
	fetchOptions := &imap.FetchOptions{
		UID:         true,
		BodySection: []*imap.FetchItemBodySection{section},
	}

	fetchCmd := s.client.Fetch(uidSet, fetchOptions)
	blocks := make([]HeaderBlock, 0, len(uids))
	for {
		if err := ctx.Err(); err != nil {
			_ = fetchCmd.Close()
			return nil, err
		}

		msg := fetchCmd.Next()
		if msg == nil {
			break
		}

		var uid imap.UID
		var raw []byte
		for {
			item := msg.Next()
			if item == nil {
				break
			}
			switch data := item.(type) {
			case giimapclient.FetchItemDataUID:
				uid = data.UID
			case giimapclient.FetchItemDataBodySection:
				if !data.MatchCommand(section) {
					continue
				}
				b, err := io.ReadAll(data.Literal)
				if err != nil {
					_ = fetchCmd.Close()
					return nil, &Error{Kind: KindProtocol, Op: "fetch", Err: errors.Wrap(err, "read header literal")}
				}
				raw = b
			}
		}
		if raw == nil {
			continue
		}
		blocks = append(blocks, HeaderBlock{UID: uid, Raw: raw})
	}

	if err := fetchCmd.Close(); err != nil {
		return nil, &Error{Kind: KindProtocol, Op: "fetch", Err: errors.Wrap(err, "fetch headers")}
	}
	return blocks, nil
}

func (s *imapSession) MoveTo(ctx context.Context, uids []imap.UID, folder string) error {
	if len(uids) == 0 {
		return nil
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	if strings.TrimSpace(folder) == "" {
		return errors.New("destination folder is required")
	}

	var uidSet imap.UIDSet
	for _, uid := range uids {
		uidSet.AddNum(uid)
	}
	if _, err := s.client.Move(uidSet, folder).Wait(); err != nil {
		return &Error{Kind: KindProtocol, Op: "move", Err: errors.Wrapf(err, "move to %q", folder)}
	}
	return nil
}

func (s *imapSession) MarkDeleted(ctx context.Context, uids []imap.UID) error {
	if len(uids) == 0 {
		return nil
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	var uidSet imap.UIDSet
	for _, uid := range uids {
		uidSet.AddNum(uid)
	}
	store := imap.StoreFlags{
		Op:     imap.StoreFlagsAdd,
		Silent: true,
		Flags:  []imap.Flag{imap.FlagDeleted},
	}
	if err := s.client.Store(uidSet, &store, nil).Close(); err != nil {
		return &Error{Kind: KindProtocol, Op: "store", Err: errors.Wrap(err, "mark deleted")}
	}
	return nil
}

func (s *imapSession) ExpungeDeleted(ctx context.Context, uids []imap.UID) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	if len(uids) > 0 && s.client.Caps().Has(imap.CapUIDPlus) {
		var uidSet imap.UIDSet
		for _, uid := range uids {
			uidSet.AddNum(uid)
		}
		if _, err := s.client.UIDExpunge(uidSet).Collect(); err != nil {
			return &Error{Kind: KindProtocol, Op: "expunge", Err: errors.Wrap(err, "uid expunge")}
		}
		return nil
	}

	if _, err := s.client.Expunge().Collect(); err != nil {
		return &Error{Kind: KindProtocol, Op: "expunge", Err: errors.Wrap(err, "expunge")}
	}
	return nil
}

func (s *imapSession) Close() error {
	return s.client.Logout().Wait()
}
