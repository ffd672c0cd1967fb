package viewer

import (
	"context"
	"errors"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/eventpass/streamgate/internal/models"
)

// ErrStale is returned by Load when its result was discarded because a newer
// load or update superseded it, or the shell was closed.
var ErrStale = errors.New("stream result is no longer relevant")

// Shell owns the one stream session shown to a viewer. Every load is tagged
// with a generation; only the latest generation may write the session.
type Shell struct {
	gateway Gateway
	opts    Options
	now     func() time.Time
	logger  *zap.Logger

	mu      sync.Mutex
	gen     uint64
	cancel  context.CancelFunc
	closed  bool
	session *models.StreamSession
	err     error
}

// NewShell creates a shell. now defaults to time.Now.
func NewShell(gateway Gateway, opts Options, now func() time.Time, logger *zap.Logger) *Shell {
	if now == nil {
		now = time.Now
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	if opts.Logger == nil {
		opts.Logger = logger
	}
	return &Shell{gateway: gateway, opts: opts, now: now, logger: logger}
}

// next starts a new generation, cancelling whatever was in flight.
// Callers hold s.mu.
func (s *Shell) next() uint64 {
	if s.cancel != nil {
		s.cancel()
		s.cancel = nil
	}
	s.gen++
	return s.gen
}

// Load fetches the session for ticketID and stores it unless superseded.
// The stored outcome (session or error) is what View renders; the returned
// error is the gateway error or ErrStale.
func (s *Shell) Load(ctx context.Context, ticketID string) error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return ErrStale
	}
	gen := s.next()
	ctx, cancel := context.WithCancel(ctx)
	s.cancel = cancel
	s.session, s.err = nil, nil
	s.mu.Unlock()
	defer cancel()

	session, err := s.gateway.Fetch(ctx, ticketID)

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed || gen != s.gen {
		s.logger.Debug("discarding stale stream result", zap.String("ticket_id", ticketID))
		return ErrStale
	}
	s.cancel = nil
	s.session, s.err = session, err
	return err
}

// Apply replaces the session with a pushed update. An in-flight load is
// cancelled, since the push is newer than anything it could return.
func (s *Shell) Apply(session *models.StreamSession) {
	if session == nil {
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return
	}
	s.next()
	s.session, s.err = session, nil
}

// Close cancels any in-flight load. Later results are discarded.
func (s *Shell) Close() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.cancel != nil {
		s.cancel()
		s.cancel = nil
	}
	s.closed = true
}

// Session returns the current session and load error.
func (s *Shell) Session() (*models.StreamSession, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.session, s.err
}

// View renders the current state at the shell's clock.
func (s *Shell) View() View {
	session, err := s.Session()
	return Render(session, err, s.now(), s.opts)
}
