package routing

import (
	"context"
	"log/slog"
	"sync"

	"github.com/chatdesk/chatdesk/internal/errtrack"
	"github.com/chatdesk/chatdesk/internal/transport"
)

// Listener drains a session's event channel into the engine. Every event is
// handled on its own goroutine behind an error boundary: a failure is logged
// and reported, never allowed to stall the stream.
type Listener struct {
	engine  *Engine
	tracker *errtrack.Tracker
	logger  *slog.Logger
}

func NewListener(log *slog.Logger, engine *Engine, tracker *errtrack.Tracker) *Listener {
	return &Listener{
		engine:  engine,
		tracker: tracker,
		logger:  log.With(slog.String("service", "listener")),
	}
}

// Attach starts consuming the session's events until the context is canceled
// or the channel closes. It returns immediately.
func (l *Listener) Attach(ctx context.Context, sess *transport.Session) {
	go func() {
		for {
			select {
			case <-ctx.Done():
				return
			case evt, ok := <-sess.Events:
				if !ok {
					return
				}
				switch evt.Type {
				case transport.EventMessage:
					go l.handleMessage(ctx, sess, evt.Message)
				case transport.EventAck:
					go l.handleAck(ctx, sess, evt.Ack)
				}
			}
		}
	}()
}

func (l *Listener) handleMessage(ctx context.Context, sess *transport.Session, evt transport.MessageEvent) {
	if err := l.engine.HandleMessage(ctx, sess, evt); err != nil {
		l.logger.Error("handle message failed",
			slog.String("account_id", sess.AccountID),
			slog.String("message_id", evt.ID),
			slog.Any("error", err))
		l.tracker.Capture(err, map[string]string{
			"account_id": sess.AccountID,
			"message_id": evt.ID,
		})
	}
}

func (l *Listener) handleAck(ctx context.Context, sess *transport.Session, evt transport.AckEvent) {
	if err := l.engine.HandleAck(ctx, evt); err != nil {
		l.logger.Error("handle ack failed",
			slog.String("account_id", sess.AccountID),
			slog.String("message_id", evt.MessageID),
			slog.Any("error", err))
		l.tracker.Capture(err, map[string]string{
			"account_id": sess.AccountID,
			"message_id": evt.MessageID,
		})
	}
}

// SessionManager binds transport sessions to the listener and tracks their
// lifetimes so individual sessions can be stopped without touching the rest.
type SessionManager struct {
	registry *transport.Registry
	listener *Listener
	logger   *slog.Logger

	mu      sync.Mutex
	cancels map[string]context.CancelFunc
}

func NewSessionManager(log *slog.Logger, registry *transport.Registry, listener *Listener) *SessionManager {
	return &SessionManager{
		registry: registry,
		listener: listener,
		logger:   log.With(slog.String("service", "sessions")),
		cancels:  make(map[string]context.CancelFunc),
	}
}

// StartSession registers the session and begins consuming its events. A
// session already running for the same account is stopped first.
func (m *SessionManager) StartSession(ctx context.Context, sess *transport.Session) {
	m.mu.Lock()
	if cancel, ok := m.cancels[sess.AccountID]; ok {
		cancel()
	}
	sessCtx, cancel := context.WithCancel(ctx)
	m.cancels[sess.AccountID] = cancel
	m.mu.Unlock()

	m.registry.Register(sess)
	m.listener.Attach(sessCtx, sess)
	m.logger.Info("session started", slog.String("account_id", sess.AccountID))
}

// StopSession detaches and unregisters the account's session. Unknown
// accounts are a no-op.
func (m *SessionManager) StopSession(accountID string) {
	m.mu.Lock()
	cancel, ok := m.cancels[accountID]
	if ok {
		delete(m.cancels, accountID)
	}
	m.mu.Unlock()
	if !ok {
		return
	}
	cancel()
	m.registry.Remove(accountID)
	m.logger.Info("session stopped", slog.String("account_id", accountID))
}

// Close stops every running session.
func (m *SessionManager) Close() {
	m.mu.Lock()
	defer m.mu.Unlock()
	for accountID, cancel := range m.cancels {
		cancel()
		m.registry.Remove(accountID)
	}
	m.cancels = make(map[string]context.CancelFunc)
}
