// Package session owns the single linked WhatsApp device: pairing by QR
// code, connection state, reconnection, and sending.
package session

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"sync"
	"time"

	"github.com/cuongbtq/bulksend/internal/domain"
	"github.com/cuongbtq/bulksend/internal/metrics"
	"github.com/cuongbtq/bulksend/internal/progress"
)

// Options configure pairing and reconnection.
type Options struct {
	Store          StoreOptions
	AutoReconnect  bool
	ReconnectDelay time.Duration
	// QROnce publishes only the first code of each pairing attempt.
	QROnce bool
	// PrintQR draws codes on Console as well.
	PrintQR bool
	QRSize  int
	Console io.Writer
}

// Manager tracks session state and exposes send operations to the
// dispatcher. Create one per process with New.
type Manager struct {
	conn    conn
	opts    Options
	pub     progress.Publisher
	metrics metrics.Sink
	logger  *slog.Logger

	mu      sync.RWMutex
	state   State
	qr      string
	qrShown bool
	jid     string
	since   time.Time

	reinit chan struct{}
}

// New opens the device store and returns a manager ready to Run.
func New(ctx context.Context, opts Options, pub progress.Publisher, sink metrics.Sink, logger *slog.Logger) (*Manager, error) {
	wa, err := openWhatsApp(ctx, opts.Store, logger.With(slog.String("component", "whatsmeow")))
	if err != nil {
		return nil, err
	}
	return newManager(wa, opts, pub, sink, logger), nil
}

func newManager(c conn, opts Options, pub progress.Publisher, sink metrics.Sink, logger *slog.Logger) *Manager {
	if opts.Console == nil {
		opts.Console = os.Stdout
	}
	if sink == nil {
		sink = metrics.NewNoopSink()
	}
	m := &Manager{
		conn:    c,
		opts:    opts,
		pub:     pub,
		metrics: sink,
		logger:  logger,
		state:   StateUnauthenticated,
		since:   time.Now(),
		reinit:  make(chan struct{}, 1),
	}
	sink.SessionState(m.state.String())
	return m
}

// Run connects and keeps the session alive until ctx is canceled.
func (m *Manager) Run(ctx context.Context) error {
	m.logger.Info("Starting WhatsApp session",
		slog.Bool("auto_reconnect", m.opts.AutoReconnect),
		slog.Bool("qr_once", m.opts.QROnce),
	)

	if err := m.conn.open(ctx, m); err != nil {
		if !m.opts.AutoReconnect {
			return fmt.Errorf("failed to start whatsapp session: %w", err)
		}
		m.logger.Error("Failed to start WhatsApp session", slog.Any("error", err))
		m.scheduleReinit()
	}

	for {
		select {
		case <-ctx.Done():
			m.logger.Info("Stopping WhatsApp session")
			m.conn.close()
			return nil
		case <-m.reinit:
			if !m.wait(ctx, m.opts.ReconnectDelay) {
				continue
			}
			m.logger.Info("Reinitializing WhatsApp session")
			if err := m.conn.open(ctx, m); err != nil {
				m.logger.Error("Failed to reinitialize WhatsApp session", slog.Any("error", err))
				m.scheduleReinit()
			}
		}
	}
}

func (m *Manager) wait(ctx context.Context, d time.Duration) bool {
	if d <= 0 {
		return ctx.Err() == nil
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-t.C:
		return true
	}
}

func (m *Manager) scheduleReinit() {
	select {
	case m.reinit <- struct{}{}:
	default:
	}
}

// setStateLocked records a transition; callers hold mu.
func (m *Manager) setStateLocked(s State) bool {
	if m.state == s {
		return false
	}
	m.logger.Info("Session state changed",
		slog.String("from", m.state.String()),
		slog.String("to", s.String()),
	)
	m.state = s
	m.since = time.Now()
	m.metrics.SessionState(s.String())
	return true
}

func (m *Manager) onQR(code string) {
	m.mu.Lock()
	m.setStateLocked(StatePairing)
	if m.opts.QROnce && m.qrShown {
		m.mu.Unlock()
		m.logger.Debug("Ignoring refreshed QR code")
		return
	}
	m.mu.Unlock()

	url, err := renderDataURL(code, m.opts.QRSize)
	if err != nil {
		m.logger.Error("Failed to render QR code", slog.Any("error", err))
		return
	}

	m.mu.Lock()
	m.qr = url
	m.qrShown = true
	m.mu.Unlock()

	m.logger.Info("QR code received, waiting for scan")
	progress.PublishQR(m.pub, url)
	if m.opts.PrintQR {
		printTerminal(m.opts.Console, code)
	}
}

func (m *Manager) onPairTimeout() {
	m.mu.Lock()
	m.qr = ""
	m.qrShown = false
	m.setStateLocked(StateUnauthenticated)
	m.mu.Unlock()

	m.logger.Warn("Pairing attempt ended without a scan")
	if m.opts.AutoReconnect {
		m.scheduleReinit()
	}
}

func (m *Manager) onConnected(jid string) {
	m.mu.Lock()
	m.qr = ""
	m.qrShown = false
	m.jid = jid
	changed := m.setStateLocked(StateReady)
	m.mu.Unlock()

	if changed {
		m.logger.Info("WhatsApp client is ready", slog.String("jid", jid))
		progress.PublishReady(m.pub, true)
	}
}

func (m *Manager) onDisconnected() {
	m.mu.Lock()
	wasReady := m.state == StateReady
	changed := m.setStateLocked(StateDisconnected)
	m.mu.Unlock()

	if !changed {
		return
	}
	m.logger.Warn("WhatsApp client disconnected")
	if wasReady {
		progress.PublishReady(m.pub, false)
	}
	if m.opts.AutoReconnect {
		m.scheduleReinit()
	}
}

func (m *Manager) onLoggedOut(reason string) {
	m.mu.Lock()
	wasReady := m.state == StateReady
	m.jid = ""
	m.qr = ""
	m.qrShown = false
	m.setStateLocked(StateUnauthenticated)
	m.mu.Unlock()

	m.logger.Warn("WhatsApp device logged out", slog.String("reason", reason))
	if wasReady {
		progress.PublishReady(m.pub, false)
	}
	if m.opts.AutoReconnect {
		m.scheduleReinit()
	}
}

// State returns the current session state.
func (m *Manager) State() State {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.state
}

// Ready reports whether messages can be sent.
func (m *Manager) Ready() bool {
	return m.State() == StateReady
}

// QR returns the latest pairing code as a data URL, or "" when not pairing.
func (m *Manager) QR() string {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.state != StatePairing {
		return ""
	}
	return m.qr
}

// Info returns a snapshot for status queries.
func (m *Manager) Info() Info {
	m.mu.RLock()
	defer m.mu.RUnlock()
	info := Info{
		State: m.state,
		Ready: m.state == StateReady,
		JID:   m.jid,
		Since: m.since,
	}
	if m.state == StatePairing {
		info.QR = m.qr
	}
	return info
}

// InitialEvents are replayed to a newly connected observer so a browser
// opened mid-pairing still sees the code.
func (m *Manager) InitialEvents() []progress.Event {
	info := m.Info()
	switch {
	case info.Ready:
		return []progress.Event{{Name: progress.EventReady, Data: true}}
	case info.QR != "":
		return []progress.Event{{Name: progress.EventQR, Data: info.QR}}
	}
	return nil
}

// IsRegistered reports whether number has a WhatsApp account.
func (m *Manager) IsRegistered(ctx context.Context, number string) (bool, error) {
	if !m.Ready() {
		return false, domain.ErrSessionNotReady
	}
	return m.conn.isOnWhatsApp(ctx, number)
}

// SendText sends a plain text message.
func (m *Manager) SendText(ctx context.Context, number, text string) error {
	if !m.Ready() {
		return domain.ErrSessionNotReady
	}
	return m.conn.sendText(ctx, number, text)
}

// SendMedia uploads media and sends it with text as caption.
func (m *Manager) SendMedia(ctx context.Context, number string, media *domain.Media, caption string) error {
	if !m.Ready() {
		return domain.ErrSessionNotReady
	}
	return m.conn.sendMedia(ctx, number, media, caption)
}

// Logout unlinks the device and starts a new pairing.
func (m *Manager) Logout(ctx context.Context) error {
	if !m.Ready() {
		return domain.ErrSessionNotReady
	}
	if err := m.conn.logout(ctx); err != nil {
		return fmt.Errorf("failed to log out: %w", err)
	}

	m.mu.Lock()
	m.jid = ""
	m.qr = ""
	m.qrShown = false
	m.setStateLocked(StateUnauthenticated)
	m.mu.Unlock()

	m.logger.Info("WhatsApp device logged out by request")
	progress.PublishReady(m.pub, false)
	m.scheduleReinit()
	return nil
}
