package session

import (
	"bytes"
	"context"
	"errors"
	"io"
	"log/slog"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"

	"github.com/cuongbtq/bulksend/internal/domain"
	"github.com/cuongbtq/bulksend/internal/progress"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

type sentMessage struct {
	number  string
	text    string
	media   *domain.Media
	caption string
}

type fakeConn struct {
	mu         sync.Mutex
	opens      int
	openErr    error
	registered map[string]bool
	lookupErr  error
	sendErr    error
	sent       []sentMessage
	logouts    int
	closed     bool
}

func (f *fakeConn) open(ctx context.Context, h handler) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.opens++
	return f.openErr
}

func (f *fakeConn) isOnWhatsApp(ctx context.Context, number string) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.lookupErr != nil {
		return false, f.lookupErr
	}
	return f.registered[number], nil
}

func (f *fakeConn) sendText(ctx context.Context, number, text string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.sendErr != nil {
		return f.sendErr
	}
	f.sent = append(f.sent, sentMessage{number: number, text: text})
	return nil
}

func (f *fakeConn) sendMedia(ctx context.Context, number string, media *domain.Media, caption string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.sendErr != nil {
		return f.sendErr
	}
	f.sent = append(f.sent, sentMessage{number: number, media: media, caption: caption})
	return nil
}

func (f *fakeConn) logout(ctx context.Context) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.logouts++
	return nil
}

func (f *fakeConn) close() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.closed = true
}

func (f *fakeConn) openCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.opens
}

type recorder struct {
	mu     sync.Mutex
	events []progress.Event
}

func (r *recorder) Publish(e progress.Event) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, e)
}

func (r *recorder) named(name string) []progress.Event {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []progress.Event
	for _, e := range r.events {
		if e.Name == name {
			out = append(out, e)
		}
	}
	return out
}

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func newTestManager(opts Options) (*Manager, *fakeConn, *recorder) {
	fc := &fakeConn{registered: map[string]bool{}}
	rec := &recorder{}
	if opts.Console == nil {
		opts.Console = io.Discard
	}
	return newManager(fc, opts, rec, nil, testLogger()), fc, rec
}

func TestManager_QRPublishesDataURL(t *testing.T) {
	m, _, rec := newTestManager(Options{})

	assert.Equal(t, StateUnauthenticated, m.State())
	m.onQR("2@first-code")
	m.onQR("2@second-code")

	assert.Equal(t, StatePairing, m.State())
	qrs := rec.named(progress.EventQR)
	require.Len(t, qrs, 2)
	for _, e := range qrs {
		url, ok := e.Data.(string)
		require.True(t, ok)
		assert.True(t, strings.HasPrefix(url, dataURLPrefix))
	}
	assert.Equal(t, qrs[1].Data, m.QR())
	assert.NotEqual(t, qrs[0].Data, qrs[1].Data)
}

func TestManager_QROncePublishesFirstCodeOnly(t *testing.T) {
	m, _, rec := newTestManager(Options{QROnce: true})

	m.onQR("2@first-code")
	first := m.QR()
	m.onQR("2@second-code")

	assert.Len(t, rec.named(progress.EventQR), 1)
	assert.Equal(t, first, m.QR())

	// A new pairing attempt publishes again.
	m.onPairTimeout()
	assert.Equal(t, "", m.QR())
	m.onQR("2@third-code")
	assert.Len(t, rec.named(progress.EventQR), 2)
}

func TestManager_PrintQRWritesToConsole(t *testing.T) {
	var buf bytes.Buffer
	m, _, _ := newTestManager(Options{PrintQR: true, Console: &buf})

	m.onQR("2@code")

	assert.Contains(t, buf.String(), "Scan this QR code")
	assert.Greater(t, buf.Len(), 100)
}

func TestManager_ConnectedIsReady(t *testing.T) {
	m, _, rec := newTestManager(Options{})

	m.onQR("2@code")
	m.onConnected("919723625050:12@s.whatsapp.net")
	m.onConnected("919723625050:12@s.whatsapp.net")

	assert.True(t, m.Ready())
	assert.Equal(t, "", m.QR())

	ready := rec.named(progress.EventReady)
	require.Len(t, ready, 1)
	assert.Equal(t, true, ready[0].Data)

	info := m.Info()
	assert.Equal(t, StateReady, info.State)
	assert.Equal(t, "919723625050:12@s.whatsapp.net", info.JID)
	assert.Empty(t, info.QR)
}

func TestManager_SendRequiresReady(t *testing.T) {
	m, fc, _ := newTestManager(Options{})
	ctx := context.Background()

	_, err := m.IsRegistered(ctx, "+919723625050")
	require.ErrorIs(t, err, domain.ErrSessionNotReady)
	require.ErrorIs(t, m.SendText(ctx, "+919723625050", "hi"), domain.ErrSessionNotReady)
	require.ErrorIs(t, m.SendMedia(ctx, "+919723625050", &domain.Media{}, "hi"), domain.ErrSessionNotReady)
	require.ErrorIs(t, m.Logout(ctx), domain.ErrSessionNotReady)

	m.onConnected("me")
	fc.registered["+919723625050"] = true

	ok, err := m.IsRegistered(ctx, "+919723625050")
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = m.IsRegistered(ctx, "+919000000001")
	require.NoError(t, err)
	assert.False(t, ok)

	media := &domain.Media{Name: "a.png", MimeType: "image/png", Data: []byte{1}}
	require.NoError(t, m.SendText(ctx, "+919723625050", "hello"))
	require.NoError(t, m.SendMedia(ctx, "+919723625050", media, "caption"))

	require.Len(t, fc.sent, 2)
	assert.Equal(t, "hello", fc.sent[0].text)
	assert.Same(t, media, fc.sent[1].media)
	assert.Equal(t, "caption", fc.sent[1].caption)
}

func TestManager_SendErrorsPropagate(t *testing.T) {
	m, fc, _ := newTestManager(Options{})
	m.onConnected("me")

	fc.sendErr = errors.New("server returned error 479")
	err := m.SendText(context.Background(), "+919723625050", "hi")
	require.EqualError(t, err, "server returned error 479")
}

func TestManager_DisconnectPublishesNotReady(t *testing.T) {
	m, _, rec := newTestManager(Options{})

	m.onConnected("me")
	m.onDisconnected()
	m.onDisconnected()

	assert.Equal(t, StateDisconnected, m.State())
	ready := rec.named(progress.EventReady)
	require.Len(t, ready, 2)
	assert.Equal(t, false, ready[1].Data)
}

func TestManager_LoggedOutResetsIdentity(t *testing.T) {
	m, _, _ := newTestManager(Options{})

	m.onConnected("me")
	m.onLoggedOut("401: logged out from another device")

	info := m.Info()
	assert.Equal(t, StateUnauthenticated, info.State)
	assert.Empty(t, info.JID)
}

func TestManager_InitialEvents(t *testing.T) {
	m, _, _ := newTestManager(Options{})
	assert.Empty(t, m.InitialEvents())

	m.onQR("2@code")
	events := m.InitialEvents()
	require.Len(t, events, 1)
	assert.Equal(t, progress.EventQR, events[0].Name)

	m.onConnected("me")
	events = m.InitialEvents()
	require.Len(t, events, 1)
	assert.Equal(t, progress.EventReady, events[0].Name)
}

func runManager(t *testing.T, m *Manager) (context.CancelFunc, <-chan error) {
	t.Helper()
	ctx, cancel := context.WithCancel(context.Background())
	errc := make(chan error, 1)
	go func() { errc <- m.Run(ctx) }()
	return cancel, errc
}

func TestManager_RunReconnectsAfterDisconnect(t *testing.T) {
	m, fc, _ := newTestManager(Options{AutoReconnect: true, ReconnectDelay: 10 * time.Millisecond})
	cancel, errc := runManager(t, m)

	require.Eventually(t, func() bool { return fc.openCount() == 1 }, time.Second, 5*time.Millisecond)

	m.onConnected("me")
	m.onDisconnected()
	require.Eventually(t, func() bool { return fc.openCount() == 2 }, time.Second, 5*time.Millisecond)

	cancel()
	require.NoError(t, <-errc)
	assert.True(t, fc.closed)
}

func TestManager_RunWithoutReconnectStaysDown(t *testing.T) {
	m, fc, _ := newTestManager(Options{AutoReconnect: false, ReconnectDelay: time.Millisecond})
	cancel, errc := runManager(t, m)

	require.Eventually(t, func() bool { return fc.openCount() == 1 }, time.Second, 5*time.Millisecond)
	m.onConnected("me")
	m.onDisconnected()

	time.Sleep(30 * time.Millisecond)
	assert.Equal(t, 1, fc.openCount())
	assert.Equal(t, StateDisconnected, m.State())

	cancel()
	require.NoError(t, <-errc)
}

func TestManager_RunFailsFastWithoutReconnect(t *testing.T) {
	m, fc, _ := newTestManager(Options{})
	fc.openErr = errors.New("dial tcp: connection refused")

	err := m.Run(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "connection refused")
}

func TestManager_RunRetriesFailedOpen(t *testing.T) {
	m, fc, _ := newTestManager(Options{AutoReconnect: true, ReconnectDelay: time.Millisecond})
	fc.openErr = errors.New("dial tcp: connection refused")
	cancel, errc := runManager(t, m)

	require.Eventually(t, func() bool { return fc.openCount() >= 3 }, time.Second, 5*time.Millisecond)

	cancel()
	require.NoError(t, <-errc)
}

func TestManager_LogoutReentersPairing(t *testing.T) {
	m, fc, rec := newTestManager(Options{ReconnectDelay: time.Millisecond})
	cancel, errc := runManager(t, m)
	require.Eventually(t, func() bool { return fc.openCount() == 1 }, time.Second, 5*time.Millisecond)

	m.onConnected("me")
	require.NoError(t, m.Logout(context.Background()))

	assert.Equal(t, StateUnauthenticated, m.State())
	assert.Equal(t, 1, fc.logouts)
	ready := rec.named(progress.EventReady)
	assert.Equal(t, false, ready[len(ready)-1].Data)

	// Logout always starts a fresh pairing, even without auto-reconnect.
	require.Eventually(t, func() bool { return fc.openCount() == 2 }, time.Second, 5*time.Millisecond)

	cancel()
	require.NoError(t, <-errc)
}
