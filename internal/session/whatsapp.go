package session

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"go.mau.fi/whatsmeow"
	"go.mau.fi/whatsmeow/store/sqlstore"
	"go.mau.fi/whatsmeow/types"
	"go.mau.fi/whatsmeow/types/events"
	waLog "go.mau.fi/whatsmeow/util/log"

	// Device store drivers: "sqlite" (pure Go) and "postgres".
	_ "github.com/lib/pq"
	_ "modernc.org/sqlite"

	"github.com/cuongbtq/bulksend/internal/domain"
	"github.com/cuongbtq/bulksend/internal/recipient"
)

var errNoClient = errors.New("whatsapp client is not initialized")

// StoreOptions locate the device credential store.
type StoreOptions struct {
	Dialect string // sqlite or postgres
	DSN     string
}

// handler receives connection lifecycle callbacks. Calls arrive on
// whatsmeow's event goroutine and must not block.
type handler interface {
	onQR(code string)
	onPairTimeout()
	onConnected(jid string)
	onDisconnected()
	onLoggedOut(reason string)
}

// conn is one linked-device connection.
type conn interface {
	open(ctx context.Context, h handler) error
	isOnWhatsApp(ctx context.Context, number string) (bool, error)
	sendText(ctx context.Context, number, text string) error
	sendMedia(ctx context.Context, number string, media *domain.Media, caption string) error
	logout(ctx context.Context) error
	close()
}

// whatsApp is the whatsmeow-backed conn. Each open builds a fresh client on
// the first stored device, so a logged-out device is replaced by a new one.
type whatsApp struct {
	container *sqlstore.Container
	waLog     waLog.Logger
	logger    *slog.Logger

	mu     sync.RWMutex
	client *whatsmeow.Client
}

func openWhatsApp(ctx context.Context, opts StoreOptions, logger *slog.Logger) (*whatsApp, error) {
	wl := NewWALogger(logger)

	container, err := sqlstore.New(ctx, opts.Dialect, opts.DSN, wl.Sub("Database"))
	if err != nil {
		return nil, fmt.Errorf("failed to open device store: %w", err)
	}

	return &whatsApp{
		container: container,
		waLog:     wl,
		logger:    logger,
	}, nil
}

func (w *whatsApp) open(ctx context.Context, h handler) error {
	device, err := w.container.GetFirstDevice(ctx)
	if err != nil {
		return fmt.Errorf("failed to load device: %w", err)
	}

	client := whatsmeow.NewClient(device, w.waLog.Sub("Client"))
	// Reconnection is driven by the manager so the configured delay applies.
	client.EnableAutoReconnect = false
	client.AddEventHandler(func(evt interface{}) {
		switch v := evt.(type) {
		case *events.Connected:
			jid := ""
			if client.Store.ID != nil {
				jid = client.Store.ID.String()
			}
			h.onConnected(jid)
		case *events.PairSuccess:
			w.logger.Info("Device paired", slog.String("jid", v.ID.String()))
		case *events.Disconnected, *events.StreamReplaced, *events.KeepAliveTimeout:
			h.onDisconnected()
		case *events.LoggedOut:
			h.onLoggedOut(v.Reason.String())
		case *events.TemporaryBan:
			w.logger.Error("Account temporarily banned", slog.String("ban", v.String()))
		}
	})

	w.mu.Lock()
	old := w.client
	w.client = client
	w.mu.Unlock()
	if old != nil {
		old.Disconnect()
	}

	if client.Store.ID != nil {
		if err := client.Connect(); err != nil {
			return fmt.Errorf("failed to connect: %w", err)
		}
		return nil
	}

	// Fresh device: the QR channel must exist before connecting.
	qrChan, err := client.GetQRChannel(ctx)
	if err != nil {
		return fmt.Errorf("failed to get qr channel: %w", err)
	}
	if err := client.Connect(); err != nil {
		return fmt.Errorf("failed to connect: %w", err)
	}

	go func() {
		for item := range qrChan {
			switch item.Event {
			case whatsmeow.QRChannelEventCode:
				h.onQR(item.Code)
			case whatsmeow.QRChannelSuccess.Event:
			case whatsmeow.QRChannelTimeout.Event:
				h.onPairTimeout()
			case whatsmeow.QRChannelEventError:
				w.logger.Error("Pairing failed", slog.Any("error", item.Error))
				h.onPairTimeout()
			default:
				w.logger.Warn("Pairing ended", slog.String("event", item.Event))
				h.onPairTimeout()
			}
		}
	}()
	return nil
}

func (w *whatsApp) current() (*whatsmeow.Client, error) {
	w.mu.RLock()
	defer w.mu.RUnlock()
	if w.client == nil {
		return nil, errNoClient
	}
	return w.client, nil
}

func userJID(number string) types.JID {
	return types.NewJID(recipient.JIDUser(number), types.DefaultUserServer)
}

// isOnWhatsApp reports whether number has an account. The lookup itself
// takes no context, so an expired ctx is only honored before it starts.
func (w *whatsApp) isOnWhatsApp(ctx context.Context, number string) (bool, error) {
	if err := ctx.Err(); err != nil {
		return false, err
	}
	client, err := w.current()
	if err != nil {
		return false, err
	}
	resp, err := client.IsOnWhatsApp([]string{number})
	if err != nil {
		return false, err
	}
	for _, r := range resp {
		if r.IsIn {
			return true, nil
		}
	}
	return false, nil
}

func (w *whatsApp) sendText(ctx context.Context, number, text string) error {
	client, err := w.current()
	if err != nil {
		return err
	}
	_, err = client.SendMessage(ctx, userJID(number), textMessage(text))
	return err
}

func (w *whatsApp) sendMedia(ctx context.Context, number string, media *domain.Media, caption string) error {
	client, err := w.current()
	if err != nil {
		return err
	}

	mime := mediaMIME(media)
	up, err := client.Upload(ctx, media.Data, mediaTypeFor(mime))
	if err != nil {
		return fmt.Errorf("failed to upload media: %w", err)
	}

	to := userJID(number)
	if _, err := client.SendMessage(ctx, to, buildMediaMessage(up, media, mime, caption)); err != nil {
		return err
	}
	if mediaTypeFor(mime) == whatsmeow.MediaAudio && caption != "" {
		_, err = client.SendMessage(ctx, to, textMessage(caption))
	}
	return err
}

func (w *whatsApp) logout(ctx context.Context) error {
	client, err := w.current()
	if err != nil {
		return err
	}
	return client.Logout(ctx)
}

func (w *whatsApp) close() {
	w.mu.Lock()
	client := w.client
	w.client = nil
	w.mu.Unlock()
	if client != nil {
		client.Disconnect()
	}
}
