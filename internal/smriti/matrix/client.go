// Package matrix connects the companion to Matrix rooms through mautrix-go.
// Incoming text and voice messages are converted to Message values and handed
// to a Handler; replies go back as plain text or notices.
package matrix

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"maunium.net/go/mautrix"
	"maunium.net/go/mautrix/event"
	"maunium.net/go/mautrix/id"
)

// Config holds the connection parameters.
type Config struct {
	Homeserver  string
	UserID      string
	AccessToken string
	// Rooms are joined on Start. Messages from other rooms the account is
	// in are still delivered.
	Rooms []string
	// DB persists the sync position. When nil, history replays on restart.
	DB *sql.DB
}

// Handler is called for each message from another user.
type Handler func(ctx context.Context, msg Message)

// Client is the companion's Matrix connection.
type Client struct {
	mxc    *mautrix.Client
	cfg    Config
	logger *slog.Logger
	stopCh chan struct{}
}

// New creates a client but does not start syncing.
func New(cfg Config, logger *slog.Logger) (*Client, error) {
	if logger == nil {
		logger = slog.Default()
	}
	mxc, err := mautrix.NewClient(cfg.Homeserver, id.UserID(cfg.UserID), cfg.AccessToken)
	if err != nil {
		return nil, fmt.Errorf("matrix: create client: %w", err)
	}
	if cfg.DB != nil {
		mxc.Store = newDBSyncStore(cfg.DB)
	} else {
		logger.Warn("matrix: no sync store configured, room history will replay on restart")
	}
	return &Client{mxc: mxc, cfg: cfg, logger: logger, stopCh: make(chan struct{})}, nil
}

// Start joins the configured rooms and begins the sync loop in the
// background. The loop reconnects with exponential back-off until Stop.
func (c *Client) Start(ctx context.Context, handler Handler) error {
	c.logger.Warn("matrix: E2EE is not enabled; memories are sent in plaintext")

	self := id.UserID(c.cfg.UserID)
	syncer, ok := c.mxc.Syncer.(*mautrix.DefaultSyncer)
	if !ok {
		return fmt.Errorf("matrix: unexpected syncer type %T", c.mxc.Syncer)
	}
	syncer.OnEventType(event.EventMessage, func(evtCtx context.Context, evt *event.Event) {
		if evt.Sender == self {
			return
		}
		msg, ok := messageFromEvent(evt)
		if !ok {
			return
		}
		handler(evtCtx, msg)
	})

	for _, room := range c.cfg.Rooms {
		if err := c.join(ctx, id.RoomID(room)); err != nil {
			return fmt.Errorf("matrix: join %s: %w", room, err)
		}
	}

	go c.syncLoop()
	return nil
}

func (c *Client) syncLoop() {
	const (
		backoffMin = 2 * time.Second
		backoffMax = 5 * time.Minute
	)
	backoff := backoffMin
	for {
		err := c.mxc.Sync()
		if err == nil {
			return
		}
		select {
		case <-c.stopCh:
			return
		default:
		}
		c.logger.Error("matrix: sync stopped; reconnecting", "err", err, "backoff", backoff)
		select {
		case <-c.stopCh:
			return
		case <-time.After(backoff):
		}
		backoff *= 2
		if backoff > backoffMax {
			backoff = backoffMax
		}
	}
}

// Stop halts the sync loop. It must be called at most once.
func (c *Client) Stop() {
	close(c.stopCh)
	c.mxc.StopSync()
}

// SendText posts an m.text message.
func (c *Client) SendText(ctx context.Context, roomID, text string) error {
	if _, err := c.mxc.SendText(ctx, id.RoomID(roomID), text); err != nil {
		return fmt.Errorf("matrix: send text: %w", err)
	}
	return nil
}

// SendNotice posts an m.notice message, used for status lines such as
// "saved on this device".
func (c *Client) SendNotice(ctx context.Context, roomID, text string) error {
	content := event.MessageEventContent{MsgType: event.MsgNotice, Body: text}
	if _, err := c.mxc.SendMessageEvent(ctx, id.RoomID(roomID), event.EventMessage, &content); err != nil {
		return fmt.Errorf("matrix: send notice: %w", err)
	}
	return nil
}

// SetTyping shows or clears the typing indicator while an answer is pending.
func (c *Client) SetTyping(ctx context.Context, roomID string, typing bool) error {
	_, err := c.mxc.UserTyping(ctx, id.RoomID(roomID), typing, 30*time.Second)
	return err
}

// Download fetches the media behind an mxc:// URI.
func (c *Client) Download(ctx context.Context, mxcURI string) ([]byte, error) {
	uri, err := id.ContentURIString(mxcURI).Parse()
	if err != nil {
		return nil, fmt.Errorf("matrix: parse %q: %w", mxcURI, err)
	}
	data, err := c.mxc.DownloadBytes(ctx, uri)
	if err != nil {
		return nil, fmt.Errorf("matrix: download %s: %w", mxcURI, err)
	}
	return data, nil
}

// UserID returns the account's Matrix ID.
func (c *Client) UserID() string { return c.cfg.UserID }

func (c *Client) join(ctx context.Context, roomID id.RoomID) error {
	_, err := c.mxc.JoinRoomByID(ctx, roomID)
	if err != nil {
		// Homeservers answer M_FORBIDDEN for rooms the account is already in.
		if errors.Is(err, mautrix.MForbidden) {
			c.logger.Warn("matrix: join forbidden or already a member, continuing", "room", roomID)
			return nil
		}
		return err
	}
	return nil
}
