package whatsapp

import (
	"context"
	"fmt"
	"io"
	"strings"
	"sync"
	"time"

	"github.com/mdp/qrterminal/v3"
	"github.com/rs/zerolog/log"
	"go.mau.fi/whatsmeow"
	waProto "go.mau.fi/whatsmeow/binary/proto"
	"go.mau.fi/whatsmeow/store/sqlstore"
	"go.mau.fi/whatsmeow/types"
	"go.mau.fi/whatsmeow/types/events"
	"google.golang.org/protobuf/proto"

	_ "github.com/mattn/go-sqlite3"

	"github.com/LeventeLantos/pacedsend/internal/messenger"
)

// Client is the WhatsApp Web collaborator. Readiness is reported to the
// shared Connection rather than to callbacks.
type Client struct {
	wa    *whatsmeow.Client
	conn  *messenger.Connection
	qrOut io.Writer

	mu     sync.Mutex
	unread map[string]unreadChat // by chat user
}

// unreadChat holds incoming messages not yet marked as read.
type unreadChat struct {
	chat   types.JID
	sender types.JID
	ids    []types.MessageID
}

var (
	_ messenger.Collaborator = (*Client)(nil)
	_ messenger.IDSender     = (*Client)(nil)
	_ messenger.Presence     = (*Client)(nil)
)

// Open loads (or creates) the device session stored at dsn. When qrOut is not
// nil, pairing codes are also rendered there as terminal QR codes.
func Open(dsn string, conn *messenger.Connection, qrOut io.Writer) (*Client, error) {
	container, err := sqlstore.New("sqlite3", dsn, newLogger(log.Logger, "store"))
	if err != nil {
		return nil, fmt.Errorf("open whatsapp store: %w", err)
	}

	device, err := container.GetFirstDevice()
	if err != nil {
		return nil, fmt.Errorf("load whatsapp device: %w", err)
	}

	c := &Client{
		wa:    whatsmeow.NewClient(device, newLogger(log.Logger, "client")),
		conn:  conn,
		qrOut: qrOut,
	}
	c.wa.AddEventHandler(c.handleEvent)
	return c, nil
}

// Connect starts the session. A device without a stored login goes through
// QR pairing; the codes are published as connection events.
func (c *Client) Connect(ctx context.Context) error {
	if c.wa.IsConnected() {
		return nil
	}

	if c.wa.Store.ID != nil {
		if err := c.wa.Connect(); err != nil {
			return fmt.Errorf("connect: %w", err)
		}
		return nil
	}

	qrChan, err := c.wa.GetQRChannel(context.Background())
	if err != nil {
		return fmt.Errorf("get qr channel: %w", err)
	}
	if err := c.wa.Connect(); err != nil {
		return fmt.Errorf("connect: %w", err)
	}

	go func() {
		for evt := range qrChan {
			switch evt.Event {
			case "code":
				if c.qrOut != nil {
					qrterminal.GenerateHalfBlock(evt.Code, qrterminal.L, c.qrOut)
				}
				c.conn.Handle(messenger.Event{Type: messenger.EventQR, Payload: evt.Code})
			case "success":
				log.Info().Msg("whatsapp pairing succeeded")
			default:
				c.conn.Handle(messenger.Event{Type: messenger.EventAuthFailure, Payload: "pairing " + evt.Event})
			}
		}
	}()
	return nil
}

func (c *Client) Close() {
	c.wa.Disconnect()
	c.conn.Handle(messenger.Event{Type: messenger.EventDisconnected, Payload: "client closed"})
}

func (c *Client) handleEvent(evt interface{}) {
	switch v := evt.(type) {
	case *events.PairSuccess:
		c.conn.Handle(messenger.Event{Type: messenger.EventAuthenticated})
	case *events.Connected:
		if c.conn.State() != messenger.Authenticated {
			c.conn.Handle(messenger.Event{Type: messenger.EventAuthenticated})
		}
		c.conn.Handle(messenger.Event{Type: messenger.EventReady})
		if c.wa != nil {
			// Chat presence and read receipts are only delivered while available.
			if err := c.wa.SendPresence(types.PresenceAvailable); err != nil {
				log.Warn().Err(err).Msg("whatsapp presence update failed")
			}
		}
	case *events.Message:
		if !v.Info.IsFromMe && !v.Info.IsGroup {
			c.noteUnread(v.Info.Chat, v.Info.Sender, v.Info.ID)
		}
	case *events.Disconnected:
		c.conn.Handle(messenger.Event{Type: messenger.EventDisconnected, Payload: "connection lost"})
	case *events.LoggedOut:
		c.conn.Handle(messenger.Event{Type: messenger.EventDisconnected, Payload: fmt.Sprintf("logged out: %v", v.Reason)})
	case *events.StreamReplaced:
		c.conn.Handle(messenger.Event{Type: messenger.EventDisconnected, Payload: "session opened elsewhere"})
	case *events.TemporaryBan:
		c.conn.Handle(messenger.Event{Type: messenger.EventDisconnected, Payload: fmt.Sprintf("temporary ban: %v", v.Code)})
	case *events.ConnectFailure:
		c.conn.Handle(messenger.Event{Type: messenger.EventAuthFailure, Payload: fmt.Sprintf("connect failure: %v", v.Reason)})
	}
}

func (c *Client) IsRegistered(ctx context.Context, recipient string) (bool, error) {
	resp, err := c.wa.IsOnWhatsApp([]string{"+" + strings.TrimPrefix(recipient, "+")})
	if err != nil {
		return false, fmt.Errorf("check %s: %w", recipient, err)
	}
	for _, r := range resp {
		if r.IsIn {
			return true, nil
		}
	}
	return false, nil
}

func (c *Client) Send(ctx context.Context, recipient, text string) error {
	_, err := c.SendWithID(ctx, recipient, text)
	return err
}

// SendWithID sends text and returns the WhatsApp message id.
func (c *Client) SendWithID(ctx context.Context, recipient, text string) (string, error) {
	msg := &waProto.Message{
		Conversation: proto.String(text),
	}
	resp, err := c.wa.SendMessage(ctx, jidFor(recipient), msg)
	if err != nil {
		return "", &messenger.SendError{Recipient: recipient, Detail: err.Error(), Err: err}
	}
	return string(resp.ID), nil
}

// MarkSeen marks the messages received from recipient as read. It does
// nothing when there is nothing unread.
func (c *Client) MarkSeen(ctx context.Context, recipient string) error {
	u, ok := c.takeUnread(recipient)
	if !ok {
		return nil
	}
	return c.wa.MarkRead(u.ids, time.Now(), u.chat, u.sender)
}

func (c *Client) noteUnread(chat, sender types.JID, id types.MessageID) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.unread == nil {
		c.unread = map[string]unreadChat{}
	}
	u := c.unread[chat.User]
	u.chat, u.sender = chat, sender
	u.ids = append(u.ids, id)
	c.unread[chat.User] = u
}

func (c *Client) takeUnread(recipient string) (unreadChat, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	key := jidFor(recipient).User
	u, ok := c.unread[key]
	if ok {
		delete(c.unread, key)
	}
	return u, ok && len(u.ids) > 0
}

func (c *Client) SetTyping(ctx context.Context, recipient string) error {
	return c.wa.SendChatPresence(jidFor(recipient), types.ChatPresenceComposing, types.ChatPresenceMediaText)
}

func (c *Client) ClearTyping(ctx context.Context, recipient string) error {
	return c.wa.SendChatPresence(jidFor(recipient), types.ChatPresencePaused, types.ChatPresenceMediaText)
}

func jidFor(recipient string) types.JID {
	return types.NewJID(strings.TrimPrefix(recipient, "+"), types.DefaultUserServer)
}
