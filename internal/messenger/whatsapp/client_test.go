package whatsapp

import (
	"bytes"
	"context"
	"strings"
	"testing"

	"github.com/rs/zerolog"
	"go.mau.fi/whatsmeow/types"
	"go.mau.fi/whatsmeow/types/events"

	"github.com/LeventeLantos/pacedsend/internal/messenger"
)

func TestJidFor(t *testing.T) {
	t.Parallel()

	for _, in := range []string{"5511999998888", "+5511999998888"} {
		jid := jidFor(in)
		if jid.User != "5511999998888" || jid.Server != types.DefaultUserServer {
			t.Fatalf("%q: unexpected jid %v", in, jid)
		}
	}
}

func TestLogger_RoutesToZerolog(t *testing.T) {
	t.Parallel()

	var buf bytes.Buffer
	l := newLogger(zerolog.New(&buf), "client").Sub("socket")
	l.Warnf("frame %d dropped", 7)

	out := buf.String()
	if !strings.Contains(out, "frame 7 dropped") || !strings.Contains(out, `"sub":"socket"`) {
		t.Fatalf("unexpected log output: %q", out)
	}
}

func TestHandleEvent_MapsToConnection(t *testing.T) {
	t.Parallel()

	conn := messenger.NewConnection()
	c := &Client{conn: conn}

	c.handleEvent(&events.Connected{})
	if conn.State() != messenger.Ready {
		t.Fatalf("expected ready after connected, got %s", conn.State())
	}

	c.handleEvent(&events.Disconnected{})
	if conn.State() != messenger.Disconnected {
		t.Fatalf("expected disconnected, got %s", conn.State())
	}
}

func TestHandleEvent_TracksUnreadPerChat(t *testing.T) {
	t.Parallel()

	c := &Client{conn: messenger.NewConnection()}
	from := types.NewJID("5511999998888", types.DefaultUserServer)
	group := types.NewJID("120363000000000000", types.GroupServer)

	incoming := func(chat types.JID, id types.MessageID, fromMe, isGroup bool) *events.Message {
		return &events.Message{Info: types.MessageInfo{
			MessageSource: types.MessageSource{Chat: chat, Sender: from, IsFromMe: fromMe, IsGroup: isGroup},
			ID:            id,
		}}
	}
	c.handleEvent(incoming(from, "m1", false, false))
	c.handleEvent(incoming(from, "m2", false, false))
	c.handleEvent(incoming(from, "mine", true, false))
	c.handleEvent(incoming(group, "g1", false, true))

	u, ok := c.takeUnread("+5511999998888")
	if !ok {
		t.Fatalf("expected unread messages for the chat")
	}
	if len(u.ids) != 2 || u.ids[0] != "m1" || u.ids[1] != "m2" {
		t.Fatalf("unexpected unread ids %v", u.ids)
	}
	if u.chat != from || u.sender != from {
		t.Fatalf("unexpected chat %v sender %v", u.chat, u.sender)
	}

	if _, ok := c.takeUnread("5511999998888"); ok {
		t.Fatalf("unread messages must be cleared once taken")
	}
	if _, ok := c.takeUnread("120363000000000000"); ok {
		t.Fatalf("group messages must not be tracked")
	}
}

func TestMarkSeen_NothingUnreadIsNoop(t *testing.T) {
	t.Parallel()

	// No whatsmeow client is needed when there is nothing to mark.
	c := &Client{conn: messenger.NewConnection()}
	if err := c.MarkSeen(context.Background(), "5511999998888"); err != nil {
		t.Fatalf("MarkSeen() error: %v", err)
	}
}
