package websocket

import (
	"context"
	"encoding/json"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"schadenschat/internal/domain/repository"
	"schadenschat/pkg/errors"
)

type fakeSubscriber struct {
	mu     sync.Mutex
	open   map[string]int
	emit   map[string]func(interface{})
	failOn string
}

func newFakeSubscriber() *fakeSubscriber {
	return &fakeSubscriber{open: make(map[string]int), emit: make(map[string]func(interface{}))}
}

func (f *fakeSubscriber) Subscribe(channel string, callback func(data interface{})) (repository.Unsubscribe, error) {
	if channel == f.failOn {
		return nil, errors.Validation("unknown channel " + channel)
	}
	f.mu.Lock()
	f.open[channel]++
	f.emit[channel] = callback
	f.mu.Unlock()

	callback([]string{"initial"})
	return func() {
		f.mu.Lock()
		f.open[channel]--
		f.mu.Unlock()
	}, nil
}

func (f *fakeSubscriber) live(channel string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.open[channel]
}

func next(t *testing.T, c *Client) WSMessage {
	t.Helper()
	select {
	case frame := <-c.Send:
		var msg WSMessage
		require.NoError(t, json.Unmarshal(frame, &msg))
		return msg
	default:
		t.Fatal("no frame queued")
		return WSMessage{}
	}
}

func TestMessageHandler_PingPong(t *testing.T) {
	c := NewClient("c1", nil)
	h := NewMessageHandler(newFakeSubscriber())

	h.HandleMessage(c, []byte(`{"type":"ping"}`))
	assert.Equal(t, MessageTypePong, next(t, c).Type)

	h.HandleMessage(c, []byte(`not json`))
	assert.Equal(t, MessageTypeError, next(t, c).Type)

	h.HandleMessage(c, []byte(`{"type":"dance"}`))
	assert.Equal(t, MessageTypeError, next(t, c).Type)
}

func TestMessageHandler_SubscribeUnsubscribe(t *testing.T) {
	c := NewClient("c1", nil)
	subscriber := newFakeSubscriber()
	h := NewMessageHandler(subscriber)

	h.HandleMessage(c, []byte(`{"type":"subscribe","channel":"offers:r1"}`))
	snapshot := next(t, c)
	assert.Equal(t, MessageTypeSnapshot, snapshot.Type)
	assert.Equal(t, "offers:r1", snapshot.Channel)
	assert.Equal(t, []interface{}{"initial"}, snapshot.Data)
	assert.Equal(t, MessageTypeSubscribed, next(t, c).Type)
	assert.Equal(t, 1, subscriber.live("offers:r1"))

	subscriber.emit["offers:r1"]([]string{"update"})
	assert.Equal(t, []interface{}{"update"}, next(t, c).Data)

	h.HandleMessage(c, []byte(`{"type":"unsubscribe","channel":"offers:r1"}`))
	assert.Equal(t, MessageTypeUnsubscribed, next(t, c).Type)
	assert.Equal(t, 0, subscriber.live("offers:r1"))

	h.HandleMessage(c, []byte(`{"type":"unsubscribe","channel":"offers:r1"}`))
	assert.Equal(t, MessageTypeError, next(t, c).Type)
}

func TestMessageHandler_SubscribeErrorCarriesCode(t *testing.T) {
	c := NewClient("c1", nil)
	subscriber := newFakeSubscriber()
	subscriber.failOn = "bogus"
	h := NewMessageHandler(subscriber)

	h.HandleMessage(c, []byte(`{"type":"subscribe","channel":"bogus"}`))
	msg := next(t, c)
	require.Equal(t, MessageTypeError, msg.Type)
	data := msg.Data.(map[string]interface{})
	assert.Equal(t, errors.CodeValidation, data["code"])
}

func TestManager_UnregisterReleasesSubscriptions(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	m := NewManager()
	m.Start(ctx)

	subscriber := newFakeSubscriber()
	h := NewMessageHandler(subscriber)
	c := NewClient("c1", nil)
	m.Register <- c

	h.HandleMessage(c, []byte(`{"type":"subscribe","channel":"requests:mine"}`))
	h.HandleMessage(c, []byte(`{"type":"subscribe","channel":"messages:r1"}`))
	require.Eventually(t, func() bool { return m.ClientCount() == 1 }, time.Second, 5*time.Millisecond)

	m.Unregister <- c
	require.Eventually(t, func() bool {
		return subscriber.live("requests:mine") == 0 && subscriber.live("messages:r1") == 0
	}, time.Second, 5*time.Millisecond)
	assert.Equal(t, 0, m.ClientCount())

	// Late snapshots for a closed client are dropped, not sent on a closed channel.
	assert.False(t, c.enqueue([]byte("late")))
}
