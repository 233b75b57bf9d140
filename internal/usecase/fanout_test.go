package usecase

import (
	"context"
	stderrors "errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"schadenschat/internal/domain/entity"
	"schadenschat/internal/domain/repository"
	"schadenschat/pkg/errors"
)

type fakeUpstream struct {
	mu     sync.Mutex
	opened map[string]int
	closed map[string]int
	emits  map[string]func(int)
}

func newFakeUpstream() *fakeUpstream {
	return &fakeUpstream{
		opened: make(map[string]int),
		closed: make(map[string]int),
		emits:  make(map[string]func(int)),
	}
}

func (f *fakeUpstream) open(ctx context.Context, topic string, emit func(int)) (repository.Unsubscribe, error) {
	if topic == "broken" {
		return nil, stderrors.New("cannot open")
	}
	f.mu.Lock()
	f.opened[topic]++
	f.emits[topic] = emit
	f.mu.Unlock()

	emit(0)
	return func() {
		f.mu.Lock()
		f.closed[topic]++
		f.mu.Unlock()
	}, nil
}

func (f *fakeUpstream) push(topic string, v int) {
	f.mu.Lock()
	emit := f.emits[topic]
	f.mu.Unlock()
	emit(v)
}

func TestHub_SharesOneUpstreamPerTopic(t *testing.T) {
	upstream := newFakeUpstream()
	hub := NewHub[int](upstream.open)

	var a, b []int
	unsubA, err := hub.Subscribe("t", func(v int) { a = append(a, v) })
	require.NoError(t, err)

	upstream.push("t", 1)

	unsubB, err := hub.Subscribe("t", func(v int) { b = append(b, v) })
	require.NoError(t, err)

	upstream.push("t", 2)

	assert.Equal(t, 1, upstream.opened["t"])
	assert.Equal(t, []int{0, 1, 2}, a)
	assert.Equal(t, []int{1, 2}, b, "late subscriber starts from the last snapshot")
	assert.Equal(t, 1, hub.Topics())

	unsubA()
	unsubA()
	assert.Equal(t, 0, upstream.closed["t"])

	unsubB()
	assert.Equal(t, 1, upstream.closed["t"])
	assert.Equal(t, 0, hub.Topics())

	_, err = hub.Subscribe("t", func(int) {})
	require.NoError(t, err)
	assert.Equal(t, 2, upstream.opened["t"])
}

func TestHub_OpenErrorLeavesNoTopic(t *testing.T) {
	hub := NewHub[int](newFakeUpstream().open)

	_, err := hub.Subscribe("broken", func(int) {})
	assert.Error(t, err)
	assert.Equal(t, 0, hub.Topics())
}

func TestRealtime_Channels(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	req := newOpenRequest(t, env)
	realtime := NewRealtimeUseCase(env.identity, env.requests, env.offers, env.messages)

	_, err := realtime.Subscribe("bogus", func(interface{}) {})
	assert.True(t, errors.Is(err, errors.CodeValidation))

	_, err = realtime.Subscribe(ChannelOpenRequests, func(interface{}) {})
	assert.True(t, errors.Is(err, errors.CodeWriteRejected))
	assert.Equal(t, 0, realtime.LiveSubscriptions())

	offers := make(chan []*entity.Offer, 10)
	unsubOffers, err := realtime.Subscribe("offers:"+req.ID, func(v interface{}) { offers <- v.([]*entity.Offer) })
	require.NoError(t, err)
	unsubSecond, err := realtime.Subscribe("offers:"+req.ID, func(interface{}) {})
	require.NoError(t, err)
	assert.Equal(t, 1, realtime.LiveSubscriptions())

	env.identity.set("ws1", entity.RoleWorkshop)
	_, err = env.offers.SendOffer(ctx, req.ID, entity.OfferInput{Price: 250, Duration: 1})
	require.NoError(t, err)

	require.Eventually(t, func() bool {
		select {
		case got := <-offers:
			return len(got) == 1
		default:
			return false
		}
	}, 2*time.Second, 10*time.Millisecond)

	unsubOffers()
	unsubSecond()
	assert.Equal(t, 0, realtime.LiveSubscriptions())
}
