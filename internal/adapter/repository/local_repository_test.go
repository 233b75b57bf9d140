package repository

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"schadenschat/internal/domain/entity"
	"schadenschat/internal/infrastructure/localstore"
	"schadenschat/pkg/errors"
)

func newLocal(t *testing.T) *LocalRepository {
	t.Helper()
	store, err := localstore.Open(filepath.Join(t.TempDir(), "local.db"))
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })
	return NewLocalRepository(store, localstore.Keys{App: "schadens-chat"})
}

func TestLocalRepository_CreateListRoundTrip(t *testing.T) {
	ctx := context.Background()
	repo := newLocal(t)
	req := newTestRequest("r1", "", entity.RequestStatusNew, testNow)
	req.Photos = []string{"data:image/jpeg;base64,AAAA"}

	require.NoError(t, repo.CreateRequest(ctx, req))
	require.NoError(t, repo.CreateRequest(ctx, newTestRequest("r2", "", entity.RequestStatusNew, testNow.Add(time.Hour))))

	err := repo.CreateRequest(ctx, req)
	assert.True(t, errors.Is(err, errors.CodeConflict))

	requests, err := repo.ListRequestsByCustomer(ctx, "anyone")
	require.NoError(t, err)
	require.Len(t, requests, 2)
	assert.Equal(t, "r2", requests[0].ID)
	assert.Equal(t, req.Vehicle, requests[1].Vehicle)
	assert.Equal(t, req.Contact, requests[1].Contact)
	assert.Equal(t, req.Photos, requests[1].Photos)
}

func TestLocalRepository_OfferLifecycle(t *testing.T) {
	ctx := context.Background()
	repo := newLocal(t)
	require.NoError(t, repo.CreateRequest(ctx, newTestRequest("r1", "", entity.RequestStatusNew, testNow)))

	require.NoError(t, repo.CreateOffer(ctx, newTestOffer("r1", "ws1", testNow)))
	require.NoError(t, repo.CreateOffer(ctx, newTestOffer("r1", "ws2", testNow.Add(time.Minute))))
	require.NoError(t, repo.MarkOffersReceived(ctx, "r1", testNow))
	require.NoError(t, repo.MarkOffersReceived(ctx, "r1", testNow))

	err := repo.CreateOffer(ctx, newTestOffer("r1", "ws1", testNow))
	assert.True(t, errors.Is(err, errors.CodeConflict))
	err = repo.CreateOffer(ctx, newTestOffer("missing", "ws1", testNow))
	assert.True(t, errors.Is(err, errors.CodeNotFound))

	offers, err := repo.ListOffers(ctx, "r1")
	require.NoError(t, err)
	require.Len(t, offers, 2)
	assert.Equal(t, "ws2", offers[0].ID)

	require.NoError(t, repo.AcceptOffer(ctx, "r1", "ws1", "ws1", testNow))
	err = repo.AcceptOffer(ctx, "r1", "ws2", "ws2", testNow)
	assert.True(t, errors.Is(err, errors.CodeConflict))

	req, err := repo.GetRequest(ctx, "r1")
	require.NoError(t, err)
	assert.Equal(t, entity.RequestStatusAccepted, req.Status)
	assert.Equal(t, "ws1", req.AcceptedOfferID)
	assert.Equal(t, 2, req.OffersCount)

	offer, err := repo.GetOffer(ctx, "r1", "ws1")
	require.NoError(t, err)
	assert.Equal(t, entity.OfferStatusAccepted, offer.Status)

	require.NoError(t, repo.TransitionRequest(ctx, "r1", entity.RequestStatusInProgress, testNow))
	err = repo.TransitionRequest(ctx, "r1", entity.RequestStatusCancelled, testNow)
	assert.True(t, errors.Is(err, errors.CodeConflict))
}

func TestLocalRepository_MessagesPerOffer(t *testing.T) {
	ctx := context.Background()
	repo := newLocal(t)

	require.NoError(t, repo.CreateMessage(ctx, &entity.Message{ID: "m2", RequestID: "r1", OfferID: "ws1", Text: "zweite", CreatedAt: testNow.Add(time.Minute)}))
	require.NoError(t, repo.CreateMessage(ctx, &entity.Message{ID: "m1", RequestID: "r1", OfferID: "ws1", Text: "erste", CreatedAt: testNow}))
	require.NoError(t, repo.CreateMessage(ctx, &entity.Message{ID: "m3", RequestID: "r1", OfferID: "ws2", Text: "andere", CreatedAt: testNow}))

	messages, err := repo.ListMessages(ctx, "r1", "ws1")
	require.NoError(t, err)
	require.Len(t, messages, 2)
	assert.Equal(t, "erste", messages[0].Text)

	require.NoError(t, repo.MarkMessageRead(ctx, "r1", "ws1", "m1"))
	err = repo.MarkMessageRead(ctx, "r1", "ws1", "m3")
	assert.True(t, errors.Is(err, errors.CodeNotFound))

	messages, err = repo.ListMessages(ctx, "r1", "ws1")
	require.NoError(t, err)
	assert.True(t, messages[0].Read)
}

func TestLocalRepository_SubscribeDeliversOnce(t *testing.T) {
	ctx := context.Background()
	repo := newLocal(t)
	require.NoError(t, repo.CreateRequest(ctx, newTestRequest("r1", "", entity.RequestStatusNew, testNow)))

	calls := 0
	unsubscribe := repo.SubscribeRequestsByCustomer(ctx, "", func(requests []*entity.Request) {
		calls++
		assert.Len(t, requests, 1)
	}, func(err error) { t.Errorf("unexpected error: %v", err) })
	unsubscribe()
	unsubscribe()

	assert.Equal(t, 1, calls)
}

func TestLocalRepository_ForgetAndClear(t *testing.T) {
	ctx := context.Background()
	repo := newLocal(t)
	for _, id := range []string{"a", "b", "c"} {
		require.NoError(t, repo.CreateRequest(ctx, newTestRequest(id, "", entity.RequestStatusNew, testNow)))
	}

	pending, err := repo.PendingRequests(ctx)
	require.NoError(t, err)
	require.Len(t, pending, 3)

	require.NoError(t, repo.ForgetRequests(ctx, []string{"a", "c"}))
	pending, err = repo.PendingRequests(ctx)
	require.NoError(t, err)
	require.Len(t, pending, 1)
	assert.Equal(t, "b", pending[0].ID)

	require.NoError(t, repo.Clear(ctx))
	pending, err = repo.PendingRequests(ctx)
	require.NoError(t, err)
	assert.Empty(t, pending)
}
