package usecase

import (
	"context"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	repoimpl "schadenschat/internal/adapter/repository"
	"schadenschat/internal/domain/entity"
	"schadenschat/pkg/errors"
)

func TestCreateRequest_Validation(t *testing.T) {
	env := newTestEnv(t)
	env.identity.set("c1", entity.RoleCustomer)
	ctx := context.Background()

	tests := []struct {
		name   string
		input  func() entity.RequestInput
		photos []entity.PhotoInput
	}{
		{"no photos", validInput, nil},
		{"empty photo", validInput, []entity.PhotoInput{{Data: ""}}},
		{"blank contact name", func() entity.RequestInput {
			in := validInput()
			in.Contact.Name = "   "
			return in
		}, onePhoto()},
		{"missing contact phone", func() entity.RequestInput {
			in := validInput()
			in.Contact.Phone = ""
			return in
		}, onePhoto()},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := env.requests.CreateRequest(ctx, tt.input(), tt.photos)
			assert.True(t, errors.Is(err, errors.CodeValidation), "got %v", err)
		})
	}

	reqs, _, err := env.requests.ListMyRequests(ctx)
	require.NoError(t, err)
	assert.Empty(t, reqs)
}

func TestCreateRequest_OptionalFieldsAreNotValidated(t *testing.T) {
	env := newTestEnv(t)
	env.identity.set("c1", entity.RoleCustomer)
	ctx := context.Background()

	tests := []struct {
		name  string
		input func() entity.RequestInput
	}{
		{"missing damage type", func() entity.RequestInput {
			in := validInput()
			in.DamageType = ""
			return in
		}},
		{"free-form email", func() entity.RequestInput {
			in := validInput()
			in.Contact.Email = "max at example"
			return in
		}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			in := tt.input()
			req, err := env.requests.CreateRequest(ctx, in, onePhoto())
			require.NoError(t, err)
			assert.Equal(t, in.DamageType, req.Damage.Type)
			assert.Equal(t, in.Contact.Email, req.Contact.Email)
		})
	}
}

func TestCreateRequest_UniqueIDsAndInitialState(t *testing.T) {
	env := newTestEnv(t)
	env.identity.set("c1", entity.RoleCustomer)
	ctx := context.Background()

	seen := make(map[string]bool)
	for i := 0; i < 5; i++ {
		req, err := env.requests.CreateRequest(ctx, validInput(), onePhoto())
		require.NoError(t, err)
		assert.False(t, seen[req.ID], "duplicate id %s", req.ID)
		seen[req.ID] = true
		assert.Equal(t, entity.RequestStatusNew, req.Status)
		assert.Equal(t, 0, req.OffersCount)
		assert.Equal(t, "c1", req.CustomerID)
	}
}

func TestCreateRequest_RoundTripThroughRemote(t *testing.T) {
	env := newTestEnv(t)
	env.identity.set("c1", entity.RoleCustomer)
	ctx := context.Background()

	created, err := env.requests.CreateRequest(ctx, validInput(), onePhoto())
	require.NoError(t, err)

	reqs, source, err := env.requests.ListMyRequests(ctx)
	require.NoError(t, err)
	assert.Equal(t, "remote", source)
	require.Len(t, reqs, 1)

	got := reqs[0]
	assert.Equal(t, created.ID, got.ID)
	assert.Equal(t, created.Vehicle, got.Vehicle)
	assert.Equal(t, created.Location, got.Location)
	assert.Equal(t, created.Contact, got.Contact)
	assert.Equal(t, "dent", got.Damage.Type)
	require.Len(t, got.Photos, 1)
	assert.True(t, strings.HasPrefix(got.Photos[0], "https://storage.example.com/requests/"+created.ID+"/photo_0_"))
}

func TestCreateRequest_FailedUploadKeepsPhotoInline(t *testing.T) {
	env := newTestEnv(t)
	env.identity.set("c1", entity.RoleCustomer)
	env.photos.failing = map[int]bool{1: true}

	photos := []entity.PhotoInput{{Data: inlinePhoto}, {Data: inlinePhoto}, {Data: "https://cdn.example.com/already.jpg"}}
	req, err := env.requests.CreateRequest(context.Background(), validInput(), photos)
	require.NoError(t, err)

	require.Len(t, req.Photos, 3)
	assert.True(t, strings.HasPrefix(req.Photos[0], "https://storage.example.com/"))
	assert.Equal(t, inlinePhoto, req.Photos[1])
	assert.Equal(t, "https://cdn.example.com/already.jpg", req.Photos[2])
	assert.Len(t, env.photos.uploads, 1)
}

func TestCreateRequest_FallsBackToLocalWhenRemoteDown(t *testing.T) {
	env := newTestEnv(t)
	env.identity.set("c1", entity.RoleCustomer)
	env.remoteStore.setDown(true)
	ctx := context.Background()

	created, err := env.requests.CreateRequest(ctx, validInput(), onePhoto())
	require.NoError(t, err)

	reqs, source, err := env.requests.ListMyRequests(ctx)
	require.NoError(t, err)
	assert.Equal(t, "local", source)
	require.Len(t, reqs, 1)
	assert.Equal(t, created.ID, reqs[0].ID)

	got, err := env.requests.GetRequest(ctx, created.ID)
	require.NoError(t, err)
	assert.Equal(t, created.Contact, got.Contact)
}

func TestCreateRequest_AnonymousStaysLocal(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	created, err := env.requests.CreateRequest(ctx, validInput(), onePhoto())
	require.NoError(t, err)
	assert.Empty(t, created.CustomerID)
	assert.Equal(t, []string{inlinePhoto}, created.Photos)
	assert.Empty(t, env.photos.uploads)

	_, err = env.remote.GetRequest(ctx, created.ID)
	assert.True(t, errors.Is(err, errors.CodeNotFound))

	reqs, source, err := env.requests.ListMyRequests(ctx)
	require.NoError(t, err)
	assert.Equal(t, "local", source)
	require.Len(t, reqs, 1)
	assert.Equal(t, created.ID, reqs[0].ID)
}

func TestRequestLifecycle_OfferAcceptAndComplete(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	env.identity.set("c1", entity.RoleCustomer)
	req, err := env.requests.CreateRequest(ctx, validInput(), onePhoto())
	require.NoError(t, err)

	env.identity.set("ws1", entity.RoleWorkshop)
	open, _, err := env.requests.ListOpenRequests(ctx, 10)
	require.NoError(t, err)
	require.Len(t, open, 1)

	offer, err := env.offers.SendOffer(ctx, req.ID, entity.OfferInput{Price: 450, Duration: 2, WorkshopName: "Autohaus Nord"})
	require.NoError(t, err)
	assert.Equal(t, "ws1", offer.ID)

	got, err := env.requests.GetRequest(ctx, req.ID)
	require.NoError(t, err)
	assert.Equal(t, entity.RequestStatusOffersReceived, got.Status)
	assert.Equal(t, 1, got.OffersCount)

	env.identity.set("c1", entity.RoleCustomer)
	accepted, err := env.requests.AcceptOffer(ctx, req.ID, offer.ID)
	require.NoError(t, err)
	assert.Equal(t, entity.RequestStatusAccepted, accepted.Status)
	assert.Equal(t, "ws1", accepted.AcceptedOfferID)
	assert.Equal(t, "ws1", accepted.AcceptedWorkshopID)
	require.NotNil(t, accepted.AcceptedAt)

	offers, _, err := env.offers.GetOffers(ctx, req.ID)
	require.NoError(t, err)
	require.Len(t, offers, 1)
	assert.Equal(t, entity.OfferStatusAccepted, offers[0].Status)

	_, err = env.requests.AcceptOffer(ctx, req.ID, offer.ID)
	assert.True(t, errors.Is(err, errors.CodeConflict))

	env.identity.set("ws2", entity.RoleWorkshop)
	_, err = env.requests.AdvanceStatus(ctx, req.ID, entity.RequestStatusInProgress)
	assert.True(t, errors.Is(err, errors.CodeWriteRejected))

	env.identity.set("ws1", entity.RoleWorkshop)
	_, err = env.requests.AdvanceStatus(ctx, req.ID, entity.RequestStatusCompleted)
	assert.True(t, errors.Is(err, errors.CodeConflict), "accepted cannot jump to completed")

	_, err = env.requests.AdvanceStatus(ctx, req.ID, entity.RequestStatusInProgress)
	require.NoError(t, err)
	done, err := env.requests.AdvanceStatus(ctx, req.ID, entity.RequestStatusCompleted)
	require.NoError(t, err)
	assert.Equal(t, entity.RequestStatusCompleted, done.Status)

	_, err = env.requests.AdvanceStatus(ctx, req.ID, entity.RequestStatusCancelled)
	assert.True(t, errors.Is(err, errors.CodeValidation))

	open, _, err = env.requests.ListOpenRequests(ctx, 10)
	require.NoError(t, err)
	assert.Empty(t, open)
}

func TestAcceptOffer_ConcurrentAcceptsOnlyOneWins(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	env.identity.set("c1", entity.RoleCustomer)
	req, err := env.requests.CreateRequest(ctx, validInput(), onePhoto())
	require.NoError(t, err)

	for _, ws := range []string{"ws1", "ws2"} {
		env.identity.set(ws, entity.RoleWorkshop)
		_, err := env.offers.SendOffer(ctx, req.ID, entity.OfferInput{Price: 300, Duration: 1})
		require.NoError(t, err)
	}

	env.identity.set("c1", entity.RoleCustomer)
	var wg sync.WaitGroup
	errs := make([]error, 2)
	for i, offerID := range []string{"ws1", "ws2"} {
		wg.Add(1)
		go func(i int, offerID string) {
			defer wg.Done()
			_, errs[i] = env.requests.AcceptOffer(ctx, req.ID, offerID)
		}(i, offerID)
	}
	wg.Wait()

	succeeded := 0
	for _, err := range errs {
		if err == nil {
			succeeded++
			continue
		}
		assert.True(t, errors.Is(err, errors.CodeConflict), "got %v", err)
	}
	assert.Equal(t, 1, succeeded)

	offers, _, err := env.offers.GetOffers(ctx, req.ID)
	require.NoError(t, err)
	accepted := 0
	for _, o := range offers {
		if o.Status == entity.OfferStatusAccepted {
			accepted++
		}
	}
	assert.Equal(t, 1, accepted)
}

func TestCancelRequest_Permissions(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	env.identity.set("c1", entity.RoleCustomer)
	req, err := env.requests.CreateRequest(ctx, validInput(), onePhoto())
	require.NoError(t, err)

	env.identity.set("c2", entity.RoleCustomer)
	_, err = env.requests.CancelRequest(ctx, req.ID)
	assert.True(t, errors.Is(err, errors.CodeWriteRejected))

	env.identity.set("", "")
	_, err = env.requests.CancelRequest(ctx, req.ID)
	assert.True(t, errors.Is(err, errors.CodeUnauthenticated))

	env.identity.set("c1", entity.RoleCustomer)
	cancelled, err := env.requests.CancelRequest(ctx, req.ID)
	require.NoError(t, err)
	assert.Equal(t, entity.RequestStatusCancelled, cancelled.Status)

	_, err = env.requests.CancelRequest(ctx, req.ID)
	assert.True(t, errors.Is(err, errors.CodeConflict))
}

func TestListOpenRequests_RequiresWorkshop(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	env.identity.set("c1", entity.RoleCustomer)
	_, _, err := env.requests.ListOpenRequests(ctx, 10)
	assert.True(t, errors.Is(err, errors.CodeWriteRejected))

	_, err = env.requests.SubscribeOpenRequests(ctx, 10, func([]*entity.Request) {})
	assert.True(t, errors.Is(err, errors.CodeWriteRejected))
}

func createAnonymous(t *testing.T, env *testEnv, n int) []string {
	t.Helper()
	env.identity.set("", "")
	ids := make([]string, 0, n)
	for i := 0; i < n; i++ {
		req, err := env.requests.CreateRequest(context.Background(), validInput(), onePhoto())
		require.NoError(t, err)
		ids = append(ids, req.ID)
	}
	return ids
}

func TestSyncLocalToRemote_AllSucceed(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	ids := createAnonymous(t, env, 3)

	env.identity.set("c1", entity.RoleCustomer)
	result, err := env.requests.SyncLocalToRemote(ctx)
	require.NoError(t, err)
	assert.Equal(t, SyncResult{Synced: 3, Failed: 0}, result)

	pending, err := env.local.PendingRequests(ctx)
	require.NoError(t, err)
	assert.Empty(t, pending)

	remote, err := env.remote.ListRequestsByCustomer(ctx, "c1")
	require.NoError(t, err)
	require.Len(t, remote, 3)
	for _, r := range remote {
		assert.Contains(t, ids, r.ID)
		assert.Equal(t, "c1", r.CustomerID)
		assert.NotNil(t, r.SyncedAt)
		assert.True(t, strings.HasPrefix(r.Photos[0], "https://storage.example.com/"))
	}
}

func TestSyncLocalToRemote_PartialFailureKeepsUnsynced(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	createAnonymous(t, env, 3)

	env.remoteStore.failNthCreate(repoimpl.CollectionRequests, 2)
	env.identity.set("c1", entity.RoleCustomer)
	result, err := env.requests.SyncLocalToRemote(ctx)
	require.NoError(t, err)
	assert.Equal(t, SyncResult{Synced: 2, Failed: 1}, result)

	pending, err := env.local.PendingRequests(ctx)
	require.NoError(t, err)
	require.Len(t, pending, 1)

	remote, err := env.remote.ListRequestsByCustomer(ctx, "c1")
	require.NoError(t, err)
	require.Len(t, remote, 2)
	for _, r := range remote {
		assert.NotEqual(t, pending[0].ID, r.ID)
	}

	// A retry picks up what was left behind.
	result, err = env.requests.SyncLocalToRemote(ctx)
	require.NoError(t, err)
	assert.Equal(t, SyncResult{Synced: 1, Failed: 0}, result)
}

func TestSyncLocalToRemote_RequiresIdentityAndRemote(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	_, err := env.requests.SyncLocalToRemote(ctx)
	assert.True(t, errors.Is(err, errors.CodeUnauthenticated))

	localOnly := NewRequestUseCase(SelectStrategy(ctx, nil, env.local, time.Second), env.identity, env.photos, 1)
	env.identity.set("c1", entity.RoleCustomer)
	_, err = localOnly.SyncLocalToRemote(ctx)
	assert.True(t, errors.Is(err, errors.CodeStoreUnavailable))
}

func TestSelectStrategy(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	s := SelectStrategy(ctx, nil, env.local, time.Second)
	assert.False(t, s.Remote())
	assert.Equal(t, "local", s.Primary.Name())
	assert.Nil(t, s.Fallback)

	env.remoteStore.setDown(true)
	s = SelectStrategy(ctx, env.remote, env.local, time.Second)
	assert.False(t, s.Remote())
	assert.Equal(t, "local", s.Primary.Name())

	env.remoteStore.setDown(false)
	s = SelectStrategy(ctx, env.remote, env.local, time.Second)
	assert.True(t, s.Remote())
	assert.Equal(t, "remote", s.Primary.Name())
	assert.Equal(t, "local", s.Fallback.Name())
}

func TestSubscribeMyRequests_FallsBackToLocalRead(t *testing.T) {
	env := newTestEnv(t)
	ids := createAnonymous(t, env, 1)

	env.identity.set("c1", entity.RoleCustomer)
	env.remoteStore.setDown(true)

	var got []*entity.Request
	unsubscribe := env.requests.SubscribeMyRequests(context.Background(), func(reqs []*entity.Request) {
		got = reqs
	})
	defer unsubscribe()

	require.Len(t, got, 1)
	assert.Equal(t, ids[0], got[0].ID)
}

func TestSubscribeMyRequests_LiveUpdates(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	env.identity.set("c1", entity.RoleCustomer)

	updates := make(chan []*entity.Request, 10)
	unsubscribe := env.requests.SubscribeMyRequests(ctx, func(reqs []*entity.Request) { updates <- reqs })
	defer unsubscribe()

	first := <-updates
	assert.Empty(t, first)

	created, err := env.requests.CreateRequest(ctx, validInput(), onePhoto())
	require.NoError(t, err)

	require.Eventually(t, func() bool {
		select {
		case reqs := <-updates:
			return len(reqs) == 1 && reqs[0].ID == created.ID
		default:
			return false
		}
	}, 2*time.Second, 10*time.Millisecond)
}
