package usecase

import (
	"context"
	"encoding/base64"
	"fmt"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	repoimpl "schadenschat/internal/adapter/repository"
	"schadenschat/internal/domain/entity"
	"schadenschat/internal/infrastructure/docstore"
	"schadenschat/internal/infrastructure/firebase"
	"schadenschat/internal/infrastructure/localstore"
	"schadenschat/pkg/errors"
)

var fixedNow = time.Date(2024, 6, 1, 12, 0, 0, 0, time.UTC)

var inlinePhoto = "data:image/jpeg;base64," + base64.StdEncoding.EncodeToString([]byte("jpeg-bytes"))

type stubIdentity struct {
	mu       sync.Mutex
	identity *entity.Identity
}

func (s *stubIdentity) set(id string, role entity.Role) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if id == "" {
		s.identity = nil
		return
	}
	s.identity = &entity.Identity{ID: id, Role: role}
}

func (s *stubIdentity) GetCurrentIdentity() *entity.Identity {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.identity == nil {
		return nil
	}
	identity := *s.identity
	return &identity
}

func (s *stubIdentity) RequireIdentity() (*entity.Identity, error) {
	identity := s.GetCurrentIdentity()
	if identity == nil {
		return nil, errors.Unauthenticated("Please sign in first")
	}
	return identity, nil
}

// flakyStore fails like an unreachable backend while down, and can fail
// selected creates on one collection.
type flakyStore struct {
	docstore.Store

	mu           sync.Mutex
	down         bool
	failCreates  map[int]bool
	createsSeen  int
	createTarget string
}

func (f *flakyStore) setDown(down bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.down = down
}

// failNthCreate makes the n-th create (1-based) on collection fail.
func (f *flakyStore) failNthCreate(collection string, n int) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.createTarget = collection
	if f.failCreates == nil {
		f.failCreates = make(map[int]bool)
	}
	f.failCreates[n] = true
}

func (f *flakyStore) unavailable() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.down {
		return errors.StoreUnavailable("backend down", nil)
	}
	return nil
}

func (f *flakyStore) Create(ctx context.Context, collection, id string, data interface{}) (string, error) {
	if err := f.unavailable(); err != nil {
		return "", err
	}
	f.mu.Lock()
	fail := false
	if collection == f.createTarget {
		f.createsSeen++
		fail = f.failCreates[f.createsSeen]
	}
	f.mu.Unlock()
	if fail {
		return "", errors.StoreUnavailable("write timed out", nil)
	}
	return f.Store.Create(ctx, collection, id, data)
}

func (f *flakyStore) Set(ctx context.Context, collection, id string, data interface{}) error {
	if err := f.unavailable(); err != nil {
		return err
	}
	return f.Store.Set(ctx, collection, id, data)
}

func (f *flakyStore) Get(ctx context.Context, collection, id string) (*docstore.Document, error) {
	if err := f.unavailable(); err != nil {
		return nil, err
	}
	return f.Store.Get(ctx, collection, id)
}

func (f *flakyStore) Query(ctx context.Context, q docstore.Query) docstore.Iterator {
	if err := f.unavailable(); err != nil {
		return errIterator{err: err}
	}
	return f.Store.Query(ctx, q)
}

func (f *flakyStore) Update(ctx context.Context, collection, id string, updates []docstore.Update) error {
	if err := f.unavailable(); err != nil {
		return err
	}
	return f.Store.Update(ctx, collection, id, updates)
}

func (f *flakyStore) Delete(ctx context.Context, collection, id string) error {
	if err := f.unavailable(); err != nil {
		return err
	}
	return f.Store.Delete(ctx, collection, id)
}

func (f *flakyStore) BatchWrite(ctx context.Context, ops []docstore.Op) error {
	if err := f.unavailable(); err != nil {
		return err
	}
	return f.Store.BatchWrite(ctx, ops)
}

func (f *flakyStore) Subscribe(ctx context.Context, q docstore.Query, onChange func(docstore.Snapshot), onError func(error)) func() {
	if err := f.unavailable(); err != nil {
		onError(err)
		return func() {}
	}
	return f.Store.Subscribe(ctx, q, onChange, onError)
}

func (f *flakyStore) Ping(ctx context.Context) error {
	if err := f.unavailable(); err != nil {
		return err
	}
	return f.Store.Ping(ctx)
}

type errIterator struct {
	err error
}

func (i errIterator) Next() (*docstore.Document, error) { return nil, i.err }
func (i errIterator) Stop()                             {}

type fakePhotoStore struct {
	mu      sync.Mutex
	failing map[int]bool
	uploads []string
}

func (f *fakePhotoStore) Upload(ctx context.Context, objectName string, data []byte, contentType string) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for i := range f.failing {
		if strings.Contains(objectName, fmt.Sprintf("/photo_%d_", i)) {
			return "", errors.StoreUnavailable("bucket unreachable", nil)
		}
	}
	f.uploads = append(f.uploads, objectName)
	return "https://storage.example.com/" + objectName, nil
}

type mockPushSender struct {
	mock.Mock
}

func (m *mockPushSender) SendMulticast(ctx context.Context, tokens []string, payload entity.PushPayload) ([]entity.SendResult, error) {
	args := m.Called(ctx, tokens, payload)
	results, _ := args.Get(0).([]entity.SendResult)
	return results, args.Error(1)
}

func (m *mockPushSender) Validate(ctx context.Context, token string) (bool, error) {
	args := m.Called(ctx, token)
	return args.Bool(0), args.Error(1)
}

type mockTokenVerifier struct {
	mock.Mock
}

func (m *mockTokenVerifier) VerifyToken(ctx context.Context, token string) (*firebase.VerifiedToken, error) {
	args := m.Called(ctx, token)
	verified, _ := args.Get(0).(*firebase.VerifiedToken)
	return verified, args.Error(1)
}

type testEnv struct {
	remoteStore *flakyStore
	remote      *repoimpl.RemoteRepository
	local       *repoimpl.LocalRepository
	localStore  *localstore.Store
	keys        localstore.Keys
	strategy    *Strategy
	identity    *stubIdentity
	photos      *fakePhotoStore
	requests    *RequestUseCase
	offers      *OfferUseCase
	messages    *MessageUseCase
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()

	memory := docstore.NewMemoryStore()
	t.Cleanup(func() { memory.Close() })
	remoteStore := &flakyStore{Store: memory}

	store, err := localstore.Open(filepath.Join(t.TempDir(), "local.db"))
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })
	keys := localstore.Keys{App: "schadens-chat"}

	env := &testEnv{
		remoteStore: remoteStore,
		remote:      repoimpl.NewRemoteRepository(remoteStore),
		local:       repoimpl.NewLocalRepository(store, keys),
		localStore:  store,
		keys:        keys,
		identity:    &stubIdentity{},
		photos:      &fakePhotoStore{},
	}
	env.strategy = SelectStrategy(context.Background(), env.remote, env.local, time.Second)
	require.True(t, env.strategy.Remote())

	env.requests = NewRequestUseCase(env.strategy, env.identity, env.photos, 2)
	env.offers = NewOfferUseCase(env.strategy, env.identity)
	env.messages = NewMessageUseCase(env.strategy, env.identity)
	return env
}

func validInput() entity.RequestInput {
	return entity.RequestInput{
		DamageType:     "dent",
		DamageLocation: "front-left",
		Description:    "Parkplatzschaden",
		Vehicle:        entity.Vehicle{Plate: "B-XY 123", Brand: "VW", Model: "Golf", Year: "2019", Color: "blau"},
		Location:       entity.Location{Lat: 52.52, Lng: 13.40, Zip: "10115", Radius: 25},
		Contact:        entity.Contact{Name: "Max", Phone: "+491701234567"},
	}
}

func onePhoto() []entity.PhotoInput {
	return []entity.PhotoInput{{Data: inlinePhoto}}
}

// ticking returns a clock that advances one second per call.
func ticking(start time.Time) func() time.Time {
	var mu sync.Mutex
	next := start
	return func() time.Time {
		mu.Lock()
		defer mu.Unlock()
		now := next
		next = next.Add(time.Second)
		return now
	}
}
