package handler

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"schadenschat/internal/adapter/api/middleware"
	repoimpl "schadenschat/internal/adapter/repository"
	"schadenschat/internal/infrastructure/docstore"
	"schadenschat/internal/infrastructure/firebase"
	"schadenschat/internal/infrastructure/ratelimit"
	"schadenschat/internal/usecase"
)

type staticVerifier map[string]string

func (v staticVerifier) VerifyToken(ctx context.Context, token string) (*firebase.VerifiedToken, error) {
	if uid, ok := v[token]; ok {
		return &firebase.VerifiedToken{UID: uid, Role: "workshop"}, nil
	}
	return nil, fmt.Errorf("bad token")
}

const testVapidKey = "BPk3-test-public-key"

type callableReply struct {
	Result map[string]interface{} `json:"result"`
	Error  *callableError         `json:"error"`
}

func newCallableServer(t *testing.T, limits map[string]ratelimit.Limit) (*echo.Echo, docstore.Store) {
	t.Helper()
	store := docstore.NewMemoryStore()
	t.Cleanup(func() { store.Close() })

	h := NewCallableHandler(
		usecase.NewWorkshopUseCase(repoimpl.NewWorkshopRepository(store)),
		usecase.NewPushUseCase(repoimpl.NewPushRegistrationRepository(store), nil),
		ratelimit.NewRateLimiter(limits),
		testVapidKey,
	)
	auth := middleware.NewAuthMiddleware(staticVerifier{"good": "ws1"})

	e := echo.New()
	group := e.Group("/v1/callable")
	group.Use(auth.Optional)
	group.POST("/:name", h.Call)
	e.GET("/v1/vapid-public-key", h.GetVapidPublicKey)
	return e, store
}

func call(t *testing.T, e *echo.Echo, name, token string, data interface{}) (int, callableReply) {
	t.Helper()
	raw, err := json.Marshal(map[string]interface{}{"data": data})
	require.NoError(t, err)

	req := httptest.NewRequest(http.MethodPost, "/v1/callable/"+name, strings.NewReader(string(raw)))
	req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, req)

	var reply callableReply
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &reply), rec.Body.String())
	return rec.Code, reply
}

func TestCallable_RegisterWorkshop(t *testing.T) {
	e, store := newCallableServer(t, nil)
	profile := map[string]string{"name": "Autohaus Nord", "address": "Hauptstr. 1", "phone": "+4940123456", "zipPrefix": "10"}

	status, reply := call(t, e, "registerWorkshop", "", profile)
	assert.Equal(t, http.StatusUnauthorized, status)
	require.NotNil(t, reply.Error)
	assert.Equal(t, CallableUnauthenticated, reply.Error.Status)

	status, reply = call(t, e, "registerWorkshop", "forged", profile)
	assert.Equal(t, http.StatusUnauthorized, status)

	status, reply = call(t, e, "registerWorkshop", "good", map[string]string{"name": " "})
	assert.Equal(t, http.StatusBadRequest, status)
	assert.Equal(t, CallableInvalidArgument, reply.Error.Status)

	status, reply = call(t, e, "registerWorkshop", "good", profile)
	require.Equal(t, http.StatusOK, status)
	assert.Equal(t, true, reply.Result["success"])
	assert.Equal(t, "ws1", reply.Result["workshopId"])

	doc, err := store.Get(context.Background(), repoimpl.CollectionWorkshops, "ws1")
	require.NoError(t, err)
	assert.Equal(t, "Autohaus Nord", doc.String("name"))
}

func TestCallable_PushTokens(t *testing.T) {
	e, _ := newCallableServer(t, nil)

	status, reply := call(t, e, "registerPushToken", "", map[string]string{"userId": "c1"})
	assert.Equal(t, http.StatusBadRequest, status)
	assert.Equal(t, CallableInvalidArgument, reply.Error.Status)

	status, reply = call(t, e, "registerPushToken", "", map[string]string{"userId": "c1", "token": "tok-1", "platform": "web"})
	require.Equal(t, http.StatusOK, status)
	assert.Equal(t, true, reply.Result["success"])

	status, reply = call(t, e, "deletePushToken", "", map[string]string{"token": "tok-1"})
	require.Equal(t, http.StatusOK, status)
	assert.Equal(t, true, reply.Result["success"])

	status, reply = call(t, e, "launchRocket", "", nil)
	assert.Equal(t, http.StatusNotFound, status)
	assert.Equal(t, CallableNotFound, reply.Error.Status)
}

func TestCallable_RateLimited(t *testing.T) {
	e, _ := newCallableServer(t, map[string]ratelimit.Limit{
		ratelimit.ActionCallable: {Every: time.Hour, Burst: 2},
	})

	for i := 0; i < 2; i++ {
		status, _ := call(t, e, "deletePushToken", "", map[string]string{"token": "nope"})
		require.Equal(t, http.StatusOK, status)
	}
	status, reply := call(t, e, "deletePushToken", "", map[string]string{"token": "nope"})
	assert.Equal(t, http.StatusTooManyRequests, status)
	assert.Equal(t, CallableResourceExhausted, reply.Error.Status)
}

func TestCallable_GetVapidPublicKey(t *testing.T) {
	e, _ := newCallableServer(t, nil)

	status, reply := call(t, e, "getVapidPublicKey", "", nil)
	require.Equal(t, http.StatusOK, status)
	assert.Equal(t, testVapidKey, reply.Result["vapidPublicKey"])

	req := httptest.NewRequest(http.MethodGet, "/v1/vapid-public-key", nil)
	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, req)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"vapidPublicKey":"`+testVapidKey+`"}`, rec.Body.String())
}

func TestCallable_GetVapidPublicKeyUnset(t *testing.T) {
	store := docstore.NewMemoryStore()
	t.Cleanup(func() { store.Close() })
	h := NewCallableHandler(
		usecase.NewWorkshopUseCase(repoimpl.NewWorkshopRepository(store)),
		usecase.NewPushUseCase(repoimpl.NewPushRegistrationRepository(store), nil),
		nil,
		"",
	)
	e := echo.New()
	e.POST("/v1/callable/:name", h.Call)

	status, reply := call(t, e, "getVapidPublicKey", "", nil)
	assert.Equal(t, http.StatusInternalServerError, status)
	require.NotNil(t, reply.Error)
	assert.Equal(t, CallableInternal, reply.Error.Status)
}
