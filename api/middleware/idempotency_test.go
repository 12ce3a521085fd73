package middleware

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/require"

	pkgerrors "github.com/emberandwick/storefront-backend/pkg/errors"
)

type fakeStore struct {
	data map[string]string
	ttls map[string]time.Duration
}

func newFakeStore() *fakeStore {
	return &fakeStore{data: map[string]string{}, ttls: map[string]time.Duration{}}
}

func (f *fakeStore) Get(_ context.Context, key string) (string, error) {
	if v, ok := f.data[key]; ok {
		return v, nil
	}
	return "", redis.Nil
}

func (f *fakeStore) SetNX(_ context.Context, key string, value any, ttl time.Duration) (bool, error) {
	if _, ok := f.data[key]; ok {
		return false, nil
	}
	f.data[key] = value.(string)
	f.ttls[key] = ttl
	return true, nil
}

func (f *fakeStore) Set(_ context.Context, key string, value any, ttl time.Duration) error {
	f.data[key] = value.(string)
	f.ttls[key] = ttl
	return nil
}

func (f *fakeStore) Del(_ context.Context, keys ...string) error {
	for _, key := range keys {
		delete(f.data, key)
	}
	return nil
}

func (f *fakeStore) IdempotencyKey(scope, id string) string {
	return "fake:" + scope + ":" + id
}

func checkoutRequest(key, body string) *http.Request {
	req := httptest.NewRequest(http.MethodPost, "/api/v1/checkout", strings.NewReader(body))
	req = req.WithContext(WithBasketSession(req.Context(), "sess-1"))
	if key != "" {
		req.Header.Set(IdempotencyKeyHeader, key)
	}
	return req
}

func errorCode(t *testing.T, resp *httptest.ResponseRecorder) string {
	t.Helper()
	var payload struct {
		Error struct {
			Code string `json:"code"`
		} `json:"error"`
	}
	require.NoError(t, json.Unmarshal(resp.Body.Bytes(), &payload))
	return payload.Error.Code
}

func TestIdempotencyPassesThroughWithoutKey(t *testing.T) {
	store := newFakeStore()
	calls := 0
	handler := Idempotency(store, time.Hour, nil)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls++
		w.WriteHeader(http.StatusCreated)
	}))

	for i := 0; i < 2; i++ {
		resp := httptest.NewRecorder()
		handler.ServeHTTP(resp, checkoutRequest("", `{"email":"jo@example.com"}`))
		require.Equal(t, http.StatusCreated, resp.Code)
	}
	require.Equal(t, 2, calls)
	require.Empty(t, store.data)
}

func TestIdempotencyReplaysStoredResponse(t *testing.T) {
	store := newFakeStore()
	calls := 0
	handler := Idempotency(store, 2*time.Hour, nil)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls++
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusAccepted)
		_, _ = w.Write([]byte(`{"ok":true}`))
	}))

	first := httptest.NewRecorder()
	handler.ServeHTTP(first, checkoutRequest("abc", `{"foo":"bar"}`))
	require.Equal(t, http.StatusAccepted, first.Code)
	require.Empty(t, first.Header().Get(IdempotentReplayHeader))

	replay := httptest.NewRecorder()
	handler.ServeHTTP(replay, checkoutRequest("abc", `{"foo":"bar"}`))
	require.Equal(t, http.StatusAccepted, replay.Code)
	require.Equal(t, "application/json", replay.Header().Get("Content-Type"))
	require.Equal(t, "true", replay.Header().Get(IdempotentReplayHeader))
	require.Equal(t, `{"ok":true}`, replay.Body.String())
	require.Equal(t, 1, calls)
	require.Equal(t, 2*time.Hour, store.ttls["fake:session:sess-1:abc"])
}

func TestIdempotencyReleasesKeyOnServerError(t *testing.T) {
	store := newFakeStore()
	calls := 0
	handler := Idempotency(store, time.Hour, nil)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls++
		w.WriteHeader(http.StatusServiceUnavailable)
	}))

	for i := 0; i < 2; i++ {
		handler.ServeHTTP(httptest.NewRecorder(), checkoutRequest("retry-me", `{}`))
	}
	require.Equal(t, 2, calls, "a failed attempt must not block the retry")
	require.Empty(t, store.data)
}

func TestIdempotencyRejectsConcurrentDuplicate(t *testing.T) {
	store := newFakeStore()
	store.data["fake:session:sess-1:busy"] = inFlightMarker
	calls := 0
	handler := Idempotency(store, time.Hour, nil)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls++
	}))

	resp := httptest.NewRecorder()
	handler.ServeHTTP(resp, checkoutRequest("busy", `{}`))
	require.Equal(t, http.StatusConflict, resp.Code)
	require.Equal(t, string(pkgerrors.CodeConflict), errorCode(t, resp))
	require.Zero(t, calls)
}

func TestIdempotencyDetectsBodyChange(t *testing.T) {
	store := newFakeStore()
	handler := Idempotency(store, time.Hour, nil)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))

	handler.ServeHTTP(httptest.NewRecorder(), checkoutRequest("xyz", `{"foo":"bar"}`))
	resp := httptest.NewRecorder()
	handler.ServeHTTP(resp, checkoutRequest("xyz", `{"foo":"diff"}`))
	require.Equal(t, http.StatusConflict, resp.Code)
	require.Equal(t, string(pkgerrors.CodeConflict), errorCode(t, resp))
}

func TestIdempotencyScopesKeysPerCaller(t *testing.T) {
	store := newFakeStore()
	calls := 0
	handler := Idempotency(store, time.Hour, nil)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls++
		w.WriteHeader(http.StatusOK)
	}))

	handler.ServeHTTP(httptest.NewRecorder(), checkoutRequest("shared", `{}`))
	other := httptest.NewRequest(http.MethodPost, "/api/v1/checkout", strings.NewReader(`{}`))
	other = other.WithContext(WithBasketSession(other.Context(), "sess-2"))
	other.Header.Set(IdempotencyKeyHeader, "shared")
	handler.ServeHTTP(httptest.NewRecorder(), other)

	require.Equal(t, 2, calls)
	require.Len(t, store.data, 2)
}

func TestIdempotencyIgnoresSafeMethodsAndLongKeys(t *testing.T) {
	store := newFakeStore()
	handler := Idempotency(store, time.Hour, nil)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))

	get := httptest.NewRequest(http.MethodGet, "/api/v1/checkout/status", nil)
	get.Header.Set(IdempotencyKeyHeader, "k")
	handler.ServeHTTP(httptest.NewRecorder(), get)
	require.Empty(t, store.data)

	resp := httptest.NewRecorder()
	handler.ServeHTTP(resp, checkoutRequest(strings.Repeat("k", maxIdempotencyKeyLength+1), `{}`))
	require.Equal(t, http.StatusBadRequest, resp.Code)
}
