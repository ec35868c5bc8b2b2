package middleware

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/require"

	pkgerrors "github.com/angelmondragon/spoolhub-backend/pkg/errors"
)

type fakeStore struct {
	data map[string]string
}

func newFakeStore() *fakeStore {
	return &fakeStore{data: make(map[string]string)}
}

func (f *fakeStore) Get(_ context.Context, key string) (string, error) {
	if v, ok := f.data[key]; ok {
		return v, nil
	}
	return "", redis.Nil
}

func (f *fakeStore) SetNX(_ context.Context, key string, value any, _ time.Duration) (bool, error) {
	if _, ok := f.data[key]; ok {
		return false, nil
	}
	f.data[key] = fmt.Sprint(value)
	return true, nil
}

func (f *fakeStore) Del(_ context.Context, keys ...string) error {
	for _, key := range keys {
		delete(f.data, key)
	}
	return nil
}

func (f *fakeStore) IdempotencyKey(scope, id string) string {
	return fmt.Sprintf("fake:%s:%s", scope, id)
}

func idemRequest(path, key, body string) *http.Request {
	req := httptest.NewRequest(http.MethodPost, path, strings.NewReader(body))
	if key != "" {
		req.Header.Set(idempotencyHeader, key)
	}
	return req
}

func errorCode(t *testing.T, rec *httptest.ResponseRecorder) string {
	t.Helper()
	var payload struct {
		Error struct {
			Code string `json:"code"`
		} `json:"error"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &payload))
	return payload.Error.Code
}

func TestRouteTTL(t *testing.T) {
	tests := []struct {
		method string
		path   string
		want   time.Duration
		ok     bool
	}{
		{http.MethodPost, "/api/v1/uploads/bulk", criticalIdempotencyTTL, true},
		{http.MethodPost, "/api/v1/uploads/sessions", defaultIdempotencyTTL, true},
		{http.MethodPost, "/api/v1/uploads/pending/imported", defaultIdempotencyTTL, true},
		{http.MethodPost, "/api/v1/uploads/sessions/abc/process", 0, false},
		{http.MethodGet, "/api/v1/uploads/sessions", 0, false},
	}
	for _, tt := range tests {
		ttl, ok := routeTTL(tt.method, tt.path)
		require.Equal(t, tt.ok, ok, "%s %s", tt.method, tt.path)
		require.Equal(t, tt.want, ttl, "%s %s", tt.method, tt.path)
	}
}

func TestRequestPathTrimsTrailingSlash(t *testing.T) {
	require.Equal(t, "/api/v1/uploads/sessions", requestPath(httptest.NewRequest(http.MethodPost, "/api/v1/uploads/sessions/", nil)))
	require.Equal(t, "/", requestPath(httptest.NewRequest(http.MethodGet, "/", nil)))
}

func TestIdempotencyRejectsBadKeys(t *testing.T) {
	mw := Idempotency(newFakeStore(), nil)
	handler := http.HandlerFunc(func(http.ResponseWriter, *http.Request) {
		t.Fatal("handler must not run")
	})

	for _, key := range []string{"", "has space", strings.Repeat("k", maxIdempotencyKeyLen+1)} {
		req := idemRequest("/api/v1/uploads/sessions", "", `{}`)
		if key != "" {
			req.Header.Set(idempotencyHeader, key)
		}
		rec := httptest.NewRecorder()
		mw(handler).ServeHTTP(rec, req)
		require.Equal(t, http.StatusBadRequest, rec.Code, "key %q", key)
		require.Equal(t, string(pkgerrors.CodeValidation), errorCode(t, rec))
	}
}

func TestIdempotencyReplaysStoredResponse(t *testing.T) {
	store := newFakeStore()
	mw := Idempotency(store, nil)
	var calls int
	handler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls++
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusCreated)
		_, _ = w.Write([]byte(`{"data":{"token":"t1"}}`))
	})

	first := httptest.NewRecorder()
	mw(handler).ServeHTTP(first, idemRequest("/api/v1/uploads/sessions", "abc", `{}`))
	require.Equal(t, http.StatusCreated, first.Code)

	replayed := httptest.NewRecorder()
	mw(handler).ServeHTTP(replayed, idemRequest("/api/v1/uploads/sessions", "abc", `{}`))
	require.Equal(t, http.StatusCreated, replayed.Code)
	require.Equal(t, "application/json", replayed.Header().Get("Content-Type"))
	require.Equal(t, "true", replayed.Header().Get("Idempotent-Replayed"))
	require.Equal(t, `{"data":{"token":"t1"}}`, replayed.Body.String())
	require.Equal(t, 1, calls)

	for key := range store.data {
		require.False(t, strings.HasSuffix(key, ":inflight"), "reservation should be released")
	}
}

func TestIdempotencyDetectsBodyChange(t *testing.T) {
	mw := Idempotency(newFakeStore(), nil)
	handler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	})

	mw(handler).ServeHTTP(httptest.NewRecorder(), idemRequest("/api/v1/uploads/pending/imported", "xyz", `{"ids":["a"]}`))

	rec := httptest.NewRecorder()
	mw(handler).ServeHTTP(rec, idemRequest("/api/v1/uploads/pending/imported", "xyz", `{"ids":["b"]}`))
	require.Equal(t, http.StatusConflict, rec.Code)
	require.Equal(t, string(pkgerrors.CodeIdempotency), errorCode(t, rec))
}

func TestIdempotencyRejectsConcurrentDuplicate(t *testing.T) {
	store := newFakeStore()
	mw := Idempotency(store, nil)
	req := idemRequest("/api/v1/uploads/bulk", "dup", "payload")
	store.data[store.IdempotencyKey(buildScope(req), "dup")+":inflight"] = "other"

	rec := httptest.NewRecorder()
	mw(http.HandlerFunc(func(http.ResponseWriter, *http.Request) {
		t.Fatal("handler must not run while the key is reserved")
	})).ServeHTTP(rec, req)

	require.Equal(t, http.StatusConflict, rec.Code)
	require.Equal(t, string(pkgerrors.CodeConflict), errorCode(t, rec))
}

func TestIdempotencySkipsServerErrors(t *testing.T) {
	mw := Idempotency(newFakeStore(), nil)
	var calls int
	handler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls++
		if calls == 1 {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		w.WriteHeader(http.StatusCreated)
	})

	for i := 0; i < 2; i++ {
		mw(handler).ServeHTTP(httptest.NewRecorder(), idemRequest("/api/v1/uploads/bulk", "retry-me", "payload"))
	}
	require.Equal(t, 2, calls)
}

func TestIdempotencyDropsCorruptRecord(t *testing.T) {
	store := newFakeStore()
	mw := Idempotency(store, nil)
	var calls int
	handler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls++
		w.WriteHeader(http.StatusCreated)
	})

	req := idemRequest("/api/v1/uploads/sessions", "corrupt", `{}`)
	store.data[store.IdempotencyKey(buildScope(req), "corrupt")] = "not-json"

	rec := httptest.NewRecorder()
	mw(handler).ServeHTTP(rec, req)
	require.Equal(t, http.StatusCreated, rec.Code)
	require.Equal(t, 1, calls)
}

func TestIdempotencyIgnoresOtherRoutes(t *testing.T) {
	var called bool
	mw := Idempotency(newFakeStore(), nil)
	rec := httptest.NewRecorder()
	mw(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		called = true
		w.WriteHeader(http.StatusAccepted)
	})).ServeHTTP(rec, idemRequest("/api/v1/uploads/sessions/abc/process", "", ""))
	require.True(t, called)
	require.Equal(t, http.StatusAccepted, rec.Code)
}
