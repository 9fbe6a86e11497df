package middleware

import (
	"bytes"
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"

	"github.com/cassiomorais/checkout/internal/repository/postgres"
	"github.com/stretchr/testify/assert"
)

type memoryStore struct {
	mu      sync.Mutex
	entries map[string]*postgres.StoredResponse
	getErr  error
}

func newMemoryStore() *memoryStore {
	return &memoryStore{entries: make(map[string]*postgres.StoredResponse)}
}

func (s *memoryStore) Get(_ context.Context, key string) (*postgres.StoredResponse, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.getErr != nil {
		return nil, s.getErr
	}
	return s.entries[key], nil
}

func (s *memoryStore) Save(_ context.Context, key string, status int, body string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.entries[key] = &postgres.StoredResponse{Key: key, Status: status, Body: body}
	return nil
}

func countingHandler(calls *int, status int, body []byte) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		*calls++
		w.WriteHeader(status)
		w.Write(body)
	})
}

func TestIdempotency_NoKey_PassThrough(t *testing.T) {
	store := newMemoryStore()
	var calls int
	handler := Idempotency(store)(countingHandler(&calls, http.StatusOK, []byte(`{"ok":true}`)))

	for range 2 {
		w := httptest.NewRecorder()
		handler.ServeHTTP(w, httptest.NewRequest(http.MethodPost, "/pay", nil))
		assert.Equal(t, http.StatusOK, w.Code)
	}
	assert.Equal(t, 2, calls)
	assert.Empty(t, store.entries)
}

func TestIdempotency_ReplaysStoredResponse(t *testing.T) {
	store := newMemoryStore()
	var calls int
	handler := Idempotency(store)(countingHandler(&calls, http.StatusPaymentRequired, []byte(`{"result":"failure"}`)))

	send := func(path string) *httptest.ResponseRecorder {
		req := httptest.NewRequest(http.MethodPost, path, nil)
		req.Header.Set("Idempotency-Key", "abc")
		w := httptest.NewRecorder()
		handler.ServeHTTP(w, req)
		return w
	}

	first := send("/orders/1/payment")
	second := send("/orders/1/payment")

	assert.Equal(t, 1, calls)
	assert.Equal(t, http.StatusPaymentRequired, second.Code)
	assert.Equal(t, first.Body.String(), second.Body.String())
	assert.Equal(t, "true", second.Header().Get("X-Idempotency-Replayed"))

	// Same key on another order is a different request.
	send("/orders/2/payment")
	assert.Equal(t, 2, calls)
}

func TestIdempotency_ServerErrorsAreNotStored(t *testing.T) {
	store := newMemoryStore()
	var calls int
	handler := Idempotency(store)(countingHandler(&calls, http.StatusBadGateway, []byte(`{}`)))

	req := httptest.NewRequest(http.MethodPost, "/pay", nil)
	req.Header.Set("Idempotency-Key", "abc")
	handler.ServeHTTP(httptest.NewRecorder(), req)

	assert.Empty(t, store.entries)
}

func TestIdempotency_StoreErrorFallsThrough(t *testing.T) {
	store := newMemoryStore()
	store.getErr = errors.New("db down")
	var calls int
	handler := Idempotency(store)(countingHandler(&calls, http.StatusOK, []byte(`{}`)))

	req := httptest.NewRequest(http.MethodPost, "/pay", nil)
	req.Header.Set("Idempotency-Key", "abc")
	w := httptest.NewRecorder()
	handler.ServeHTTP(w, req)

	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, 1, calls)
}

func TestIdempotency_LargeBodyNotStored(t *testing.T) {
	store := newMemoryStore()
	var calls int
	large := bytes.Repeat([]byte("x"), maxIdempotencyBodySize+100)
	handler := Idempotency(store)(countingHandler(&calls, http.StatusOK, large))

	req := httptest.NewRequest(http.MethodPost, "/pay", nil)
	req.Header.Set("Idempotency-Key", "big")
	w := httptest.NewRecorder()
	handler.ServeHTTP(w, req)

	assert.Equal(t, len(large), w.Body.Len())
	assert.Empty(t, store.entries)
}
