package lock

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gorilla/mux"
	"github.com/stretchr/testify/require"

	"github.com/arcadia-hq/arcadia-sdk/pkg/configuration"
	"github.com/arcadia-hq/arcadia-sdk/pkg/kvstore"
)

func newLockedRouter(t *testing.T, locker *Locker, cfg Config, handler http.HandlerFunc) *mux.Router {
	t.Helper()
	router := mux.NewRouter()
	sub := router.PathPrefix("/orders").Subrouter()
	sub.Use(Middleware(locker, cfg))
	sub.HandleFunc("/{id}", handler).Methods(http.MethodPost)
	return router
}

func TestMiddleware_SecondCallerConflicts(t *testing.T) {
	store := kvstore.NewMemoryStore()
	locker := NewLocker(store, Options{PollInterval: 5 * time.Millisecond})

	release := make(chan struct{})
	entered := make(chan struct{})
	var enteredOnce sync.Once
	router := newLockedRouter(t, locker, Config{Key: "order:{params.id}", Wait: NoWait}, func(w http.ResponseWriter, _ *http.Request) {
		enteredOnce.Do(func() { close(entered) })
		<-release
		w.WriteHeader(http.StatusOK)
	})

	firstDone := make(chan *httptest.ResponseRecorder)
	go func() {
		rr := httptest.NewRecorder()
		router.ServeHTTP(rr, httptest.NewRequest(http.MethodPost, "http://example.com/orders/42", nil))
		firstDone <- rr
	}()

	<-entered

	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, httptest.NewRequest(http.MethodPost, "http://example.com/orders/42", nil))
	require.Equal(t, http.StatusConflict, rr.Code)

	var envelope map[string]any
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &envelope))
	require.Equal(t, "LOCK_CONFLICT", envelope["code"])

	close(release)
	require.Equal(t, http.StatusOK, (<-firstDone).Code)

	// Lock is free again after the first handler completed.
	rr = httptest.NewRecorder()
	router.ServeHTTP(rr, httptest.NewRequest(http.MethodPost, "http://example.com/orders/42", nil))
	require.Equal(t, http.StatusOK, rr.Code)
}

func TestMiddleware_DistinctKeysDoNotContend(t *testing.T) {
	store := kvstore.NewMemoryStore()
	locker := NewLocker(store, Options{PollInterval: 5 * time.Millisecond})

	release := make(chan struct{})
	entered := make(chan struct{})
	router := newLockedRouter(t, locker, Config{Key: "order:{params.id}"}, func(w http.ResponseWriter, r *http.Request) {
		if mux.Vars(r)["id"] == "1" {
			close(entered)
			<-release
		}
		w.WriteHeader(http.StatusOK)
	})

	go func() {
		rr := httptest.NewRecorder()
		router.ServeHTTP(rr, httptest.NewRequest(http.MethodPost, "http://example.com/orders/1", nil))
	}()
	<-entered
	defer close(release)

	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, httptest.NewRequest(http.MethodPost, "http://example.com/orders/2", nil))
	require.Equal(t, http.StatusOK, rr.Code)
}

func TestMiddleware_ReleasesOnPanic(t *testing.T) {
	store := kvstore.NewMemoryStore()
	locker := NewLocker(store, Options{PollInterval: 5 * time.Millisecond})

	calls := 0
	router := newLockedRouter(t, locker, Config{Key: "order:{params.id}"}, func(w http.ResponseWriter, _ *http.Request) {
		calls++
		if calls == 1 {
			panic("handler exploded")
		}
		w.WriteHeader(http.StatusOK)
	})

	require.Panics(t, func() {
		rr := httptest.NewRecorder()
		router.ServeHTTP(rr, httptest.NewRequest(http.MethodPost, "http://example.com/orders/9", nil))
	})

	// The defer must have released the lock despite the panic.
	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, httptest.NewRequest(http.MethodPost, "http://example.com/orders/9", nil))
	require.Equal(t, http.StatusOK, rr.Code)
}

func TestMiddleware_UnresolvedKeyRejected(t *testing.T) {
	store := kvstore.NewMemoryStore()
	locker := NewLocker(store, Options{PollInterval: 5 * time.Millisecond})

	handlerCalled := false
	router := mux.NewRouter()
	sub := router.PathPrefix("/orders").Subrouter()
	sub.Use(Middleware(locker, Config{Key: "order:{body.id}", Wait: NoWait}))
	sub.HandleFunc("", func(w http.ResponseWriter, _ *http.Request) {
		handlerCalled = true
		w.WriteHeader(http.StatusOK)
	}).Methods(http.MethodPost)

	rr := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "http://example.com/orders", strings.NewReader(`{"name":"no id field"}`))
	router.ServeHTTP(rr, req)

	require.Equal(t, http.StatusBadRequest, rr.Code)
	require.False(t, handlerCalled)

	var envelope map[string]any
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &envelope))
	require.Equal(t, "LOCK_BAD_REQUEST", envelope["code"])
}

func TestConfig_DefaultsFromConfiguration(t *testing.T) {
	conf := configuration.Use()

	cfg := Config{Key: "order:{params.id}"}
	cfg.setDefaults()
	require.Equal(t, conf.Lock.DefaultWait, cfg.Wait)
	require.Equal(t, conf.Lock.DefaultLease, cfg.Lease)

	immediate := Config{Key: "order:{params.id}", Wait: NoWait}
	immediate.setDefaults()
	require.Equal(t, time.Duration(0), immediate.Wait)
}

func TestOptions_PollIntervalFromConfiguration(t *testing.T) {
	var opts Options
	opts.setDefaults()
	require.Equal(t, configuration.Use().Lock.PollInterval, opts.PollInterval)
}
