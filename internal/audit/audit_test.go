package audit

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/backend-metrature/internal/common"
)

type memoryStore struct {
	mu      sync.Mutex
	entries []Entry
	err     error
}

func (s *memoryStore) Insert(_ context.Context, e Entry) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.err != nil {
		return s.err
	}
	e.ID = int64(len(s.entries) + 1)
	s.entries = append(s.entries, e)
	return nil
}

func (s *memoryStore) List(_ context.Context, itemID string, limit int) ([]Entry, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []Entry
	for i := len(s.entries) - 1; i >= 0 && len(out) < limit; i-- {
		if s.entries[i].ItemID == itemID {
			out = append(out, s.entries[i])
		}
	}
	return out, nil
}

func withSubject(sub string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			next.ServeHTTP(w, r.WithContext(common.WithSubject(r.Context(), sub)))
		})
	}
}

func TestMiddlewareRecordsConfigurationChanges(t *testing.T) {
	store := &memoryStore{}
	rec := HTTPRecorder{Service: Service{Store: store, Enabled: true}}

	r := chi.NewRouter()
	r.Use(withSubject("admin@example.com"))
	r.With(rec.Middleware(ActionReplaceTiers)).Put("/items/{itemID}/tiers", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
	})
	r.With(rec.Middleware(ActionReplaceMinimums)).Put("/items/{itemID}/minimums", func(w http.ResponseWriter, _ *http.Request) {
		common.JSONError(w, http.StatusUnprocessableEntity, common.CodeConfigInvalid, "duplicate rule", nil)
	})

	for _, path := range []string{"/items/PANEL/tiers", "/items/PANEL/minimums"} {
		req := httptest.NewRequest(http.MethodPut, path, strings.NewReader(`{}`))
		req.Header.Set("X-Forwarded-For", "203.0.113.5")
		r.ServeHTTP(httptest.NewRecorder(), req)
	}

	require.Len(t, store.entries, 2)
	first, second := store.entries[0], store.entries[1]
	require.Equal(t, "admin@example.com", first.Actor)
	require.Equal(t, ActionReplaceTiers, first.Action)
	require.Equal(t, "PANEL", first.ItemID)
	require.Equal(t, http.StatusOK, first.Status)
	require.Equal(t, "203.0.113.5", first.ClientIP)
	require.Equal(t, "/items/{itemID}/tiers", first.Route)
	require.Equal(t, http.StatusUnprocessableEntity, second.Status)
	require.Equal(t, "/items/{itemID}/minimums", second.Route)

	var meta map[string]any
	require.NoError(t, json.Unmarshal(second.Metadata, &meta))
	require.Equal(t, true, meta["rejected"])
}

func TestMiddlewareDisabledAndErrors(t *testing.T) {
	store := &memoryStore{}
	ok := http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) { w.WriteHeader(http.StatusOK) })

	HTTPRecorder{Service: Service{Store: store}}.Middleware(ActionReplaceTiers)(ok).
		ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodPut, "/", nil))
	require.Empty(t, store.entries)

	var reported error
	store.err = errors.New("db down")
	rr := httptest.NewRecorder()
	HTTPRecorder{Service: Service{Store: store, Enabled: true}, OnError: func(err error) { reported = err }}.
		Middleware(ActionReplaceTiers)(ok).
		ServeHTTP(rr, httptest.NewRequest(http.MethodPut, "/", nil))
	require.Equal(t, http.StatusOK, rr.Code)
	require.EqualError(t, reported, "db down")
}

func TestRecordAnonymousActor(t *testing.T) {
	store := &memoryStore{}
	svc := Service{Store: store, Enabled: true}
	req := httptest.NewRequest(http.MethodPut, "/api/v1/admin/items/PANEL/tiers", nil)
	require.NoError(t, svc.Record(context.Background(), req, ActionReplaceTiers, " PANEL ", 0, nil))
	require.Equal(t, "anonymous", store.entries[0].Actor)
	require.Equal(t, "PANEL", store.entries[0].ItemID)
	require.Equal(t, http.StatusOK, store.entries[0].Status)
	require.Nil(t, store.entries[0].Metadata)
	require.Equal(t, "/api/v1/admin/items/PANEL/tiers", store.entries[0].Route)

	require.Error(t, Service{Enabled: true}.Record(context.Background(), req, ActionReplaceTiers, "PANEL", 200, nil))
}

func TestListHandler(t *testing.T) {
	store := &memoryStore{}
	for i := 0; i < 3; i++ {
		require.NoError(t, store.Insert(context.Background(), Entry{ItemID: "PANEL", Action: ActionReplaceTiers}))
	}
	require.NoError(t, store.Insert(context.Background(), Entry{ItemID: "OTHER"}))

	r := chi.NewRouter()
	r.Get("/items/{itemID}/audit", Handler{Store: store}.List)

	rr := httptest.NewRecorder()
	r.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/items/PANEL/audit?limit=2", nil))
	require.Equal(t, http.StatusOK, rr.Code)
	var payload struct {
		Data []Entry `json:"data"`
	}
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &payload))
	require.Len(t, payload.Data, 2)
	require.Equal(t, int64(3), payload.Data[0].ID)

	rr = httptest.NewRecorder()
	r.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/items/NONE/audit", nil))
	require.JSONEq(t, `{"data":[]}`, rr.Body.String())
}
