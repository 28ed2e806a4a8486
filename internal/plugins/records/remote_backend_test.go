package records

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"sort"
	"strconv"
	"strings"
	"sync"
	"testing"
	"time"
)

// fakeSearchService is an in-memory stand-in for the hosted search API.
// It supports connector filtering, newest-first ordering and paging.
type fakeSearchService struct {
	mu      sync.Mutex
	nextID  int64
	records []Record
	meta    map[int64]Meta
	apiKey  string
}

func newFakeSearchService(apiKey string) *httptest.Server {
	f := &fakeSearchService{meta: map[int64]Meta{}, apiKey: apiKey}
	return httptest.NewServer(f)
}

func (f *fakeSearchService) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if r.Header.Get("Authorization") != "Bearer "+f.apiKey {
		w.WriteHeader(http.StatusUnauthorized)
		return
	}
	f.mu.Lock()
	defer f.mu.Unlock()

	switch {
	case r.Method == http.MethodPost && r.URL.Path == "/records":
		var req struct {
			Record Record `json:"record"`
			Meta   Meta   `json:"meta"`
		}
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			w.WriteHeader(http.StatusBadRequest)
			return
		}
		f.nextID++
		req.Record.ID = f.nextID
		f.records = append(f.records, req.Record)
		f.meta[f.nextID] = req.Meta
		writeJSON(w, map[string]int64{"id": f.nextID})

	case r.Method == http.MethodPost && r.URL.Path == "/records/search":
		var q Query
		if err := json.NewDecoder(r.Body).Decode(&q); err != nil {
			w.WriteHeader(http.StatusBadRequest)
			return
		}
		var matched []Record
		for _, rec := range f.records {
			if conns := q.In[ColConnector]; len(conns) > 0 && conns[0] != rec.Connector {
				continue
			}
			matched = append(matched, rec)
		}
		sort.Slice(matched, func(i, j int) bool { return matched[i].ID > matched[j].ID })
		page := Page{Records: []Record{}, Total: len(matched)}
		for i := q.Offset; i < len(matched) && i < q.Offset+q.Limit; i++ {
			page.Records = append(page.Records, matched[i])
		}
		writeJSON(w, page)

	case r.Method == http.MethodGet && strings.HasPrefix(r.URL.Path, "/records/") && strings.HasSuffix(r.URL.Path, "/meta"):
		id, _ := strconv.ParseInt(strings.TrimSuffix(strings.TrimPrefix(r.URL.Path, "/records/"), "/meta"), 10, 64)
		meta, ok := f.meta[id]
		if !ok {
			w.WriteHeader(http.StatusNotFound)
			return
		}
		if key := r.URL.Query().Get("key"); key != "" {
			meta = Meta{key: meta[key]}
		}
		writeJSON(w, map[string]Meta{"meta": meta})

	default:
		w.WriteHeader(http.StatusInternalServerError)
	}
}

func writeJSON(w http.ResponseWriter, v any) {
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(v)
}

func TestRemoteBackend_InsertThenQuery(t *testing.T) {
	srv := newFakeSearchService("secret")
	defer srv.Close()
	b := NewRemoteBackend(srv.URL, "secret", 5*time.Second)
	ctx := context.Background()

	rec := &Record{
		UserID: 3, UserRole: "editor", Summary: `"Hello" updated`,
		Created: time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC),
		Connector: "posts", Context: "post", Action: "updated", IP: "10.0.0.1",
	}
	id, err := b.Insert(ctx, rec, Meta{"post_title": {"Hello"}})
	if err != nil {
		t.Fatalf("insert: %v", err)
	}
	if id != 1 || rec.ID != 1 {
		t.Fatalf("expected id 1, got %d (rec.ID %d)", id, rec.ID)
	}

	page, err := b.Query(ctx, Query{Records: []int64{id}, Limit: 10, OrderBy: ColCreated, Order: OrderDesc})
	if err != nil {
		t.Fatalf("query: %v", err)
	}
	if page.Total != 1 || len(page.Records) != 1 {
		t.Fatalf("expected one record, got %+v", page)
	}
	got := page.Records[0]
	if got.Summary != rec.Summary || got.Connector != "posts" || !got.Created.Equal(rec.Created) {
		t.Errorf("round trip mismatch: %+v", got)
	}

	meta, err := b.GetMetadata(ctx, id, "post_title")
	if err != nil {
		t.Fatalf("meta: %v", err)
	}
	if v, _ := meta.Last("post_title"); v != "Hello" {
		t.Errorf("expected post_title Hello, got %v", meta)
	}
}

func TestRemoteBackend_Pagination(t *testing.T) {
	srv := newFakeSearchService("secret")
	defer srv.Close()
	b := NewRemoteBackend(srv.URL, "secret", 5*time.Second)
	ctx := context.Background()

	for i := 0; i < 25; i++ {
		rec := &Record{Summary: "s", Connector: "posts", Context: "post", Action: "created", Created: time.Now().UTC()}
		if _, err := b.Insert(ctx, rec, nil); err != nil {
			t.Fatalf("insert %d: %v", i, err)
		}
	}

	page, err := b.Query(ctx, Query{Offset: 10, Limit: 10})
	if err != nil {
		t.Fatalf("query: %v", err)
	}
	if page.Total != 25 {
		t.Errorf("expected total 25, got %d", page.Total)
	}
	if len(page.Records) != 10 {
		t.Fatalf("expected 10 records, got %d", len(page.Records))
	}
	// Newest first: page two starts at the 15th insert.
	if page.Records[0].ID != 15 {
		t.Errorf("expected first id 15, got %d", page.Records[0].ID)
	}

	last, err := b.Query(ctx, Query{Offset: 20, Limit: 10})
	if err != nil {
		t.Fatalf("query: %v", err)
	}
	if len(last.Records) != 5 {
		t.Errorf("expected 5 records on last page, got %d", len(last.Records))
	}
}

func TestRemoteBackend_MissingRecordMetaIsEmpty(t *testing.T) {
	srv := newFakeSearchService("secret")
	defer srv.Close()
	b := NewRemoteBackend(srv.URL, "secret", 5*time.Second)

	meta, err := b.GetMetadata(context.Background(), 999, "")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(meta) != 0 {
		t.Errorf("expected empty meta, got %v", meta)
	}
}

func TestRemoteBackend_RejectedCredentialsAreStorageErrors(t *testing.T) {
	srv := newFakeSearchService("secret")
	defer srv.Close()
	b := NewRemoteBackend(srv.URL, "wrong", 5*time.Second)

	_, err := b.Insert(context.Background(), &Record{Summary: "s"}, nil)
	if !errors.Is(err, ErrStorage) {
		t.Fatalf("expected ErrStorage, got %v", err)
	}

	_, err = b.Query(context.Background(), Query{Limit: 1})
	if !errors.Is(err, ErrStorage) {
		t.Fatalf("expected ErrStorage, got %v", err)
	}
}

func TestRemoteBackend_UnreachableIsStorageError(t *testing.T) {
	srv := newFakeSearchService("secret")
	url := srv.URL
	srv.Close()

	b := NewRemoteBackend(url, "secret", time.Second)
	_, err := b.DistinctValues(context.Background(), ColConnector)
	if !errors.Is(err, ErrStorage) {
		t.Fatalf("expected ErrStorage, got %v", err)
	}
}
