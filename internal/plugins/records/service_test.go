package records

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/keyxmakerx/stream/internal/apperror"
)

// --- Mock Backend ---

// mockBackend implements Backend for testing.
type mockBackend struct {
	insertFn         func(ctx context.Context, rec *Record, meta Meta) (int64, error)
	queryFn          func(ctx context.Context, q Query) (*Page, error)
	getMetadataFn    func(ctx context.Context, recordID int64, key string) (Meta, error)
	distinctValuesFn func(ctx context.Context, column string) ([]string, error)
}

func (m *mockBackend) Insert(ctx context.Context, rec *Record, meta Meta) (int64, error) {
	if m.insertFn != nil {
		return m.insertFn(ctx, rec, meta)
	}
	return 1, nil
}

func (m *mockBackend) Query(ctx context.Context, q Query) (*Page, error) {
	if m.queryFn != nil {
		return m.queryFn(ctx, q)
	}
	return &Page{Records: []Record{}}, nil
}

func (m *mockBackend) GetMetadata(ctx context.Context, recordID int64, key string) (Meta, error) {
	if m.getMetadataFn != nil {
		return m.getMetadataFn(ctx, recordID, key)
	}
	return Meta{}, nil
}

func (m *mockBackend) DistinctValues(ctx context.Context, column string) ([]string, error) {
	if m.distinctValuesFn != nil {
		return m.distinctValuesFn(ctx, column)
	}
	return nil, nil
}

// recordingListener captures RecordInserted calls.
type recordingListener struct {
	calls []*Record
}

func (l *recordingListener) RecordInserted(_ context.Context, rec *Record, _ Meta) {
	l.calls = append(l.calls, rec)
}

// memoryCache is a map-backed DistinctCache.
type memoryCache struct {
	values map[string][]string
}

func (c *memoryCache) Get(_ context.Context, column string) ([]string, bool) {
	v, ok := c.values[column]
	return v, ok
}

func (c *memoryCache) Set(_ context.Context, column string, values []string) {
	c.values[column] = values
}

// assertAppError checks that err is an *apperror.AppError with the expected code.
func assertAppError(t *testing.T, err error, expectedCode int) {
	t.Helper()
	if err == nil {
		t.Fatalf("expected error with code %d, got nil", expectedCode)
	}
	var appErr *apperror.AppError
	if !errors.As(err, &appErr) {
		t.Fatalf("expected *apperror.AppError, got %T: %v", err, err)
	}
	if appErr.Code != expectedCode {
		t.Errorf("expected status %d, got %d (message: %s)", expectedCode, appErr.Code, appErr.Message)
	}
}

func validRecord() *Record {
	return &Record{
		UserID: 1, UserRole: "administrator", Summary: `"Hello" published`,
		Connector: "posts", Context: "post", Action: "published",
	}
}

// --- Insert Tests ---

func TestInsert_Success(t *testing.T) {
	var stored *Record
	backend := &mockBackend{
		insertFn: func(ctx context.Context, rec *Record, meta Meta) (int64, error) {
			stored = rec
			return 42, nil
		},
	}
	listener := &recordingListener{}
	svc := NewRecordService(backend, nil, listener)

	rec := validRecord()
	id, err := svc.Insert(context.Background(), rec, Meta{"post_title": {"Hello"}})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if id != 42 || rec.ID != 42 {
		t.Errorf("expected id 42, got %d (rec.ID %d)", id, rec.ID)
	}
	if stored.Created.IsZero() {
		t.Error("expected created to be stamped")
	}
	if stored.Created.Location() != time.UTC {
		t.Errorf("expected UTC created, got %v", stored.Created.Location())
	}
	if len(listener.calls) != 1 || listener.calls[0].ID != 42 {
		t.Errorf("expected listener called once with id 42, got %v", listener.calls)
	}
}

func TestInsert_KeepsCallerCreated(t *testing.T) {
	created := time.Date(2023, 1, 2, 3, 4, 5, 123456789, time.UTC)
	svc := NewRecordService(&mockBackend{}, nil)

	rec := validRecord()
	rec.Created = created
	if _, err := svc.Insert(context.Background(), rec, nil); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !rec.Created.Equal(created.Truncate(time.Microsecond)) {
		t.Errorf("expected created truncated to microseconds, got %v", rec.Created)
	}
}

func TestInsert_MissingFields(t *testing.T) {
	svc := NewRecordService(&mockBackend{}, nil)

	for _, tc := range []struct {
		name   string
		mutate func(r *Record)
	}{
		{"connector", func(r *Record) { r.Connector = " " }},
		{"context", func(r *Record) { r.Context = "" }},
		{"action", func(r *Record) { r.Action = "" }},
		{"summary", func(r *Record) { r.Summary = "" }},
	} {
		t.Run(tc.name, func(t *testing.T) {
			rec := validRecord()
			tc.mutate(rec)
			_, err := svc.Insert(context.Background(), rec, nil)
			assertAppError(t, err, 422)
		})
	}
}

func TestInsert_StorageFailureSkipsListeners(t *testing.T) {
	backend := &mockBackend{
		insertFn: func(ctx context.Context, rec *Record, meta Meta) (int64, error) {
			return 0, storageErr("inserting record", errors.New("connection refused"))
		},
	}
	listener := &recordingListener{}
	svc := NewRecordService(backend, nil, listener)

	_, err := svc.Insert(context.Background(), validRecord(), nil)
	assertAppError(t, err, 503)
	if len(listener.calls) != 0 {
		t.Error("listener must not run after a failed insert")
	}
}

// --- Query Tests ---

func TestQuery_PassesThroughPage(t *testing.T) {
	backend := &mockBackend{
		queryFn: func(ctx context.Context, q Query) (*Page, error) {
			if q.Offset != 10 || q.Limit != 10 {
				t.Errorf("expected offset/limit 10/10, got %d/%d", q.Offset, q.Limit)
			}
			return &Page{Records: make([]Record, 10), Total: 25}, nil
		},
	}
	svc := NewRecordService(backend, nil)

	page, err := svc.Query(context.Background(), Query{Offset: 10, Limit: 10})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if page.Total != 25 || len(page.Records) != 10 {
		t.Errorf("unexpected page: total %d len %d", page.Total, len(page.Records))
	}
}

func TestQuery_RejectsZeroLimit(t *testing.T) {
	svc := NewRecordService(&mockBackend{}, nil)
	_, err := svc.Query(context.Background(), Query{})
	assertAppError(t, err, 422)
}

func TestQuery_StorageError(t *testing.T) {
	backend := &mockBackend{
		queryFn: func(ctx context.Context, q Query) (*Page, error) {
			return nil, storageErr("searching records", errors.New("401 Unauthorized"))
		},
	}
	svc := NewRecordService(backend, nil)
	_, err := svc.Query(context.Background(), Query{Limit: 1})
	assertAppError(t, err, 503)
}

func TestQuery_BackendValidationPassesThrough(t *testing.T) {
	backend := &mockBackend{
		queryFn: func(ctx context.Context, q Query) (*Page, error) {
			return nil, apperror.NewValidation("unknown column")
		},
	}
	svc := NewRecordService(backend, nil)
	_, err := svc.Query(context.Background(), Query{Limit: 1, Columns: []string{"bogus"}})
	assertAppError(t, err, 422)
}

// --- Metadata Tests ---

func TestGetMetaSingle_MostRecentWins(t *testing.T) {
	backend := &mockBackend{
		getMetadataFn: func(ctx context.Context, recordID int64, key string) (Meta, error) {
			return Meta{key: {"first", "second"}}, nil
		},
	}
	svc := NewRecordService(backend, nil)

	v, err := svc.GetMetaSingle(context.Background(), 1, "post_title")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if v != "second" {
		t.Errorf("expected most recent value, got %q", v)
	}
}

func TestGetMetaSingle_MissingKey(t *testing.T) {
	svc := NewRecordService(&mockBackend{}, nil)
	_, err := svc.GetMetaSingle(context.Background(), 1, "nope")
	assertAppError(t, err, 404)
}

func TestGetMetadata_MissingRecordIsEmpty(t *testing.T) {
	svc := NewRecordService(&mockBackend{}, nil)
	meta, err := svc.GetMetadata(context.Background(), 12345, "")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(meta) != 0 {
		t.Errorf("expected empty meta, got %v", meta)
	}
}

// --- DistinctValues Tests ---

func TestDistinctValues_UsesCache(t *testing.T) {
	calls := 0
	backend := &mockBackend{
		distinctValuesFn: func(ctx context.Context, column string) ([]string, error) {
			calls++
			return []string{"posts", "users"}, nil
		},
	}
	svc := NewRecordService(backend, &memoryCache{values: map[string][]string{}})

	for i := 0; i < 3; i++ {
		values, err := svc.DistinctValues(context.Background(), ColConnector)
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if fmt.Sprint(values) != "[posts users]" {
			t.Errorf("unexpected values %v", values)
		}
	}
	if calls != 1 {
		t.Errorf("expected one backend call, got %d", calls)
	}
}

func TestDistinctValues_RejectsColumn(t *testing.T) {
	svc := NewRecordService(&mockBackend{}, nil)
	_, err := svc.DistinctValues(context.Background(), ColSummary)
	assertAppError(t, err, 422)
}

func TestDistinctValues_EmptyIsNotNil(t *testing.T) {
	svc := NewRecordService(&mockBackend{}, nil)
	values, err := svc.DistinctValues(context.Background(), ColIP)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if values == nil {
		t.Error("expected empty slice, got nil")
	}
}
