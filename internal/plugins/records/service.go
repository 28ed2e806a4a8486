package records

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/keyxmakerx/stream/internal/apperror"
)

// Listener is notified synchronously after a record has been stored. The
// alert notifier is the main listener. Listeners must not fail the insert:
// they handle and log their own errors.
type Listener interface {
	RecordInserted(ctx context.Context, rec *Record, meta Meta)
}

// DistinctCache stores DistinctValues results between calls.
type DistinctCache interface {
	Get(ctx context.Context, column string) ([]string, bool)
	Set(ctx context.Context, column string, values []string)
}

// RecordService is the record store used by the rest of the application.
// Handlers, exporters and feeds call it; they never touch a Backend.
type RecordService interface {
	// Insert validates and persists a record with its metadata, then notifies
	// listeners. Storage failures are returned as apperror storage errors.
	Insert(ctx context.Context, rec *Record, meta Meta) (int64, error)

	// Query returns one page of records and the total match count.
	Query(ctx context.Context, q Query) (*Page, error)

	// GetMetadata returns all metadata for a record, or only key's values.
	GetMetadata(ctx context.Context, recordID int64, key string) (Meta, error)

	// GetMetaSingle returns one value for key: the most recently written
	// one. Returns a not-found error when the key has no values.
	GetMetaSingle(ctx context.Context, recordID int64, key string) (string, error)

	// DistinctValues returns the values actually stored for a column.
	DistinctValues(ctx context.Context, column string) ([]string, error)
}

// recordService implements RecordService over one injected Backend.
type recordService struct {
	backend   Backend
	cache     DistinctCache
	listeners []Listener
	now       func() time.Time
}

// NewRecordService creates the record store. cache may be nil.
func NewRecordService(backend Backend, cache DistinctCache, listeners ...Listener) RecordService {
	return &recordService{
		backend:   backend,
		cache:     cache,
		listeners: listeners,
		now:       func() time.Time { return time.Now().UTC() },
	}
}

// Insert validates required fields, stamps the creation time when unset,
// and writes through the backend. Listeners only run after a successful write.
func (s *recordService) Insert(ctx context.Context, rec *Record, meta Meta) (int64, error) {
	if rec == nil {
		return 0, apperror.NewBadRequest("record is required")
	}
	rec.Connector = strings.TrimSpace(rec.Connector)
	rec.Context = strings.TrimSpace(rec.Context)
	rec.Action = strings.TrimSpace(rec.Action)

	switch {
	case rec.Connector == "":
		return 0, apperror.NewValidation("connector is required")
	case rec.Context == "":
		return 0, apperror.NewValidation("context is required")
	case rec.Action == "":
		return 0, apperror.NewValidation("action is required")
	case strings.TrimSpace(rec.Summary) == "":
		return 0, apperror.NewValidation("summary is required")
	}
	for key := range meta {
		if strings.TrimSpace(key) == "" {
			return 0, apperror.NewValidation("meta keys must not be empty")
		}
	}

	if rec.Created.IsZero() {
		rec.Created = s.now()
	}
	// DATETIME(6) keeps microseconds; truncate so a read returns what was written.
	rec.Created = rec.Created.UTC().Truncate(time.Microsecond)

	id, err := s.backend.Insert(ctx, rec, meta)
	if err != nil {
		slog.Error("failed to store record",
			slog.String("connector", rec.Connector),
			slog.String("context", rec.Context),
			slog.String("action", rec.Action),
			slog.Any("error", err),
		)
		return 0, toAppError(err, "inserting record")
	}
	rec.ID = id

	for _, l := range s.listeners {
		l.RecordInserted(ctx, rec, meta)
	}
	return id, nil
}

// Query passes the normalized query to the backend.
func (s *recordService) Query(ctx context.Context, q Query) (*Page, error) {
	if q.Limit < 1 {
		return nil, apperror.NewValidation("limit must be at least 1")
	}
	if q.Offset < 0 {
		return nil, apperror.NewValidation("offset must not be negative")
	}

	page, err := s.backend.Query(ctx, q)
	if err != nil {
		return nil, toAppError(err, "querying records")
	}
	return page, nil
}

// GetMetadata returns the record's metadata; an unknown record or key
// yields an empty map rather than an error.
func (s *recordService) GetMetadata(ctx context.Context, recordID int64, key string) (Meta, error) {
	if recordID < 1 {
		return nil, apperror.NewBadRequest("record ID must be positive")
	}
	meta, err := s.backend.GetMetadata(ctx, recordID, key)
	if err != nil {
		return nil, toAppError(err, "reading record meta")
	}
	return meta, nil
}

// GetMetaSingle applies the most-recently-written tie-break.
func (s *recordService) GetMetaSingle(ctx context.Context, recordID int64, key string) (string, error) {
	if key == "" {
		return "", apperror.NewBadRequest("meta key is required for a single value")
	}
	meta, err := s.GetMetadata(ctx, recordID, key)
	if err != nil {
		return "", err
	}
	value, ok := meta.Last(key)
	if !ok {
		return "", apperror.NewNotFound(fmt.Sprintf("record %d has no meta %q", recordID, key))
	}
	return value, nil
}

// DistinctValues serves from the cache when possible.
func (s *recordService) DistinctValues(ctx context.Context, column string) ([]string, error) {
	if !IsDistinctColumn(column) {
		return nil, apperror.NewValidation(fmt.Sprintf("cannot list values of %q", column))
	}

	if s.cache != nil {
		if values, ok := s.cache.Get(ctx, column); ok {
			return values, nil
		}
	}

	values, err := s.backend.DistinctValues(ctx, column)
	if err != nil {
		return nil, toAppError(err, "listing distinct values")
	}
	if values == nil {
		values = []string{}
	}

	if s.cache != nil {
		s.cache.Set(ctx, column, values)
	}
	return values, nil
}

// toAppError maps backend errors onto the apperror taxonomy. AppErrors
// raised by a backend (validation) pass through untouched.
func toAppError(err error, op string) error {
	var appErr *apperror.AppError
	if errors.As(err, &appErr) {
		return appErr
	}
	switch {
	case errors.Is(err, ErrStorage):
		return apperror.NewStorage(fmt.Errorf("%s: %w", op, err))
	case errors.Is(err, ErrNotFound):
		return apperror.NewNotFound("record not found")
	default:
		return apperror.NewInternal(fmt.Errorf("%s: %w", op, err))
	}
}
