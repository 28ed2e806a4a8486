package records

import "context"

// Backend is the storage contract behind the record store. Implementations
// must make a record and its metadata visible atomically, must not lock
// inserts against each other or against readers, and must wrap
// connectivity and rejection failures with ErrStorage.
type Backend interface {
	// Insert persists rec and meta, then sets rec.ID. rec.Created is
	// already set by the service.
	Insert(ctx context.Context, rec *Record, meta Meta) (int64, error)

	// Query returns one page of matching records and the total match count.
	Query(ctx context.Context, q Query) (*Page, error)

	// GetMetadata returns metadata for a record in write order, restricted
	// to key when key is non-empty. A missing record yields an empty Meta.
	GetMetadata(ctx context.Context, recordID int64, key string) (Meta, error)

	// DistinctValues returns the values present in storage for a column,
	// sorted ascending.
	DistinctValues(ctx context.Context, column string) ([]string, error)
}
