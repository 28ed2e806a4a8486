package records

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"
)

// maxErrorBody caps how much of an error response is kept for logging.
const maxErrorBody = 512

// remoteBackend talks JSON over HTTP to a hosted search service that
// implements the same filter semantics as the local tables:
//
//	POST /records               {"record": {...}, "meta": {...}} -> {"id": 1}
//	POST /records/search        Query                            -> Page
//	GET  /records/{id}/meta     ?key=                            -> {"meta": {...}}
//	GET  /distinct/{column}                                      -> {"values": [...]}
//
// The record and its metadata travel in one request, so the service commits
// them together. Column projection is not supported by the service: it is
// ignored with a warning and full records are returned.
type remoteBackend struct {
	baseURL string
	apiKey  string
	client  *http.Client
}

// NewRemoteBackend creates the search-service backend. timeout bounds each call.
func NewRemoteBackend(baseURL, apiKey string, timeout time.Duration) Backend {
	return &remoteBackend{
		baseURL: strings.TrimSuffix(baseURL, "/"),
		apiKey:  apiKey,
		client:  &http.Client{Timeout: timeout},
	}
}

// insertRequest is the body of POST /records.
type insertRequest struct {
	Record *Record `json:"record"`
	Meta   Meta    `json:"meta,omitempty"`
}

// insertResponse is the body returned by POST /records.
type insertResponse struct {
	ID int64 `json:"id"`
}

// metaResponse is the body returned by GET /records/{id}/meta.
type metaResponse struct {
	Meta Meta `json:"meta"`
}

// distinctResponse is the body returned by GET /distinct/{column}.
type distinctResponse struct {
	Values []string `json:"values"`
}

// Insert posts the record and its metadata in a single request.
func (b *remoteBackend) Insert(ctx context.Context, rec *Record, meta Meta) (int64, error) {
	var out insertResponse
	if err := b.do(ctx, http.MethodPost, "/records", insertRequest{Record: rec, Meta: meta}, &out); err != nil {
		if errors.Is(err, ErrNotFound) {
			return 0, storageErr("inserting record", err)
		}
		return 0, err
	}
	if out.ID <= 0 {
		return 0, storageErr("inserting record", fmt.Errorf("service returned id %d", out.ID))
	}
	rec.ID = out.ID
	return out.ID, nil
}

// Query sends the normalized query to the search endpoint.
func (b *remoteBackend) Query(ctx context.Context, q Query) (*Page, error) {
	if len(q.Columns) > 0 {
		slog.Warn("remote backend ignores column projection",
			slog.Any("columns", q.Columns),
		)
		q.Columns = nil
	}

	var page Page
	if err := b.do(ctx, http.MethodPost, "/records/search", q, &page); err != nil {
		if errors.Is(err, ErrNotFound) {
			return nil, storageErr("searching records", err)
		}
		return nil, err
	}
	if page.Records == nil {
		page.Records = []Record{}
	}
	return &page, nil
}

// GetMetadata fetches metadata for one record. A 404 from the service means
// the record does not exist and yields an empty Meta.
func (b *remoteBackend) GetMetadata(ctx context.Context, recordID int64, key string) (Meta, error) {
	path := "/records/" + formatID(recordID) + "/meta"
	if key != "" {
		path += "?key=" + url.QueryEscape(key)
	}

	var out metaResponse
	if err := b.do(ctx, http.MethodGet, path, nil, &out); err != nil {
		if errors.Is(err, ErrNotFound) {
			return Meta{}, nil
		}
		return nil, err
	}
	if out.Meta == nil {
		out.Meta = Meta{}
	}
	return out.Meta, nil
}

// DistinctValues fetches the values present for column.
func (b *remoteBackend) DistinctValues(ctx context.Context, column string) ([]string, error) {
	var out distinctResponse
	if err := b.do(ctx, http.MethodGet, "/distinct/"+url.PathEscape(column), nil, &out); err != nil {
		if errors.Is(err, ErrNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return out.Values, nil
}

// do performs one JSON round trip. Transport failures, auth rejections and
// non-2xx responses are StorageErrors; 404 maps to ErrNotFound.
func (b *remoteBackend) do(ctx context.Context, method, path string, body, out any) error {
	var reader io.Reader
	if body != nil {
		payload, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("encoding %s %s: %w", method, path, err)
		}
		reader = bytes.NewReader(payload)
	}

	req, err := http.NewRequestWithContext(ctx, method, b.baseURL+path, reader)
	if err != nil {
		return fmt.Errorf("building %s %s: %w", method, path, err)
	}
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if b.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+b.apiKey)
	}

	resp, err := b.client.Do(req)
	if err != nil {
		return storageErr(method+" "+path, err)
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusNotFound:
		return fmt.Errorf("%s %s: %w", method, path, ErrNotFound)
	case resp.StatusCode == http.StatusUnauthorized, resp.StatusCode == http.StatusForbidden:
		return storageErr(method+" "+path, fmt.Errorf("search service rejected credentials: %s", resp.Status))
	case resp.StatusCode < 200 || resp.StatusCode >= 300:
		snippet, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
		return storageErr(method+" "+path, fmt.Errorf("search service returned %s: %s", resp.Status, strings.TrimSpace(string(snippet))))
	}

	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return storageErr(method+" "+path, fmt.Errorf("decoding response: %w", err))
	}
	return nil
}
