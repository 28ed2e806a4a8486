package records

import (
	"context"
	"database/sql"
	"fmt"
	"sort"
	"strconv"
	"strings"

	"github.com/keyxmakerx/stream/internal/apperror"
)

// recordSelect lists the stream columns in the order scanRecordRows expects.
const recordSelect = `SELECT s.id, s.site_id, s.blog_id, s.object_id, s.user_id, s.user_role,
	                 s.summary, s.created, s.connector, s.context, s.action, s.ip
	          FROM stream s`

// mariaDBBackend stores records in the stream table and metadata in
// stream_meta. A record and its metadata are written in one transaction so
// readers see both or neither. Queries never take locks.
//
// Unknown output columns in a Query are rejected with a validation error.
type mariaDBBackend struct {
	db *sql.DB
}

// NewMariaDBBackend creates the local table backend on the shared pool.
func NewMariaDBBackend(db *sql.DB) Backend {
	return &mariaDBBackend{db: db}
}

// Insert writes the record row and all metadata rows in one transaction.
func (b *mariaDBBackend) Insert(ctx context.Context, rec *Record, meta Meta) (int64, error) {
	tx, err := b.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, storageErr("beginning record insert", err)
	}
	defer tx.Rollback()

	result, err := tx.ExecContext(ctx,
		`INSERT INTO stream (site_id, blog_id, object_id, user_id, user_role, summary, created, connector, context, action, ip)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		rec.SiteID, rec.BlogID, nullInt(rec.ObjectID), rec.UserID, rec.UserRole,
		rec.Summary, rec.Created, rec.Connector, rec.Context, rec.Action, nullString(rec.IP),
	)
	if err != nil {
		return 0, storageErr("inserting record", err)
	}

	id, err := result.LastInsertId()
	if err != nil {
		return 0, storageErr("getting record id", err)
	}

	if stmt, args := buildMetaInsert(id, meta); stmt != "" {
		if _, err := tx.ExecContext(ctx, stmt, args...); err != nil {
			return 0, storageErr("inserting record meta", err)
		}
	}

	if err := tx.Commit(); err != nil {
		return 0, storageErr("committing record", err)
	}

	rec.ID = id
	return id, nil
}

// buildMetaInsert builds one multi-row INSERT for all metadata values.
// Keys are sorted so meta_id order is deterministic; values keep their order.
func buildMetaInsert(recordID int64, meta Meta) (string, []any) {
	keys := make([]string, 0, len(meta))
	for k := range meta {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	var tuples []string
	var args []any
	for _, k := range keys {
		for _, v := range meta[k] {
			tuples = append(tuples, "(?, ?, ?)")
			args = append(args, recordID, k, v)
		}
	}
	if len(tuples) == 0 {
		return "", nil
	}
	return "INSERT INTO stream_meta (record_id, meta_key, meta_value) VALUES " +
		strings.Join(tuples, ", "), args
}

// Query counts all matches, then fetches the requested page.
func (b *mariaDBBackend) Query(ctx context.Context, q Query) (*Page, error) {
	for _, col := range q.Columns {
		if !IsColumn(col) {
			return nil, apperror.NewValidation(fmt.Sprintf("unknown column %q", col))
		}
	}

	where, args, err := buildWhere(q)
	if err != nil {
		return nil, err
	}

	var total int
	countQuery := `SELECT COUNT(*) FROM stream s` + where
	if err := b.db.QueryRowContext(ctx, countQuery, args...).Scan(&total); err != nil {
		return nil, storageErr("counting records", err)
	}

	selectQuery, selectArgs := buildSelect(q, where, args)
	rows, err := b.db.QueryContext(ctx, selectQuery, selectArgs...)
	if err != nil {
		return nil, storageErr("listing records", err)
	}
	defer rows.Close()

	records, err := scanRecordRows(rows)
	if err != nil {
		return nil, err
	}
	return &Page{Records: records, Total: total}, nil
}

// buildWhere translates the filters of q into a WHERE clause. Column names
// only ever come from the whitelists in model.go.
func buildWhere(q Query) (string, []any, error) {
	var conds []string
	var args []any

	if len(q.Records) > 0 {
		conds = append(conds, "s.id IN ("+placeholders(len(q.Records))+")")
		for _, id := range q.Records {
			args = append(args, id)
		}
	}
	if len(q.RecordsNotIn) > 0 {
		conds = append(conds, "s.id NOT IN ("+placeholders(len(q.RecordsNotIn))+")")
		for _, id := range q.RecordsNotIn {
			args = append(args, id)
		}
	}

	for _, col := range sortedKeys(q.In) {
		values := q.In[col]
		if !filterColumns[col] {
			return "", nil, apperror.NewValidation(fmt.Sprintf("cannot filter on %q", col))
		}
		if len(values) == 0 {
			continue
		}
		conds = append(conds, "s."+col+" IN ("+placeholders(len(values))+")")
		for _, v := range values {
			args = append(args, v)
		}
	}
	for _, col := range sortedKeys(q.NotIn) {
		values := q.NotIn[col]
		if !filterColumns[col] {
			return "", nil, apperror.NewValidation(fmt.Sprintf("cannot filter on %q", col))
		}
		if len(values) == 0 {
			continue
		}
		conds = append(conds, "(s."+col+" IS NULL OR s."+col+" NOT IN ("+placeholders(len(values))+"))")
		for _, v := range values {
			args = append(args, v)
		}
	}

	for _, mf := range q.Meta {
		if mf.Value == "" {
			conds = append(conds, "EXISTS (SELECT 1 FROM stream_meta m WHERE m.record_id = s.id AND m.meta_key = ?)")
			args = append(args, mf.Key)
			continue
		}
		conds = append(conds, "EXISTS (SELECT 1 FROM stream_meta m WHERE m.record_id = s.id AND m.meta_key = ? AND m.meta_value = ?)")
		args = append(args, mf.Key, mf.Value)
	}

	if q.Search != "" {
		field := q.SearchField
		if field == "" {
			field = ColSummary
		}
		if !searchColumns[field] {
			return "", nil, apperror.NewValidation(fmt.Sprintf("cannot search on %q", field))
		}
		conds = append(conds, "s."+field+" LIKE ?")
		args = append(args, "%"+escapeLike(q.Search)+"%")
	}

	if q.DateFrom != nil {
		conds = append(conds, "s.created >= ?")
		args = append(args, q.DateFrom.UTC())
	}
	if q.DateTo != nil {
		conds = append(conds, "s.created < ?")
		args = append(args, q.DateTo.UTC())
	}

	if len(conds) == 0 {
		return "", nil, nil
	}
	return " WHERE " + strings.Join(conds, " AND "), args, nil
}

// buildSelect appends ordering and pagination to the filtered select. The
// id tie-break keeps the order total when created values collide.
func buildSelect(q Query, where string, args []any) (string, []any) {
	orderBy := q.OrderBy
	if !orderColumns[orderBy] {
		orderBy = ColCreated
	}
	dir := "DESC"
	if q.Order == OrderAsc {
		dir = "ASC"
	}

	query := recordSelect + where + " ORDER BY s." + orderBy + " " + dir
	if orderBy != ColID {
		query += ", s.id " + dir
	}
	query += " LIMIT ? OFFSET ?"

	out := make([]any, 0, len(args)+2)
	out = append(out, args...)
	out = append(out, q.Limit, q.Offset)
	return query, out
}

// GetMetadata returns metadata values ordered by meta_id, which is write order.
func (b *mariaDBBackend) GetMetadata(ctx context.Context, recordID int64, key string) (Meta, error) {
	query := `SELECT meta_key, meta_value FROM stream_meta WHERE record_id = ?`
	args := []any{recordID}
	if key != "" {
		query += ` AND meta_key = ?`
		args = append(args, key)
	}
	query += ` ORDER BY meta_id`

	rows, err := b.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, storageErr("reading record meta", err)
	}
	defer rows.Close()

	meta := Meta{}
	for rows.Next() {
		var k, v string
		if err := rows.Scan(&k, &v); err != nil {
			return nil, storageErr("scanning record meta", err)
		}
		meta[k] = append(meta[k], v)
	}
	if err := rows.Err(); err != nil {
		return nil, storageErr("iterating record meta", err)
	}
	return meta, nil
}

// DistinctValues lists the values present for column, skipping NULL and
// empty strings.
func (b *mariaDBBackend) DistinctValues(ctx context.Context, column string) ([]string, error) {
	if !IsDistinctColumn(column) {
		return nil, apperror.NewValidation(fmt.Sprintf("cannot list values of %q", column))
	}

	query := `SELECT DISTINCT ` + column + ` FROM stream WHERE ` + column + ` IS NOT NULL ORDER BY ` + column

	rows, err := b.db.QueryContext(ctx, query)
	if err != nil {
		return nil, storageErr("listing distinct values", err)
	}
	defer rows.Close()

	var values []string
	for rows.Next() {
		var v string
		if err := rows.Scan(&v); err != nil {
			return nil, storageErr("scanning distinct value", err)
		}
		if v != "" {
			values = append(values, v)
		}
	}
	if err := rows.Err(); err != nil {
		return nil, storageErr("iterating distinct values", err)
	}
	return values, nil
}

// scanRecordRows scans rows selected with recordSelect.
func scanRecordRows(rows *sql.Rows) ([]Record, error) {
	records := []Record{}
	for rows.Next() {
		var r Record
		var objectID sql.NullInt64
		var ip sql.NullString
		if err := rows.Scan(
			&r.ID, &r.SiteID, &r.BlogID, &objectID, &r.UserID, &r.UserRole,
			&r.Summary, &r.Created, &r.Connector, &r.Context, &r.Action, &ip,
		); err != nil {
			return nil, storageErr("scanning record", err)
		}
		r.ObjectID = objectID.Int64
		r.IP = ip.String
		r.Created = r.Created.UTC()
		records = append(records, r)
	}
	if err := rows.Err(); err != nil {
		return nil, storageErr("iterating records", err)
	}
	return records, nil
}

// searchColumns may be used as search_field.
var searchColumns = map[string]bool{
	ColSummary: true, ColConnector: true, ColContext: true, ColAction: true,
	ColIP: true, ColUserRole: true,
}

// orderColumns may be used as orderby.
var orderColumns = map[string]bool{
	ColID: true, ColSiteID: true, ColBlogID: true, ColObjectID: true, ColUserID: true,
	ColUserRole: true, ColSummary: true, ColCreated: true, ColConnector: true,
	ColContext: true, ColAction: true, ColIP: true,
}

func placeholders(n int) string {
	return strings.TrimSuffix(strings.Repeat("?, ", n), ", ")
}

func sortedKeys(m map[string][]string) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// escapeLike escapes LIKE wildcards so user input matches literally.
func escapeLike(s string) string {
	r := strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)
	return r.Replace(s)
}

func nullInt(v int64) sql.NullInt64 {
	return sql.NullInt64{Int64: v, Valid: v != 0}
}

func nullString(v string) sql.NullString {
	return sql.NullString{String: v, Valid: v != ""}
}

// formatID renders an ID for error messages and URLs.
func formatID(id int64) string {
	return strconv.FormatInt(id, 10)
}
