package store

import (
	"database/sql"
	"encoding/base64"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/segmentio/encoding/json"
	_ "modernc.org/sqlite"

	"github.com/assaylab-ai/assay/pkg/types"
)

// DefaultMaxResults is the search page size when the caller does not set one.
const DefaultMaxResults = 100

// MaxResultsCeiling caps a single search page regardless of what was asked for.
const MaxResultsCeiling = 500

var (
	// ErrNotFound is returned when the keyed trace or assessment does not exist.
	ErrNotFound = errors.New("not found")
	// ErrBadPageToken is returned for page tokens this store did not issue.
	ErrBadPageToken = errors.New("invalid page token")
)

// Store is a SQLite-backed store for traces and their assessments.
type Store struct {
	db *sql.DB
}

// New creates the traces and assessments tables and indexes if they don't
// exist, then returns a Store backed by the provided *sql.DB.
func New(db *sql.DB) (*Store, error) {
	if _, err := db.Exec(`PRAGMA journal_mode=WAL`); err != nil {
		return nil, fmt.Errorf("set WAL mode: %w", err)
	}

	if _, err := db.Exec(`
		CREATE TABLE IF NOT EXISTS traces (
			trace_id          TEXT    PRIMARY KEY,
			experiment_id     TEXT    NOT NULL,
			timestamp_ms      INTEGER NOT NULL,
			execution_time_ms INTEGER NOT NULL,
			status            TEXT    NOT NULL,
			tags              TEXT,
			request           TEXT,
			response          TEXT
		)
	`); err != nil {
		return nil, fmt.Errorf("create traces table: %w", err)
	}

	if _, err := db.Exec(`
		CREATE INDEX IF NOT EXISTS idx_traces_experiment_ts
		ON traces (experiment_id, timestamp_ms)
	`); err != nil {
		return nil, fmt.Errorf("create traces index: %w", err)
	}

	if _, err := db.Exec(`
		CREATE TABLE IF NOT EXISTS assessments (
			assessment_id       TEXT    PRIMARY KEY,
			trace_id            TEXT    NOT NULL,
			name                TEXT    NOT NULL,
			span_id             TEXT,
			source_type         TEXT    NOT NULL,
			source_id           TEXT    NOT NULL,
			create_time_ms      INTEGER NOT NULL,
			last_update_time_ms INTEGER NOT NULL,
			expectation         TEXT,
			feedback            TEXT,
			rationale           TEXT,
			metadata            TEXT
		)
	`); err != nil {
		return nil, fmt.Errorf("create assessments table: %w", err)
	}

	if _, err := db.Exec(`
		CREATE INDEX IF NOT EXISTS idx_assessments_trace
		ON assessments (trace_id, create_time_ms)
	`); err != nil {
		return nil, fmt.Errorf("create assessments index: %w", err)
	}

	return &Store{db: db}, nil
}

// LogTrace inserts a single trace row.
func (s *Store) LogTrace(info types.TraceInfo, data types.TraceData) error {
	tags, err := marshalNullable(info.Tags)
	if err != nil {
		return fmt.Errorf("marshal trace tags: %w", err)
	}
	_, err = s.db.Exec(
		`INSERT INTO traces (trace_id, experiment_id, timestamp_ms, execution_time_ms, status, tags, request, response)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		info.TraceID, info.ExperimentID, info.TimestampMS, info.ExecutionTimeMS, info.Status,
		tags, nullableRaw(data.Request), nullableRaw(data.Response),
	)
	if err != nil {
		return fmt.Errorf("log trace: %w", err)
	}
	return nil
}

// CreateAssessment persists a, assigning a fresh assessment ID and stamping
// any zero timestamps. The target trace must already exist.
func (s *Store) CreateAssessment(a *types.Assessment) (*types.Assessment, error) {
	var exists int
	err := s.db.QueryRow(`SELECT COUNT(*) FROM traces WHERE trace_id = ?`, a.TraceID).Scan(&exists)
	if err != nil {
		return nil, fmt.Errorf("check trace: %w", err)
	}
	if exists == 0 {
		return nil, fmt.Errorf("trace %q: %w", a.TraceID, ErrNotFound)
	}

	created := *a
	created.AssessmentID = "a-" + uuid.NewString()
	now := time.Now().UnixMilli()
	if created.CreateTimeMS == 0 {
		created.CreateTimeMS = now
	}
	if created.LastUpdateTimeMS == 0 {
		created.LastUpdateTimeMS = now
	}

	expectation, err := marshalNullable(created.Expectation)
	if err != nil {
		return nil, fmt.Errorf("marshal expectation: %w", err)
	}
	feedback, err := marshalNullable(created.Feedback)
	if err != nil {
		return nil, fmt.Errorf("marshal feedback: %w", err)
	}
	metadata, err := marshalNullable(created.Metadata)
	if err != nil {
		return nil, fmt.Errorf("marshal metadata: %w", err)
	}

	_, err = s.db.Exec(
		`INSERT INTO assessments
		 (assessment_id, trace_id, name, span_id, source_type, source_id,
		  create_time_ms, last_update_time_ms, expectation, feedback, rationale, metadata)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		created.AssessmentID, created.TraceID, created.Name, nullableString(created.SpanID),
		created.Source.SourceType, created.Source.SourceID,
		created.CreateTimeMS, created.LastUpdateTimeMS,
		expectation, feedback, nullableString(created.Rationale), metadata,
	)
	if err != nil {
		return nil, fmt.Errorf("create assessment: %w", err)
	}
	return &created, nil
}

// GetAssessment returns the assessment keyed by (traceID, assessmentID).
func (s *Store) GetAssessment(traceID, assessmentID string) (*types.Assessment, error) {
	row := s.db.QueryRow(
		`SELECT assessment_id, trace_id, name, span_id, source_type, source_id,
		        create_time_ms, last_update_time_ms, expectation, feedback, rationale, metadata
		 FROM assessments WHERE trace_id = ? AND assessment_id = ?`,
		traceID, assessmentID,
	)
	a, err := scanAssessment(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("assessment %q on trace %q: %w", assessmentID, traceID, ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("get assessment: %w", err)
	}
	return a, nil
}

// UpdateAssessment applies the non-nil fields of p to an existing assessment
// and restamps last_update_time_ms. Nil fields are left untouched.
func (s *Store) UpdateAssessment(p types.UpdateAssessmentParams) (*types.Assessment, error) {
	a, err := s.GetAssessment(p.TraceID, p.AssessmentID)
	if err != nil {
		return nil, err
	}

	if p.Name != nil {
		a.Name = *p.Name
	}
	if p.Expectation != nil {
		a.Expectation = p.Expectation
	}
	if p.Feedback != nil {
		a.Feedback = p.Feedback
	}
	if p.Rationale != nil {
		a.Rationale = p.Rationale
	}
	if p.Metadata != nil {
		a.Metadata = p.Metadata
	}
	a.LastUpdateTimeMS = time.Now().UnixMilli()

	expectation, err := marshalNullable(a.Expectation)
	if err != nil {
		return nil, fmt.Errorf("marshal expectation: %w", err)
	}
	feedback, err := marshalNullable(a.Feedback)
	if err != nil {
		return nil, fmt.Errorf("marshal feedback: %w", err)
	}
	metadata, err := marshalNullable(a.Metadata)
	if err != nil {
		return nil, fmt.Errorf("marshal metadata: %w", err)
	}

	_, err = s.db.Exec(
		`UPDATE assessments
		 SET name = ?, expectation = ?, feedback = ?, rationale = ?, metadata = ?, last_update_time_ms = ?
		 WHERE trace_id = ? AND assessment_id = ?`,
		a.Name, expectation, feedback, nullableString(a.Rationale), metadata, a.LastUpdateTimeMS,
		p.TraceID, p.AssessmentID,
	)
	if err != nil {
		return nil, fmt.Errorf("update assessment: %w", err)
	}
	return a, nil
}

// DeleteAssessment removes the assessment keyed by (traceID, assessmentID).
func (s *Store) DeleteAssessment(traceID, assessmentID string) error {
	res, err := s.db.Exec(
		`DELETE FROM assessments WHERE trace_id = ? AND assessment_id = ?`,
		traceID, assessmentID,
	)
	if err != nil {
		return fmt.Errorf("delete assessment: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("delete assessment: %w", err)
	}
	if n == 0 {
		return fmt.Errorf("assessment %q on trace %q: %w", assessmentID, traceID, ErrNotFound)
	}
	return nil
}

// ListAssessments returns all assessments for a trace, oldest first.
func (s *Store) ListAssessments(traceID string) ([]types.Assessment, error) {
	rows, err := s.db.Query(
		`SELECT assessment_id, trace_id, name, span_id, source_type, source_id,
		        create_time_ms, last_update_time_ms, expectation, feedback, rationale, metadata
		 FROM assessments WHERE trace_id = ?
		 ORDER BY create_time_ms ASC, assessment_id ASC`,
		traceID,
	)
	if err != nil {
		return nil, fmt.Errorf("list assessments: %w", err)
	}
	defer rows.Close()

	var result []types.Assessment
	for rows.Next() {
		a, err := scanAssessment(rows)
		if err != nil {
			return nil, fmt.Errorf("list assessments: %w", err)
		}
		result = append(result, *a)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("list assessments: %w", err)
	}
	return result, nil
}

// SearchTraces returns one page of traces for the given experiments, newest
// first, with assessments embedded. Pagination is keyset-based on
// (timestamp_ms, trace_id) so deletes between pages don't skip rows.
func (s *Store) SearchTraces(p types.SearchTracesParams) (*types.SearchTracesResult, error) {
	if len(p.ExperimentIDs) == 0 {
		return &types.SearchTracesResult{Traces: []types.TraceInfo{}}, nil
	}

	limit := p.MaxResults
	if limit <= 0 {
		limit = DefaultMaxResults
	}
	if limit > MaxResultsCeiling {
		limit = MaxResultsCeiling
	}

	args := make([]any, 0, len(p.ExperimentIDs)+3)
	placeholders := make([]string, len(p.ExperimentIDs))
	for i, id := range p.ExperimentIDs {
		placeholders[i] = "?"
		args = append(args, id)
	}

	query := `SELECT trace_id, experiment_id, timestamp_ms, execution_time_ms, status, tags
	          FROM traces WHERE experiment_id IN (` + strings.Join(placeholders, ", ") + `)`
	if p.PageToken != "" {
		ts, traceID, err := decodePageToken(p.PageToken)
		if err != nil {
			return nil, err
		}
		query += ` AND (timestamp_ms < ? OR (timestamp_ms = ? AND trace_id < ?))`
		args = append(args, ts, ts, traceID)
	}
	query += ` ORDER BY timestamp_ms DESC, trace_id DESC LIMIT ?`
	// Over-fetch by one to learn whether another page exists.
	args = append(args, limit+1)

	rows, err := s.db.Query(query, args...)
	if err != nil {
		return nil, fmt.Errorf("search traces: %w", err)
	}
	defer rows.Close()

	var infos []types.TraceInfo
	for rows.Next() {
		var info types.TraceInfo
		var tags sql.NullString
		if err := rows.Scan(&info.TraceID, &info.ExperimentID, &info.TimestampMS,
			&info.ExecutionTimeMS, &info.Status, &tags); err != nil {
			return nil, fmt.Errorf("search traces: %w", err)
		}
		if tags.Valid {
			if err := json.Unmarshal([]byte(tags.String), &info.Tags); err != nil {
				return nil, fmt.Errorf("unmarshal trace tags: %w", err)
			}
		}
		infos = append(infos, info)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("search traces: %w", err)
	}

	var nextToken string
	if len(infos) > limit {
		infos = infos[:limit]
		last := infos[len(infos)-1]
		nextToken = encodePageToken(last.TimestampMS, last.TraceID)
	}

	for i := range infos {
		assessments, err := s.ListAssessments(infos[i].TraceID)
		if err != nil {
			return nil, err
		}
		infos[i].Assessments = assessments
	}

	if infos == nil {
		infos = []types.TraceInfo{}
	}
	return &types.SearchTracesResult{Traces: infos, NextPageToken: nextToken}, nil
}

// rowScanner is satisfied by both *sql.Row and *sql.Rows.
type rowScanner interface {
	Scan(dest ...any) error
}

func scanAssessment(row rowScanner) (*types.Assessment, error) {
	var a types.Assessment
	var spanID, expectation, feedback, rationale, metadata sql.NullString
	err := row.Scan(&a.AssessmentID, &a.TraceID, &a.Name, &spanID,
		&a.Source.SourceType, &a.Source.SourceID,
		&a.CreateTimeMS, &a.LastUpdateTimeMS,
		&expectation, &feedback, &rationale, &metadata)
	if err != nil {
		return nil, err
	}
	if spanID.Valid {
		a.SpanID = &spanID.String
	}
	if rationale.Valid {
		a.Rationale = &rationale.String
	}
	if expectation.Valid {
		if err := json.Unmarshal([]byte(expectation.String), &a.Expectation); err != nil {
			return nil, fmt.Errorf("unmarshal expectation: %w", err)
		}
	}
	if feedback.Valid {
		if err := json.Unmarshal([]byte(feedback.String), &a.Feedback); err != nil {
			return nil, fmt.Errorf("unmarshal feedback: %w", err)
		}
	}
	if metadata.Valid {
		if err := json.Unmarshal([]byte(metadata.String), &a.Metadata); err != nil {
			return nil, fmt.Errorf("unmarshal metadata: %w", err)
		}
	}
	return &a, nil
}

// marshalNullable marshals v to a TEXT column value, mapping nil to SQL NULL.
func marshalNullable(v any) (any, error) {
	switch val := v.(type) {
	case nil:
		return nil, nil
	case *types.Expectation:
		if val == nil {
			return nil, nil
		}
	case *types.Feedback:
		if val == nil {
			return nil, nil
		}
	case map[string]string:
		if val == nil {
			return nil, nil
		}
	}
	data, err := json.Marshal(v)
	if err != nil {
		return nil, err
	}
	return string(data), nil
}

func nullableString(s *string) any {
	if s == nil {
		return nil
	}
	return *s
}

func nullableRaw(raw []byte) any {
	if len(raw) == 0 {
		return nil
	}
	return string(raw)
}

func encodePageToken(timestampMS int64, traceID string) string {
	return base64.RawURLEncoding.EncodeToString(
		[]byte(strconv.FormatInt(timestampMS, 10) + ":" + traceID))
}

func decodePageToken(token string) (int64, string, error) {
	raw, err := base64.RawURLEncoding.DecodeString(token)
	if err != nil {
		return 0, "", fmt.Errorf("%w: %s", ErrBadPageToken, token)
	}
	ts, traceID, ok := strings.Cut(string(raw), ":")
	if !ok {
		return 0, "", fmt.Errorf("%w: %s", ErrBadPageToken, token)
	}
	n, err := strconv.ParseInt(ts, 10, 64)
	if err != nil {
		return 0, "", fmt.Errorf("%w: %s", ErrBadPageToken, token)
	}
	return n, traceID, nil
}
