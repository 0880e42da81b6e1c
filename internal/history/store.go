// Package history persists consultations in SQLite: an append-mostly log
// with filtered listing, a metadata patch, session grouping, and optional
// embedding-based recall.
package history

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	_ "github.com/mattn/go-sqlite3"

	"quorum/internal/logging"
	"quorum/internal/types"
)

// Store is the SQLite-backed consultation history.
type Store struct {
	db     *sql.DB
	mu     sync.RWMutex
	dbPath string
}

// validOrderBy is the whitelist of caller-supplied sort keys. Anything else
// is a validation error, never interpolated into SQL.
var validOrderBy = map[string]string{
	"timestamp": "timestamp",
	"query":     "query",
	"mode":      "mode",
	"id":        "id",
}

// Filters narrows a List call. Zero values mean "no filter".
type Filters struct {
	From      time.Time
	To        time.Time
	Domain    string
	Mode      string
	TextQuery string
	SessionID string
	OrderBy   string // must be in the whitelist; empty means timestamp
	Limit     int
}

// NewStore opens (or creates) the history database at path.
func NewStore(path string) (*Store, error) {
	timer := logging.StartTimer(logging.CategoryHistory, "NewStore")
	defer timer.Stop()

	logging.History("opening history store at %s", path)

	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return nil, fmt.Errorf("failed to create directory: %w", err)
	}

	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	if _, err := db.Exec("PRAGMA busy_timeout = 5000"); err != nil {
		logging.HistoryDebug("failed to set busy_timeout: %v", err)
	}
	if _, err := db.Exec("PRAGMA journal_mode = WAL"); err != nil {
		logging.HistoryDebug("failed to set journal_mode=WAL: %v", err)
	}
	// synchronous=NORMAL is safe with WAL and much faster than FULL.
	if _, err := db.Exec("PRAGMA synchronous = NORMAL"); err != nil {
		logging.HistoryDebug("failed to set synchronous=NORMAL: %v", err)
	}

	s := &Store{db: db, dbPath: path}
	if err := s.initialize(); err != nil {
		db.Close()
		return nil, err
	}
	return s, nil
}

func (s *Store) initialize() error {
	schema := `
	CREATE TABLE IF NOT EXISTS consultations (
		id TEXT PRIMARY KEY,
		query TEXT NOT NULL,
		context TEXT,
		domain TEXT,
		mode TEXT NOT NULL,
		provider TEXT,
		model TEXT,
		request TEXT,
		synthesis TEXT,
		analysis TEXT,
		ranking TEXT,
		usage TEXT,
		session_id TEXT,
		tags TEXT,
		notes TEXT,
		timestamp DATETIME NOT NULL
	);
	CREATE INDEX IF NOT EXISTS idx_consultations_timestamp ON consultations(timestamp);
	CREATE INDEX IF NOT EXISTS idx_consultations_domain ON consultations(domain);
	CREATE INDEX IF NOT EXISTS idx_consultations_session ON consultations(session_id);

	CREATE TABLE IF NOT EXISTS members (
		consultation_id TEXT NOT NULL,
		position INTEGER NOT NULL,
		persona_id TEXT NOT NULL,
		content TEXT,
		error TEXT,
		provider TEXT,
		model TEXT,
		usage TEXT,
		latency_ms INTEGER,
		PRIMARY KEY (consultation_id, position),
		FOREIGN KEY (consultation_id) REFERENCES consultations(id) ON DELETE CASCADE
	);

	CREATE TABLE IF NOT EXISTS sessions (
		id TEXT PRIMARY KEY,
		created_at DATETIME NOT NULL,
		updated_at DATETIME NOT NULL,
		active INTEGER NOT NULL DEFAULT 1,
		tags TEXT
	);

	CREATE TABLE IF NOT EXISTS session_consultations (
		session_id TEXT NOT NULL,
		consultation_id TEXT NOT NULL,
		position INTEGER NOT NULL,
		PRIMARY KEY (session_id, consultation_id),
		FOREIGN KEY (session_id) REFERENCES sessions(id) ON DELETE CASCADE
	);

	CREATE TABLE IF NOT EXISTS recall_embeddings (
		consultation_id TEXT PRIMARY KEY,
		embedding TEXT NOT NULL,
		FOREIGN KEY (consultation_id) REFERENCES consultations(id) ON DELETE CASCADE
	);`
	if _, err := s.db.Exec(schema); err != nil {
		return fmt.Errorf("failed to initialize schema: %w", err)
	}
	return nil
}

// Close closes the database.
func (s *Store) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.db.Close()
}

// ValidateOrderBy checks a caller-supplied sort key against the whitelist.
func ValidateOrderBy(key string) (string, error) {
	if key == "" {
		return "timestamp", nil
	}
	col, ok := validOrderBy[key]
	if !ok {
		return "", types.NewValidationError("order_by",
			"invalid sort key %q, must be one of: timestamp, query, mode, id", key)
	}
	return col, nil
}

// Append persists a consultation result and returns its id. A missing id or
// timestamp is assigned here.
func (s *Store) Append(result *types.ConsultationResult) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if result.ID == "" {
		result.ID = uuid.NewString()
	}
	if result.Timestamp.IsZero() {
		result.Timestamp = time.Now().UTC()
	}

	analysisJSON, _ := marshalNullable(result.Analysis)
	rankingJSON, _ := marshalNullable(result.Ranking)
	usageJSON, err := json.Marshal(result.Usage)
	if err != nil {
		return "", fmt.Errorf("failed to marshal usage: %w", err)
	}

	// The full request round-trips through one JSON column; the scalar
	// columns exist for filtering. API keys never hit disk.
	storedReq := result.Request
	storedReq.APIKey = ""
	requestJSON, err := json.Marshal(storedReq)
	if err != nil {
		return "", fmt.Errorf("failed to marshal request: %w", err)
	}

	tx, err := s.db.Begin()
	if err != nil {
		return "", fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	_, err = tx.Exec(`INSERT INTO consultations
		(id, query, context, domain, mode, provider, model, request, synthesis, analysis, ranking, usage, session_id, timestamp)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		result.ID, result.Request.Query, result.Request.Context, result.Request.Domain,
		string(result.Request.Mode), result.Request.Provider, result.Request.Model,
		string(requestJSON), result.Synthesis, analysisJSON, rankingJSON, string(usageJSON),
		nullString(result.SessionID), result.Timestamp)
	if err != nil {
		return "", fmt.Errorf("failed to insert consultation: %w", err)
	}

	for i, m := range result.Responses {
		var memberUsage sql.NullString
		if m.Usage != (types.Usage{}) {
			data, err := json.Marshal(m.Usage)
			if err != nil {
				return "", fmt.Errorf("failed to marshal member usage: %w", err)
			}
			memberUsage = sql.NullString{String: string(data), Valid: true}
		}
		_, err = tx.Exec(`INSERT INTO members
			(consultation_id, position, persona_id, content, error, provider, model, usage, latency_ms)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
			result.ID, i, m.PersonaID, m.Content, m.Err, m.Provider, m.Model,
			memberUsage, m.Latency.Milliseconds())
		if err != nil {
			return "", fmt.Errorf("failed to insert member result: %w", err)
		}
	}

	if result.SessionID != "" {
		if err := joinSessionTx(tx, result.SessionID, result.ID); err != nil {
			return "", err
		}
	}

	if err := tx.Commit(); err != nil {
		return "", fmt.Errorf("failed to commit: %w", err)
	}

	logging.History("appended consultation %s (%d members, mode=%s)",
		result.ID, len(result.Responses), result.Request.Mode)
	return result.ID, nil
}

// Get returns a consultation by id.
func (s *Store) Get(id string) (*types.ConsultationResult, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	row := s.db.QueryRow(`SELECT id, query, context, domain, mode, provider, model,
		request, synthesis, analysis, ranking, usage, session_id, tags, notes, timestamp
		FROM consultations WHERE id = ?`, id)
	result, err := scanConsultation(row)
	if err == sql.ErrNoRows {
		return nil, &types.NotFoundError{Kind: "consultation", ID: id}
	}
	if err != nil {
		return nil, err
	}

	if err := s.loadMembers(result); err != nil {
		return nil, err
	}
	return result, nil
}

func (s *Store) loadMembers(result *types.ConsultationResult) error {
	rows, err := s.db.Query(`SELECT persona_id, content, error, provider, model, usage, latency_ms
		FROM members WHERE consultation_id = ? ORDER BY position`, result.ID)
	if err != nil {
		return fmt.Errorf("failed to query members: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var m types.MemberResult
		var content, errMsg, prov, model, usageJSON sql.NullString
		var latencyMs int64
		if err := rows.Scan(&m.PersonaID, &content, &errMsg, &prov, &model, &usageJSON, &latencyMs); err != nil {
			return fmt.Errorf("failed to scan member: %w", err)
		}
		m.Content = content.String
		m.Err = errMsg.String
		m.Provider = prov.String
		m.Model = model.String
		m.Latency = time.Duration(latencyMs) * time.Millisecond
		if usageJSON.Valid && usageJSON.String != "" {
			_ = json.Unmarshal([]byte(usageJSON.String), &m.Usage)
		}
		result.Responses = append(result.Responses, m)
	}
	return rows.Err()
}

// List returns consultations matching the filters, newest first by default.
func (s *Store) List(f Filters) ([]*types.ConsultationResult, error) {
	col, err := ValidateOrderBy(f.OrderBy)
	if err != nil {
		return nil, err
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	var conds []string
	var args []interface{}
	if !f.From.IsZero() {
		conds = append(conds, "timestamp >= ?")
		args = append(args, f.From)
	}
	if !f.To.IsZero() {
		conds = append(conds, "timestamp <= ?")
		args = append(args, f.To)
	}
	if f.Domain != "" {
		conds = append(conds, "domain = ?")
		args = append(args, f.Domain)
	}
	if f.Mode != "" {
		conds = append(conds, "mode = ?")
		args = append(args, f.Mode)
	}
	if f.SessionID != "" {
		conds = append(conds, "session_id = ?")
		args = append(args, f.SessionID)
	}
	if f.TextQuery != "" {
		conds = append(conds, "(query LIKE ? OR synthesis LIKE ?)")
		pattern := "%" + f.TextQuery + "%"
		args = append(args, pattern, pattern)
	}

	query := `SELECT id, query, context, domain, mode, provider, model,
		request, synthesis, analysis, ranking, usage, session_id, tags, notes, timestamp
		FROM consultations`
	if len(conds) > 0 {
		query += " WHERE " + strings.Join(conds, " AND ")
	}
	dir := "DESC"
	if col != "timestamp" {
		dir = "ASC"
	}
	query += fmt.Sprintf(" ORDER BY %s %s", col, dir)
	if f.Limit > 0 {
		query += " LIMIT ?"
		args = append(args, f.Limit)
	}

	rows, err := s.db.Query(query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query consultations: %w", err)
	}
	defer rows.Close()

	var results []*types.ConsultationResult
	for rows.Next() {
		result, err := scanConsultation(rows)
		if err != nil {
			return nil, err
		}
		results = append(results, result)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	for _, result := range results {
		if err := s.loadMembers(result); err != nil {
			return nil, err
		}
	}
	return results, nil
}

// UpdateMetadata patches tags and notes on a consultation. Nil leaves a
// field untouched; idempotent under repeated identical calls.
func (s *Store) UpdateMetadata(id string, tags []string, notes *string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	var sets []string
	var args []interface{}
	if tags != nil {
		data, err := json.Marshal(tags)
		if err != nil {
			return fmt.Errorf("failed to marshal tags: %w", err)
		}
		sets = append(sets, "tags = ?")
		args = append(args, string(data))
	}
	if notes != nil {
		sets = append(sets, "notes = ?")
		args = append(args, *notes)
	}
	if len(sets) == 0 {
		return nil
	}
	args = append(args, id)

	res, err := s.db.Exec("UPDATE consultations SET "+strings.Join(sets, ", ")+" WHERE id = ?", args...)
	if err != nil {
		return fmt.Errorf("failed to update metadata: %w", err)
	}
	affected, _ := res.RowsAffected()
	if affected == 0 {
		return &types.NotFoundError{Kind: "consultation", ID: id}
	}
	return nil
}

// Delete removes a consultation and its member rows.
func (s *Store) Delete(id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	tx, err := s.db.Begin()
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	res, err := tx.Exec("DELETE FROM consultations WHERE id = ?", id)
	if err != nil {
		return fmt.Errorf("failed to delete consultation: %w", err)
	}
	affected, _ := res.RowsAffected()
	if affected == 0 {
		return &types.NotFoundError{Kind: "consultation", ID: id}
	}
	// Cascade manually; sqlite3 foreign_keys defaults off.
	if _, err := tx.Exec("DELETE FROM members WHERE consultation_id = ?", id); err != nil {
		return fmt.Errorf("failed to delete members: %w", err)
	}
	if _, err := tx.Exec("DELETE FROM session_consultations WHERE consultation_id = ?", id); err != nil {
		return fmt.Errorf("failed to delete session link: %w", err)
	}
	if _, err := tx.Exec("DELETE FROM recall_embeddings WHERE consultation_id = ?", id); err != nil {
		return fmt.Errorf("failed to delete embedding: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit: %w", err)
	}
	logging.History("deleted consultation %s", id)
	return nil
}

// Tags returns the stored tags for a consultation.
func (s *Store) Tags(id string) ([]string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var tagsJSON sql.NullString
	err := s.db.QueryRow("SELECT tags FROM consultations WHERE id = ?", id).Scan(&tagsJSON)
	if err == sql.ErrNoRows {
		return nil, &types.NotFoundError{Kind: "consultation", ID: id}
	}
	if err != nil {
		return nil, err
	}
	if !tagsJSON.Valid || tagsJSON.String == "" {
		return nil, nil
	}
	var tags []string
	if err := json.Unmarshal([]byte(tagsJSON.String), &tags); err != nil {
		return nil, fmt.Errorf("failed to parse tags: %w", err)
	}
	return tags, nil
}

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanConsultation(row rowScanner) (*types.ConsultationResult, error) {
	var result types.ConsultationResult
	var context, domain, prov, model, requestJSON, synthesis, analysisJSON, rankingJSON, usageJSON, sessionID, tags, notes sql.NullString
	var mode string

	err := row.Scan(&result.ID, &result.Request.Query, &context, &domain, &mode,
		&prov, &model, &requestJSON, &synthesis, &analysisJSON, &rankingJSON, &usageJSON,
		&sessionID, &tags, &notes, &result.Timestamp)
	if err != nil {
		return nil, err
	}

	result.Request.Context = context.String
	result.Request.Domain = domain.String
	result.Request.Mode = types.Mode(mode)
	result.Request.Provider = prov.String
	result.Request.Model = model.String
	if requestJSON.Valid && requestJSON.String != "" {
		var req types.ConsultationRequest
		if err := json.Unmarshal([]byte(requestJSON.String), &req); err == nil {
			result.Request = req
		}
	}
	result.Synthesis = synthesis.String
	result.SessionID = sessionID.String

	if analysisJSON.Valid && analysisJSON.String != "" {
		var a types.Analysis
		if err := json.Unmarshal([]byte(analysisJSON.String), &a); err == nil {
			result.Analysis = &a
		}
	}
	if rankingJSON.Valid && rankingJSON.String != "" {
		var r []types.VoteTally
		if err := json.Unmarshal([]byte(rankingJSON.String), &r); err == nil {
			result.Ranking = r
		}
	}
	if usageJSON.Valid && usageJSON.String != "" {
		_ = json.Unmarshal([]byte(usageJSON.String), &result.Usage)
	}
	return &result, nil
}

func marshalNullable(v interface{}) (sql.NullString, error) {
	if v == nil {
		return sql.NullString{}, nil
	}
	switch x := v.(type) {
	case *types.Analysis:
		if x == nil {
			return sql.NullString{}, nil
		}
	case []types.VoteTally:
		if len(x) == 0 {
			return sql.NullString{}, nil
		}
	}
	data, err := json.Marshal(v)
	if err != nil {
		return sql.NullString{}, err
	}
	return sql.NullString{String: string(data), Valid: true}, nil
}

func nullString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}
