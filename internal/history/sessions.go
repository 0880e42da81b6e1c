package history

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"

	"quorum/internal/logging"
	"quorum/internal/types"
)

// CreateSession starts a new active session.
func (s *Store) CreateSession(tags []string) (*types.Session, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := time.Now().UTC()
	sess := &types.Session{
		ID:        uuid.NewString(),
		CreatedAt: now,
		UpdatedAt: now,
		Active:    true,
		Tags:      tags,
	}

	var tagsJSON sql.NullString
	if len(tags) > 0 {
		data, err := json.Marshal(tags)
		if err != nil {
			return nil, fmt.Errorf("failed to marshal tags: %w", err)
		}
		tagsJSON = sql.NullString{String: string(data), Valid: true}
	}

	_, err := s.db.Exec(`INSERT INTO sessions (id, created_at, updated_at, active, tags)
		VALUES (?, ?, ?, 1, ?)`, sess.ID, sess.CreatedAt, sess.UpdatedAt, tagsJSON)
	if err != nil {
		return nil, fmt.Errorf("failed to create session: %w", err)
	}

	logging.Session("created session %s", sess.ID)
	return sess, nil
}

// GetSession returns a session with its ordered consultation references.
func (s *Store) GetSession(id string) (*types.Session, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var sess types.Session
	var active int
	var tagsJSON sql.NullString
	err := s.db.QueryRow(`SELECT id, created_at, updated_at, active, tags
		FROM sessions WHERE id = ?`, id).
		Scan(&sess.ID, &sess.CreatedAt, &sess.UpdatedAt, &active, &tagsJSON)
	if err == sql.ErrNoRows {
		return nil, &types.NotFoundError{Kind: "session", ID: id}
	}
	if err != nil {
		return nil, err
	}
	sess.Active = active != 0
	if tagsJSON.Valid && tagsJSON.String != "" {
		_ = json.Unmarshal([]byte(tagsJSON.String), &sess.Tags)
	}

	rows, err := s.db.Query(`SELECT consultation_id FROM session_consultations
		WHERE session_id = ? ORDER BY position`, id)
	if err != nil {
		return nil, fmt.Errorf("failed to query session consultations: %w", err)
	}
	defer rows.Close()
	for rows.Next() {
		var cid string
		if err := rows.Scan(&cid); err != nil {
			return nil, err
		}
		sess.ConsultationIDs = append(sess.ConsultationIDs, cid)
	}
	return &sess, rows.Err()
}

// ListSessions returns all sessions, newest first.
func (s *Store) ListSessions(activeOnly bool) ([]*types.Session, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	query := "SELECT id, created_at, updated_at, active, tags FROM sessions"
	if activeOnly {
		query += " WHERE active = 1"
	}
	query += " ORDER BY created_at DESC"

	rows, err := s.db.Query(query)
	if err != nil {
		return nil, fmt.Errorf("failed to query sessions: %w", err)
	}
	defer rows.Close()

	var sessions []*types.Session
	for rows.Next() {
		var sess types.Session
		var active int
		var tagsJSON sql.NullString
		if err := rows.Scan(&sess.ID, &sess.CreatedAt, &sess.UpdatedAt, &active, &tagsJSON); err != nil {
			return nil, err
		}
		sess.Active = active != 0
		if tagsJSON.Valid && tagsJSON.String != "" {
			_ = json.Unmarshal([]byte(tagsJSON.String), &sess.Tags)
		}
		sessions = append(sessions, &sess)
	}
	return sessions, rows.Err()
}

// EndSession marks a session inactive.
func (s *Store) EndSession(id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	res, err := s.db.Exec("UPDATE sessions SET active = 0, updated_at = ? WHERE id = ?",
		time.Now().UTC(), id)
	if err != nil {
		return fmt.Errorf("failed to end session: %w", err)
	}
	affected, _ := res.RowsAffected()
	if affected == 0 {
		return &types.NotFoundError{Kind: "session", ID: id}
	}
	logging.Session("ended session %s", id)
	return nil
}

// joinSessionTx links a consultation to a session inside an open
// transaction, creating the session on first use.
func joinSessionTx(tx *sql.Tx, sessionID, consultationID string) error {
	now := time.Now().UTC()
	_, err := tx.Exec(`INSERT INTO sessions (id, created_at, updated_at, active)
		VALUES (?, ?, ?, 1)
		ON CONFLICT(id) DO UPDATE SET updated_at = excluded.updated_at`,
		sessionID, now, now)
	if err != nil {
		return fmt.Errorf("failed to upsert session: %w", err)
	}

	var next int
	if err := tx.QueryRow(`SELECT COALESCE(MAX(position), -1) + 1
		FROM session_consultations WHERE session_id = ?`, sessionID).Scan(&next); err != nil {
		return fmt.Errorf("failed to compute session position: %w", err)
	}
	_, err = tx.Exec(`INSERT OR IGNORE INTO session_consultations
		(session_id, consultation_id, position) VALUES (?, ?, ?)`,
		sessionID, consultationID, next)
	if err != nil {
		return fmt.Errorf("failed to link consultation to session: %w", err)
	}
	return nil
}

// SessionTranscript returns the prior queries and syntheses of a session,
// oldest first, for context carryover.
func (s *Store) SessionTranscript(sessionID string, limit int) ([]*types.ConsultationResult, error) {
	sess, err := s.GetSession(sessionID)
	if err != nil {
		return nil, err
	}
	ids := sess.ConsultationIDs
	if limit > 0 && len(ids) > limit {
		ids = ids[len(ids)-limit:]
	}
	results := make([]*types.ConsultationResult, 0, len(ids))
	for _, id := range ids {
		r, err := s.Get(id)
		if err != nil {
			return nil, err
		}
		results = append(results, r)
	}
	return results, nil
}
