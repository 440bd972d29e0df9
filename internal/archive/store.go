package archive

import (
	"errors"
	"strings"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	dbmodel "ideaflow/cli/internal/db"
)

type MessageRecord struct {
	SessionID string
	IdeaID    string
	Phase     string
	Role      string
	Content   string
	CreatedAt time.Time
}

type UsageRecord struct {
	SessionID    string
	IdeaID       string
	Phase        string
	InputTokens  int
	OutputTokens int
	TotalTokens  int
}

// Store archives finalized transcript messages and token usage locally.
// Best effort throughout; callers log and move on.
type Store struct {
	db *gorm.DB
}

// NewStore uses the shared db handle. Caller must not close it.
func NewStore(gdb *gorm.DB) (*Store, error) {
	if gdb == nil {
		return nil, errors.New("db is required")
	}
	return &Store{db: gdb}, nil
}

func (s *Store) SaveMessage(r MessageRecord) error {
	if s == nil || s.db == nil {
		return errors.New("archive store is not initialized")
	}
	if strings.TrimSpace(r.SessionID) == "" {
		return errors.New("session id is required")
	}
	created := r.CreatedAt
	if created.IsZero() {
		created = time.Now()
	}
	row := dbmodel.TranscriptMessage{
		SessionID: r.SessionID,
		IdeaID:    r.IdeaID,
		Phase:     r.Phase,
		Role:      r.Role,
		Content:   r.Content,
		CreatedAt: created.UTC().Unix(),
	}
	return s.db.Create(&row).Error
}

func (s *Store) SaveUsage(r UsageRecord) error {
	if s == nil || s.db == nil {
		return errors.New("archive store is not initialized")
	}
	if strings.TrimSpace(r.SessionID) == "" {
		return errors.New("session id is required")
	}
	row := dbmodel.TokenUsageSnapshot{
		SessionID:    r.SessionID,
		IdeaID:       r.IdeaID,
		Phase:        r.Phase,
		InputTokens:  r.InputTokens,
		OutputTokens: r.OutputTokens,
		TotalTokens:  r.TotalTokens,
		UpdatedAt:    time.Now().UTC().Unix(),
	}
	return s.db.Clauses(clause.OnConflict{
		Columns: []clause.Column{{Name: "session_id"}, {Name: "phase"}},
		DoUpdates: clause.Assignments(map[string]any{
			"input_tokens":  row.InputTokens,
			"output_tokens": row.OutputTokens,
			"total_tokens":  row.TotalTokens,
			"updated_at":    row.UpdatedAt,
		}),
	}).Create(&row).Error
}

// ListMessages returns the most recent archived messages for an idea,
// oldest first.
func (s *Store) ListMessages(ideaID string, limit int) ([]MessageRecord, error) {
	if s == nil || s.db == nil {
		return nil, errors.New("archive store is not initialized")
	}
	if limit <= 0 {
		limit = 100
	}
	var rows []dbmodel.TranscriptMessage
	err := s.db.
		Where("idea_id = ?", ideaID).
		Order("created_at DESC").
		Limit(limit).
		Find(&rows).Error
	if err != nil {
		return nil, err
	}
	out := make([]MessageRecord, 0, len(rows))
	for i := len(rows) - 1; i >= 0; i-- {
		row := rows[i]
		out = append(out, MessageRecord{
			SessionID: row.SessionID,
			IdeaID:    row.IdeaID,
			Phase:     row.Phase,
			Role:      row.Role,
			Content:   row.Content,
			CreatedAt: time.Unix(row.CreatedAt, 0).UTC(),
		})
	}
	return out, nil
}

// Usage returns the latest usage snapshot for a session and phase.
func (s *Store) Usage(sessionID, phase string) (UsageRecord, error) {
	if s == nil || s.db == nil {
		return UsageRecord{}, errors.New("archive store is not initialized")
	}
	var row dbmodel.TokenUsageSnapshot
	err := s.db.
		Where("session_id = ? AND phase = ?", sessionID, phase).
		First(&row).Error
	if err != nil {
		return UsageRecord{}, err
	}
	return UsageRecord{
		SessionID:    row.SessionID,
		IdeaID:       row.IdeaID,
		Phase:        row.Phase,
		InputTokens:  row.InputTokens,
		OutputTokens: row.OutputTokens,
		TotalTokens:  row.TotalTokens,
	}, nil
}
