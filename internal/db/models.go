package db

// TranscriptMessage is one finalized chat message archived from a phase
// session. Streaming intermediates and queued input never land here.
type TranscriptMessage struct {
	ID        uint   `gorm:"primaryKey;autoIncrement"`
	SessionID string `gorm:"size:64;index:idx_transcript_session_created"`
	IdeaID    string `gorm:"size:64;index"`
	Phase     string `gorm:"size:16"`
	Role      string `gorm:"size:16"`
	Content   string
	CreatedAt int64 `gorm:"index:idx_transcript_session_created"`
}

func (TranscriptMessage) TableName() string { return "transcript_messages" }

// TokenUsageSnapshot records the latest usage report per session and phase.
type TokenUsageSnapshot struct {
	ID           uint   `gorm:"primaryKey;autoIncrement"`
	SessionID    string `gorm:"size:64;uniqueIndex:idx_usage_session_phase"`
	IdeaID       string `gorm:"size:64;index"`
	Phase        string `gorm:"size:16;uniqueIndex:idx_usage_session_phase"`
	InputTokens  int
	OutputTokens int
	TotalTokens  int
	UpdatedAt    int64
}

func (TokenUsageSnapshot) TableName() string { return "token_usage_snapshots" }
