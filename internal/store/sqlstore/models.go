package sqlstore

import "time"

// checkpointRecord is the gorm model backing checkpoint.Store. State is
// stored as JSON text rather than normalized columns.
type checkpointRecord struct {
	CheckpointID string `gorm:"primaryKey"`
	SessionID    string `gorm:"index"`
	NodeID       string
	StateJSON    string `gorm:"type:text"`
	Phase        string
	ApprovalID   string
	PausedAt     string
	CreatedAt    time.Time `gorm:"index"`
}

func (checkpointRecord) TableName() string { return "checkpoints" }

// sessionRecord is the gorm model backing session.Store.
type sessionRecord struct {
	SessionID               string `gorm:"primaryKey"`
	UserID                  string `gorm:"index"`
	WorkflowType            string
	Status                  string
	CreatedAt               time.Time
	UpdatedAt               time.Time
	CurrentNode             string
	ExecutionCount          int
	ConversationHistoryJSON string `gorm:"type:text"`
	WorkflowStateJSON       string `gorm:"type:text"`
}

func (sessionRecord) TableName() string { return "sessions" }

// approvalRecord is the gorm model backing approval.Store.
type approvalRecord struct {
	ApprovalID      string `gorm:"primaryKey"`
	SessionID       string `gorm:"index"`
	WorkflowType    string
	RequestDataJSON string `gorm:"type:text"`
	Status          string `gorm:"index"`
	Amount          float64
	Recipient       string
	RequestedAt     time.Time
	ApprovedAt      *time.Time
	ApproverID      string
	RejectionReason string
}

func (approvalRecord) TableName() string { return "approvals" }
