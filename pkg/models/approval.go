package models

import (
	"errors"
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

// define error messages
var (
	ErrApprovalNotFound = errors.New("failed finding approval request")
	ErrApprovalDecided  = errors.New("approval request already decided")
)

// ApprovalStatus defines the lifecycle states of an approval request
type ApprovalStatus string

const (
	ApprovalStatusPending  ApprovalStatus = "pending"
	ApprovalStatusApproved ApprovalStatus = "approved"
	ApprovalStatusRejected ApprovalStatus = "rejected"
	ApprovalStatusExpired  ApprovalStatus = "expired"
)

// Terminal reports whether the status can no longer change
func (s ApprovalStatus) Terminal() bool {
	return s == ApprovalStatusApproved || s == ApprovalStatusRejected || s == ApprovalStatusExpired
}

// InvocationEstimate is the policy layer's view of how consequential a
// tool invocation is. Nil fields mean no estimate could be derived.
type InvocationEstimate struct {
	USDValue     *float64
	RiskScore    *float64
	Alternatives []string
}

// ApprovalRequest represents a sensitive tool invocation awaiting a user decision.
// Arguments holds the exact invocation snapshot so an approved request
// executes what was originally asked, not what the catalog looks like now.
type ApprovalRequest struct {
	ID                 uuid.UUID      `gorm:"type:uuid;default:gen_random_uuid();primaryKey" json:"id"`
	UserID             uuid.UUID      `gorm:"type:uuid;not null;index" json:"userId"`
	ConversationID     uuid.UUID      `gorm:"type:uuid;not null;index" json:"conversationId"`
	ToolName           string         `gorm:"size:255;not null" json:"toolName"`
	Arguments          datatypes.JSON `gorm:"type:jsonb;not null;default:'{}'" json:"arguments"`
	Reason             string         `gorm:"type:text" json:"reason,omitempty"`
	EstimatedUSDValue  *float64       `json:"estimatedUsdValue,omitempty"`
	EstimatedRiskScore *float64       `json:"estimatedRiskScore,omitempty"`
	Alternatives       datatypes.JSON `gorm:"type:jsonb" json:"alternatives,omitempty"`
	Status             ApprovalStatus `gorm:"size:20;not null;default:'pending';index;check:status IN ('pending','approved','rejected','expired')" json:"status"`
	ExpiresAt          time.Time      `gorm:"not null;index" json:"expiresAt"`
	DecidedAt          *time.Time     `json:"decidedAt,omitempty"`
	Outcome            string         `gorm:"type:text" json:"outcome,omitempty"`
	CreatedAt          time.Time      `json:"createdAt"`
	UpdatedAt          time.Time      `json:"updatedAt"`

	// Associations
	User         User         `gorm:"foreignKey:UserID" json:"user,omitempty"`
	Conversation Conversation `gorm:"foreignKey:ConversationID" json:"conversation,omitempty"`
}

// TableName specifies the table name for ApprovalRequest model
func (ApprovalRequest) TableName() string {
	return "approval_requests"
}

// BeforeCreate hook to ensure ID is set
func (a *ApprovalRequest) BeforeCreate(tx *gorm.DB) error {
	if a.ID == uuid.Nil {
		a.ID = uuid.New()
	}
	return nil
}
