// Package approval implements the human-in-the-loop gate for sensitive
// tool invocations. A pending request freezes the exact invocation
// snapshot, the user decides within a TTL, and a background sweep
// expires what they never answered.
package approval

import (
	"context"
	"encoding/json"
	"time"

	"github.com/google/uuid"
	"github.com/pkg/errors"
	"gorm.io/datatypes"
	"gorm.io/gorm"

	"github.com/fikriaf/ordo-backend/pkg/models"

	"github.com/d4l-data4life/go-svc/pkg/logging"
)

// Sentinel errors for gate operations
var (
	ErrExpired      = errors.New("approval request expired")
	ErrAlreadyFinal = errors.New("approval request already in a terminal state")
	ErrNotFound     = errors.New("approval request not found")
)

const (
	defaultTTL           = 15 * time.Minute
	defaultSweepInterval = time.Minute
)

// Gate owns the lifecycle of approval requests. Only Decide and the
// sweep move a request out of pending, execution layers never touch
// the status.
type Gate struct {
	db            *gorm.DB
	ttl           time.Duration
	sweepInterval time.Duration
}

// NewGate builds a gate. Zero durations fall back to the defaults.
func NewGate(db *gorm.DB, ttl, sweepInterval time.Duration) *Gate {
	if ttl <= 0 {
		ttl = defaultTTL
	}
	if sweepInterval <= 0 {
		sweepInterval = defaultSweepInterval
	}
	return &Gate{db: db, ttl: ttl, sweepInterval: sweepInterval}
}

// Request files a new pending approval with a frozen invocation
// snapshot, including the value and risk estimate the gate decided on
func (g *Gate) Request(userID, conversationID uuid.UUID, toolName string, arguments map[string]interface{}, reason string, est models.InvocationEstimate) (*models.ApprovalRequest, error) {
	argsJSON, err := json.Marshal(arguments)
	if err != nil {
		return nil, errors.Wrap(err, "failed to snapshot tool arguments")
	}

	request := &models.ApprovalRequest{
		UserID:             userID,
		ConversationID:     conversationID,
		ToolName:           toolName,
		Arguments:          datatypes.JSON(argsJSON),
		Reason:             reason,
		EstimatedUSDValue:  est.USDValue,
		EstimatedRiskScore: est.RiskScore,
		Status:             models.ApprovalStatusPending,
		ExpiresAt:          time.Now().UTC().Add(g.ttl),
	}
	if len(est.Alternatives) > 0 {
		alternativesJSON, err := json.Marshal(est.Alternatives)
		if err != nil {
			return nil, errors.Wrap(err, "failed to snapshot alternatives")
		}
		request.Alternatives = datatypes.JSON(alternativesJSON)
	}

	if err := g.db.Create(request).Error; err != nil {
		return nil, errors.Wrap(err, "failed to create approval request")
	}

	logging.LogInfof("Approval %s pending for tool %s (user %s)", request.ID, toolName, userID)
	return request, nil
}

// Get fetches one approval scoped to its owner. An overdue pending
// request reads as expired without waiting for the sweep.
func (g *Gate) Get(userID, requestID uuid.UUID) (*models.ApprovalRequest, error) {
	if _, err := g.expireOverdue(g.db.Where("id = ? AND user_id = ?", requestID, userID)); err != nil {
		return nil, errors.Wrap(err, "failed to expire overdue approval request")
	}
	return g.load(userID, requestID)
}

// load fetches the row as stored, without the expiry flip
func (g *Gate) load(userID, requestID uuid.UUID) (*models.ApprovalRequest, error) {
	var request models.ApprovalRequest
	err := g.db.First(&request, "id = ? AND user_id = ?", requestID, userID).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrNotFound
		}
		return nil, errors.Wrap(err, "failed to load approval request")
	}
	return &request, nil
}

// List returns a user's approvals, optionally filtered by status,
// newest first. Overdue pending rows flip to expired first so the
// pending list never shows a request nobody can decide anymore.
func (g *Gate) List(userID uuid.UUID, status models.ApprovalStatus) ([]models.ApprovalRequest, error) {
	if _, err := g.expireOverdue(g.db.Where("user_id = ?", userID)); err != nil {
		return nil, errors.Wrap(err, "failed to expire overdue approval requests")
	}

	query := g.db.Where("user_id = ?", userID).Order("created_at DESC")
	if status != "" {
		query = query.Where("status = ?", status)
	}

	var requests []models.ApprovalRequest
	if err := query.Find(&requests).Error; err != nil {
		return nil, errors.Wrap(err, "failed to list approval requests")
	}
	return requests, nil
}

// Decide moves a pending request to approved or rejected. Terminal
// requests never change again, and a pending request past its deadline
// expires instead of accepting the decision.
func (g *Gate) Decide(userID, requestID uuid.UUID, approve bool) (*models.ApprovalRequest, error) {
	request, err := g.load(userID, requestID)
	if err != nil {
		return nil, err
	}

	if request.Status.Terminal() {
		return request, ErrAlreadyFinal
	}

	now := time.Now().UTC()
	if now.After(request.ExpiresAt) {
		if err := g.transition(request, models.ApprovalStatusExpired, now); err != nil {
			return nil, err
		}
		return request, ErrExpired
	}

	status := models.ApprovalStatusRejected
	if approve {
		status = models.ApprovalStatusApproved
	}
	if err := g.transition(request, status, now); err != nil {
		return nil, err
	}

	logging.LogInfof("Approval %s decided: %s", request.ID, status)
	return request, nil
}

// RecordOutcome stores what happened after an approved request executed
func (g *Gate) RecordOutcome(requestID uuid.UUID, outcome string) error {
	err := g.db.Model(&models.ApprovalRequest{}).
		Where("id = ?", requestID).
		Update("outcome", outcome).Error
	return errors.Wrap(err, "failed to record approval outcome")
}

// transition updates the status guarded on the previous state so a
// concurrent decision cannot double-fire
func (g *Gate) transition(request *models.ApprovalRequest, status models.ApprovalStatus, now time.Time) error {
	result := g.db.Model(&models.ApprovalRequest{}).
		Where("id = ? AND status = ?", request.ID, models.ApprovalStatusPending).
		Updates(map[string]interface{}{
			"status":     status,
			"decided_at": now,
		})
	if result.Error != nil {
		return errors.Wrap(result.Error, "failed to update approval request")
	}
	if result.RowsAffected == 0 {
		return ErrAlreadyFinal
	}

	request.Status = status
	request.DecidedAt = &now
	return nil
}

// StartSweeper expires overdue pending requests in the background until
// the context is canceled
func (g *Gate) StartSweeper(ctx context.Context) {
	go func() {
		ticker := time.NewTicker(g.sweepInterval)
		defer ticker.Stop()

		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				g.sweep()
			}
		}
	}()
}

func (g *Gate) sweep() {
	count, err := g.expireOverdue(g.db)
	if err != nil {
		logging.LogErrorf(err, "Approval sweep failed")
		return
	}
	if count > 0 {
		logging.LogInfof("Expired %d overdue approval requests", count)
	}
}

// expireOverdue flips overdue pending rows to expired within whatever
// scope the caller already narrowed tx to
func (g *Gate) expireOverdue(tx *gorm.DB) (int64, error) {
	now := time.Now().UTC()
	result := tx.Model(&models.ApprovalRequest{}).
		Where("status = ? AND expires_at < ?", models.ApprovalStatusPending, now).
		Updates(map[string]interface{}{
			"status":     models.ApprovalStatusExpired,
			"decided_at": now,
		})
	return result.RowsAffected, result.Error
}
