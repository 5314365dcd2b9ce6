package approval

import (
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fikriaf/ordo-backend/pkg/models"

	"github.com/d4l-data4life/go-svc/pkg/db"
)

func setupGate(t *testing.T, ttl time.Duration) (*Gate, models.User) {
	models.InitializeTestDB(t)
	t.Cleanup(func() { db.Close() })

	user := models.User{}
	require.NoError(t, db.Get().Create(&user).Error)

	return NewGate(db.Get(), ttl, time.Minute), user
}

func fileRequest(t *testing.T, gate *Gate, userID uuid.UUID) *models.ApprovalRequest {
	request, err := gate.Request(userID, uuid.New(), "wallet__transfer",
		map[string]interface{}{"to": "somewhere", "amount_sol": 2.5}, "sensitive operation",
		models.InvocationEstimate{})
	require.NoError(t, err)
	return request
}

func TestGate_RequestFreezesSnapshot(t *testing.T) {
	gate, user := setupGate(t, 15*time.Minute)

	request := fileRequest(t, gate, user.ID)
	assert.Equal(t, models.ApprovalStatusPending, request.Status)
	assert.Equal(t, "wallet__transfer", request.ToolName)
	assert.JSONEq(t, `{"to":"somewhere","amount_sol":2.5}`, string(request.Arguments))
	assert.WithinDuration(t, time.Now().UTC().Add(15*time.Minute), request.ExpiresAt, 5*time.Second)
}

func TestGate_Approve(t *testing.T) {
	gate, user := setupGate(t, 15*time.Minute)
	request := fileRequest(t, gate, user.ID)

	decided, err := gate.Decide(user.ID, request.ID, true)
	require.NoError(t, err)
	assert.Equal(t, models.ApprovalStatusApproved, decided.Status)
	require.NotNil(t, decided.DecidedAt)

	stored, err := gate.Get(user.ID, request.ID)
	require.NoError(t, err)
	assert.Equal(t, models.ApprovalStatusApproved, stored.Status)
}

func TestGate_Reject(t *testing.T) {
	gate, user := setupGate(t, 15*time.Minute)
	request := fileRequest(t, gate, user.ID)

	decided, err := gate.Decide(user.ID, request.ID, false)
	require.NoError(t, err)
	assert.Equal(t, models.ApprovalStatusRejected, decided.Status)
}

func TestGate_TerminalStatesNeverChange(t *testing.T) {
	gate, user := setupGate(t, 15*time.Minute)
	request := fileRequest(t, gate, user.ID)

	_, err := gate.Decide(user.ID, request.ID, false)
	require.NoError(t, err)

	// a second decision, in either direction, bounces
	decided, err := gate.Decide(user.ID, request.ID, true)
	assert.ErrorIs(t, err, ErrAlreadyFinal)
	assert.Equal(t, models.ApprovalStatusRejected, decided.Status)

	stored, err := gate.Get(user.ID, request.ID)
	require.NoError(t, err)
	assert.Equal(t, models.ApprovalStatusRejected, stored.Status)
}

func TestGate_DecideAfterDeadlineExpires(t *testing.T) {
	gate, user := setupGate(t, time.Nanosecond)
	request := fileRequest(t, gate, user.ID)

	decided, err := gate.Decide(user.ID, request.ID, true)
	assert.ErrorIs(t, err, ErrExpired)
	assert.Equal(t, models.ApprovalStatusExpired, decided.Status)

	stored, err := gate.Get(user.ID, request.ID)
	require.NoError(t, err)
	assert.Equal(t, models.ApprovalStatusExpired, stored.Status)
}

func TestGate_GetReportsOverduePendingAsExpired(t *testing.T) {
	gate, user := setupGate(t, time.Nanosecond)
	request := fileRequest(t, gate, user.ID)

	// read between sweeps, nothing decided the request
	stored, err := gate.Get(user.ID, request.ID)
	require.NoError(t, err)
	assert.Equal(t, models.ApprovalStatusExpired, stored.Status)
	assert.NotNil(t, stored.DecidedAt)
}

func TestGate_ListReportsOverduePendingAsExpired(t *testing.T) {
	gate, user := setupGate(t, time.Nanosecond)
	fileRequest(t, gate, user.ID)

	pending, err := gate.List(user.ID, models.ApprovalStatusPending)
	require.NoError(t, err)
	assert.Empty(t, pending)

	expired, err := gate.List(user.ID, models.ApprovalStatusExpired)
	require.NoError(t, err)
	assert.Len(t, expired, 1)
}

func TestGate_UserScoping(t *testing.T) {
	gate, user := setupGate(t, 15*time.Minute)
	request := fileRequest(t, gate, user.ID)

	other := models.User{}
	require.NoError(t, db.Get().Create(&other).Error)

	_, err := gate.Get(other.ID, request.ID)
	assert.ErrorIs(t, err, ErrNotFound)

	_, err = gate.Decide(other.ID, request.ID, true)
	assert.ErrorIs(t, err, ErrNotFound)

	// the owner still sees a pending request
	stored, err := gate.Get(user.ID, request.ID)
	require.NoError(t, err)
	assert.Equal(t, models.ApprovalStatusPending, stored.Status)
}

func TestGate_ListFiltersByStatus(t *testing.T) {
	gate, user := setupGate(t, 15*time.Minute)
	first := fileRequest(t, gate, user.ID)
	fileRequest(t, gate, user.ID)

	_, err := gate.Decide(user.ID, first.ID, true)
	require.NoError(t, err)

	all, err := gate.List(user.ID, "")
	require.NoError(t, err)
	assert.Len(t, all, 2)

	pending, err := gate.List(user.ID, models.ApprovalStatusPending)
	require.NoError(t, err)
	assert.Len(t, pending, 1)

	approved, err := gate.List(user.ID, models.ApprovalStatusApproved)
	require.NoError(t, err)
	assert.Len(t, approved, 1)
}

func TestGate_SweepExpiresOverduePending(t *testing.T) {
	gate, user := setupGate(t, time.Nanosecond)
	fileRequest(t, gate, user.ID)
	fileRequest(t, gate, user.ID)

	gate.sweep()

	expired, err := gate.List(user.ID, models.ApprovalStatusExpired)
	require.NoError(t, err)
	assert.Len(t, expired, 2)
	for _, request := range expired {
		assert.NotNil(t, request.DecidedAt)
	}
}

func TestGate_SweepLeavesDecidedAlone(t *testing.T) {
	gate, user := setupGate(t, time.Nanosecond)
	request := fileRequest(t, gate, user.ID)

	// force the decision through directly, Decide would expire it
	require.NoError(t, db.Get().Model(&models.ApprovalRequest{}).
		Where("id = ?", request.ID).
		Update("status", models.ApprovalStatusApproved).Error)

	gate.sweep()

	stored, err := gate.Get(user.ID, request.ID)
	require.NoError(t, err)
	assert.Equal(t, models.ApprovalStatusApproved, stored.Status)
}

func TestGate_RecordOutcome(t *testing.T) {
	gate, user := setupGate(t, 15*time.Minute)
	request := fileRequest(t, gate, user.ID)

	_, err := gate.Decide(user.ID, request.ID, true)
	require.NoError(t, err)

	require.NoError(t, gate.RecordOutcome(request.ID, "transfer built"))

	stored, err := gate.Get(user.ID, request.ID)
	require.NoError(t, err)
	assert.Equal(t, "transfer built", stored.Outcome)
}
