package handlers_test

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fikriaf/ordo-backend/internal/testutils"
	"github.com/fikriaf/ordo-backend/pkg/agent"
	"github.com/fikriaf/ordo-backend/pkg/approval"
	"github.com/fikriaf/ordo-backend/pkg/config"
	"github.com/fikriaf/ordo-backend/pkg/conversation"
	"github.com/fikriaf/ordo-backend/pkg/handlers"
	"github.com/fikriaf/ordo-backend/pkg/mcp/client"
	"github.com/fikriaf/ordo-backend/pkg/mcp/gateway"
	"github.com/fikriaf/ordo-backend/pkg/mcp/protocol"
	"github.com/fikriaf/ordo-backend/pkg/models"
	"github.com/fikriaf/ordo-backend/pkg/policy"
	"github.com/fikriaf/ordo-backend/pkg/tools"

	"github.com/d4l-data4life/go-svc/pkg/db"
)

// transferPlugin backs the approve path with one executable tool
type transferPlugin struct {
	calls int
}

func (p *transferPlugin) ID() string          { return "wallet" }
func (p *transferPlugin) Description() string { return "test wallet" }

func (p *transferPlugin) SensitiveTools() []string { return []string{"transfer"} }

func (p *transferPlugin) Tools() []protocol.Tool {
	return []protocol.Tool{{
		Name: "transfer",
		InputSchema: tools.ObjectSchema(map[string]interface{}{
			"to":         tools.Property("string", ""),
			"amount_sol": tools.Property("number", ""),
		}, "to", "amount_sol"),
	}}
}

func (p *transferPlugin) Call(_ context.Context, name string, _ map[string]interface{}) (*protocol.CallToolResult, error) {
	p.calls++
	return &protocol.CallToolResult{Content: protocol.TextContent("transfer submitted")}, nil
}

type approvalFixture struct {
	handler *handlers.ApprovalsHandler
	gate    *approval.Gate
	plugin  *transferPlugin
	user    models.User
	conv    *models.Conversation
}

func setupApprovalsHandler(t *testing.T) *approvalFixture {
	models.InitializeTestDB(t)
	t.Cleanup(func() { db.Close() })

	user := testutils.CreateTestUser(t, "alice", models.AutonomyLevelSemi)
	store := conversation.NewStore(db.Get(), 24*time.Hour, time.Hour)
	conv, err := store.Create(user.ID, "chat", "")
	require.NoError(t, err)

	plugin := &transferPlugin{}
	registry := tools.NewRegistry()
	require.NoError(t, registry.Register(plugin))
	factory := client.NewFactory("ordo-test", "0.0.1", time.Second)
	catalog := tools.NewCatalog(registry, gateway.NewGateway(nil, factory, config.GatewayConfig{}))

	gate := approval.NewGate(db.Get(), 15*time.Minute, time.Minute)
	window := conversation.NewWindow(store, nil, 10, 0, 0)
	ag := agent.NewAgent(store, window, catalog, policy.NewEngine(), gate, nil, agent.Config{})

	return &approvalFixture{
		handler: handlers.NewApprovalsHandler(gate, ag),
		gate:    gate,
		plugin:  plugin,
		user:    user,
		conv:    conv,
	}
}

func (f *approvalFixture) pendingRequest(t *testing.T) *models.ApprovalRequest {
	request, err := f.gate.Request(f.user.ID, f.conv.ID, "wallet__transfer",
		map[string]interface{}{"to": "somewhere", "amount_sol": 2.5}, "moves funds",
		models.InvocationEstimate{})
	require.NoError(t, err)
	return request
}

func TestListApprovals(t *testing.T) {
	f := setupApprovalsHandler(t)
	f.pendingRequest(t)
	rejected := f.pendingRequest(t)
	_, err := f.gate.Decide(f.user.ID, rejected.ID, false)
	require.NoError(t, err)

	req := userRequest(httptest.NewRequest(http.MethodGet, "/approvals?status=pending", nil), f.user)
	rec := httptest.NewRecorder()

	f.handler.ListApprovals(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	var requests []models.ApprovalRequest
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &requests))
	require.Len(t, requests, 1)
	assert.Equal(t, models.ApprovalStatusPending, requests[0].Status)
}

func TestGetApproval(t *testing.T) {
	f := setupApprovalsHandler(t)
	request := f.pendingRequest(t)

	req := userRequestWithID(httptest.NewRequest(http.MethodGet, "/approvals/id", nil), f.user, request.ID.String())
	rec := httptest.NewRecorder()

	f.handler.GetApproval(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	var got models.ApprovalRequest
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &got))
	assert.Equal(t, request.ID, got.ID)
	assert.Equal(t, "wallet__transfer", got.ToolName)
}

func TestGetApprovalScopedToOwner(t *testing.T) {
	f := setupApprovalsHandler(t)
	request := f.pendingRequest(t)
	other := testutils.CreateTestUser(t, "bob", models.AutonomyLevelSemi)

	req := userRequestWithID(httptest.NewRequest(http.MethodGet, "/approvals/id", nil), other, request.ID.String())
	rec := httptest.NewRecorder()

	f.handler.GetApproval(rec, req)

	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestApproveExecutesSnapshot(t *testing.T) {
	f := setupApprovalsHandler(t)
	request := f.pendingRequest(t)

	req := userRequestWithID(httptest.NewRequest(http.MethodPost, "/approvals/id/approve", nil), f.user, request.ID.String())
	rec := httptest.NewRecorder()

	f.handler.Approve(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	var resp handlers.DecisionResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, models.ApprovalStatusApproved, resp.Approval.Status)
	assert.Equal(t, "transfer submitted", resp.Outcome)
	assert.Equal(t, 1, f.plugin.calls)
}

func TestReject(t *testing.T) {
	f := setupApprovalsHandler(t)
	request := f.pendingRequest(t)

	req := userRequestWithID(httptest.NewRequest(http.MethodPost, "/approvals/id/reject", nil), f.user, request.ID.String())
	rec := httptest.NewRecorder()

	f.handler.Reject(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	var resp handlers.DecisionResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, models.ApprovalStatusRejected, resp.Approval.Status)
	assert.Empty(t, resp.Outcome)
	assert.Zero(t, f.plugin.calls)
}

func TestDecideTwiceConflicts(t *testing.T) {
	f := setupApprovalsHandler(t)
	request := f.pendingRequest(t)
	_, err := f.gate.Decide(f.user.ID, request.ID, false)
	require.NoError(t, err)

	req := userRequestWithID(httptest.NewRequest(http.MethodPost, "/approvals/id/approve", nil), f.user, request.ID.String())
	rec := httptest.NewRecorder()

	f.handler.Approve(rec, req)

	assert.Equal(t, http.StatusConflict, rec.Code)
	assert.Zero(t, f.plugin.calls)
}

func TestDecideExpiredIsGone(t *testing.T) {
	f := setupApprovalsHandler(t)
	request := f.pendingRequest(t)

	// push the deadline into the past
	require.NoError(t, db.Get().Model(&models.ApprovalRequest{}).
		Where("id = ?", request.ID).
		Update("expires_at", time.Now().Add(-time.Minute)).Error)

	req := userRequestWithID(httptest.NewRequest(http.MethodPost, "/approvals/id/approve", nil), f.user, request.ID.String())
	rec := httptest.NewRecorder()

	f.handler.Approve(rec, req)

	assert.Equal(t, http.StatusGone, rec.Code)
	assert.Zero(t, f.plugin.calls)
}

func TestDecideUnknownApproval(t *testing.T) {
	f := setupApprovalsHandler(t)

	req := userRequestWithID(httptest.NewRequest(http.MethodPost, "/approvals/id/reject", nil), f.user, uuid.New().String())
	rec := httptest.NewRecorder()

	f.handler.Reject(rec, req)

	assert.Equal(t, http.StatusNotFound, rec.Code)
}
