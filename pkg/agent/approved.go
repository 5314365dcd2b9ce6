package agent

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/pkg/errors"

	"github.com/fikriaf/ordo-backend/pkg/llm"
	"github.com/fikriaf/ordo-backend/pkg/models"

	"github.com/d4l-data4life/go-svc/pkg/logging"
)

// ExecuteApproved runs the frozen invocation snapshot of an approved
// request, records the outcome on the request, and appends it to the
// conversation so the next turn sees what happened.
func (a *Agent) ExecuteApproved(ctx context.Context, request *models.ApprovalRequest) (string, error) {
	if request.Status != models.ApprovalStatusApproved {
		return "", errors.Errorf("approval request %s is %s, not approved", request.ID, request.Status)
	}

	var args map[string]interface{}
	if len(request.Arguments) > 0 {
		if err := json.Unmarshal(request.Arguments, &args); err != nil {
			return "", errors.Wrap(err, "failed to decode approval arguments snapshot")
		}
	}

	toolCtx, cancel := context.WithTimeout(ctx, a.config.ToolExecutionTimeout)
	defer cancel()

	result, err := a.catalog.Execute(toolCtx, request.ToolName, args)

	var outcome string
	if err != nil {
		outcome = fmt.Sprintf("Error: %v", err)
		logging.LogErrorf(err, "Approved tool execution failed: %s", request.ToolName)
	} else {
		text := llm.ConvertContentToString(result.Content)
		outcome, _ = a.policy.FilterToolOutput(request.UserID.String(), request.ToolName, text)
	}

	if recordErr := a.gate.RecordOutcome(request.ID, outcome); recordErr != nil {
		logging.LogWarningf(recordErr, "Failed to record approval outcome for %s", request.ID)
	}

	note := &models.Message{
		Role: models.MessageRoleSystem,
		Content: fmt.Sprintf("The user approved and executed %s (approval %s). Result: %s",
			request.ToolName, request.ID, outcome),
	}
	if appendErr := a.store.Append(request.ConversationID, note); appendErr != nil {
		logging.LogWarningf(appendErr, "Failed to append approval outcome to conversation %s", request.ConversationID)
	}

	if err != nil {
		return outcome, err
	}
	return outcome, nil
}
