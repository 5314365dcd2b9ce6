package policy

import (
	"context"
	"strings"

	"github.com/fikriaf/ordo-backend/pkg/models"

	"github.com/d4l-data4life/go-svc/pkg/logging"
)

// PriceQuoter reports the current SOL/USD price. The engine uses it to
// put a dollar figure on SOL-denominated invocations.
type PriceQuoter interface {
	SOLPriceUSD(ctx context.Context) (float64, error)
}

// Risk tiers by what a tool does to the outside world
const (
	riskReadOnly  = 0.1
	riskMutating  = 0.5
	riskValueMove = 0.8
)

// EstimateInvocation derives the USD value and risk score of one tool
// invocation. USD-denominated arguments are taken verbatim, SOL amounts
// are converted through the price quoter when one is configured.
func (e *Engine) EstimateInvocation(ctx context.Context, toolName string, args map[string]interface{}) models.InvocationEstimate {
	var est models.InvocationEstimate

	if usd, ok := usdAmount(args); ok {
		est.USDValue = &usd
	} else if sol, ok := solAmount(args); ok && e.quoter != nil {
		price, err := e.quoter.SOLPriceUSD(ctx)
		if err != nil {
			logging.LogWarningf(err, "SOL price unavailable, no USD estimate for %s", toolName)
		} else if price > 0 {
			usd := sol * price
			est.USDValue = &usd
		}
	}

	risk := riskScoreFor(toolName)
	est.RiskScore = &risk

	if est.USDValue != nil && risk >= riskValueMove {
		est.Alternatives = []string{
			"run a read-only check (balances, quotes) before moving funds",
			"retry with a smaller amount below the approval threshold",
		}
	}
	return est
}

// usdAmount pulls a USD-denominated amount out of the arguments when one
// is present under a conventional name
func usdAmount(args map[string]interface{}) (float64, bool) {
	for _, key := range []string{"amount_usd", "fiat_amount", "amountUsd"} {
		if v, ok := args[key].(float64); ok {
			return v, true
		}
	}
	return 0, false
}

// solAmount pulls a SOL-denominated amount out of the arguments
func solAmount(args map[string]interface{}) (float64, bool) {
	for _, key := range []string{"amount_sol", "amountSol", "sol_amount"} {
		if v, ok := args[key].(float64); ok {
			return v, true
		}
	}
	return 0, false
}

// riskScoreFor grades a tool by name. Value-moving operations score
// highest, other mutations in the middle, reads lowest.
func riskScoreFor(toolName string) float64 {
	name := strings.ToLower(toolName)
	switch {
	case containsAny(name, "transfer", "swap", "withdraw", "stake", "burn", "order"):
		return riskValueMove
	case containsAny(name, "send", "create", "execute", "submit", "cancel", "delete"):
		return riskMutating
	default:
		return riskReadOnly
	}
}

func containsAny(s string, subs ...string) bool {
	for _, sub := range subs {
		if strings.Contains(s, sub) {
			return true
		}
	}
	return false
}
