package policy

import (
	"context"
	"testing"

	"github.com/google/uuid"
	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"

	"github.com/fikriaf/ordo-backend/pkg/models"
)

func TestEngine_ScanDetectsSensitiveContent(t *testing.T) {
	engine := NewEngine()

	tests := []struct {
		name string
		text string
		want bool
	}{
		{"otp with context", "Your code is 482913", true},
		{"otp labeled", "OTP: 123456", true},
		{"verification code", "verification code 998877", true},
		{"seed phrase mention", "here is your recovery phrase backup", true},
		{"password reset", "Click here to reset your password", true},
		{"bank statement", "Your bank statement for March is attached", true},
		{"routing number", "routing number: 021000021", true},
		{"ssn", "SSN is 123-45-6789", true},
		{"w2 form", "Your W-2 is ready for download", true},
		{"credit card", "card 4111 1111 1111 1111", true},
		{"cvv", "CVV: 123", true},
		{"plain balance answer", "You hold 12.5 SOL and 300 USDC", false},
		{"token price", "SOL is trading at $147.32", false},
		{"empty", "", false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, patterns := engine.Scan(tt.text)
			assert.Equal(t, tt.want, got, "patterns: %v", patterns)
		})
	}
}

func TestEngine_FilterToolOutput(t *testing.T) {
	engine := NewEngine()
	userID := uuid.New().String()

	out, withheld := engine.FilterToolOutput(userID, "email__read_inbox", "Your code is 482913")
	assert.True(t, withheld)
	assert.NotContains(t, out, "482913")
	assert.Contains(t, out, "email__read_inbox")
	assert.Contains(t, out, "withheld")

	out, withheld = engine.FilterToolOutput(userID, "wallet__get_balance", "You hold 12.5 SOL")
	assert.False(t, withheld)
	assert.Equal(t, "You hold 12.5 SOL", out)
}

func TestEngine_RequiresApproval(t *testing.T) {
	engine := NewEngine()

	manual := models.User{ID: uuid.New(), Autonomy: models.AutonomyLevelManual, RequireApprovalAboveUSD: 100}
	semi := models.User{ID: uuid.New(), Autonomy: models.AutonomyLevelSemi, RequireApprovalAboveUSD: 100}
	full := models.User{ID: uuid.New(), Autonomy: models.AutonomyLevelFull, RequireApprovalAboveUSD: 100}

	tests := []struct {
		name      string
		user      models.User
		args      map[string]interface{}
		sensitive bool
		want      bool
	}{
		{"manual read-only passes", manual, nil, false, false},
		{"manual sensitive gates", manual, nil, true, true},
		{"manual sensitive small amount still gates", manual, map[string]interface{}{"amount_usd": 50.0}, true, true},
		{"semi read-only passes", semi, nil, false, false},
		{"semi sensitive without estimate gates", semi, nil, true, true},
		{"semi sensitive below threshold passes", semi, map[string]interface{}{"amount_usd": 50.0}, true, false},
		{"semi large amount gates", semi, map[string]interface{}{"amount_usd": 250.0}, false, true},
		{"semi small amount passes", semi, map[string]interface{}{"amount_usd": 50.0}, false, false},
		{"full sensitive passes", full, nil, true, false},
		{"full large amount passes", full, map[string]interface{}{"amount_usd": 250.0}, true, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			est := engine.EstimateInvocation(context.Background(), "wallet__transfer", tt.args)
			got, reason := engine.RequiresApproval(tt.user, "wallet__transfer", est, tt.sensitive)
			assert.Equal(t, tt.want, got)
			if got {
				assert.NotEmpty(t, reason)
			}
		})
	}
}

func TestEngine_RequiresApproval_NoThresholdConfigured(t *testing.T) {
	engine := NewEngine()
	full := models.User{ID: uuid.New(), Autonomy: models.AutonomyLevelFull, RequireApprovalAboveUSD: 0}

	est := engine.EstimateInvocation(context.Background(), "wallet__transfer", map[string]interface{}{"amount_usd": 1e6})
	got, _ := engine.RequiresApproval(full, "wallet__transfer", est, true)
	assert.False(t, got)
}

type fixedQuoter struct {
	price float64
	err   error
}

func (q fixedQuoter) SOLPriceUSD(ctx context.Context) (float64, error) {
	return q.price, q.err
}

func TestEngine_EstimateInvocation(t *testing.T) {
	t.Run("direct usd amount", func(t *testing.T) {
		engine := NewEngine()
		est := engine.EstimateInvocation(context.Background(), "wallet__transfer", map[string]interface{}{"amount_usd": 42.5})
		if assert.NotNil(t, est.USDValue) {
			assert.InDelta(t, 42.5, *est.USDValue, 0.001)
		}
	})

	t.Run("sol amount priced through quoter", func(t *testing.T) {
		engine := NewEngine().WithPriceQuoter(fixedQuoter{price: 150})
		est := engine.EstimateInvocation(context.Background(), "wallet__transfer", map[string]interface{}{"amount_sol": 2.0})
		if assert.NotNil(t, est.USDValue) {
			assert.InDelta(t, 300, *est.USDValue, 0.001)
		}
	})

	t.Run("quoter failure leaves value unknown", func(t *testing.T) {
		engine := NewEngine().WithPriceQuoter(fixedQuoter{err: errors.New("feed down")})
		est := engine.EstimateInvocation(context.Background(), "wallet__transfer", map[string]interface{}{"amount_sol": 2.0})
		assert.Nil(t, est.USDValue)
		assert.NotNil(t, est.RiskScore)
	})

	t.Run("no quoter leaves sol amounts unpriced", func(t *testing.T) {
		engine := NewEngine()
		est := engine.EstimateInvocation(context.Background(), "wallet__transfer", map[string]interface{}{"amount_sol": 2.0})
		assert.Nil(t, est.USDValue)
	})

	t.Run("risk tiers", func(t *testing.T) {
		engine := NewEngine()
		readOnly := engine.EstimateInvocation(context.Background(), "wallet__get_balance", nil)
		mutating := engine.EstimateInvocation(context.Background(), "nft__create_listing", nil)
		valueMove := engine.EstimateInvocation(context.Background(), "defi__swap", nil)
		if assert.NotNil(t, readOnly.RiskScore) && assert.NotNil(t, mutating.RiskScore) && assert.NotNil(t, valueMove.RiskScore) {
			assert.Less(t, *readOnly.RiskScore, *mutating.RiskScore)
			assert.Less(t, *mutating.RiskScore, *valueMove.RiskScore)
		}
	})

	t.Run("alternatives offered for priced value moves", func(t *testing.T) {
		engine := NewEngine().WithPriceQuoter(fixedQuoter{price: 150})
		est := engine.EstimateInvocation(context.Background(), "wallet__transfer", map[string]interface{}{"amount_sol": 5.0})
		assert.NotEmpty(t, est.Alternatives)
	})
}
