// Package policy enforces two safety layers around tool execution:
// outbound content filtering that keeps credentials and financial
// documents away from the model, and the decision whether a tool
// invocation needs an explicit user approval before it runs.
package policy

import (
	"fmt"
	"regexp"
	"sort"
	"strings"

	"github.com/fikriaf/ordo-backend/pkg/models"

	"github.com/d4l-data4life/go-svc/pkg/logging"
)

// patternDefs maps pattern names to their regex source. The set covers
// OTP and verification codes, recovery phrases, password resets, bank
// and tax documents, SSNs and card data.
var patternDefs = map[string]string{
	// OTP codes, 4-8 digit numeric sequences with context
	"OTP_CODE_STANDALONE":   `\b\d{4,8}\b\s*(?:is|:)`,
	"OTP_CODE_WITH_CONTEXT": `(?:code|otp|pin|token)[\s:]*\d{4,8}\b`,
	"OTP_CODE_YOUR":         `(?:your|the)\s+(?:code|otp|pin|token)[\s:]*(?:is|:)?\s*\d{4,8}\b`,
	"OTP_CODE_SENT":         `(?:sent|texted|emailed)\s+(?:you|your)?\s*(?:a|an|the)?\s*(?:code|otp|pin)[\s:]*\d{4,8}\b`,

	// Verification codes and links
	"VERIFICATION_CODE":        `(?:verification|verify|confirm|authentication|auth)[\s\w]*(?:code|token|pin)[\s:]*\d{4,8}\b`,
	"VERIFICATION_LINK":        `(?:verify|confirm|validate)[\s\w]*(?:email|account|identity|phone)`,
	"VERIFICATION_INSTRUCTION": `(?:enter|use|type)\s+(?:this|the|your)?\s*(?:code|token|pin)[\s:]*\d{4,8}\b`,

	// Recovery phrases, 12/24 word sequences
	"RECOVERY_PHRASE_NUMBERED": `(?:\d+[.)]\s*\w+\s*){11,}`,
	"RECOVERY_PHRASE_SEED":     `(?:seed|recovery|backup|mnemonic)\s+(?:phrase|words|key)`,
	"RECOVERY_PHRASE_WORDS":    `\b(?:word\s+\d+|1\.\s*\w+\s+2\.\s*\w+)`,

	// Password resets
	"PASSWORD_RESET":             `(?:reset|change|recover|forgot)[\s\w]*password`,
	"PASSWORD_RESET_LINK":        `(?:password|account)\s+(?:reset|recovery)\s+(?:link|url|request)`,
	"PASSWORD_RESET_INSTRUCTION": `(?:click|tap|follow)[\s\w]*(?:reset|change)[\s\w]*password`,
	"PASSWORD_NEW":               `(?:new|temporary|initial)\s+password[\s:]*\w+`,

	// Bank statements and financial documents
	"BANK_STATEMENT":   `(?:bank|account)\s+statement`,
	"ACCOUNT_BALANCE":  `(?:account|current|available)\s+balance[\s:]*\$?\d+`,
	"ROUTING_NUMBER":   `routing\s+(?:number|#)[\s:]*\d{9}`,
	"ACCOUNT_NUMBER":   `account\s+(?:number|#)[\s:]*\d{4,}`,
	"WIRE_TRANSFER":    `(?:wire|ach|direct)\s+(?:transfer|deposit)`,
	"STATEMENT_PERIOD": `statement\s+(?:period|date|for)[\s:]*\d{1,2}[/-]\d{1,2}`,

	// Tax documents
	"TAX_DOCUMENT_W2":   `\bW-?2\b`,
	"TAX_DOCUMENT_1099": `\b1099(?:-[A-Z]+)?\b`,
	"TAX_RETURN":        `tax\s+return`,
	"TAX_FORM":          `(?:tax|irs)\s+form`,
	"TAX_YEAR":          `(?:tax|filing)\s+year[\s:]*\d{4}`,
	"SSN":               `\b\d{3}-\d{2}-\d{4}\b`,
	"EIN":               `(?:ein|employer\s+id)[\s:]*\d{2}-\d{7}`,

	// Credit card information
	"CREDIT_CARD": `\b\d{4}[\s-]?\d{4}[\s-]?\d{4}[\s-]?\d{4}\b`,
	"CVV":         `\b(?:cvv|cvc|security\s+code)[\s:]*\d{3,4}\b`,
	"CARD_EXPIRY": `(?:exp|expiry|expires)[\s:]*\d{1,2}[/-]\d{2,4}`,
}

// Engine scans tool output for sensitive data and decides which tool
// invocations need a user approval
type Engine struct {
	patterns map[string]*regexp.Regexp
	quoter   PriceQuoter
}

// NewEngine compiles the pattern set
func NewEngine() *Engine {
	patterns := make(map[string]*regexp.Regexp, len(patternDefs))
	for name, src := range patternDefs {
		patterns[name] = regexp.MustCompile(`(?im)` + src)
	}
	return &Engine{patterns: patterns}
}

// WithPriceQuoter attaches a SOL/USD price source for value estimates
func (e *Engine) WithPriceQuoter(quoter PriceQuoter) *Engine {
	e.quoter = quoter
	return e
}

// Scan reports whether the text contains sensitive data, with the names
// of the matched patterns
func (e *Engine) Scan(text string) (bool, []string) {
	if text == "" {
		return false, nil
	}

	var matched []string
	for name, pattern := range e.patterns {
		if pattern.MatchString(text) {
			matched = append(matched, name)
		}
	}
	sort.Strings(matched)
	return len(matched) > 0, matched
}

// FilterToolOutput blocks tool output containing sensitive data before
// it reaches the model. The replacement text tells the model the result
// exists but was withheld.
func (e *Engine) FilterToolOutput(userID, toolName, output string) (string, bool) {
	sensitive, patterns := e.Scan(output)
	if !sensitive {
		return output, false
	}

	logging.LogInfof("Policy violation - user: %s, tool: %s, patterns: %s",
		userID, toolName, strings.Join(patterns, ","))

	return fmt.Sprintf("Content withheld: the result of %s contained sensitive data (%s) and was not shared with the assistant.",
		toolName, strings.Join(categoriesOf(patterns), ", ")), true
}

// RequiresApproval decides whether a tool invocation must wait for the
// user. Full autonomy proceeds unconditionally. Below that, a USD
// estimate over the user's threshold gates; a flagged-sensitive tool
// also gates when no USD figure exists to compare, and under manual
// autonomy regardless of the figure. The estimate comes from
// EstimateInvocation on the same engine.
func (e *Engine) RequiresApproval(user models.User, toolName string, est models.InvocationEstimate, markedSensitive bool) (bool, string) {
	if user.Autonomy == models.AutonomyLevelFull {
		return false, ""
	}

	var amount float64
	if est.USDValue != nil {
		amount = *est.USDValue
	}
	if user.RequireApprovalAboveUSD > 0 && amount > user.RequireApprovalAboveUSD {
		return true, fmt.Sprintf("estimated value %.2f USD exceeds the configured threshold", amount)
	}

	if markedSensitive && (user.Autonomy == models.AutonomyLevelManual || est.USDValue == nil) {
		return true, fmt.Sprintf("%s is a sensitive operation", toolName)
	}

	return false, ""
}

// categoriesOf collapses pattern names into their broad categories for
// user-facing messages
func categoriesOf(patterns []string) []string {
	seen := make(map[string]bool)
	var categories []string
	for _, p := range patterns {
		var cat string
		switch {
		case strings.Contains(p, "OTP"):
			cat = "one-time codes"
		case strings.Contains(p, "VERIFICATION"):
			cat = "verification codes"
		case strings.Contains(p, "RECOVERY"):
			cat = "recovery phrases"
		case strings.Contains(p, "PASSWORD"):
			cat = "password resets"
		case strings.Contains(p, "TAX"), p == "SSN", p == "EIN":
			cat = "tax documents"
		case strings.Contains(p, "CARD"), p == "CVV", p == "CREDIT_CARD":
			cat = "card data"
		default:
			cat = "financial documents"
		}
		if !seen[cat] {
			seen[cat] = true
			categories = append(categories, cat)
		}
	}
	sort.Strings(categories)
	return categories
}
