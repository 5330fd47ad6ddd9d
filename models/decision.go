package models

import (
	// Go Internal Packages
	"strings"

	// External Packages
	"github.com/shopspring/decimal"
)

// Issuer simulation thresholds.
var (
	declineAt     = decimal.NewFromInt(500)
	partialLow    = decimal.NewFromInt(155)
	partialHigh   = decimal.NewFromInt(200)
	partialCredit = decimal.NewFromInt(100)
)

// AuthDecision is the simulated issuer verdict for an authorization
// attempt.
type AuthDecision struct {
	Approved         bool
	Partial          bool
	ResponseCode     string
	ResponseText     string
	DeclineReason    string
	AuthorizedAmount string
	BalanceDue       string
}

// DecideAuthorization applies the emulator's issuer rules to the
// requested total and card number: totals of 500.00 and up decline,
// a PAN ending 0001 declines, totals in [155.00, 200.00) approve
// partially for 100.00, everything else approves in full.
func DecideAuthorization(total decimal.Decimal, pan string) AuthDecision {
	if strings.HasSuffix(pan, "0001") {
		return AuthDecision{
			ResponseCode:  "05",
			ResponseText:  "DECLINE",
			DeclineReason: "CARD DECLINED",
		}
	}
	if total.GreaterThanOrEqual(declineAt) {
		return AuthDecision{
			ResponseCode:  "05",
			ResponseText:  "DECLINE",
			DeclineReason: "AMOUNT TOO HIGH",
		}
	}
	if total.GreaterThanOrEqual(partialLow) && total.LessThan(partialHigh) {
		return AuthDecision{
			Approved:         true,
			Partial:          true,
			ResponseCode:     "10",
			ResponseText:     "PARTIAL APPROVAL",
			AuthorizedAmount: FormatAmount(partialCredit),
			BalanceDue:       FormatAmount(total.Sub(partialCredit)),
		}
	}
	return AuthDecision{
		Approved:         true,
		ResponseCode:     "00",
		ResponseText:     "APPROVAL",
		AuthorizedAmount: FormatAmount(total),
	}
}
