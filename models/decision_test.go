package models

import (
	// Go Internal Packages
	"testing"

	// External Packages
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"
)

func amount(t *testing.T, s string) decimal.Decimal {
	t.Helper()
	d, err := decimal.NewFromString(s)
	require.NoError(t, err)
	return d
}

const approvingPAN = "4111111111111111"

func TestDecideAuthorizationApproves(t *testing.T) {
	d := DecideAuthorization(amount(t, "10.00"), approvingPAN)
	require.True(t, d.Approved)
	require.False(t, d.Partial)
	require.Equal(t, "00", d.ResponseCode)
	require.Equal(t, "APPROVAL", d.ResponseText)
	require.Equal(t, "10.00", d.AuthorizedAmount)

	// Just under the decline threshold still approves in full.
	d = DecideAuthorization(amount(t, "499.99"), approvingPAN)
	require.True(t, d.Approved)
	require.Equal(t, "499.99", d.AuthorizedAmount)
}

func TestDecideAuthorizationDeclinesHighAmount(t *testing.T) {
	d := DecideAuthorization(amount(t, "500.00"), approvingPAN)
	require.False(t, d.Approved)
	require.Equal(t, "AMOUNT TOO HIGH", d.DeclineReason)
	require.Equal(t, "05", d.ResponseCode)
}

func TestDecideAuthorizationDeclinesMarkedCard(t *testing.T) {
	d := DecideAuthorization(amount(t, "10.00"), "4761000000000001")
	require.False(t, d.Approved)
	require.Equal(t, "CARD DECLINED", d.DeclineReason)
}

func TestDecideAuthorizationPartialWindow(t *testing.T) {
	for _, total := range []string{"155.00", "178.20", "199.99"} {
		d := DecideAuthorization(amount(t, total), approvingPAN)
		require.True(t, d.Approved, total)
		require.True(t, d.Partial, total)
		require.Equal(t, "10", d.ResponseCode, total)
		require.Equal(t, "100.00", d.AuthorizedAmount, total)
	}

	d := DecideAuthorization(amount(t, "155.00"), approvingPAN)
	require.Equal(t, "55.00", d.BalanceDue)

	// The window is half open on the right.
	d = DecideAuthorization(amount(t, "200.00"), approvingPAN)
	require.True(t, d.Approved)
	require.False(t, d.Partial)

	d = DecideAuthorization(amount(t, "154.99"), approvingPAN)
	require.False(t, d.Partial)
}

func TestCardBrand(t *testing.T) {
	require.Equal(t, "VISA", CardBrand("4111111111111111"))
	require.Equal(t, "MASTERCARD", CardBrand("5555555555554444"))
	require.Equal(t, "AMEX", CardBrand("373953192351004"))
	require.Equal(t, "DISCOVER", CardBrand("6011000990139424"))
	require.Equal(t, "UNKNOWN", CardBrand("9999"))
}

func TestSimulateCardManualEntry(t *testing.T) {
	pan, card := SimulateCard("4761739001010010")
	require.Equal(t, "4761739001010010", pan)
	require.Equal(t, AcquisitionManual, card.CardAcquisition)
	require.Equal(t, "VISA", card.CardType)
	require.Equal(t, "476173******0010", card.MaskedPAN)
}

func TestSimulateCardDeckDraw(t *testing.T) {
	pan, card := SimulateCard("")
	require.NotEmpty(t, pan)
	require.NotEqual(t, AcquisitionManual, card.CardAcquisition)
	require.Contains(t, []string{AcquisitionInsert, AcquisitionTap, AcquisitionSwipe}, card.CardAcquisition)
	require.Contains(t, card.MaskedPAN, "*")
	require.Equal(t, CardBrand(pan), card.CardType)
}

func TestTransactionPartial(t *testing.T) {
	tx := &Transaction{BaseAmount: "155.00", AuthorizedAmount: "100.00", TotalAmount: "100.00"}
	require.True(t, tx.Partial())

	tx = &Transaction{BaseAmount: "20.00", AuthorizedAmount: "20.00", TotalAmount: "20.00"}
	require.False(t, tx.Partial())

	tx = &Transaction{BaseAmount: "20.00"}
	require.False(t, tx.Partial())
}
