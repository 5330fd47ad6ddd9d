package models

import (
	// Go Internal Packages
	"math/rand"
	"strings"

	// Local Packages
	utils "termbridge/utils"
)

// simDeck is the card deck the emulator draws from when a request does
// not present a card number.
var simDeck = []struct {
	brand string
	pan   string
}{
	{"VISA", "4761739001010010"},
	{"VISA", "4111111111111111"},
	{"MASTERCARD", "5413330089010434"},
	{"MASTERCARD", "5555555555554444"},
	{"AMEX", "373953192351004"},
	{"DISCOVER", "6011000990139424"},
}

var acquisitions = []string{AcquisitionInsert, AcquisitionTap, AcquisitionSwipe}

// CardBrand infers the card network from the PAN's leading digit.
func CardBrand(pan string) string {
	switch {
	case strings.HasPrefix(pan, "4"):
		return "VISA"
	case strings.HasPrefix(pan, "5"):
		return "MASTERCARD"
	case strings.HasPrefix(pan, "3"):
		return "AMEX"
	case strings.HasPrefix(pan, "6"):
		return "DISCOVER"
	}
	return "UNKNOWN"
}

// SimulateCard resolves the card presented for a payment. A caller
// supplied PAN is treated as a manual entry and keeps its digits;
// otherwise a card is drawn from the deck. The returned PAN is the full
// number for decision rules, the details carry only the masked form.
func SimulateCard(pan string) (string, CardDetails) {
	if pan != "" {
		return pan, CardDetails{
			CardType:        CardBrand(pan),
			MaskedPAN:       utils.MaskPAN(pan),
			CardAcquisition: AcquisitionManual,
		}
	}
	card := simDeck[rand.Intn(len(simDeck))]
	return card.pan, CardDetails{
		CardType:        card.brand,
		MaskedPAN:       utils.MaskPAN(card.pan),
		CardAcquisition: acquisitions[rand.Intn(len(acquisitions))],
	}
}
