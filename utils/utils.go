package utils

import (
	// Go Internal Packages
	"fmt"
	"math/rand"
	"strings"
	"time"
)

// ZeroPad renders n as a decimal string left-padded with zeros to width.
func ZeroPad(n int64, width int) string {
	return fmt.Sprintf("%0*d", width, n)
}

// NewRequestID derives the six digit request id from the current epoch
// milliseconds modulo one million.
func NewRequestID() string {
	return ZeroPad(time.Now().UnixMilli()%1_000_000, 6)
}

// MaskPAN keeps the first six and last four digits of a card number and
// blanks everything between them.
func MaskPAN(pan string) string {
	if len(pan) < 10 {
		return strings.Repeat("*", len(pan))
	}
	return pan[:6] + "******" + pan[len(pan)-4:]
}

// NowISO returns the current UTC time in ISO-8601 with millisecond
// precision.
func NowISO() string {
	return time.Now().UTC().Format("2006-01-02T15:04:05.000Z")
}

// ApprovalCode mints a six digit host approval code.
func ApprovalCode() string {
	return fmt.Sprintf("%06d", rand.Intn(1_000_000))
}
