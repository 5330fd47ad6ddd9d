package models

// CommandPayload is the inner data block of a request envelope. Amounts
// are canonical two decimal strings by the time they reach the wire.
type CommandPayload struct {
	Params      *TransactionParams `json:"params,omitempty"`
	Transaction *TransactionBlock  `json:"transaction,omitempty"`
	Lodging     *LodgingInfo       `json:"lodging,omitempty"`
}

// TransactionParams carries the modifiers of a command. Flag fields use
// the protocol's "0"/"1" convention.
type TransactionParams struct {
	AllowPartialAuth string `json:"allowPartialAuth,omitempty"`
	AllowDuplicate   string `json:"allowDuplicate,omitempty"`
	TaxIndicator     string `json:"taxIndicator,omitempty"`
	ClerkID          string `json:"clerkId,omitempty"`
	Limit            int    `json:"limit,omitempty"`
}

// TransactionBlock carries the amounts and references of a command.
// Which fields apply depends on the command; unused ones stay empty.
type TransactionBlock struct {
	BaseAmount      string `json:"baseAmount,omitempty"`
	TipAmount       string `json:"tipAmount,omitempty"`
	TaxAmount       string `json:"taxAmount,omitempty"`
	CashBackAmount  string `json:"cashBackAmount,omitempty"`
	Amount          string `json:"amount,omitempty"`
	PreAuthAmount   string `json:"preAuthAmount,omitempty"`
	TotalAmount     string `json:"totalAmount,omitempty"`
	TranNo          string `json:"tranNo,omitempty"`
	ReferenceNumber string `json:"referenceNumber,omitempty"`
	InvoiceNbr      string `json:"invoiceNbr,omitempty"`
	CardNumber      string `json:"cardNumber,omitempty"`
	ApprovalCode    string `json:"approvalCode,omitempty"`
}

// Identifier returns the reference the command targets, preferring the
// terminal transaction number over the host reference number.
func (t *TransactionBlock) Identifier() string {
	if t.TranNo != "" {
		return t.TranNo
	}
	return t.ReferenceNumber
}

type LodgingInfo struct {
	FolioNumber       string `json:"folioNumber,omitempty"`
	StayDuration      string `json:"stayDuration,omitempty"`
	CheckInDate       string `json:"checkInDate,omitempty"`
	CheckOutDate      string `json:"checkOutDate,omitempty"`
	DailyRate         string `json:"dailyRate,omitempty"`
	PreferredCustomer string `json:"preferredCustomer,omitempty"`
	ExtraChargeTotal  string `json:"extraChargeTotal,omitempty"`
}
