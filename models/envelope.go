package models

import (
	// Go Internal Packages
	"encoding/json"
)

// Message types carried in the envelope's message field. MSG doubles
// as the request type on the POS side and a final response type on the
// terminal side.
const (
	MessageACK   = "ACK"
	MessageEVT   = "EVT"
	MessageDSP   = "DSP"
	MessagePIN   = "PIN"
	MessageCNF   = "CNF"
	MessageREADY = "READY"
	MessageMSG   = "MSG"
	MessageRSP   = "RSP"
	MessageERR   = "ERR"
)

const (
	ResultSuccess = "Success"
	ResultFailed  = "Failed"
)

// ResponseEOD is the response label every batch close alias resolves to.
const ResponseEOD = "EOD"

// IsFinalMessage reports whether a message type terminates a session.
// The allow-list is the only terminal gate: anything else keeps the
// session open.
func IsFinalMessage(msg string) bool {
	switch msg {
	case MessageMSG, MessageRSP, MessageERR:
		return true
	}
	return false
}

// IsProgressMessage reports whether a message type is a known
// non-terminal progress notification.
func IsProgressMessage(msg string) bool {
	switch msg {
	case MessageEVT, MessageDSP, MessagePIN, MessageCNF, MessageREADY:
		return true
	}
	return false
}

type RequestEnvelope struct {
	Message string      `json:"message"`
	Data    RequestData `json:"data"`
}

type RequestData struct {
	Command   string          `json:"command"`
	EcrID     string          `json:"EcrId"`
	RequestID string          `json:"requestId"`
	Data      json.RawMessage `json:"data,omitempty"`
}

// NewCommandEnvelope builds the standard request envelope the gateway
// sends for every command. A nil payload leaves the data block out.
func NewCommandEnvelope(command, ecrID, requestID string, payload any) (RequestEnvelope, error) {
	env := RequestEnvelope{
		Message: MessageMSG,
		Data: RequestData{
			Command:   command,
			EcrID:     ecrID,
			RequestID: requestID,
		},
	}
	if payload != nil {
		raw, err := json.Marshal(payload)
		if err != nil {
			return RequestEnvelope{}, err
		}
		env.Data.Data = raw
	}
	return env, nil
}

type ResponseEnvelope struct {
	Message string        `json:"message"`
	Data    *ResponseData `json:"data,omitempty"`
}

type ResponseData struct {
	Response     string        `json:"response,omitempty"`
	CmdResult    *CmdResult    `json:"cmdResult,omitempty"`
	EcrID        string        `json:"EcrId,omitempty"`
	RequestID    string        `json:"requestId,omitempty"`
	Display      string        `json:"display,omitempty"`
	Status       string        `json:"status,omitempty"`
	TranType     string        `json:"tranType,omitempty"`
	Host         *HostResult   `json:"host,omitempty"`
	Payment      *PaymentInfo  `json:"payment,omitempty"`
	Transaction  *AmountDetail `json:"transaction,omitempty"`
	BatchSummary *BatchSummary `json:"batchSummary,omitempty"`
	Batch        *BatchStatus  `json:"batch,omitempty"`
	Transactions []TxSummary   `json:"transactions,omitempty"`
}

type CmdResult struct {
	Result       string `json:"result"`
	ErrorCode    string `json:"errorCode,omitempty"`
	ErrorMessage string `json:"errorMessage,omitempty"`
}

type HostResult struct {
	ResponseText    string `json:"responseText,omitempty"`
	ResponseCode    string `json:"responseCode,omitempty"`
	ApprovalCode    string `json:"approvalCode,omitempty"`
	TranNo          string `json:"tranNo,omitempty"`
	ReferenceNumber string `json:"referenceNumber,omitempty"`
	ResponseID      string `json:"responseId,omitempty"`
	BatchID         string `json:"batchId,omitempty"`
	DeclineReason   string `json:"declineReason,omitempty"`
}

type PaymentInfo struct {
	CardType          string `json:"cardType,omitempty"`
	MaskedPAN         string `json:"maskedPAN,omitempty"`
	CardAcquisition   string `json:"cardAcquisition,omitempty"`
	SignatureRequired string `json:"signatureRequired,omitempty"`
}

type AmountDetail struct {
	BaseAmount       string `json:"baseAmount,omitempty"`
	TipAmount        string `json:"tipAmount,omitempty"`
	TaxAmount        string `json:"taxAmount,omitempty"`
	CashbackAmount   string `json:"cashbackAmount,omitempty"`
	TotalAmount      string `json:"totalAmount,omitempty"`
	AuthorizedAmount string `json:"authorizedAmount,omitempty"`
	BalanceDue       string `json:"balanceDue,omitempty"`
	Partial          string `json:"partial,omitempty"`
	InvoiceNbr       string `json:"invoiceNbr,omitempty"`
}

// BatchStatus answers a BatchInquiry for the open batch.
type BatchStatus struct {
	BatchID          string `json:"batchId"`
	OpenTime         string `json:"openTime"`
	IsOpen           bool   `json:"isOpen"`
	TransactionCount int    `json:"transactionCount"`
	UnsettledCount   int    `json:"unsettledCount"`
	UnsettledTotal   string `json:"unsettledTotal"`
}

// AckEnvelope is the bare acknowledgement the terminal sends on frame
// receipt.
func AckEnvelope() ResponseEnvelope {
	return ResponseEnvelope{Message: MessageACK}
}

// ReadyEnvelope is the welcome frame sent once per connection.
func ReadyEnvelope() ResponseEnvelope {
	return ResponseEnvelope{
		Message: MessageREADY,
		Data:    &ResponseData{Response: "SystemReady"},
	}
}

// DisplayEnvelope is a non-terminal customer display update.
func DisplayEnvelope(text string) ResponseEnvelope {
	return ResponseEnvelope{
		Message: MessageDSP,
		Data:    &ResponseData{Display: text},
	}
}
