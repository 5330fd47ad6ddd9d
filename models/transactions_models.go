package models

import (
	// External Packages
	"github.com/shopspring/decimal"
)

type TxType string

const (
	TxSale       TxType = "Sale"
	TxPreAuth    TxType = "PreAuth"
	TxCapture    TxType = "Capture"
	TxVoid       TxType = "Void"
	TxRefund     TxType = "Refund"
	TxTipAdjust  TxType = "TipAdjust"
	TxReversal   TxType = "Reversal"
	TxBatchClose TxType = "BatchClose"
	TxForceSale  TxType = "ForceSale"
)

type TxStatus string

const (
	StatusPending       TxStatus = "PENDING"
	StatusApproved      TxStatus = "APPROVED"
	StatusDeclined      TxStatus = "DECLINED"
	StatusVoided        TxStatus = "VOIDED"
	StatusSettled       TxStatus = "SETTLED"
	StatusRefunded      TxStatus = "REFUNDED"
	StatusPartialVoided TxStatus = "PARTIAL_VOIDED"
	StatusTipAdjusted   TxStatus = "TIP_ADJUSTED"
)

// Card acquisition methods.
const (
	AcquisitionInsert = "INSERT"
	AcquisitionSwipe  = "SWIPE"
	AcquisitionManual = "MANUAL"
	AcquisitionTap    = "TAP"
)

// Ids is the identity tuple the store allocates atomically for a new
// transaction.
type Ids struct {
	ID              string
	TranNo          string
	ReferenceNumber string
	ResponseID      string
}

// CardDetails describes the card presented for a payment, already
// masked.
type CardDetails struct {
	CardType        string
	MaskedPAN       string
	CardAcquisition string
}

// Transaction is the terminal's durable record of one operation.
// Amount fields are canonical two decimal strings; a Refund carries a
// negative totalAmount so that settled totals sum to the batch total.
type Transaction struct {
	ID                  string       `json:"id"`
	TranNo              string       `json:"tranNo"`
	ReferenceNumber     string       `json:"referenceNumber"`
	ResponseID          string       `json:"responseId"`
	ApprovalCode        string       `json:"approvalCode,omitempty"`
	Type                TxType       `json:"type"`
	Status              TxStatus     `json:"status"`
	BaseAmount          string       `json:"baseAmount,omitempty"`
	TipAmount           string       `json:"tipAmount,omitempty"`
	TaxAmount           string       `json:"taxAmount,omitempty"`
	CashbackAmount      string       `json:"cashbackAmount,omitempty"`
	TotalAmount         string       `json:"totalAmount"`
	AuthorizedAmount    string       `json:"authorizedAmount,omitempty"`
	CardAcquisition     string       `json:"cardAcquisition,omitempty"`
	CardType            string       `json:"cardType,omitempty"`
	MaskedPAN           string       `json:"maskedPAN,omitempty"`
	InvoiceNbr          string       `json:"invoiceNbr,omitempty"`
	Lodging             *LodgingInfo `json:"lodging,omitempty"`
	BatchID             string       `json:"batchId"`
	CreatedAt           string       `json:"createdAt"`
	UpdatedAt           string       `json:"updatedAt"`
	OriginalTransaction string       `json:"originalTransaction,omitempty"`
}

// Partial reports whether the approval covered less than the requested
// total. The requested total is the sum of the line items; the stored
// totalAmount tracks the money that will actually settle.
func (t *Transaction) Partial() bool {
	if t.AuthorizedAmount == "" {
		return false
	}
	requested, err := decimal.NewFromString(SumAmounts(t.BaseAmount, t.TipAmount, t.TaxAmount, t.CashbackAmount))
	if err != nil {
		return false
	}
	authorized, err := decimal.NewFromString(t.AuthorizedAmount)
	if err != nil {
		return false
	}
	return authorized.LessThan(requested)
}

type Batch struct {
	ID              string   `json:"id"`
	OpenTime        string   `json:"openTime"`
	CloseTime       string   `json:"closeTime,omitempty"`
	IsOpen          bool     `json:"isOpen"`
	Transactions    []string `json:"transactions"`
	SettlementCount int      `json:"settlementCount,omitempty"`
	TotalAmount     string   `json:"totalAmount,omitempty"`
}

type Counters struct {
	NextTranNo  int64 `json:"nextTranNo"`
	NextBatchNo int64 `json:"nextBatchNo"`
	NextRefNo   int64 `json:"nextRefNo"`
}

type DayStats struct {
	Count          int64  `json:"count"`
	ApprovedCount  int64  `json:"approvedCount"`
	DeclinedCount  int64  `json:"declinedCount"`
	ApprovedAmount string `json:"approvedAmount"`
}

type Statistics struct {
	TotalCount     int64                `json:"totalCount"`
	ApprovedCount  int64                `json:"approvedCount"`
	DeclinedCount  int64                `json:"declinedCount"`
	VoidedCount    int64                `json:"voidedCount"`
	RefundedCount  int64                `json:"refundedCount"`
	ApprovedAmount string               `json:"approvedAmount"`
	Daily          map[string]*DayStats `json:"daily,omitempty"`
}

// PersistedState is the single JSON document the emulator keeps on
// disk.
type PersistedState struct {
	Transactions []*Transaction `json:"transactions"`
	Batches      []*Batch       `json:"batches"`
	Counters     Counters       `json:"counters"`
	CurrentBatch string         `json:"currentBatch"`
	Statistics   Statistics     `json:"statistics"`
}

// BatchSummary is the settlement report a batch close returns.
type BatchSummary struct {
	BatchID         string `json:"batchId"`
	SalesCount      int    `json:"salesCount"`
	RefundCount     int    `json:"refundCount"`
	VoidCount       int    `json:"voidCount"`
	SettlementCount int    `json:"settlementCount"`
	NetAmount       string `json:"netAmount"`
	CloseTime       string `json:"closeTime"`
}

// TxSummary is the wire projection of a stored transaction, used by
// transaction listings and the admin surface.
type TxSummary struct {
	TranNo          string `json:"tranNo"`
	ReferenceNumber string `json:"referenceNumber"`
	Type            string `json:"type"`
	Status          string `json:"status"`
	TotalAmount     string `json:"totalAmount"`
	MaskedPAN       string `json:"maskedPAN,omitempty"`
	BatchID         string `json:"batchId"`
	CreatedAt       string `json:"createdAt"`
}

func (t *Transaction) Transform() TxSummary {
	return TxSummary{
		TranNo:          t.TranNo,
		ReferenceNumber: t.ReferenceNumber,
		Type:            string(t.Type),
		Status:          string(t.Status),
		TotalAmount:     t.TotalAmount,
		MaskedPAN:       t.MaskedPAN,
		BatchID:         t.BatchID,
		CreatedAt:       t.CreatedAt,
	}
}
