package dispatch

import (
	// Go Internal Packages
	"encoding/json"
	"path/filepath"
	"testing"
	"time"

	// Local Packages
	metrics "termbridge/metrics"
	models "termbridge/models"
	filestore "termbridge/repositories/filestore"

	// External Packages
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func newProcessor(t *testing.T) *Processor {
	t.Helper()
	path := filepath.Join(t.TempDir(), "state.json")
	store, err := filestore.Open(path, zap.NewNop(), metrics.New("test"))
	require.NoError(t, err)
	t.Cleanup(store.Close)
	return NewProcessor(zap.NewNop(), store, metrics.New("test"),
		Delays{Min: time.Millisecond, Max: 2 * time.Millisecond})
}

func request(command, payload string) models.RequestData {
	req := models.RequestData{Command: command, EcrID: "13", RequestID: "000100"}
	if payload != "" {
		req.Data = json.RawMessage(payload)
	}
	return req
}

func TestCanonicalFoldsAliases(t *testing.T) {
	cases := map[string]string{
		"Sale":               CmdSale,
		"CreditSale":         CmdSale,
		"PreAuthorization":   CmdPreAuth,
		"Capture":            CmdAuthCompletion,
		"AuthComplete":       CmdAuthCompletion,
		"VoidTransaction":    CmdVoid,
		"BatchClose":         CmdEOD,
		"EODProcessing":      CmdEOD,
		"TransactionStatus":  CmdStatusInquiry,
		"BatchStatus":        CmdBatchInquiry,
		"TransactionHistory": CmdTransactionList,
		"Reset":              CmdSystemReset,
		"ForceAuth":          CmdForceSale,
	}
	for alias, want := range cases {
		got, ok := Canonical(alias)
		require.True(t, ok, alias)
		require.Equal(t, want, got, alias)
	}

	_, ok := Canonical("MakeCoffee")
	require.False(t, ok)
}

func TestHandleUnknownCommand(t *testing.T) {
	p := newProcessor(t)

	reply := p.Handle(request("MakeCoffee", ""))
	require.Empty(t, reply.Progress)
	require.Equal(t, models.MessageMSG, reply.Final.Message)
	require.Equal(t, models.ResultFailed, reply.Final.Data.CmdResult.Result)
	require.Equal(t, "CMD001", reply.Final.Data.CmdResult.ErrorCode)
	require.Equal(t, `unknown command "MakeCoffee"`, reply.Final.Data.CmdResult.ErrorMessage)
	require.Equal(t, "MakeCoffee", reply.Final.Data.Response)
}

func TestHandleSaleApproved(t *testing.T) {
	p := newProcessor(t)

	reply := p.Handle(request("Sale",
		`{"transaction":{"baseAmount":"10.00","tipAmount":"2.00","cardNumber":"4111111111111111"}}`))

	require.Len(t, reply.Progress, 1)
	require.Equal(t, models.MessageDSP, reply.Progress[0].Message)

	data := reply.Final.Data
	require.Equal(t, models.ResultSuccess, data.CmdResult.Result)
	require.Equal(t, "Sale", data.Response)
	require.Equal(t, "13", data.EcrID)
	require.Equal(t, "000100", data.RequestID)
	require.Equal(t, "00", data.Host.ResponseCode)
	require.Equal(t, "APPROVAL", data.Host.ResponseText)
	require.Equal(t, "0001", data.Host.TranNo)
	require.NotEmpty(t, data.Host.ApprovalCode)
	require.Equal(t, "12.00", data.Transaction.TotalAmount)
	require.Equal(t, "12.00", data.Transaction.AuthorizedAmount)
	require.Empty(t, data.Transaction.Partial)
	require.Equal(t, "VISA", data.Payment.CardType)
	require.Equal(t, "411111******1111", data.Payment.MaskedPAN)
	require.Equal(t, models.AcquisitionManual, data.Payment.CardAcquisition)
	require.Equal(t, "0", data.Payment.SignatureRequired)

	stored, ok := p.Store.Find(data.Host.ReferenceNumber)
	require.True(t, ok)
	require.Equal(t, models.StatusApproved, stored.Status)
	require.Equal(t, "12.00", stored.TotalAmount)
}

func TestHandleSalePartialApproval(t *testing.T) {
	p := newProcessor(t)

	reply := p.Handle(request("Sale",
		`{"transaction":{"baseAmount":"155.00","cardNumber":"4111111111111111"}}`))

	data := reply.Final.Data
	require.Equal(t, models.ResultSuccess, data.CmdResult.Result)
	require.Equal(t, "10", data.Host.ResponseCode)
	require.Equal(t, "1", data.Transaction.Partial)
	require.Equal(t, "100.00", data.Transaction.AuthorizedAmount)
	require.Equal(t, "55.00", data.Transaction.BalanceDue)
	require.Equal(t, "155.00", data.Transaction.TotalAmount)

	// Only the authorized slice will settle.
	stored, ok := p.Store.Find(data.Host.ReferenceNumber)
	require.True(t, ok)
	require.Equal(t, "100.00", stored.TotalAmount)
}

func TestHandleSaleDeclined(t *testing.T) {
	p := newProcessor(t)

	reply := p.Handle(request("Sale",
		`{"transaction":{"baseAmount":"500.00","cardNumber":"4111111111111111"}}`))

	data := reply.Final.Data
	require.Equal(t, models.ResultFailed, data.CmdResult.Result)
	require.Equal(t, "DECLINE", data.CmdResult.ErrorCode)
	require.Equal(t, "AMOUNT TOO HIGH", data.CmdResult.ErrorMessage)
	require.Equal(t, "05", data.Host.ResponseCode)

	// The declined attempt is still recorded.
	stored, ok := p.Store.Find(data.Host.ReferenceNumber)
	require.True(t, ok)
	require.Equal(t, models.StatusDeclined, stored.Status)
	require.Equal(t, "500.00", stored.TotalAmount)
}

func TestHandleSaleValidation(t *testing.T) {
	p := newProcessor(t)

	reply := p.Handle(request("Sale", `{"transaction":{}}`))
	require.Empty(t, reply.Progress, "validation failures skip the display frame")
	require.Equal(t, models.ResultFailed, reply.Final.Data.CmdResult.Result)
	require.Equal(t, "AMT002", reply.Final.Data.CmdResult.ErrorCode)

	reply = p.Handle(request("Sale", `{"transaction":{"baseAmount":"abc"}}`))
	require.Equal(t, "AMT001", reply.Final.Data.CmdResult.ErrorCode)

	reply = p.Handle(request("Sale", `{"transaction":[`))
	require.Equal(t, "JSON001", reply.Final.Data.CmdResult.ErrorCode)
}

func TestHandleForceSale(t *testing.T) {
	p := newProcessor(t)

	// A force sale bypasses the issuer rules and keeps the voice
	// approval code the clerk keyed in.
	reply := p.Handle(request("ForceAuth",
		`{"transaction":{"baseAmount":"600.00","cardNumber":"4111111111111111","approvalCode":"VC1234"}}`))

	data := reply.Final.Data
	require.Equal(t, models.ResultSuccess, data.CmdResult.Result)
	require.Equal(t, "VC1234", data.Host.ApprovalCode)
	require.Equal(t, "ForceSale", data.Response)

	stored, ok := p.Store.Find(data.Host.ReferenceNumber)
	require.True(t, ok)
	require.Equal(t, models.TxForceSale, stored.Type)
	require.Equal(t, models.StatusApproved, stored.Status)
}

func TestHandleVoidFlow(t *testing.T) {
	p := newProcessor(t)

	sale := p.Handle(request("Sale",
		`{"transaction":{"baseAmount":"20.00","cardNumber":"4111111111111111"}}`))
	tranNo := sale.Final.Data.Host.TranNo

	reply := p.Handle(request("Void", `{"transaction":{"tranNo":"`+tranNo+`"}}`))
	data := reply.Final.Data
	require.Equal(t, models.ResultSuccess, data.CmdResult.Result)
	require.Equal(t, string(models.StatusVoided), data.Status)
	require.Equal(t, string(models.TxSale), data.TranType)
	require.Equal(t, "20.00", data.Transaction.TotalAmount)

	reply = p.Handle(request("Void", `{"transaction":{"tranNo":"`+tranNo+`"}}`))
	require.Equal(t, models.ResultFailed, reply.Final.Data.CmdResult.Result)
	require.Equal(t, "VOID001", reply.Final.Data.CmdResult.ErrorCode)
}

func TestHandleRefundFlow(t *testing.T) {
	p := newProcessor(t)

	sale := p.Handle(request("Sale",
		`{"transaction":{"baseAmount":"30.00","cardNumber":"4111111111111111"}}`))
	ref := sale.Final.Data.Host.ReferenceNumber

	reply := p.Handle(request("Refund",
		`{"transaction":{"referenceNumber":"`+ref+`","totalAmount":"30.00"}}`))
	data := reply.Final.Data
	require.Equal(t, models.ResultSuccess, data.CmdResult.Result)
	require.Equal(t, "30.00", data.Transaction.TotalAmount)

	orig, ok := p.Store.Find(ref)
	require.True(t, ok)
	require.Equal(t, models.StatusRefunded, orig.Status)

	// Unreferenced credits stand on their own.
	reply = p.Handle(request("Refund", `{"transaction":{"totalAmount":"5.00"}}`))
	require.Equal(t, models.ResultSuccess, reply.Final.Data.CmdResult.Result)
}

func TestHandleTipAdjust(t *testing.T) {
	p := newProcessor(t)

	sale := p.Handle(request("Sale",
		`{"transaction":{"baseAmount":"20.00","cardNumber":"4111111111111111"}}`))
	tranNo := sale.Final.Data.Host.TranNo

	reply := p.Handle(request("TipAdjustment",
		`{"transaction":{"tranNo":"`+tranNo+`","tipAmount":"5.00"}}`))
	data := reply.Final.Data
	require.Equal(t, models.ResultSuccess, data.CmdResult.Result)
	require.Equal(t, string(models.StatusTipAdjusted), data.Status)
	require.Equal(t, "5.00", data.Transaction.TipAmount)
	require.Equal(t, "25.00", data.Transaction.TotalAmount)
}

func TestHandlePreAuthAndCompletion(t *testing.T) {
	p := newProcessor(t)

	hold := p.Handle(request("PreAuth",
		`{"transaction":{"amount":"50.00","cardNumber":"4111111111111111"}}`))
	data := hold.Final.Data
	require.Equal(t, models.ResultSuccess, data.CmdResult.Result)
	tranNo := data.Host.TranNo

	// The hold itself settles nothing.
	stored, ok := p.Store.Find(data.Host.ReferenceNumber)
	require.True(t, ok)
	require.Equal(t, "0.00", stored.TotalAmount)
	require.Equal(t, "50.00", stored.AuthorizedAmount)

	done := p.Handle(request("AuthCompletion",
		`{"transaction":{"tranNo":"`+tranNo+`","amount":"45.00","tipAmount":"5.00"}}`))
	data = done.Final.Data
	require.Equal(t, models.ResultSuccess, data.CmdResult.Result)
	require.Equal(t, "45.00", data.Transaction.BaseAmount)
	require.Equal(t, "50.00", data.Transaction.TotalAmount)
}

func TestHandleEOD(t *testing.T) {
	p := newProcessor(t)

	p.Handle(request("Sale",
		`{"transaction":{"baseAmount":"10.00","cardNumber":"4111111111111111"}}`))

	// The alias still answers under the canonical name.
	reply := p.Handle(request("BatchClose", ""))
	data := reply.Final.Data
	require.Equal(t, models.ResultSuccess, data.CmdResult.Result)
	require.Equal(t, "EOD", data.Response)
	require.Equal(t, "BATCH CLOSED", data.Host.ResponseText)
	require.NotNil(t, data.BatchSummary)
	require.Equal(t, 1, data.BatchSummary.SalesCount)
	require.Equal(t, "10.00", data.BatchSummary.NetAmount)
}

func TestHandlePing(t *testing.T) {
	p := newProcessor(t)

	reply := p.Handle(request("Ping", ""))
	require.Empty(t, reply.Progress)
	require.Equal(t, models.MessageMSG, reply.Final.Message)
	require.Equal(t, "Ping", reply.Final.Data.Response)
	require.Equal(t, models.ResultSuccess, reply.Final.Data.CmdResult.Result)
}

func TestHandleSystemReset(t *testing.T) {
	p := newProcessor(t)

	reply := p.Handle(request("Reset", ""))
	require.Equal(t, models.ResultSuccess, reply.Final.Data.CmdResult.Result)
	require.Equal(t, "SYSTEM READY", reply.Final.Data.Display)
}

func TestHandleStatusInquiry(t *testing.T) {
	p := newProcessor(t)

	reply := p.Handle(request("StatusInquiry", `{"transaction":{"tranNo":"9999"}}`))
	require.Equal(t, models.ResultFailed, reply.Final.Data.CmdResult.Result)
	require.Equal(t, "TRAN009", reply.Final.Data.CmdResult.ErrorCode)

	sale := p.Handle(request("Sale",
		`{"transaction":{"baseAmount":"10.00","cardNumber":"4111111111111111"}}`))
	tranNo := sale.Final.Data.Host.TranNo

	reply = p.Handle(request("TransactionStatus", `{"transaction":{"tranNo":"`+tranNo+`"}}`))
	data := reply.Final.Data
	require.Equal(t, models.ResultSuccess, data.CmdResult.Result)
	require.Equal(t, string(models.StatusApproved), data.Status)
	require.Equal(t, string(models.TxSale), data.TranType)
	require.Equal(t, "10.00", data.Transaction.TotalAmount)
}

func TestHandleBatchInquiry(t *testing.T) {
	p := newProcessor(t)

	p.Handle(request("Sale",
		`{"transaction":{"baseAmount":"10.00","cardNumber":"4111111111111111"}}`))
	p.Handle(request("Sale",
		`{"transaction":{"baseAmount":"20.00","cardNumber":"4111111111111111"}}`))

	reply := p.Handle(request("BatchInquiry", ""))
	batch := reply.Final.Data.Batch
	require.NotNil(t, batch)
	require.True(t, batch.IsOpen)
	require.Equal(t, 2, batch.TransactionCount)
	require.Equal(t, 2, batch.UnsettledCount)
	require.Equal(t, "30.00", batch.UnsettledTotal)
}

func TestHandleTransactionList(t *testing.T) {
	p := newProcessor(t)

	for _, amount := range []string{"1.00", "2.00", "3.00"} {
		p.Handle(request("Sale",
			`{"transaction":{"baseAmount":"`+amount+`","cardNumber":"4111111111111111"}}`))
	}

	reply := p.Handle(request("TransactionList", `{"params":{"limit":2}}`))
	txs := reply.Final.Data.Transactions
	require.Len(t, txs, 2)
	require.Equal(t, "3.00", txs[0].TotalAmount)

	reply = p.Handle(request("TransactionHistory", ""))
	require.Len(t, reply.Final.Data.Transactions, 3)
}

func TestDelayWindows(t *testing.T) {
	p := newProcessor(t)
	p.Delays = Delays{Min: 10 * time.Millisecond, Max: 20 * time.Millisecond}
	mid := 15 * time.Millisecond

	for i := 0; i < 20; i++ {
		d := p.cardDelay()
		require.GreaterOrEqual(t, d, mid)
		require.LessOrEqual(t, d, p.Delays.Max)

		d = p.adminDelay()
		require.GreaterOrEqual(t, d, p.Delays.Min)
		require.LessOrEqual(t, d, mid)
	}
}
