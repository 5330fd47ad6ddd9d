package dispatch

import (
	// Go Internal Packages
	"encoding/json"
	"math/rand"
	"time"

	// Local Packages
	errors "termbridge/errors"
	metrics "termbridge/metrics"
	models "termbridge/models"

	// External Packages
	"go.uber.org/zap"
)

// Canonical command names. The router folds the aliases below onto
// these before picking a handler.
const (
	CmdSale            = "Sale"
	CmdPreAuth         = "PreAuth"
	CmdAuthCompletion  = "AuthCompletion"
	CmdVoid            = "Void"
	CmdRefund          = "Refund"
	CmdTipAdjust       = "TipAdjust"
	CmdEOD             = "EOD"
	CmdPing            = "Ping"
	CmdStatusInquiry   = "StatusInquiry"
	CmdBatchInquiry    = "BatchInquiry"
	CmdTransactionList = "TransactionList"
	CmdSystemReset     = "SystemReset"
	CmdForceSale       = "ForceSale"
)

var aliases = map[string]string{
	"Sale":               CmdSale,
	"CreditSale":         CmdSale,
	"PreAuth":            CmdPreAuth,
	"PreAuthorization":   CmdPreAuth,
	"AuthCompletion":     CmdAuthCompletion,
	"AuthComplete":       CmdAuthCompletion,
	"Capture":            CmdAuthCompletion,
	"Void":               CmdVoid,
	"VoidTransaction":    CmdVoid,
	"Refund":             CmdRefund,
	"CreditRefund":       CmdRefund,
	"TipAdjust":          CmdTipAdjust,
	"TipAdjustment":      CmdTipAdjust,
	"EOD":                CmdEOD,
	"EODProcessing":      CmdEOD,
	"BatchClose":         CmdEOD,
	"Batch":              CmdEOD,
	"StatusInquiry":      CmdStatusInquiry,
	"TransactionStatus":  CmdStatusInquiry,
	"BatchInquiry":       CmdBatchInquiry,
	"BatchStatus":        CmdBatchInquiry,
	"TransactionList":    CmdTransactionList,
	"TransactionHistory": CmdTransactionList,
	"SystemReset":        CmdSystemReset,
	"Reset":              CmdSystemReset,
	"Ping":               CmdPing,
	"ForceSale":          CmdForceSale,
	"ForceAuth":          CmdForceSale,
}

// Canonical resolves a command or one of its accepted aliases.
func Canonical(command string) (string, bool) {
	c, ok := aliases[command]
	return c, ok
}

// Store is the slice of the transaction ledger the handlers drive.
type Store interface {
	NewIds() models.Ids
	AddTransaction(tx *models.Transaction) error
	Find(identifier string) (*models.Transaction, bool)
	Void(identifier string) (*models.Transaction, *models.Transaction, error)
	Refund(identifier, amount string, card models.CardDetails) (*models.Transaction, *models.Transaction, error)
	TipAdjust(identifier, tipAmount string) (*models.Transaction, *models.Transaction, error)
	Capture(identifier, amount, tipAmount string) (*models.Transaction, *models.Transaction, error)
	CloseBatch() (*models.Batch, models.BatchSummary, error)
	CurrentBatch() *models.Batch
	Unsettled() []*models.Transaction
	Recent(limit int) []*models.Transaction
}

// Delays bounds the artificial processing pause before a final
// response goes out.
type Delays struct {
	Min time.Duration
	Max time.Duration
}

// Reply is everything the terminal sends back for one command: zero or
// more progress frames right away, then the final frame after Delay.
type Reply struct {
	Progress []models.ResponseEnvelope
	Final    models.ResponseEnvelope
	Delay    time.Duration
}

// Processor routes decoded command envelopes to their handlers and
// shapes protocol-correct replies.
type Processor struct {
	Logger  *zap.Logger
	Metrics *metrics.Metrics
	Store   Store
	Delays  Delays
}

func NewProcessor(logger *zap.Logger, store Store, m *metrics.Metrics, delays Delays) *Processor {
	return &Processor{Logger: logger, Store: store, Metrics: m, Delays: delays}
}

// Handle produces the reply for one inbound command envelope. Handler
// failures become Failed finals; only a missing command yields nothing,
// and the caller skips the frame entirely.
func (p *Processor) Handle(req models.RequestData) Reply {
	command, known := Canonical(req.Command)
	if !known {
		p.count(req.Command, models.ResultFailed)
		p.Logger.Warn("unknown command", zap.String("command", req.Command))
		data := errData(errors.UnknownCommandErr(req.Command))
		return Reply{Final: p.final(req, req.Command, data), Delay: p.adminDelay()}
	}

	var (
		data     *models.ResponseData
		err      error
		card     bool
		response = command
	)
	switch command {
	case CmdSale:
		data, err = p.sale(req, false)
		card = true
	case CmdForceSale:
		data, err = p.sale(req, true)
		card = true
	case CmdPreAuth:
		data, err = p.preAuth(req)
		card = true
	case CmdAuthCompletion:
		data, err = p.authCompletion(req)
	case CmdVoid:
		data, err = p.void(req)
	case CmdRefund:
		data, err = p.refund(req)
		card = true
	case CmdTipAdjust:
		data, err = p.tipAdjust(req)
	case CmdEOD:
		data, err = p.closeBatch(req)
	case CmdPing:
		data = &models.ResponseData{}
	case CmdStatusInquiry:
		data, err = p.statusInquiry(req)
	case CmdBatchInquiry:
		data = p.batchInquiry(req)
	case CmdTransactionList:
		data, err = p.transactionList(req)
	case CmdSystemReset:
		data = &models.ResponseData{Display: "SYSTEM READY"}
	}
	if err != nil {
		data = errData(err)
	}

	reply := Reply{Final: p.final(req, response, data)}
	if card {
		reply.Delay = p.cardDelay()
		if err == nil {
			reply.Progress = append(reply.Progress, models.DisplayEnvelope("PROCESSING"))
		}
	} else {
		reply.Delay = p.adminDelay()
	}

	result := reply.Final.Data.CmdResult.Result
	p.count(command, result)
	p.Logger.Debug("command handled", zap.String("command", command),
		zap.String("requestId", req.RequestID), zap.String("result", result))
	return reply
}

func (p *Processor) count(command, result string) {
	if p.Metrics != nil {
		p.Metrics.CommandsTotal.WithLabelValues(command, result).Inc()
	}
}

// final stamps the shared envelope fields onto a handler's data block.
func (p *Processor) final(req models.RequestData, response string, data *models.ResponseData) models.ResponseEnvelope {
	if data == nil {
		data = &models.ResponseData{}
	}
	data.Response = response
	data.EcrID = req.EcrID
	data.RequestID = req.RequestID
	if data.CmdResult == nil {
		data.CmdResult = &models.CmdResult{Result: models.ResultSuccess}
	}
	return models.ResponseEnvelope{Message: models.MessageMSG, Data: data}
}

// errData folds a handler failure into the cmdResult block, carrying
// the terminal result code when the error has one.
func errData(err error) *models.ResponseData {
	code := errors.CodeOf(err)
	if code == "" {
		code = "SYS001"
	}
	return &models.ResponseData{CmdResult: &models.CmdResult{
		Result:       models.ResultFailed,
		ErrorCode:    code,
		ErrorMessage: err.Error(),
	}}
}

// parsePayload decodes the inner data block. The blocks are never nil
// afterwards so handlers can read fields without guarding.
func parsePayload(req models.RequestData) (models.CommandPayload, error) {
	var payload models.CommandPayload
	if len(req.Data) > 0 {
		if err := json.Unmarshal(req.Data, &payload); err != nil {
			return payload, errors.EC(errors.Invalid, "JSON001", "command payload is not valid JSON")
		}
	}
	if payload.Params == nil {
		payload.Params = &models.TransactionParams{}
	}
	if payload.Transaction == nil {
		payload.Transaction = &models.TransactionBlock{}
	}
	return payload, nil
}

// cardDelay is the pause for card present commands, the slower half of
// the configured window.
func (p *Processor) cardDelay() time.Duration {
	mid := p.Delays.Min + (p.Delays.Max-p.Delays.Min)/2
	return randBetween(mid, p.Delays.Max)
}

// adminDelay is the pause for host only commands.
func (p *Processor) adminDelay() time.Duration {
	mid := p.Delays.Min + (p.Delays.Max-p.Delays.Min)/2
	return randBetween(p.Delays.Min, mid)
}

func randBetween(lo, hi time.Duration) time.Duration {
	if hi <= lo {
		return lo
	}
	return lo + time.Duration(rand.Int63n(int64(hi-lo)))
}
