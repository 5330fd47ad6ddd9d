package dispatch

import (
	// Local Packages
	errors "termbridge/errors"
	models "termbridge/models"
	utils "termbridge/utils"

	// External Packages
	"github.com/shopspring/decimal"
)

// normalizeRequired validates a mandatory amount field and returns its
// canonical form.
func normalizeRequired(value, field string) (string, decimal.Decimal, error) {
	if value == "" {
		return "", decimal.Zero, errors.EC(errors.Invalid, "AMT002", field+" is required")
	}
	return normalizeOptional(value, field)
}

// normalizeOptional validates an amount field when present. Absent
// fields come back empty with a zero value.
func normalizeOptional(value, field string) (string, decimal.Decimal, error) {
	if value == "" {
		return "", decimal.Zero, nil
	}
	d, err := decimal.NewFromString(value)
	if err != nil || d.IsNegative() {
		return "", decimal.Zero, errors.EC(errors.Invalid, "AMT001", field+" is not a valid amount")
	}
	return models.FormatAmount(d), d, nil
}

// sale authorizes a payment and files the transaction. A force sale
// skips the issuer simulation and honors a caller supplied approval
// code.
func (p *Processor) sale(req models.RequestData, force bool) (*models.ResponseData, error) {
	payload, err := parsePayload(req)
	if err != nil {
		return nil, err
	}
	tb := payload.Transaction

	baseStr, base, err := normalizeRequired(tb.BaseAmount, "baseAmount")
	if err != nil {
		return nil, err
	}
	tipStr, tip, err := normalizeOptional(tb.TipAmount, "tipAmount")
	if err != nil {
		return nil, err
	}
	taxStr, tax, err := normalizeOptional(tb.TaxAmount, "taxAmount")
	if err != nil {
		return nil, err
	}
	cashbackStr, cashback, err := normalizeOptional(tb.CashBackAmount, "cashBackAmount")
	if err != nil {
		return nil, err
	}
	requested := base.Add(tip).Add(tax).Add(cashback)

	pan, card := models.SimulateCard(tb.CardNumber)
	decision := models.DecideAuthorization(requested, pan)
	if force {
		decision = models.AuthDecision{
			Approved:         true,
			ResponseCode:     "00",
			ResponseText:     "APPROVAL",
			AuthorizedAmount: models.FormatAmount(requested),
		}
	}

	txType := models.TxSale
	if force {
		txType = models.TxForceSale
	}

	ids := p.Store.NewIds()
	status := models.StatusDeclined
	settling := models.FormatAmount(requested)
	approval := ""
	if decision.Approved {
		status = models.StatusApproved
		settling = decision.AuthorizedAmount
		approval = utils.ApprovalCode()
		if force && tb.ApprovalCode != "" {
			approval = tb.ApprovalCode
		}
	}

	record := &models.Transaction{
		ID:               ids.ID,
		TranNo:           ids.TranNo,
		ReferenceNumber:  ids.ReferenceNumber,
		ResponseID:       ids.ResponseID,
		ApprovalCode:     approval,
		Type:             txType,
		Status:           status,
		BaseAmount:       baseStr,
		TipAmount:        tipStr,
		TaxAmount:        taxStr,
		CashbackAmount:   cashbackStr,
		TotalAmount:      settling,
		AuthorizedAmount: decision.AuthorizedAmount,
		CardAcquisition:  card.CardAcquisition,
		CardType:         card.CardType,
		MaskedPAN:        card.MaskedPAN,
		InvoiceNbr:       tb.InvoiceNbr,
		Lodging:          payload.Lodging,
	}
	if err := p.Store.AddTransaction(record); err != nil {
		return nil, err
	}

	cr := &models.CmdResult{Result: models.ResultSuccess}
	if !decision.Approved {
		cr = &models.CmdResult{
			Result:       models.ResultFailed,
			ErrorCode:    "DECLINE",
			ErrorMessage: decision.DeclineReason,
		}
	}

	detail := &models.AmountDetail{
		BaseAmount:       baseStr,
		TipAmount:        tipStr,
		TaxAmount:        taxStr,
		CashbackAmount:   cashbackStr,
		TotalAmount:      models.FormatAmount(requested),
		AuthorizedAmount: decision.AuthorizedAmount,
		BalanceDue:       decision.BalanceDue,
		InvoiceNbr:       tb.InvoiceNbr,
	}
	if decision.Partial {
		detail.Partial = "1"
	}

	return &models.ResponseData{
		CmdResult:   cr,
		Host:        p.hostResult(record, decision),
		Payment:     paymentInfo(record, decision.Approved),
		Transaction: detail,
	}, nil
}

// preAuth places an authorization hold. The hold itself never settles
// money, so the stored total stays zero until completion.
func (p *Processor) preAuth(req models.RequestData) (*models.ResponseData, error) {
	payload, err := parsePayload(req)
	if err != nil {
		return nil, err
	}
	tb := payload.Transaction

	amountStr, amount, err := normalizeRequired(tb.Amount, "amount")
	if err != nil {
		return nil, err
	}
	hold := amount
	if tb.PreAuthAmount != "" {
		_, h, herr := normalizeOptional(tb.PreAuthAmount, "preAuthAmount")
		if herr != nil {
			return nil, herr
		}
		hold = h
	}

	pan, card := models.SimulateCard(tb.CardNumber)
	decision := models.DecideAuthorization(hold, pan)

	ids := p.Store.NewIds()
	status := models.StatusDeclined
	approval := ""
	if decision.Approved {
		status = models.StatusApproved
		approval = utils.ApprovalCode()
	}

	record := &models.Transaction{
		ID:               ids.ID,
		TranNo:           ids.TranNo,
		ReferenceNumber:  ids.ReferenceNumber,
		ResponseID:       ids.ResponseID,
		ApprovalCode:     approval,
		Type:             models.TxPreAuth,
		Status:           status,
		BaseAmount:       amountStr,
		TotalAmount:      "0.00",
		AuthorizedAmount: decision.AuthorizedAmount,
		CardAcquisition:  card.CardAcquisition,
		CardType:         card.CardType,
		MaskedPAN:        card.MaskedPAN,
		InvoiceNbr:       tb.InvoiceNbr,
		Lodging:          payload.Lodging,
	}
	if err := p.Store.AddTransaction(record); err != nil {
		return nil, err
	}

	cr := &models.CmdResult{Result: models.ResultSuccess}
	if !decision.Approved {
		cr = &models.CmdResult{
			Result:       models.ResultFailed,
			ErrorCode:    "DECLINE",
			ErrorMessage: decision.DeclineReason,
		}
	}

	return &models.ResponseData{
		CmdResult: cr,
		Host:      p.hostResult(record, decision),
		Payment:   paymentInfo(record, decision.Approved),
		Transaction: &models.AmountDetail{
			BaseAmount:       amountStr,
			TotalAmount:      models.FormatAmount(hold),
			AuthorizedAmount: decision.AuthorizedAmount,
			BalanceDue:       decision.BalanceDue,
			InvoiceNbr:       tb.InvoiceNbr,
		},
	}, nil
}

// authCompletion captures a pre-authorization.
func (p *Processor) authCompletion(req models.RequestData) (*models.ResponseData, error) {
	payload, err := parsePayload(req)
	if err != nil {
		return nil, err
	}
	tb := payload.Transaction

	amountStr, _, err := normalizeOptional(tb.Amount, "amount")
	if err != nil {
		return nil, err
	}
	tipStr, _, err := normalizeOptional(tb.TipAmount, "tipAmount")
	if err != nil {
		return nil, err
	}

	capture, _, err := p.Store.Capture(tb.Identifier(), amountStr, tipStr)
	if err != nil {
		return nil, err
	}

	return &models.ResponseData{
		Host:    approvedHost(capture),
		Payment: paymentInfo(capture, true),
		Transaction: &models.AmountDetail{
			BaseAmount:       capture.BaseAmount,
			TipAmount:        capture.TipAmount,
			TotalAmount:      capture.TotalAmount,
			AuthorizedAmount: capture.AuthorizedAmount,
		},
	}, nil
}

// void reverses a prior transaction in the open batch.
func (p *Processor) void(req models.RequestData) (*models.ResponseData, error) {
	payload, err := parsePayload(req)
	if err != nil {
		return nil, err
	}

	voidTx, orig, err := p.Store.Void(payload.Transaction.Identifier())
	if err != nil {
		return nil, err
	}

	return &models.ResponseData{
		Status:   string(orig.Status),
		TranType: string(orig.Type),
		Host:     approvedHost(voidTx),
		Payment:  paymentInfo(orig, true),
		Transaction: &models.AmountDetail{
			BaseAmount:  orig.BaseAmount,
			TipAmount:   orig.TipAmount,
			TotalAmount: orig.TotalAmount,
		},
	}, nil
}

// refund credits the card, referenced against an original when an
// identifier is supplied.
func (p *Processor) refund(req models.RequestData) (*models.ResponseData, error) {
	payload, err := parsePayload(req)
	if err != nil {
		return nil, err
	}
	tb := payload.Transaction

	totalStr, _, err := normalizeRequired(tb.TotalAmount, "totalAmount")
	if err != nil {
		return nil, err
	}

	_, card := models.SimulateCard(tb.CardNumber)
	refundTx, _, err := p.Store.Refund(tb.Identifier(), totalStr, card)
	if err != nil {
		return nil, err
	}

	return &models.ResponseData{
		Host:    approvedHost(refundTx),
		Payment: paymentInfo(refundTx, true),
		Transaction: &models.AmountDetail{
			BaseAmount:  refundTx.BaseAmount,
			TotalAmount: totalStr,
		},
	}, nil
}

// tipAdjust rewrites the tip on an approved sale.
func (p *Processor) tipAdjust(req models.RequestData) (*models.ResponseData, error) {
	payload, err := parsePayload(req)
	if err != nil {
		return nil, err
	}
	tb := payload.Transaction

	tipStr, _, err := normalizeRequired(tb.TipAmount, "tipAmount")
	if err != nil {
		return nil, err
	}

	adjust, orig, err := p.Store.TipAdjust(tb.Identifier(), tipStr)
	if err != nil {
		return nil, err
	}

	return &models.ResponseData{
		Status:  string(orig.Status),
		Host:    approvedHost(adjust),
		Payment: paymentInfo(orig, true),
		Transaction: &models.AmountDetail{
			BaseAmount:  orig.BaseAmount,
			TipAmount:   orig.TipAmount,
			TotalAmount: orig.TotalAmount,
		},
	}, nil
}

// closeBatch settles the open batch and reports the summary.
func (p *Processor) closeBatch(req models.RequestData) (*models.ResponseData, error) {
	batch, summary, err := p.Store.CloseBatch()
	if err != nil {
		return nil, err
	}
	return &models.ResponseData{
		Host:         &models.HostResult{ResponseText: "BATCH CLOSED", ResponseCode: "00", BatchID: batch.ID},
		BatchSummary: &summary,
	}, nil
}

// statusInquiry reports the current state of a stored transaction.
func (p *Processor) statusInquiry(req models.RequestData) (*models.ResponseData, error) {
	payload, err := parsePayload(req)
	if err != nil {
		return nil, err
	}

	tx, ok := p.Store.Find(payload.Transaction.Identifier())
	if !ok {
		return nil, errors.EC(errors.NotFound, "TRAN009", "transaction not found")
	}

	return &models.ResponseData{
		Status:   string(tx.Status),
		TranType: string(tx.Type),
		Host: &models.HostResult{
			ApprovalCode:    tx.ApprovalCode,
			TranNo:          tx.TranNo,
			ReferenceNumber: tx.ReferenceNumber,
			ResponseID:      tx.ResponseID,
			BatchID:         tx.BatchID,
		},
		Payment: paymentInfo(tx, tx.ApprovalCode != ""),
		Transaction: &models.AmountDetail{
			BaseAmount:       tx.BaseAmount,
			TipAmount:        tx.TipAmount,
			TaxAmount:        tx.TaxAmount,
			CashbackAmount:   tx.CashbackAmount,
			TotalAmount:      tx.TotalAmount,
			AuthorizedAmount: tx.AuthorizedAmount,
			InvoiceNbr:       tx.InvoiceNbr,
		},
	}, nil
}

// batchInquiry reports the open batch and its unsettled position.
func (p *Processor) batchInquiry(req models.RequestData) *models.ResponseData {
	batch := p.Store.CurrentBatch()
	unsettled := p.Store.Unsettled()

	totals := make([]string, len(unsettled))
	for i, tx := range unsettled {
		totals[i] = tx.TotalAmount
	}

	return &models.ResponseData{
		Batch: &models.BatchStatus{
			BatchID:          batch.ID,
			OpenTime:         batch.OpenTime,
			IsOpen:           batch.IsOpen,
			TransactionCount: len(batch.Transactions),
			UnsettledCount:   len(unsettled),
			UnsettledTotal:   models.SumAmounts(totals...),
		},
	}
}

const (
	defaultListLimit = 10
	maxListLimit     = 50
)

// transactionList returns recent transactions, newest first.
func (p *Processor) transactionList(req models.RequestData) (*models.ResponseData, error) {
	payload, err := parsePayload(req)
	if err != nil {
		return nil, err
	}

	limit := payload.Params.Limit
	if limit <= 0 {
		limit = defaultListLimit
	}
	if limit > maxListLimit {
		limit = maxListLimit
	}

	txs := p.Store.Recent(limit)
	summaries := make([]models.TxSummary, len(txs))
	for i, tx := range txs {
		summaries[i] = tx.Transform()
	}
	return &models.ResponseData{Transactions: summaries}, nil
}

// hostResult shapes the acquirer block for a fresh authorization.
func (p *Processor) hostResult(tx *models.Transaction, decision models.AuthDecision) *models.HostResult {
	return &models.HostResult{
		ResponseText:    decision.ResponseText,
		ResponseCode:    decision.ResponseCode,
		ApprovalCode:    tx.ApprovalCode,
		TranNo:          tx.TranNo,
		ReferenceNumber: tx.ReferenceNumber,
		ResponseID:      tx.ResponseID,
		BatchID:         tx.BatchID,
		DeclineReason:   decision.DeclineReason,
	}
}

// approvedHost shapes the acquirer block for follow-on operations,
// which always approve once validation passed.
func approvedHost(tx *models.Transaction) *models.HostResult {
	return &models.HostResult{
		ResponseText:    "APPROVAL",
		ResponseCode:    "00",
		ApprovalCode:    tx.ApprovalCode,
		TranNo:          tx.TranNo,
		ReferenceNumber: tx.ReferenceNumber,
		ResponseID:      tx.ResponseID,
		BatchID:         tx.BatchID,
	}
}

func paymentInfo(tx *models.Transaction, approved bool) *models.PaymentInfo {
	sig := "0"
	if approved && (tx.CardAcquisition == models.AcquisitionInsert || tx.CardAcquisition == models.AcquisitionSwipe) {
		sig = "1"
	}
	return &models.PaymentInfo{
		CardType:          tx.CardType,
		MaskedPAN:         tx.MaskedPAN,
		CardAcquisition:   tx.CardAcquisition,
		SignatureRequired: sig,
	}
}
