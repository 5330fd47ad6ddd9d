package filestore

import (
	// Go Internal Packages
	"strconv"
	"sync"
	"time"

	// Local Packages
	errors "termbridge/errors"
	metrics "termbridge/metrics"
	models "termbridge/models"
	utils "termbridge/utils"

	// External Packages
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

// Reference numbers are twelve digits and start here.
const refNoBase int64 = 200_000_000_000

const tranNoWidth = 4

// Store is the terminal's transaction ledger. Every operation runs in
// one critical section; persistence happens through a snapshot queue a
// dedicated writer drains, so disk writes never block the command path.
type Store struct {
	mu      sync.Mutex
	logger  *zap.Logger
	metrics *metrics.Metrics
	path    string

	txs          map[string]*models.Transaction
	order        []string
	byTranNo     map[string]string
	byRef        map[string]string
	byResponseID map[string]string
	batches      map[string]*models.Batch
	batchOrder   []string
	counters     models.Counters
	lastRespNo   int64
	currentBatch string
	stats        models.Statistics

	snapshots  chan models.PersistedState
	done       chan struct{}
	writerDone chan struct{}
	closeOnce  sync.Once
}

// Open loads the ledger file at path, rebuilding counters from the
// data, and starts the persistence writer. A missing file starts an
// empty ledger with one open batch.
func Open(path string, logger *zap.Logger, m *metrics.Metrics) (*Store, error) {
	s := &Store{
		logger:       logger,
		metrics:      m,
		path:         path,
		txs:          map[string]*models.Transaction{},
		byTranNo:     map[string]string{},
		byRef:        map[string]string{},
		byResponseID: map[string]string{},
		batches:      map[string]*models.Batch{},
		counters:     models.Counters{NextTranNo: 1, NextBatchNo: 1, NextRefNo: refNoBase},
		stats:        models.Statistics{ApprovedAmount: "0.00", Daily: map[string]*models.DayStats{}},
		snapshots:    make(chan models.PersistedState, 1),
		done:         make(chan struct{}),
		writerDone:   make(chan struct{}),
	}

	state, err := loadState(path)
	if err != nil {
		return nil, err
	}
	if state != nil {
		s.restore(state)
	}
	s.ensureOpenBatchLocked()

	go s.writerLoop()
	return s, nil
}

// restore replays a persisted state into the in-memory indexes and
// lifts every counter to max(persisted, derived+1).
func (s *Store) restore(state *models.PersistedState) {
	for _, tx := range state.Transactions {
		s.txs[tx.ID] = tx
		s.order = append(s.order, tx.ID)
		s.byTranNo[tx.TranNo] = tx.ID
		s.byRef[tx.ReferenceNumber] = tx.ID
		s.byResponseID[tx.ResponseID] = tx.ID
		if n, err := strconv.ParseInt(tx.TranNo, 10, 64); err == nil && n+1 > s.counters.NextTranNo {
			s.counters.NextTranNo = n + 1
		}
		if n, err := strconv.ParseInt(tx.ReferenceNumber, 10, 64); err == nil && n+1 > s.counters.NextRefNo {
			s.counters.NextRefNo = n + 1
		}
		if n, err := strconv.ParseInt(tx.ResponseID, 10, 64); err == nil && n > s.lastRespNo {
			s.lastRespNo = n
		}
	}
	for _, b := range state.Batches {
		s.batches[b.ID] = b
		s.batchOrder = append(s.batchOrder, b.ID)
		if len(b.ID) > 1 {
			if n, err := strconv.ParseInt(b.ID[1:], 10, 64); err == nil && n+1 > s.counters.NextBatchNo {
				s.counters.NextBatchNo = n + 1
			}
		}
	}
	if state.Counters.NextTranNo > s.counters.NextTranNo {
		s.counters.NextTranNo = state.Counters.NextTranNo
	}
	if state.Counters.NextBatchNo > s.counters.NextBatchNo {
		s.counters.NextBatchNo = state.Counters.NextBatchNo
	}
	if state.Counters.NextRefNo > s.counters.NextRefNo {
		s.counters.NextRefNo = state.Counters.NextRefNo
	}
	if b, ok := s.batches[state.CurrentBatch]; ok && b.IsOpen {
		s.currentBatch = state.CurrentBatch
	}
	if state.Statistics.Daily != nil {
		s.stats = state.Statistics
	}
}

// ensureOpenBatchLocked guarantees exactly one open batch exists.
func (s *Store) ensureOpenBatchLocked() {
	if s.currentBatch != "" {
		return
	}
	for _, id := range s.batchOrder {
		if s.batches[id].IsOpen {
			s.currentBatch = id
			return
		}
	}
	b := &models.Batch{
		ID:           "B" + utils.ZeroPad(s.counters.NextBatchNo, 4),
		OpenTime:     utils.NowISO(),
		IsOpen:       true,
		Transactions: []string{},
	}
	s.counters.NextBatchNo++
	s.batches[b.ID] = b
	s.batchOrder = append(s.batchOrder, b.ID)
	s.currentBatch = b.ID
}

// NewIds allocates the identity tuple for a new transaction. The
// response id derives from the clock and is bumped past collisions.
func (s *Store) NewIds() models.Ids {
	s.mu.Lock()
	defer s.mu.Unlock()
	ids := s.newIdsLocked()
	s.persistLocked()
	return ids
}

func (s *Store) newIdsLocked() models.Ids {
	tranNo := utils.ZeroPad(s.counters.NextTranNo, tranNoWidth)
	s.counters.NextTranNo++

	refNo := strconv.FormatInt(s.counters.NextRefNo, 10)
	s.counters.NextRefNo++

	// Two allocations can land in the same millisecond, so the clock is
	// only a floor: the next id is always past the last one issued and
	// past anything restored from disk.
	respNo := time.Now().UnixMilli()
	if respNo <= s.lastRespNo {
		respNo = s.lastRespNo + 1
	}
	for {
		if _, taken := s.byResponseID[strconv.FormatInt(respNo, 10)]; !taken {
			break
		}
		respNo++
	}
	s.lastRespNo = respNo

	return models.Ids{
		ID:              uuid.NewString(),
		TranNo:          tranNo,
		ReferenceNumber: refNo,
		ResponseID:      strconv.FormatInt(respNo, 10),
	}
}

// AddTransaction stores a prepared transaction in the open batch and
// persists. The caller allocates its ids through NewIds first.
func (s *Store) AddTransaction(tx *models.Transaction) error {
	if tx.ID == "" || tx.TranNo == "" || tx.ReferenceNumber == "" {
		return errors.E(errors.Invalid, "transaction is missing its ids", nil)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.insertLocked(tx, "")
	s.persistLocked()
	return nil
}

// insertLocked indexes tx and binds it to a batch. An empty batchID
// means the open batch.
func (s *Store) insertLocked(tx *models.Transaction, batchID string) {
	now := utils.NowISO()
	if tx.CreatedAt == "" {
		tx.CreatedAt = now
	}
	if tx.UpdatedAt == "" {
		tx.UpdatedAt = tx.CreatedAt
	}
	tx.TotalAmount = models.AmountOrZero(tx.TotalAmount)
	if batchID == "" {
		batchID = s.currentBatch
	}
	tx.BatchID = batchID

	s.txs[tx.ID] = tx
	s.order = append(s.order, tx.ID)
	s.byTranNo[tx.TranNo] = tx.ID
	s.byRef[tx.ReferenceNumber] = tx.ID
	s.byResponseID[tx.ResponseID] = tx.ID
	s.batches[batchID].Transactions = append(s.batches[batchID].Transactions, tx.ID)

	s.bumpStatsLocked(tx)
	if s.metrics != nil {
		s.metrics.TransactionsTotal.WithLabelValues(string(tx.Type), string(tx.Status)).Inc()
	}
}

func (s *Store) bumpStatsLocked(tx *models.Transaction) {
	s.stats.TotalCount++
	day := tx.CreatedAt
	if len(day) >= 10 {
		day = day[:10]
	}
	if s.stats.Daily == nil {
		s.stats.Daily = map[string]*models.DayStats{}
	}
	ds := s.stats.Daily[day]
	if ds == nil {
		ds = &models.DayStats{ApprovedAmount: "0.00"}
		s.stats.Daily[day] = ds
	}
	ds.Count++

	switch tx.Status {
	case models.StatusApproved, models.StatusTipAdjusted:
		s.stats.ApprovedCount++
		ds.ApprovedCount++
		s.stats.ApprovedAmount = models.SumAmounts(s.stats.ApprovedAmount, tx.TotalAmount)
		ds.ApprovedAmount = models.SumAmounts(ds.ApprovedAmount, tx.TotalAmount)
	case models.StatusDeclined:
		s.stats.DeclinedCount++
		ds.DeclinedCount++
	}
	if tx.Type == models.TxRefund {
		s.stats.RefundedCount++
	}
}

// findLocked resolves an identifier by id, then tranNo, then reference
// number, then response id. Numeric tran numbers match without their
// zero padding.
func (s *Store) findLocked(identifier string) *models.Transaction {
	if identifier == "" {
		return nil
	}
	if tx, ok := s.txs[identifier]; ok {
		return tx
	}
	if id, ok := s.byTranNo[identifier]; ok {
		return s.txs[id]
	}
	if n, err := strconv.ParseInt(identifier, 10, 64); err == nil {
		if id, ok := s.byTranNo[utils.ZeroPad(n, tranNoWidth)]; ok {
			return s.txs[id]
		}
	}
	if id, ok := s.byRef[identifier]; ok {
		return s.txs[id]
	}
	if id, ok := s.byResponseID[identifier]; ok {
		return s.txs[id]
	}
	return nil
}

// Find returns a copy of the transaction the identifier resolves to.
func (s *Store) Find(identifier string) (*models.Transaction, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	tx := s.findLocked(identifier)
	if tx == nil {
		return nil, false
	}
	return cloneTx(tx), true
}

// Update applies mutate to the resolved transaction and persists. The
// mutation runs inside the critical section.
func (s *Store) Update(identifier string, mutate func(*models.Transaction) error) (*models.Transaction, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	tx := s.findLocked(identifier)
	if tx == nil {
		return nil, errors.TxNotFoundErr(identifier)
	}
	if err := mutate(tx); err != nil {
		return nil, err
	}
	tx.UpdatedAt = utils.NowISO()
	s.persistLocked()
	return cloneTx(tx), nil
}

// Unsettled lists the open batch members still awaiting settlement, in
// insertion order.
func (s *Store) Unsettled() []*models.Transaction {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.unsettledLocked()
}

func (s *Store) unsettledLocked() []*models.Transaction {
	var out []*models.Transaction
	for _, id := range s.batches[s.currentBatch].Transactions {
		tx := s.txs[id]
		if tx.Status == models.StatusApproved || tx.Status == models.StatusTipAdjusted {
			out = append(out, cloneTx(tx))
		}
	}
	return out
}

// Void reverses a transaction: the original flips to VOIDED (or
// PARTIAL_VOIDED for a partial approval) and a Void record referencing
// it joins the open batch.
func (s *Store) Void(identifier string) (*models.Transaction, *models.Transaction, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	orig := s.findLocked(identifier)
	if orig == nil {
		return nil, nil, errors.EC(errors.NotFound, "REF001", "transaction not found")
	}
	// Only payment-bearing records can be voided. Voids, refunds and
	// adjustment records also sit in the batch as APPROVED rows, so
	// status alone does not keep them out.
	switch orig.Type {
	case models.TxSale, models.TxForceSale, models.TxPreAuth, models.TxCapture:
	default:
		return nil, nil, errors.EC(errors.Conflict, "VOID003",
			"transaction type "+string(orig.Type)+" cannot be voided")
	}
	switch orig.Status {
	case models.StatusVoided, models.StatusPartialVoided:
		return nil, nil, errors.EC(errors.Conflict, "VOID001", "transaction already voided")
	case models.StatusSettled:
		return nil, nil, errors.EC(errors.Conflict, "VOID002", "transaction already settled")
	case models.StatusApproved, models.StatusTipAdjusted:
	default:
		return nil, nil, errors.EC(errors.Conflict, "VOID003",
			"transaction cannot be voided from status "+string(orig.Status))
	}

	newStatus := models.StatusVoided
	if orig.Partial() {
		newStatus = models.StatusPartialVoided
	}
	orig.Status = newStatus
	orig.UpdatedAt = utils.NowISO()
	s.stats.VoidedCount++

	ids := s.newIdsLocked()
	void := &models.Transaction{
		ID:                  ids.ID,
		TranNo:              ids.TranNo,
		ReferenceNumber:     ids.ReferenceNumber,
		ResponseID:          ids.ResponseID,
		ApprovalCode:        utils.ApprovalCode(),
		Type:                models.TxVoid,
		Status:              models.StatusApproved,
		TotalAmount:         "0.00",
		CardAcquisition:     orig.CardAcquisition,
		CardType:            orig.CardType,
		MaskedPAN:           orig.MaskedPAN,
		OriginalTransaction: orig.ReferenceNumber,
	}
	s.insertLocked(void, "")
	s.persistLocked()
	return cloneTx(void), cloneTx(orig), nil
}

// Refund records a credit. With an identifier it validates against the
// original and flips it to REFUNDED when the full amount comes back;
// without one it is a standalone credit on the presented card. The
// record carries a negative total so settled batches sum correctly.
func (s *Store) Refund(identifier, amount string, card models.CardDetails) (*models.Transaction, *models.Transaction, error) {
	d, err := decimal.NewFromString(amount)
	if err != nil || d.IsNegative() {
		return nil, nil, errors.EC(errors.Invalid, "AMT001", "refund amount is not valid")
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	var orig *models.Transaction
	if identifier != "" {
		orig = s.findLocked(identifier)
		if orig == nil {
			return nil, nil, errors.EC(errors.NotFound, "REF002", "original transaction not found")
		}
		switch orig.Status {
		case models.StatusApproved, models.StatusTipAdjusted, models.StatusSettled:
		default:
			return nil, nil, errors.EC(errors.Conflict, "REF002",
				"original transaction is not refundable from status "+string(orig.Status))
		}
		origTotal, terr := decimal.NewFromString(orig.TotalAmount)
		if terr == nil && d.GreaterThan(origTotal) {
			return nil, nil, errors.EC(errors.Invalid, "AMT003", "refund exceeds the original amount")
		}
		card = models.CardDetails{
			CardType:        orig.CardType,
			MaskedPAN:       orig.MaskedPAN,
			CardAcquisition: orig.CardAcquisition,
		}
		if orig.Status != models.StatusSettled && terr == nil && d.Equal(origTotal) {
			orig.Status = models.StatusRefunded
			orig.UpdatedAt = utils.NowISO()
		}
	}

	ids := s.newIdsLocked()
	refund := &models.Transaction{
		ID:              ids.ID,
		TranNo:          ids.TranNo,
		ReferenceNumber: ids.ReferenceNumber,
		ResponseID:      ids.ResponseID,
		ApprovalCode:    utils.ApprovalCode(),
		Type:            models.TxRefund,
		Status:          models.StatusApproved,
		BaseAmount:      models.FormatAmount(d),
		TotalAmount:     models.FormatAmount(d.Neg()),
		CardAcquisition: card.CardAcquisition,
		CardType:        card.CardType,
		MaskedPAN:       card.MaskedPAN,
	}
	if orig != nil {
		refund.OriginalTransaction = orig.ReferenceNumber
	}
	s.insertLocked(refund, "")
	s.persistLocked()
	if orig == nil {
		return cloneTx(refund), nil, nil
	}
	return cloneTx(refund), cloneTx(orig), nil
}

// TipAdjust rewrites the tip of an approved sale and records the
// adjustment. The sale moves to TIP_ADJUSTED and can be re-adjusted.
func (s *Store) TipAdjust(identifier, tipAmount string) (*models.Transaction, *models.Transaction, error) {
	tip, err := decimal.NewFromString(tipAmount)
	if err != nil || tip.IsNegative() {
		return nil, nil, errors.EC(errors.Invalid, "AMT001", "tip amount is not valid")
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	orig := s.findLocked(identifier)
	if orig == nil {
		return nil, nil, errors.EC(errors.NotFound, "TRAN009", "transaction not found")
	}
	if orig.Type != models.TxSale && orig.Type != models.TxForceSale {
		return nil, nil, errors.EC(errors.Conflict, "TIP001", "transaction does not accept tip adjustments")
	}
	switch orig.Status {
	case models.StatusApproved, models.StatusTipAdjusted:
	default:
		return nil, nil, errors.EC(errors.Conflict, "TIP001",
			"transaction cannot be tip adjusted from status "+string(orig.Status))
	}

	// A partial approval captures only the authorized slice; the tip
	// rides on top of that at settlement.
	wasPartial := orig.Partial()
	orig.TipAmount = models.FormatAmount(tip)
	if wasPartial {
		orig.TotalAmount = models.SumAmounts(orig.AuthorizedAmount, orig.TipAmount)
	} else {
		orig.TotalAmount = models.SumAmounts(orig.BaseAmount, orig.TipAmount, orig.TaxAmount, orig.CashbackAmount)
		orig.AuthorizedAmount = orig.TotalAmount
	}
	orig.Status = models.StatusTipAdjusted
	orig.UpdatedAt = utils.NowISO()

	ids := s.newIdsLocked()
	adjust := &models.Transaction{
		ID:                  ids.ID,
		TranNo:              ids.TranNo,
		ReferenceNumber:     ids.ReferenceNumber,
		ResponseID:          ids.ResponseID,
		ApprovalCode:        utils.ApprovalCode(),
		Type:                models.TxTipAdjust,
		Status:              models.StatusApproved,
		TipAmount:           orig.TipAmount,
		TotalAmount:         "0.00",
		CardAcquisition:     orig.CardAcquisition,
		CardType:            orig.CardType,
		MaskedPAN:           orig.MaskedPAN,
		OriginalTransaction: orig.ReferenceNumber,
	}
	s.insertLocked(adjust, "")
	s.persistLocked()
	return cloneTx(adjust), cloneTx(orig), nil
}

// Capture completes a pre-authorization. The Capture record carries
// the captured funds; the hold itself never settles money, its total
// stays zero.
func (s *Store) Capture(identifier, amount, tipAmount string) (*models.Transaction, *models.Transaction, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	orig := s.findLocked(identifier)
	if orig == nil {
		return nil, nil, errors.EC(errors.NotFound, "TRAN009", "transaction not found")
	}
	if orig.Type != models.TxPreAuth || orig.Status != models.StatusApproved {
		return nil, nil, errors.EC(errors.Conflict, "TRAN009", "referenced transaction is not an open pre-auth")
	}

	if amount == "" {
		amount = orig.AuthorizedAmount
	}
	base, err := decimal.NewFromString(amount)
	if err != nil || base.IsNegative() {
		return nil, nil, errors.EC(errors.Invalid, "AMT001", "completion amount is not valid")
	}
	total := base
	if tipAmount != "" {
		tip, terr := decimal.NewFromString(tipAmount)
		if terr != nil || tip.IsNegative() {
			return nil, nil, errors.EC(errors.Invalid, "AMT001", "tip amount is not valid")
		}
		total = total.Add(tip)
	}

	ids := s.newIdsLocked()
	capture := &models.Transaction{
		ID:                  ids.ID,
		TranNo:              ids.TranNo,
		ReferenceNumber:     ids.ReferenceNumber,
		ResponseID:          ids.ResponseID,
		ApprovalCode:        utils.ApprovalCode(),
		Type:                models.TxCapture,
		Status:              models.StatusApproved,
		BaseAmount:          models.FormatAmount(base),
		TipAmount:           tipAmount,
		TotalAmount:         models.FormatAmount(total),
		AuthorizedAmount:    models.FormatAmount(total),
		CardAcquisition:     orig.CardAcquisition,
		CardType:            orig.CardType,
		MaskedPAN:           orig.MaskedPAN,
		Lodging:             orig.Lodging,
		OriginalTransaction: orig.ReferenceNumber,
	}
	orig.UpdatedAt = utils.NowISO()
	s.insertLocked(capture, "")
	s.persistLocked()
	return cloneTx(capture), cloneTx(orig), nil
}

// CloseBatch settles the open batch in one critical section: every
// APPROVED or TIP_ADJUSTED member becomes SETTLED, the batch closes
// with its signed total, a BatchClose record is filed against it and a
// fresh batch opens.
func (s *Store) CloseBatch() (*models.Batch, models.BatchSummary, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	cur := s.batches[s.currentBatch]
	now := utils.NowISO()

	summary := models.BatchSummary{BatchID: cur.ID, CloseTime: now}
	net := decimal.Zero
	for _, id := range cur.Transactions {
		tx := s.txs[id]
		switch tx.Status {
		case models.StatusApproved, models.StatusTipAdjusted:
			tx.Status = models.StatusSettled
			tx.UpdatedAt = now
			summary.SettlementCount++
			if d, err := decimal.NewFromString(tx.TotalAmount); err == nil {
				net = net.Add(d)
			}
			switch tx.Type {
			case models.TxSale, models.TxForceSale, models.TxCapture:
				summary.SalesCount++
			case models.TxRefund:
				summary.RefundCount++
			}
		case models.StatusVoided, models.StatusPartialVoided:
			summary.VoidCount++
		}
	}
	summary.NetAmount = models.FormatAmount(net)

	cur.CloseTime = now
	cur.IsOpen = false
	cur.SettlementCount = summary.SettlementCount
	cur.TotalAmount = summary.NetAmount

	ids := s.newIdsLocked()
	record := &models.Transaction{
		ID:              ids.ID,
		TranNo:          ids.TranNo,
		ReferenceNumber: ids.ReferenceNumber,
		ResponseID:      ids.ResponseID,
		Type:            models.TxBatchClose,
		Status:          models.StatusSettled,
		TotalAmount:     "0.00",
		CreatedAt:       now,
		UpdatedAt:       now,
	}
	s.insertLocked(record, cur.ID)

	next := &models.Batch{
		ID:           "B" + utils.ZeroPad(s.counters.NextBatchNo, 4),
		OpenTime:     now,
		IsOpen:       true,
		Transactions: []string{},
	}
	s.counters.NextBatchNo++
	s.batches[next.ID] = next
	s.batchOrder = append(s.batchOrder, next.ID)
	s.currentBatch = next.ID

	if s.metrics != nil {
		s.metrics.BatchesClosed.Inc()
	}
	s.persistLocked()
	return cloneBatch(cur), summary, nil
}

// CurrentBatch returns a copy of the open batch.
func (s *Store) CurrentBatch() *models.Batch {
	s.mu.Lock()
	defer s.mu.Unlock()
	return cloneBatch(s.batches[s.currentBatch])
}

// Recent returns up to limit transactions, newest first.
func (s *Store) Recent(limit int) []*models.Transaction {
	s.mu.Lock()
	defer s.mu.Unlock()
	if limit <= 0 || limit > len(s.order) {
		limit = len(s.order)
	}
	out := make([]*models.Transaction, 0, limit)
	for i := len(s.order) - 1; i >= 0 && len(out) < limit; i-- {
		out = append(out, cloneTx(s.txs[s.order[i]]))
	}
	return out
}

// StatsSnapshot returns a copy of the running statistics.
func (s *Store) StatsSnapshot() models.Statistics {
	s.mu.Lock()
	defer s.mu.Unlock()
	return cloneStats(s.stats)
}

func cloneTx(t *models.Transaction) *models.Transaction {
	c := *t
	if t.Lodging != nil {
		l := *t.Lodging
		c.Lodging = &l
	}
	return &c
}

func cloneBatch(b *models.Batch) *models.Batch {
	c := *b
	c.Transactions = append([]string(nil), b.Transactions...)
	return &c
}

func cloneStats(st models.Statistics) models.Statistics {
	c := st
	c.Daily = make(map[string]*models.DayStats, len(st.Daily))
	for day, ds := range st.Daily {
		d := *ds
		c.Daily[day] = &d
	}
	return c
}
