package filestore

import (
	// Go Internal Packages
	"encoding/json"
	"fmt"
	"os"
	"time"

	// Local Packages
	models "termbridge/models"

	// External Packages
	"go.uber.org/zap"
)

// flushInterval is the background flush cadence on top of the
// per-mutation writes.
const flushInterval = 30 * time.Second

// loadState reads the ledger document at path. A missing file is not an
// error, the store then starts empty.
func loadState(path string) (*models.PersistedState, error) {
	raw, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("cannot read state file: %w", err)
	}

	var state models.PersistedState
	if err := json.Unmarshal(raw, &state); err != nil {
		return nil, fmt.Errorf("state file %s is corrupt: %w", path, err)
	}
	return &state, nil
}

// snapshotLocked captures the full store state for the writer. Rows are
// cloned so later mutations cannot race the disk write.
func (s *Store) snapshotLocked() models.PersistedState {
	state := models.PersistedState{
		Transactions: make([]*models.Transaction, 0, len(s.order)),
		Batches:      make([]*models.Batch, 0, len(s.batchOrder)),
		Counters:     s.counters,
		CurrentBatch: s.currentBatch,
		Statistics:   cloneStats(s.stats),
	}
	for _, id := range s.order {
		state.Transactions = append(state.Transactions, cloneTx(s.txs[id]))
	}
	for _, id := range s.batchOrder {
		state.Batches = append(state.Batches, cloneBatch(s.batches[id]))
	}
	return state
}

// persistLocked queues the current state for the writer. The queue
// holds one pending snapshot; a newer one replaces it, so the writer
// always lands on the freshest state and mutations never block on disk.
func (s *Store) persistLocked() {
	snap := s.snapshotLocked()
	for {
		select {
		case s.snapshots <- snap:
			return
		default:
			select {
			case <-s.snapshots:
			default:
			}
		}
	}
}

// writerLoop serializes all disk writes. It drains queued snapshots,
// flushes on a timer and performs one final write on shutdown.
func (s *Store) writerLoop() {
	defer close(s.writerDone)

	ticker := time.NewTicker(flushInterval)
	defer ticker.Stop()

	for {
		select {
		case snap := <-s.snapshots:
			s.write(snap)

		case <-ticker.C:
			s.mu.Lock()
			snap := s.snapshotLocked()
			s.mu.Unlock()
			s.write(snap)

		case <-s.done:
			select {
			case snap := <-s.snapshots:
				s.write(snap)
			default:
				s.mu.Lock()
				snap := s.snapshotLocked()
				s.mu.Unlock()
				s.write(snap)
			}
			return
		}
	}
}

// write lands a snapshot on disk through a temp sibling and an atomic
// rename, so a crash mid-write leaves the previous document intact.
func (s *Store) write(state models.PersistedState) {
	raw, err := json.MarshalIndent(state, "", "  ")
	if err != nil {
		s.logger.Error("cannot marshal state", zap.Error(err))
		return
	}

	tmp := s.path + ".tmp"
	if err := os.WriteFile(tmp, raw, 0o644); err != nil {
		s.logger.Error("cannot write state file", zap.String("path", tmp), zap.Error(err))
		return
	}
	if err := os.Rename(tmp, s.path); err != nil {
		s.logger.Error("cannot replace state file", zap.String("path", s.path), zap.Error(err))
		return
	}
	s.logger.Debug("state flushed", zap.String("path", s.path),
		zap.Int("transactions", len(state.Transactions)))
}

// Close stops the writer after one final flush. Safe to call more than
// once.
func (s *Store) Close() {
	s.closeOnce.Do(func() {
		close(s.done)
	})
	<-s.writerDone
}
