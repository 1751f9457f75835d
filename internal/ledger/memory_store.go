package ledger

import (
	"context"
	"sync"

	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"
)

type payoutKey struct {
	payee common.Address
	asset common.Address
}

// MemoryStore 以内存方式保存金库状态，写操作通过撤销日志实现回滚。
type MemoryStore struct {
	mu         sync.RWMutex
	decisions  map[common.Hash]Decision
	limits     map[common.Address]SpendingLimit
	records    []Record
	balances   map[common.Address]uint256.Int
	payouts    map[payoutKey]uint256.Int
	control    Control
	hasControl bool
}

// NewMemoryStore 创建 MemoryStore。
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		decisions: make(map[common.Hash]Decision),
		limits:    make(map[common.Address]SpendingLimit),
		balances:  make(map[common.Address]uint256.Int),
		payouts:   make(map[payoutKey]uint256.Int),
	}
}

// Atomic 实现 Store 接口。
func (m *MemoryStore) Atomic(ctx context.Context, fn func(tx Tx) error) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()

	tx := &memoryTx{memoryReader: memoryReader{m: m}, m: m}
	committed := false
	defer func() {
		if !committed {
			tx.rollback()
		}
	}()
	if err := fn(tx); err != nil {
		return err
	}
	committed = true
	return nil
}

// View 实现 Store 接口。
func (m *MemoryStore) View(ctx context.Context, fn func(tx ReadTx) error) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	return fn(memoryReader{m: m})
}

// Close 对内存存储无需操作。
func (m *MemoryStore) Close() error {
	return nil
}

type memoryReader struct {
	m *MemoryStore
}

func (r memoryReader) Decision(fingerprint common.Hash) (Decision, bool, error) {
	d, ok := r.m.decisions[fingerprint]
	return d, ok, nil
}

func (r memoryReader) SpendingLimit(asset common.Address) (SpendingLimit, bool, error) {
	l, ok := r.m.limits[asset]
	return l, ok, nil
}

func (r memoryReader) Balance(asset common.Address) (uint256.Int, error) {
	return r.m.balances[asset], nil
}

func (r memoryReader) Payout(payee, asset common.Address) (uint256.Int, error) {
	return r.m.payouts[payoutKey{payee: payee, asset: asset}], nil
}

func (r memoryReader) Control() (Control, bool, error) {
	return r.m.control, r.m.hasControl, nil
}

func (r memoryReader) Records(q RecordQuery) ([]Record, error) {
	total := len(r.m.records)
	if q.Offset >= total {
		return []Record{}, nil
	}
	end := q.Offset + q.Limit
	if q.Limit <= 0 || end > total {
		end = total
	}
	out := make([]Record, 0, end-q.Offset)
	if q.Descending {
		for i := total - 1 - q.Offset; i >= total-end; i-- {
			out = append(out, r.m.records[i])
		}
		return out, nil
	}
	out = append(out, r.m.records[q.Offset:end]...)
	return out, nil
}

func (r memoryReader) RecordCount() (uint64, error) {
	return uint64(len(r.m.records)), nil
}

// memoryTx 记录每次写入的逆操作，回滚时倒序执行。
type memoryTx struct {
	memoryReader
	m    *MemoryStore
	undo []func()
}

func (tx *memoryTx) rollback() {
	for i := len(tx.undo) - 1; i >= 0; i-- {
		tx.undo[i]()
	}
	tx.undo = nil
}

func (tx *memoryTx) InsertDecision(d Decision) error {
	if _, ok := tx.m.decisions[d.Fingerprint]; ok {
		return ErrDuplicateDecision
	}
	tx.m.decisions[d.Fingerprint] = d
	tx.undo = append(tx.undo, func() { delete(tx.m.decisions, d.Fingerprint) })
	return nil
}

func (tx *memoryTx) UpdateDecision(d Decision) error {
	prev, ok := tx.m.decisions[d.Fingerprint]
	if !ok {
		return ErrDecisionNotFound
	}
	tx.m.decisions[d.Fingerprint] = d
	tx.undo = append(tx.undo, func() { tx.m.decisions[prev.Fingerprint] = prev })
	return nil
}

func (tx *memoryTx) PutSpendingLimit(l SpendingLimit) error {
	prev, had := tx.m.limits[l.Asset]
	tx.m.limits[l.Asset] = l
	tx.undo = append(tx.undo, func() {
		if had {
			tx.m.limits[l.Asset] = prev
			return
		}
		delete(tx.m.limits, l.Asset)
	})
	return nil
}

func (tx *memoryTx) AppendRecord(r Record) (uint64, error) {
	n := len(tx.m.records)
	r.Sequence = uint64(n + 1)
	tx.m.records = append(tx.m.records, r)
	tx.undo = append(tx.undo, func() { tx.m.records = tx.m.records[:n] })
	return r.Sequence, nil
}

func (tx *memoryTx) PutBalance(asset common.Address, amount uint256.Int) error {
	prev, had := tx.m.balances[asset]
	tx.m.balances[asset] = amount
	tx.undo = append(tx.undo, func() {
		if had {
			tx.m.balances[asset] = prev
			return
		}
		delete(tx.m.balances, asset)
	})
	return nil
}

func (tx *memoryTx) PutPayout(payee, asset common.Address, amount uint256.Int) error {
	key := payoutKey{payee: payee, asset: asset}
	prev, had := tx.m.payouts[key]
	tx.m.payouts[key] = amount
	tx.undo = append(tx.undo, func() {
		if had {
			tx.m.payouts[key] = prev
			return
		}
		delete(tx.m.payouts, key)
	})
	return nil
}

func (tx *memoryTx) PutControl(c Control) error {
	prev, had := tx.m.control, tx.m.hasControl
	tx.m.control, tx.m.hasControl = c, true
	tx.undo = append(tx.undo, func() { tx.m.control, tx.m.hasControl = prev, had })
	return nil
}

var _ Store = (*MemoryStore)(nil)
