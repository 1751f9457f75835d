package directory

import (
	"context"
	"sort"
	"sync"

	"github.com/ethereum/go-ethereum/common"
)

type serviceKey struct {
	agent common.Address
	id    string
}

// MemoryStore 以内存方式保存目录状态，主要用于测试和单机部署。
type MemoryStore struct {
	mu       sync.RWMutex
	agents   map[common.Address]Agent
	order    []common.Address
	services map[serviceKey]Service
	admin    common.Address
	hasAdmin bool
}

// NewMemoryStore 创建 MemoryStore。
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		agents:   make(map[common.Address]Agent),
		services: make(map[serviceKey]Service),
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

func (r memoryReader) Agent(identity common.Address) (Agent, bool, error) {
	a, ok := r.m.agents[identity]
	return a, ok, nil
}

func (r memoryReader) Agents(q AgentQuery) ([]Agent, error) {
	out := make([]Agent, 0)
	skipped := 0
	for _, identity := range r.m.order {
		a := r.m.agents[identity]
		if q.ActiveOnly && !a.Active {
			continue
		}
		if skipped < q.Offset {
			skipped++
			continue
		}
		out = append(out, a)
		if q.Limit > 0 && len(out) == q.Limit {
			break
		}
	}
	return out, nil
}

func (r memoryReader) AgentCount(activeOnly bool) (uint64, error) {
	if !activeOnly {
		return uint64(len(r.m.order)), nil
	}
	var n uint64
	for _, a := range r.m.agents {
		if a.Active {
			n++
		}
	}
	return n, nil
}

func (r memoryReader) Service(identity common.Address, serviceID string) (Service, bool, error) {
	s, ok := r.m.services[serviceKey{agent: identity, id: serviceID}]
	return s, ok, nil
}

func (r memoryReader) Services(identity common.Address) ([]Service, error) {
	out := make([]Service, 0)
	for key, s := range r.m.services {
		if key.agent == identity {
			out = append(out, s)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ServiceID < out[j].ServiceID })
	return out, nil
}

func (r memoryReader) Admin() (common.Address, bool, error) {
	return r.m.admin, r.m.hasAdmin, nil
}

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

func (tx *memoryTx) InsertAgent(a Agent) (uint64, error) {
	if _, ok := tx.m.agents[a.Identity]; ok {
		return 0, ErrAlreadyRegistered
	}
	n := len(tx.m.order)
	a.Seq = uint64(n + 1)
	tx.m.agents[a.Identity] = a
	tx.m.order = append(tx.m.order, a.Identity)
	tx.undo = append(tx.undo, func() {
		delete(tx.m.agents, a.Identity)
		tx.m.order = tx.m.order[:n]
	})
	return a.Seq, nil
}

func (tx *memoryTx) UpdateAgent(a Agent) error {
	prev, ok := tx.m.agents[a.Identity]
	if !ok {
		return ErrAgentNotFound
	}
	a.Seq = prev.Seq
	tx.m.agents[a.Identity] = a
	tx.undo = append(tx.undo, func() { tx.m.agents[prev.Identity] = prev })
	return nil
}

func (tx *memoryTx) PutService(s Service) error {
	key := serviceKey{agent: s.Agent, id: s.ServiceID}
	prev, had := tx.m.services[key]
	tx.m.services[key] = s
	tx.undo = append(tx.undo, func() {
		if had {
			tx.m.services[key] = prev
			return
		}
		delete(tx.m.services, key)
	})
	return nil
}

func (tx *memoryTx) PutAdmin(admin common.Address) error {
	prev, had := tx.m.admin, tx.m.hasAdmin
	tx.m.admin, tx.m.hasAdmin = admin, true
	tx.undo = append(tx.undo, func() { tx.m.admin, tx.m.hasAdmin = prev, had })
	return nil
}

var _ Store = (*MemoryStore)(nil)
