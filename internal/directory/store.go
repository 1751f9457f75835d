package directory

import (
	"context"

	"github.com/ethereum/go-ethereum/common"
)

// AgentQuery 按登记顺序选择代理。
type AgentQuery struct {
	Offset     int
	Limit      int
	ActiveOnly bool
}

// ReadTx 提供一致性快照上的只读访问。
type ReadTx interface {
	Agent(identity common.Address) (Agent, bool, error)
	Agents(q AgentQuery) ([]Agent, error)
	AgentCount(activeOnly bool) (uint64, error)
	Service(identity common.Address, serviceID string) (Service, bool, error)
	Services(identity common.Address) ([]Service, error)
	Admin() (common.Address, bool, error)
}

// Tx 在 ReadTx 之上提供写操作。
type Tx interface {
	ReadTx
	// InsertAgent 写入新代理并返回其登记序号。
	InsertAgent(a Agent) (uint64, error)
	UpdateAgent(a Agent) error
	PutService(s Service) error
	PutAdmin(admin common.Address) error
}

// Store 抽象了目录状态的持久化接口。
type Store interface {
	Atomic(ctx context.Context, fn func(tx Tx) error) error
	View(ctx context.Context, fn func(tx ReadTx) error) error
	Close() error
}
