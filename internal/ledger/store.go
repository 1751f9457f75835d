package ledger

import (
	"context"

	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"
)

// RecordQuery 选择交易历史的一个窗口。
type RecordQuery struct {
	Offset     int
	Limit      int
	Descending bool
}

// ReadTx 提供一致性快照上的只读访问。
type ReadTx interface {
	Decision(fingerprint common.Hash) (Decision, bool, error)
	SpendingLimit(asset common.Address) (SpendingLimit, bool, error)
	Balance(asset common.Address) (uint256.Int, error)
	Payout(payee, asset common.Address) (uint256.Int, error)
	Control() (Control, bool, error)
	Records(q RecordQuery) ([]Record, error)
	RecordCount() (uint64, error)
}

// Tx 在 ReadTx 之上提供写操作，所有写入在 Atomic 返回错误时整体回滚。
type Tx interface {
	ReadTx
	InsertDecision(d Decision) error
	UpdateDecision(d Decision) error
	PutSpendingLimit(l SpendingLimit) error
	AppendRecord(r Record) (uint64, error)
	PutBalance(asset common.Address, amount uint256.Int) error
	PutPayout(payee, asset common.Address, amount uint256.Int) error
	PutControl(c Control) error
}

// Store 抽象了金库状态的持久化接口。
type Store interface {
	// Atomic 串行执行 fn，fn 返回错误时撤销其全部写入。
	Atomic(ctx context.Context, fn func(tx Tx) error) error
	// View 在不会观察到半完成写入的快照上执行 fn。
	View(ctx context.Context, fn func(tx ReadTx) error) error
	Close() error
}
