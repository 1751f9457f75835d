package sqlstore

import (
	"context"
	"database/sql"
	stdErrors "errors"
	"time"

	"github.com/ethereum/go-ethereum/common"

	"AgentVault/internal/directory"
)

// DirectoryStore 实现 directory.Store。
type DirectoryStore struct {
	db *DB
}

// Atomic 实现 directory.Store 接口。
func (s *DirectoryStore) Atomic(ctx context.Context, fn func(tx directory.Tx) error) error {
	return s.db.atomic(ctx, func(tx *sql.Tx) error {
		return fn(&directoryTx{ctx: ctx, tx: tx, dialect: s.db.dialect})
	})
}

// View 实现 directory.Store 接口。
func (s *DirectoryStore) View(ctx context.Context, fn func(tx directory.ReadTx) error) error {
	return s.db.view(ctx, func(tx *sql.Tx) error {
		return fn(&directoryTx{ctx: ctx, tx: tx, dialect: s.db.dialect})
	})
}

// Close 不关闭共享连接池。
func (s *DirectoryStore) Close() error {
	return nil
}

type directoryTx struct {
	ctx     context.Context
	tx      *sql.Tx
	dialect Dialect
}

const agentColumns = `identity, seq, metadata, reputation, transaction_count, successful_count, active, registered_at, updated_at`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanAgent(row rowScanner) (directory.Agent, error) {
	var (
		a                                 directory.Agent
		identity                          string
		seq, reputation, txCount, okCount int64
		active, registeredAt, updatedAt   int64
	)
	if err := row.Scan(&identity, &seq, &a.Metadata, &reputation, &txCount, &okCount, &active, &registeredAt, &updatedAt); err != nil {
		return directory.Agent{}, err
	}
	a.Identity = decodeAddress(identity)
	a.Seq = uint64(seq)
	a.Reputation = int(reputation)
	a.TransactionCount = uint64(txCount)
	a.SuccessfulCount = uint64(okCount)
	a.Active = active != 0
	a.RegisteredAt = decodeTime(registeredAt)
	a.UpdatedAt = decodeTime(updatedAt)
	return a, nil
}

func (t *directoryTx) Agent(identity common.Address) (directory.Agent, bool, error) {
	row := t.tx.QueryRowContext(t.ctx, `SELECT `+agentColumns+` FROM agents WHERE identity = ?`, encodeAddress(identity))
	a, err := scanAgent(row)
	if err != nil {
		if stdErrors.Is(err, sql.ErrNoRows) {
			return directory.Agent{}, false, nil
		}
		return directory.Agent{}, false, storageErr("查询代理失败", err)
	}
	return a, true, nil
}

func (t *directoryTx) Agents(q directory.AgentQuery) ([]directory.Agent, error) {
	query := `SELECT ` + agentColumns + ` FROM agents`
	if q.ActiveOnly {
		query += ` WHERE active = 1`
	}
	query += ` ORDER BY seq ASC` + t.dialect.limitClause(q.Limit, q.Offset)

	rows, err := t.tx.QueryContext(t.ctx, query)
	if err != nil {
		return nil, storageErr("查询代理列表失败", err)
	}
	defer rows.Close()

	agents := make([]directory.Agent, 0)
	for rows.Next() {
		a, err := scanAgent(rows)
		if err != nil {
			return nil, storageErr("解析代理失败", err)
		}
		agents = append(agents, a)
	}
	if err := rows.Err(); err != nil {
		return nil, storageErr("遍历代理列表失败", err)
	}
	return agents, nil
}

func (t *directoryTx) AgentCount(activeOnly bool) (uint64, error) {
	query := `SELECT COUNT(*) FROM agents`
	if activeOnly {
		query += ` WHERE active = 1`
	}
	var n int64
	if err := t.tx.QueryRowContext(t.ctx, query).Scan(&n); err != nil {
		return 0, storageErr("统计代理失败", err)
	}
	return uint64(n), nil
}

func scanService(row rowScanner) (directory.Service, error) {
	var (
		s                    directory.Service
		identity, price      string
		available, updatedAt int64
	)
	if err := row.Scan(&identity, &s.ServiceID, &price, &s.Description, &available, &updatedAt); err != nil {
		return directory.Service{}, err
	}
	value, err := decodeAmount(price)
	if err != nil {
		return directory.Service{}, err
	}
	s.Agent = decodeAddress(identity)
	s.Price = value
	s.Available = available != 0
	s.UpdatedAt = decodeTime(updatedAt)
	return s, nil
}

func (t *directoryTx) Service(identity common.Address, serviceID string) (directory.Service, bool, error) {
	row := t.tx.QueryRowContext(t.ctx, `SELECT identity, service_id, price, description, available, updated_at
FROM services WHERE identity = ? AND service_id = ?`, encodeAddress(identity), serviceID)
	s, err := scanService(row)
	if err != nil {
		if stdErrors.Is(err, sql.ErrNoRows) {
			return directory.Service{}, false, nil
		}
		return directory.Service{}, false, storageErr("查询服务失败", err)
	}
	return s, true, nil
}

func (t *directoryTx) Services(identity common.Address) ([]directory.Service, error) {
	rows, err := t.tx.QueryContext(t.ctx, `SELECT identity, service_id, price, description, available, updated_at
FROM services WHERE identity = ? ORDER BY service_id ASC`, encodeAddress(identity))
	if err != nil {
		return nil, storageErr("查询服务列表失败", err)
	}
	defer rows.Close()

	services := make([]directory.Service, 0)
	for rows.Next() {
		s, err := scanService(rows)
		if err != nil {
			return nil, storageErr("解析服务失败", err)
		}
		services = append(services, s)
	}
	if err := rows.Err(); err != nil {
		return nil, storageErr("遍历服务列表失败", err)
	}
	return services, nil
}

func (t *directoryTx) Admin() (common.Address, bool, error) {
	var admin string
	if err := t.tx.QueryRowContext(t.ctx, `SELECT admin FROM directory_control WHERE id = 1`).Scan(&admin); err != nil {
		if stdErrors.Is(err, sql.ErrNoRows) {
			return common.Address{}, false, nil
		}
		return common.Address{}, false, storageErr("查询目录管理员失败", err)
	}
	return decodeAddress(admin), true, nil
}

func (t *directoryTx) InsertAgent(a directory.Agent) (uint64, error) {
	var last int64
	if err := t.tx.QueryRowContext(t.ctx, `SELECT COALESCE(MAX(seq), 0) FROM agents`).Scan(&last); err != nil {
		return 0, storageErr("查询登记序号失败", err)
	}
	seq := uint64(last) + 1
	_, err := t.tx.ExecContext(t.ctx, `INSERT INTO agents (`+agentColumns+`) VALUES (`+placeholders(9)+`)`,
		encodeAddress(a.Identity), int64(seq), a.Metadata, a.Reputation, int64(a.TransactionCount), int64(a.SuccessfulCount),
		encodeBool(a.Active), encodeTime(a.RegisteredAt), encodeTime(a.UpdatedAt))
	if err != nil {
		if isDuplicate(err) {
			return 0, directory.ErrAlreadyRegistered
		}
		return 0, storageErr("写入代理失败", err)
	}
	return seq, nil
}

func (t *directoryTx) UpdateAgent(a directory.Agent) error {
	_, err := t.tx.ExecContext(t.ctx, `UPDATE agents SET metadata = ?, reputation = ?, transaction_count = ?, successful_count = ?, active = ?, updated_at = ?
WHERE identity = ?`,
		a.Metadata, a.Reputation, int64(a.TransactionCount), int64(a.SuccessfulCount), encodeBool(a.Active),
		encodeTime(a.UpdatedAt), encodeAddress(a.Identity))
	if err != nil {
		return storageErr("更新代理失败", err)
	}
	return nil
}

func (t *directoryTx) PutService(s directory.Service) error {
	query := t.dialect.upsert("services", []string{"identity", "service_id"}, []string{"price", "description", "available", "updated_at"})
	_, err := t.tx.ExecContext(t.ctx, query, encodeAddress(s.Agent), s.ServiceID, encodeAmount(&s.Price),
		s.Description, encodeBool(s.Available), encodeTime(s.UpdatedAt))
	if err != nil {
		return storageErr("写入服务失败", err)
	}
	return nil
}

func (t *directoryTx) PutAdmin(admin common.Address) error {
	query := t.dialect.upsert("directory_control", []string{"id"}, []string{"admin", "updated_at"})
	if _, err := t.tx.ExecContext(t.ctx, query, 1, encodeAddress(admin), time.Now().UnixMilli()); err != nil {
		return storageErr("写入目录管理员失败", err)
	}
	return nil
}

var _ directory.Store = (*DirectoryStore)(nil)
