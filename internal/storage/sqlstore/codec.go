package sqlstore

import (
	"context"
	"database/sql"
	stdErrors "errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/go-sql-driver/mysql"
	"github.com/holiman/uint256"
	"modernc.org/sqlite"
	sqlite3 "modernc.org/sqlite/lib"

	xerrors "AgentVault/internal/errors"
)

func encodeAddress(a common.Address) string {
	return a.Hex()
}

func decodeAddress(s string) common.Address {
	if s == "" {
		return common.Address{}
	}
	return common.HexToAddress(s)
}

func encodeAmount(v *uint256.Int) string {
	return v.Dec()
}

func decodeAmount(s string) (uint256.Int, error) {
	if s == "" {
		return uint256.Int{}, nil
	}
	v, err := uint256.FromDecimal(s)
	if err != nil {
		return uint256.Int{}, xerrors.Wrap(xerrors.CodeStorageFailure, err, fmt.Sprintf("stored amount %q is corrupt", s))
	}
	return *v, nil
}

func encodeTime(t time.Time) int64 {
	if t.IsZero() {
		return 0
	}
	return t.UnixMilli()
}

func decodeTime(ms int64) time.Time {
	if ms == 0 {
		return time.Time{}
	}
	return time.UnixMilli(ms).UTC()
}

func encodeBool(b bool) int {
	if b {
		return 1
	}
	return 0
}

func storageErr(op string, err error) error {
	if err == nil {
		return nil
	}
	if _, ok := xerrors.From(err); ok {
		return err
	}
	return xerrors.Wrap(xerrors.CodeStorageFailure, err, op)
}

func isDuplicate(err error) bool {
	var mysqlErr *mysql.MySQLError
	if stdErrors.As(err, &mysqlErr) {
		return mysqlErr.Number == 1062
	}
	var liteErr *sqlite.Error
	if stdErrors.As(err, &liteErr) {
		code := liteErr.Code()
		return code == sqlite3.SQLITE_CONSTRAINT_PRIMARYKEY || code == sqlite3.SQLITE_CONSTRAINT_UNIQUE
	}
	return false
}

// limitClause 生成分页子句，limit 为 0 表示不限制。
func (d Dialect) limitClause(limit, offset int) string {
	switch {
	case limit > 0:
		return " LIMIT " + strconv.Itoa(limit) + " OFFSET " + strconv.Itoa(offset)
	case offset > 0 && d == DialectMySQL:
		return " LIMIT 18446744073709551615 OFFSET " + strconv.Itoa(offset)
	case offset > 0:
		return " LIMIT -1 OFFSET " + strconv.Itoa(offset)
	default:
		return ""
	}
}

// upsert 生成按主键覆盖写入的语句。
func (d Dialect) upsert(table string, keys, cols []string) string {
	all := append(append([]string{}, keys...), cols...)
	query := "INSERT INTO " + table + " (" + strings.Join(all, ", ") + ") VALUES (" + placeholders(len(all)) + ")"
	if d == DialectMySQL {
		query += " ON DUPLICATE KEY UPDATE "
		for i, c := range cols {
			if i > 0 {
				query += ", "
			}
			query += c + " = VALUES(" + c + ")"
		}
		return query
	}
	query += " ON CONFLICT (" + strings.Join(keys, ", ") + ") DO UPDATE SET "
	for i, c := range cols {
		if i > 0 {
			query += ", "
		}
		query += c + " = excluded." + c
	}
	return query
}

func (d Dialect) txOptions(readOnly bool) *sql.TxOptions {
	if d != DialectMySQL {
		return nil
	}
	if readOnly {
		return &sql.TxOptions{Isolation: sql.LevelRepeatableRead, ReadOnly: true}
	}
	return &sql.TxOptions{Isolation: sql.LevelSerializable}
}

func placeholders(n int) string {
	return strings.TrimSuffix(strings.Repeat("?, ", n), ", ")
}

// atomic 在单写者区间内执行一个读写事务。
func (d *DB) atomic(ctx context.Context, fn func(tx *sql.Tx) error) error {
	d.writeMu.Lock()
	defer d.writeMu.Unlock()

	tx, err := d.db.BeginTx(ctx, d.dialect.txOptions(false))
	if err != nil {
		return storageErr("开启事务失败", err)
	}
	committed := false
	defer func() {
		if !committed {
			_ = tx.Rollback()
		}
	}()
	if err := fn(tx); err != nil {
		return err
	}
	if err := tx.Commit(); err != nil {
		return storageErr("提交事务失败", err)
	}
	committed = true
	return nil
}

// view 在只读事务中执行 fn，保证读取同一快照。
func (d *DB) view(ctx context.Context, fn func(tx *sql.Tx) error) error {
	tx, err := d.db.BeginTx(ctx, d.dialect.txOptions(true))
	if err != nil {
		return storageErr("开启只读事务失败", err)
	}
	defer tx.Rollback()
	return fn(tx)
}
