// Package sqlstore persists the vault and directory state in MySQL or SQLite.
package sqlstore

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"sync"
	"time"

	_ "github.com/go-sql-driver/mysql"
	_ "modernc.org/sqlite"
)

// Dialect 标识底层数据库。
type Dialect string

const (
	DialectMySQL  Dialect = "mysql"
	DialectSQLite Dialect = "sqlite"
)

// ParseDialect 解析配置中的驱动名称。
func ParseDialect(value string) (Dialect, error) {
	switch strings.ToLower(strings.TrimSpace(value)) {
	case "mysql":
		return DialectMySQL, nil
	case "sqlite", "sqlite3":
		return DialectSQLite, nil
	default:
		return "", fmt.Errorf("unsupported SQL driver %q", value)
	}
}

// Config 描述数据库连接参数。
type Config struct {
	Driver          string
	DSN             string
	MaxOpenConns    int
	MaxIdleConns    int
	ConnMaxLifetime time.Duration
	ConnMaxIdleTime time.Duration
	SkipMigrations  bool
}

// DB 持有连接池，并为金库与目录提供共享的单写者事务。
type DB struct {
	db      *sql.DB
	dialect Dialect
	writeMu sync.Mutex
}

// Open 建立连接并执行迁移。
func Open(ctx context.Context, cfg Config) (*DB, error) {
	dialect, err := ParseDialect(cfg.Driver)
	if err != nil {
		return nil, err
	}
	db, err := openDatabase(ctx, dialect, cfg)
	if err != nil {
		return nil, err
	}
	store, err := New(ctx, db, dialect, !cfg.SkipMigrations)
	if err != nil {
		db.Close()
		return nil, err
	}
	return store, nil
}

// New 包装已有的 *sql.DB，migrate 为 true 时执行迁移。
func New(ctx context.Context, db *sql.DB, dialect Dialect, migrate bool) (*DB, error) {
	if db == nil {
		return nil, fmt.Errorf("sql.DB 不能为空")
	}
	store := &DB{db: db, dialect: dialect}
	if migrate {
		if err := store.runMigrations(ctx); err != nil {
			return nil, err
		}
	}
	return store, nil
}

// Ledger 返回金库存储。
func (d *DB) Ledger() *LedgerStore {
	return &LedgerStore{db: d}
}

// Directory 返回目录存储。
func (d *DB) Directory() *DirectoryStore {
	return &DirectoryStore{db: d}
}

// Ping 检查数据库连通性。
func (d *DB) Ping(ctx context.Context) error {
	return d.db.PingContext(ctx)
}

// Close 关闭连接池。
func (d *DB) Close() error {
	if d == nil || d.db == nil {
		return nil
	}
	return d.db.Close()
}

func openDatabase(ctx context.Context, dialect Dialect, cfg Config) (*sql.DB, error) {
	dsn := strings.TrimSpace(cfg.DSN)
	if dsn == "" {
		return nil, fmt.Errorf("%s DSN 不能为空", dialect)
	}
	memory := false
	if dialect == DialectSQLite {
		memory = strings.Contains(dsn, ":memory:") || strings.Contains(dsn, "mode=memory")
		if !strings.Contains(dsn, "_pragma=") {
			sep := "?"
			if strings.Contains(dsn, "?") {
				sep = "&"
			}
			dsn += sep + "_pragma=busy_timeout(5000)&_pragma=foreign_keys(1)"
		}
	}

	db, err := sql.Open(string(dialect), dsn)
	if err != nil {
		return nil, fmt.Errorf("连接 %s 失败: %w", dialect, err)
	}

	switch {
	case memory:
		// 每个连接都是独立的内存库，只能保留一个连接。
		db.SetMaxOpenConns(1)
	case cfg.MaxOpenConns > 0:
		db.SetMaxOpenConns(cfg.MaxOpenConns)
	default:
		db.SetMaxOpenConns(20)
	}
	if cfg.MaxIdleConns > 0 {
		db.SetMaxIdleConns(cfg.MaxIdleConns)
	} else {
		db.SetMaxIdleConns(10)
	}
	if cfg.ConnMaxLifetime > 0 {
		db.SetConnMaxLifetime(cfg.ConnMaxLifetime)
	} else if !memory {
		db.SetConnMaxLifetime(30 * time.Minute)
	}
	if cfg.ConnMaxIdleTime > 0 {
		db.SetConnMaxIdleTime(cfg.ConnMaxIdleTime)
	}

	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("无法连接到 %s: %w", dialect, err)
	}
	return db, nil
}
