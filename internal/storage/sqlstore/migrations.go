package sqlstore

import (
	"cmp"
	"context"
	"database/sql"
	"fmt"
	"io/fs"
	"path"
	"slices"
	"strconv"
	"strings"
	"time"

	"AgentVault/deploy/migrations"
)

// migration 是一个带编号的 schema 变更，文件名形如 0001_vault.sql。
type migration struct {
	version    int
	name       string
	statements []string
}

// migrationTableDDL 返回记录已执行迁移的表结构。
func (d Dialect) migrationTableDDL() string {
	ddl := "CREATE TABLE IF NOT EXISTS schema_migrations (" +
		"version BIGINT NOT NULL PRIMARY KEY, " +
		"name VARCHAR(255) NOT NULL, " +
		"applied_at BIGINT NOT NULL)"
	if d == DialectMySQL {
		ddl += " ENGINE=InnoDB DEFAULT CHARSET=utf8mb4"
	}
	return ddl
}

func (d *DB) runMigrations(ctx context.Context) error {
	if _, err := d.db.ExecContext(ctx, d.dialect.migrationTableDDL()); err != nil {
		return fmt.Errorf("创建 schema_migrations 表失败: %w", err)
	}
	available, err := readMigrations(d.dialect)
	if err != nil {
		return err
	}
	done, err := d.appliedVersions(ctx)
	if err != nil {
		return err
	}
	for _, m := range available {
		if done[m.version] {
			continue
		}
		if err := d.apply(ctx, m); err != nil {
			return err
		}
	}
	return nil
}

func (d *DB) appliedVersions(ctx context.Context) (map[int]bool, error) {
	done := make(map[int]bool)
	err := d.view(ctx, func(tx *sql.Tx) error {
		rows, err := tx.QueryContext(ctx, `SELECT version FROM schema_migrations`)
		if err != nil {
			return err
		}
		defer rows.Close()
		for rows.Next() {
			var v int
			if err := rows.Scan(&v); err != nil {
				return err
			}
			done[v] = true
		}
		return rows.Err()
	})
	if err != nil {
		return nil, fmt.Errorf("读取已执行的迁移失败: %w", err)
	}
	return done, nil
}

// apply 在一个写事务中执行迁移并登记版本。
func (d *DB) apply(ctx context.Context, m migration) error {
	record := d.dialect.upsert("schema_migrations", []string{"version"}, []string{"name", "applied_at"})
	return d.atomic(ctx, func(tx *sql.Tx) error {
		for i, stmt := range m.statements {
			if _, err := tx.ExecContext(ctx, stmt); err != nil {
				return fmt.Errorf("迁移 %s 第 %d 条语句失败: %w", m.name, i+1, err)
			}
		}
		if _, err := tx.ExecContext(ctx, record, m.version, m.name, time.Now().Unix()); err != nil {
			return fmt.Errorf("登记迁移 %s 失败: %w", m.name, err)
		}
		return nil
	})
}

// readMigrations 读取方言目录下的 .sql 文件并按版本排序，版本重复时报错。
func readMigrations(dialect Dialect) ([]migration, error) {
	dir, err := migrations.ForDialect(string(dialect))
	if err != nil {
		return nil, err
	}
	names, err := fs.Glob(dir, "*.sql")
	if err != nil {
		return nil, fmt.Errorf("列出迁移文件失败: %w", err)
	}

	out := make([]migration, 0, len(names))
	seen := make(map[int]string, len(names))
	for _, name := range names {
		version, err := migrationVersion(name)
		if err != nil {
			return nil, err
		}
		if prev, ok := seen[version]; ok {
			return nil, fmt.Errorf("迁移 %s 与 %s 版本重复", name, prev)
		}
		seen[version] = name

		body, err := fs.ReadFile(dir, name)
		if err != nil {
			return nil, fmt.Errorf("读取迁移文件 %s 失败: %w", name, err)
		}
		if stmts := sqlStatements(string(body)); len(stmts) > 0 {
			out = append(out, migration{version: version, name: name, statements: stmts})
		}
	}
	slices.SortFunc(out, func(a, b migration) int { return cmp.Compare(a.version, b.version) })
	return out, nil
}

// migrationVersion 解析文件名前缀中的数字版本。
func migrationVersion(name string) (int, error) {
	base := strings.TrimSuffix(path.Base(name), ".sql")
	prefix, _, _ := strings.Cut(base, "_")
	v, err := strconv.Atoi(prefix)
	if err != nil || v <= 0 {
		return 0, fmt.Errorf("迁移文件名 %s 缺少数字版本前缀", name)
	}
	return v, nil
}

// sqlStatements 按分号切分脚本，忽略空语句与 -- 注释行。
func sqlStatements(script string) []string {
	var out []string
	for _, chunk := range strings.Split(script, ";") {
		var lines []string
		for _, line := range strings.Split(chunk, "\n") {
			if trimmed := strings.TrimSpace(line); trimmed != "" && !strings.HasPrefix(trimmed, "--") {
				lines = append(lines, line)
			}
		}
		if stmt := strings.TrimSpace(strings.Join(lines, "\n")); stmt != "" {
			out = append(out, stmt)
		}
	}
	return out
}
