package storage

import (
	"context"
	"database/sql"
	"fmt"
)

type Dialect string

const (
	DialectMySQL  Dialect = "mysql"
	DialectSQLite Dialect = "sqlite"
)

var mysqlSchema = []string{
	`CREATE TABLE IF NOT EXISTS orders (
		order_id         BIGINT       NOT NULL AUTO_INCREMENT PRIMARY KEY,
		order_state      VARCHAR(16)  NOT NULL,
		order_created_at DATETIME(6)  NOT NULL,
		order_created_by VARCHAR(255) NOT NULL,
		INDEX idx_orders_state (order_state)
	)`,
	`CREATE TABLE IF NOT EXISTS order_items (
		order_item_id       BIGINT  NOT NULL AUTO_INCREMENT PRIMARY KEY,
		order_id            BIGINT  NOT NULL,
		product_id          BIGINT  NOT NULL,
		order_item_quantity INT     NOT NULL,
		order_item_deleted  BOOLEAN NOT NULL DEFAULT FALSE,
		CONSTRAINT fk_order_items_order FOREIGN KEY (order_id) REFERENCES orders (order_id)
	)`,
	`CREATE TABLE IF NOT EXISTS order_history (
		order_history_item_id         BIGINT      NOT NULL AUTO_INCREMENT PRIMARY KEY,
		order_id                      BIGINT      NOT NULL,
		order_history_item_created_at DATETIME(6) NOT NULL,
		order_history_item_kind       VARCHAR(32) NOT NULL,
		order_history_item_payload    JSON        NOT NULL,
		CONSTRAINT fk_order_history_order FOREIGN KEY (order_id) REFERENCES orders (order_id)
	)`,
}

var sqliteSchema = []string{
	`CREATE TABLE IF NOT EXISTS orders (
		order_id         INTEGER PRIMARY KEY AUTOINCREMENT,
		order_state      TEXT NOT NULL,
		order_created_at TEXT NOT NULL,
		order_created_by TEXT NOT NULL
	)`,
	`CREATE INDEX IF NOT EXISTS idx_orders_state ON orders (order_state)`,
	`CREATE TABLE IF NOT EXISTS order_items (
		order_item_id       INTEGER PRIMARY KEY AUTOINCREMENT,
		order_id            INTEGER NOT NULL REFERENCES orders (order_id),
		product_id          INTEGER NOT NULL,
		order_item_quantity INTEGER NOT NULL,
		order_item_deleted  INTEGER NOT NULL DEFAULT 0
	)`,
	`CREATE TABLE IF NOT EXISTS order_history (
		order_history_item_id         INTEGER PRIMARY KEY AUTOINCREMENT,
		order_id                      INTEGER NOT NULL REFERENCES orders (order_id),
		order_history_item_created_at TEXT    NOT NULL,
		order_history_item_kind       TEXT    NOT NULL,
		order_history_item_payload    TEXT    NOT NULL
	)`,
}

// ApplySchema creates the order tables when they are missing.
func ApplySchema(ctx context.Context, db *sql.DB, dialect Dialect) error {
	var stmts []string
	switch dialect {
	case DialectMySQL:
		stmts = mysqlSchema
	case DialectSQLite:
		stmts = sqliteSchema
	default:
		return fmt.Errorf("unsupported dialect %q", dialect)
	}

	for _, stmt := range stmts {
		if _, err := db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("apply %s schema: %w", dialect, err)
		}
	}
	return nil
}
