// internal/common/database/clickhouse.go
package database

import (
	"context"
	"fmt"
	"reflect"

	"report-worker/internal/common/config"

	"github.com/ClickHouse/clickhouse-go/v2"
	"github.com/ClickHouse/clickhouse-go/v2/lib/driver"
)

// ClickHouseClient wraps the archive-store connection. Report queries are
// arbitrary SQL strings assembled by the query builder, so results come back
// as generic row maps rather than typed structs.
type ClickHouseClient struct {
	conn driver.Conn
}

// NewClickHouse creates a new ClickHouse client
func NewClickHouse(cfg config.ClickHouseConfig) (*ClickHouseClient, error) {
	conn, err := clickhouse.Open(&clickhouse.Options{
		Addr: []string{cfg.GetAddress()},
		Auth: clickhouse.Auth{
			Database: cfg.Database,
			Username: cfg.Username,
			Password: cfg.Password,
		},
		Settings: clickhouse.Settings{
			"async_insert":          1,
			"wait_for_async_insert": 0,
		},
	})
	if err != nil {
		return nil, fmt.Errorf("failed to open clickhouse: %w", err)
	}
	return &ClickHouseClient{conn: conn}, nil
}

// Ping tests the archive-store connection
func (c *ClickHouseClient) Ping(ctx context.Context) error {
	return c.conn.Ping(ctx)
}

// Close closes the archive-store connection
func (c *ClickHouseClient) Close() error {
	if c.conn != nil {
		return c.conn.Close()
	}
	return nil
}

// ExecuteQuery runs a raw SQL string and returns every row as a column-keyed map.
func (c *ClickHouseClient) ExecuteQuery(ctx context.Context, queryText string) ([]map[string]interface{}, error) {
	rows, err := c.conn.Query(ctx, queryText)
	if err != nil {
		return nil, fmt.Errorf("failed to execute query: %w", err)
	}
	defer rows.Close()

	columns := rows.Columns()
	types := rows.ColumnTypes()

	var out []map[string]interface{}
	for rows.Next() {
		dest := make([]interface{}, len(columns))
		for i, ct := range types {
			dest[i] = reflect.New(ct.ScanType()).Interface()
		}
		if err := rows.Scan(dest...); err != nil {
			return nil, fmt.Errorf("failed to scan row: %w", err)
		}

		row := make(map[string]interface{}, len(columns))
		for i, col := range columns {
			row[col] = reflect.ValueOf(dest[i]).Elem().Interface()
		}
		out = append(out, row)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("row iteration failed: %w", err)
	}
	return out, nil
}
