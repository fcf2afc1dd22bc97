package capability

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"sync"

	_ "modernc.org/sqlite"
)

// DataSource executes read queries against a configured database and
// returns the result rows. SQLite is the built-in engine; the engine
// name is kept in config so other drivers can register alongside it.
//
// Open handles are pooled per DSN, so repeated runs against the same
// source reuse one connection pool.
type DataSource struct {
	mu    sync.Mutex
	pools map[string]*sql.DB
}

// NewDataSource creates the data source capability with an empty pool.
func NewDataSource() *DataSource {
	return &DataSource{pools: make(map[string]*sql.DB)}
}

// Execute runs the configured query. The step input is ignored for
// addressing; it is exposed to the query as positional parameters when
// it is a slice.
func (d *DataSource) Execute(ctx context.Context, config map[string]any, input any) (any, error) {
	engine := cfgString(config, "engine")
	host := cfgString(config, "host")
	if engine == "" {
		return nil, fmt.Errorf("data source: engine is required")
	}
	if host == "" {
		return nil, fmt.Errorf("data source: host is required")
	}

	query := cfgString(config, "query")
	if query == "" {
		return nil, fmt.Errorf("data source: query is required")
	}

	db, err := d.open(engine, host, cfgString(config, "database"))
	if err != nil {
		return nil, err
	}

	args := queryArgs(input)
	rows, err := db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("data source: query: %w", err)
	}
	defer rows.Close()

	return scanRows(rows)
}

// Close releases all pooled database handles.
func (d *DataSource) Close() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	var firstErr error
	for dsn, db := range d.pools {
		if err := db.Close(); err != nil && firstErr == nil {
			firstErr = err
		}
		delete(d.pools, dsn)
	}
	return firstErr
}

func (d *DataSource) open(engine, host, database string) (*sql.DB, error) {
	if engine != "sqlite" {
		return nil, fmt.Errorf("data source: unsupported engine %q", engine)
	}

	dsn := host
	if database != "" && !strings.Contains(host, database) {
		dsn = host + "/" + database
	}

	d.mu.Lock()
	defer d.mu.Unlock()
	if db, ok := d.pools[dsn]; ok {
		return db, nil
	}

	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("data source: open %q: %w", dsn, err)
	}
	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("data source: set WAL mode: %w", err)
	}

	d.pools[dsn] = db
	return db, nil
}

// queryArgs turns a slice input into positional query parameters.
func queryArgs(input any) []any {
	if args, ok := input.([]any); ok {
		return args
	}
	return nil
}

// scanRows reads all result rows into maps keyed by column name.
func scanRows(rows *sql.Rows) ([]map[string]any, error) {
	cols, err := rows.Columns()
	if err != nil {
		return nil, fmt.Errorf("data source: columns: %w", err)
	}

	out := make([]map[string]any, 0)
	for rows.Next() {
		values := make([]any, len(cols))
		ptrs := make([]any, len(cols))
		for i := range values {
			ptrs[i] = &values[i]
		}
		if err := rows.Scan(ptrs...); err != nil {
			return nil, fmt.Errorf("data source: scan: %w", err)
		}

		row := make(map[string]any, len(cols))
		for i, col := range cols {
			if b, ok := values[i].([]byte); ok {
				row[col] = string(b)
			} else {
				row[col] = values[i]
			}
		}
		out = append(out, row)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("data source: rows: %w", err)
	}
	return out, nil
}
