// Package testutil provides an in-memory stand-in for Postgres used by the
// postgres store tests. It understands the handful of statements the store
// issues: CREATE TABLE, upserting INSERT and plain SELECT.
package testutil

import (
	"context"
	"database/sql"
	"database/sql/driver"
	"errors"
	"fmt"
	"io"
	"strings"
	"sync"
	"sync/atomic"
)

var driverSeq atomic.Int64

// Failure injection errors.
var (
	ErrPing   = errors.New("stub: ping failed")
	ErrExec   = errors.New("stub: exec failed")
	ErrBegin  = errors.New("stub: begin failed")
	ErrCommit = errors.New("stub: commit failed")
	ErrTable  = errors.New("stub: table unavailable")
)

// Conn is a driver connection backed by in-memory tables. Rows inserted inside
// a transaction only become visible on Commit.
type Conn struct {
	mu     sync.Mutex
	execs  []string
	tables map[string][]map[string]any
	tx     *stubTx

	FailPing   bool
	FailExec   bool
	FailBegin  bool
	FailCommit bool
	// FailTables makes every statement touching the named tables fail.
	FailTables map[string]bool
	// RowsErr is returned after the last row of every query.
	RowsErr error
}

// NewStubDB registers a uniquely named driver and returns a sql.DB bound to a
// fresh Conn.
func NewStubDB() (*sql.DB, *Conn) {
	conn := &Conn{tables: make(map[string][]map[string]any)}
	name := fmt.Sprintf("stubpg-%d", driverSeq.Add(1))
	sql.Register(name, &stubDriver{conn: conn})
	db, err := sql.Open(name, "stub")
	if err != nil {
		panic(err)
	}
	return db, conn
}

// Execs returns the statements executed so far.
func (c *Conn) Execs() []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]string(nil), c.execs...)
}

// Rows returns a copy of the committed rows of table.
func (c *Conn) Rows(table string) []map[string]any {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]map[string]any, 0, len(c.tables[table]))
	for _, row := range c.tables[table] {
		cp := make(map[string]any, len(row))
		for k, v := range row {
			cp[k] = v
		}
		out = append(out, cp)
	}
	return out
}

// Seed replaces the committed rows of table.
func (c *Conn) Seed(table string, rows ...map[string]any) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.tables[strings.ToLower(table)] = rows
}

type stubDriver struct {
	conn *Conn
}

func (d *stubDriver) Open(string) (driver.Conn, error) { return d.conn, nil }

// Prepare implements driver.Conn.
func (c *Conn) Prepare(string) (driver.Stmt, error) {
	return nil, errors.New("stub: prepared statements not supported")
}

// Close implements driver.Conn.
func (c *Conn) Close() error { return nil }

// Begin implements driver.Conn.
func (c *Conn) Begin() (driver.Tx, error) {
	return c.BeginTx(context.Background(), driver.TxOptions{})
}

// Ping implements driver.Pinger.
func (c *Conn) Ping(context.Context) error {
	if c.FailPing {
		return ErrPing
	}
	return nil
}

// BeginTx implements driver.ConnBeginTx.
func (c *Conn) BeginTx(context.Context, driver.TxOptions) (driver.Tx, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.FailBegin {
		return nil, ErrBegin
	}
	c.tx = &stubTx{conn: c}
	return c.tx, nil
}

// ExecContext implements driver.ExecerContext.
func (c *Conn) ExecContext(_ context.Context, query string, args []driver.NamedValue) (driver.Result, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.execs = append(c.execs, query)
	if c.FailExec {
		return nil, ErrExec
	}
	verb := strings.ToUpper(strings.Fields(query)[0])
	if verb != "INSERT" {
		return driver.RowsAffected(0), nil
	}
	table, cols, err := parseInsert(query)
	if err != nil {
		return nil, err
	}
	if c.FailTables[table] {
		return nil, fmt.Errorf("%w: %s", ErrTable, table)
	}
	if len(cols) != len(args) {
		return nil, fmt.Errorf("stub: %d columns but %d args for %s", len(cols), len(args), table)
	}
	row := make(map[string]any, len(cols))
	for i, col := range cols {
		row[col] = args[i].Value
	}
	w := write{table: table, key: cols[0], row: row, replace: strings.Contains(strings.ToUpper(query), "ON CONFLICT")}
	if c.tx != nil {
		c.tx.staged = append(c.tx.staged, w)
	} else {
		w.apply(c.tables)
	}
	return driver.RowsAffected(1), nil
}

// QueryContext implements driver.QueryerContext.
func (c *Conn) QueryContext(_ context.Context, query string, _ []driver.NamedValue) (driver.Rows, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	table, cols, err := parseSelect(query)
	if err != nil {
		return nil, err
	}
	if c.FailTables[table] {
		return nil, fmt.Errorf("%w: %s", ErrTable, table)
	}
	values := make([][]driver.Value, 0, len(c.tables[table]))
	for _, row := range c.tables[table] {
		vals := make([]driver.Value, len(cols))
		for i, col := range cols {
			vals[i] = row[col]
		}
		values = append(values, vals)
	}
	return &stubRows{cols: cols, rows: values, err: c.RowsErr}, nil
}

type write struct {
	table   string
	key     string
	row     map[string]any
	replace bool
}

func (w write) apply(tables map[string][]map[string]any) {
	if w.replace {
		for i, existing := range tables[w.table] {
			if existing[w.key] == w.row[w.key] {
				tables[w.table][i] = w.row
				return
			}
		}
	}
	tables[w.table] = append(tables[w.table], w.row)
}

type stubTx struct {
	conn   *Conn
	staged []write
}

func (t *stubTx) Commit() error {
	c := t.conn
	c.mu.Lock()
	defer c.mu.Unlock()
	c.tx = nil
	if c.FailCommit {
		return ErrCommit
	}
	for _, w := range t.staged {
		w.apply(c.tables)
	}
	return nil
}

func (t *stubTx) Rollback() error {
	t.conn.mu.Lock()
	defer t.conn.mu.Unlock()
	t.conn.tx = nil
	return nil
}

type stubRows struct {
	cols []string
	rows [][]driver.Value
	idx  int
	err  error
}

func (r *stubRows) Columns() []string { return r.cols }
func (r *stubRows) Close() error      { return nil }

func (r *stubRows) Next(dest []driver.Value) error {
	if r.idx >= len(r.rows) {
		if r.err != nil {
			return r.err
		}
		return io.EOF
	}
	copy(dest, r.rows[r.idx])
	r.idx++
	return nil
}

func parseInsert(query string) (string, []string, error) {
	upper := strings.ToUpper(query)
	into := strings.Index(upper, "INTO ")
	if into == -1 {
		return "", nil, fmt.Errorf("stub: cannot parse insert: %s", query)
	}
	rest := strings.TrimSpace(query[into+len("INTO "):])
	open := strings.Index(rest, "(")
	closing := strings.Index(rest, ")")
	if open <= 0 || closing <= open {
		return "", nil, fmt.Errorf("stub: cannot parse insert: %s", query)
	}
	cols := splitColumns(rest[open+1 : closing])
	if len(cols) == 0 {
		return "", nil, fmt.Errorf("stub: insert without columns: %s", query)
	}
	return strings.ToLower(strings.TrimSpace(rest[:open])), cols, nil
}

func parseSelect(query string) (string, []string, error) {
	lower := strings.ToLower(strings.TrimSpace(query))
	if !strings.HasPrefix(lower, "select ") {
		return "", nil, fmt.Errorf("stub: cannot parse select: %s", query)
	}
	from := strings.Index(lower, " from ")
	if from == -1 {
		return "", nil, fmt.Errorf("stub: cannot parse select: %s", query)
	}
	fields := strings.Fields(lower[from+len(" from "):])
	if len(fields) == 0 {
		return "", nil, fmt.Errorf("stub: select without table: %s", query)
	}
	return fields[0], splitColumns(lower[len("select "):from]), nil
}

func splitColumns(raw string) []string {
	parts := strings.Split(raw, ",")
	out := make([]string, 0, len(parts))
	for _, part := range parts {
		if col := strings.ToLower(strings.TrimSpace(part)); col != "" {
			out = append(out, col)
		}
	}
	return out
}
