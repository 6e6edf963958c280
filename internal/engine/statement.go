package engine

import (
	"context"
	"fmt"
	"strings"

	"github.com/lealone-go/tcpserver/internal/protocol"
)

type statement struct {
	session   *session
	sql       string
	isQuery   bool
	fetchSize int
	connID    int32
	cancelled bool
}

func (st *statement) IsQuery() bool { return st.isQuery }

func (st *statement) Parameters() []protocol.ParameterInfo {
	// A real parser would report bind parameter types; the fake engine
	// never binds parameters, so there are none to describe.
	return nil
}

func (st *statement) Columns() []protocol.ColumnInfo {
	if !st.isQuery {
		return nil
	}
	return []protocol.ColumnInfo{{Name: "col1", Type: "INTEGER"}}
}

func (st *statement) SetFetchSize(n int)       { st.fetchSize = n }
func (st *statement) SetConnectionID(id int32) { st.connID = id }
func (st *statement) Cancel()                  { st.cancelled = true }
func (st *statement) Close() error             { return nil }

// Query evaluates a query statement. "VALUES <n>" returns a single row
// containing the literal integer n; anything else (including SELECT)
// returns a single row containing 1, enough to exercise the row
// streaming wire protocol without a real planner.
func (st *statement) Query(ctx context.Context, maxRows int) (protocol.Rows, error) {
	if st.cancelled {
		return nil, fmt.Errorf("engine: statement was cancelled")
	}
	if !st.isQuery {
		return nil, fmt.Errorf("engine: statement is not a query: %q", st.sql)
	}
	n := int64(1)
	if fields := strings.Fields(st.sql); len(fields) == 2 && strings.EqualFold(fields[0], "VALUES") {
		fmt.Sscanf(fields[1], "%d", &n)
	}
	return &rows{columns: st.Columns(), values: [][]protocol.Value{{protocol.Int64Value(n)}}, maxRows: maxRows}, nil
}

// Update evaluates an update statement against the session's database.
// Any statement containing "BAD" fails, to drive batch partial-failure
// handling; "SET X=..." bumps the session's modificationId; "INSERT ..."
// records the statement text as a row of the named table (or "t")
// without bumping modificationId; anything else is a silent no-op.
// Every successful statement returns an updateCount of 1.
func (st *statement) Update(ctx context.Context) (int64, error) {
	if st.cancelled {
		return 0, fmt.Errorf("engine: statement was cancelled")
	}
	upper := strings.ToUpper(strings.TrimSpace(st.sql))
	switch {
	case strings.Contains(upper, "BAD"):
		return 0, fmt.Errorf("engine: statement failed: %q", st.sql)
	case strings.HasPrefix(upper, "SET "):
		st.session.bumpModification()
		return 1, nil
	case strings.HasPrefix(upper, "INSERT"):
		table := "t"
		if fields := strings.Fields(st.sql); len(fields) >= 3 && strings.EqualFold(fields[1], "INTO") {
			table = fields[2]
		}
		st.session.db.insertRow(table, st.sql)
		return 1, nil
	default:
		return 1, nil
	}
}

// rows is a fully materialized protocol.Rows; the fake engine never
// streams from disk, so there is nothing to do in Reset beyond
// rewinding the cursor.
type rows struct {
	columns []protocol.ColumnInfo
	values  [][]protocol.Value
	maxRows int
	idx     int
	closed  bool
}

func (r *rows) Columns() []protocol.ColumnInfo { return r.columns }

func (r *rows) RowCount() int {
	n := len(r.values)
	if r.maxRows > 0 && r.maxRows < n {
		n = r.maxRows
	}
	return n
}

func (r *rows) Next() (bool, error) {
	if r.closed {
		return false, nil
	}
	if r.idx >= len(r.values) {
		return false, nil
	}
	if r.maxRows > 0 && r.idx >= r.maxRows {
		return false, nil
	}
	r.idx++
	return true, nil
}

func (r *rows) Values() []protocol.Value {
	if r.idx == 0 || r.idx > len(r.values) {
		return nil
	}
	return r.values[r.idx-1]
}

func (r *rows) Reset() error {
	r.idx = 0
	return nil
}

func (r *rows) Close() error {
	r.closed = true
	return nil
}
