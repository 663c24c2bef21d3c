package source

import (
	"context"
	"fmt"
	"sort"
)

// PageRequest records one FetchPage call for assertions.
type PageRequest struct {
	Table string
	After any
	Limit int
}

// MockReader is a test double for the Reader interface. Table data set in
// Rows is paged the way PostgreSQL would: sorted by the key column,
// filtered by the after key, capped at the limit.
type MockReader struct {
	ConnectErr error

	RowCounts   map[string]int64
	RowCountErr error

	Rows     map[string][]map[string]any
	FetchErr error
	ScanErr  error

	QueryResult []map[string]any
	QueryErr    error

	Connected    bool
	Closed       bool
	PageRequests []PageRequest
	Queries      []string
}

func (m *MockReader) Connect(_ context.Context) error {
	if m.ConnectErr != nil {
		return m.ConnectErr
	}
	m.Connected = true
	return nil
}

func (m *MockReader) RowCount(_ context.Context, table string) (int64, error) {
	if m.RowCountErr != nil {
		return 0, m.RowCountErr
	}
	if m.RowCounts != nil {
		if c, ok := m.RowCounts[table]; ok {
			return c, nil
		}
	}
	if rows, ok := m.Rows[table]; ok {
		return int64(len(rows)), nil
	}
	return 0, fmt.Errorf("no rows configured for table %s", table)
}

func (m *MockReader) FetchPage(_ context.Context, table, pkCol string, after any, limit int) ([]map[string]any, error) {
	m.PageRequests = append(m.PageRequests, PageRequest{Table: table, After: after, Limit: limit})
	if m.FetchErr != nil {
		return nil, m.FetchErr
	}

	rows := append([]map[string]any(nil), m.Rows[table]...)
	sort.SliceStable(rows, func(i, j int) bool {
		return lessAny(rows[i][pkCol], rows[j][pkCol])
	})

	var page []map[string]any
	for _, row := range rows {
		if after != nil && !lessAny(after, row[pkCol]) {
			continue
		}
		page = append(page, row)
		if len(page) == limit {
			break
		}
	}
	return page, nil
}

func (m *MockReader) ScanTable(_ context.Context, table string) ([]map[string]any, error) {
	if m.ScanErr != nil {
		return nil, m.ScanErr
	}
	return m.Rows[table], nil
}

func (m *MockReader) QueryRows(_ context.Context, sql string, _ ...any) ([]map[string]any, error) {
	m.Queries = append(m.Queries, sql)
	if m.QueryErr != nil {
		return nil, m.QueryErr
	}
	return m.QueryResult, nil
}

func (m *MockReader) Close() error {
	m.Closed = true
	return nil
}

func lessAny(a, b any) bool {
	switch av := a.(type) {
	case int64:
		return av < toInt64(b)
	case int32:
		return int64(av) < toInt64(b)
	case int16:
		return int64(av) < toInt64(b)
	case int:
		return int64(av) < toInt64(b)
	case string:
		bv, _ := b.(string)
		return av < bv
	case float64:
		bv, _ := b.(float64)
		return av < bv
	default:
		return false
	}
}

func toInt64(v any) int64 {
	switch k := v.(type) {
	case int64:
		return k
	case int32:
		return int64(k)
	case int16:
		return int64(k)
	case int:
		return int64(k)
	default:
		return 0
	}
}
