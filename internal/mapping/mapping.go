package mapping

import (
	"fmt"
	"sort"
	"strings"
)

// TableMaps holds per-table column maps: for each source table, target
// column name -> source column name. A target column absent from its map
// copies from the identically named source column.
type TableMaps map[string]map[string]string

// SourceColumn resolves the source column feeding the given target column.
func (m TableMaps) SourceColumn(table, targetCol string) string {
	if cols, ok := m[table]; ok {
		if src, ok := cols[targetCol]; ok {
			return src
		}
	}
	return targetCol
}

// Set records a single target -> source column mapping for a table.
func (m TableMaps) Set(table, targetCol, sourceCol string) {
	if m[table] == nil {
		m[table] = make(map[string]string)
	}
	m[table][targetCol] = sourceCol
}

// Tables returns the mapped table names, sorted.
func (m TableMaps) Tables() []string {
	names := make([]string, 0, len(m))
	for name := range m {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Validate rejects blank table or column names.
func (m TableMaps) Validate() error {
	for table, cols := range m {
		if strings.TrimSpace(table) == "" {
			return fmt.Errorf("column map has a blank table name")
		}
		for tgt, src := range cols {
			if strings.TrimSpace(tgt) == "" {
				return fmt.Errorf("table %s: blank target column name", table)
			}
			if strings.TrimSpace(src) == "" {
				return fmt.Errorf("table %s: column %s maps to a blank source column", table, tgt)
			}
		}
	}
	return nil
}

// Clone returns a deep copy, so callers can modify without aliasing.
func (m TableMaps) Clone() TableMaps {
	out := make(TableMaps, len(m))
	for table, cols := range m {
		cc := make(map[string]string, len(cols))
		for k, v := range cols {
			cc[k] = v
		}
		out[table] = cc
	}
	return out
}
