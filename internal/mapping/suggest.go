package mapping

import (
	"strings"

	"github.com/pgrekey/pgrekey/internal/schema"
)

// Suggest proposes column maps for tables whose columns were renamed
// between source and target. For every table present on both sides it
// pairs each target column that has no same-named source column with a
// leftover source column, preferring a normalized name match (case and
// underscores ignored) and falling back to a unique same-type leftover.
// Ambiguous columns are left unmapped; the result is a starting point for
// review, not a verdict.
func Suggest(src, tgt *schema.Schema) TableMaps {
	out := TableMaps{}

	for i := range tgt.Tables {
		tt := &tgt.Tables[i]
		st := src.Table(tt.Name)
		if st == nil {
			continue
		}

		srcByName := make(map[string]*schema.Column, len(st.Columns))
		for j := range st.Columns {
			srcByName[st.Columns[j].Name] = &st.Columns[j]
		}
		tgtNames := make(map[string]bool, len(tt.Columns))
		for _, c := range tt.Columns {
			tgtNames[c.Name] = true
		}

		// Source columns with no same-named target column.
		var leftovers []*schema.Column
		for j := range st.Columns {
			if !tgtNames[st.Columns[j].Name] {
				leftovers = append(leftovers, &st.Columns[j])
			}
		}
		if len(leftovers) == 0 {
			continue
		}

		claimed := make(map[string]bool)
		for _, tc := range tt.Columns {
			if _, ok := srcByName[tc.Name]; ok {
				continue
			}
			if match := pickSource(tc, leftovers, claimed); match != "" {
				out.Set(tt.Name, tc.Name, match)
				claimed[match] = true
			}
		}
	}

	return out
}

func pickSource(tc schema.Column, leftovers []*schema.Column, claimed map[string]bool) string {
	want := normalizeName(tc.Name)
	for _, sc := range leftovers {
		if claimed[sc.Name] {
			continue
		}
		if normalizeName(sc.Name) == want {
			return sc.Name
		}
	}

	// Fall back to a same-type leftover, but only when it is unambiguous.
	var candidate string
	for _, sc := range leftovers {
		if claimed[sc.Name] || sc.DataType != tc.DataType {
			continue
		}
		if candidate != "" {
			return ""
		}
		candidate = sc.Name
	}
	return candidate
}

func normalizeName(s string) string {
	return strings.ReplaceAll(strings.ToLower(s), "_", "")
}
