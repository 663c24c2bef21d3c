package validation

import (
	"fmt"

	"github.com/pgrekey/pgrekey/internal/schema"
)

// CompareConstraints reports the structural differences between a source
// table and its migrated counterpart. It checks primary key column
// count, the NOT NULL column sets, and that every table the source
// references through a foreign key is still referenced by the target.
// An empty slice means the tables are constraint-equivalent.
func CompareConstraints(src, tgt schema.Table) []string {
	var issues []string

	srcPK, tgtPK := pkColumnCount(src), pkColumnCount(tgt)
	if srcPK != tgtPK {
		issues = append(issues, fmt.Sprintf(
			"primary key has %d columns on the source and %d on the target", srcPK, tgtPK))
	}

	srcNN := notNullSet(src)
	tgtNN := notNullSet(tgt)
	for _, c := range src.Columns {
		if srcNN[c.Name] && !tgtNN[c.Name] {
			issues = append(issues, fmt.Sprintf(
				"column %s is NOT NULL on the source but not on the target", c.Name))
		}
	}
	for _, c := range tgt.Columns {
		if tgtNN[c.Name] && !srcNN[c.Name] {
			issues = append(issues, fmt.Sprintf(
				"column %s is NOT NULL on the target but not on the source", c.Name))
		}
	}

	tgtRefs := make(map[string]bool, len(tgt.ForeignKeys))
	for _, fk := range tgt.ForeignKeys {
		tgtRefs[fk.ReferencedTable] = true
	}
	for _, fk := range src.ForeignKeys {
		if !tgtRefs[fk.ReferencedTable] {
			issues = append(issues, fmt.Sprintf(
				"source foreign key %s references %s but no target foreign key does",
				fk.Name, fk.ReferencedTable))
		}
	}

	return issues
}

func pkColumnCount(t schema.Table) int {
	if t.PrimaryKey == nil {
		return 0
	}
	return len(t.PrimaryKey.Columns)
}

func notNullSet(t schema.Table) map[string]bool {
	set := make(map[string]bool, len(t.Columns))
	for _, c := range t.Columns {
		if !c.Nullable {
			set[c.Name] = true
		}
	}
	return set
}
