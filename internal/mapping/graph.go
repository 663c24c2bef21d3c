package mapping

import (
	"sort"
	"strings"

	"github.com/pgrekey/pgrekey/internal/schema"
)

// FKEdge represents a foreign key relationship in the graph.
type FKEdge struct {
	ChildTable    string
	ChildColumns  []string
	ParentTable   string
	ParentColumns []string
	FKName        string
}

// FKGraph represents the foreign key relationships between tables.
type FKGraph struct {
	tables map[string]*schema.Table
	edges  []FKEdge
	// adjacency: parent -> children
	children map[string][]FKEdge
	// adjacency: child -> parents
	parents map[string][]FKEdge
}

// NewFKGraph builds a FK relationship graph from a set of tables.
// Foreign keys referencing tables outside the set are ignored; they cannot
// affect ordering among the tables being migrated.
func NewFKGraph(tables []schema.Table) *FKGraph {
	g := &FKGraph{
		tables:   make(map[string]*schema.Table, len(tables)),
		children: make(map[string][]FKEdge),
		parents:  make(map[string][]FKEdge),
	}

	tableSet := make(map[string]bool, len(tables))
	for i := range tables {
		t := &tables[i]
		g.tables[t.Name] = t
		tableSet[t.Name] = true
	}

	for i := range tables {
		t := &tables[i]
		for _, fk := range t.ForeignKeys {
			if !tableSet[fk.ReferencedTable] {
				continue
			}
			edge := FKEdge{
				ChildTable:    t.Name,
				ChildColumns:  fk.Columns,
				ParentTable:   fk.ReferencedTable,
				ParentColumns: fk.ReferencedColumns,
				FKName:        fk.Name,
			}
			g.edges = append(g.edges, edge)
			g.children[fk.ReferencedTable] = append(g.children[fk.ReferencedTable], edge)
			g.parents[t.Name] = append(g.parents[t.Name], edge)
		}
	}

	return g
}

// Edges returns all FK edges in the graph.
func (g *FKGraph) Edges() []FKEdge {
	return g.edges
}

// Parents returns the FK edges leaving the given table.
func (g *FKGraph) Parents(table string) []FKEdge {
	return g.parents[table]
}

// SelfReferences returns all FK edges where a table references itself.
func (g *FKGraph) SelfReferences() []FKEdge {
	var result []FKEdge
	for _, e := range g.edges {
		if e.ChildTable == e.ParentTable {
			result = append(result, e)
		}
	}
	return result
}

// TableOrder returns every table of the graph in dependency order: each
// table appears after all tables it references. Kahn's algorithm with
// lexicographic tie-breaking, so the order is stable for a given schema.
// Self-references do not constrain ordering. When foreign keys form a cycle
// the order is impossible and a CycleError names the tables left over.
func (g *FKGraph) TableOrder() ([]string, error) {
	// in-degree of a table = number of distinct tables it references
	distinctParents := make(map[string]map[string]bool)
	for _, e := range g.edges {
		if e.ChildTable == e.ParentTable {
			continue
		}
		if distinctParents[e.ChildTable] == nil {
			distinctParents[e.ChildTable] = make(map[string]bool)
		}
		distinctParents[e.ChildTable][e.ParentTable] = true
	}

	inDegree := make(map[string]int, len(g.tables))
	dependents := make(map[string][]string)
	for name := range g.tables {
		inDegree[name] = len(distinctParents[name])
	}
	for child, ps := range distinctParents {
		for parent := range ps {
			dependents[parent] = append(dependents[parent], child)
		}
	}

	var queue []string
	for name, deg := range inDegree {
		if deg == 0 {
			queue = append(queue, name)
		}
	}
	sort.Strings(queue)

	order := make([]string, 0, len(g.tables))
	emitted := make(map[string]bool, len(g.tables))
	for len(queue) > 0 {
		node := queue[0]
		queue = queue[1:]
		order = append(order, node)
		emitted[node] = true

		var ready []string
		for _, child := range dependents[node] {
			inDegree[child]--
			if inDegree[child] == 0 {
				ready = append(ready, child)
			}
		}
		if len(ready) > 0 {
			queue = append(queue, ready...)
			sort.Strings(queue)
		}
	}

	if len(order) != len(g.tables) {
		var remaining []string
		for name := range g.tables {
			if !emitted[name] {
				remaining = append(remaining, name)
			}
		}
		sort.Strings(remaining)
		return nil, &CycleError{Remaining: remaining}
	}

	return order, nil
}

// DetectCycles finds all cycles in the FK graph using DFS.
// Returns each cycle as a list of table names forming the cycle.
func (g *FKGraph) DetectCycles() [][]string {
	var cycles [][]string
	visited := make(map[string]bool)
	inStack := make(map[string]bool)

	// Adjacency for cycle detection: child -> parent (FK direction)
	adj := make(map[string][]string)
	for _, e := range g.edges {
		if e.ChildTable == e.ParentTable {
			continue // self-references copy in one pass
		}
		adj[e.ChildTable] = append(adj[e.ChildTable], e.ParentTable)
	}

	var path []string
	var dfs func(node string)
	dfs = func(node string) {
		visited[node] = true
		inStack[node] = true
		path = append(path, node)

		for _, neighbor := range adj[node] {
			if !visited[neighbor] {
				dfs(neighbor)
			} else if inStack[neighbor] {
				start := -1
				for i, n := range path {
					if n == neighbor {
						start = i
						break
					}
				}
				if start >= 0 {
					cycle := make([]string, len(path)-start)
					copy(cycle, path[start:])
					cycles = append(cycles, cycle)
				}
			}
		}

		path = path[:len(path)-1]
		inStack[node] = false
	}

	names := make([]string, 0, len(g.tables))
	for name := range g.tables {
		names = append(names, name)
	}
	sort.Strings(names)
	for _, name := range names {
		if !visited[name] {
			dfs(name)
		}
	}

	return cycles
}

// CycleError indicates that foreign keys form a cycle and no valid
// migration order exists.
type CycleError struct {
	Remaining []string
}

func (e *CycleError) Error() string {
	return "foreign key cycle among tables: " + strings.Join(e.Remaining, ", ")
}
