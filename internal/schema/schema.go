package schema

import (
	"fmt"
	"time"
)

// Schema is the complete discovered catalog of one database.
type Schema struct {
	Host         string    `yaml:"host"`
	Database     string    `yaml:"database"`
	SchemaName   string    `yaml:"schema_name,omitempty"`
	DiscoveredAt time.Time `yaml:"discovered_at,omitempty"`
	Tables       []Table   `yaml:"tables"`
}

// Table represents a database table.
type Table struct {
	Name        string       `yaml:"name"`
	Columns     []Column     `yaml:"columns"`
	PrimaryKey  *PrimaryKey  `yaml:"primary_key,omitempty"`
	ForeignKeys []ForeignKey `yaml:"foreign_keys,omitempty"`
	Indexes     []Index      `yaml:"indexes,omitempty"`
	RowEstimate int64        `yaml:"row_estimate"`
	SizeBytes   int64        `yaml:"size_bytes"`
}

// Column represents a table column.
type Column struct {
	Name         string  `yaml:"name"`
	DataType     string  `yaml:"data_type"`
	Nullable     bool    `yaml:"nullable"`
	DefaultValue *string `yaml:"default_value,omitempty"`
	IsSequence   bool    `yaml:"is_sequence,omitempty"`
}

// PrimaryKey represents a table's primary key.
type PrimaryKey struct {
	Name    string   `yaml:"name"`
	Columns []string `yaml:"columns"`
}

// ForeignKey represents a foreign key relationship.
type ForeignKey struct {
	Name              string   `yaml:"name"`
	Columns           []string `yaml:"columns"`
	ReferencedTable   string   `yaml:"referenced_table"`
	ReferencedColumns []string `yaml:"referenced_columns"`
}

// Index represents a database index.
type Index struct {
	Name    string   `yaml:"name"`
	Columns []string `yaml:"columns"`
	Unique  bool     `yaml:"unique"`
	Type    string   `yaml:"type,omitempty"` // btree, hash, gin, gist, etc.
}

// integerTypes are the PostgreSQL type names eligible for key conversion.
var integerTypes = map[string]bool{
	"smallint": true,
	"integer":  true,
	"bigint":   true,
	"int2":     true,
	"int4":     true,
	"int8":     true,
}

// IsInteger reports whether the column holds an integer type.
func (c *Column) IsInteger() bool {
	return integerTypes[c.DataType]
}

// IsUUID reports whether the column holds a uuid type.
func (c *Column) IsUUID() bool {
	return c.DataType == "uuid"
}

// Table returns the table with the given name, or nil.
func (s *Schema) Table(name string) *Table {
	for i := range s.Tables {
		if s.Tables[i].Name == name {
			return &s.Tables[i]
		}
	}
	return nil
}

// TableNames returns the names of all tables in discovery order.
func (s *Schema) TableNames() []string {
	names := make([]string, len(s.Tables))
	for i, t := range s.Tables {
		names[i] = t.Name
	}
	return names
}

// Column returns the column with the given name, or nil.
func (t *Table) Column(name string) *Column {
	for i := range t.Columns {
		if t.Columns[i].Name == name {
			return &t.Columns[i]
		}
	}
	return nil
}

// ColumnNames returns the column names in catalog order.
func (t *Table) ColumnNames() []string {
	names := make([]string, len(t.Columns))
	for i, c := range t.Columns {
		names[i] = c.Name
	}
	return names
}

// PKColumn returns the single primary key column name. Ordered batch reads
// and key conversion both require exactly one key column, so absent and
// composite keys are errors.
func (t *Table) PKColumn() (string, error) {
	if t.PrimaryKey == nil || len(t.PrimaryKey.Columns) == 0 {
		return "", fmt.Errorf("table %s has no primary key", t.Name)
	}
	if n := len(t.PrimaryKey.Columns); n > 1 {
		return "", fmt.Errorf("table %s has a composite primary key (%d columns)", t.Name, n)
	}
	return t.PrimaryKey.Columns[0], nil
}

// SerialPK returns the table's auto-increment integer primary key column.
// It fails when the key is absent, composite, or not an integer type.
func (t *Table) SerialPK() (*Column, error) {
	name, err := t.PKColumn()
	if err != nil {
		return nil, err
	}
	col := t.Column(name)
	if col == nil {
		return nil, fmt.Errorf("table %s: primary key column %s not in column list", t.Name, name)
	}
	if !col.IsInteger() {
		return nil, fmt.Errorf("table %s: primary key column %s is %s, not an integer type", t.Name, name, col.DataType)
	}
	return col, nil
}

// HasUUIDPK reports whether the table already keys on a single uuid column.
func (t *Table) HasUUIDPK() bool {
	name, err := t.PKColumn()
	if err != nil {
		return false
	}
	col := t.Column(name)
	return col != nil && col.IsUUID()
}
