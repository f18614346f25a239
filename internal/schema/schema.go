package schema

import (
	"fmt"
	"sort"
	"strings"
)

type ColumnType string

const (
	TypeString    ColumnType = "string"
	TypeInteger   ColumnType = "integer"
	TypeDecimal   ColumnType = "decimal"
	TypeBoolean   ColumnType = "boolean"
	TypeTimestamp ColumnType = "timestamp"
	TypeDate      ColumnType = "date"
)

type Column struct {
	Name         string     `json:"name"`
	Type         ColumnType `json:"type"`
	Aggregatable bool       `json:"aggregatable"`
	Description  string     `json:"description,omitempty"`
}

// Catalog is the read-only view of the queryable subject that grounds both
// translation phases.
type Catalog interface {
	Subject() string
	ColumnNames() []string
	AggregatableColumns() []string
	Describe() string
}

type StaticCatalog struct {
	subject string
	columns []Column
	byName  map[string]Column
}

func NewStaticCatalog(subject string, columns []Column) (*StaticCatalog, error) {
	subject = strings.TrimSpace(subject)
	if subject == "" {
		return nil, fmt.Errorf("subject is required")
	}
	if len(columns) == 0 {
		return nil, fmt.Errorf("at least one column is required")
	}
	byName := make(map[string]Column, len(columns))
	kept := make([]Column, 0, len(columns))
	for _, column := range columns {
		name := strings.TrimSpace(column.Name)
		if name == "" {
			return nil, fmt.Errorf("column name is required")
		}
		if _, ok := byName[strings.ToLower(name)]; ok {
			return nil, fmt.Errorf("duplicate column %q", name)
		}
		column.Name = name
		byName[strings.ToLower(name)] = column
		kept = append(kept, column)
	}
	return &StaticCatalog{subject: subject, columns: kept, byName: byName}, nil
}

func (c *StaticCatalog) Subject() string {
	return c.subject
}

func (c *StaticCatalog) Columns() []Column {
	out := make([]Column, len(c.columns))
	copy(out, c.columns)
	return out
}

func (c *StaticCatalog) ColumnNames() []string {
	names := make([]string, 0, len(c.columns))
	for _, column := range c.columns {
		names = append(names, column.Name)
	}
	return names
}

func (c *StaticCatalog) AggregatableColumns() []string {
	names := make([]string, 0, len(c.columns))
	for _, column := range c.columns {
		if column.Aggregatable {
			names = append(names, column.Name)
		}
	}
	sort.Strings(names)
	return names
}

// Lookup matches column names case-insensitively.
func (c *StaticCatalog) Lookup(name string) (Column, bool) {
	column, ok := c.byName[strings.ToLower(strings.TrimSpace(name))]
	return column, ok
}

func (c *StaticCatalog) Describe() string {
	var b strings.Builder
	fmt.Fprintf(&b, "Table %s\n", c.subject)
	for _, column := range c.columns {
		fmt.Fprintf(&b, "- %s (%s", column.Name, column.Type)
		if column.Aggregatable {
			b.WriteString(", aggregatable")
		}
		b.WriteString(")")
		if column.Description != "" {
			fmt.Fprintf(&b, ": %s", column.Description)
		}
		b.WriteString("\n")
	}
	return b.String()
}

func IsAggregatableType(columnType ColumnType) bool {
	switch columnType {
	case TypeInteger, TypeDecimal:
		return true
	default:
		return false
	}
}
