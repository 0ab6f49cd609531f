package change

import (
	"fmt"
	"strings"
)

// ActionKind distinguishes how an action is delivered to the database
type ActionKind string

const (
	// ActionExecute is raw DDL or other text run for its side effect
	ActionExecute ActionKind = "execute"
	// ActionQuery returns rows
	ActionQuery ActionKind = "query"
	// ActionUpdate is DML whose affected row count matters
	ActionUpdate ActionKind = "update"
)

// ObjectType names the kind of schema object an action touches
type ObjectType string

const (
	ObjectTable      ObjectType = "table"
	ObjectColumn     ObjectType = "column"
	ObjectIndex      ObjectType = "index"
	ObjectForeignKey ObjectType = "foreign_key"
	ObjectUnknown    ObjectType = "unknown"
)

// ObjectRef identifies a schema object affected by an action
type ObjectRef struct {
	Type  ObjectType `json:"type"`
	Table string     `json:"table,omitempty"`
	Name  string     `json:"name"`
}

func (o ObjectRef) String() string {
	if o.Table != "" && o.Table != o.Name {
		return fmt.Sprintf("%s %s.%s", o.Type, o.Table, o.Name)
	}
	return fmt.Sprintf("%s %s", o.Type, o.Name)
}

// Action is a dialect-ready unit of work produced from a Statement
type Action struct {
	Kind        ActionKind  `json:"kind"`
	SQL         string      `json:"sql"`
	Args        []any       `json:"args,omitempty"`
	Description string      `json:"description,omitempty"`
	Affects     []ObjectRef `json:"affects,omitempty"`

	// NonTransactional actions cannot run inside a transaction block
	NonTransactional bool `json:"non_transactional,omitempty"`
}

// Exec builds an ActionExecute
func Exec(sql, description string, affects ...ObjectRef) Action {
	return Action{Kind: ActionExecute, SQL: sql, Description: description, Affects: affects}
}

// Table is shorthand for an ObjectRef to a table
func Table(name string) ObjectRef {
	return ObjectRef{Type: ObjectTable, Name: name}
}

// Column is shorthand for an ObjectRef to a column
func Column(table, name string) ObjectRef {
	return ObjectRef{Type: ObjectColumn, Table: table, Name: name}
}

// Index is shorthand for an ObjectRef to an index
func Index(table, name string) ObjectRef {
	return ObjectRef{Type: ObjectIndex, Table: table, Name: name}
}

// ForeignKey is shorthand for an ObjectRef to a foreign key
func ForeignKey(table, name string) ObjectRef {
	return ObjectRef{Type: ObjectForeignKey, Table: table, Name: name}
}

// String renders the action the way update-sql prints it
func (a Action) String() string {
	sql := strings.TrimSpace(a.SQL)
	if !strings.HasSuffix(sql, ";") {
		sql += ";"
	}
	if a.Description == "" {
		return sql
	}
	return fmt.Sprintf("-- %s\n%s", a.Description, sql)
}
