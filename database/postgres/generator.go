package postgres

import (
	"fmt"
	"strings"

	pg_query "github.com/pganalyze/pg_query_go/v6"

	"github.com/lockplane/changeplane/database"
)

// CreateIndexSQL renders CREATE [UNIQUE] INDEX [CONCURRENTLY]
func CreateIndexSQL(tableName string, idx database.Index, concurrently bool) string {
	uniqueStr := ""
	if idx.Unique {
		uniqueStr = "UNIQUE "
	}
	concurrentlyStr := ""
	if concurrently {
		concurrentlyStr = "CONCURRENTLY "
	}
	return fmt.Sprintf("CREATE %sINDEX %s%s ON %s (%s)",
		uniqueStr, concurrentlyStr, idx.Name, tableName, strings.Join(idx.Columns, ", "))
}

// UsingCast is the USING expression for a column type change
func UsingCast(column, newType string) string {
	return fmt.Sprintf("%s::%s", column, newType)
}

// IndexColumns extracts the column list from an index definition as
// reported by pg_get_indexdef
func IndexColumns(indexDef string) ([]string, error) {
	tree, err := pg_query.Parse(indexDef)
	if err != nil {
		return nil, fmt.Errorf("failed to parse index definition: %w", err)
	}

	for _, stmt := range tree.Stmts {
		if stmt.Stmt == nil {
			continue
		}
		node, ok := stmt.Stmt.Node.(*pg_query.Node_IndexStmt)
		if !ok {
			continue
		}

		columns := []string{}
		for _, elem := range node.IndexStmt.IndexParams {
			indexElem, ok := elem.Node.(*pg_query.Node_IndexElem)
			if !ok || indexElem.IndexElem == nil {
				continue
			}
			if name := indexElemName(indexElem.IndexElem); name != "" {
				columns = append(columns, name)
			}
		}
		return columns, nil
	}

	return nil, fmt.Errorf("not an index definition: %s", indexDef)
}

func indexElemName(elem *pg_query.IndexElem) string {
	if elem.Name != "" {
		return elem.Name
	}
	// expression indexes have no column name
	return elem.Indexcolname
}
