package change

// Inverse returns the statement that undoes stmt, for statements whose
// rollback can be derived without knowing prior schema state.
func Inverse(stmt Statement) (Statement, bool) {
	switch s := stmt.(type) {
	case CreateTable:
		return DropTable{TableName: s.Table.Name}, true
	case AddColumn:
		return DropColumn{TableName: s.TableName, ColumnName: s.Column.Name}, true
	case CreateIndex:
		return DropIndex{TableName: s.TableName, IndexName: s.Index.Name}, true
	case AddForeignKey:
		return DropForeignKey{TableName: s.TableName, ConstraintName: s.ForeignKey.Name}, true
	case ModifyColumn:
		return ModifyColumn{TableName: s.TableName, Old: s.New, New: s.Old}, true
	case TagDatabase:
		return s, true
	default:
		return nil, false
	}
}

// InverseAll inverts stmts in reverse order. ok is false if any statement
// has no automatic inverse; missing holds their descriptions.
func InverseAll(stmts []Statement) (inverted []Statement, missing []string) {
	for i := len(stmts) - 1; i >= 0; i-- {
		inv, ok := Inverse(stmts[i])
		if !ok {
			missing = append(missing, stmts[i].Describe())
			continue
		}
		if inv.Type() == TagDatabaseType {
			continue
		}
		inverted = append(inverted, inv)
	}
	return inverted, missing
}
