package change

import (
	"encoding/json"
	"fmt"
	"sort"
)

var decoders = map[StatementType]func([]byte) (Statement, error){
	CreateTableType:    decodeAs[CreateTable],
	DropTableType:      decodeAs[DropTable],
	AddColumnType:      decodeAs[AddColumn],
	DropColumnType:     decodeAs[DropColumn],
	ModifyColumnType:   decodeAs[ModifyColumn],
	CreateIndexType:    decodeAs[CreateIndex],
	DropIndexType:      decodeAs[DropIndex],
	AddForeignKeyType:  decodeAs[AddForeignKey],
	DropForeignKeyType: decodeAs[DropForeignKey],
	RawSQLType:         decodeAs[RawSQL],
	TagDatabaseType:    decodeAs[TagDatabase],
}

func decodeAs[T Statement](raw []byte) (Statement, error) {
	var s T
	if err := json.Unmarshal(raw, &s); err != nil {
		return nil, err
	}
	return s, nil
}

// Decode builds the statement registered under t from its JSON body
func Decode(t StatementType, raw []byte) (Statement, error) {
	dec, ok := decoders[t]
	if !ok {
		return nil, fmt.Errorf("unknown statement type %q", t)
	}
	stmt, err := dec(raw)
	if err != nil {
		return nil, fmt.Errorf("failed to decode %s: %w", t, err)
	}
	return stmt, nil
}

// KnownTypes returns every decodable statement type, sorted
func KnownTypes() []StatementType {
	types := make([]StatementType, 0, len(decoders))
	for t := range decoders {
		types = append(types, t)
	}
	sort.Slice(types, func(i, j int) bool { return types[i] < types[j] })
	return types
}
