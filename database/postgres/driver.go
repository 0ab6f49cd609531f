package postgres

import (
	"fmt"

	"github.com/lockplane/changeplane/database"
)

// Dialect describes PostgreSQL
type Dialect struct {
	introspector *Introspector
}

// NewDialect creates the PostgreSQL dialect
func NewDialect() *Dialect {
	return &Dialect{introspector: NewIntrospector()}
}

// Name returns the canonical dialect name
func (d *Dialect) Name() string {
	return database.DialectPostgres
}

// SupportsFeature checks if PostgreSQL supports a specific feature
func (d *Dialect) SupportsFeature(feature string) bool {
	switch feature {
	case database.FeatureCascade,
		database.FeatureAlterColumnType,
		database.FeatureAlterColumnNullable,
		database.FeatureAlterColumnDefault,
		database.FeatureAlterAddForeignKey,
		database.FeatureForeignKeys,
		database.FeatureDropColumn,
		database.FeatureTransactionalDDL:
		return true
	default:
		return false
	}
}

// Placeholder returns the PostgreSQL parameter placeholder ($1, $2, etc.)
func (d *Dialect) Placeholder(position int) string {
	return fmt.Sprintf("$%d", position)
}

// Introspector returns the PostgreSQL schema reader
func (d *Dialect) Introspector() database.Introspector {
	return d.introspector
}

var _ database.Dialect = (*Dialect)(nil)
