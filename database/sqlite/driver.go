package sqlite

import (
	"github.com/lockplane/changeplane/database"
)

// Dialect describes SQLite and the libSQL fork, which speaks the same SQL
type Dialect struct {
	name         string
	introspector *Introspector
}

// NewDialect creates the SQLite dialect
func NewDialect() *Dialect {
	return &Dialect{name: database.DialectSQLite, introspector: NewIntrospector()}
}

// NewLibSQLDialect creates the libSQL dialect
func NewLibSQLDialect() *Dialect {
	return &Dialect{name: database.DialectLibSQL, introspector: NewIntrospector()}
}

// Name returns the canonical dialect name
func (d *Dialect) Name() string {
	return d.name
}

// SupportsFeature checks if SQLite supports a specific feature
func (d *Dialect) SupportsFeature(feature string) bool {
	switch feature {
	case database.FeatureCascade:
		return false // SQLite doesn't support CASCADE on DROP TABLE
	case database.FeatureAlterColumnType,
		database.FeatureAlterColumnNullable,
		database.FeatureAlterColumnDefault:
		return false // Requires table recreation
	case database.FeatureAlterAddForeignKey:
		return false // Foreign keys must be defined at table creation
	case database.FeatureForeignKeys:
		return true
	case database.FeatureDropColumn:
		return true // SQLite 3.35.0+
	case database.FeatureTransactionalDDL:
		return true
	default:
		return false
	}
}

// Placeholder returns the SQLite parameter placeholder (?)
func (d *Dialect) Placeholder(int) string {
	return "?"
}

// Introspector returns the SQLite schema reader
func (d *Dialect) Introspector() database.Introspector {
	return d.introspector
}

var _ database.Dialect = (*Dialect)(nil)
