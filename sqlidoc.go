// Package sqlidoc is a typed, schema-validated JSON document store layered
// over a SQLite-compatible relational engine (spec.md §1 Overview). Most
// callers only need this package: Open a Database, bind Collections to
// shapes, and query them with the fluent builder.
//
// Internals (schema generation, SQL translation, the driver base, the
// connection pool) live under internal/ and are not part of the public
// surface; this file re-exports just enough to wire a Database together.
package sqlidoc

import (
	"context"

	"github.com/sqlidoc/sqlidoc/internal/catalog"
	"github.com/sqlidoc/sqlidoc/internal/codec"
	"github.com/sqlidoc/sqlidoc/internal/collection"
	"github.com/sqlidoc/sqlidoc/internal/configstore"
	"github.com/sqlidoc/sqlidoc/internal/dberrors"
	"github.com/sqlidoc/sqlidoc/internal/driver"
	"github.com/sqlidoc/sqlidoc/internal/driver/remotedriver"
	"github.com/sqlidoc/sqlidoc/internal/driver/sqlitedriver"
	"github.com/sqlidoc/sqlidoc/internal/plugin"
	"github.com/sqlidoc/sqlidoc/internal/pragma"
	"github.com/sqlidoc/sqlidoc/internal/querybuilder"
	"github.com/sqlidoc/sqlidoc/internal/shape"
)

// Re-exported so callers building a Shape never need to import internal/shape
// directly.
type (
	Shape = shape.Shape
	Field = shape.Field
)

var (
	String   = shape.String
	Number   = shape.Number
	Boolean  = shape.Boolean
	Date     = shape.Date
	UUID     = shape.UUID
	Email    = shape.Email
	Optional = shape.Optional
	Nested   = shape.Nested
	Array    = shape.Array
	AnyShape = shape.Any
)

type (
	FieldSpec = catalog.FieldSpec
	SQLType   = catalog.SQLType
)

const (
	TypeText    = catalog.TypeText
	TypeInteger = catalog.TypeInteger
	TypeReal    = catalog.TypeReal
	TypeBlob    = catalog.TypeBlob
)

type (
	QueryBuilder = querybuilder.QueryBuilder
	FieldBuilder = querybuilder.FieldBuilder
	AtomicOps    = collection.AtomicOps
	Plugin       = plugin.Plugin
)

// Error is the typed error every public operation may return; use
// errors.As to inspect Kind, or the Is* helpers below.
type Error = dberrors.Error

func IsNotFound(err error) bool         { return dberrors.IsKind(err, dberrors.KindNotFound) }
func IsVersionMismatch(err error) bool  { return dberrors.IsKind(err, dberrors.KindVersionMismatch) }
func IsUniqueConstraint(err error) bool { return dberrors.IsKind(err, dberrors.KindUniqueConstraint) }
func IsValidation(err error) bool       { return dberrors.IsKind(err, dberrors.KindValidation) }

// Database is the top-level handle: one driver connection (or pool) bound
// to a set of named collections.
type Database struct {
	drv     driver.Driver
	cache   *codec.ParseCache
	plugins *plugin.Manager
	config  *configstore.Store
}

// LocalConfig opens a Database against a local SQLite file (spec.md §4.G,
// local backend).
type LocalConfig struct {
	Path             string
	Pragmas          pragma.Settings
	ReconnectEnabled bool
	PluginManager    *plugin.Manager
}

// OpenLocal opens the local, sync-capable backend.
func OpenLocal(ctx context.Context, cfg LocalConfig) (*Database, error) {
	drv, err := sqlitedriver.Open(ctx, sqlitedriver.Config{
		Path:             cfg.Path,
		Pragmas:          cfg.Pragmas,
		ReconnectEnabled: cfg.ReconnectEnabled,
	})
	if err != nil {
		return nil, err
	}
	store, err := configstore.Open(ctx, drv)
	if err != nil {
		return nil, err
	}
	return &Database{drv: drv, cache: codec.NewParseCache(), plugins: cfg.PluginManager, config: store}, nil
}

// RemoteConfig opens a Database against a pooled remote backend (spec.md
// §4.G/§4.H, remote backend).
type RemoteConfig struct {
	DSN           string
	PluginManager *plugin.Manager
}

// OpenRemote opens the pooled, async-only remote backend.
func OpenRemote(ctx context.Context, cfg RemoteConfig) (*Database, error) {
	drv, err := remotedriver.Open(ctx, remotedriver.Config{DSN: cfg.DSN})
	if err != nil {
		return nil, err
	}
	store, err := configstore.Open(ctx, drv)
	if err != nil {
		return nil, err
	}
	return &Database{drv: drv, cache: codec.NewParseCache(), plugins: cfg.PluginManager, config: store}, nil
}

// CollectionConfig declares one typed collection (spec.md §3 Collection).
type CollectionConfig struct {
	Name              string
	Shape             Shape
	ConstrainedFields map[string]FieldSpec
}

// Collection binds a table to the caller's shape, creating it if absent.
func (db *Database) Collection(ctx context.Context, cfg CollectionConfig) (*collection.Collection, error) {
	c, err := collection.Open(ctx, collection.Config{
		Name:              cfg.Name,
		Shape:             cfg.Shape,
		ConstrainedFields: cfg.ConstrainedFields,
		Driver:            db.drv,
		ParseCache:        db.cache,
		Plugins:           db.plugins,
	})
	if err != nil {
		return nil, err
	}
	if db.config != nil {
		_ = db.config.SetMetadata(ctx, "collection.initialized."+cfg.Name, "true")
	}
	return c, nil
}

// SetConfig persists a caller-facing configuration value alongside this
// database's collections (spec supplemented feature: config/metadata
// tables).
func (db *Database) SetConfig(ctx context.Context, key, value string) error {
	return db.config.SetConfig(ctx, key, value)
}

// GetConfig returns key's value, or "" if unset.
func (db *Database) GetConfig(ctx context.Context, key string) (string, error) {
	return db.config.GetConfig(ctx, key)
}

// DeleteConfig removes key from the config table.
func (db *Database) DeleteConfig(ctx context.Context, key string) error {
	return db.config.DeleteConfig(ctx, key)
}

// GetAllConfig returns every config key-value pair.
func (db *Database) GetAllConfig(ctx context.Context) (map[string]string, error) {
	return db.config.GetAllConfig(ctx)
}

// Exec runs a raw statement against the underlying driver.
func (db *Database) Exec(ctx context.Context, sql string, args ...any) error {
	_, err := db.drv.Exec(ctx, sql, args...)
	return err
}

// ExecSync is Exec's sync sibling; only valid on a SupportsSync backend.
func (db *Database) ExecSync(sql string, args ...any) error {
	_, err := db.drv.ExecSync(sql, args...)
	return err
}

// Transaction runs fn inside a database transaction (spec.md §4.G); a call
// nested inside an already-running transaction uses a savepoint instead of
// a new BEGIN.
func (db *Database) Transaction(ctx context.Context, fn func(ctx context.Context) error) error {
	return db.drv.Transaction(ctx, fn)
}

// Close releases the driver's connection(s) and finalizes its statement
// cache.
func (db *Database) Close() error {
	return db.drv.Close()
}

// SupportsSync reports whether this Database's backend allows the Sync
// method variants (true for OpenLocal, false for OpenRemote).
func (db *Database) SupportsSync() bool {
	return db.drv.SupportsSync()
}
