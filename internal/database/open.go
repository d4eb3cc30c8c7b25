package database

import (
	"context"
	"fmt"

	"retail-cli/internal/config"
)

// Open connects to the backend named in cfg.Backend.
func Open(ctx context.Context, cfg config.Store) (Store, error) {
	openers := map[string]func() (Store, error){
		config.BackendSupabase: func() (Store, error) {
			return NewSupabaseStore(cfg.Supabase.URL, cfg.Supabase.Key, cfg.Supabase.Schema)
		},
		config.BackendPostgres: func() (Store, error) {
			return NewPostgresStore(ctx, cfg.Postgres)
		},
		config.BackendMySQL: func() (Store, error) {
			return NewMySQLStore(ctx, cfg.MySQL)
		},
		config.BackendMongo: func() (Store, error) {
			return NewMongoStore(ctx, cfg.Mongo.URI, cfg.Mongo.Database)
		},
		config.BackendMemory: func() (Store, error) {
			return NewMemoryStore(), nil
		},
	}

	open, ok := openers[cfg.Backend]
	if !ok {
		return nil, fmt.Errorf("unsupported store backend: %q", cfg.Backend)
	}
	store, err := open()
	if err != nil {
		return nil, fmt.Errorf("failed to connect to %s: %w", cfg.Backend, err)
	}
	return store, nil
}

// Dialect returns the SQL dialect whose DDL applies to the backend, or "" for
// backends without one.
func Dialect(backend string) string {
	switch backend {
	case config.BackendSupabase, config.BackendPostgres:
		return DialectPostgres
	case config.BackendMySQL:
		return DialectMySQL
	}
	return ""
}
