package projectstore

import (
	"context"
	"log"
	"strings"

	"deepbuild/internal/types"
)

// Store is durable keyed storage for projects and their file tasks.
type Store interface {
	// CreateProject writes the project and one pending file task per brief
	// file entry in a single transaction and returns the new id.
	CreateProject(ctx context.Context, name string, brief types.Brief) (string, error)
	// GetProject joins the project with its files (in brief order).
	GetProject(ctx context.Context, id string) (types.Project, bool, error)
	// ListProjects returns all projects, newest first. Read failures yield
	// an empty list.
	ListProjects(ctx context.Context) []types.Project
	// UpdateFile is a single-row read-modify-write. ErrNotFound when the
	// project has no file at path.
	UpdateFile(ctx context.Context, projectID, path string, upd FileUpdate) error
	// UpdateProject mutates project-level state only; file rows are untouched.
	UpdateProject(ctx context.Context, id string, fn func(*ProjectState)) error
	// DeleteProject removes the project and all of its files in one transaction.
	DeleteProject(ctx context.Context, id string) error
	Close() error
}

const (
	DriverMemory   = "memory"
	DriverSQLite   = "sqlite"
	DriverPostgres = "postgres"
)

type Config struct {
	Driver string
	DSN    string
	// SnapshotPath persists the memory backend as JSON. Empty keeps it in-process.
	SnapshotPath string
	// CacheSize enables the snapshot read cache in front of SQL backends.
	CacheSize int
}

// Open picks a backend from cfg. When the SQL backend cannot be opened it
// falls back to the memory backend and logs why.
func Open(ctx context.Context, cfg Config) Store {
	driver := strings.ToLower(strings.TrimSpace(cfg.Driver))
	switch driver {
	case DriverSQLite, DriverPostgres:
		s, err := OpenSQL(ctx, driver, cfg.DSN)
		if err != nil {
			log.Printf("projectstore: %s unavailable (%v); using in-memory store", driver, err)
			return NewMemory(cfg.SnapshotPath)
		}
		if cfg.CacheSize > 0 {
			return NewCached(s, cfg.CacheSize)
		}
		return s
	case DriverMemory, "":
		return NewMemory(cfg.SnapshotPath)
	default:
		log.Printf("projectstore: unknown driver %q; using in-memory store", cfg.Driver)
		return NewMemory(cfg.SnapshotPath)
	}
}
