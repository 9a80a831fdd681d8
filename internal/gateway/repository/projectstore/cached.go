package projectstore

import (
	"context"
	"strings"
	"sync"

	lru "github.com/hashicorp/golang-lru/v2"

	"deepbuild/internal/types"
)

// Cached keeps recent project snapshots in an LRU in front of another Store.
// Every write through it evicts the affected project before returning, so a
// following GetProject always observes the write. Ids are trimmed the same
// way the backends trim them.
type Cached struct {
	origin Store
	byID   *lru.Cache[string, types.Project]

	// A read only fills the cache when no write to its project and no
	// delete started or finished while it was reading. seq orders writes,
	// gen holds the last write per live project.
	mu      sync.Mutex
	seq     uint64
	gen     map[string]uint64
	deleted uint64
}

func NewCached(origin Store, size int) *Cached {
	if size <= 0 {
		size = 1024
	}
	c, err := lru.New[string, types.Project](size)
	if err != nil {
		// Only reachable with a non-positive size.
		panic(err)
	}
	return &Cached{origin: origin, byID: c, gen: make(map[string]uint64)}
}

func (c *Cached) CreateProject(ctx context.Context, name string, brief types.Brief) (string, error) {
	return c.origin.CreateProject(ctx, name, brief)
}

func (c *Cached) GetProject(ctx context.Context, id string) (types.Project, bool, error) {
	id = strings.TrimSpace(id)
	if p, ok := c.byID.Get(id); ok {
		return cloneProject(p), true, nil
	}
	c.mu.Lock()
	before := c.seq
	c.mu.Unlock()
	p, ok, err := c.origin.GetProject(ctx, id)
	if err != nil || !ok {
		return p, ok, err
	}
	c.mu.Lock()
	if c.gen[id] <= before && c.deleted <= before {
		c.byID.Add(id, cloneProject(p))
	}
	c.mu.Unlock()
	return p, true, nil
}

// invalidate evicts id and records a write to it. Called before and after
// each write.
func (c *Cached) invalidate(id string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.seq++
	c.gen[id] = c.seq
	c.byID.Remove(id)
}

func (c *Cached) ListProjects(ctx context.Context) []types.Project {
	return c.origin.ListProjects(ctx)
}

func (c *Cached) UpdateFile(ctx context.Context, projectID, path string, upd FileUpdate) error {
	projectID = strings.TrimSpace(projectID)
	c.invalidate(projectID)
	defer c.invalidate(projectID)
	return c.origin.UpdateFile(ctx, projectID, path, upd)
}

func (c *Cached) UpdateProject(ctx context.Context, id string, fn func(*ProjectState)) error {
	id = strings.TrimSpace(id)
	c.invalidate(id)
	defer c.invalidate(id)
	return c.origin.UpdateProject(ctx, id, fn)
}

// DeleteProject drops id from the cache and from the write bookkeeping.
func (c *Cached) DeleteProject(ctx context.Context, id string) error {
	id = strings.TrimSpace(id)
	c.invalidate(id)
	defer func() {
		c.mu.Lock()
		defer c.mu.Unlock()
		c.seq++
		c.deleted = c.seq
		delete(c.gen, id)
		c.byID.Remove(id)
	}()
	return c.origin.DeleteProject(ctx, id)
}

func (c *Cached) Close() error {
	c.byID.Purge()
	return c.origin.Close()
}
