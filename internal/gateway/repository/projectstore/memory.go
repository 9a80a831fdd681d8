package projectstore

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"

	"deepbuild/internal/types"
)

// Memory keeps projects in process, optionally mirrored to a JSON snapshot
// file after every write.
type Memory struct {
	path  string
	clock clock

	loadOnce sync.Once
	mu       sync.RWMutex
	byID     map[string]types.Project
}

func NewMemory(snapshotPath string) *Memory {
	return &Memory{
		path: strings.TrimSpace(snapshotPath),
		byID: make(map[string]types.Project),
	}
}

func (m *Memory) ensureLoaded() {
	m.loadOnce.Do(func() {
		if m.path == "" {
			return
		}
		b, err := os.ReadFile(m.path)
		if err != nil {
			return
		}
		var rows []types.Project
		if err := json.Unmarshal(b, &rows); err != nil {
			log.Printf("projectstore: ignoring unreadable snapshot %s: %v", m.path, err)
			return
		}
		m.mu.Lock()
		defer m.mu.Unlock()
		for _, row := range rows {
			id := strings.TrimSpace(row.ID)
			if id == "" {
				continue
			}
			row.Busy = false
			m.byID[id] = row
			m.clock.advance(row.CreatedAt)
		}
	})
}

// saveLocked writes the snapshot. Caller holds mu.
func (m *Memory) saveLocked() error {
	if m.path == "" {
		return nil
	}
	rows := make([]types.Project, 0, len(m.byID))
	for _, p := range m.byID {
		rows = append(rows, p)
	}
	sort.Slice(rows, func(i, j int) bool { return rows[i].CreatedAt.Before(rows[j].CreatedAt) })
	b, err := json.MarshalIndent(rows, "", "  ")
	if err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(m.path), 0o755); err != nil {
		return err
	}
	tmp := m.path + ".tmp"
	if err := os.WriteFile(tmp, b, 0o644); err != nil {
		return err
	}
	return os.Rename(tmp, m.path)
}

func (m *Memory) CreateProject(_ context.Context, name string, brief types.Brief) (string, error) {
	m.ensureLoaded()
	p := newProject(name, brief, m.clock.now())
	if len(p.Files) == 0 {
		return "", fmt.Errorf("%w: brief has no files", ErrInvalidUpdate)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.byID[p.ID] = p
	if err := m.saveLocked(); err != nil {
		delete(m.byID, p.ID)
		return "", fmt.Errorf("projectstore: save snapshot: %w", err)
	}
	return p.ID, nil
}

func (m *Memory) GetProject(_ context.Context, id string) (types.Project, bool, error) {
	m.ensureLoaded()
	m.mu.RLock()
	defer m.mu.RUnlock()
	p, ok := m.byID[strings.TrimSpace(id)]
	if !ok {
		return types.Project{}, false, nil
	}
	return cloneProject(p), true, nil
}

func (m *Memory) ListProjects(_ context.Context) []types.Project {
	m.ensureLoaded()
	m.mu.RLock()
	out := make([]types.Project, 0, len(m.byID))
	for _, p := range m.byID {
		out = append(out, cloneProject(p))
	}
	m.mu.RUnlock()
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	return out
}

func (m *Memory) UpdateFile(_ context.Context, projectID, path string, upd FileUpdate) error {
	m.ensureLoaded()
	m.mu.Lock()
	defer m.mu.Unlock()
	p, ok := m.byID[strings.TrimSpace(projectID)]
	if !ok {
		return fmt.Errorf("%w: project %s", ErrNotFound, projectID)
	}
	for i := range p.Files {
		if p.Files[i].Path != path {
			continue
		}
		prev := p.Files[i]
		next := prev
		if err := upd.apply(&next, m.clock.now()); err != nil {
			return err
		}
		// Files is shared with p stored in the map; write the row in place.
		p.Files[i] = next
		if err := m.saveLocked(); err != nil {
			p.Files[i] = prev
			return fmt.Errorf("projectstore: save snapshot: %w", err)
		}
		return nil
	}
	return fmt.Errorf("%w: file %s in project %s", ErrNotFound, path, projectID)
}

func (m *Memory) UpdateProject(_ context.Context, id string, fn func(*ProjectState)) error {
	m.ensureLoaded()
	m.mu.Lock()
	defer m.mu.Unlock()
	key := strings.TrimSpace(id)
	p, ok := m.byID[key]
	if !ok {
		return fmt.Errorf("%w: project %s", ErrNotFound, id)
	}
	prev := p
	st := stateOf(p)
	fn(&st)
	st.applyTo(&p)
	m.byID[key] = p
	if err := m.saveLocked(); err != nil {
		m.byID[key] = prev
		return fmt.Errorf("projectstore: save snapshot: %w", err)
	}
	return nil
}

func (m *Memory) DeleteProject(_ context.Context, id string) error {
	m.ensureLoaded()
	m.mu.Lock()
	defer m.mu.Unlock()
	key := strings.TrimSpace(id)
	p, ok := m.byID[key]
	if !ok {
		return fmt.Errorf("%w: project %s", ErrNotFound, id)
	}
	delete(m.byID, key)
	if err := m.saveLocked(); err != nil {
		m.byID[key] = p
		return fmt.Errorf("projectstore: save snapshot: %w", err)
	}
	return nil
}

func (m *Memory) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.saveLocked()
}
