package projectstore

import (
	"context"
	"errors"
	"path/filepath"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"deepbuild/internal/types"
)

func testBrief(paths ...string) types.Brief {
	var b types.Brief
	b.Project.AppSummary.Name = "Todo CLI"
	for _, p := range paths {
		b.Project.TechnicalOutline.BasicStructure.Files = append(b.Project.TechnicalOutline.BasicStructure.Files,
			types.FileEntry{Path: p, Purpose: "purpose of " + p})
	}
	b.Questions = []types.Question{{Text: "Storage?", WhyNeeded: "persistence"}}
	return b
}

type backend struct {
	name string
	open func(t *testing.T) Store
}

func backends() []backend {
	return []backend{
		{"memory", func(t *testing.T) Store { return NewMemory("") }},
		{"memory-snapshot", func(t *testing.T) Store {
			return NewMemory(filepath.Join(t.TempDir(), "projects.json"))
		}},
		{"sqlite", func(t *testing.T) Store {
			s, err := OpenSQL(context.Background(), DriverSQLite, filepath.Join(t.TempDir(), "deepbuild.db"))
			require.NoError(t, err)
			return s
		}},
		{"cached-sqlite", func(t *testing.T) Store {
			s, err := OpenSQL(context.Background(), DriverSQLite, filepath.Join(t.TempDir(), "deepbuild.db"))
			require.NoError(t, err)
			return NewCached(s, 16)
		}},
	}
}

func eachBackend(t *testing.T, fn func(t *testing.T, s Store)) {
	for _, b := range backends() {
		t.Run(b.name, func(t *testing.T) {
			s := b.open(t)
			t.Cleanup(func() { _ = s.Close() })
			fn(t, s)
		})
	}
}

func TestCreateProjectPendingFiles(t *testing.T) {
	eachBackend(t, func(t *testing.T, s Store) {
		ctx := context.Background()
		id, err := s.CreateProject(ctx, "Todo", testBrief("todo.ts", "README.md", "todo.ts"))
		require.NoError(t, err)
		require.NotEmpty(t, id)

		p, ok, err := s.GetProject(ctx, id)
		require.NoError(t, err)
		require.True(t, ok)
		assert.Equal(t, "Todo", p.Name)
		assert.Equal(t, types.PhaseAwaitingAnswers, p.Phase)
		assert.Equal(t, "Todo CLI", p.Brief.Name())
		require.Len(t, p.Files, 2, "duplicate path keeps the first entry")
		assert.Equal(t, "todo.ts", p.Files[0].Path)
		assert.Equal(t, "README.md", p.Files[1].Path)
		for _, f := range p.Files {
			assert.Equal(t, types.FileStatusPending, f.Status)
			assert.Empty(t, f.Content)
			assert.Empty(t, f.Error)
			assert.Equal(t, id, f.ProjectID)
		}
	})
}

func TestCreateProjectWithoutQuestionsIsReady(t *testing.T) {
	eachBackend(t, func(t *testing.T, s Store) {
		b := testBrief("a.go")
		b.Questions = nil
		id, err := s.CreateProject(context.Background(), "", b)
		require.NoError(t, err)
		p, _, _ := s.GetProject(context.Background(), id)
		assert.Equal(t, types.PhaseReady, p.Phase)
		assert.Equal(t, "Todo CLI", p.Name, "name falls back to the brief")
	})
}

func TestCreateProjectRejectsEmptyFileList(t *testing.T) {
	eachBackend(t, func(t *testing.T, s Store) {
		_, err := s.CreateProject(context.Background(), "x", testBrief())
		assert.ErrorIs(t, err, ErrInvalidUpdate)
		assert.Empty(t, s.ListProjects(context.Background()))
	})
}

func TestUpdateFileReadYourWritesAndIdempotence(t *testing.T) {
	eachBackend(t, func(t *testing.T, s Store) {
		ctx := context.Background()
		id, err := s.CreateProject(ctx, "p", testBrief("a.go", "b.go"))
		require.NoError(t, err)
		// Warm any cache before writing.
		_, _, _ = s.GetProject(ctx, id)

		upd := Complete("package a", "done")
		require.NoError(t, s.UpdateFile(ctx, id, "a.go", upd))
		first, _, _ := s.GetProject(ctx, id)
		require.NoError(t, s.UpdateFile(ctx, id, "a.go", upd))
		second, _, _ := s.GetProject(ctx, id)

		a1, _ := first.File("a.go")
		a2, _ := second.File("a.go")
		assert.Equal(t, types.FileStatusCompleted, a1.Status)
		assert.Equal(t, "package a", a1.Content)
		assert.Equal(t, "done", a1.Message)
		a1.UpdatedAt, a2.UpdatedAt = a2.UpdatedAt, a1.UpdatedAt
		assert.Equal(t, a1, a2)

		b, _ := second.File("b.go")
		assert.Equal(t, types.FileStatusPending, b.Status, "sibling untouched")
	})
}

func TestUpdateFileInvariants(t *testing.T) {
	eachBackend(t, func(t *testing.T, s Store) {
		ctx := context.Background()
		id, _ := s.CreateProject(ctx, "p", testBrief("a.go"))

		require.NoError(t, s.UpdateFile(ctx, id, "a.go", Complete("x", "")))
		require.NoError(t, s.UpdateFile(ctx, id, "a.go", Mark(types.FileStatusRegenerating)))
		p, _, _ := s.GetProject(ctx, id)
		assert.Empty(t, p.Files[0].Content, "content only while completed")

		require.NoError(t, s.UpdateFile(ctx, id, "a.go", Fail("boom")))
		p, _, _ = s.GetProject(ctx, id)
		assert.Equal(t, types.FileStatusError, p.Files[0].Status)
		assert.Equal(t, "boom", p.Files[0].Error)

		require.NoError(t, s.UpdateFile(ctx, id, "a.go", Mark(types.FileStatusGenerating)))
		p, _, _ = s.GetProject(ctx, id)
		assert.Empty(t, p.Files[0].Error, "error only while errored")

		err := s.UpdateFile(ctx, id, "a.go", Complete("", ""))
		assert.ErrorIs(t, err, ErrInvalidUpdate)
		bad := types.FileStatus("bogus")
		assert.ErrorIs(t, s.UpdateFile(ctx, id, "a.go", FileUpdate{Status: &bad}), ErrInvalidUpdate)
	})
}

func TestUpdateFileNotFound(t *testing.T) {
	eachBackend(t, func(t *testing.T, s Store) {
		ctx := context.Background()
		id, _ := s.CreateProject(ctx, "p", testBrief("a.go"))
		assert.ErrorIs(t, s.UpdateFile(ctx, id, "missing.go", Fail("x")), ErrNotFound)
		assert.ErrorIs(t, s.UpdateFile(ctx, "nope", "a.go", Fail("x")), ErrNotFound)
	})
}

func TestConcurrentUpdatesToSiblingsDoNotClobber(t *testing.T) {
	eachBackend(t, func(t *testing.T, s Store) {
		ctx := context.Background()
		paths := []string{"a", "b", "c", "d", "e", "f"}
		id, err := s.CreateProject(ctx, "p", testBrief(paths...))
		require.NoError(t, err)

		var wg sync.WaitGroup
		for _, p := range paths {
			wg.Add(1)
			go func(p string) {
				defer wg.Done()
				assert.NoError(t, s.UpdateFile(ctx, id, p, Complete("content "+p, "")))
			}(p)
		}
		wg.Wait()

		got, _, _ := s.GetProject(ctx, id)
		for _, f := range got.Files {
			assert.Equal(t, types.FileStatusCompleted, f.Status, f.Path)
			assert.Equal(t, "content "+f.Path, f.Content)
		}
	})
}

func TestUpdateProjectState(t *testing.T) {
	eachBackend(t, func(t *testing.T, s Store) {
		ctx := context.Background()
		id, _ := s.CreateProject(ctx, "p", testBrief("a.go"))
		_, _, _ = s.GetProject(ctx, id)
		require.NoError(t, s.UpdateProject(ctx, id, func(st *ProjectState) {
			st.Answers["Storage?"] = "sqlite"
			st.QuestionIndex = 1
			st.Phase = types.PhaseReady
		}))
		p, _, _ := s.GetProject(ctx, id)
		assert.Equal(t, "sqlite", p.Answers["Storage?"])
		assert.Equal(t, 1, p.QuestionIndex)
		assert.Equal(t, types.PhaseReady, p.Phase)

		err := s.UpdateProject(ctx, "missing", func(*ProjectState) {})
		assert.True(t, errors.Is(err, ErrNotFound))
	})
}

func TestDeleteProjectCascades(t *testing.T) {
	eachBackend(t, func(t *testing.T, s Store) {
		ctx := context.Background()
		keep, _ := s.CreateProject(ctx, "keep", testBrief("k.go"))
		gone, _ := s.CreateProject(ctx, "gone", testBrief("a.go", "b.go"))
		_, _, _ = s.GetProject(ctx, gone)

		require.NoError(t, s.DeleteProject(ctx, gone))
		_, ok, err := s.GetProject(ctx, gone)
		require.NoError(t, err)
		assert.False(t, ok)
		assert.ErrorIs(t, s.UpdateFile(ctx, gone, "a.go", Fail("x")), ErrNotFound)
		assert.ErrorIs(t, s.DeleteProject(ctx, gone), ErrNotFound)

		list := s.ListProjects(ctx)
		require.Len(t, list, 1)
		assert.Equal(t, keep, list[0].ID)
		assert.Len(t, list[0].Files, 1)
	})
}

func TestListProjectsNewestFirst(t *testing.T) {
	eachBackend(t, func(t *testing.T, s Store) {
		ctx := context.Background()
		var ids []string
		for _, n := range []string{"one", "two", "three"} {
			id, err := s.CreateProject(ctx, n, testBrief(n+".go"))
			require.NoError(t, err)
			ids = append(ids, id)
		}
		list := s.ListProjects(ctx)
		require.Len(t, list, 3)
		assert.Equal(t, []string{ids[2], ids[1], ids[0]}, []string{list[0].ID, list[1].ID, list[2].ID})
		assert.Equal(t, "three.go", list[0].Files[0].Path)
	})
}

func TestListProjectsFailSoft(t *testing.T) {
	s, err := OpenSQL(context.Background(), DriverSQLite, filepath.Join(t.TempDir(), "x.db"))
	require.NoError(t, err)
	require.NoError(t, s.Close())
	list := s.ListProjects(context.Background())
	assert.NotNil(t, list)
	assert.Empty(t, list)
}

func TestMemorySnapshotSurvivesReopen(t *testing.T) {
	path := filepath.Join(t.TempDir(), "projects.json")
	ctx := context.Background()
	m := NewMemory(path)
	id, err := m.CreateProject(ctx, "p", testBrief("a.go"))
	require.NoError(t, err)
	require.NoError(t, m.UpdateFile(ctx, id, "a.go", Complete("x", "")))

	reopened := NewMemory(path)
	p, ok, err := reopened.GetProject(ctx, id)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, "x", p.Files[0].Content)

	next, err := reopened.CreateProject(ctx, "q", testBrief("b.go"))
	require.NoError(t, err)
	assert.Equal(t, next, reopened.ListProjects(ctx)[0].ID, "new project sorts first after reload")
}

func TestOpenFallsBackToMemory(t *testing.T) {
	s := Open(context.Background(), Config{Driver: "postgres", DSN: "postgres://deepbuild@127.0.0.1:1/deepbuild?connect_timeout=1&sslmode=disable"})
	_, ok := s.(*Memory)
	assert.True(t, ok)
	_, ok = Open(context.Background(), Config{Driver: "sqlite", DSN: filepath.Join(t.TempDir(), "d.db"), CacheSize: 8}).(*Cached)
	assert.True(t, ok)
}

func TestRebindPostgres(t *testing.T) {
	s := &SQL{driver: DriverPostgres}
	assert.Equal(t, "UPDATE files SET a = $1 WHERE b = $2", s.q("UPDATE files SET a = ? WHERE b = ?"))
	s.driver = DriverSQLite
	assert.Equal(t, "x = ?", s.q("x = ?"))
}

func TestCachedTrimsIDsAndForgetsDeleted(t *testing.T) {
	ctx := context.Background()
	c := NewCached(NewMemory(""), 8)
	t.Cleanup(func() { _ = c.Close() })
	id, err := c.CreateProject(ctx, "p", testBrief("a.go"))
	require.NoError(t, err)

	_, ok, err := c.GetProject(ctx, " "+id+" ")
	require.NoError(t, err)
	require.True(t, ok)
	require.NoError(t, c.UpdateFile(ctx, id, "a.go", Complete("package a", "")))

	p, ok, err := c.GetProject(ctx, " "+id+" ")
	require.NoError(t, err)
	require.True(t, ok)
	a, _ := p.File("a.go")
	assert.Equal(t, types.FileStatusCompleted, a.Status)

	require.NoError(t, c.DeleteProject(ctx, " "+id))
	_, ok, err = c.GetProject(ctx, id)
	require.NoError(t, err)
	assert.False(t, ok)
	c.mu.Lock()
	assert.Empty(t, c.gen)
	c.mu.Unlock()
}
