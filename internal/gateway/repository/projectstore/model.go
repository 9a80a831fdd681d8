package projectstore

import (
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"deepbuild/internal/types"
)

var (
	ErrNotFound      = errors.New("projectstore: not found")
	ErrInvalidUpdate = errors.New("projectstore: invalid update")
)

// FileUpdate is a partial update of one file record. Nil fields keep the
// stored value.
type FileUpdate struct {
	Status  *types.FileStatus
	Content *string
	Error   *string
	Message *string
}

// Mark moves a file to status, clearing content and error.
func Mark(status types.FileStatus) FileUpdate {
	empty := ""
	return FileUpdate{Status: &status, Content: &empty, Error: &empty}
}

// Complete records successful generation.
func Complete(content, message string) FileUpdate {
	st := types.FileStatusCompleted
	empty := ""
	return FileUpdate{Status: &st, Content: &content, Error: &empty, Message: &message}
}

// Fail records a failed generation attempt.
func Fail(msg string) FileUpdate {
	st := types.FileStatusError
	empty := ""
	return FileUpdate{Status: &st, Content: &empty, Error: &msg}
}

// apply merges u into f and enforces the content/error invariants.
func (u FileUpdate) apply(f *types.FileTask, now time.Time) error {
	if u.Status != nil {
		if !u.Status.Valid() {
			return fmt.Errorf("%w: unknown status %q", ErrInvalidUpdate, *u.Status)
		}
		f.Status = *u.Status
	}
	if u.Content != nil {
		f.Content = *u.Content
	}
	if u.Error != nil {
		f.Error = *u.Error
	}
	if u.Message != nil {
		f.Message = *u.Message
	}
	if f.Status != types.FileStatusCompleted {
		f.Content = ""
	} else if f.Content == "" {
		return fmt.Errorf("%w: completed file %q without content", ErrInvalidUpdate, f.Path)
	}
	if f.Status != types.FileStatusError {
		f.Error = ""
	} else if strings.TrimSpace(f.Error) == "" {
		f.Error = "unknown error"
	}
	f.UpdatedAt = now
	return nil
}

// ProjectState is the mutable project-level part of a record.
type ProjectState struct {
	Phase         types.Phase
	Answers       map[string]string
	QuestionIndex int
}

func stateOf(p types.Project) ProjectState {
	return ProjectState{Phase: p.Phase, Answers: cloneAnswers(p.Answers), QuestionIndex: p.QuestionIndex}
}

func (s ProjectState) applyTo(p *types.Project) {
	p.Phase = s.Phase
	p.Answers = cloneAnswers(s.Answers)
	p.QuestionIndex = s.QuestionIndex
}

func newID() string { return uuid.New().String() }

// initialPhase is where a freshly created project starts.
func initialPhase(b types.Brief) types.Phase {
	if len(b.Questions) == 0 {
		return types.PhaseReady
	}
	return types.PhaseAwaitingAnswers
}

// newProject builds the record and its pending file tasks. Duplicate paths
// keep the first occurrence, matching the (project, path) uniqueness.
func newProject(name string, brief types.Brief, now time.Time) types.Project {
	id := newID()
	name = strings.TrimSpace(name)
	if name == "" {
		name = strings.TrimSpace(brief.Name())
	}
	if name == "" {
		name = "Project"
	}
	p := types.Project{
		ID:        id,
		Name:      name,
		CreatedAt: now,
		Brief:     brief,
		Phase:     initialPhase(brief),
		Answers:   map[string]string{},
	}
	seen := make(map[string]struct{})
	for _, f := range brief.Files() {
		if _, dup := seen[f.Path]; dup {
			continue
		}
		seen[f.Path] = struct{}{}
		p.Files = append(p.Files, types.FileTask{
			ProjectID: id,
			Path:      f.Path,
			Purpose:   f.Purpose,
			Status:    types.FileStatusPending,
			Ordinal:   len(p.Files),
			UpdatedAt: now,
		})
	}
	return p
}

func cloneAnswers(in map[string]string) map[string]string {
	out := make(map[string]string, len(in))
	for k, v := range in {
		out[k] = v
	}
	return out
}

func cloneProject(p types.Project) types.Project {
	out := p
	out.Files = append([]types.FileTask(nil), p.Files...)
	out.Answers = cloneAnswers(p.Answers)
	out.Brief.Questions = append([]types.Question(nil), p.Brief.Questions...)
	return out
}

// clock hands out strictly increasing timestamps so createdAt ordering is
// total within a process.
type clock struct {
	mu   sync.Mutex
	last time.Time
}

func (c *clock) now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	t := time.Now().UTC()
	if !t.After(c.last) {
		t = c.last.Add(time.Microsecond)
	}
	c.last = t
	return t
}

// advance makes later timestamps sort after t.
func (c *clock) advance(t time.Time) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if t.After(c.last) {
		c.last = t
	}
}

type rowScanner interface {
	Scan(dest ...any) error
}
