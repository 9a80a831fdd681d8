package types

import "time"

type FileStatus string

const (
	FileStatusPending      FileStatus = "pending"
	FileStatusGenerating   FileStatus = "generating"
	FileStatusCompleted    FileStatus = "completed"
	FileStatusError        FileStatus = "error"
	FileStatusRegenerating FileStatus = "regenerating"
)

// Valid reports whether s is one of the known statuses.
func (s FileStatus) Valid() bool {
	switch s {
	case FileStatusPending, FileStatusGenerating, FileStatusCompleted, FileStatusError, FileStatusRegenerating:
		return true
	}
	return false
}

// Phase is the project-level position in the brief, Q&A, generation sequence.
// PhaseAwaitingBrief is never persisted: a project only exists once its brief does.
type Phase string

const (
	PhaseAwaitingBrief   Phase = "awaiting_brief"
	PhaseAwaitingAnswers Phase = "awaiting_answers"
	PhaseReady           Phase = "ready"
	PhaseGenerating      Phase = "generating"
	PhaseIdle            Phase = "idle"
)

// FileTask tracks one target file's generation lifecycle.
// Content is non-empty only when Status is completed; Error is set only when
// Status is error.
type FileTask struct {
	ProjectID string     `json:"project_id"`
	Path      string     `json:"path"`
	Purpose   string     `json:"purpose"`
	Content   string     `json:"content"`
	Status    FileStatus `json:"status"`
	Error     string     `json:"error,omitempty"`
	Message   string     `json:"message,omitempty"`
	Ordinal   int        `json:"ordinal"`
	UpdatedAt time.Time  `json:"updated_at"`
}

type Project struct {
	ID            string            `json:"id"`
	Name          string            `json:"name"`
	CreatedAt     time.Time         `json:"created_at"`
	Brief         Brief             `json:"brief"`
	Files         []FileTask        `json:"files"`
	Phase         Phase             `json:"phase"`
	Answers       map[string]string `json:"answers,omitempty"`
	QuestionIndex int               `json:"question_index"`
	// Busy is owned by the orchestrator instance, not by the store.
	Busy bool `json:"busy"`
}

// File returns the task for path.
func (p Project) File(path string) (FileTask, bool) {
	for _, f := range p.Files {
		if f.Path == path {
			return f, true
		}
	}
	return FileTask{}, false
}

// PendingQuestion returns the next unanswered clarifying question.
func (p Project) PendingQuestion() (Question, bool) {
	if p.QuestionIndex < 0 || p.QuestionIndex >= len(p.Brief.Questions) {
		return Question{}, false
	}
	return p.Brief.Questions[p.QuestionIndex], true
}

// StatusCounts tallies files by status.
func (p Project) StatusCounts() map[FileStatus]int {
	out := make(map[FileStatus]int, 5)
	for _, f := range p.Files {
		out[f.Status]++
	}
	return out
}
