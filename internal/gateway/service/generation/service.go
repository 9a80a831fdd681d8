package generation

import (
	"context"
	"errors"
	"fmt"
	"log"
	"strings"
	"sync"

	"deepbuild/internal/gateway/repository/projectstore"
	"deepbuild/internal/gateway/service/transcript"
	"deepbuild/internal/llm"
	llmclient "deepbuild/internal/llmClient"
	"deepbuild/internal/payload"
	"deepbuild/internal/prompt"
	"deepbuild/internal/safeio"
	"deepbuild/internal/types"
)

var (
	ErrBusy              = errors.New("generation: project is busy")
	ErrNoProject         = errors.New("generation: project not found")
	ErrNoContent         = errors.New("generation: reply has no content for the requested file")
	ErrQuestionsPending  = errors.New("generation: clarifying questions are still unanswered")
	ErrNoPendingQuestion = errors.New("generation: no question is awaiting an answer")
	ErrUnknownFile       = errors.New("generation: file is not part of the project")
	ErrEmptyDescription  = errors.New("generation: description is empty")
	ErrEmptyAnswer       = errors.New("generation: answer is empty")
)

// Options tune an Orchestrator. GenConfig is resolved once per operation.
type Options struct {
	GenConfig        func() llmclient.GenerationConfig
	MaxContinuations int
}

// Orchestrator drives brief creation, clarifying Q&A and per-file generation.
// The store is the only shared state; the busy set lives here.
type Orchestrator struct {
	client llmclient.Client
	store  projectstore.Store
	sink   transcript.Sink
	opts   Options

	mu   sync.Mutex
	busy map[string]struct{}
	wg   sync.WaitGroup
}

func New(client llmclient.Client, store projectstore.Store, sink transcript.Sink, opts Options) *Orchestrator {
	if opts.GenConfig == nil {
		opts.GenConfig = func() llmclient.GenerationConfig { return llmclient.GenerationConfig{} }
	}
	return &Orchestrator{
		client: client,
		store:  store,
		sink:   sink,
		opts:   opts,
		busy:   make(map[string]struct{}),
	}
}

// ---------------------------------------------------------------------------
// Busy tracking
// ---------------------------------------------------------------------------

func (o *Orchestrator) claim(id string) error {
	o.mu.Lock()
	defer o.mu.Unlock()
	if _, ok := o.busy[id]; ok {
		return fmt.Errorf("%w: %s", ErrBusy, id)
	}
	o.busy[id] = struct{}{}
	return nil
}

func (o *Orchestrator) release(id string) {
	o.mu.Lock()
	delete(o.busy, id)
	o.mu.Unlock()
}

// Busy reports whether a generation run or regenerate is in flight for id.
func (o *Orchestrator) Busy(id string) bool {
	o.mu.Lock()
	defer o.mu.Unlock()
	_, ok := o.busy[id]
	return ok
}

// Wait blocks until every background run started by this instance finished.
func (o *Orchestrator) Wait() { o.wg.Wait() }

func (o *Orchestrator) say(id string, role types.Role, text string) {
	if o.sink != nil {
		o.sink.Append(id, role, text)
	}
}

func (o *Orchestrator) parser(cfg llmclient.GenerationConfig) *payload.Parser {
	return &payload.Parser{Client: o.client, Config: cfg, MaxContinuations: o.opts.MaxContinuations}
}

// ---------------------------------------------------------------------------
// Read side
// ---------------------------------------------------------------------------

// Project returns the stored snapshot with Busy filled in.
func (o *Orchestrator) Project(ctx context.Context, id string) (types.Project, error) {
	p, ok, err := o.store.GetProject(ctx, id)
	if err != nil {
		return types.Project{}, err
	}
	if !ok {
		return types.Project{}, fmt.Errorf("%w: %s", ErrNoProject, id)
	}
	p.Busy = o.Busy(id)
	return p, nil
}

// List returns every project, newest first.
func (o *Orchestrator) List(ctx context.Context) []types.Project {
	ps := o.store.ListProjects(ctx)
	for i := range ps {
		ps[i].Busy = o.Busy(ps[i].ID)
	}
	return ps
}

// PendingQuestion returns the question awaiting an answer, if any.
func (o *Orchestrator) PendingQuestion(ctx context.Context, id string) (types.Question, bool, error) {
	p, err := o.Project(ctx, id)
	if err != nil {
		return types.Question{}, false, err
	}
	if p.Phase != types.PhaseAwaitingAnswers {
		return types.Question{}, false, nil
	}
	q, ok := p.PendingQuestion()
	return q, ok, nil
}

// Delete removes a project that is not busy, together with its transcript.
func (o *Orchestrator) Delete(ctx context.Context, id string) error {
	if err := o.claim(id); err != nil {
		return err
	}
	defer o.release(id)
	if err := o.store.DeleteProject(ctx, id); err != nil {
		if errors.Is(err, projectstore.ErrNotFound) {
			return fmt.Errorf("%w: %s", ErrNoProject, id)
		}
		return err
	}
	if c, ok := o.sink.(interface{ Clear(string) }); ok {
		c.Clear(id)
	}
	log.Printf("project %s deleted", id)
	return nil
}

// ---------------------------------------------------------------------------
// Brief and Q&A
// ---------------------------------------------------------------------------

// CreateProject asks the model for a brief and persists it. Nothing is
// stored when the call, the parse or the brief validation fails.
func (o *Orchestrator) CreateProject(ctx context.Context, description string) (types.Project, error) {
	description = strings.TrimSpace(description)
	if description == "" {
		return types.Project{}, ErrEmptyDescription
	}
	// A brief that fails to parse or validate must not be replayed from the
	// reply cache when the user retries.
	ctx, held := llm.HoldReplies(ctx)
	cfg := o.opts.GenConfig()
	convo := prompt.BriefMessages(description)
	raw, err := o.client.Invoke(llm.WithPhase(ctx, llm.PhaseBrief), convo, cfg)
	if err != nil {
		return types.Project{}, fmt.Errorf("generation: brief request: %w", err)
	}
	res, err := o.parser(cfg).Parse(ctx, convo, raw, payload.KindBrief)
	if err != nil {
		return types.Project{}, fmt.Errorf("generation: brief reply: %w", err)
	}
	brief, dropped, err := sanitizeBrief(*res.Brief)
	if err != nil {
		return types.Project{}, err
	}
	held.Commit()

	name := strings.TrimSpace(brief.Name())
	if name == "" {
		name = projectNameFrom(description)
	}
	id, err := o.store.CreateProject(ctx, name, brief)
	if err != nil {
		return types.Project{}, fmt.Errorf("generation: save project: %w", err)
	}
	log.Printf("project %s created: %d files, %d questions (%d continuation rounds)",
		id, len(brief.Files()), len(brief.Questions), res.Continuations)

	o.say(id, types.RoleUser, description)
	o.say(id, types.RoleAssistant, prompt.Overview(brief))
	for _, d := range dropped {
		o.say(id, types.RoleSystem, prompt.DroppedPath(d.path, d.err))
	}
	if len(brief.Questions) > 0 {
		o.say(id, types.RoleAssistant, prompt.FirstQuestion(brief.Questions[0]))
	} else {
		o.say(id, types.RoleAssistant, prompt.NoQuestions)
	}
	return o.Project(ctx, id)
}

// SubmitAnswer records answer for the current question and returns the next
// one. The last answer starts generating every file in the background and
// returns nil; use Wait to block until that run is done.
func (o *Orchestrator) SubmitAnswer(ctx context.Context, id, answer string) (*types.Question, error) {
	answer = strings.TrimSpace(answer)
	if answer == "" {
		return nil, ErrEmptyAnswer
	}
	p, err := o.Project(ctx, id)
	if err != nil {
		return nil, err
	}
	if p.Phase != types.PhaseAwaitingAnswers {
		return nil, ErrNoPendingQuestion
	}
	questions := p.Brief.Questions
	answered := -1
	err = o.store.UpdateProject(ctx, id, func(st *projectstore.ProjectState) {
		if st.Phase != types.PhaseAwaitingAnswers || st.QuestionIndex < 0 || st.QuestionIndex >= len(questions) {
			return
		}
		answered = st.QuestionIndex
		if st.Answers == nil {
			st.Answers = map[string]string{}
		}
		st.Answers[questions[answered].Text] = answer
		st.QuestionIndex++
		if st.QuestionIndex >= len(questions) {
			st.Phase = types.PhaseReady
		}
	})
	if err != nil {
		return nil, fmt.Errorf("generation: save answer: %w", err)
	}
	if answered < 0 {
		return nil, ErrNoPendingQuestion
	}

	o.say(id, types.RoleUser, answer)
	if next := answered + 1; next < len(questions) {
		q := questions[next]
		o.say(id, types.RoleAssistant, prompt.NextQuestion(q))
		return &q, nil
	}
	o.say(id, types.RoleAssistant, prompt.AllAnswered)
	if err := o.StartGenerateAll(ctx, id); err != nil {
		// The answers are saved and the project is ready; a later
		// GenerateAll picks it up.
		log.Printf("project %s: start generation after last answer: %v", id, err)
	}
	return nil, nil
}

type droppedPath struct {
	path string
	err  error
}

// sanitizeBrief drops unsafe and duplicate file paths. A brief left without
// files is rejected as a schema mismatch.
func sanitizeBrief(b types.Brief) (types.Brief, []droppedPath, error) {
	var (
		keep    []types.FileEntry
		dropped []droppedPath
	)
	seen := make(map[string]struct{})
	for _, f := range b.Files() {
		if err := safeio.ValidatePath(f.Path); err != nil {
			dropped = append(dropped, droppedPath{path: f.Path, err: err})
			continue
		}
		if _, dup := seen[f.Path]; dup {
			continue
		}
		seen[f.Path] = struct{}{}
		keep = append(keep, f)
	}
	if len(keep) == 0 {
		return types.Brief{}, dropped, &payload.Error{
			Kind:    payload.SchemaMismatch,
			Reason:  "brief declares no usable file paths",
			Decoded: b,
		}
	}
	return b.WithFiles(keep), dropped, nil
}

func projectNameFrom(description string) string {
	const limit = 60
	name := strings.Join(strings.Fields(description), " ")
	if r := []rune(name); len(r) > limit {
		name = strings.TrimSpace(string(r[:limit])) + "..."
	}
	return name
}
