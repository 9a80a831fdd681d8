package generation

import (
	"context"
	"fmt"
	"log"

	"deepbuild/internal/gateway/repository/projectstore"
	"deepbuild/internal/llm"
	llmclient "deepbuild/internal/llmClient"
	"deepbuild/internal/payload"
	"deepbuild/internal/prompt"
	"deepbuild/internal/safeio"
	"deepbuild/internal/types"
)

// resolved is the outcome of one successful per-file attempt.
type resolved struct {
	content string
	message string
	// diff is set when content came from a filesToEdit entry.
	diff string
}

// GenerateAll generates every file of the project in declared order. A
// failing file is recorded as such and the loop moves on, so the returned
// error only reports why the run could not start or persist its phase.
func (o *Orchestrator) GenerateAll(ctx context.Context, id string) error {
	p, err := o.startRun(ctx, id)
	if err != nil {
		return err
	}
	defer o.release(id)
	return o.runAll(ctx, p)
}

// StartGenerateAll validates and claims the project, then generates in the
// background on a context detached from ctx.
func (o *Orchestrator) StartGenerateAll(ctx context.Context, id string) error {
	p, err := o.startRun(ctx, id)
	if err != nil {
		return err
	}
	bg := context.WithoutCancel(ctx)
	o.wg.Add(1)
	go func() {
		defer o.wg.Done()
		defer o.release(id)
		if err := o.runAll(bg, p); err != nil {
			log.Printf("generation run for %s: %v", id, err)
		}
	}()
	return nil
}

func (o *Orchestrator) startRun(ctx context.Context, id string) (types.Project, error) {
	if err := o.claim(id); err != nil {
		return types.Project{}, err
	}
	p, err := o.Project(ctx, id)
	if err == nil && p.Phase == types.PhaseAwaitingAnswers {
		err = ErrQuestionsPending
	}
	if err != nil {
		o.release(id)
		return types.Project{}, err
	}
	return p, nil
}

func (o *Orchestrator) runAll(ctx context.Context, p types.Project) error {
	if err := o.setPhase(ctx, p.ID, types.PhaseGenerating); err != nil {
		return err
	}
	cfg := o.opts.GenConfig()
	completed := 0
	for _, f := range p.Brief.Files() {
		o.say(p.ID, types.RoleAssistant, prompt.Generating(f.Path))
		if ok := o.generateOne(ctx, p, f, cfg, types.FileStatusGenerating); ok {
			o.say(p.ID, types.RoleAssistant, prompt.Generated(f.Path))
			completed++
		}
	}
	total := len(p.Brief.Files())
	log.Printf("project %s: generated %d/%d files", p.ID, completed, total)
	o.say(p.ID, types.RoleAssistant, prompt.Summary(completed, total))
	return o.setPhase(ctx, p.ID, types.PhaseIdle)
}

// RegenerateFile reruns the per-file procedure for one path.
func (o *Orchestrator) RegenerateFile(ctx context.Context, id, path string) error {
	p, f, err := o.startRegenerate(ctx, id, path)
	if err != nil {
		return err
	}
	defer o.release(id)
	o.regenerate(ctx, p, f)
	return nil
}

// StartRegenerateFile is RegenerateFile run in the background.
func (o *Orchestrator) StartRegenerateFile(ctx context.Context, id, path string) error {
	p, f, err := o.startRegenerate(ctx, id, path)
	if err != nil {
		return err
	}
	bg := context.WithoutCancel(ctx)
	o.wg.Add(1)
	go func() {
		defer o.wg.Done()
		defer o.release(id)
		o.regenerate(bg, p, f)
	}()
	return nil
}

func (o *Orchestrator) startRegenerate(ctx context.Context, id, path string) (types.Project, types.FileEntry, error) {
	p, err := o.startRun(ctx, id)
	if err != nil {
		return types.Project{}, types.FileEntry{}, err
	}
	for _, f := range p.Brief.Files() {
		if f.Path == path {
			return p, f, nil
		}
	}
	o.release(id)
	return types.Project{}, types.FileEntry{}, fmt.Errorf("%w: %s", ErrUnknownFile, path)
}

func (o *Orchestrator) regenerate(ctx context.Context, p types.Project, f types.FileEntry) {
	// A regenerate must reach the model even when the prompt is unchanged.
	ctx = llm.WithoutCache(ctx)
	o.say(p.ID, types.RoleAssistant, prompt.Regenerating(f.Path))
	if o.generateOne(ctx, p, f, o.opts.GenConfig(), types.FileStatusRegenerating) {
		o.say(p.ID, types.RoleAssistant, prompt.Regenerated(f.Path))
	}
}

// generateOne marks, generates and records a single file. Failures are
// written to the file record and the transcript; it reports success.
func (o *Orchestrator) generateOne(ctx context.Context, p types.Project, f types.FileEntry, cfg llmclient.GenerationConfig, marker types.FileStatus) bool {
	fail := func(err error) bool {
		log.Printf("project %s: %s failed: %v", p.ID, f.Path, err)
		if uerr := o.store.UpdateFile(ctx, p.ID, f.Path, projectstore.Fail(err.Error())); uerr != nil {
			log.Printf("project %s: record failure of %s: %v", p.ID, f.Path, uerr)
		}
		if marker == types.FileStatusRegenerating {
			o.say(p.ID, types.RoleAssistant, prompt.RegenerateFailed(f.Path, err))
		} else {
			o.say(p.ID, types.RoleAssistant, prompt.GenerateFailed(f.Path, err))
		}
		return false
	}

	if err := o.store.UpdateFile(ctx, p.ID, f.Path, projectstore.Mark(marker)); err != nil {
		return fail(err)
	}
	// Answers are re-read so a regenerate sees the latest set.
	answers := p.Answers
	if cur, err := o.Project(ctx, p.ID); err == nil {
		answers = cur.Answers
	}
	out, err := o.implement(ctx, p.Brief, answers, f, cfg)
	if err != nil {
		return fail(err)
	}
	if out.diff != "" {
		o.say(p.ID, types.RoleSystem, out.diff)
	}
	if err := o.store.UpdateFile(ctx, p.ID, f.Path, projectstore.Complete(out.content, out.message)); err != nil {
		return fail(err)
	}
	return true
}

// implement builds the prompt, invokes the model and resolves the content
// for f from the reply. Only replies that resolve to usable content are
// committed to the reply cache.
func (o *Orchestrator) implement(ctx context.Context, brief types.Brief, answers map[string]string, f types.FileEntry, cfg llmclient.GenerationConfig) (resolved, error) {
	convo, err := prompt.ImplementationMessages(brief, answers, f)
	if err != nil {
		return resolved{}, err
	}
	ctx, held := llm.HoldReplies(ctx)
	raw, err := o.client.Invoke(llm.WithPhase(ctx, llm.PhaseImplementation), convo, cfg)
	if err != nil {
		return resolved{}, err
	}
	res, err := o.parser(cfg).Parse(ctx, convo, raw, payload.KindImplementation)
	if err != nil {
		return resolved{}, err
	}
	out, err := resolveContent(*res.Implementation, f.Path)
	if err != nil {
		return resolved{}, err
	}
	if err := safeio.ValidateContent(out.content); err != nil {
		return resolved{}, err
	}
	held.Commit()
	return out, nil
}

// resolveContent prefers a created file and falls back to an edit whose new
// snippet becomes the content.
func resolveContent(impl types.ImplementationPayload, path string) (resolved, error) {
	if c, ok := impl.CreatedFile(path); ok && c.Content != "" {
		return resolved{content: c.Content, message: impl.AssistantReply}, nil
	}
	if e, ok := impl.EditedFile(path); ok && e.NewSnippet != "" {
		return resolved{
			content: e.NewSnippet,
			message: e.ChangeReason,
			diff:    diffPreview(path, e.OriginalSnippet, e.NewSnippet),
		}, nil
	}
	return resolved{}, fmt.Errorf("%w: %s", ErrNoContent, path)
}

func (o *Orchestrator) setPhase(ctx context.Context, id string, phase types.Phase) error {
	err := o.store.UpdateProject(ctx, id, func(st *projectstore.ProjectState) {
		st.Phase = phase
	})
	if err != nil {
		return fmt.Errorf("generation: set phase %s: %w", phase, err)
	}
	return nil
}
