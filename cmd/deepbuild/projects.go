package main

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"deepbuild/internal/gateway/app"
	"deepbuild/internal/gateway/repository/artifact"
	"deepbuild/internal/types"
)

const followEvery = 250 * time.Millisecond

// withApp opens the app for one command and always closes it.
func withApp(cmd *cobra.Command, fn func(a *app.App) error) error {
	a, err := openApp(cmd)
	if err != nil {
		return err
	}
	defer a.Close()
	return fn(a)
}

func newNewCmd() *cobra.Command {
	return &cobra.Command{
		Use:   `new "<description>"`,
		Short: "Create a project, answer its questions and generate it",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd, func(a *app.App) error {
				ctx := cmd.Context()
				out := cmd.OutOrStdout()
				p, err := a.Orchestrator.CreateProject(ctx, strings.Join(args, " "))
				if err != nil {
					return err
				}
				fmt.Fprintf(out, "Project %s (%s)\n\n", p.ID, p.Name)
				t := newTail(a.Transcript, p.ID, out, false)
				t.flush()

				if err := askQuestions(cmd, a, p.ID, t); err != nil {
					return err
				}
				return finishGeneration(cmd, a, p.ID, t)
			})
		},
	}
}

// finishGeneration follows the run started by the last answer. A project
// without questions is still ready, so its run starts here.
func finishGeneration(cmd *cobra.Command, a *app.App, id string, t *tail) error {
	stop := t.follow(followEvery)
	defer stop()
	a.Orchestrator.Wait()
	p, err := a.Orchestrator.Project(cmd.Context(), id)
	if err != nil {
		return err
	}
	if p.Phase == types.PhaseReady {
		return a.Orchestrator.GenerateAll(cmd.Context(), id)
	}
	return nil
}

// askQuestions reads one answer per line from stdin until every question is
// answered.
func askQuestions(cmd *cobra.Command, a *app.App, id string, t *tail) error {
	in := bufio.NewScanner(cmd.InOrStdin())
	out := cmd.OutOrStdout()
	for {
		_, ok, err := a.Orchestrator.PendingQuestion(cmd.Context(), id)
		if err != nil {
			return err
		}
		if !ok {
			return nil
		}
		fmt.Fprint(out, "> ")
		if !in.Scan() {
			if err := in.Err(); err != nil {
				return err
			}
			return fmt.Errorf("input closed; continue with \"deepbuild answer %s <answer>\"", id)
		}
		if _, err := a.Orchestrator.SubmitAnswer(cmd.Context(), id, in.Text()); err != nil {
			return err
		}
		t.flush()
	}
}

func newAnswerCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "answer ID ANSWER...",
		Short: "Answer the pending clarifying question",
		Args:  cobra.MinimumNArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd, func(a *app.App) error {
				out := cmd.OutOrStdout()
				t := newTail(a.Transcript, args[0], out, true)
				next, err := a.Orchestrator.SubmitAnswer(cmd.Context(), args[0], strings.Join(args[1:], " "))
				if err != nil {
					return err
				}
				if next == nil {
					return finishGeneration(cmd, a, args[0], t)
				}
				fmt.Fprintf(out, "Next question: %s\nWhy I ask: %s\n", next.Text, next.WhyNeeded)
				return nil
			})
		},
	}
}

func generate(cmd *cobra.Command, a *app.App, id string) error {
	t := newTail(a.Transcript, id, cmd.OutOrStdout(), true)
	stop := t.follow(followEvery)
	err := a.Orchestrator.GenerateAll(cmd.Context(), id)
	stop()
	return err
}

func newGenerateCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "generate ID",
		Short: "Generate every file of a project",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd, func(a *app.App) error {
				return generate(cmd, a, args[0])
			})
		},
	}
}

func newRegenerateCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "regenerate ID PATH",
		Short: "Regenerate a single file",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd, func(a *app.App) error {
				t := newTail(a.Transcript, args[0], cmd.OutOrStdout(), true)
				stop := t.follow(followEvery)
				err := a.Orchestrator.RegenerateFile(cmd.Context(), args[0], args[1])
				stop()
				return err
			})
		},
	}
}

func newListCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List projects, newest first",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return withApp(cmd, func(a *app.App) error {
				w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
				fmt.Fprintln(w, "ID\tNAME\tPHASE\tFILES\tCREATED")
				for _, p := range a.Orchestrator.List(cmd.Context()) {
					fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\n", p.ID, p.Name, p.Phase, fileSummary(p), p.CreatedAt.Format(time.RFC3339))
				}
				return w.Flush()
			})
		},
	}
}

func fileSummary(p types.Project) string {
	c := p.StatusCounts()
	return fmt.Sprintf("%d/%d done, %d failed", c[types.FileStatusCompleted], len(p.Files), c[types.FileStatusError])
}

func newShowCmd() *cobra.Command {
	var withContent bool
	cmd := &cobra.Command{
		Use:   "show ID",
		Short: "Show a project and its files",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd, func(a *app.App) error {
				p, err := a.Orchestrator.Project(cmd.Context(), args[0])
				if err != nil {
					return err
				}
				printProject(cmd.OutOrStdout(), p, withContent)
				return nil
			})
		},
	}
	cmd.Flags().BoolVar(&withContent, "content", false, "print generated file contents")
	return cmd
}

func printProject(out io.Writer, p types.Project, withContent bool) {
	fmt.Fprintf(out, "%s  %s\nphase: %s  files: %s\n\n", p.ID, p.Name, p.Phase, fileSummary(p))
	if q, ok := p.PendingQuestion(); ok && p.Phase == types.PhaseAwaitingAnswers {
		fmt.Fprintf(out, "pending question: %s\n\n", q.Text)
	}
	for _, f := range p.Files {
		fmt.Fprintf(out, "  %-12s %s", f.Status, f.Path)
		if f.Error != "" {
			fmt.Fprintf(out, "  (%s)", f.Error)
		}
		fmt.Fprintln(out)
		if withContent && f.Content != "" {
			fmt.Fprintf(out, "\n%s\n\n", f.Content)
		}
	}
}

func newDeleteCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "delete ID",
		Short: "Delete a project and its files",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd, func(a *app.App) error {
				return a.Orchestrator.Delete(cmd.Context(), args[0])
			})
		},
	}
}

func newExportCmd() *cobra.Command {
	var outDir string
	cmd := &cobra.Command{
		Use:   "export ID",
		Short: "Export completed files as a zip archive, or into a directory with --out",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd, func(a *app.App) error {
				p, err := a.Orchestrator.Project(cmd.Context(), args[0])
				if err != nil {
					return err
				}
				out := cmd.OutOrStdout()
				if outDir != "" {
					written, err := artifact.Materialize(p, outDir)
					for _, w := range written {
						fmt.Fprintln(out, w)
					}
					return err
				}
				if a.Exporter == nil {
					return errors.New("export is not configured")
				}
				loc, err := a.Exporter.Export(cmd.Context(), p)
				if err != nil {
					return err
				}
				fmt.Fprintf(out, "%s (%d bytes)\n", firstNonEmpty(loc.URL, loc.Key), loc.Size)
				return nil
			})
		},
	}
	cmd.Flags().StringVar(&outDir, "out", "", "write files into this directory instead of an archive")
	return cmd
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}
