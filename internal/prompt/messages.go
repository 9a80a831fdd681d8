package prompt

import (
	"fmt"
	"strings"

	"deepbuild/internal/types"
)

// Transcript lines shown to the user while a project moves through its phases.

func Overview(b types.Brief) string {
	pb := b.Project
	var sb strings.Builder
	sb.WriteString("# Project Brief Overview\n\n")
	sb.WriteString("## App Summary\n")
	fmt.Fprintf(&sb, "**Purpose:** %s\n\n", pb.AppSummary.Purpose)
	fmt.Fprintf(&sb, "**Main Features:**\n%s\n\n", bullets(pb.AppSummary.MainFeatures))
	sb.WriteString("## Technical Stack\n")
	fmt.Fprintf(&sb, "- Technologies: %s\n", strings.Join(pb.TechnicalOutline.TechStack, ", "))
	fmt.Fprintf(&sb, "- Dependencies: %s\n\n", strings.Join(pb.TechnicalOutline.ExternalDependencies, ", "))
	sb.WriteString("## Implementation Notes\n")
	fmt.Fprintf(&sb, "**Starting Point:** %s\n\n", pb.ImplementationNotes.StartingPoint)
	fmt.Fprintf(&sb, "**Key Considerations:**\n%s\n\n", bullets(pb.ImplementationNotes.KeyConsiderations))
	fmt.Fprintf(&sb, "**Potential Challenges:**\n%s", bullets(pb.ImplementationNotes.PotentialChallenges))
	return sb.String()
}

func bullets(items []string) string {
	lines := make([]string, len(items))
	for i, it := range items {
		lines[i] = "- " + it
	}
	return strings.Join(lines, "\n")
}

func FirstQuestion(q types.Question) string {
	return fmt.Sprintf("Let's get started! I have a few questions to help me better understand your needs:\n\n%s\n\nWhy I ask: %s", q.Text, q.WhyNeeded)
}

func NextQuestion(q types.Question) string {
	return fmt.Sprintf("Thanks! Next question:\n\n%s\n\nWhy I ask: %s", q.Text, q.WhyNeeded)
}

const (
	AllAnswered = "Thanks for answering all the questions! I will start generating your project files now."
	NoQuestions = "I have everything I need. Start generation whenever you are ready."
)

func Generating(path string) string { return fmt.Sprintf("🔄 Generating implementation for %s...", path) }
func Generated(path string) string  { return fmt.Sprintf("✅ Successfully generated %s", path) }
func GenerateFailed(path string, err error) string {
	return fmt.Sprintf("❌ Error generating %s: %v", path, err)
}

func Regenerating(path string) string { return fmt.Sprintf("🔄 Regenerating file: %s...", path) }
func Regenerated(path string) string  { return fmt.Sprintf("✅ Successfully updated %s", path) }
func RegenerateFailed(path string, err error) string {
	return fmt.Sprintf("❌ Error regenerating %s: %v", path, err)
}

// Summary closes a generation run.
func Summary(completed, total int) string {
	if completed == total {
		return fmt.Sprintf("🎉 All %d files have been generated successfully!", total)
	}
	return fmt.Sprintf("⚠️ Generated %d of %d files. Files marked with an error can be regenerated individually.", completed, total)
}

// DroppedPath explains why a declared file will not be generated.
func DroppedPath(path string, err error) string {
	return fmt.Sprintf("⚠️ Skipping %q from the brief: %v", path, err)
}
