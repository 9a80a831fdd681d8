package types

// ImplementationPayload is the decoded reply to a per-file implementation prompt.
type ImplementationPayload struct {
	ThoughtProcess ThoughtProcess `json:"thought_process"`
	AssistantReply string         `json:"assistant_reply"`
	FilesToCreate  []FileToCreate `json:"files_to_create"`
	FilesToEdit    []FileEdit     `json:"files_to_edit"`
}

type ThoughtProcess struct {
	ProblemAnalysis    string `json:"problem_analysis"`
	SolutionApproach   string `json:"solution_approach"`
	ImplementationPlan string `json:"implementation_plan"`
	PotentialIssues    string `json:"potential_issues"`
}

type FileToCreate struct {
	Path    string `json:"path"`
	Content string `json:"content"`
	Purpose string `json:"purpose"`
}

type FileEdit struct {
	Path            string `json:"path"`
	OriginalSnippet string `json:"original_snippet"`
	NewSnippet      string `json:"new_snippet"`
	ChangeReason    string `json:"change_reason"`
}

// CreatedFile returns the filesToCreate entry whose path equals path.
func (p ImplementationPayload) CreatedFile(path string) (FileToCreate, bool) {
	for _, f := range p.FilesToCreate {
		if f.Path == path {
			return f, true
		}
	}
	return FileToCreate{}, false
}

// EditedFile returns the filesToEdit entry whose path equals path.
func (p ImplementationPayload) EditedFile(path string) (FileEdit, bool) {
	for _, f := range p.FilesToEdit {
		if f.Path == path {
			return f, true
		}
	}
	return FileEdit{}, false
}
