package types

// Brief is the structured project specification produced from a user description.
// It mirrors the wire shape the model is asked to emit, so the same value is
// decoded from replies, persisted, and embedded back into implementation prompts.
type Brief struct {
	Project   ProjectBrief `json:"project_brief"`
	Questions []Question   `json:"clarifying_questions"`
}

type ProjectBrief struct {
	AppSummary          AppSummary          `json:"app_summary"`
	TechnicalOutline    TechnicalOutline    `json:"technical_outline"`
	ImplementationNotes ImplementationNotes `json:"implementation_notes"`
}

type AppSummary struct {
	Name         string   `json:"name"`
	Purpose      string   `json:"purpose"`
	MainFeatures []string `json:"main_features"`
}

type TechnicalOutline struct {
	TechStack            []string       `json:"tech_stack"`
	ExternalDependencies []string       `json:"external_dependencies"`
	BasicStructure       BasicStructure `json:"basic_structure"`
}

type BasicStructure struct {
	Files []FileEntry `json:"files"`
}

// FileEntry is one declared target file. The order of entries in a brief is
// the generation order.
type FileEntry struct {
	Path    string `json:"file"`
	Purpose string `json:"purpose"`
}

type ImplementationNotes struct {
	StartingPoint       string   `json:"starting_point"`
	KeyConsiderations   []string `json:"key_considerations"`
	PotentialChallenges []string `json:"potential_challenges"`
}

// Question is a clarifying question. Answers are keyed by Text.
type Question struct {
	Text      string `json:"question"`
	WhyNeeded string `json:"why_needed"`
}

// Files returns the declared file list in generation order.
func (b Brief) Files() []FileEntry {
	return b.Project.TechnicalOutline.BasicStructure.Files
}

// Name returns the app name, or "" when the model left it blank.
func (b Brief) Name() string {
	return b.Project.AppSummary.Name
}

// WithFiles returns a copy of b whose file list is replaced by files.
func (b Brief) WithFiles(files []FileEntry) Brief {
	out := b
	out.Project.TechnicalOutline.BasicStructure.Files = append([]FileEntry(nil), files...)
	return out
}
