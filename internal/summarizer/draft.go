// Package summarizer asks the hosted preset to turn a thread transcript into
// an issue draft and validates what comes back.
package summarizer

import (
	"encoding/json"
	"fmt"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/invopop/jsonschema"
)

// Issue type names as configured on the tracker project screens.
const (
	IssueTypeBug  = "버그"
	IssueTypeTask = "작업"
)

const (
	EnvDev      = "dev(개발 서버)"
	EnvNextweek = "nextweek(테스트 서버)"
	EnvStaging  = "wwwtest(스테이징 서버)"
)

const dueDateLayout = "2006-01-02"

var (
	IssueTypes    = []string{IssueTypeBug, IssueTypeTask}
	Environments  = []string{EnvDev, EnvNextweek, EnvStaging}
	Priorities    = []string{"P1", "P2", "P3", "P4"}
	BugProperties = []string{
		"요구사항 미비",
		"잘못된 구현(기획 의도와 다르게 구현)",
		"설정 및 환경 관련 이슈",
		"인티그레이션 이슈",
		"그 외 개발적 오류",
		"디자인 QA 이슈",
		"리그레션 이슈",
		"운영 장애",
	}
)

// IssueDraft is the structured ticket the preset is asked to produce.
type IssueDraft struct {
	Summary     string   `json:"summary"`
	IssueType   string   `json:"issue_type"`
	Environment string   `json:"environment,omitempty"`
	Priority    string   `json:"priority,omitempty"`
	BugProperty []string `json:"bug_property,omitempty"`
	Description string   `json:"description,omitempty"`
	DueDate     string   `json:"due_date,omitempty"`
}

// IsBug reports whether the draft uses the bug screen.
func (d IssueDraft) IsBug() bool {
	return d.IssueType == IssueTypeBug
}

// JSONSchemaExtend fills descriptions and enums from the constants above so
// the schema and Problems never drift apart.
func (IssueDraft) JSONSchemaExtend(s *jsonschema.Schema) {
	describe := func(field, description string, enum []string) {
		prop, ok := s.Properties.Get(field)
		if !ok {
			return
		}
		prop.Description = description
		target := prop
		if prop.Type == "array" && prop.Items != nil {
			target = prop.Items
		}
		for _, v := range enum {
			target.Enum = append(target.Enum, v)
		}
	}

	describe("summary", "One-line summary of the issue.", nil)
	describe("issue_type", `Issue type. Must be exactly "버그" (bug) or "작업" (task).`, IssueTypes)
	describe("environment", `Environment the bug was found in. Required for bugs, default "dev(개발 서버)". Production issues use "wwwtest(스테이징 서버)".`, Environments)
	describe("priority", `Severity. Required for bugs, default "P3". P1 for crashes, install failures or outages. P2 for misbehaviour or UX problems needing a quick fix. P3 for ordinary bugs. P4 for cosmetic problems that do not affect usability.`, Priorities)
	describe("bug_property", "Every characteristic that applies to the bug. Required for bugs.", BugProperties)
	describe("description", "Details: what happened, impact, and steps to reproduce.", nil)
	describe("due_date", "Due date as YYYY-MM-DD, chosen according to priority.", nil)
	if prop, ok := s.Properties.Get("due_date"); ok {
		prop.Format = "date"
	}
}

// FormatInstructions is the JSON schema of IssueDraft handed to the preset.
// It is generated once per process.
var FormatInstructions = sync.OnceValue(func() string {
	reflector := jsonschema.Reflector{
		AllowAdditionalProperties: false,
		DoNotReference:            true,
	}
	schema := reflector.Reflect(&IssueDraft{})
	schema.Version = ""
	schema.ID = ""
	schema.Title = ""

	data, err := json.Marshal(schema)
	if err != nil {
		panic(fmt.Sprintf("marshal issue draft schema: %v", err))
	}
	return string(data)
})

// ParseError means the completion text was not a JSON object.
type ParseError struct {
	Raw string
	Err error
}

func (e *ParseError) Error() string {
	return fmt.Sprintf("completion is not valid JSON: %v", e.Err)
}

func (e *ParseError) Unwrap() error { return e.Err }

// ValidationError lists every rule the draft breaks.
type ValidationError struct {
	Raw      string
	Problems []string
}

func (e *ValidationError) Error() string {
	return "invalid issue draft: " + strings.Join(e.Problems, "; ")
}

// ParseDraft decodes completion text into a normalised and validated draft.
func ParseDraft(raw string) (IssueDraft, error) {
	var d IssueDraft
	if err := json.Unmarshal([]byte(stripCodeFence(raw)), &d); err != nil {
		return IssueDraft{}, &ParseError{Raw: raw, Err: err}
	}
	d.Normalize()
	if problems := d.Problems(); len(problems) > 0 {
		return IssueDraft{}, &ValidationError{Raw: raw, Problems: problems}
	}
	return d, nil
}

// Normalize trims fields and maps common environment aliases onto the enum.
// Values that match no alias are left alone so validation rejects them.
func (d *IssueDraft) Normalize() {
	d.Summary = strings.TrimSpace(d.Summary)
	d.IssueType = strings.TrimSpace(d.IssueType)
	d.Priority = strings.ToUpper(strings.TrimSpace(d.Priority))
	d.DueDate = strings.TrimSpace(d.DueDate)
	if d.Environment != "" && !slices.Contains(Environments, d.Environment) {
		if env, ok := environmentAlias(d.Environment); ok {
			d.Environment = env
		}
	}
}

// Problems returns the validation failures. Bugs must carry every field the
// bug screen marks as required.
func (d IssueDraft) Problems() []string {
	var problems []string
	if d.Summary == "" {
		problems = append(problems, "summary is empty")
	}
	if !slices.Contains(IssueTypes, d.IssueType) {
		problems = append(problems, fmt.Sprintf("issue_type %q is not one of %v", d.IssueType, IssueTypes))
	}

	if d.IsBug() {
		if d.Environment == "" {
			problems = append(problems, "environment is required for bugs")
		}
		if d.Priority == "" {
			problems = append(problems, "priority is required for bugs")
		}
		if len(d.BugProperty) == 0 {
			problems = append(problems, "bug_property is required for bugs")
		}
	}

	if d.Environment != "" && !slices.Contains(Environments, d.Environment) {
		problems = append(problems, fmt.Sprintf("environment %q is not one of %v", d.Environment, Environments))
	}
	if d.Priority != "" && !slices.Contains(Priorities, d.Priority) {
		problems = append(problems, fmt.Sprintf("priority %q is not one of %v", d.Priority, Priorities))
	}
	for _, p := range d.BugProperty {
		if !slices.Contains(BugProperties, p) {
			problems = append(problems, fmt.Sprintf("bug_property %q is not a known value", p))
		}
	}
	if d.DueDate != "" {
		if _, err := time.Parse(dueDateLayout, d.DueDate); err != nil {
			problems = append(problems, fmt.Sprintf("due_date %q is not YYYY-MM-DD", d.DueDate))
		}
	}
	return problems
}

func environmentAlias(env string) (string, bool) {
	env = strings.ToLower(env)
	switch {
	case strings.Contains(env, "dev"):
		return EnvDev, true
	case strings.Contains(env, "nextweek"), strings.Contains(env, "nw"):
		return EnvNextweek, true
	case strings.Contains(env, "www"):
		return EnvStaging, true
	}
	return "", false
}

func stripCodeFence(s string) string {
	s = strings.TrimSpace(s)
	if !strings.HasPrefix(s, "```") {
		return s
	}
	s = strings.TrimPrefix(s, "```")
	s = strings.TrimPrefix(s, "json")
	s = strings.TrimSuffix(strings.TrimSpace(s), "```")
	return strings.TrimSpace(s)
}
