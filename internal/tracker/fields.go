package tracker

import (
	"fmt"

	"github.com/its-the-vibe/JiraBolt/internal/summarizer"
)

const attributionFooter = "_이 이슈는 Wanted Jira Bolt로부터 자동 생성되었습니다._"

// FieldConfig names the project and the custom fields its screens require.
type FieldConfig struct {
	ProjectKey       string
	EnvironmentField string
	BugPropertyField string
}

// Participants are reporter and assignee in Jira account-id space.
type Participants struct {
	ReporterID string
	AssigneeID string
}

// WithBacklink returns a copy of the draft whose description ends with the
// thread link and the attribution footer. Call it once per draft.
func WithBacklink(d summarizer.IssueDraft, threadLink string) summarizer.IssueDraft {
	d.Description += fmt.Sprintf("\n\n*Slack Link*: %s\n%s", threadLink, attributionFooter)
	d.BugProperty = append([]string(nil), d.BugProperty...)
	return d
}

// BuildFields maps a validated draft onto the Jira create-issue field map.
// Bug-only custom fields appear only for bugs, optional fields only when set.
func BuildFields(d summarizer.IssueDraft, p Participants, cfg FieldConfig) map[string]any {
	fields := map[string]any{
		"project":     map[string]any{"key": cfg.ProjectKey},
		"reporter":    map[string]any{"accountId": p.ReporterID},
		"assignee":    map[string]any{"accountId": p.AssigneeID},
		"issuetype":   map[string]any{"name": d.IssueType},
		"summary":     d.Summary,
		"description": d.Description,
	}
	if d.DueDate != "" {
		fields["duedate"] = d.DueDate
	}

	if !d.IsBug() {
		return fields
	}

	if d.Priority != "" {
		fields["priority"] = map[string]any{"name": d.Priority}
	}
	if d.Environment != "" && cfg.EnvironmentField != "" {
		fields[cfg.EnvironmentField] = map[string]any{"value": d.Environment}
	}
	if len(d.BugProperty) > 0 && cfg.BugPropertyField != "" {
		values := make([]map[string]any, 0, len(d.BugProperty))
		for _, prop := range d.BugProperty {
			values = append(values, map[string]any{"value": prop})
		}
		fields[cfg.BugPropertyField] = values
	}
	return fields
}
