package service

import (
	"bytes"
	"fmt"
	"text/template"

	"github.com/garyjia/record-workflow/internal/domain/event"
	"github.com/garyjia/record-workflow/internal/domain/kind"
)

var messageTemplates = map[event.Type]*template.Template{
	event.TypeItemSubmitted: template.Must(template.New("submitted").Parse(
		`[{{.Kind}}] {{.ID}} "{{.Title}}" was submitted by {{.SubmittedBy}}. Current status: {{.Status}}.`)),
	event.TypeItemAssigned: template.Must(template.New("assigned").Parse(
		`[{{.Kind}}] {{.ID}} "{{.Title}}" was assigned to {{.Assignee}} by {{.Actor}}.`)),
	event.TypeItemStatusChanged: template.Must(template.New("status_changed").Parse(
		`[{{.Kind}}] {{.ID}} "{{.Title}}" moved from {{.Previous}} to {{.Status}} by {{.Actor}}.{{if .Notes}} Notes: {{.Notes}}{{end}}`)),
	event.TypeItemResolved: template.Must(template.New("resolved").Parse(
		`[{{.Kind}}] {{.ID}} "{{.Title}}" is now {{.Status}} by {{.Actor}}.{{if .Summary}} Summary: {{.Summary}}{{end}}`)),
	event.TypeItemAutoApproved: template.Must(template.New("auto_approved").Parse(
		`[{{.Kind}}] {{.ID}} "{{.Title}}" was approved automatically.`)),
}

type messageData struct {
	Kind        string
	ID          string
	Title       string
	Status      string
	Previous    string
	SubmittedBy string
	Assignee    string
	Actor       string
	Notes       string
	Summary     string
}

// RenderMessage builds the text for a transition event from its item snapshot
func RenderMessage(evt *event.Event) (string, error) {
	tmpl, ok := messageTemplates[evt.Type]
	if !ok {
		return "", fmt.Errorf("no template for event type %s", evt.Type)
	}
	if evt.Item == nil {
		return "", fmt.Errorf("event %s carries no item", evt.ID)
	}

	item := evt.Item
	data := messageData{
		Kind:        item.Kind,
		ID:          item.ID,
		Title:       titleOf(item.Payload),
		Status:      item.Status,
		Previous:    evt.PreviousStatus,
		SubmittedBy: item.SubmittedBy.DisplayName(),
		Actor:       evt.Actor.DisplayName(),
	}
	if data.Title == "" {
		data.Title = item.ID
	}
	if item.AssignedTo != nil {
		data.Assignee = item.AssignedTo.DisplayName()
	}
	if last, ok := item.History.Last(); ok {
		data.Notes = last.Notes
	}
	if s, ok := item.Resolution[kind.FieldSummary].(string); ok {
		data.Summary = s
	}

	var buf bytes.Buffer
	if err := tmpl.Execute(&buf, data); err != nil {
		return "", fmt.Errorf("render %s: %w", evt.Type, err)
	}
	return buf.String(), nil
}

func titleOf(payload map[string]any) string {
	for _, key := range []string{"title", "customer_name"} {
		if s, ok := payload[key].(string); ok && s != "" {
			return s
		}
	}
	return ""
}
