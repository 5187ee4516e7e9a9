package notify

import (
	"bytes"
	"errors"
	"text/template"
)

const DefaultTemplate = `[Plant Onboarded]
Plant: {{.Plant}}
Address: {{.Address}}
{{- if .Manager}}
Manager: {{.Manager}}
{{- end}}
Assets: {{.NumAssets}}{{if .AssetNames}} ({{.AssetNames}}){{end}}
Parameters: {{.NumParameters}}
Formulas: {{.NumFormulas}}
Submitted At: {{.SubmittedAt}}
Message: {{.Message}}`

// TemplateData provides fields for rendering notification content.
type TemplateData struct {
	Plant         string
	Address       string
	Manager       string
	NumAssets     int
	AssetNames    string
	NumParameters int
	NumFormulas   int
	SubmittedAt   string
	Status        string
	Message       string
	Session       string
}

// Template renders notification content.
type Template struct {
	tpl *template.Template
}

// NewTemplate parses a notification template, falling back to DefaultTemplate.
func NewTemplate(tpl string) (*Template, error) {
	if tpl == "" {
		tpl = DefaultTemplate
	}
	parsed, err := template.New("onboarding-notification").Option("missingkey=error").Parse(tpl)
	if err != nil {
		return nil, err
	}
	return &Template{tpl: parsed}, nil
}

// Render applies the template to data.
func (t *Template) Render(data TemplateData) (string, error) {
	if t == nil || t.tpl == nil {
		return "", errors.New("notify template: nil")
	}
	var buf bytes.Buffer
	if err := t.tpl.Execute(&buf, data); err != nil {
		return "", err
	}
	return buf.String(), nil
}
