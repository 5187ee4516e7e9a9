package onboarding

import "encoding/json"

// ParameterConfig is a parameter as submitted to the backend.
type ParameterConfig struct {
	Name        string   `json:"name"`
	DisplayName string   `json:"display_name"`
	Unit        string   `json:"unit"`
	Category    Category `json:"category"`
	Section     string   `json:"section"`
}

// FormulaConfig is a formula as submitted to the backend.
type FormulaConfig struct {
	ParameterName string   `json:"parameter_name"`
	Expression    string   `json:"expression"`
	DependsOn     []string `json:"depends_on"`
}

// SubmissionPayload is the body of POST /api/onboarding.
type SubmissionPayload struct {
	Plant      PlantInfo         `json:"plant"`
	Assets     []Asset           `json:"assets"`
	Parameters []ParameterConfig `json:"parameters"`
	Formulas   []FormulaConfig   `json:"formulas"`
}

// SubmissionSummary is returned by the backend after onboarding.
type SubmissionSummary struct {
	PlantName     string `json:"plant_name"`
	NumAssets     int    `json:"num_assets"`
	NumParameters int    `json:"num_parameters"`
	NumFormulas   int    `json:"num_formulas"`
	SubmittedAt   string `json:"submitted_at"`
}

// SubmissionResponse is the body returned by POST /api/onboarding.
type SubmissionResponse struct {
	Status  string            `json:"status"`
	Message string            `json:"message"`
	Summary SubmissionSummary `json:"summary"`
}

// FormulaValidation is the validator's verdict on an expression.
type FormulaValidation struct {
	Valid     bool     `json:"valid"`
	DependsOn []string `json:"depends_on"`
	Error     *string  `json:"error"`
}

// SuggestionResult is returned by POST /api/suggest-parameters.
type SuggestionResult struct {
	Suggestions []Parameter `json:"suggestions"`
	Count       int         `json:"count"`
}

// ImportResult is returned by POST /api/import-parameters.
type ImportResult struct {
	Parameters []Parameter `json:"parameters"`
	Count      int         `json:"count"`
	Errors     []string    `json:"errors"`
}

// TemplateInfo is a template listing entry.
type TemplateInfo struct {
	ID          string `json:"id"`
	Name        string `json:"name"`
	Description string `json:"description"`
	CreatedAt   string `json:"created_at"`
}

// TemplateConfig is the stored wizard snapshot. Sections absent from a
// stored template decode as nil and are left untouched on load.
type TemplateConfig struct {
	Plant      *PlantInfo  `json:"plant,omitempty"`
	Assets     []Asset     `json:"assets"`
	Parameters []Parameter `json:"parameters"`
	Formulas   []Formula   `json:"formulas"`
}

// Template is a full stored template.
type Template struct {
	Name        string         `json:"name"`
	Description string         `json:"description"`
	Config      TemplateConfig `json:"config"`
}

// TemplateSaveRequest is the body of POST /api/templates.
type TemplateSaveRequest struct {
	Name        string         `json:"name"`
	Description string         `json:"description"`
	Config      TemplateConfig `json:"config"`
}

// TemplateSaveResponse is returned by POST /api/templates.
type TemplateSaveResponse struct {
	Status string `json:"status"`
	ID     string `json:"id"`
}

// MarshalIndent renders the payload the way the download file is written.
func (p SubmissionPayload) MarshalIndent() ([]byte, error) {
	return json.MarshalIndent(p, "", "  ")
}
