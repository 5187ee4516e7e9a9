package application

import (
	"context"
	"io"

	onboarding "plant-onboarding/internal/onboarding/domain"
)

// Persisted keys, namespaced per session by the wizard.
const (
	StateKey = "onboarding_wizard_state"
	ThemeKey = "onboarding_theme"
)

// Store persists opaque blobs under string keys.
type Store interface {
	Load(ctx context.Context, key string) ([]byte, bool, error)
	Save(ctx context.Context, key string, value []byte) error
	Delete(ctx context.Context, key string) error
}

// Gateway is the platform backend consumed by the wizard.
type Gateway interface {
	FetchParameters(ctx context.Context, assetTypes []string) ([]onboarding.Parameter, error)
	ValidateFormula(ctx context.Context, expression string, enabledParameters []string) (onboarding.FormulaValidation, error)
	SuggestParameters(ctx context.Context, description string, assetTypes []string) (onboarding.SuggestionResult, error)
	ImportParameters(ctx context.Context, filename string, file io.Reader) (onboarding.ImportResult, error)
	ListTemplates(ctx context.Context) ([]onboarding.TemplateInfo, error)
	GetTemplate(ctx context.Context, id string) (onboarding.Template, error)
	SaveTemplate(ctx context.Context, req onboarding.TemplateSaveRequest) (onboarding.TemplateSaveResponse, error)
	DeleteTemplate(ctx context.Context, id string) error
	Submit(ctx context.Context, payload onboarding.SubmissionPayload) (onboarding.SubmissionResponse, error)
}

// SubmissionNotifier is told about accepted submissions.
type SubmissionNotifier interface {
	NotifySubmitted(ctx context.Context, payload onboarding.SubmissionPayload, resp onboarding.SubmissionResponse) error
}
