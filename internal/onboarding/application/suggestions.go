package application

import (
	"context"
	"fmt"
	"io"

	onboarding "plant-onboarding/internal/onboarding/domain"
)

// ImportFailed is reported as the only row error when the upload fails.
const ImportFailed = "Failed to import file. Make sure the backend is running."

// Suggest asks the backend for parameters matching the plant description
// and current asset types, dropping names already in the collection.
// Failures degrade to no suggestions.
func (w *Wizard) Suggest(ctx context.Context) []onboarding.Parameter {
	w.mu.Lock()
	description := w.state.Plant.Description
	types := onboarding.AssetTypeSet(w.state.Assets)
	w.mu.Unlock()

	result, err := w.gateway.SuggestParameters(ctx, description, types)
	if err != nil {
		w.logger.Printf("parameter suggest failed: session=%s err=%v", w.session, err)
		return []onboarding.Parameter{}
	}

	w.mu.Lock()
	defer w.mu.Unlock()
	return FilterNewParameters(w.state.Parameters, result.Suggestions)
}

// ImportOutcome reports a CSV import.
type ImportOutcome struct {
	Count  int      `json:"count"`
	Added  int      `json:"added"`
	Errors []string `json:"errors"`
}

// ImportParameters forwards an uploaded file to the backend and appends the
// parsed parameters not yet present, enabled.
func (w *Wizard) ImportParameters(ctx context.Context, filename string, file io.Reader) (ImportOutcome, error) {
	result, err := w.gateway.ImportParameters(ctx, filename, file)
	if err != nil {
		w.logger.Printf("parameter import failed: session=%s file=%s err=%v", w.session, filename, err)
		return ImportOutcome{Errors: []string{ImportFailed}}, fmt.Errorf("wizard: import: %w", err)
	}
	errs := result.Errors
	if errs == nil {
		errs = []string{}
	}
	added := w.AcceptParameters(ctx, result.Parameters)
	return ImportOutcome{Count: result.Count, Added: added, Errors: errs}, nil
}
