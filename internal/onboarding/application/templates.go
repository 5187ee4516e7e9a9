package application

import (
	"context"
	"errors"
	"fmt"
	"strings"

	onboarding "plant-onboarding/internal/onboarding/domain"
)

// Template messages shown to the user.
const (
	TemplateSaveFailed   = "Failed to save template."
	TemplateLoadFailed   = "Failed to load template."
	TemplateDeleteFailed = "Failed to delete template."
	TemplateDeleted      = "Template deleted."
)

var (
	// ErrTemplateNameRequired indicates a save without a name.
	ErrTemplateNameRequired = errors.New("wizard: template name required")
	// ErrTemplateUnavailable wraps template backend failures.
	ErrTemplateUnavailable = errors.New("wizard: template service unavailable")
)

// TemplateOutcome carries the user-facing message of a template operation.
type TemplateOutcome struct {
	Message string `json:"message"`
	ID      string `json:"id,omitempty"`
}

// ListTemplates returns stored templates. Failures degrade to an empty list.
func (w *Wizard) ListTemplates(ctx context.Context) []onboarding.TemplateInfo {
	templates, err := w.gateway.ListTemplates(ctx)
	if err != nil {
		w.logger.Printf("template list failed: session=%s err=%v", w.session, err)
		return []onboarding.TemplateInfo{}
	}
	if templates == nil {
		templates = []onboarding.TemplateInfo{}
	}
	return templates
}

// SaveTemplate stores the full current state under name.
func (w *Wizard) SaveTemplate(ctx context.Context, name, description string) (TemplateOutcome, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return TemplateOutcome{}, ErrTemplateNameRequired
	}

	w.mu.Lock()
	state := w.state.Clone()
	w.mu.Unlock()

	plant := state.Plant
	req := onboarding.TemplateSaveRequest{
		Name:        name,
		Description: description,
		Config: onboarding.TemplateConfig{
			Plant:      &plant,
			Assets:     state.Assets,
			Parameters: state.Parameters,
			Formulas:   state.Formulas,
		},
	}
	resp, err := w.gateway.SaveTemplate(ctx, req)
	if err != nil {
		w.logger.Printf("template save failed: session=%s name=%s err=%v", w.session, name, err)
		return TemplateOutcome{Message: TemplateSaveFailed}, fmt.Errorf("%w: %v", ErrTemplateUnavailable, err)
	}
	return TemplateOutcome{Message: fmt.Sprintf("Template %q saved!", name), ID: resp.ID}, nil
}

// LoadTemplate applies the sections present in a stored template and
// returns to the first step.
func (w *Wizard) LoadTemplate(ctx context.Context, id string) (TemplateOutcome, error) {
	tmpl, err := w.gateway.GetTemplate(ctx, id)
	if err != nil {
		w.logger.Printf("template load failed: session=%s id=%s err=%v", w.session, id, err)
		return TemplateOutcome{Message: TemplateLoadFailed}, fmt.Errorf("%w: %v", ErrTemplateUnavailable, err)
	}

	cfg := tmpl.Config
	w.mu.Lock()
	if cfg.Plant != nil {
		w.state.Plant = *cfg.Plant
	}
	if cfg.Assets != nil {
		assets := make([]onboarding.Asset, 0, len(cfg.Assets))
		for _, asset := range cfg.Assets {
			if asset.Name == "" {
				asset.Name = onboarding.DeriveAssetName(asset.DisplayName)
			}
			assets = append(assets, asset)
		}
		w.state.Assets = assets
	}
	if cfg.Parameters != nil {
		params := make([]onboarding.Parameter, 0, len(cfg.Parameters))
		seen := make(map[string]struct{}, len(cfg.Parameters))
		for _, p := range cfg.Parameters {
			if _, dup := seen[p.Name]; dup {
				continue
			}
			seen[p.Name] = struct{}{}
			params = append(params, p)
		}
		w.state.Parameters = params
	}
	if cfg.Formulas != nil {
		for _, f := range w.state.Formulas {
			w.validations.cancel(f.ParameterName)
		}
		formulas := make([]onboarding.Formula, 0, len(cfg.Formulas))
		for _, f := range cfg.Formulas {
			if f.DependsOn == nil {
				f.DependsOn = []string{}
			}
			formulas = append(formulas, f)
		}
		w.state.Formulas = formulas
	}
	w.syncFormulasLocked()
	for _, f := range w.state.Formulas {
		if f.Pending() && strings.TrimSpace(f.Expression) != "" {
			w.validations.schedule(f.ParameterName, f.Expression)
		}
	}
	w.state.CurrentStep = onboarding.StepPlantInfo
	w.persistLocked(ctx)
	fetch := w.planRefetchLocked(false)
	w.mu.Unlock()

	if err := w.runRefetch(ctx, fetch); err != nil {
		w.logger.Printf("template catalog merge failed: session=%s id=%s err=%v", w.session, id, err)
	}
	return TemplateOutcome{Message: fmt.Sprintf("Template %q loaded!", tmpl.Name), ID: id}, nil
}

// DeleteTemplate removes a stored template.
func (w *Wizard) DeleteTemplate(ctx context.Context, id string) (TemplateOutcome, error) {
	if err := w.gateway.DeleteTemplate(ctx, id); err != nil {
		w.logger.Printf("template delete failed: session=%s id=%s err=%v", w.session, id, err)
		return TemplateOutcome{Message: TemplateDeleteFailed}, fmt.Errorf("%w: %v", ErrTemplateUnavailable, err)
	}
	return TemplateOutcome{Message: TemplateDeleted, ID: id}, nil
}
