package application

import (
	"context"
	"errors"
	"io"
	"log"
	"sync"
	"testing"
	"time"

	onboarding "plant-onboarding/internal/onboarding/domain"
)

var errBackendDown = errors.New("backend down")

type memStore struct {
	mu     sync.Mutex
	data   map[string][]byte
	saves  int
	loadFn func(key string) ([]byte, bool, error)
}

func newMemStore() *memStore {
	return &memStore{data: make(map[string][]byte)}
}

func (s *memStore) Load(ctx context.Context, key string) ([]byte, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.loadFn != nil {
		return s.loadFn(key)
	}
	value, ok := s.data[key]
	if !ok {
		return nil, false, nil
	}
	return append([]byte(nil), value...), true, nil
}

func (s *memStore) Save(ctx context.Context, key string, value []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.data[key] = append([]byte(nil), value...)
	s.saves++
	return nil
}

func (s *memStore) Delete(ctx context.Context, key string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.data, key)
	return nil
}

func (s *memStore) saveCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.saves
}

type fakeGateway struct {
	mu sync.Mutex

	catalog    map[string][]onboarding.Parameter
	fetchErr   error
	fetchHook  func(types []string)
	fetchCalls [][]string

	validate      func(expression string, enabled []string) (onboarding.FormulaValidation, error)
	validateCalls []string

	suggestions []onboarding.Parameter
	suggestErr  error

	importResult onboarding.ImportResult
	importErr    error

	templates    map[string]onboarding.Template
	templateErr  error
	savedRequest *onboarding.TemplateSaveRequest

	submitErr error
	submitted []onboarding.SubmissionPayload
}

func newFakeGateway() *fakeGateway {
	return &fakeGateway{
		catalog:   make(map[string][]onboarding.Parameter),
		templates: make(map[string]onboarding.Template),
	}
}

func (g *fakeGateway) FetchParameters(ctx context.Context, assetTypes []string) ([]onboarding.Parameter, error) {
	g.mu.Lock()
	g.fetchCalls = append(g.fetchCalls, append([]string(nil), assetTypes...))
	hook := g.fetchHook
	g.mu.Unlock()
	if hook != nil {
		hook(assetTypes)
	}

	g.mu.Lock()
	defer g.mu.Unlock()
	if g.fetchErr != nil {
		return nil, g.fetchErr
	}
	var out []onboarding.Parameter
	seen := make(map[string]struct{})
	for _, assetType := range assetTypes {
		for _, p := range g.catalog[assetType] {
			if _, ok := seen[p.Name]; ok {
				continue
			}
			seen[p.Name] = struct{}{}
			out = append(out, p)
		}
	}
	return out, nil
}

func (g *fakeGateway) ValidateFormula(ctx context.Context, expression string, enabled []string) (onboarding.FormulaValidation, error) {
	g.mu.Lock()
	g.validateCalls = append(g.validateCalls, expression)
	fn := g.validate
	g.mu.Unlock()
	if fn == nil {
		return onboarding.FormulaValidation{Valid: true, DependsOn: enabled}, nil
	}
	return fn(expression, enabled)
}

func (g *fakeGateway) SuggestParameters(ctx context.Context, description string, assetTypes []string) (onboarding.SuggestionResult, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.suggestErr != nil {
		return onboarding.SuggestionResult{}, g.suggestErr
	}
	return onboarding.SuggestionResult{Suggestions: g.suggestions, Count: len(g.suggestions)}, nil
}

func (g *fakeGateway) ImportParameters(ctx context.Context, filename string, file io.Reader) (onboarding.ImportResult, error) {
	if _, err := io.ReadAll(file); err != nil {
		return onboarding.ImportResult{}, err
	}
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.importErr != nil {
		return onboarding.ImportResult{}, g.importErr
	}
	return g.importResult, nil
}

func (g *fakeGateway) ListTemplates(ctx context.Context) ([]onboarding.TemplateInfo, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.templateErr != nil {
		return nil, g.templateErr
	}
	out := make([]onboarding.TemplateInfo, 0, len(g.templates))
	for id, tmpl := range g.templates {
		out = append(out, onboarding.TemplateInfo{ID: id, Name: tmpl.Name, Description: tmpl.Description})
	}
	return out, nil
}

func (g *fakeGateway) GetTemplate(ctx context.Context, id string) (onboarding.Template, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.templateErr != nil {
		return onboarding.Template{}, g.templateErr
	}
	tmpl, ok := g.templates[id]
	if !ok {
		return onboarding.Template{}, errors.New("template not found")
	}
	return tmpl, nil
}

func (g *fakeGateway) SaveTemplate(ctx context.Context, req onboarding.TemplateSaveRequest) (onboarding.TemplateSaveResponse, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.templateErr != nil {
		return onboarding.TemplateSaveResponse{}, g.templateErr
	}
	g.savedRequest = &req
	g.templates["tpl-1"] = onboarding.Template{Name: req.Name, Description: req.Description, Config: req.Config}
	return onboarding.TemplateSaveResponse{Status: "saved", ID: "tpl-1"}, nil
}

func (g *fakeGateway) DeleteTemplate(ctx context.Context, id string) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.templateErr != nil {
		return g.templateErr
	}
	delete(g.templates, id)
	return nil
}

func (g *fakeGateway) Submit(ctx context.Context, payload onboarding.SubmissionPayload) (onboarding.SubmissionResponse, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.submitErr != nil {
		return onboarding.SubmissionResponse{}, g.submitErr
	}
	g.submitted = append(g.submitted, payload)
	return onboarding.SubmissionResponse{
		Status:  "success",
		Message: "Plant '" + payload.Plant.Name + "' onboarded successfully",
		Summary: onboarding.SubmissionSummary{
			PlantName:     payload.Plant.Name,
			NumAssets:     len(payload.Assets),
			NumParameters: len(payload.Parameters),
			NumFormulas:   len(payload.Formulas),
		},
	}, nil
}

func (g *fakeGateway) fetchCount() int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return len(g.fetchCalls)
}

func (g *fakeGateway) validateCount() int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return len(g.validateCalls)
}

func (g *fakeGateway) lastValidated() string {
	g.mu.Lock()
	defer g.mu.Unlock()
	if len(g.validateCalls) == 0 {
		return ""
	}
	return g.validateCalls[len(g.validateCalls)-1]
}

func quietLogger() *log.Logger {
	return log.New(io.Discard, "", 0)
}

func newTestWizard(t *testing.T, store Store, gateway Gateway, opts ...Option) *Wizard {
	t.Helper()
	opts = append([]Option{WithLogger(quietLogger())}, opts...)
	w, err := NewWizard("tenant-a/user-1", store, gateway, opts...)
	if err != nil {
		t.Fatalf("new wizard: %v", err)
	}
	w.Hydrate(context.Background())
	t.Cleanup(w.Close)
	return w
}

func waitFor(t *testing.T, timeout time.Duration, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("condition not met within %s", timeout)
}

func boilerCatalog() []onboarding.Parameter {
	return []onboarding.Parameter{
		{Name: "steam_flow", DisplayName: "Steam Flow", Unit: "t/h", Category: onboarding.CategoryOutput, Section: "Steam", ApplicableAssetTypes: []string{"boiler"}},
		{Name: "fuel_flow", DisplayName: "Fuel Flow", Unit: "kg/h", Category: onboarding.CategoryInput, Section: "Fuel", ApplicableAssetTypes: []string{"boiler"}},
		{Name: "boiler_efficiency", DisplayName: "Boiler Efficiency", Unit: "%", Category: onboarding.CategoryCalculated, Section: "KPI", ApplicableAssetTypes: []string{"boiler"}},
	}
}

func turbineCatalog() []onboarding.Parameter {
	return []onboarding.Parameter{
		{Name: "power_output", DisplayName: "Power Output", Unit: "MW", Category: onboarding.CategoryOutput, Section: "Electrical", ApplicableAssetTypes: []string{"turbine"}},
		{Name: "heat_rate", DisplayName: "Heat Rate", Unit: "kJ/kWh", Category: onboarding.CategoryCalculated, Section: "KPI", ApplicableAssetTypes: []string{"turbine"}},
	}
}
