package application

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"os"
	"strings"
	"sync"
	"time"

	onboarding "plant-onboarding/internal/onboarding/domain"
	"plant-onboarding/internal/observability/metrics"
)

const (
	defaultDebounce        = 600 * time.Millisecond
	defaultValidateTimeout = 10 * time.Second
	hydrateTimeout         = 5 * time.Second

	// CatalogUnavailable is surfaced when the parameter catalog cannot be fetched.
	CatalogUnavailable = "Failed to fetch parameters"
)

var (
	// ErrCatalogUnavailable wraps parameter catalog fetch failures.
	ErrCatalogUnavailable = errors.New("wizard: parameter catalog unavailable")
	// ErrNoAssetTypes indicates a catalog refresh without any typed asset.
	ErrNoAssetTypes = errors.New("wizard: no asset types selected")
	// ErrHydrate reports that persisted state could not be read.
	ErrHydrate = errors.New("wizard: load persisted state")
)

// Option configures a Wizard.
type Option func(*Wizard)

// WithLogger sets the wizard logger.
func WithLogger(logger *log.Logger) Option {
	return func(w *Wizard) {
		if logger != nil {
			w.logger = logger
		}
	}
}

// WithDebounce sets the quiet period before a formula is validated.
func WithDebounce(delay time.Duration) Option {
	return func(w *Wizard) {
		if delay > 0 {
			w.debounce = delay
		}
	}
}

// WithValidateTimeout bounds a single validation call.
func WithValidateTimeout(timeout time.Duration) Option {
	return func(w *Wizard) {
		if timeout > 0 {
			w.validateTimeout = timeout
		}
	}
}

// WithAssetTypes overrides the asset type labels offered to clients.
func WithAssetTypes(options []onboarding.AssetTypeOption) Option {
	return func(w *Wizard) {
		if len(options) > 0 {
			w.assetTypes = options
		}
	}
}

// WithNotifier sets the submission notifier.
func WithNotifier(notifier SubmissionNotifier) Option {
	return func(w *Wizard) {
		w.notifier = notifier
	}
}

// Wizard owns one onboarding session. All edits, timer callbacks and
// backend responses are applied under mu; backend calls run outside it.
type Wizard struct {
	mu sync.Mutex

	session  string
	store    Store
	gateway  Gateway
	notifier SubmissionNotifier
	logger   *log.Logger

	debounce        time.Duration
	validateTimeout time.Duration
	validations     *debouncer
	assetTypes      []onboarding.AssetTypeOption

	state      onboarding.WizardState
	hydrated   bool
	retired    bool
	submitted  bool
	typesKey   string
	fetchGen   uint64
	catalogErr string
}

// NewWizard constructs a wizard for a session. Call Hydrate before use.
func NewWizard(session string, store Store, gateway Gateway, opts ...Option) (*Wizard, error) {
	if store == nil {
		return nil, errors.New("wizard: nil store")
	}
	if gateway == nil {
		return nil, errors.New("wizard: nil gateway")
	}
	session = strings.TrimSpace(session)
	if session == "" {
		session = DefaultSession
	}
	w := &Wizard{
		session:         session,
		store:           store,
		gateway:         gateway,
		logger:          log.New(os.Stdout, "", log.LstdFlags),
		debounce:        defaultDebounce,
		validateTimeout: defaultValidateTimeout,
		assetTypes:      onboarding.DefaultAssetTypes,
		state:           onboarding.InitialState(),
	}
	for _, opt := range opts {
		opt(w)
	}
	w.validations = newDebouncer(w.debounce, w.validateFormula)
	return w, nil
}

// Session returns the session namespace.
func (w *Wizard) Session() string {
	return w.session
}

func (w *Wizard) storeKey(key string) string {
	return w.session + "/" + key
}

// Hydrate loads persisted state once. Missing or corrupt state falls back
// to defaults. A failed load leaves the wizard unhydrated, so writes stay
// suppressed and the next call retries.
func (w *Wizard) Hydrate(ctx context.Context) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.hydrated || w.retired {
		return nil
	}

	// Detached from the caller so an aborted request cannot fail the load.
	loadCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), hydrateTimeout)
	defer cancel()

	state := onboarding.InitialState()
	data, ok, err := w.store.Load(loadCtx, w.storeKey(StateKey))
	switch {
	case err != nil:
		w.logger.Printf("wizard hydrate failed: session=%s err=%v", w.session, err)
		metrics.IncStoreLoad("error")
		return fmt.Errorf("%w: %v", ErrHydrate, err)
	case !ok:
		metrics.IncStoreLoad("empty")
	default:
		loaded := onboarding.InitialState()
		if err := json.Unmarshal(data, &loaded); err != nil {
			w.logger.Printf("wizard state corrupt, using defaults: session=%s err=%v", w.session, err)
			metrics.IncStoreLoad("corrupt")
		} else {
			loaded.Normalize()
			state = loaded
			metrics.IncStoreLoad("restored")
		}
	}

	w.state = state
	w.typesKey = strings.Join(onboarding.AssetTypeSet(state.Assets), ",")
	w.hydrated = true

	// Pending formulas lost their timers with the previous process.
	for _, f := range w.state.Formulas {
		if f.Pending() && strings.TrimSpace(f.Expression) != "" {
			w.validations.schedule(f.ParameterName, f.Expression)
		}
	}
	return nil
}

// Close stops pending validation timers and retires the wizard. A retired
// wizard no longer persists, so a replacement for the same session owns
// the stored state.
func (w *Wizard) Close() {
	w.mu.Lock()
	w.retired = true
	w.mu.Unlock()
	w.validations.close()
}

// Busy reports whether a formula validation is scheduled or awaiting a response.
func (w *Wizard) Busy() bool {
	return w.validations.pending() > 0
}

func (w *Wizard) persistLocked(ctx context.Context) {
	if !w.hydrated || w.retired {
		return
	}
	data, err := json.Marshal(w.state)
	if err != nil {
		w.logger.Printf("wizard persist encode failed: session=%s err=%v", w.session, err)
		metrics.IncStoreWrite(metrics.ResultError)
		return
	}
	if err := w.store.Save(ctx, w.storeKey(StateKey), data); err != nil {
		w.logger.Printf("wizard persist failed: session=%s err=%v", w.session, err)
		metrics.IncStoreWrite(metrics.ResultError)
		return
	}
	metrics.IncStoreWrite(metrics.ResultSuccess)
}

// State returns a copy of the current state.
func (w *Wizard) State() onboarding.WizardState {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.state.Clone()
}

// SetPlant replaces the plant section.
func (w *Wizard) SetPlant(ctx context.Context, plant onboarding.PlantInfo) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.state.Plant = plant
	w.persistLocked(ctx)
}

// SetAssets replaces the asset list, deriving names from display names.
// A change of the asset type set refetches and merges the catalog.
func (w *Wizard) SetAssets(ctx context.Context, assets []onboarding.Asset) error {
	normalized := make([]onboarding.Asset, 0, len(assets))
	for _, asset := range assets {
		if asset.AssetType != "" && !onboarding.IsValidAssetType(asset.AssetType) {
			return fmt.Errorf("%w: %s", onboarding.ErrInvalidAssetType, asset.AssetType)
		}
		asset.Name = onboarding.DeriveAssetName(asset.DisplayName)
		normalized = append(normalized, asset)
	}

	w.mu.Lock()
	w.state.Assets = normalized
	w.persistLocked(ctx)
	fetch := w.planRefetchLocked(false)
	w.mu.Unlock()

	w.runRefetch(ctx, fetch)
	return nil
}

// AddAsset appends a blank asset row.
func (w *Wizard) AddAsset(ctx context.Context) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.state.Assets = append(w.state.Assets, onboarding.Asset{})
	w.persistLocked(ctx)
}

// UpdateAsset edits one asset. A display name change re-derives the name.
func (w *Wizard) UpdateAsset(ctx context.Context, index int, displayName *string, assetType *onboarding.AssetType) error {
	if assetType != nil && *assetType != "" && !onboarding.IsValidAssetType(*assetType) {
		return fmt.Errorf("%w: %s", onboarding.ErrInvalidAssetType, *assetType)
	}

	w.mu.Lock()
	if index < 0 || index >= len(w.state.Assets) {
		w.mu.Unlock()
		return onboarding.ErrAssetNotFound
	}
	assets := append([]onboarding.Asset{}, w.state.Assets...)
	if displayName != nil {
		assets[index].DisplayName = *displayName
		assets[index].Name = onboarding.DeriveAssetName(*displayName)
	}
	if assetType != nil {
		assets[index].AssetType = *assetType
	}
	w.state.Assets = assets
	w.persistLocked(ctx)
	fetch := w.planRefetchLocked(false)
	w.mu.Unlock()

	w.runRefetch(ctx, fetch)
	return nil
}

// RemoveAsset deletes the asset at index.
func (w *Wizard) RemoveAsset(ctx context.Context, index int) error {
	w.mu.Lock()
	if index < 0 || index >= len(w.state.Assets) {
		w.mu.Unlock()
		return onboarding.ErrAssetNotFound
	}
	assets := make([]onboarding.Asset, 0, len(w.state.Assets)-1)
	assets = append(assets, w.state.Assets[:index]...)
	assets = append(assets, w.state.Assets[index+1:]...)
	w.state.Assets = assets
	w.persistLocked(ctx)
	fetch := w.planRefetchLocked(false)
	w.mu.Unlock()

	w.runRefetch(ctx, fetch)
	return nil
}

// RefreshParameters refetches the catalog for the current asset types even
// when the type set did not change.
func (w *Wizard) RefreshParameters(ctx context.Context) error {
	w.mu.Lock()
	fetch := w.planRefetchLocked(true)
	w.mu.Unlock()
	if fetch == nil {
		return ErrNoAssetTypes
	}
	return w.runRefetch(ctx, fetch)
}

type refetch struct {
	gen   uint64
	types []string
}

func (w *Wizard) planRefetchLocked(force bool) *refetch {
	types := onboarding.AssetTypeSet(w.state.Assets)
	key := strings.Join(types, ",")
	if !force && key == w.typesKey {
		return nil
	}
	w.typesKey = key
	w.fetchGen++
	if len(types) == 0 {
		return nil
	}
	return &refetch{gen: w.fetchGen, types: types}
}

func (w *Wizard) runRefetch(ctx context.Context, fetch *refetch) error {
	if fetch == nil {
		return nil
	}
	fetched, err := w.gateway.FetchParameters(ctx, fetch.types)

	w.mu.Lock()
	defer w.mu.Unlock()
	if fetch.gen != w.fetchGen {
		w.logger.Printf("wizard catalog response discarded: session=%s types=%s", w.session, strings.Join(fetch.types, ","))
		return nil
	}
	if err != nil {
		// Allow the next asset edit to retry the same type set.
		w.typesKey = ""
		w.catalogErr = CatalogUnavailable
		w.logger.Printf("wizard catalog fetch failed: session=%s err=%v", w.session, err)
		return fmt.Errorf("%w: %v", ErrCatalogUnavailable, err)
	}
	w.catalogErr = ""
	w.state.Parameters = MergeParameters(w.state.Parameters, fetched)
	w.syncFormulasLocked()
	w.persistLocked(ctx)
	return nil
}

// SetParameters replaces the parameter collection.
func (w *Wizard) SetParameters(ctx context.Context, parameters []onboarding.Parameter) error {
	for _, p := range parameters {
		if !onboarding.IsValidCategory(p.Category) {
			return fmt.Errorf("%w: %s", onboarding.ErrInvalidCategory, p.Category)
		}
	}
	w.mu.Lock()
	defer w.mu.Unlock()
	next := make([]onboarding.Parameter, 0, len(parameters))
	seen := make(map[string]struct{}, len(parameters))
	for _, p := range parameters {
		if _, dup := seen[p.Name]; dup {
			continue
		}
		seen[p.Name] = struct{}{}
		p.ApplicableAssetTypes = append([]string(nil), p.ApplicableAssetTypes...)
		next = append(next, p)
	}
	w.state.Parameters = next
	w.syncFormulasLocked()
	w.persistLocked(ctx)
	return nil
}

// ToggleParameter flips the enabled flag of a parameter.
func (w *Wizard) ToggleParameter(ctx context.Context, name string) (bool, error) {
	w.mu.Lock()
	defer w.mu.Unlock()
	idx := parameterIndex(w.state.Parameters, name)
	if idx < 0 {
		return false, onboarding.ErrParameterNotFound
	}
	params := append([]onboarding.Parameter{}, w.state.Parameters...)
	params[idx].Enabled = !params[idx].Enabled
	w.state.Parameters = params
	w.syncFormulasLocked()
	w.persistLocked(ctx)
	return params[idx].Enabled, nil
}

// UpdateParameter applies unit, category or section overrides.
func (w *Wizard) UpdateParameter(ctx context.Context, name string, override onboarding.ParameterOverride) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	idx := parameterIndex(w.state.Parameters, name)
	if idx < 0 {
		return onboarding.ErrParameterNotFound
	}
	params := append([]onboarding.Parameter{}, w.state.Parameters...)
	if err := applyOverride(&params[idx], override); err != nil {
		return err
	}
	w.state.Parameters = params
	w.syncFormulasLocked()
	w.persistLocked(ctx)
	return nil
}

// AcceptParameters appends parameters not yet present, enabled.
func (w *Wizard) AcceptParameters(ctx context.Context, parameters []onboarding.Parameter) int {
	w.mu.Lock()
	defer w.mu.Unlock()
	next, added := AppendNewParameters(w.state.Parameters, parameters)
	if added == 0 {
		return 0
	}
	w.state.Parameters = next
	w.syncFormulasLocked()
	w.persistLocked(ctx)
	return added
}

func (w *Wizard) syncFormulasLocked() {
	next, changed := SyncFormulas(w.state.Formulas, w.state.Parameters)
	if !changed {
		return
	}
	keep := make(map[string]struct{}, len(next))
	for _, f := range next {
		keep[f.ParameterName] = struct{}{}
	}
	for _, f := range w.state.Formulas {
		if _, ok := keep[f.ParameterName]; !ok {
			w.validations.cancel(f.ParameterName)
		}
	}
	w.state.Formulas = next
}

// SetFormulaExpression records an edit and schedules debounced validation.
func (w *Wizard) SetFormulaExpression(ctx context.Context, parameterName, expression string) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	idx := formulaIndex(w.state.Formulas, parameterName)
	if idx < 0 {
		return onboarding.ErrFormulaNotFound
	}
	formulas := append([]onboarding.Formula{}, w.state.Formulas...)
	formulas[idx].Expression = expression
	formulas[idx].Valid = nil
	formulas[idx].Error = ""
	w.state.Formulas = formulas
	w.validations.schedule(parameterName, expression)
	w.persistLocked(ctx)
	return nil
}

func (w *Wizard) validateFormula(parameterName, expression string, seq uint64) {
	w.mu.Lock()
	enabled := onboarding.EnabledParameterNames(w.state.Parameters)
	w.mu.Unlock()

	ctx, cancel := context.WithTimeout(context.Background(), w.validateTimeout)
	defer cancel()
	result, err := w.gateway.ValidateFormula(ctx, expression, enabled)

	w.mu.Lock()
	defer w.mu.Unlock()
	defer w.validations.finish(parameterName, seq)

	if !w.validations.current(parameterName, seq) {
		metrics.IncFormulaValidation(metrics.ResultStale)
		return
	}
	idx := formulaIndex(w.state.Formulas, parameterName)
	if idx < 0 {
		return
	}
	formulas := append([]onboarding.Formula{}, w.state.Formulas...)
	f := &formulas[idx]
	if err != nil {
		w.logger.Printf("formula validation failed: session=%s parameter=%s err=%v", w.session, parameterName, err)
		f.Valid = onboarding.Bool(false)
		f.Error = onboarding.ValidationUnavailable
		metrics.IncFormulaValidation("unavailable")
	} else {
		f.Valid = onboarding.Bool(result.Valid)
		f.DependsOn = append([]string{}, result.DependsOn...)
		f.Error = ""
		if result.Error != nil {
			f.Error = *result.Error
		}
		if result.Valid {
			metrics.IncFormulaValidation("valid")
		} else {
			metrics.IncFormulaValidation("invalid")
		}
	}
	w.state.Formulas = formulas
	w.persistLocked(context.Background())
}

// Advance moves forward when the current step's gate passes.
func (w *Wizard) Advance(ctx context.Context) bool {
	w.mu.Lock()
	defer w.mu.Unlock()
	next, ok := nextStep(w.state)
	if !ok {
		metrics.IncTransition("advance", metrics.ResultIgnored)
		return false
	}
	w.state.CurrentStep = next
	w.persistLocked(ctx)
	metrics.IncTransition("advance", metrics.ResultSuccess)
	return true
}

// Retreat moves back, mirroring the formulas skip.
func (w *Wizard) Retreat(ctx context.Context) bool {
	w.mu.Lock()
	defer w.mu.Unlock()
	prev, ok := prevStep(w.state)
	if !ok {
		metrics.IncTransition("retreat", metrics.ResultIgnored)
		return false
	}
	w.state.CurrentStep = prev
	w.persistLocked(ctx)
	metrics.IncTransition("retreat", metrics.ResultSuccess)
	return true
}

// JumpTo navigates to a completed step or any step at or before the
// current one. Other targets are ignored.
func (w *Wizard) JumpTo(ctx context.Context, step onboarding.Step) (bool, error) {
	if !step.Valid() {
		return false, onboarding.ErrInvalidStep
	}
	w.mu.Lock()
	defer w.mu.Unlock()
	if !canJump(w.state, step) {
		metrics.IncTransition("jump", metrics.ResultIgnored)
		return false, nil
	}
	w.state.CurrentStep = step
	w.persistLocked(ctx)
	metrics.IncTransition("jump", metrics.ResultSuccess)
	return true, nil
}

// Reset discards the session and starts over from defaults.
func (w *Wizard) Reset(ctx context.Context) {
	w.mu.Lock()
	defer w.mu.Unlock()
	for _, f := range w.state.Formulas {
		w.validations.cancel(f.ParameterName)
	}
	if err := w.store.Delete(ctx, w.storeKey(StateKey)); err != nil {
		w.logger.Printf("wizard reset delete failed: session=%s err=%v", w.session, err)
	}
	w.state = onboarding.InitialState()
	w.typesKey = ""
	w.fetchGen++
	w.catalogErr = ""
	w.submitted = false
	w.persistLocked(ctx)
	metrics.IncTransition("reset", metrics.ResultSuccess)
}

// Snapshot is the read model served to the presentation layer.
type Snapshot struct {
	State              onboarding.WizardState       `json:"state"`
	StepLabel          string                       `json:"step_label"`
	Steps              []string                     `json:"steps"`
	Completed          [onboarding.StepCount]bool   `json:"completed"`
	CanAdvance         bool                         `json:"can_advance"`
	HasCalculated      bool                         `json:"has_calculated"`
	PendingValidations int                          `json:"pending_validations"`
	PlantErrors        map[string]string            `json:"plant_errors"`
	DuplicateAssets    []string                     `json:"duplicate_assets"`
	AssetTypes         []onboarding.AssetTypeOption `json:"asset_types"`
	CatalogError       string                       `json:"catalog_error,omitempty"`
	Submitted          bool                         `json:"submitted"`
}

// Snapshot returns the current read model.
func (w *Wizard) Snapshot() Snapshot {
	w.mu.Lock()
	defer w.mu.Unlock()
	state := w.state.Clone()

	duplicated := onboarding.DuplicateAssetNames(state.Assets)
	dupes := make([]string, 0, len(duplicated))
	for _, asset := range state.Assets {
		name := onboarding.NormalizedAssetName(asset.Name)
		if _, ok := duplicated[name]; ok && !containsString(dupes, name) {
			dupes = append(dupes, name)
		}
	}

	return Snapshot{
		State:              state,
		StepLabel:          state.CurrentStep.String(),
		Steps:              onboarding.StepLabels(),
		Completed:          CompletedSteps(state),
		CanAdvance:         CanAdvance(state),
		HasCalculated:      onboarding.HasCalculatedParams(state.Parameters),
		PendingValidations: w.validations.pending(),
		PlantErrors:        state.Plant.FieldErrors(),
		DuplicateAssets:    dupes,
		AssetTypes:         w.assetTypes,
		CatalogError:       w.catalogErr,
		Submitted:          w.submitted,
	}
}

func containsString(values []string, target string) bool {
	for _, v := range values {
		if v == target {
			return true
		}
	}
	return false
}
