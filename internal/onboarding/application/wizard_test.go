package application

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"testing"
	"time"

	onboarding "plant-onboarding/internal/onboarding/domain"
)

func validPlant() onboarding.PlantInfo {
	return onboarding.PlantInfo{Name: "P", Address: "A", ManagerEmail: "m@e.co"}
}

func TestWizard_EndToEndSkipsFormulasAndSubmits(t *testing.T) {
	ctx := context.Background()
	gateway := newFakeGateway()
	gateway.catalog["boiler"] = boilerCatalog()
	w := newTestWizard(t, newMemStore(), gateway)

	if w.Advance(ctx) {
		t.Fatalf("advance must be blocked with an empty plant")
	}
	w.SetPlant(ctx, validPlant())
	if !w.Advance(ctx) {
		t.Fatalf("expected advance to assets")
	}

	if err := w.SetAssets(ctx, []onboarding.Asset{{DisplayName: "Boiler 1", AssetType: onboarding.AssetTypeBoiler}}); err != nil {
		t.Fatalf("set assets: %v", err)
	}
	if gateway.fetchCount() != 1 {
		t.Fatalf("expected one catalog fetch, got %d", gateway.fetchCount())
	}
	if !w.Advance(ctx) {
		t.Fatalf("expected advance to parameters")
	}

	state := w.State()
	if len(state.Parameters) != 3 {
		t.Fatalf("expected catalog parameters, got %d", len(state.Parameters))
	}
	for _, p := range state.Parameters {
		if p.Enabled {
			t.Fatalf("fetched parameter %s must default to disabled", p.Name)
		}
	}
	if w.Advance(ctx) {
		t.Fatalf("advance must be blocked with no enabled parameter")
	}
	if _, err := w.ToggleParameter(ctx, "steam_flow"); err != nil {
		t.Fatalf("toggle: %v", err)
	}
	if !w.Advance(ctx) {
		t.Fatalf("expected advance from parameters")
	}
	if got := w.State().CurrentStep; got != onboarding.StepReview {
		t.Fatalf("expected review step, got %s", got)
	}

	outcome, err := w.Submit(ctx)
	if err != nil {
		t.Fatalf("submit: %v", err)
	}
	if !strings.Contains(outcome.Message, "onboarded") {
		t.Fatalf("unexpected message: %q", outcome.Message)
	}
	if len(gateway.submitted) != 1 {
		t.Fatalf("expected one submission")
	}
	payload := gateway.submitted[0]
	if payload.Plant != validPlant() {
		t.Fatalf("unexpected plant: %+v", payload.Plant)
	}
	if len(payload.Assets) != 1 || payload.Assets[0].Name != "boiler_1" || payload.Assets[0].AssetType != onboarding.AssetTypeBoiler {
		t.Fatalf("unexpected assets: %+v", payload.Assets)
	}
	if len(payload.Parameters) != 1 || payload.Parameters[0].Name != "steam_flow" {
		t.Fatalf("unexpected parameters: %+v", payload.Parameters)
	}
	data, err := json.Marshal(payload)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	if strings.Contains(string(data), `"enabled"`) {
		t.Fatalf("payload leaks enabled: %s", data)
	}
	if !w.Snapshot().Submitted {
		t.Fatalf("expected submitted flag")
	}
}

func TestWizard_CalculatedParameterRoutesThroughFormulas(t *testing.T) {
	ctx := context.Background()
	gateway := newFakeGateway()
	gateway.catalog["boiler"] = boilerCatalog()
	w := newTestWizard(t, newMemStore(), gateway)

	w.SetPlant(ctx, validPlant())
	w.Advance(ctx)
	_ = w.SetAssets(ctx, []onboarding.Asset{{DisplayName: "Boiler 1", AssetType: onboarding.AssetTypeBoiler}})
	w.Advance(ctx)
	_, _ = w.ToggleParameter(ctx, "boiler_efficiency")

	if !w.Advance(ctx) || w.State().CurrentStep != onboarding.StepFormulas {
		t.Fatalf("expected formulas step, got %s", w.State().CurrentStep)
	}
	if w.Advance(ctx) {
		t.Fatalf("advance must be blocked while the formula is pending")
	}
	if !w.Retreat(ctx) || w.State().CurrentStep != onboarding.StepParameters {
		t.Fatalf("expected retreat to parameters")
	}
}

func TestWizard_RetreatFromReviewMirrorsSkip(t *testing.T) {
	ctx := context.Background()
	store := newMemStore()
	state := onboarding.InitialState()
	state.Plant = validPlant()
	state.Assets = []onboarding.Asset{{Name: "boiler_1", DisplayName: "Boiler 1", AssetType: onboarding.AssetTypeBoiler}}
	state.Parameters = []onboarding.Parameter{{Name: "steam_flow", Category: onboarding.CategoryOutput, Enabled: true}}
	state.CurrentStep = onboarding.StepReview
	data, _ := json.Marshal(state)
	store.data["tenant-a/user-1/"+StateKey] = data

	w := newTestWizard(t, store, newFakeGateway())
	if !w.Retreat(ctx) {
		t.Fatalf("expected retreat")
	}
	if got := w.State().CurrentStep; got != onboarding.StepParameters {
		t.Fatalf("expected parameters step, got %s", got)
	}
	w.Retreat(ctx)
	w.Retreat(ctx)
	if w.Retreat(ctx) {
		t.Fatalf("retreat at plant info must be a no-op")
	}
	if w.State().CurrentStep != onboarding.StepPlantInfo {
		t.Fatalf("expected plant info")
	}
}

func TestWizard_AdvanceNoOpAtReview(t *testing.T) {
	ctx := context.Background()
	store := newMemStore()
	state := onboarding.InitialState()
	state.CurrentStep = onboarding.StepReview
	data, _ := json.Marshal(state)
	store.data["tenant-a/user-1/"+StateKey] = data

	w := newTestWizard(t, store, newFakeGateway())
	if w.Advance(ctx) {
		t.Fatalf("advance at review must be a no-op")
	}
}

func TestWizard_JumpTo(t *testing.T) {
	ctx := context.Background()
	w := newTestWizard(t, newMemStore(), newFakeGateway())

	if ok, _ := w.JumpTo(ctx, onboarding.StepAssets); ok {
		t.Fatalf("jump ahead into an incomplete step must be ignored")
	}
	w.SetPlant(ctx, validPlant())
	if ok, _ := w.JumpTo(ctx, onboarding.StepPlantInfo); !ok {
		t.Fatalf("jump to current step should be allowed")
	}
	if ok, _ := w.JumpTo(ctx, onboarding.StepAssets); ok {
		t.Fatalf("assets are not completed yet")
	}
	w.Advance(ctx)
	if ok, _ := w.JumpTo(ctx, onboarding.StepPlantInfo); !ok {
		t.Fatalf("jump back should be allowed")
	}
	if ok, _ := w.JumpTo(ctx, onboarding.StepReview); ok {
		t.Fatalf("review is never completed")
	}
	if _, err := w.JumpTo(ctx, onboarding.Step(7)); err != onboarding.ErrInvalidStep {
		t.Fatalf("expected ErrInvalidStep, got %v", err)
	}
}

func TestWizard_CompletedVector(t *testing.T) {
	state := onboarding.InitialState()
	state.Plant = validPlant()
	state.Parameters = []onboarding.Parameter{{Name: "a", Category: onboarding.CategoryOutput, Enabled: true}}
	completed := CompletedSteps(state)
	want := [onboarding.StepCount]bool{true, false, true, true, false}
	if completed != want {
		t.Fatalf("completed = %v, want %v", completed, want)
	}
}

func TestWizard_WritesSuppressedBeforeHydration(t *testing.T) {
	ctx := context.Background()
	store := newMemStore()
	w, err := NewWizard("s1", store, newFakeGateway(), WithLogger(quietLogger()))
	if err != nil {
		t.Fatalf("new wizard: %v", err)
	}
	defer w.Close()

	w.SetPlant(ctx, validPlant())
	if store.saveCount() != 0 {
		t.Fatalf("expected no writes before hydration, got %d", store.saveCount())
	}
	w.Hydrate(ctx)
	w.SetPlant(ctx, validPlant())
	if store.saveCount() != 1 {
		t.Fatalf("expected one write after hydration, got %d", store.saveCount())
	}
	if _, ok := store.data["s1/"+StateKey]; !ok {
		t.Fatalf("expected namespaced state key")
	}
}

func TestWizard_HydrateRestoresAndFallsBack(t *testing.T) {
	ctx := context.Background()
	store := newMemStore()
	first := newTestWizard(t, store, newFakeGateway())
	first.SetPlant(ctx, validPlant())
	first.Advance(ctx)

	second := newTestWizard(t, store, newFakeGateway())
	state := second.State()
	if state.Plant != validPlant() || state.CurrentStep != onboarding.StepAssets {
		t.Fatalf("state not restored: %+v", state)
	}

	store.data["tenant-a/user-1/"+StateKey] = []byte("{not json")
	third := newTestWizard(t, store, newFakeGateway())
	if got := third.State(); got.Plant != onboarding.DefaultPlant() || got.CurrentStep != onboarding.StepPlantInfo || got.Assets == nil {
		t.Fatalf("expected defaults after corrupt state, got %+v", got)
	}

	store.loadFn = func(string) ([]byte, bool, error) { return nil, false, errBackendDown }
	fourth, err := NewWizard("tenant-a/user-1", store, newFakeGateway(), WithLogger(quietLogger()))
	if err != nil {
		t.Fatalf("new wizard: %v", err)
	}
	defer fourth.Close()
	if err := fourth.Hydrate(ctx); !errors.Is(err, ErrHydrate) {
		t.Fatalf("expected ErrHydrate, got %v", err)
	}
}

// ctxStore fails loads whose context is already done.
type ctxStore struct {
	*memStore
}

func (s ctxStore) Load(ctx context.Context, key string) ([]byte, bool, error) {
	if err := ctx.Err(); err != nil {
		return nil, false, err
	}
	return s.memStore.Load(ctx, key)
}

func savedProgress(t *testing.T, store Store) {
	t.Helper()
	ctx := context.Background()
	w := newTestWizard(t, store, newFakeGateway())
	w.SetPlant(ctx, onboarding.PlantInfo{Name: "Saved Plant", Address: "A", ManagerEmail: "m@e.co"})
	if !w.Advance(ctx) {
		t.Fatalf("expected advance")
	}
}

func TestSessions_LoadFailureKeepsSavedState(t *testing.T) {
	ctx := context.Background()
	store := newMemStore()
	savedProgress(t, store)
	saved := string(store.data["tenant-a/user-1/"+StateKey])

	failures := 1
	store.loadFn = func(key string) ([]byte, bool, error) {
		if failures > 0 {
			failures--
			return nil, false, errBackendDown
		}
		value, ok := store.data[key]
		return value, ok, nil
	}
	sessions, err := NewSessions(store, newFakeGateway(), WithLogger(quietLogger()))
	if err != nil {
		t.Fatalf("new sessions: %v", err)
	}
	defer sessions.Close()

	if _, err := sessions.Get(ctx, "tenant-a/user-1"); !errors.Is(err, ErrHydrate) {
		t.Fatalf("expected ErrHydrate, got %v", err)
	}
	sessions.wizards["tenant-a/user-1"].SetPlant(ctx, onboarding.PlantInfo{Description: "x"})
	if got := string(store.data["tenant-a/user-1/"+StateKey]); got != saved {
		t.Fatalf("saved state overwritten after failed load: %s", got)
	}

	w, err := sessions.Get(ctx, "tenant-a/user-1")
	if err != nil {
		t.Fatalf("retry: %v", err)
	}
	state := w.State()
	if state.Plant.Name != "Saved Plant" || state.CurrentStep != onboarding.StepAssets {
		t.Fatalf("state not restored on retry: %+v", state)
	}
}

func TestSessions_CancelledRequestStillHydrates(t *testing.T) {
	store := ctxStore{newMemStore()}
	savedProgress(t, store)

	sessions, err := NewSessions(store, newFakeGateway(), WithLogger(quietLogger()))
	if err != nil {
		t.Fatalf("new sessions: %v", err)
	}
	defer sessions.Close()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	w, err := sessions.Get(ctx, "tenant-a/user-1")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if got := w.State().Plant.Name; got != "Saved Plant" {
		t.Fatalf("expected saved plant, got %q", got)
	}
}

func TestSessions_EvictIdle(t *testing.T) {
	ctx := context.Background()
	store := newMemStore()
	sessions, err := NewSessions(store, newFakeGateway(), WithLogger(quietLogger()))
	if err != nil {
		t.Fatalf("new sessions: %v", err)
	}
	defer sessions.Close()
	now := time.Date(2026, 1, 1, 8, 0, 0, 0, time.UTC)
	sessions.now = func() time.Time { return now }

	alice, _ := sessions.Get(ctx, "tenant-a/alice")
	alice.SetPlant(ctx, validPlant())
	now = now.Add(20 * time.Minute)
	if _, err := sessions.Get(ctx, "tenant-a/bob"); err != nil {
		t.Fatalf("get bob: %v", err)
	}

	if n := sessions.EvictIdle(10 * time.Minute); n != 1 {
		t.Fatalf("expected one eviction, got %d", n)
	}
	if sessions.Len() != 1 {
		t.Fatalf("expected one live session, got %d", sessions.Len())
	}

	saves := store.saveCount()
	alice.SetPlant(ctx, onboarding.PlantInfo{Name: "stale"})
	if store.saveCount() != saves {
		t.Fatalf("evicted wizard must not persist")
	}
	again, err := sessions.Get(ctx, "tenant-a/alice")
	if err != nil {
		t.Fatalf("get alice: %v", err)
	}
	if again == alice || again.State().Plant != validPlant() {
		t.Fatalf("expected a fresh wizard restored from the store")
	}
	if n := sessions.EvictIdle(0); n != 0 {
		t.Fatalf("zero idle must not evict")
	}
}

func TestWizard_AssetEditing(t *testing.T) {
	ctx := context.Background()
	gateway := newFakeGateway()
	gateway.catalog["boiler"] = boilerCatalog()
	w := newTestWizard(t, newMemStore(), gateway)

	w.AddAsset(ctx)
	if gateway.fetchCount() != 0 {
		t.Fatalf("blank asset must not trigger a fetch")
	}
	name := "Main Boiler #1"
	boiler := onboarding.AssetTypeBoiler
	if err := w.UpdateAsset(ctx, 0, &name, nil); err != nil {
		t.Fatalf("update asset: %v", err)
	}
	if got := w.State().Assets[0].Name; got != "main_boiler_1" {
		t.Fatalf("expected derived name, got %q", got)
	}
	if err := w.UpdateAsset(ctx, 0, nil, &boiler); err != nil {
		t.Fatalf("update asset type: %v", err)
	}
	if gateway.fetchCount() != 1 {
		t.Fatalf("expected fetch on type change, got %d", gateway.fetchCount())
	}
	bogus := onboarding.AssetType("reactor")
	if err := w.UpdateAsset(ctx, 0, nil, &bogus); err == nil {
		t.Fatalf("expected invalid asset type error")
	}
	if err := w.UpdateAsset(ctx, 5, &name, nil); err != onboarding.ErrAssetNotFound {
		t.Fatalf("expected ErrAssetNotFound, got %v", err)
	}
	if err := w.RemoveAsset(ctx, 0); err != nil {
		t.Fatalf("remove asset: %v", err)
	}
	if len(w.State().Assets) != 0 {
		t.Fatalf("expected no assets")
	}
}

func TestWizard_DuplicateAssetsReported(t *testing.T) {
	ctx := context.Background()
	w := newTestWizard(t, newMemStore(), newFakeGateway())
	_ = w.SetAssets(ctx, []onboarding.Asset{
		{DisplayName: "Boiler 1"},
		{DisplayName: "boiler-1"},
	})
	snap := w.Snapshot()
	if len(snap.DuplicateAssets) != 1 || snap.DuplicateAssets[0] != "boiler_1" {
		t.Fatalf("unexpected duplicates: %v", snap.DuplicateAssets)
	}
	if snap.Completed[onboarding.StepAssets] {
		t.Fatalf("duplicate names must not complete assets")
	}
}

func TestWizard_ResetRestoresDefaults(t *testing.T) {
	ctx := context.Background()
	store := newMemStore()
	w := newTestWizard(t, store, newFakeGateway())
	w.SetPlant(ctx, validPlant())
	w.Advance(ctx)
	w.Reset(ctx)

	state := w.State()
	if state.Plant != onboarding.DefaultPlant() || state.CurrentStep != onboarding.StepPlantInfo {
		t.Fatalf("expected defaults, got %+v", state)
	}
	data, ok := store.data["tenant-a/user-1/"+StateKey]
	if !ok {
		t.Fatalf("expected defaults persisted after reset")
	}
	var persisted onboarding.WizardState
	if err := json.Unmarshal(data, &persisted); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if persisted.Plant.Name != "" {
		t.Fatalf("expected empty plant, got %+v", persisted.Plant)
	}
}

func TestWizard_SubmitOutsideReview(t *testing.T) {
	w := newTestWizard(t, newMemStore(), newFakeGateway())
	if _, err := w.Submit(context.Background()); err != ErrNotAtReview {
		t.Fatalf("expected ErrNotAtReview, got %v", err)
	}
}

func TestWizard_SubmitFailureMessage(t *testing.T) {
	store := newMemStore()
	state := onboarding.InitialState()
	state.CurrentStep = onboarding.StepReview
	data, _ := json.Marshal(state)
	store.data["tenant-a/user-1/"+StateKey] = data

	gateway := newFakeGateway()
	gateway.submitErr = errBackendDown
	w := newTestWizard(t, store, gateway)
	outcome, err := w.Submit(context.Background())
	if err == nil {
		t.Fatalf("expected error")
	}
	if outcome.Message != SubmissionFailed {
		t.Fatalf("unexpected message: %q", outcome.Message)
	}
	if w.Snapshot().Submitted {
		t.Fatalf("failed submission must not mark submitted")
	}
}

type recordingNotifier struct {
	payloads []onboarding.SubmissionPayload
}

func (n *recordingNotifier) NotifySubmitted(ctx context.Context, payload onboarding.SubmissionPayload, resp onboarding.SubmissionResponse) error {
	n.payloads = append(n.payloads, payload)
	return nil
}

func TestWizard_SubmitNotifies(t *testing.T) {
	store := newMemStore()
	state := onboarding.InitialState()
	state.Plant = validPlant()
	state.CurrentStep = onboarding.StepReview
	data, _ := json.Marshal(state)
	store.data["tenant-a/user-1/"+StateKey] = data

	notifier := &recordingNotifier{}
	w := newTestWizard(t, store, newFakeGateway(), WithNotifier(notifier))
	if _, err := w.Submit(context.Background()); err != nil {
		t.Fatalf("submit: %v", err)
	}
	if len(notifier.payloads) != 1 || notifier.payloads[0].Plant.Name != "P" {
		t.Fatalf("expected notification, got %+v", notifier.payloads)
	}
}

func TestWizard_Theme(t *testing.T) {
	ctx := context.Background()
	w := newTestWizard(t, newMemStore(), newFakeGateway())
	if w.Theme(ctx) != ThemeDark {
		t.Fatalf("expected dark default")
	}
	if err := w.SetTheme(ctx, ThemeLight); err != nil {
		t.Fatalf("set theme: %v", err)
	}
	if w.Theme(ctx) != ThemeLight {
		t.Fatalf("expected light")
	}
	if err := w.SetTheme(ctx, Theme("sepia")); err != ErrInvalidTheme {
		t.Fatalf("expected ErrInvalidTheme, got %v", err)
	}
}

func TestSessions_IsolatesSessions(t *testing.T) {
	ctx := context.Background()
	store := newMemStore()
	sessions, err := NewSessions(store, newFakeGateway(), WithLogger(quietLogger()))
	if err != nil {
		t.Fatalf("new sessions: %v", err)
	}
	defer sessions.Close()

	a, _ := sessions.Get(ctx, "tenant-a/alice")
	b, _ := sessions.Get(ctx, "tenant-a/bob")
	again, _ := sessions.Get(ctx, "tenant-a/alice")
	if a != again {
		t.Fatalf("expected the same wizard for the same session")
	}
	a.SetPlant(ctx, validPlant())
	if b.State().Plant.Name != "" {
		t.Fatalf("sessions share state")
	}
	if sessions.Len() != 2 {
		t.Fatalf("expected two sessions, got %d", sessions.Len())
	}
	def, _ := sessions.Get(ctx, "  ")
	if def.Session() != DefaultSession {
		t.Fatalf("expected default session, got %q", def.Session())
	}
}
