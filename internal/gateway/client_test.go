package gateway

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	onboarding "plant-onboarding/internal/onboarding/domain"
)

func newTestClient(t *testing.T, handler http.Handler, opts ...Option) *Client {
	t.Helper()
	server := httptest.NewServer(handler)
	t.Cleanup(server.Close)
	opts = append([]Option{WithLogger(log.New(io.Discard, "", 0))}, opts...)
	client, err := NewClient(server.URL+"/", "backend-token", opts...)
	if err != nil {
		t.Fatalf("new client: %v", err)
	}
	return client
}

func TestNewClient_RequiresBaseURL(t *testing.T) {
	if _, err := NewClient(" ", ""); err == nil {
		t.Fatalf("expected error for empty base url")
	}
}

func TestFetchParameters(t *testing.T) {
	client := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/api/parameters" || r.Method != http.MethodGet {
			t.Errorf("unexpected request %s %s", r.Method, r.URL.Path)
		}
		if got := r.URL.Query().Get("asset_types"); got != "boiler,turbine" {
			t.Errorf("unexpected asset_types %q", got)
		}
		if got := r.Header.Get("Authorization"); got != "Bearer backend-token" {
			t.Errorf("unexpected auth header %q", got)
		}
		_, _ = w.Write([]byte(`[{"name":"steam_flow","display_name":"Steam Flow","unit":"t/h","category":"output","section":"Steam","applicable_asset_types":["boiler"]}]`))
	}))

	params, err := client.FetchParameters(context.Background(), []string{"boiler", "turbine"})
	if err != nil {
		t.Fatalf("fetch: %v", err)
	}
	if len(params) != 1 || params[0].Name != "steam_flow" || params[0].Enabled {
		t.Fatalf("unexpected params: %+v", params)
	}
	if params[0].Category != onboarding.CategoryOutput || params[0].ApplicableAssetTypes[0] != "boiler" {
		t.Fatalf("unexpected decode: %+v", params[0])
	}
}

func TestFetchParameters_SharesConcurrentRequests(t *testing.T) {
	var calls int32
	release := make(chan struct{})
	client := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&calls, 1)
		<-release
		_, _ = w.Write([]byte(`[{"name":"a","category":"input"}]`))
	}))

	var wg sync.WaitGroup
	for i := 0; i < 5; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if _, err := client.FetchParameters(context.Background(), []string{"boiler"}); err != nil {
				t.Errorf("fetch: %v", err)
			}
		}()
	}
	time.Sleep(50 * time.Millisecond)
	close(release)
	wg.Wait()
	if got := atomic.LoadInt32(&calls); got != 1 {
		t.Fatalf("expected one backend call, got %d", got)
	}
}

func TestFetchParameters_CancelledCallerDoesNotFailOthers(t *testing.T) {
	var calls int32
	started := make(chan struct{}, 1)
	release := make(chan struct{})
	client := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&calls, 1)
		started <- struct{}{}
		<-release
		_, _ = w.Write([]byte(`[{"name":"steam_flow","category":"output"}]`))
	}))

	ctxA, cancelA := context.WithCancel(context.Background())
	errA := make(chan error, 1)
	go func() {
		_, err := client.FetchParameters(ctxA, []string{"boiler"})
		errA <- err
	}()
	<-started

	type result struct {
		params []onboarding.Parameter
		err    error
	}
	resB := make(chan result, 1)
	go func() {
		params, err := client.FetchParameters(context.Background(), []string{"boiler"})
		resB <- result{params, err}
	}()
	time.Sleep(30 * time.Millisecond)

	cancelA()
	if err := <-errA; !errors.Is(err, context.Canceled) {
		t.Fatalf("expected cancelled caller to stop with context.Canceled, got %v", err)
	}
	close(release)

	got := <-resB
	if got.err != nil {
		t.Fatalf("second caller failed: %v", got.err)
	}
	if len(got.params) != 1 || got.params[0].Name != "steam_flow" {
		t.Fatalf("unexpected params: %+v", got.params)
	}
	if n := atomic.LoadInt32(&calls); n != 1 {
		t.Fatalf("expected one backend call, got %d", n)
	}
}

func TestWithTimeout_CopiesClient(t *testing.T) {
	shared := &http.Client{Timeout: time.Minute}
	client, err := NewClient("http://backend", "", WithHTTPClient(shared), WithTimeout(2*time.Second))
	if err != nil {
		t.Fatalf("new client: %v", err)
	}
	if shared.Timeout != time.Minute {
		t.Fatalf("shared client mutated: %s", shared.Timeout)
	}
	if client.client == shared || client.client.Timeout != 2*time.Second {
		t.Fatalf("expected a copied client with the new timeout")
	}
}

func TestValidateFormula(t *testing.T) {
	client := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var req validateRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			t.Errorf("decode: %v", err)
		}
		if req.Expression != "a + b" || len(req.EnabledParameters) != 2 {
			t.Errorf("unexpected request %+v", req)
		}
		_, _ = w.Write([]byte(`{"valid":false,"depends_on":["a"],"error":"Unknown parameter: b"}`))
	}))

	result, err := client.ValidateFormula(context.Background(), "a + b", []string{"a", "c"})
	if err != nil {
		t.Fatalf("validate: %v", err)
	}
	if result.Valid || result.Error == nil || *result.Error != "Unknown parameter: b" || result.DependsOn[0] != "a" {
		t.Fatalf("unexpected result: %+v", result)
	}
}

func TestValidateFormula_SendsEmptyArray(t *testing.T) {
	client := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		body, _ := io.ReadAll(r.Body)
		if !strings.Contains(string(body), `"enabled_parameters":[]`) {
			t.Errorf("expected empty array, got %s", body)
		}
		_, _ = w.Write([]byte(`{"valid":true,"depends_on":null}`))
	}))
	result, err := client.ValidateFormula(context.Background(), "1", nil)
	if err != nil {
		t.Fatalf("validate: %v", err)
	}
	if result.DependsOn == nil {
		t.Fatalf("expected non-nil depends_on")
	}
}

func TestImportParameters_Multipart(t *testing.T) {
	client := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		file, header, err := r.FormFile("file")
		if err != nil {
			t.Errorf("form file: %v", err)
			http.Error(w, "bad", http.StatusBadRequest)
			return
		}
		defer file.Close()
		data, _ := io.ReadAll(file)
		if header.Filename != "params.csv" || !strings.HasPrefix(string(data), "name,") {
			t.Errorf("unexpected upload %s %q", header.Filename, data)
		}
		_, _ = w.Write([]byte(`{"parameters":[{"name":"x","category":"input"}],"count":1,"errors":[]}`))
	}))

	result, err := client.ImportParameters(context.Background(), "params.csv", strings.NewReader("name,display_name\nx,X\n"))
	if err != nil {
		t.Fatalf("import: %v", err)
	}
	if result.Count != 1 || len(result.Parameters) != 1 {
		t.Fatalf("unexpected result: %+v", result)
	}
}

func TestTemplates(t *testing.T) {
	var deleted string
	client := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch {
		case r.Method == http.MethodGet && r.URL.Path == "/api/templates":
			_, _ = w.Write([]byte(`{"templates":[{"id":"standard","name":"Standard","description":"d","created_at":"2024-01-01T00:00:00"}]}`))
		case r.Method == http.MethodGet && r.URL.Path == "/api/templates/standard":
			_, _ = w.Write([]byte(`{"name":"Standard","description":"d","config":{"assets":[{"name":"b","display_name":"B","asset_type":"boiler"}]}}`))
		case r.Method == http.MethodPost && r.URL.Path == "/api/templates":
			_, _ = w.Write([]byte(`{"status":"saved","id":"standard"}`))
		case r.Method == http.MethodDelete && strings.HasPrefix(r.URL.Path, "/api/templates/"):
			deleted = strings.TrimPrefix(r.URL.Path, "/api/templates/")
			if deleted == "missing" {
				http.Error(w, `{"detail":"Template not found"}`, http.StatusNotFound)
				return
			}
			_, _ = w.Write([]byte(`{"status":"deleted"}`))
		default:
			http.Error(w, "unexpected", http.StatusTeapot)
		}
	}))
	ctx := context.Background()

	list, err := client.ListTemplates(ctx)
	if err != nil || len(list) != 1 || list[0].ID != "standard" {
		t.Fatalf("list: %+v %v", list, err)
	}
	tmpl, err := client.GetTemplate(ctx, "standard")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if tmpl.Config.Plant != nil || tmpl.Config.Parameters != nil || len(tmpl.Config.Assets) != 1 {
		t.Fatalf("absent sections must decode as nil: %+v", tmpl.Config)
	}
	saved, err := client.SaveTemplate(ctx, onboarding.TemplateSaveRequest{Name: "Standard"})
	if err != nil || saved.ID != "standard" {
		t.Fatalf("save: %+v %v", saved, err)
	}
	if err := client.DeleteTemplate(ctx, "standard"); err != nil || deleted != "standard" {
		t.Fatalf("delete: %v", err)
	}
	if err := client.DeleteTemplate(ctx, "missing"); err != ErrNotFound {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestSubmit_ErrorDetail(t *testing.T) {
	client := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusUnprocessableEntity)
		_, _ = w.Write([]byte(`{"detail":"plant.name required"}`))
	}))
	_, err := client.Submit(context.Background(), onboarding.SubmissionPayload{})
	if err == nil || !strings.Contains(err.Error(), "422") || !strings.Contains(err.Error(), "plant.name required") {
		t.Fatalf("unexpected error: %v", err)
	}
}

func TestSubmit(t *testing.T) {
	client := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var payload onboarding.SubmissionPayload
		if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
			t.Errorf("decode: %v", err)
		}
		_ = json.NewEncoder(w).Encode(onboarding.SubmissionResponse{
			Status:  "success",
			Message: "Plant '" + payload.Plant.Name + "' onboarded successfully",
			Summary: onboarding.SubmissionSummary{PlantName: payload.Plant.Name, NumAssets: len(payload.Assets)},
		})
	}))
	resp, err := client.Submit(context.Background(), onboarding.SubmissionPayload{
		Plant:  onboarding.PlantInfo{Name: "North"},
		Assets: []onboarding.Asset{{Name: "b"}},
	})
	if err != nil {
		t.Fatalf("submit: %v", err)
	}
	if resp.Summary.NumAssets != 1 || resp.Message != "Plant 'North' onboarded successfully" {
		t.Fatalf("unexpected response: %+v", resp)
	}
}

func TestRateLimit(t *testing.T) {
	var calls int32
	client := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&calls, 1)
		_, _ = w.Write([]byte(`{"templates":[]}`))
	}), WithRateLimit(10))

	start := time.Now()
	for i := 0; i < 3; i++ {
		if _, err := client.ListTemplates(context.Background()); err != nil {
			t.Fatalf("list: %v", err)
		}
	}
	if elapsed := time.Since(start); elapsed < 150*time.Millisecond {
		t.Fatalf("expected limiter to pace requests, took %s", elapsed)
	}
}
