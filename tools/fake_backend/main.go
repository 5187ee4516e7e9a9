package main

import (
	"encoding/csv"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log"
	"math/rand"
	"net/http"
	"os"
	"regexp"
	"sort"
	"strconv"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	onboarding "plant-onboarding/internal/onboarding/domain"
)

type fakeBackend struct {
	start    time.Time
	latency  time.Duration
	failRate float64

	totalCalls int64

	mu        sync.Mutex
	byPath    map[string]int64
	catalog   []onboarding.Parameter
	templates map[string]storedTemplate
}

type storedTemplate struct {
	Name        string                    `json:"name"`
	Description string                    `json:"description"`
	Config      onboarding.TemplateConfig `json:"config"`
	CreatedAt   string                    `json:"created_at"`
}

var (
	identifierPattern = regexp.MustCompile(`[a-zA-Z_][a-zA-Z0-9_]*`)
	unsafeNames       = map[string]struct{}{
		"import": {}, "eval": {}, "exec": {}, "open": {}, "os": {}, "sys": {}, "subprocess": {},
	}
	mathBuiltins      = map[string]struct{}{
		"abs": {}, "round": {}, "min": {}, "max": {}, "sum": {}, "pow": {},
		"sqrt": {}, "log": {}, "sin": {}, "cos": {}, "tan": {}, "pi": {}, "e": {},
	}
)

func main() {
	addr := getenvDefault("FAKE_BACKEND_ADDR", ":18000")
	latencyMs := getenvIntDefault("FAKE_BACKEND_LATENCY_MS", 0)
	failRate := getenvFloatDefault("FAKE_BACKEND_FAIL_RATE", 0)

	srv := &fakeBackend{
		start:     time.Now().UTC(),
		latency:   time.Duration(latencyMs) * time.Millisecond,
		failRate:  failRate,
		byPath:    make(map[string]int64),
		catalog:   seedCatalog(),
		templates: map[string]storedTemplate{"standard_power_plant": seedTemplate()},
	}

	mux := http.NewServeMux()
	mux.HandleFunc("/healthz", srv.handleHealth)
	mux.HandleFunc("/metrics", srv.handleMetrics)
	mux.HandleFunc("/api/parameters", srv.wrap(srv.handleParameters))
	mux.HandleFunc("/api/validate-formula", srv.wrap(srv.handleValidate))
	mux.HandleFunc("/api/suggest-parameters", srv.wrap(srv.handleSuggest))
	mux.HandleFunc("/api/import-parameters", srv.wrap(srv.handleImport))
	mux.HandleFunc("/api/templates", srv.wrap(srv.handleTemplates))
	mux.HandleFunc("/api/templates/", srv.wrap(srv.handleTemplate))
	mux.HandleFunc("/api/onboarding", srv.wrap(srv.handleOnboarding))

	log.Printf("fake onboarding backend listening on %s", addr)
	if err := http.ListenAndServe(addr, mux); err != nil {
		log.Fatal(err)
	}
}

func (s *fakeBackend) wrap(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt64(&s.totalCalls, 1)
		s.mu.Lock()
		s.byPath[r.URL.Path]++
		s.mu.Unlock()
		if s.latency > 0 {
			time.Sleep(s.latency)
		}
		if s.failRate > 0 && rand.Float64() < s.failRate {
			writeDetail(w, http.StatusServiceUnavailable, "fake backend failure")
			return
		}
		next(w, r)
	}
}

func (s *fakeBackend) handleHealth(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("ok"))
}

func (s *fakeBackend) handleMetrics(w http.ResponseWriter, r *http.Request) {
	s.mu.Lock()
	defer s.mu.Unlock()
	writeJSON(w, map[string]any{
		"started_at": s.start.Format(time.RFC3339),
		"total":      atomic.LoadInt64(&s.totalCalls),
		"by_path":    s.byPath,
		"templates":  len(s.templates),
	})
}

func (s *fakeBackend) handleParameters(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.NotFound(w, r)
		return
	}
	var types []string
	for _, t := range strings.Split(r.URL.Query().Get("asset_types"), ",") {
		if t = strings.TrimSpace(t); t != "" {
			types = append(types, t)
		}
	}
	writeJSON(w, filterCatalog(s.catalog, types))
}

func (s *fakeBackend) handleValidate(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.NotFound(w, r)
		return
	}
	var req struct {
		Expression        string   `json:"expression"`
		EnabledParameters []string `json:"enabled_parameters"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeDetail(w, http.StatusUnprocessableEntity, "invalid json")
		return
	}
	writeJSON(w, validateExpression(req.Expression, req.EnabledParameters))
}

func (s *fakeBackend) handleSuggest(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.NotFound(w, r)
		return
	}
	var req struct {
		Description string   `json:"description"`
		AssetTypes  []string `json:"asset_types"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeDetail(w, http.StatusUnprocessableEntity, "invalid json")
		return
	}
	words := strings.Fields(strings.ToLower(req.Description))
	suggestions := make([]onboarding.Parameter, 0)
	for _, p := range filterCatalog(s.catalog, req.AssetTypes) {
		haystack := strings.ToLower(p.Name + " " + p.DisplayName + " " + p.Section)
		for _, word := range words {
			if len(word) > 3 && strings.Contains(haystack, word) {
				p.Enabled = true
				suggestions = append(suggestions, p)
				break
			}
		}
	}
	writeJSON(w, onboarding.SuggestionResult{Suggestions: suggestions, Count: len(suggestions)})
}

func (s *fakeBackend) handleImport(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.NotFound(w, r)
		return
	}
	file, header, err := r.FormFile("file")
	if err != nil {
		writeDetail(w, http.StatusBadRequest, "No file provided")
		return
	}
	defer file.Close()
	ext := ""
	if idx := strings.LastIndex(header.Filename, "."); idx >= 0 {
		ext = strings.ToLower(header.Filename[idx+1:])
	}
	if ext != "csv" && ext != "tsv" && ext != "txt" {
		writeDetail(w, http.StatusBadRequest, fmt.Sprintf("Unsupported file type: .%s. Please upload a CSV file.", ext))
		return
	}
	result, err := parseImport(file)
	if err != nil {
		writeDetail(w, http.StatusBadRequest, err.Error())
		return
	}
	writeJSON(w, result)
}

func (s *fakeBackend) handleTemplates(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodGet:
		s.mu.Lock()
		list := make([]onboarding.TemplateInfo, 0, len(s.templates))
		for id, tmpl := range s.templates {
			list = append(list, onboarding.TemplateInfo{ID: id, Name: tmpl.Name, Description: tmpl.Description, CreatedAt: tmpl.CreatedAt})
		}
		s.mu.Unlock()
		sort.Slice(list, func(i, j int) bool { return list[i].ID < list[j].ID })
		writeJSON(w, map[string]any{"templates": list})
	case http.MethodPost:
		var req onboarding.TemplateSaveRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeDetail(w, http.StatusUnprocessableEntity, "invalid json")
			return
		}
		id := templateID(req.Name)
		if id == "" {
			writeDetail(w, http.StatusUnprocessableEntity, "name required")
			return
		}
		s.mu.Lock()
		s.templates[id] = storedTemplate{
			Name:        req.Name,
			Description: req.Description,
			Config:      req.Config,
			CreatedAt:   time.Now().UTC().Format("2006-01-02T15:04:05"),
		}
		s.mu.Unlock()
		writeJSON(w, map[string]string{"status": "saved", "id": id, "name": req.Name})
	default:
		http.NotFound(w, r)
	}
}

func (s *fakeBackend) handleTemplate(w http.ResponseWriter, r *http.Request) {
	id := strings.TrimPrefix(r.URL.Path, "/api/templates/")
	s.mu.Lock()
	tmpl, ok := s.templates[id]
	if ok && r.Method == http.MethodDelete {
		delete(s.templates, id)
	}
	s.mu.Unlock()
	if !ok {
		writeDetail(w, http.StatusNotFound, "Template not found")
		return
	}
	switch r.Method {
	case http.MethodGet:
		writeJSON(w, tmpl)
	case http.MethodDelete:
		writeJSON(w, map[string]string{"status": "deleted", "id": id})
	default:
		http.NotFound(w, r)
	}
}

func (s *fakeBackend) handleOnboarding(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.NotFound(w, r)
		return
	}
	var payload onboarding.SubmissionPayload
	if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
		writeDetail(w, http.StatusUnprocessableEntity, "invalid json")
		return
	}
	log.Printf("fake backend: onboarded plant=%s assets=%d parameters=%d formulas=%d",
		payload.Plant.Name, len(payload.Assets), len(payload.Parameters), len(payload.Formulas))
	writeJSON(w, onboarding.SubmissionResponse{
		Status:  "success",
		Message: fmt.Sprintf("Plant '%s' onboarded successfully", payload.Plant.Name),
		Summary: onboarding.SubmissionSummary{
			PlantName:     payload.Plant.Name,
			NumAssets:     len(payload.Assets),
			NumParameters: len(payload.Parameters),
			NumFormulas:   len(payload.Formulas),
			SubmittedAt:   time.Now().UTC().Format("2006-01-02T15:04:05.000000"),
		},
	})
}

func validateExpression(expression string, enabled []string) onboarding.FormulaValidation {
	fail := func(deps []string, msg string) onboarding.FormulaValidation {
		if deps == nil {
			deps = []string{}
		}
		return onboarding.FormulaValidation{Valid: false, DependsOn: deps, Error: &msg}
	}
	// Whole identifiers only, so cos() or cost_per_mw are not rejected.
	if strings.Contains(expression, "__") {
		return fail(nil, "Unsafe token detected: '__'")
	}
	for _, ident := range identifierPattern.FindAllString(expression, -1) {
		if _, unsafe := unsafeNames[ident]; unsafe {
			return fail(nil, fmt.Sprintf("Unsafe token detected: '%s'", ident))
		}
	}

	seen := make(map[string]struct{})
	vars := make([]string, 0)
	for _, ident := range identifierPattern.FindAllString(expression, -1) {
		if _, builtin := mathBuiltins[ident]; builtin {
			continue
		}
		if _, ok := seen[ident]; ok {
			continue
		}
		seen[ident] = struct{}{}
		vars = append(vars, ident)
	}
	sort.Strings(vars)

	allowed := make(map[string]struct{}, len(enabled))
	for _, name := range enabled {
		allowed[name] = struct{}{}
	}
	var missing []string
	for _, v := range vars {
		if _, ok := allowed[v]; !ok {
			missing = append(missing, v)
		}
	}
	if len(missing) > 0 {
		return fail(vars, "Parameter(s) not enabled: "+strings.Join(missing, ", "))
	}
	if !balancedParens(expression) {
		return fail(vars, "Syntax error: unbalanced parentheses")
	}
	return onboarding.FormulaValidation{Valid: true, DependsOn: vars}
}

func balancedParens(expression string) bool {
	depth := 0
	for _, r := range expression {
		switch r {
		case '(':
			depth++
		case ')':
			depth--
			if depth < 0 {
				return false
			}
		}
	}
	return depth == 0
}

func parseImport(r io.Reader) (onboarding.ImportResult, error) {
	reader := csv.NewReader(r)
	reader.FieldsPerRecord = -1
	header, err := reader.Read()
	if err != nil {
		return onboarding.ImportResult{}, errors.New("empty file")
	}
	cols := make(map[string]int, len(header))
	for i, name := range header {
		cols[strings.TrimSpace(strings.TrimPrefix(name, "\ufeff"))] = i
	}
	var missing []string
	for _, required := range []string{"category", "display_name", "name", "section", "unit"} {
		if _, ok := cols[required]; !ok {
			missing = append(missing, required)
		}
	}
	if len(missing) > 0 {
		return onboarding.ImportResult{}, fmt.Errorf("Missing required columns: %s", strings.Join(missing, ", "))
	}

	result := onboarding.ImportResult{Parameters: []onboarding.Parameter{}, Errors: []string{}}
	field := func(row []string, col string) string {
		if idx := cols[col]; idx < len(row) {
			return strings.TrimSpace(row[idx])
		}
		return ""
	}
	for line := 2; ; line++ {
		row, err := reader.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			result.Errors = append(result.Errors, fmt.Sprintf("Row %d: %v", line, err))
			continue
		}
		name := field(row, "name")
		if name == "" {
			result.Errors = append(result.Errors, fmt.Sprintf("Row %d: missing name", line))
			continue
		}
		category := onboarding.Category(field(row, "category"))
		if !onboarding.IsValidCategory(category) {
			result.Errors = append(result.Errors, fmt.Sprintf("Row %d: invalid category '%s'", line, category))
			continue
		}
		display := field(row, "display_name")
		if display == "" {
			display = name
		}
		section := field(row, "section")
		if section == "" {
			section = "IMPORTED"
		}
		result.Parameters = append(result.Parameters, onboarding.Parameter{
			Name:                 name,
			DisplayName:          display,
			Unit:                 field(row, "unit"),
			Category:             category,
			Section:              section,
			ApplicableAssetTypes: []string{},
			Enabled:              true,
		})
	}
	result.Count = len(result.Parameters)
	return result, nil
}

func filterCatalog(catalog []onboarding.Parameter, types []string) []onboarding.Parameter {
	out := make([]onboarding.Parameter, 0, len(catalog))
	for _, p := range catalog {
		if len(types) == 0 || matchesAny(p.ApplicableAssetTypes, types) {
			out = append(out, p)
		}
	}
	return out
}

func matchesAny(applicable, types []string) bool {
	for _, a := range applicable {
		for _, t := range types {
			if a == t {
				return true
			}
		}
	}
	return false
}

func templateID(name string) string {
	id := strings.NewReplacer(" ", "_", "-", "_").Replace(strings.ToLower(name))
	var b strings.Builder
	for _, r := range id {
		if r == '_' || (r >= 'a' && r <= 'z') || (r >= '0' && r <= '9') {
			b.WriteRune(r)
		}
	}
	return b.String()
}

func param(name, display, unit string, category onboarding.Category, section string, types ...string) onboarding.Parameter {
	return onboarding.Parameter{
		Name:                 name,
		DisplayName:          display,
		Unit:                 unit,
		Category:             category,
		Section:              section,
		ApplicableAssetTypes: types,
	}
}

func seedCatalog() []onboarding.Parameter {
	return []onboarding.Parameter{
		param("coal_consumption", "Coal Consumption", "MT", onboarding.CategoryInput, "COGEN BOILER", "boiler"),
		param("steam_generation", "Steam Generation", "TPH", onboarding.CategoryOutput, "COGEN BOILER", "boiler"),
		param("boiler_efficiency", "Boiler Efficiency", "%", onboarding.CategoryCalculated, "COGEN BOILER", "boiler"),
		param("feed_water_temperature", "Feed Water Temperature", "°C", onboarding.CategoryInput, "COGEN BOILER", "boiler"),
		param("power_generation", "Power Generation", "MW", onboarding.CategoryOutput, "TURBINE", "turbine"),
		param("turbine_efficiency", "Turbine Efficiency", "%", onboarding.CategoryCalculated, "TURBINE", "turbine"),
		param("auxiliary_consumption", "Auxiliary Consumption", "MW", onboarding.CategoryInput, "UTILITIES", "boiler", "turbine", "general"),
		param("plant_load_factor", "Plant Load Factor", "%", onboarding.CategoryCalculated, "UTILITIES", "general"),
	}
}

func seedTemplate() storedTemplate {
	enabled := seedCatalog()[:6]
	for i := range enabled {
		enabled[i].Enabled = true
	}
	return storedTemplate{
		Name:        "Standard Power Plant",
		Description: "A typical coal-fired cogeneration power plant with boiler and turbine",
		CreatedAt:   "2026-01-01T00:00:00",
		Config: onboarding.TemplateConfig{
			Plant: &onboarding.PlantInfo{
				Name:         "Demo Cogeneration Plant",
				Address:      "Industrial Area, Phase II, Mumbai",
				ManagerEmail: "ops.manager@demoplant.com",
				Description:  "A 200MW coal-fired cogeneration facility with one boiler and one turbine",
			},
			Assets: []onboarding.Asset{
				{Name: "main_boiler", DisplayName: "Main Boiler", AssetType: "boiler"},
				{Name: "primary_turbine", DisplayName: "Primary Turbine", AssetType: "turbine"},
			},
			Parameters: enabled,
			Formulas: []onboarding.Formula{
				{ParameterName: "boiler_efficiency", Expression: "steam_generation / coal_consumption * 100", DependsOn: []string{"coal_consumption", "steam_generation"}},
				{ParameterName: "turbine_efficiency", Expression: "power_generation / steam_generation * 100", DependsOn: []string{"power_generation", "steam_generation"}},
			},
		},
	}
}

func writeJSON(w http.ResponseWriter, payload any) {
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(payload)
}

func writeDetail(w http.ResponseWriter, status int, detail string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(map[string]string{"detail": detail})
}

func getenvDefault(key, fallback string) string {
	if value := strings.TrimSpace(os.Getenv(key)); value != "" {
		return value
	}
	return fallback
}

func getenvIntDefault(key string, fallback int) int {
	value := strings.TrimSpace(os.Getenv(key))
	if value == "" {
		return fallback
	}
	parsed, err := strconv.Atoi(value)
	if err != nil {
		return fallback
	}
	return parsed
}

func getenvFloatDefault(key string, fallback float64) float64 {
	value := strings.TrimSpace(os.Getenv(key))
	if value == "" {
		return fallback
	}
	parsed, err := strconv.ParseFloat(value, 64)
	if err != nil {
		return fallback
	}
	return parsed
}
