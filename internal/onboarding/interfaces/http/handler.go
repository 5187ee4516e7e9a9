package http

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log"
	"net/http"
	"net/url"
	"os"
	"strconv"
	"strings"

	"plant-onboarding/internal/audit"
	"plant-onboarding/internal/auth"
	"plant-onboarding/internal/export"
	"plant-onboarding/internal/onboarding/application"
	onboarding "plant-onboarding/internal/onboarding/domain"
)

// Prefix is the mount point of the wizard API.
const Prefix = "/api/v1/wizard"

const (
	maxUploadBytes = 10 << 20
	maxBodyBytes   = 1 << 20
)

// Handler serves the wizard façade under Prefix.
type Handler struct {
	sessions    *application.Sessions
	auditLogger audit.Logger
	logger      *log.Logger
}

// NewHandler constructs a handler.
func NewHandler(sessions *application.Sessions, auditLogger audit.Logger, logger *log.Logger) (*Handler, error) {
	if sessions == nil {
		return nil, errors.New("wizard handler: nil sessions")
	}
	if logger == nil {
		logger = log.New(os.Stdout, "", log.LstdFlags)
	}
	return &Handler{sessions: sessions, auditLogger: auditLogger, logger: logger}, nil
}

// ServeHTTP routes /api/v1/wizard and its subpaths.
func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if r.URL.Path != Prefix && !strings.HasPrefix(r.URL.Path, Prefix+"/") {
		http.NotFound(w, r)
		return
	}
	wizard, err := h.sessions.Get(r.Context(), sessionKey(r))
	if err != nil {
		h.logger.Printf("wizard session unavailable: path=%s err=%v", r.URL.Path, err)
		http.Error(w, "session unavailable", http.StatusInternalServerError)
		return
	}

	rest := strings.Trim(strings.TrimPrefix(r.URL.EscapedPath(), Prefix), "/")
	var parts []string
	if rest != "" {
		for _, raw := range strings.Split(rest, "/") {
			part, err := url.PathUnescape(raw)
			if err != nil {
				http.Error(w, "invalid path", http.StatusBadRequest)
				return
			}
			parts = append(parts, part)
		}
	}

	switch {
	case len(parts) == 0:
		h.only(w, r, http.MethodGet, func() { writeJSON(w, http.StatusOK, wizard.Snapshot()) })
	case parts[0] == "plant" && len(parts) == 1:
		h.only(w, r, http.MethodPut, func() { h.handlePlant(w, r, wizard) })
	case parts[0] == "assets":
		h.handleAssets(w, r, wizard, parts[1:])
	case parts[0] == "parameters":
		h.handleParameters(w, r, wizard, parts[1:])
	case parts[0] == "formulas" && len(parts) == 2:
		h.only(w, r, http.MethodPut, func() { h.handleFormula(w, r, wizard, parts[1]) })
	case len(parts) == 1 && (parts[0] == "advance" || parts[0] == "retreat" || parts[0] == "jump"):
		h.only(w, r, http.MethodPost, func() { h.handleTransition(w, r, wizard, parts[0]) })
	case parts[0] == "suggestions":
		h.handleSuggestions(w, r, wizard, parts[1:])
	case parts[0] == "import" && len(parts) == 1:
		h.only(w, r, http.MethodPost, func() { h.handleImport(w, r, wizard) })
	case parts[0] == "templates":
		h.handleTemplates(w, r, wizard, parts[1:])
	case parts[0] == "submit" && len(parts) == 1:
		h.only(w, r, http.MethodPost, func() { h.handleSubmit(w, r, wizard) })
	case parts[0] == "reset" && len(parts) == 1:
		h.only(w, r, http.MethodPost, func() {
			wizard.Reset(r.Context())
			writeJSON(w, http.StatusOK, wizard.Snapshot())
		})
	case strings.HasPrefix(parts[0], "export.") && len(parts) == 1:
		h.only(w, r, http.MethodGet, func() { h.handleExport(w, r, wizard, strings.TrimPrefix(parts[0], "export.")) })
	case parts[0] == "theme" && len(parts) == 1:
		h.handleTheme(w, r, wizard)
	default:
		http.NotFound(w, r)
	}
}

func (h *Handler) only(w http.ResponseWriter, r *http.Request, method string, fn func()) {
	if r.Method != method {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	fn()
}

func (h *Handler) handlePlant(w http.ResponseWriter, r *http.Request, wizard *application.Wizard) {
	var plant onboarding.PlantInfo
	if !decodeJSON(w, r, &plant) {
		return
	}
	wizard.SetPlant(r.Context(), plant)
	writeJSON(w, http.StatusOK, wizard.Snapshot())
}

type assetPatch struct {
	DisplayName *string               `json:"display_name"`
	AssetType   *onboarding.AssetType `json:"asset_type"`
}

func (h *Handler) handleAssets(w http.ResponseWriter, r *http.Request, wizard *application.Wizard, parts []string) {
	ctx := r.Context()
	if len(parts) == 0 {
		switch r.Method {
		case http.MethodPut:
			var assets []onboarding.Asset
			if !decodeJSON(w, r, &assets) {
				return
			}
			if err := wizard.SetAssets(ctx, assets); err != nil {
				writeError(w, err)
				return
			}
		case http.MethodPost:
			wizard.AddAsset(ctx)
		default:
			w.WriteHeader(http.StatusMethodNotAllowed)
			return
		}
		writeJSON(w, http.StatusOK, wizard.Snapshot())
		return
	}
	if len(parts) != 1 {
		http.NotFound(w, r)
		return
	}
	index, err := strconv.Atoi(parts[0])
	if err != nil {
		http.Error(w, "asset index must be an integer", http.StatusBadRequest)
		return
	}
	switch r.Method {
	case http.MethodPatch:
		var patch assetPatch
		if !decodeJSON(w, r, &patch) {
			return
		}
		err = wizard.UpdateAsset(ctx, index, patch.DisplayName, patch.AssetType)
	case http.MethodDelete:
		err = wizard.RemoveAsset(ctx, index)
	default:
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, wizard.Snapshot())
}

func (h *Handler) handleParameters(w http.ResponseWriter, r *http.Request, wizard *application.Wizard, parts []string) {
	ctx := r.Context()
	switch {
	case len(parts) == 0:
		h.only(w, r, http.MethodPut, func() {
			var params []onboarding.Parameter
			if !decodeJSON(w, r, &params) {
				return
			}
			if err := wizard.SetParameters(ctx, params); err != nil {
				writeError(w, err)
				return
			}
			writeJSON(w, http.StatusOK, wizard.Snapshot())
		})
	case len(parts) == 1 && parts[0] == "refresh":
		h.only(w, r, http.MethodPost, func() {
			if err := wizard.RefreshParameters(ctx); err != nil {
				writeError(w, err)
				return
			}
			writeJSON(w, http.StatusOK, wizard.Snapshot())
		})
	case len(parts) == 2 && parts[1] == "toggle":
		h.only(w, r, http.MethodPost, func() {
			if _, err := wizard.ToggleParameter(ctx, parts[0]); err != nil {
				writeError(w, err)
				return
			}
			writeJSON(w, http.StatusOK, wizard.Snapshot())
		})
	case len(parts) == 1:
		h.only(w, r, http.MethodPatch, func() {
			var override onboarding.ParameterOverride
			if !decodeJSON(w, r, &override) {
				return
			}
			if err := wizard.UpdateParameter(ctx, parts[0], override); err != nil {
				writeError(w, err)
				return
			}
			writeJSON(w, http.StatusOK, wizard.Snapshot())
		})
	default:
		http.NotFound(w, r)
	}
}

type formulaRequest struct {
	Expression string `json:"expression"`
}

func (h *Handler) handleFormula(w http.ResponseWriter, r *http.Request, wizard *application.Wizard, parameter string) {
	var req formulaRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	if err := wizard.SetFormulaExpression(r.Context(), parameter, req.Expression); err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusAccepted, wizard.Snapshot())
}

type jumpRequest struct {
	Step int `json:"step"`
}

type transitionResponse struct {
	Moved    bool                 `json:"moved"`
	Snapshot application.Snapshot `json:"snapshot"`
}

func (h *Handler) handleTransition(w http.ResponseWriter, r *http.Request, wizard *application.Wizard, kind string) {
	var moved bool
	switch kind {
	case "advance":
		moved = wizard.Advance(r.Context())
	case "retreat":
		moved = wizard.Retreat(r.Context())
	case "jump":
		var req jumpRequest
		if !decodeJSON(w, r, &req) {
			return
		}
		var err error
		moved, err = wizard.JumpTo(r.Context(), onboarding.Step(req.Step))
		if err != nil {
			writeError(w, err)
			return
		}
	}
	writeJSON(w, http.StatusOK, transitionResponse{Moved: moved, Snapshot: wizard.Snapshot()})
}

type acceptRequest struct {
	Parameters []onboarding.Parameter `json:"parameters"`
}

type acceptResponse struct {
	Added    int                  `json:"added"`
	Snapshot application.Snapshot `json:"snapshot"`
}

func (h *Handler) handleSuggestions(w http.ResponseWriter, r *http.Request, wizard *application.Wizard, parts []string) {
	switch {
	case len(parts) == 0:
		h.only(w, r, http.MethodPost, func() {
			suggestions := wizard.Suggest(r.Context())
			writeJSON(w, http.StatusOK, map[string]any{"suggestions": suggestions, "count": len(suggestions)})
		})
	case len(parts) == 1 && parts[0] == "accept":
		h.only(w, r, http.MethodPost, func() {
			var req acceptRequest
			if !decodeJSON(w, r, &req) {
				return
			}
			added := wizard.AcceptParameters(r.Context(), req.Parameters)
			writeJSON(w, http.StatusOK, acceptResponse{Added: added, Snapshot: wizard.Snapshot()})
		})
	default:
		http.NotFound(w, r)
	}
}

func (h *Handler) handleImport(w http.ResponseWriter, r *http.Request, wizard *application.Wizard) {
	r.Body = http.MaxBytesReader(w, r.Body, maxUploadBytes)
	file, header, err := r.FormFile("file")
	if err != nil {
		http.Error(w, "multipart field \"file\" required", http.StatusBadRequest)
		return
	}
	defer file.Close()

	outcome, err := wizard.ImportParameters(r.Context(), header.Filename, file)
	if err != nil {
		writeJSON(w, http.StatusBadGateway, outcome)
		return
	}
	writeJSON(w, http.StatusOK, outcome)
}

type templateSaveRequest struct {
	Name        string `json:"name"`
	Description string `json:"description"`
}

func (h *Handler) handleTemplates(w http.ResponseWriter, r *http.Request, wizard *application.Wizard, parts []string) {
	ctx := r.Context()
	switch {
	case len(parts) == 0 && r.Method == http.MethodGet:
		writeJSON(w, http.StatusOK, map[string]any{"templates": wizard.ListTemplates(ctx)})
	case len(parts) == 0 && r.Method == http.MethodPost:
		var req templateSaveRequest
		if !decodeJSON(w, r, &req) {
			return
		}
		outcome, err := wizard.SaveTemplate(ctx, req.Name, req.Description)
		if err != nil {
			writeOutcomeError(w, err, outcome)
			return
		}
		h.logAudit(r, wizard.Session(), "template.save", "template", outcome.ID, map[string]any{"name": strings.TrimSpace(req.Name)})
		writeJSON(w, http.StatusCreated, outcome)
	case len(parts) == 2 && parts[1] == "load":
		h.only(w, r, http.MethodPost, func() {
			outcome, err := wizard.LoadTemplate(ctx, parts[0])
			if err != nil {
				writeOutcomeError(w, err, outcome)
				return
			}
			writeJSON(w, http.StatusOK, map[string]any{"message": outcome.Message, "id": outcome.ID, "snapshot": wizard.Snapshot()})
		})
	case len(parts) == 1:
		h.only(w, r, http.MethodDelete, func() {
			outcome, err := wizard.DeleteTemplate(ctx, parts[0])
			if err != nil {
				writeOutcomeError(w, err, outcome)
				return
			}
			h.logAudit(r, wizard.Session(), "template.delete", "template", parts[0], nil)
			writeJSON(w, http.StatusOK, outcome)
		})
	case len(parts) == 0:
		w.WriteHeader(http.StatusMethodNotAllowed)
	default:
		http.NotFound(w, r)
	}
}

func (h *Handler) handleSubmit(w http.ResponseWriter, r *http.Request, wizard *application.Wizard) {
	outcome, err := wizard.Submit(r.Context())
	if errors.Is(err, application.ErrNotAtReview) {
		writeError(w, err)
		return
	}
	if err != nil {
		writeJSON(w, http.StatusBadGateway, outcome)
		return
	}
	h.logAudit(r, wizard.Session(), "wizard.submit", "plant", outcome.Payload.Plant.Name, map[string]any{
		"assets":     len(outcome.Payload.Assets),
		"parameters": len(outcome.Payload.Parameters),
		"formulas":   len(outcome.Payload.Formulas),
	})
	writeJSON(w, http.StatusOK, outcome)
}

func (h *Handler) handleExport(w http.ResponseWriter, r *http.Request, wizard *application.Wizard, ext string) {
	format, ok := export.ParseFormat(ext)
	if !ok {
		http.NotFound(w, r)
		return
	}
	payload := wizard.Payload()
	data, err := export.Render(payload, format)
	if err != nil {
		h.logger.Printf("wizard export failed: session=%s format=%s err=%v", wizard.Session(), format, err)
		http.Error(w, "export failed", http.StatusInternalServerError)
		return
	}
	filename := export.FileName(application.PayloadFileName(payload.Plant.Name), format)
	w.Header().Set("Content-Type", format.ContentType())
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", filename))
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(data)
}

type themeBody struct {
	Theme application.Theme `json:"theme"`
}

func (h *Handler) handleTheme(w http.ResponseWriter, r *http.Request, wizard *application.Wizard) {
	switch r.Method {
	case http.MethodGet:
		writeJSON(w, http.StatusOK, themeBody{Theme: wizard.Theme(r.Context())})
	case http.MethodPut:
		var body themeBody
		if !decodeJSON(w, r, &body) {
			return
		}
		if err := wizard.SetTheme(r.Context(), body.Theme); err != nil {
			writeError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, body)
	default:
		w.WriteHeader(http.StatusMethodNotAllowed)
	}
}

func (h *Handler) logAudit(r *http.Request, session, action, resourceType, resourceID string, meta map[string]any) {
	if h.auditLogger == nil {
		return
	}
	var raw json.RawMessage
	if meta != nil {
		raw, _ = json.Marshal(meta)
	}
	err := h.auditLogger.Log(r.Context(), audit.Entry{
		TenantID:     auth.TenantIDFromContext(r.Context()),
		Actor:        auth.SubjectFromContext(r.Context()),
		Role:         string(auth.RoleFromContext(r.Context())),
		Action:       action,
		ResourceType: resourceType,
		ResourceID:   resourceID,
		Session:      session,
		Metadata:     raw,
		IP:           audit.ClientIP(r),
		UserAgent:    r.UserAgent(),
	})
	if err != nil {
		h.logger.Printf("audit write failed: action=%s err=%v", action, err)
	}
}

func sessionKey(r *http.Request) string {
	if key := auth.SessionKey(r.Context()); key != "" {
		return key
	}
	return application.DefaultSession
}

func decodeJSON(w http.ResponseWriter, r *http.Request, out any) bool {
	r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)
	defer r.Body.Close()
	body, err := io.ReadAll(r.Body)
	if err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			http.Error(w, "request body too large", http.StatusRequestEntityTooLarge)
			return false
		}
		http.Error(w, "read body error", http.StatusBadRequest)
		return false
	}
	if err := json.Unmarshal(body, out); err != nil {
		http.Error(w, "invalid json", http.StatusBadRequest)
		return false
	}
	return true
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeOutcomeError(w http.ResponseWriter, err error, outcome application.TemplateOutcome) {
	if errors.Is(err, application.ErrTemplateNameRequired) {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusBadGateway, outcome)
}

func writeError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, onboarding.ErrAssetNotFound),
		errors.Is(err, onboarding.ErrParameterNotFound),
		errors.Is(err, onboarding.ErrFormulaNotFound):
		http.Error(w, err.Error(), http.StatusNotFound)
	case errors.Is(err, onboarding.ErrInvalidCategory),
		errors.Is(err, onboarding.ErrInvalidAssetType),
		errors.Is(err, onboarding.ErrInvalidStep),
		errors.Is(err, application.ErrInvalidTheme),
		errors.Is(err, application.ErrTemplateNameRequired),
		errors.Is(err, application.ErrNoAssetTypes):
		http.Error(w, err.Error(), http.StatusBadRequest)
	case errors.Is(err, application.ErrNotAtReview):
		http.Error(w, err.Error(), http.StatusConflict)
	case errors.Is(err, application.ErrCatalogUnavailable):
		http.Error(w, application.CatalogUnavailable, http.StatusBadGateway)
	default:
		http.Error(w, "internal error", http.StatusInternalServerError)
	}
}
