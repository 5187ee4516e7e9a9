package gateway

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log"
	"mime/multipart"
	"net/http"
	"net/url"
	"os"
	"strings"
	"time"

	"golang.org/x/sync/singleflight"
	"golang.org/x/time/rate"

	onboarding "plant-onboarding/internal/onboarding/domain"
	"plant-onboarding/internal/observability/metrics"
)

// ErrNotFound is returned for HTTP 404 responses.
var ErrNotFound = errors.New("gateway: not found")

// Client is the REST client for the onboarding backend.
type Client struct {
	baseURL string
	token   string
	client  *http.Client
	limiter *rate.Limiter
	logger  *log.Logger
	fetches singleflight.Group
}

// Option configures a Client.
type Option func(*Client)

// WithHTTPClient replaces the underlying HTTP client.
func WithHTTPClient(client *http.Client) Option {
	return func(c *Client) {
		if client != nil {
			c.client = client
		}
	}
}

// WithTimeout sets the per-request timeout on a copy of the HTTP client.
func WithTimeout(timeout time.Duration) Option {
	return func(c *Client) {
		if timeout > 0 {
			copied := *c.client
			copied.Timeout = timeout
			c.client = &copied
		}
	}
}

// WithRateLimit caps outbound requests per second. Zero disables limiting.
func WithRateLimit(perSecond float64) Option {
	return func(c *Client) {
		if perSecond > 0 {
			c.limiter = rate.NewLimiter(rate.Limit(perSecond), 1)
		}
	}
}

// WithLogger sets the client logger.
func WithLogger(logger *log.Logger) Option {
	return func(c *Client) {
		if logger != nil {
			c.logger = logger
		}
	}
}

// NewClient constructs a backend client.
func NewClient(baseURL, token string, opts ...Option) (*Client, error) {
	if strings.TrimSpace(baseURL) == "" {
		return nil, errors.New("gateway: empty base url")
	}
	c := &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		token:   token,
		client:  &http.Client{Timeout: 10 * time.Second},
		logger:  log.New(os.Stdout, "", log.LstdFlags),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c, nil
}

// FetchParameters loads the catalog for a set of asset types. Concurrent
// fetches for the same set share one request. The shared request is not
// bound to any single caller; each caller stops waiting when its own ctx
// is done.
func (c *Client) FetchParameters(ctx context.Context, assetTypes []string) ([]onboarding.Parameter, error) {
	key := strings.Join(assetTypes, ",")
	shared := context.WithoutCancel(ctx)
	ch := c.fetches.DoChan(key, func() (any, error) {
		path := "/api/parameters"
		if key != "" {
			path += "?" + url.Values{"asset_types": {key}}.Encode()
		}
		var params []onboarding.Parameter
		err := c.observe("fetch_parameters", func() error {
			return c.doJSON(shared, http.MethodGet, path, nil, &params)
		})
		return params, err
	})

	var res singleflight.Result
	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case res = <-ch:
	}
	if res.Err != nil {
		return nil, res.Err
	}
	catalog := res.Val.([]onboarding.Parameter)
	out := make([]onboarding.Parameter, len(catalog))
	for i, p := range catalog {
		p.Enabled = false
		p.ApplicableAssetTypes = append([]string(nil), p.ApplicableAssetTypes...)
		out[i] = p
	}
	return out, nil
}

type validateRequest struct {
	Expression        string   `json:"expression"`
	EnabledParameters []string `json:"enabled_parameters"`
}

// ValidateFormula asks the backend to check an expression.
func (c *Client) ValidateFormula(ctx context.Context, expression string, enabledParameters []string) (onboarding.FormulaValidation, error) {
	if enabledParameters == nil {
		enabledParameters = []string{}
	}
	var resp onboarding.FormulaValidation
	err := c.observe("validate_formula", func() error {
		return c.doJSON(ctx, http.MethodPost, "/api/validate-formula", validateRequest{
			Expression:        expression,
			EnabledParameters: enabledParameters,
		}, &resp)
	})
	if err != nil {
		return onboarding.FormulaValidation{}, err
	}
	if resp.DependsOn == nil {
		resp.DependsOn = []string{}
	}
	return resp, nil
}

type suggestRequest struct {
	Description string   `json:"description"`
	AssetTypes  []string `json:"asset_types"`
}

// SuggestParameters asks the suggestion service for parameters.
func (c *Client) SuggestParameters(ctx context.Context, description string, assetTypes []string) (onboarding.SuggestionResult, error) {
	if assetTypes == nil {
		assetTypes = []string{}
	}
	var resp onboarding.SuggestionResult
	err := c.observe("suggest_parameters", func() error {
		return c.doJSON(ctx, http.MethodPost, "/api/suggest-parameters", suggestRequest{
			Description: description,
			AssetTypes:  assetTypes,
		}, &resp)
	})
	if err != nil {
		return onboarding.SuggestionResult{}, err
	}
	return resp, nil
}

// ImportParameters uploads a CSV/TSV file as multipart field "file".
func (c *Client) ImportParameters(ctx context.Context, filename string, file io.Reader) (onboarding.ImportResult, error) {
	if file == nil {
		return onboarding.ImportResult{}, errors.New("gateway: nil file")
	}
	if filename == "" {
		filename = "parameters.csv"
	}
	var body bytes.Buffer
	writer := multipart.NewWriter(&body)
	part, err := writer.CreateFormFile("file", filename)
	if err != nil {
		return onboarding.ImportResult{}, err
	}
	if _, err := io.Copy(part, file); err != nil {
		return onboarding.ImportResult{}, err
	}
	if err := writer.Close(); err != nil {
		return onboarding.ImportResult{}, err
	}

	var resp onboarding.ImportResult
	err = c.observe("import_parameters", func() error {
		return c.do(ctx, http.MethodPost, "/api/import-parameters", writer.FormDataContentType(), &body, &resp)
	})
	if err != nil {
		return onboarding.ImportResult{}, err
	}
	return resp, nil
}

type templateList struct {
	Templates []onboarding.TemplateInfo `json:"templates"`
}

// ListTemplates returns stored templates.
func (c *Client) ListTemplates(ctx context.Context) ([]onboarding.TemplateInfo, error) {
	var resp templateList
	err := c.observe("list_templates", func() error {
		return c.doJSON(ctx, http.MethodGet, "/api/templates", nil, &resp)
	})
	if err != nil {
		return nil, err
	}
	if resp.Templates == nil {
		resp.Templates = []onboarding.TemplateInfo{}
	}
	return resp.Templates, nil
}

// GetTemplate loads one template.
func (c *Client) GetTemplate(ctx context.Context, id string) (onboarding.Template, error) {
	if id == "" {
		return onboarding.Template{}, errors.New("gateway: empty template id")
	}
	var resp onboarding.Template
	err := c.observe("get_template", func() error {
		return c.doJSON(ctx, http.MethodGet, "/api/templates/"+url.PathEscape(id), nil, &resp)
	})
	if err != nil {
		return onboarding.Template{}, err
	}
	return resp, nil
}

// SaveTemplate stores a template.
func (c *Client) SaveTemplate(ctx context.Context, req onboarding.TemplateSaveRequest) (onboarding.TemplateSaveResponse, error) {
	var resp onboarding.TemplateSaveResponse
	err := c.observe("save_template", func() error {
		return c.doJSON(ctx, http.MethodPost, "/api/templates", req, &resp)
	})
	if err != nil {
		return onboarding.TemplateSaveResponse{}, err
	}
	return resp, nil
}

// DeleteTemplate removes a template.
func (c *Client) DeleteTemplate(ctx context.Context, id string) error {
	if id == "" {
		return errors.New("gateway: empty template id")
	}
	return c.observe("delete_template", func() error {
		return c.doJSON(ctx, http.MethodDelete, "/api/templates/"+url.PathEscape(id), nil, nil)
	})
}

// Submit posts the onboarding payload.
func (c *Client) Submit(ctx context.Context, payload onboarding.SubmissionPayload) (onboarding.SubmissionResponse, error) {
	var resp onboarding.SubmissionResponse
	err := c.observe("submit", func() error {
		return c.doJSON(ctx, http.MethodPost, "/api/onboarding", payload, &resp)
	})
	if err != nil {
		return onboarding.SubmissionResponse{}, err
	}
	return resp, nil
}

func (c *Client) observe(operation string, call func() error) error {
	start := time.Now()
	err := call()
	result := metrics.ResultSuccess
	if err != nil {
		result = metrics.ResultError
		c.logger.Printf("gateway call failed: op=%s err=%v", operation, err)
	}
	metrics.ObserveGateway(operation, result, time.Since(start))
	return err
}

func (c *Client) doJSON(ctx context.Context, method, path string, body any, out any) error {
	var reqBody io.Reader
	contentType := ""
	if body != nil {
		payload, err := json.Marshal(body)
		if err != nil {
			return err
		}
		reqBody = bytes.NewReader(payload)
		contentType = "application/json"
	}
	return c.do(ctx, method, path, contentType, reqBody, out)
}

func (c *Client) do(ctx context.Context, method, path, contentType string, body io.Reader, out any) error {
	if c.limiter != nil {
		if err := c.limiter.Wait(ctx); err != nil {
			return fmt.Errorf("gateway: rate limit wait: %w", err)
		}
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, body)
	if err != nil {
		return err
	}
	if contentType != "" {
		req.Header.Set("Content-Type", contentType)
	}
	req.Header.Set("Accept", "application/json")
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}

	resp, err := c.client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusNotFound {
		return ErrNotFound
	}
	if resp.StatusCode >= 300 {
		return statusError(resp)
	}
	if out == nil {
		return nil
	}
	return json.NewDecoder(resp.Body).Decode(out)
}

func statusError(resp *http.Response) error {
	var detail struct {
		Detail any `json:"detail"`
	}
	data, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
	if err := json.Unmarshal(data, &detail); err == nil && detail.Detail != nil {
		return fmt.Errorf("gateway: http %d: %v", resp.StatusCode, detail.Detail)
	}
	return fmt.Errorf("gateway: http %d", resp.StatusCode)
}
