package main

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	onboarding "plant-onboarding/internal/onboarding/domain"
)

type config struct {
	HTTPAddr           string
	BackendBaseURL     string
	BackendToken       string
	BackendTimeout     time.Duration
	BackendRateLimit   float64
	StoreType          string
	StoreDSN           string
	JWTSecret          string
	FormulaDebounce    time.Duration
	ValidateTimeout    time.Duration
	NotifyWebhookURL   string
	NotifyTemplate     string
	NotifyDedupeWindow time.Duration
	NotifyTimeout      time.Duration
	SessionIdle        time.Duration
	SessionSweep       time.Duration
	AssetTypes         []onboarding.AssetTypeOption
}

// fileConfig is the optional YAML overlay named by ONBOARDING_CONFIG.
type fileConfig struct {
	Store struct {
		Type string `yaml:"type"`
		DSN  string `yaml:"dsn"`
	} `yaml:"store"`
	FormulaDebounce string `yaml:"formula_debounce"`
	Notify          struct {
		WebhookURL   string `yaml:"webhook_url"`
		Template     string `yaml:"template"`
		DedupeWindow string `yaml:"dedupe_window"`
	} `yaml:"notify"`
	AssetTypes []onboarding.AssetTypeOption `yaml:"asset_types"`
}

func loadConfig() (config, error) {
	cfg := config{
		HTTPAddr:           getenvDefault("HTTP_ADDR", ":8080"),
		BackendBaseURL:     getenvDefault("BACKEND_BASE_URL", ""),
		BackendToken:       getenvDefault("BACKEND_TOKEN", ""),
		BackendTimeout:     getenvDuration("BACKEND_TIMEOUT", 10*time.Second),
		BackendRateLimit:   getenvFloatDefault("BACKEND_RATE_LIMIT", 0),
		StoreType:          getenvDefault("STORE_TYPE", "sqlite"),
		StoreDSN:           getenvDefault("STORE_DSN", getenvDefault("PG_DSN", "")),
		JWTSecret:          getenvDefault("AUTH_JWT_SECRET", ""),
		FormulaDebounce:    getenvDuration("FORMULA_DEBOUNCE", 600*time.Millisecond),
		ValidateTimeout:    getenvDuration("FORMULA_VALIDATE_TIMEOUT", 10*time.Second),
		NotifyWebhookURL:   getenvDefault("NOTIFY_WEBHOOK_URL", ""),
		NotifyTemplate:     getenvDefault("NOTIFY_TEMPLATE", ""),
		NotifyDedupeWindow: getenvDuration("NOTIFY_DEDUP_WINDOW", 0),
		NotifyTimeout:      getenvDuration("NOTIFY_TIMEOUT", 5*time.Second),
		SessionIdle:        getenvDuration("SESSION_IDLE_TIMEOUT", 30*time.Minute),
		SessionSweep:       getenvDuration("SESSION_SWEEP_INTERVAL", 5*time.Minute),
	}

	if path := os.Getenv("ONBOARDING_CONFIG"); path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return cfg, err
		}
		if err := applyFile(&cfg, data); err != nil {
			return cfg, fmt.Errorf("config %s: %w", path, err)
		}
	}

	if cfg.BackendBaseURL == "" {
		return cfg, errors.New("BACKEND_BASE_URL is required")
	}
	return cfg, nil
}

func applyFile(cfg *config, data []byte) error {
	var file fileConfig
	if err := yaml.Unmarshal(data, &file); err != nil {
		return err
	}
	if file.Store.Type != "" {
		cfg.StoreType = file.Store.Type
	}
	if file.Store.DSN != "" {
		cfg.StoreDSN = file.Store.DSN
	}
	if file.FormulaDebounce != "" {
		d, err := time.ParseDuration(file.FormulaDebounce)
		if err != nil {
			return fmt.Errorf("formula_debounce: %w", err)
		}
		cfg.FormulaDebounce = d
	}
	if file.Notify.WebhookURL != "" {
		cfg.NotifyWebhookURL = file.Notify.WebhookURL
	}
	if file.Notify.Template != "" {
		cfg.NotifyTemplate = file.Notify.Template
	}
	if file.Notify.DedupeWindow != "" {
		d, err := time.ParseDuration(file.Notify.DedupeWindow)
		if err != nil {
			return fmt.Errorf("notify.dedupe_window: %w", err)
		}
		cfg.NotifyDedupeWindow = d
	}
	for _, opt := range file.AssetTypes {
		if !onboarding.IsValidAssetType(opt.Value) {
			return fmt.Errorf("asset_types: %w: %s", onboarding.ErrInvalidAssetType, opt.Value)
		}
	}
	if len(file.AssetTypes) > 0 {
		cfg.AssetTypes = file.AssetTypes
	}
	return nil
}

func getenvDefault(key, fallback string) string {
	value := strings.TrimSpace(os.Getenv(key))
	if value == "" {
		return fallback
	}
	return value
}

func getenvFloatDefault(key string, fallback float64) float64 {
	value := os.Getenv(key)
	if value == "" {
		return fallback
	}
	parsed, err := strconv.ParseFloat(value, 64)
	if err != nil {
		return fallback
	}
	return parsed
}

func getenvDuration(key string, fallback time.Duration) time.Duration {
	value := os.Getenv(key)
	if value == "" {
		return fallback
	}
	parsed, err := time.ParseDuration(value)
	if err != nil {
		return fallback
	}
	return parsed
}
