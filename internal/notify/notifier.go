package notify

import (
	"context"
	"crypto/sha1"
	"encoding/hex"
	"errors"
	"fmt"
	"log"
	"os"
	"strings"
	"sync"
	"time"

	onboarding "plant-onboarding/internal/onboarding/domain"
)

// Clock provides time for dedupe bookkeeping.
type Clock interface {
	Now() time.Time
}

// Notifier announces accepted onboarding submissions on a channel.
type Notifier struct {
	channel        Channel
	template       *Template
	clock          Clock
	logger         *log.Logger
	dedupeWindow   time.Duration
	requestTimeout time.Duration

	mu   sync.Mutex
	sent map[string]time.Time
}

// Option configures the notifier.
type Option func(*Notifier)

// WithClock overrides the default clock.
func WithClock(clock Clock) Option {
	return func(n *Notifier) {
		if clock != nil {
			n.clock = clock
		}
	}
}

// WithDedupeWindow suppresses identical notifications within the window.
// Resubmitting the same plant twice in quick succession only posts once.
func WithDedupeWindow(window time.Duration) Option {
	return func(n *Notifier) {
		if window > 0 {
			n.dedupeWindow = window
		}
	}
}

// WithRequestTimeout bounds each channel send.
func WithRequestTimeout(timeout time.Duration) Option {
	return func(n *Notifier) {
		if timeout > 0 {
			n.requestTimeout = timeout
		}
	}
}

// WithLogger sets the notifier logger.
func WithLogger(logger *log.Logger) Option {
	return func(n *Notifier) {
		if logger != nil {
			n.logger = logger
		}
	}
}

// NewNotifier constructs a submission notifier.
func NewNotifier(channel Channel, template *Template, opts ...Option) (*Notifier, error) {
	if channel == nil {
		return nil, errors.New("submission notifier: nil channel")
	}
	if template == nil {
		defaultTemplate, err := NewTemplate("")
		if err != nil {
			return nil, err
		}
		template = defaultTemplate
	}
	n := &Notifier{
		channel:        channel,
		template:       template,
		clock:          systemClock{},
		logger:         log.New(os.Stdout, "", log.LstdFlags),
		requestTimeout: 5 * time.Second,
		sent:           make(map[string]time.Time),
	}
	for _, opt := range opts {
		opt(n)
	}
	return n, nil
}

// NotifySubmitted renders the submission and sends it.
func (n *Notifier) NotifySubmitted(ctx context.Context, payload onboarding.SubmissionPayload, resp onboarding.SubmissionResponse) error {
	if n == nil {
		return nil
	}
	content, err := n.template.Render(buildTemplateData(payload, resp))
	if err != nil {
		return fmt.Errorf("submission notifier: render: %w", err)
	}
	hash := hashContent(content)
	if !n.shouldSend(hash) {
		n.logger.Printf("submission notification suppressed: plant=%s", payload.Plant.Name)
		return nil
	}

	if n.requestTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, n.requestTimeout)
		defer cancel()
	}
	if err := n.channel.Send(ctx, content); err != nil {
		return fmt.Errorf("submission notifier: send: %w", err)
	}
	n.markSent(hash)
	return nil
}

func buildTemplateData(payload onboarding.SubmissionPayload, resp onboarding.SubmissionResponse) TemplateData {
	names := make([]string, 0, len(payload.Assets))
	for _, asset := range payload.Assets {
		label := asset.DisplayName
		if label == "" {
			label = asset.Name
		}
		if label != "" {
			names = append(names, label)
		}
	}
	plantName := payload.Plant.Name
	if resp.Summary.PlantName != "" {
		plantName = resp.Summary.PlantName
	}
	submittedAt := resp.Summary.SubmittedAt
	if submittedAt == "" {
		submittedAt = time.Now().UTC().Format(time.RFC3339)
	}
	return TemplateData{
		Plant:         plantName,
		Address:       payload.Plant.Address,
		Manager:       payload.Plant.ManagerEmail,
		NumAssets:     len(payload.Assets),
		AssetNames:    strings.Join(names, ", "),
		NumParameters: len(payload.Parameters),
		NumFormulas:   len(payload.Formulas),
		SubmittedAt:   submittedAt,
		Status:        resp.Status,
		Message:       resp.Message,
	}
}

func (n *Notifier) shouldSend(hash string) bool {
	if n.dedupeWindow <= 0 {
		return true
	}
	n.mu.Lock()
	defer n.mu.Unlock()
	at, ok := n.sent[hash]
	if !ok {
		return true
	}
	return n.clock.Now().Sub(at) >= n.dedupeWindow
}

func (n *Notifier) markSent(hash string) {
	if n.dedupeWindow <= 0 {
		return
	}
	now := n.clock.Now().UTC()
	n.mu.Lock()
	for key, at := range n.sent {
		if now.Sub(at) >= n.dedupeWindow {
			delete(n.sent, key)
		}
	}
	n.sent[hash] = now
	n.mu.Unlock()
}

func hashContent(content string) string {
	sum := sha1.Sum([]byte(content))
	return hex.EncodeToString(sum[:8])
}

type systemClock struct{}

func (systemClock) Now() time.Time { return time.Now().UTC() }
