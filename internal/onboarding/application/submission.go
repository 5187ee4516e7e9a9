package application

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"strings"
	"time"

	onboarding "plant-onboarding/internal/onboarding/domain"
	"plant-onboarding/internal/observability/metrics"
)

// SubmissionFailed is surfaced when the backend rejects or cannot be reached.
const SubmissionFailed = "Submission failed. Please check the backend connection."

// ErrNotAtReview indicates a submission outside the review step.
var ErrNotAtReview = errors.New("wizard: submission requires the review step")

var whitespaceRun = regexp.MustCompile(`\s+`)

// BuildPayload assembles the backend payload from state. Only enabled
// parameters and formulas with an expression are included; UI-only fields
// are not part of the wire types.
func BuildPayload(state onboarding.WizardState) onboarding.SubmissionPayload {
	payload := onboarding.SubmissionPayload{
		Plant:      state.Plant,
		Assets:     append([]onboarding.Asset{}, state.Assets...),
		Parameters: make([]onboarding.ParameterConfig, 0, len(state.Parameters)),
		Formulas:   make([]onboarding.FormulaConfig, 0, len(state.Formulas)),
	}
	for _, p := range state.Parameters {
		if !p.Enabled {
			continue
		}
		payload.Parameters = append(payload.Parameters, onboarding.ParameterConfig{
			Name:        p.Name,
			DisplayName: p.DisplayName,
			Unit:        p.Unit,
			Category:    p.Category,
			Section:     p.Section,
		})
	}
	for _, f := range state.Formulas {
		if strings.TrimSpace(f.Expression) == "" {
			continue
		}
		dependsOn := append([]string{}, f.DependsOn...)
		payload.Formulas = append(payload.Formulas, onboarding.FormulaConfig{
			ParameterName: f.ParameterName,
			Expression:    f.Expression,
			DependsOn:     dependsOn,
		})
	}
	return payload
}

// PayloadFileName names the JSON download after the plant.
func PayloadFileName(plantName string) string {
	base := strings.ToLower(whitespaceRun.ReplaceAllString(plantName, "_"))
	if base == "" {
		base = "plant"
	}
	return base + "_onboarding.json"
}

// SubmitOutcome is what the presentation layer shows after a submission.
type SubmitOutcome struct {
	Message  string                         `json:"message"`
	Response *onboarding.SubmissionResponse `json:"response,omitempty"`
	Payload  onboarding.SubmissionPayload   `json:"payload"`
}

// Payload returns the submission payload for the current state.
func (w *Wizard) Payload() onboarding.SubmissionPayload {
	w.mu.Lock()
	defer w.mu.Unlock()
	return BuildPayload(w.state)
}

// Submit sends the payload from the review step. On failure the outcome
// still carries the message to display.
func (w *Wizard) Submit(ctx context.Context) (SubmitOutcome, error) {
	w.mu.Lock()
	if w.state.CurrentStep != onboarding.StepReview {
		w.mu.Unlock()
		return SubmitOutcome{}, ErrNotAtReview
	}
	payload := BuildPayload(w.state)
	w.mu.Unlock()

	start := time.Now()
	resp, err := w.gateway.Submit(ctx, payload)
	if err != nil {
		metrics.ObserveSubmission(metrics.ResultError, time.Since(start))
		w.logger.Printf("wizard submit failed: session=%s plant=%s err=%v", w.session, payload.Plant.Name, err)
		return SubmitOutcome{Message: SubmissionFailed, Payload: payload}, fmt.Errorf("wizard: submit: %w", err)
	}
	metrics.ObserveSubmission(metrics.ResultSuccess, time.Since(start))
	w.logger.Printf("wizard submitted: session=%s plant=%s parameters=%d formulas=%d", w.session, payload.Plant.Name, len(payload.Parameters), len(payload.Formulas))

	w.mu.Lock()
	w.submitted = true
	w.mu.Unlock()

	if w.notifier != nil {
		if err := w.notifier.NotifySubmitted(ctx, payload, resp); err != nil {
			w.logger.Printf("submission notify failed: session=%s err=%v", w.session, err)
		}
	}
	return SubmitOutcome{Message: resp.Message, Response: &resp, Payload: payload}, nil
}
