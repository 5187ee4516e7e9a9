package notify

import (
	"context"
	"errors"

	onboarding "plant-onboarding/internal/onboarding/domain"
)

// SubmissionNotifier mirrors the wizard's notifier port.
type SubmissionNotifier interface {
	NotifySubmitted(ctx context.Context, payload onboarding.SubmissionPayload, resp onboarding.SubmissionResponse) error
}

// MultiNotifier fans a submission out to several notifiers.
type MultiNotifier struct {
	notifiers []SubmissionNotifier
}

// NewMultiNotifier constructs a MultiNotifier, skipping nil entries.
func NewMultiNotifier(notifiers ...SubmissionNotifier) *MultiNotifier {
	m := &MultiNotifier{}
	for _, n := range notifiers {
		if n != nil {
			m.notifiers = append(m.notifiers, n)
		}
	}
	return m
}

// NotifySubmitted forwards to every notifier and joins their errors.
func (m *MultiNotifier) NotifySubmitted(ctx context.Context, payload onboarding.SubmissionPayload, resp onboarding.SubmissionResponse) error {
	if m == nil {
		return nil
	}
	var errs []error
	for _, n := range m.notifiers {
		if err := n.NotifySubmitted(ctx, payload, resp); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// Len returns the number of wired notifiers.
func (m *MultiNotifier) Len() int {
	if m == nil {
		return 0
	}
	return len(m.notifiers)
}
