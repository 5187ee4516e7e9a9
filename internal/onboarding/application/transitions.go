package application

import onboarding "plant-onboarding/internal/onboarding/domain"

type transition struct {
	gate     func(onboarding.WizardState) bool
	next     func(onboarding.WizardState) onboarding.Step
	prev     func(onboarding.WizardState) onboarding.Step
	terminal bool
}

func stay(step onboarding.Step) func(onboarding.WizardState) onboarding.Step {
	return func(onboarding.WizardState) onboarding.Step { return step }
}

// transitions is indexed by step. Targets are functions of state so the
// formulas page can be skipped when no calculated parameter is enabled.
var transitions = [onboarding.StepCount]transition{
	onboarding.StepPlantInfo: {
		gate: func(s onboarding.WizardState) bool { return onboarding.IsStep1Valid(s.Plant) },
		next: stay(onboarding.StepAssets),
		prev: stay(onboarding.StepPlantInfo),
	},
	onboarding.StepAssets: {
		gate: func(s onboarding.WizardState) bool { return onboarding.IsStep2Valid(s.Assets) },
		next: stay(onboarding.StepParameters),
		prev: stay(onboarding.StepPlantInfo),
	},
	onboarding.StepParameters: {
		gate: func(s onboarding.WizardState) bool { return onboarding.IsStep3Valid(s.Parameters) },
		next: func(s onboarding.WizardState) onboarding.Step {
			if onboarding.HasCalculatedParams(s.Parameters) {
				return onboarding.StepFormulas
			}
			return onboarding.StepReview
		},
		prev: stay(onboarding.StepAssets),
	},
	onboarding.StepFormulas: {
		gate: func(s onboarding.WizardState) bool {
			return !onboarding.HasCalculatedParams(s.Parameters) || onboarding.IsStep4Valid(s.Formulas)
		},
		next: stay(onboarding.StepReview),
		prev: stay(onboarding.StepParameters),
	},
	onboarding.StepReview: {
		gate: func(onboarding.WizardState) bool { return false },
		next: stay(onboarding.StepReview),
		prev: func(s onboarding.WizardState) onboarding.Step {
			if onboarding.HasCalculatedParams(s.Parameters) {
				return onboarding.StepFormulas
			}
			return onboarding.StepParameters
		},
		terminal: true,
	},
}

// CompletedSteps derives the completion vector. Review is never completed.
func CompletedSteps(state onboarding.WizardState) [onboarding.StepCount]bool {
	var completed [onboarding.StepCount]bool
	for step, t := range transitions {
		if t.terminal {
			continue
		}
		completed[step] = t.gate(state)
	}
	return completed
}

// CanAdvance reports whether Advance would move from the current step.
func CanAdvance(state onboarding.WizardState) bool {
	if !state.CurrentStep.Valid() {
		return false
	}
	t := transitions[state.CurrentStep]
	return !t.terminal && t.gate(state)
}

func nextStep(state onboarding.WizardState) (onboarding.Step, bool) {
	if !CanAdvance(state) {
		return state.CurrentStep, false
	}
	return transitions[state.CurrentStep].next(state), true
}

func prevStep(state onboarding.WizardState) (onboarding.Step, bool) {
	if !state.CurrentStep.Valid() || state.CurrentStep == onboarding.StepPlantInfo {
		return state.CurrentStep, false
	}
	return transitions[state.CurrentStep].prev(state), true
}

func canJump(state onboarding.WizardState, target onboarding.Step) bool {
	if !target.Valid() {
		return false
	}
	return target <= state.CurrentStep || CompletedSteps(state)[target]
}
