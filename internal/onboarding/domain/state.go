package onboarding

// Step is a wizard page index.
type Step int

const (
	StepPlantInfo Step = iota
	StepAssets
	StepParameters
	StepFormulas
	StepReview
)

// StepCount is the number of wizard pages.
const StepCount = 5

var stepLabels = [StepCount]string{"Plant Info", "Assets", "Parameters", "Formulas", "Review"}

// Valid reports whether s is inside [StepPlantInfo, StepReview].
func (s Step) Valid() bool {
	return s >= StepPlantInfo && s <= StepReview
}

// String returns the step label.
func (s Step) String() string {
	if !s.Valid() {
		return "Unknown"
	}
	return stepLabels[s]
}

// StepLabels returns all labels in order.
func StepLabels() []string {
	return append([]string(nil), stepLabels[:]...)
}

// WizardState is the full wizard aggregate. It is persisted as one blob.
type WizardState struct {
	Plant       PlantInfo   `json:"plant"`
	Assets      []Asset     `json:"assets"`
	Parameters  []Parameter `json:"parameters"`
	Formulas    []Formula   `json:"formulas"`
	CurrentStep Step        `json:"currentStep"`
}

// InitialState returns the defaults used on first visit and after reset.
func InitialState() WizardState {
	return WizardState{
		Plant:       DefaultPlant(),
		Assets:      []Asset{},
		Parameters:  []Parameter{},
		Formulas:    []Formula{},
		CurrentStep: StepPlantInfo,
	}
}

// Clone returns a deep copy.
func (s WizardState) Clone() WizardState {
	out := s
	out.Assets = append([]Asset{}, s.Assets...)
	out.Parameters = make([]Parameter, len(s.Parameters))
	for i, p := range s.Parameters {
		out.Parameters[i] = p.clone()
	}
	out.Formulas = make([]Formula, len(s.Formulas))
	for i, f := range s.Formulas {
		out.Formulas[i] = f.clone()
	}
	return out
}

// Normalize replaces nil collections with empty ones and clamps the step
// into range.
func (s *WizardState) Normalize() {
	if s.Assets == nil {
		s.Assets = []Asset{}
	}
	if s.Parameters == nil {
		s.Parameters = []Parameter{}
	}
	if s.Formulas == nil {
		s.Formulas = []Formula{}
	}
	for i := range s.Formulas {
		if s.Formulas[i].DependsOn == nil {
			s.Formulas[i].DependsOn = []string{}
		}
	}
	if s.CurrentStep < StepPlantInfo {
		s.CurrentStep = StepPlantInfo
	}
	if s.CurrentStep > StepReview {
		s.CurrentStep = StepReview
	}
}
