package onboarding

// ValidationUnavailable is the message recorded when the validator cannot
// be reached.
const ValidationUnavailable = "Validation service unavailable"

// Formula defines how a calculated parameter is derived. Valid is nil while
// validation is pending.
type Formula struct {
	ParameterName string   `json:"parameter_name"`
	Expression    string   `json:"expression"`
	DependsOn     []string `json:"depends_on"`
	Valid         *bool    `json:"valid,omitempty"`
	Error         string   `json:"error,omitempty"`
}

// NewFormula returns a pending, empty formula for a parameter.
func NewFormula(parameterName string) Formula {
	return Formula{ParameterName: parameterName, DependsOn: []string{}}
}

// Pending reports whether the formula has not been validated yet.
func (f Formula) Pending() bool {
	return f.Valid == nil
}

func (f Formula) clone() Formula {
	if f.DependsOn != nil {
		f.DependsOn = append([]string(nil), f.DependsOn...)
	}
	if f.Valid != nil {
		v := *f.Valid
		f.Valid = &v
	}
	return f
}

// Bool returns a pointer to v, for tri-state fields.
func Bool(v bool) *bool {
	return &v
}
