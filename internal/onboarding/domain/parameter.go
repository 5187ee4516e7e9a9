package onboarding

// Category classifies a telemetry parameter.
type Category string

const (
	CategoryInput      Category = "input"
	CategoryOutput     Category = "output"
	CategoryCalculated Category = "calculated"
)

// IsValidCategory reports whether c is in the enumerated set.
func IsValidCategory(c Category) bool {
	switch c {
	case CategoryInput, CategoryOutput, CategoryCalculated:
		return true
	default:
		return false
	}
}

// Parameter is a telemetry point selectable for the plant. Enabled is a
// UI-only flag and never reaches the backend.
type Parameter struct {
	Name                 string   `json:"name"`
	DisplayName          string   `json:"display_name"`
	Unit                 string   `json:"unit"`
	Category             Category `json:"category"`
	Section              string   `json:"section"`
	ApplicableAssetTypes []string `json:"applicable_asset_types"`
	Enabled              bool     `json:"enabled"`
}

// ParameterOverride carries the user-editable fields of a parameter. Nil
// fields are left untouched.
type ParameterOverride struct {
	Unit     *string   `json:"unit,omitempty"`
	Category *Category `json:"category,omitempty"`
	Section  *string   `json:"section,omitempty"`
}

func (p Parameter) clone() Parameter {
	if p.ApplicableAssetTypes != nil {
		p.ApplicableAssetTypes = append([]string(nil), p.ApplicableAssetTypes...)
	}
	return p
}

// EnabledParameterNames lists enabled parameter names in collection order.
func EnabledParameterNames(parameters []Parameter) []string {
	names := make([]string, 0, len(parameters))
	for _, p := range parameters {
		if p.Enabled {
			names = append(names, p.Name)
		}
	}
	return names
}

// CalculatedParameters returns the enabled parameters whose category is
// calculated.
func CalculatedParameters(parameters []Parameter) []Parameter {
	var out []Parameter
	for _, p := range parameters {
		if p.Enabled && p.Category == CategoryCalculated {
			out = append(out, p)
		}
	}
	return out
}
