package onboarding

import "strings"

// IsStep1Valid reports whether the plant page may be left.
func IsStep1Valid(plant PlantInfo) bool {
	return strings.TrimSpace(plant.Name) != "" &&
		strings.TrimSpace(plant.Address) != "" &&
		ValidEmail(plant.ManagerEmail)
}

// IsStep2Valid reports whether the asset list is complete and unique.
func IsStep2Valid(assets []Asset) bool {
	if len(assets) == 0 {
		return false
	}
	seen := make(map[string]struct{}, len(assets))
	for _, asset := range assets {
		if strings.TrimSpace(asset.Name) == "" || strings.TrimSpace(asset.DisplayName) == "" || asset.AssetType == "" {
			return false
		}
		key := NormalizedAssetName(asset.Name)
		if _, ok := seen[key]; ok {
			return false
		}
		seen[key] = struct{}{}
	}
	return true
}

// IsStep3Valid reports whether at least one parameter is enabled.
func IsStep3Valid(parameters []Parameter) bool {
	for _, p := range parameters {
		if p.Enabled {
			return true
		}
	}
	return false
}

// IsStep4Valid reports whether every formula validated successfully. An
// empty list is valid.
func IsStep4Valid(formulas []Formula) bool {
	for _, f := range formulas {
		if f.Valid == nil || !*f.Valid {
			return false
		}
	}
	return true
}

// HasCalculatedParams reports whether the formulas page applies at all.
func HasCalculatedParams(parameters []Parameter) bool {
	for _, p := range parameters {
		if p.Enabled && p.Category == CategoryCalculated {
			return true
		}
	}
	return false
}
