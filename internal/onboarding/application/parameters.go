package application

import onboarding "plant-onboarding/internal/onboarding/domain"

// MergeParameters reconciles a freshly fetched catalog with the current
// collection. Matching names keep the local enabled flag and unit, category
// and section overrides; new names arrive disabled; names missing from the
// catalog are dropped.
func MergeParameters(existing, fetched []onboarding.Parameter) []onboarding.Parameter {
	prev := make(map[string]onboarding.Parameter, len(existing))
	for _, p := range existing {
		if _, ok := prev[p.Name]; !ok {
			prev[p.Name] = p
		}
	}

	merged := make([]onboarding.Parameter, 0, len(fetched))
	seen := make(map[string]struct{}, len(fetched))
	for _, p := range fetched {
		if _, dup := seen[p.Name]; dup {
			continue
		}
		seen[p.Name] = struct{}{}
		next := p
		next.ApplicableAssetTypes = append([]string(nil), p.ApplicableAssetTypes...)
		if old, ok := prev[p.Name]; ok {
			next.Enabled = old.Enabled
			next.Unit = old.Unit
			next.Category = old.Category
			next.Section = old.Section
		} else {
			next.Enabled = false
		}
		merged = append(merged, next)
	}
	return merged
}

// AppendNewParameters adds incoming parameters whose names are not present
// yet, enabled. It returns the new collection and the number added.
func AppendNewParameters(existing, incoming []onboarding.Parameter) ([]onboarding.Parameter, int) {
	names := make(map[string]struct{}, len(existing)+len(incoming))
	for _, p := range existing {
		names[p.Name] = struct{}{}
	}
	out := append([]onboarding.Parameter{}, existing...)
	added := 0
	for _, p := range incoming {
		if p.Name == "" {
			continue
		}
		if _, ok := names[p.Name]; ok {
			continue
		}
		names[p.Name] = struct{}{}
		p.Enabled = true
		p.ApplicableAssetTypes = append([]string(nil), p.ApplicableAssetTypes...)
		out = append(out, p)
		added++
	}
	return out, added
}

// FilterNewParameters drops candidates already present by name.
func FilterNewParameters(existing, candidates []onboarding.Parameter) []onboarding.Parameter {
	names := make(map[string]struct{}, len(existing))
	for _, p := range existing {
		names[p.Name] = struct{}{}
	}
	out := make([]onboarding.Parameter, 0, len(candidates))
	for _, p := range candidates {
		if _, ok := names[p.Name]; ok {
			continue
		}
		out = append(out, p)
	}
	return out
}

func parameterIndex(parameters []onboarding.Parameter, name string) int {
	for i, p := range parameters {
		if p.Name == name {
			return i
		}
	}
	return -1
}

func applyOverride(p *onboarding.Parameter, override onboarding.ParameterOverride) error {
	if override.Category != nil && !onboarding.IsValidCategory(*override.Category) {
		return onboarding.ErrInvalidCategory
	}
	if override.Unit != nil {
		p.Unit = *override.Unit
	}
	if override.Category != nil {
		p.Category = *override.Category
	}
	if override.Section != nil {
		p.Section = *override.Section
	}
	return nil
}
