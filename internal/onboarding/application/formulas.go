package application

import onboarding "plant-onboarding/internal/onboarding/domain"

// SyncFormulas rebuilds the formula list so it holds one entry per enabled
// calculated parameter, reusing existing entries by name. The current list
// is returned unchanged (and false) when length and name order already match.
func SyncFormulas(current []onboarding.Formula, parameters []onboarding.Parameter) ([]onboarding.Formula, bool) {
	existing := make(map[string]onboarding.Formula, len(current))
	for _, f := range current {
		if _, ok := existing[f.ParameterName]; !ok {
			existing[f.ParameterName] = f
		}
	}

	calculated := onboarding.CalculatedParameters(parameters)
	target := make([]onboarding.Formula, 0, len(calculated))
	seen := make(map[string]struct{}, len(calculated))
	for _, p := range calculated {
		if _, dup := seen[p.Name]; dup {
			continue
		}
		seen[p.Name] = struct{}{}
		if f, ok := existing[p.Name]; ok {
			target = append(target, f)
			continue
		}
		target = append(target, onboarding.NewFormula(p.Name))
	}

	if sameFormulaOrder(current, target) {
		return current, false
	}
	return target, true
}

func sameFormulaOrder(a, b []onboarding.Formula) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i].ParameterName != b[i].ParameterName {
			return false
		}
	}
	return true
}

func formulaIndex(formulas []onboarding.Formula, name string) int {
	for i, f := range formulas {
		if f.ParameterName == name {
			return i
		}
	}
	return -1
}
