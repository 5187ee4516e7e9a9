package onboarding

import (
	"regexp"
	"sort"
	"strings"
)

// AssetType is one of the supported plant equipment kinds.
type AssetType string

const (
	AssetTypeBoiler       AssetType = "boiler"
	AssetTypeTurbine      AssetType = "turbine"
	AssetTypeCoolingTower AssetType = "cooling_tower"
)

// AssetTypeOption pairs a type with its display label.
type AssetTypeOption struct {
	Value AssetType `json:"value" yaml:"value"`
	Label string    `json:"label" yaml:"label"`
}

// DefaultAssetTypes is the catalog offered when no override is configured.
var DefaultAssetTypes = []AssetTypeOption{
	{Value: AssetTypeBoiler, Label: "Boiler"},
	{Value: AssetTypeTurbine, Label: "Turbine"},
	{Value: AssetTypeCoolingTower, Label: "Cooling Tower"},
}

// IsValidAssetType reports whether t is in the enumerated set.
func IsValidAssetType(t AssetType) bool {
	switch t {
	case AssetTypeBoiler, AssetTypeTurbine, AssetTypeCoolingTower:
		return true
	default:
		return false
	}
}

// Asset is a piece of plant equipment.
type Asset struct {
	Name        string    `json:"name"`
	DisplayName string    `json:"display_name"`
	AssetType   AssetType `json:"asset_type"`
}

var nonAlnumRun = regexp.MustCompile(`[^a-z0-9]+`)

// DeriveAssetName builds the system identifier for a display name:
// "Main Boiler #1" becomes "main_boiler_1".
func DeriveAssetName(displayName string) string {
	name := nonAlnumRun.ReplaceAllString(strings.ToLower(displayName), "_")
	return strings.Trim(name, "_")
}

// NormalizedAssetName is the key used for uniqueness checks.
func NormalizedAssetName(name string) string {
	return strings.ToLower(strings.TrimSpace(name))
}

// DuplicateAssetNames returns the non-empty normalized names that occur
// more than once.
func DuplicateAssetNames(assets []Asset) map[string]struct{} {
	seen := make(map[string]struct{}, len(assets))
	dupes := make(map[string]struct{})
	for _, asset := range assets {
		name := NormalizedAssetName(asset.Name)
		if _, ok := seen[name]; ok && name != "" {
			dupes[name] = struct{}{}
		}
		seen[name] = struct{}{}
	}
	return dupes
}

// AssetTypeSet returns the distinct non-empty asset types, sorted.
func AssetTypeSet(assets []Asset) []string {
	set := make(map[string]struct{})
	for _, asset := range assets {
		if asset.AssetType == "" {
			continue
		}
		set[string(asset.AssetType)] = struct{}{}
	}
	out := make([]string, 0, len(set))
	for t := range set {
		out = append(out, t)
	}
	sort.Strings(out)
	return out
}
