package onboarding

import "errors"

var (
	// ErrAssetNotFound indicates an asset index outside the collection.
	ErrAssetNotFound = errors.New("onboarding: asset not found")
	// ErrParameterNotFound indicates an unknown parameter name.
	ErrParameterNotFound = errors.New("onboarding: parameter not found")
	// ErrFormulaNotFound indicates no formula exists for the parameter.
	ErrFormulaNotFound = errors.New("onboarding: formula not found")
	// ErrInvalidCategory indicates a category outside input|output|calculated.
	ErrInvalidCategory = errors.New("onboarding: invalid category")
	// ErrInvalidAssetType indicates an asset type outside the catalog.
	ErrInvalidAssetType = errors.New("onboarding: invalid asset type")
	// ErrInvalidStep indicates a step index outside [0,4].
	ErrInvalidStep = errors.New("onboarding: invalid step")
)
