package onboarding

import (
	"regexp"
	"strings"
)

var emailPattern = regexp.MustCompile(`^[^\s@]+@[^\s@]+\.[^\s@]+$`)

// PlantInfo describes the plant being onboarded.
type PlantInfo struct {
	Name         string `json:"name"`
	Address      string `json:"address"`
	ManagerEmail string `json:"manager_email"`
	Description  string `json:"description"`
}

// DefaultPlant returns an empty plant.
func DefaultPlant() PlantInfo {
	return PlantInfo{}
}

// ValidEmail reports whether value has the shape local@domain.tld.
func ValidEmail(value string) bool {
	return emailPattern.MatchString(value)
}

// FieldErrors returns inline messages keyed by field name. The email is
// only flagged once something has been typed.
func (p PlantInfo) FieldErrors() map[string]string {
	errs := make(map[string]string)
	if strings.TrimSpace(p.Name) == "" {
		errs["name"] = "Plant name is required"
	}
	if strings.TrimSpace(p.Address) == "" {
		errs["address"] = "Address is required"
	}
	if p.ManagerEmail != "" && !ValidEmail(p.ManagerEmail) {
		errs["manager_email"] = "Enter a valid email address"
	}
	return errs
}
