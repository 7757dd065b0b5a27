package domain

import (
	"fmt"
	"slices"
)

// Role decides which regions and woredas a user may view.
type Role string

const (
	RoleAdmin           Role = "admin"
	RoleRegionalOfficer Role = "regional_officer"
	RoleWoredaOfficer   Role = "woreda_officer"
)

// Valid reports whether r is a known role.
func (r Role) Valid() bool {
	switch r {
	case RoleAdmin, RoleRegionalOfficer, RoleWoredaOfficer:
		return true
	default:
		return false
	}
}

// PlaceOfInterest is a user's assigned scope.
type PlaceOfInterest struct {
	Region Region `json:"region" yaml:"region"`
	Woreda string `json:"woreda,omitempty" yaml:"woreda,omitempty"`
}

// User is an identity with a role and an assigned place of interest.
type User struct {
	ID              string          `json:"id" yaml:"id"`
	Name            string          `json:"name" yaml:"name"`
	Email           string          `json:"email" yaml:"email"`
	Role            Role            `json:"role" yaml:"role"`
	AllowedRegions  []Region        `json:"allowed_regions" yaml:"allowed_regions"`
	PlaceOfInterest PlaceOfInterest `json:"place_of_interest" yaml:"place_of_interest"`
}

// RegionsForRole derives the allowed regions for a role assigned to region.
func RegionsForRole(role Role, region Region) []Region {
	if role == RoleAdmin {
		return slices.Clone(Regions)
	}
	return []Region{region}
}

// Validate checks the role and place-of-interest invariants.
func (u User) Validate() error {
	if !u.Role.Valid() {
		return fmt.Errorf("user %s: invalid role %q", u.Email, u.Role)
	}
	if !u.PlaceOfInterest.Region.Valid() {
		return fmt.Errorf("user %s: %w: %q", u.Email, ErrUnknownRegion, u.PlaceOfInterest.Region)
	}
	if u.Role == RoleWoredaOfficer && u.PlaceOfInterest.Woreda == "" {
		return fmt.Errorf("user %s: woreda officer without a woreda", u.Email)
	}
	if w := u.PlaceOfInterest.Woreda; w != "" && !HasWoreda(u.PlaceOfInterest.Region, w) {
		return fmt.Errorf("user %s: woreda %q is not in region %s", u.Email, w, u.PlaceOfInterest.Region)
	}
	if !slices.Equal(u.AllowedRegions, RegionsForRole(u.Role, u.PlaceOfInterest.Region)) {
		return fmt.Errorf("user %s: allowed regions %v inconsistent with role %s", u.Email, u.AllowedRegions, u.Role)
	}
	return nil
}

// DemoUsers are the accounts seeded into an empty user store.
func DemoUsers() []User {
	return []User{
		{
			ID:              "1",
			Name:            "Admin User",
			Email:           "admin@example.com",
			Role:            RoleAdmin,
			AllowedRegions:  []Region{RegionAfar, RegionSomali},
			PlaceOfInterest: PlaceOfInterest{Region: RegionAfar},
		},
		{
			ID:              "2",
			Name:            "Afar Officer",
			Email:           "afar.officer@example.com",
			Role:            RoleRegionalOfficer,
			AllowedRegions:  []Region{RegionAfar},
			PlaceOfInterest: PlaceOfInterest{Region: RegionAfar, Woreda: "Elidar"},
		},
		{
			ID:              "3",
			Name:            "Somali Officer",
			Email:           "somali.officer@example.com",
			Role:            RoleWoredaOfficer,
			AllowedRegions:  []Region{RegionSomali},
			PlaceOfInterest: PlaceOfInterest{Region: RegionSomali, Woreda: "Gode"},
		},
	}
}
