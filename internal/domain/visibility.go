package domain

import "slices"

// AllowedRegions returns the regions a user may select. A nil user (no
// session yet) sees every region.
func AllowedRegions(u *User) []Region {
	if u == nil || u.Role == RoleAdmin {
		return slices.Clone(Regions)
	}
	return []Region{u.PlaceOfInterest.Region}
}

// CanViewRegion reports whether region is among the user's allowed regions.
func CanViewRegion(u *User, region Region) bool {
	return slices.Contains(AllowedRegions(u), region)
}

// AllowedWoredas returns the woredas of region the user may select. Woreda
// officers see only their own woreda, and nothing when it lies outside region.
func AllowedWoredas(u *User, region Region) []string {
	if u == nil || u.Role != RoleWoredaOfficer {
		return Woredas(region)
	}
	if own := u.PlaceOfInterest.Woreda; HasWoreda(region, own) {
		return []string{own}
	}
	return []string{}
}

// EnsureWoreda re-validates a woreda selection after the region changes to
// region. Woreda officers are pinned to their own woreda regardless of
// candidate; everyone else keeps candidate only if region contains it. An
// empty result means no woreda is selected.
func EnsureWoreda(u *User, region Region, candidate string) string {
	if u != nil && u.Role == RoleWoredaOfficer {
		if own := u.PlaceOfInterest.Woreda; HasWoreda(region, own) {
			return own
		}
		return ""
	}
	if HasWoreda(region, candidate) {
		return candidate
	}
	return ""
}
