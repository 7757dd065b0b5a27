package domain

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func demoUser(t *testing.T, role Role) *User {
	t.Helper()
	for _, u := range DemoUsers() {
		if u.Role == role {
			return &u
		}
	}
	t.Fatalf("no demo user with role %s", role)
	return nil
}

func TestAllowedRegions(t *testing.T) {
	assert.Equal(t, []Region{RegionAfar, RegionSomali}, AllowedRegions(nil))
	assert.Equal(t, []Region{RegionAfar, RegionSomali}, AllowedRegions(demoUser(t, RoleAdmin)))
	assert.Equal(t, []Region{RegionAfar}, AllowedRegions(demoUser(t, RoleRegionalOfficer)))
	assert.Equal(t, []Region{RegionSomali}, AllowedRegions(demoUser(t, RoleWoredaOfficer)))

	assert.True(t, CanViewRegion(demoUser(t, RoleAdmin), RegionSomali))
	assert.False(t, CanViewRegion(demoUser(t, RoleRegionalOfficer), RegionSomali))
}

func TestAllowedWoredas(t *testing.T) {
	t.Run("admin sees full list", func(t *testing.T) {
		assert.Equal(t, []string{"Gode", "Fik", "Hargele"}, AllowedWoredas(demoUser(t, RoleAdmin), RegionSomali))
	})

	t.Run("regional officer unfiltered", func(t *testing.T) {
		u := demoUser(t, RoleRegionalOfficer)
		for _, r := range Regions {
			assert.Equal(t, Woredas(r), AllowedWoredas(u, r))
		}
	})

	t.Run("woreda officer own woreda", func(t *testing.T) {
		assert.Equal(t, []string{"Gode"}, AllowedWoredas(demoUser(t, RoleWoredaOfficer), RegionSomali))
	})

	t.Run("woreda officer outside region", func(t *testing.T) {
		got := AllowedWoredas(demoUser(t, RoleWoredaOfficer), RegionAfar)
		require.NotNil(t, got)
		assert.Empty(t, got)
	})

	t.Run("result is a copy", func(t *testing.T) {
		got := AllowedWoredas(nil, RegionAfar)
		got[0] = "Changed"
		assert.Equal(t, "Elidar", Woredas(RegionAfar)[0])
	})
}

func TestEnsureWoreda(t *testing.T) {
	officer := demoUser(t, RoleWoredaOfficer)
	regional := demoUser(t, RoleRegionalOfficer)

	tests := []struct {
		name      string
		user      *User
		region    Region
		candidate string
		want      string
	}{
		{"officer pinned despite other candidate", officer, RegionSomali, "Elidar", "Gode"},
		{"officer pinned with empty candidate", officer, RegionSomali, "", "Gode"},
		{"officer pinned over in-region candidate", officer, RegionSomali, "Fik", "Gode"},
		{"officer outside own region", officer, RegionAfar, "Elidar", ""},
		{"regional keeps in-region candidate", regional, RegionAfar, "Kori", "Kori"},
		{"regional clears out-of-region candidate", regional, RegionSomali, "Elidar", ""},
		{"regional empty candidate", regional, RegionAfar, "", ""},
		{"no session keeps valid candidate", nil, RegionSomali, "Fik", "Fik"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, EnsureWoreda(tt.user, tt.region, tt.candidate))
		})
	}
}

// Switching from afar/Elidar to somali for the Gode woreda officer must land on Gode.
func TestEnsureWoreda_RegionSwitchScenario(t *testing.T) {
	officer := demoUser(t, RoleWoredaOfficer)
	got := EnsureWoreda(officer, RegionSomali, "Elidar")
	assert.Equal(t, "Gode", got)
	assert.NotEqual(t, "Elidar", got)
	assert.NotEmpty(t, got)
}

func TestDemoUsers_Valid(t *testing.T) {
	for _, u := range DemoUsers() {
		assert.NoError(t, u.Validate(), u.Email)
	}
}

func TestUser_Validate(t *testing.T) {
	base := User{
		Email:           "x@example.com",
		Role:            RoleWoredaOfficer,
		AllowedRegions:  []Region{RegionAfar},
		PlaceOfInterest: PlaceOfInterest{Region: RegionAfar, Woreda: "Bidu"},
	}
	require.NoError(t, base.Validate())

	missing := base
	missing.PlaceOfInterest.Woreda = ""
	assert.ErrorContains(t, missing.Validate(), "without a woreda")

	foreign := base
	foreign.PlaceOfInterest.Woreda = "Gode"
	assert.ErrorContains(t, foreign.Validate(), "not in region")

	wide := base
	wide.AllowedRegions = []Region{RegionAfar, RegionSomali}
	assert.ErrorContains(t, wide.Validate(), "inconsistent")

	badRole := base
	badRole.Role = "civilian"
	assert.ErrorContains(t, badRole.Validate(), "invalid role")
}
