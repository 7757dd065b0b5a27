package domain

import (
	"errors"
	"fmt"
	"slices"
	"strings"
)

// Region is one of the administrative regions covered by the forecast.
type Region string

const (
	RegionAfar   Region = "afar"
	RegionSomali Region = "somali"
)

// ErrUnknownRegion is returned when a string does not name a known region.
var ErrUnknownRegion = errors.New("unknown region")

// Regions lists every region in display order.
var Regions = []Region{RegionAfar, RegionSomali}

// LatLng is a WGS-84 coordinate in latitude, longitude order.
type LatLng struct {
	Lat float64 `json:"lat"`
	Lng float64 `json:"lng"`
}

// Bounds is an axis-aligned box given by its south-west and north-east corners.
type Bounds struct {
	SouthWest LatLng `json:"south_west"`
	NorthEast LatLng `json:"north_east"`
}

// Contains reports whether p lies inside the box, edges included.
func (b Bounds) Contains(p LatLng) bool {
	return p.Lat >= b.SouthWest.Lat && p.Lat <= b.NorthEast.Lat &&
		p.Lng >= b.SouthWest.Lng && p.Lng <= b.NorthEast.Lng
}

var regionWoredas = map[Region][]string{
	RegionAfar:   {"Elidar", "Bidu", "Kori"},
	RegionSomali: {"Gode", "Fik", "Hargele"},
}

// Approximate extents, good enough to frame a map view.
var regionBounds = map[Region]Bounds{
	RegionAfar:   {SouthWest: LatLng{Lat: 8.8, Lng: 39.2}, NorthEast: LatLng{Lat: 14.6, Lng: 42.9}},
	RegionSomali: {SouthWest: LatLng{Lat: 4.0, Lng: 40.5}, NorthEast: LatLng{Lat: 11.5, Lng: 47.8}},
}

// EthiopiaBounds frames the whole country.
var EthiopiaBounds = Bounds{SouthWest: LatLng{Lat: 3.3, Lng: 32.8}, NorthEast: LatLng{Lat: 14.9, Lng: 48.2}}

// Representative point per woreda (approximate).
var woredaCoords = map[string]LatLng{
	"Elidar":  {Lat: 12.0, Lng: 41.9},
	"Bidu":    {Lat: 13.0, Lng: 41.5},
	"Kori":    {Lat: 12.6, Lng: 40.5},
	"Gode":    {Lat: 5.95, Lng: 43.45},
	"Fik":     {Lat: 8.13, Lng: 43.88},
	"Hargele": {Lat: 6.07, Lng: 44.27},
}

// ParseRegion validates a region name. Matching is case-insensitive.
func ParseRegion(s string) (Region, error) {
	r := Region(strings.ToLower(strings.TrimSpace(s)))
	if _, ok := regionWoredas[r]; !ok {
		return "", fmt.Errorf("%w: %q", ErrUnknownRegion, s)
	}
	return r, nil
}

// Valid reports whether r is a known region.
func (r Region) Valid() bool {
	_, ok := regionWoredas[r]
	return ok
}

// DisplayName returns the capitalized region name used in labels.
func (r Region) DisplayName() string {
	switch r {
	case RegionAfar:
		return "Afar"
	case RegionSomali:
		return "Somali"
	default:
		return string(r)
	}
}

// Woredas returns a copy of the region's ordered woreda list.
func Woredas(r Region) []string {
	return slices.Clone(regionWoredas[r])
}

// HasWoreda reports whether woreda belongs to region r.
func HasWoreda(r Region, woreda string) bool {
	return woreda != "" && slices.Contains(regionWoredas[r], woreda)
}

// RegionOfWoreda finds the region owning woreda.
func RegionOfWoreda(woreda string) (Region, bool) {
	for _, r := range Regions {
		if HasWoreda(r, woreda) {
			return r, true
		}
	}
	return "", false
}

// BoundsOf returns the region's approximate extent.
func BoundsOf(r Region) Bounds {
	return regionBounds[r]
}

// WoredaCoords returns a woreda's representative point.
func WoredaCoords(woreda string) (LatLng, bool) {
	p, ok := woredaCoords[woreda]
	return p, ok
}
