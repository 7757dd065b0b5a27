// Package domain models Composite Drought Index (CDI) forecasts for the
// Afar and Somali regions of Ethiopia and the role rules that decide who
// may see them.
//
// # Composite Drought Index
//
// CDI is a standardized anomaly: 0 is the long-run normal, negative values
// are drier than normal. Forecast series carry twelve monthly values, one per
// month offset from the forecast start (offset 0 = the start month).
//
// Severity classification uses fixed ascending thresholds:
//
//	CDI <= -1.5         Extreme Drought   Alert
//	CDI <= -1.0         Severe Drought    Warn
//	CDI <= -0.5         Moderate Drought  Warn
//	CDI <=  0.5         Normal            Watch
//	CDI  >  0.5         No Drought        Watch
//
// The top two classes both collapse into the Watch phase. See [Classify]
// and [PhaseOf].
//
// # Administrative Areas
//
// A [Region] is one of a closed set (afar, somali). Each region owns an
// ordered list of woredas (third-level administrative subdivisions); a
// woreda name belongs to exactly one region. See [Woredas] and [BoundsOf].
//
// # Roles
//
// Users carry one of three roles:
//
//	admin             every region, every woreda
//	regional_officer  their assigned region, every woreda in it
//	woreda_officer    their assigned region, only their own woreda
//
// [AllowedRegions], [AllowedWoredas] and [EnsureWoreda] derive the options a
// user may select and keep a selection valid across region switches.
//
// # Mock Forecasts
//
// Until the forecast backend is available, series come from [MockSeries]:
// the UTF-16 code units of region+woreda are summed, offset by 31 per month,
// and passed through ((sin(h)+1)/2)*3 - 1.8, rounded to two decimals. The
// result lies in roughly [-1.8, 1.2] and is identical for identical keys.
package domain
