package domain

// SeverityClass is an ordinal drought severity label derived from a CDI value.
type SeverityClass int

const (
	SeverityNoDrought SeverityClass = iota
	SeverityNormal
	SeverityModerate
	SeveritySevere
	SeverityExtreme
)

// Severity thresholds, inclusive upper bounds.
const (
	extremeThreshold  = -1.5
	severeThreshold   = -1.0
	moderateThreshold = -0.5
	normalThreshold   = 0.5
)

// SeverityClasses lists the classes from most to least severe, the order used by the legend.
var SeverityClasses = []SeverityClass{
	SeverityExtreme,
	SeveritySevere,
	SeverityModerate,
	SeverityNormal,
	SeverityNoDrought,
}

// Classify maps a CDI value to its severity class.
func Classify(cdi float64) SeverityClass {
	switch {
	case cdi <= extremeThreshold:
		return SeverityExtreme
	case cdi <= severeThreshold:
		return SeveritySevere
	case cdi <= moderateThreshold:
		return SeverityModerate
	case cdi <= normalThreshold:
		return SeverityNormal
	default:
		return SeverityNoDrought
	}
}

func (c SeverityClass) String() string {
	switch c {
	case SeverityExtreme:
		return "Extreme Drought"
	case SeveritySevere:
		return "Severe Drought"
	case SeverityModerate:
		return "Moderate Drought"
	case SeverityNormal:
		return "Normal"
	default:
		return "No Drought"
	}
}

// Color is the map fill colour for the class.
func (c SeverityClass) Color() string {
	switch c {
	case SeverityExtreme:
		return "#dc2626"
	case SeveritySevere:
		return "#f97316"
	case SeverityModerate:
		return "#eab308"
	case SeverityNormal:
		return "#60a5fa"
	default:
		return "#22c55e"
	}
}

// MarshalText encodes the class as its label.
func (c SeverityClass) MarshalText() ([]byte, error) {
	return []byte(c.String()), nil
}

// Phase is the coarse escalation tier derived from a severity class.
type Phase int

const (
	PhaseWatch Phase = iota
	PhaseWarn
	PhaseAlert
)

// PhaseOf collapses a severity class into a phase. Normal and No Drought
// share the Watch phase.
func PhaseOf(c SeverityClass) Phase {
	switch c {
	case SeverityExtreme:
		return PhaseAlert
	case SeveritySevere, SeverityModerate:
		return PhaseWarn
	default:
		return PhaseWatch
	}
}

func (p Phase) String() string {
	switch p {
	case PhaseAlert:
		return "Alert"
	case PhaseWarn:
		return "Warn"
	default:
		return "Watch"
	}
}

// MarshalText encodes the phase as its label.
func (p Phase) MarshalText() ([]byte, error) {
	return []byte(p.String()), nil
}

// Escalated reports whether the phase warrants a notification.
func (p Phase) Escalated() bool {
	return p == PhaseWarn || p == PhaseAlert
}

// Assessment is a CDI value with its derived class and phase.
type Assessment struct {
	Value float64       `json:"value"`
	Class SeverityClass `json:"class"`
	Phase Phase         `json:"phase"`
}

// Assess classifies a value and derives its phase.
func Assess(cdi float64) Assessment {
	c := Classify(cdi)
	return Assessment{Value: cdi, Class: c, Phase: PhaseOf(c)}
}
