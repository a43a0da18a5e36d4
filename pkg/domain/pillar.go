package domain

import dErrors "ccms/pkg/domain-errors"

// Pillar is one of the four weighted reputation categories.
type Pillar string

const (
	PillarAttendance    Pillar = "attendance"
	PillarVoting        Pillar = "voting"
	PillarFeedback      Pillar = "feedback"
	PillarCertification Pillar = "certification"
)

// Pillars lists every pillar in composite order.
var Pillars = []Pillar{PillarAttendance, PillarVoting, PillarFeedback, PillarCertification}

var validPillars = map[Pillar]bool{
	PillarAttendance:    true,
	PillarVoting:        true,
	PillarFeedback:      true,
	PillarCertification: true,
}

// ParsePillar constructs a Pillar from external input.
//
// Errors: returns CodeInvalidInput when the value is empty or unsupported.
func ParsePillar(s string) (Pillar, error) {
	if s == "" {
		return "", dErrors.New(dErrors.CodeInvalidInput, "pillar cannot be empty")
	}
	p := Pillar(s)
	if !p.IsValid() {
		return "", dErrors.New(dErrors.CodeInvalidInput, "invalid pillar")
	}
	return p, nil
}

// IsValid checks if the pillar is one of the supported values.
func (p Pillar) IsValid() bool {
	return validPillars[p]
}

func (p Pillar) String() string {
	return string(p)
}
