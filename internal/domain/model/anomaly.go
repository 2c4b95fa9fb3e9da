package model

import "fmt"

// AnomalyKind classifies a discontinuity in a nominally incrementing stream.
type AnomalyKind int

// Anomaly kinds in increasing severity of information loss.
const (
	TypeI   AnomalyKind = iota + 1 // lone zero between x and x+2
	TypeII                         // local sub-counter reset run
	TypeIII                        // jump larger than one between valid values
	TypeIV                         // sentinel below the validity threshold
)

var anomalyNames = map[AnomalyKind]string{
	TypeI:   "type_i",
	TypeII:  "type_ii",
	TypeIII: "type_iii",
	TypeIV:  "type_iv",
}

func (k AnomalyKind) String() string {
	if name, ok := anomalyNames[k]; ok {
		return name
	}
	return "unknown"
}

// MarshalText renders the kind as its snake_case name.
func (k AnomalyKind) MarshalText() ([]byte, error) {
	return []byte(k.String()), nil
}

// UnmarshalText parses a snake_case kind name.
func (k *AnomalyKind) UnmarshalText(b []byte) error {
	parsed, ok := ParseAnomalyKind(string(b))
	if !ok {
		return fmt.Errorf("unknown anomaly kind %q", b)
	}
	*k = parsed
	return nil
}

// AnomalyRecord describes one classified anomaly. JumpSize is set for Type III only;
// Unresolved marks positions that were left as UnknownSerial.
type AnomalyRecord struct {
	Kind       AnomalyKind `json:"kind" yaml:"kind"`
	Position   int         `json:"position" yaml:"position"`
	GapLength  int         `json:"gap_length" yaml:"gap_length"`
	JumpSize   *int64      `json:"jump_size,omitempty" yaml:"jump_size,omitempty"`
	Unresolved bool        `json:"unresolved,omitempty" yaml:"unresolved,omitempty"`
}

// ParseAnomalyKind is the inverse of String.
func ParseAnomalyKind(s string) (AnomalyKind, bool) {
	for k, name := range anomalyNames {
		if name == s {
			return k, true
		}
	}
	return 0, false
}
