package occupancy

import "fmt"

// Status is the occupancy state of one spot.
type Status int

const (
	// StatusUnknown is the initial state before a spot is first classified.
	StatusUnknown Status = iota
	// StatusEmpty means the spot is free.
	StatusEmpty
	// StatusOccupied means the spot is taken, or could not be classified.
	StatusOccupied
)

var statusNames = map[Status]string{
	StatusUnknown:  "unknown",
	StatusEmpty:    "empty",
	StatusOccupied: "occupied",
}

// String returns "unknown", "empty" or "occupied".
func (s Status) String() string {
	if name, ok := statusNames[s]; ok {
		return name
	}
	return fmt.Sprintf("Status(%d)", int(s))
}

// MarshalText implements encoding.TextMarshaler so statuses encode as strings.
func (s Status) MarshalText() ([]byte, error) {
	if _, ok := statusNames[s]; !ok {
		return nil, fmt.Errorf("invalid status %d", int(s))
	}
	return []byte(s.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (s *Status) UnmarshalText(text []byte) error {
	v, err := ParseStatus(string(text))
	if err != nil {
		return err
	}
	*s = v
	return nil
}

// ParseStatus is the inverse of Status.String.
func ParseStatus(name string) (Status, error) {
	for s, n := range statusNames {
		if n == name {
			return s, nil
		}
	}
	return StatusUnknown, fmt.Errorf("invalid status %q", name)
}
