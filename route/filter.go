package route

import "fmt"

// FilterMode restricts which device categories a device query returns. The
// raw value is carried as-is on the wire.
type FilterMode int

// The three named filter presets.
const (
	// FilterCommunication restricts the list to devices usable for
	// two-way call audio. This is the default mode.
	FilterCommunication FilterMode = 0

	// FilterMedia lists devices usable for media playback.
	FilterMedia FilterMode = 1

	// FilterAll lists every device the platform reports.
	FilterAll FilterMode = 2
)

// Valid returns whether fm is one of the enumerated modes.
func (fm FilterMode) Valid() bool {
	return fm >= FilterCommunication && fm <= FilterAll
}

func (fm FilterMode) String() string {
	switch fm {
	case FilterCommunication:
		return "communication"
	case FilterMedia:
		return "media"
	case FilterAll:
		return "all"
	default:
		return fmt.Sprintf("filtermode(%d)", int(fm))
	}
}

// ParseFilterMode parses one of the preset names into a FilterMode.
func ParseFilterMode(s string) (FilterMode, error) {
	switch s {
	case "communication", "":
		return FilterCommunication, nil
	case "media":
		return FilterMedia, nil
	case "all":
		return FilterAll, nil
	default:
		return 0, fmt.Errorf("unknown filter mode %q", s)
	}
}
