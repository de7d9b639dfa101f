package seed

import (
	"fmt"
	"strings"
)

// ID identifies a recording source by its SEED network, station, location,
// and channel codes. The zero value is not a valid ID.
type ID struct {
	Network  string
	Station  string
	Location string
	Channel  string
}

// NewID normalizes the four codes (trimmed, uppercased) into an ID.
func NewID(network, station, location, channel string) ID {
	return ID{
		Network:  normalizeCode(network),
		Station:  normalizeCode(station),
		Location: normalizeCode(location),
		Channel:  normalizeCode(channel),
	}
}

// ParseID parses a dotted SEED identifier such as "BW.RJOB..EHZ". The
// location code may be empty; network, station, and channel may not.
func ParseID(s string) (ID, error) {
	parts := strings.Split(strings.TrimSpace(s), ".")
	if len(parts) != 4 {
		return ID{}, fmt.Errorf("seed id %q: expected NET.STA.LOC.CHA", s)
	}
	id := NewID(parts[0], parts[1], parts[2], parts[3])
	if id.Network == "" || id.Station == "" || id.Channel == "" {
		return ID{}, fmt.Errorf("seed id %q: network, station, and channel are required", s)
	}
	return id, nil
}

// String renders the dotted NET.STA.LOC.CHA form.
func (id ID) String() string {
	return id.Network + "." + id.Station + "." + id.Location + "." + id.Channel
}

// IsZero reports whether the ID carries no codes at all.
func (id ID) IsZero() bool {
	return id == ID{}
}

func normalizeCode(code string) string {
	return strings.ToUpper(strings.TrimSpace(code))
}
