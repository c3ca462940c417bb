// Package version holds the relay protocol version and the compatibility
// rule clients apply to relays they discover.
package version

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
)

// Current is the protocol version implemented by this module. The major
// number changes when the frame or device line format does.
const Current = "1.0"

// ErrIncompatible is returned by Check for a relay with another major version.
var ErrIncompatible = errors.New("incompatible protocol version")

// Version is a parsed "major.minor" protocol version.
type Version struct {
	Major uint16
	Minor uint16
}

// Parse parses a "major.minor" version string.
func Parse(s string) (Version, error) {
	majorStr, minorStr, ok := strings.Cut(s, ".")
	if !ok || strings.Contains(minorStr, ".") {
		return Version{}, fmt.Errorf("invalid version %q: expected major.minor", s)
	}

	major, err := strconv.ParseUint(majorStr, 10, 16)
	if err != nil {
		return Version{}, fmt.Errorf("invalid version %q: bad major component", s)
	}
	minor, err := strconv.ParseUint(minorStr, 10, 16)
	if err != nil {
		return Version{}, fmt.Errorf("invalid version %q: bad minor component", s)
	}

	return Version{Major: uint16(major), Minor: uint16(minor)}, nil
}

// MustParse is Parse for constants.
func MustParse(s string) Version {
	v, err := Parse(s)
	if err != nil {
		panic(err)
	}
	return v
}

// String returns the version as "major.minor".
func (v Version) String() string {
	return fmt.Sprintf("%d.%d", v.Major, v.Minor)
}

// Compatible reports whether other has the same major version.
func (v Version) Compatible(other Version) bool {
	return v.Major == other.Major
}

// Check reports whether a relay advertising remote can be used by this
// client. Minor differences are compatible.
func Check(remote string) error {
	rv, err := Parse(remote)
	if err != nil {
		return fmt.Errorf("%w: %w", ErrIncompatible, err)
	}
	if !MustParse(Current).Compatible(rv) {
		return fmt.Errorf("%w: relay speaks %s, client %s", ErrIncompatible, rv, Current)
	}
	return nil
}
