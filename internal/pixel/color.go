package pixel

import (
	"fmt"
	"regexp"
	"strings"
)

var colorPattern = regexp.MustCompile(`^#[0-9A-Fa-f]{6}$`)

// Color is a 24-bit RGB value in "#RRGGBB" form, always upper-case once parsed.
type Color string

// ParseColor validates s and returns its normalized form.
func ParseColor(s string) (Color, error) {
	if !colorPattern.MatchString(s) {
		return "", fmt.Errorf("%w: color must be a hex color like #FFFFFF, got %q", ErrInvalidArgument, s)
	}
	return Color(strings.ToUpper(s)), nil
}

func (c Color) String() string { return string(c) }
