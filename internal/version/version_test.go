// ABOUTME: Tests for version constants
// ABOUTME: Checks the product identity and the version shape
package version

import (
	"regexp"
	"testing"
)

var semver = regexp.MustCompile(`^\d+\.\d+\.\d+$`)

func TestIdentity(t *testing.T) {
	tests := []struct {
		name string
		got  string
		want string
	}{
		{"product", Product, "pepperaudio"},
		{"manufacturer", Manufacturer, "Resonate Protocol"},
		{"string", String(), "pepperaudio " + Version},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if tt.got != tt.want {
				t.Errorf("got %q, want %q", tt.got, tt.want)
			}
		})
	}
}

func TestVersionIsSemver(t *testing.T) {
	if !semver.MatchString(Version) {
		t.Errorf("Version %q is not major.minor.patch", Version)
	}
}
