package types //nolint:revive // types is a valid package name

import (
	"regexp"
	"testing"
)

var semverRegex = regexp.MustCompile(`^\d+\.\d+\.\d+(-[a-zA-Z0-9.]+)?$`)

func TestVersion_Format(t *testing.T) {
	if !semverRegex.MatchString(Version) {
		t.Errorf("Version %q is not a valid semver", Version)
	}
}

func TestProtocolVersion_MatchesVersion(t *testing.T) {
	// Schema and CLI are versioned in lockstep
	if ProtocolVersion != Version {
		t.Errorf("ProtocolVersion %q != Version %q (lockstep versioning violated)", ProtocolVersion, Version)
	}
}

func TestImplementationName(t *testing.T) {
	if ImplementationName != "SpecFlow" {
		t.Errorf("ImplementationName = %q, want %q", ImplementationName, "SpecFlow")
	}
}
