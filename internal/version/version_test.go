package version

import "testing"

func TestString(t *testing.T) {
	origVersion, origSHA, origTime := Version, GitSHA, BuildTime
	defer func() { Version, GitSHA, BuildTime = origVersion, origSHA, origTime }()

	if got := String(); got != "dev (unknown, built unknown)" {
		t.Errorf("String() = %q", got)
	}

	Version, GitSHA, BuildTime = "1.2.0", "0123456789abcdef0123", "2026-10-01T00:00:00Z"
	if got, want := String(), "1.2.0 (0123456789ab, built 2026-10-01T00:00:00Z)"; got != want {
		t.Errorf("String() = %q, want %q", got, want)
	}
}
