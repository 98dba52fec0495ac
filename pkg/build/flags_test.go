// SPDX-License-Identifier: MIT
package build

import "testing"

// setLinkerVars sets the -X variables for one test and restores them, and
// the flags they are copied into, afterwards.
func setLinkerVars(t *testing.T, name, time, commit, version string) {
	t.Helper()
	oName, oTime, oCommit, oVersion, oFlags := buildName, buildTime, buildCommit, buildVersion, buildFlags
	t.Cleanup(func() {
		buildName, buildTime, buildCommit, buildVersion, buildFlags = oName, oTime, oCommit, oVersion, oFlags
	})
	buildName, buildTime, buildCommit, buildVersion = name, time, commit, version
	buildFlags = devFlags()
}

func TestInitializeRequiresEveryVariable(t *testing.T) {
	tests := []struct {
		name    string
		vars    [4]string
		wantErr string
	}{
		{"no name", [4]string{"", "2026-10-19", "9f2c1e0", "v0.3.1"}, "BuildName is required"},
		{"no time", [4]string{"player", "", "9f2c1e0", "v0.3.1"}, "BuildTime is required"},
		{"no commit", [4]string{"player", "2026-10-19", "", "v0.3.1"}, "BuildCommit is required"},
		{"no version", [4]string{"player", "2026-10-19", "9f2c1e0", ""}, "BuildVersion is required"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			setLinkerVars(t, tt.vars[0], tt.vars[1], tt.vars[2], tt.vars[3])

			err := Initialize()
			if err == nil || err.Error() != tt.wantErr {
				t.Fatalf("Initialize() = %v, want %q", err, tt.wantErr)
			}
			// A failed Initialize keeps the development defaults.
			if got := *GetBuildFlags(); got != *devFlags() {
				t.Errorf("flags changed to %+v", got)
			}
		})
	}
}

func TestInitializeCopiesLinkerVars(t *testing.T) {
	setLinkerVars(t, "player", "2026-10-19", "9f2c1e0", "v0.3.1")
	if err := Initialize(); err != nil {
		t.Fatalf("Initialize: %v", err)
	}

	want := ldFlags{
		Name:        "player",
		Description: defaultDescription,
		Time:        "2026-10-19",
		Commit:      "9f2c1e0",
		Version:     "v0.3.1",
	}
	if got := *GetBuildFlags(); got != want {
		t.Errorf("GetBuildFlags() = %+v, want %+v", got, want)
	}
	if got, want := GetBuildFlags().String(), "player v0.3.1 (commit 9f2c1e0, built 2026-10-19)"; got != want {
		t.Errorf("String() = %q, want %q", got, want)
	}
}
