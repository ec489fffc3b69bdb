package commands

import (
	"runtime"
	"runtime/debug"
)

// Global CLI flags
var (
	// ConfigPath is the config file, DefaultConfigPath when empty
	ConfigPath string

	// LogLevel overrides log.level from the config when set
	LogLevel string

	// Ephemeral keeps account slots in memory for this run only
	Ephemeral bool
)

// Version information (set at build time)
var (
	Version   = "dev"
	Commit    = "unknown"
	BuildDate = "unknown"
)

// GetVersion returns the version, falling back to module build info.
func GetVersion() string {
	if Version != "dev" {
		return Version
	}
	if info, ok := debug.ReadBuildInfo(); ok && info.Main.Version != "" && info.Main.Version != "(devel)" {
		return info.Main.Version
	}
	return Version
}

// GetCommit returns the git commit, falling back to VCS build info.
func GetCommit() string {
	if Commit != "unknown" {
		return Commit
	}
	if info, ok := debug.ReadBuildInfo(); ok {
		for _, s := range info.Settings {
			if s.Key == "vcs.revision" && len(s.Value) >= 7 {
				return s.Value[:7]
			}
		}
	}
	return Commit
}

// GetGoVersion returns the Go runtime version.
func GetGoVersion() string {
	return runtime.Version()
}
