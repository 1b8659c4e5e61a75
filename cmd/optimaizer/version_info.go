package main

import (
	"fmt"
	"runtime/debug"
	"strings"
	"sync"

	"github.com/Drakonis96/optimAIzer-sub001/internal/config"
)

// version is stamped by release builds through -ldflags "-X main.version=...".
var version = ""

var (
	versionOnce   sync.Once
	cachedVersion string
)

// appVersion returns the best-effort semantic version for the optimaizer
// binary. The lookup order is:
//  1. Explicit OPTIMAIZER_VERSION environment variable (useful for custom builds)
//  2. The version stamped at link time
//  3. Go build information when available (e.g. go install ...@vX)
//  4. A development fallback string
func appVersion() string {
	versionOnce.Do(func() {
		cachedVersion = detectVersion(config.DefaultEnvLookup)
	})
	return cachedVersion
}

func detectVersion(lookup config.EnvLookup) string {
	if v, ok := lookup("OPTIMAIZER_VERSION"); ok {
		if trimmed := strings.TrimSpace(v); trimmed != "" {
			return trimmed
		}
	}

	if version != "" {
		return version
	}

	if info, ok := debug.ReadBuildInfo(); ok {
		if info.Main.Version != "" && info.Main.Version != "(devel)" {
			return info.Main.Version
		}

		for _, setting := range info.Settings {
			if setting.Key == "vcs.revision" && setting.Value != "" {
				return fmt.Sprintf("dev-%s", setting.Value)
			}
		}
	}

	return "development"
}
