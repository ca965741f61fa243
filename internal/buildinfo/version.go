/*
Copyright © 2024 Acronis International GmbH.

Released under MIT license.
*/

// Package buildinfo reports the version of the hookrelay module compiled into the running binary.
package buildinfo

import (
	"regexp"
	"runtime/debug"
	"sync"
)

const moduleName = "github.com/hookrelay/hookrelay"

// DevVersion is reported when the binary carries no module version (e.g. built from a working tree).
const DevVersion = "v0.0.0-dev"

var (
	version     string
	versionOnce sync.Once
)

// Version returns the module version, or DevVersion when it is unknown.
func Version() string {
	versionOnce.Do(func() {
		if buildInfo, ok := debug.ReadBuildInfo(); ok {
			version = extractModuleVersion(buildInfo, moduleName)
		}
		if version == "" {
			version = DevVersion
		}
	})
	return version
}

// UserAgent returns a product token in the "name/version" form for outbound requests.
func UserAgent(product string) string {
	return product + "/" + Version()
}

// extractModuleVersion looks for the module either as the main one or among the dependencies.
// Paths with a major version suffix ("modName/vX") match too.
func extractModuleVersion(buildInfo *debug.BuildInfo, modName string) string {
	if buildInfo == nil {
		return ""
	}
	re := regexp.MustCompile(`^` + regexp.QuoteMeta(modName) + `(/v[0-9]+)?$`)
	if re.MatchString(buildInfo.Main.Path) && buildInfo.Main.Version != "(devel)" {
		return buildInfo.Main.Version
	}
	for _, dep := range buildInfo.Deps {
		if re.MatchString(dep.Path) {
			return dep.Version
		}
	}
	return ""
}
