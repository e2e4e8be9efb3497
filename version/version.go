// Package version provides the API server version strings.
package version

import "runtime"

const baseVersion = "2.0.0"

// buildVersion can be overridden at compile time:
//
//	go build -ldflags "-X github.com/eosc-synergy/sqaaas/version.buildVersion=abc" .
var buildVersion string

func Version() string {
	return baseVersion
}

func BuildVersion() string {
	if buildVersion == "" {
		return "x"
	}
	return buildVersion
}

func UserAgent() string {
	return "sqaaas-api/" + Version() + "." + BuildVersion() + " (" + runtime.GOOS + "; " + runtime.GOARCH + ")"
}
