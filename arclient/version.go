package main

import "fmt"

const (
	appMajor = 0
	appMinor = 2
	appPatch = 0

	appPreRelease = "beta"
)

func version() string {
	v := fmt.Sprintf("%d.%d.%d", appMajor, appMinor, appPatch)
	if appPreRelease != "" {
		v += "-" + appPreRelease
	}
	return v
}
