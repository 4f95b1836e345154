package mlagents

import (
	"golang.org/x/mod/semver"
)

const (
	// CommunicationVersion is the communicator API this actor speaks.
	CommunicationVersion = "1.5.0"
	// PackageVersion is reported to Unity as the trainer package version.
	PackageVersion = "0.30.0"
)

// compatibleVersions applies the ML-Agents rule: majors must match, and
// before 1.0 the minors must match as well.
func compatibleVersions(unityVersion, actorVersion string) bool {
	u, a := "v"+unityVersion, "v"+actorVersion
	if !semver.IsValid(u) || !semver.IsValid(a) {
		return false
	}
	if semver.Major(u) != semver.Major(a) {
		return false
	}
	if semver.Major(u) == "v0" && semver.MajorMinor(u) != semver.MajorMinor(a) {
		return false
	}
	return true
}
