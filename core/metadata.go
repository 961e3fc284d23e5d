package core

import (
	"path"
	"regexp"
	"strings"
)

// Unknown is used for package metadata that could not be derived.
const Unknown = "unknown"

var (
	filenamePattern = regexp.MustCompile(`^(.+?)_([0-9][0-9A-Za-z.\-]*)$`)
	titlePattern    = regexp.MustCompile(`^\s*([A-Za-z][A-Za-z0-9.]*)[\s_:]+v?([0-9][0-9A-Za-z.\-]*)`)
)

// ParsePackageVersion derives a package name and version for an artifact.
//
// The artifact's file name is tried first using the "{name}_{version}.ext"
// convention, then the document title. Both values fall back to Unknown.
func ParsePackageVersion(artifactKey, title string) (name, version string) {
	base := path.Base(artifactKey)
	if ext := path.Ext(base); ext != "" {
		base = strings.TrimSuffix(base, ext)
	}
	if m := filenamePattern.FindStringSubmatch(base); m != nil {
		return m[1], m[2]
	}
	if m := titlePattern.FindStringSubmatch(title); m != nil {
		return m[1], m[2]
	}
	return Unknown, Unknown
}
