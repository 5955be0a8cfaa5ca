// Package slug provides the pure string utilities that name a preview
// deployment (C1).
package slug

import (
	"regexp"
	"strconv"
	"strings"
)

var nonAlnum = regexp.MustCompile(`[^a-z0-9]+`)

// ToProjectSlug lowercases owner/name, replaces runs of non-alphanumeric
// characters with a single hyphen, and trims leading/trailing hyphens.
// Total on all inputs — it never errors.
func ToProjectSlug(owner, name string) string {
	combined := strings.ToLower(owner + "-" + name)
	combined = nonAlnum.ReplaceAllString(combined, "-")
	return strings.Trim(combined, "-")
}

// ToDeploymentID returns the stable identifier for one PR's preview:
// "<slug>-<prNumber>".
func ToDeploymentID(slug string, prNumber int) string {
	return slug + "-" + strconv.Itoa(prNumber)
}
