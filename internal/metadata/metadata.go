// Package metadata validates publish-time crate metadata before it reaches
// the index: crate names, SPDX license expressions, version monotonicity,
// and PURL-style crate references.
package metadata

import (
	"fmt"
	"regexp"
	"strings"

	"github.com/Masterminds/semver/v3"
	"github.com/git-pkgs/purl"
	"github.com/github/go-spdx/v2/spdxexp"

	"github.com/agoops/alexandrie/internal/core"
)

// MaxNameLength bounds crate names; the sharded index layout assumes names
// stay well under filesystem limits.
const MaxNameLength = 64

var nameRe = regexp.MustCompile(`^[a-z0-9][a-z0-9_-]*$`)

// ValidateName checks that name is acceptable as a crate name: lowercase
// alphanumeric with '-' or '_', starting alphanumeric, bounded length.
func ValidateName(name string) error {
	if name == "" {
		return fmt.Errorf("crate name is empty")
	}
	if len(name) > MaxNameLength {
		return fmt.Errorf("crate name %q exceeds %d characters", name, MaxNameLength)
	}
	if !nameRe.MatchString(name) {
		return fmt.Errorf("invalid crate name %q", name)
	}
	return nil
}

// ValidateLicense checks that expr is a valid SPDX license expression.
// An empty expression is allowed; the index does not require licensing
// metadata.
func ValidateLicense(expr string) error {
	if expr == "" {
		return nil
	}
	valid, invalid := spdxexp.ValidateLicenses([]string{expr})
	if !valid {
		return fmt.Errorf("invalid SPDX license expression: %s", strings.Join(invalid, ", "))
	}
	return nil
}

// CheckVersionIncrease verifies that published exceeds every hosted version
// of the crate. Registries that require monotonically increasing publishes
// call this before AddRecord.
func CheckVersionIncrease(hosted []core.Record, published *semver.Version) error {
	for i := range hosted {
		if !hosted[i].Version.LessThan(published) {
			return &core.VersionTooLowError{
				Name:      hosted[i].Name,
				Hosted:    hosted[i].Version,
				Published: published,
			}
		}
	}
	return nil
}

// ParseRef parses a cargo PURL reference such as "pkg:cargo/serde@1.0.0"
// into a crate name and an optional version.
func ParseRef(ref string) (name, version string, err error) {
	p, err := purl.Parse(ref)
	if err != nil {
		return "", "", err
	}
	if p.Type != "cargo" {
		return "", "", fmt.Errorf("unsupported package type %q, expected cargo", p.Type)
	}
	return p.Name, p.Version, nil
}

// PURL renders the canonical PURL of a crate version, or of the crate
// itself when version is nil.
func PURL(name string, version *semver.Version) string {
	if version != nil {
		return fmt.Sprintf("pkg:cargo/%s@%s", name, version)
	}
	return fmt.Sprintf("pkg:cargo/%s", name)
}
