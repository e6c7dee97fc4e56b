// Package core provides the shared types, errors and the backend registry
// for the crate index.
package core

import (
	"github.com/Masterminds/semver/v3"
)

// Record is the metadata entry for one published version of a crate, as
// stored in the index: one JSON object per line of the crate's index file.
type Record struct {
	// Name is the crate's name, immutable for the life of the record.
	Name string `json:"name"`
	// Version identifies the record together with Name. Records are kept
	// in publish order, not sorted.
	Version *semver.Version `json:"vers"`
	// Dependencies is carried verbatim; the index never interprets it.
	Dependencies []Dependency `json:"deps"`
	// Features maps a feature name to the features and optional
	// dependencies it enables.
	Features map[string][]string `json:"features"`
	// Checksum is the hex-encoded SHA-256 digest of the crate tarball.
	Checksum string `json:"cksum"`
	// Yanked is tri-state: nil means never set, which reads as not yanked.
	Yanked *bool `json:"yanked,omitempty"`
	// Links names the native library this crate links against, if any.
	Links string `json:"links,omitempty"`
}

// IsYanked reports whether the record is marked as yanked. An unset flag
// counts as not yanked.
func (r *Record) IsYanked() bool {
	return r.Yanked != nil && *r.Yanked
}

// SetYanked sets the yank flag explicitly, leaving tri-state behind.
func (r *Record) SetYanked(yanked bool) {
	r.Yanked = &yanked
}

// Dependency is one dependency specifier of a crate version.
type Dependency struct {
	Name            string         `json:"name"`
	Req             string         `json:"req"`
	Features        []string       `json:"features"`
	Optional        bool           `json:"optional"`
	DefaultFeatures bool           `json:"default_features"`
	Target          *string        `json:"target"`
	Kind            DependencyKind `json:"kind"`
	Registry        string         `json:"registry,omitempty"`
	Package         string         `json:"package,omitempty"`
}

// DependencyKind indicates when a dependency is required.
type DependencyKind string

const (
	Normal DependencyKind = "normal"
	Build  DependencyKind = "build"
	Dev    DependencyKind = "dev"
)
