// Package tree implements the on-disk record store of the crate index: one
// file per crate holding one JSON record per line, laid out under a sharded
// directory scheme that bounds per-directory fan-out.
package tree

import (
	"path/filepath"
	"strings"
)

// RecordPath returns the working-tree-relative path of a crate's record
// file. The layout follows the registry index convention: crates with short
// names live under length-named directories, longer names shard on their
// first four characters.
//
//	a        -> 1/a
//	ab       -> 2/ab
//	abc      -> 3/a/abc
//	serde    -> se/rd/serde
func RecordPath(name string) string {
	lower := strings.ToLower(name)
	switch len(lower) {
	case 0:
		return ""
	case 1:
		return filepath.Join("1", lower)
	case 2:
		return filepath.Join("2", lower)
	case 3:
		return filepath.Join("3", lower[:1], lower)
	default:
		return filepath.Join(lower[0:2], lower[2:4], lower)
	}
}
