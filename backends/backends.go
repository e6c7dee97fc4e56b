// Package backends registers all index backends. Import it for its side
// effects:
//
//	import _ "github.com/agoops/alexandrie/backends"
package backends

import (
	_ "github.com/agoops/alexandrie/internal/gitcli"
	_ "github.com/agoops/alexandrie/internal/gitnative"
)
