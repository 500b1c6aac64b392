// Package web holds the built-in chart test page.
package web

import _ "embed"

// IndexHTML is served at / when the static directory has no index.html.
//
//go:embed index.html
var IndexHTML []byte
