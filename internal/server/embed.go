package server

import _ "embed"

// indexHTML is the browser client served at /.
//
//go:embed web/index.html
var indexHTML []byte
