package webassets

import "embed"

// FS contains embedded web assets from this directory.

//go:embed login.html
var FS embed.FS
