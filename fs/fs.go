// Package appfs exposes this module's embedded static assets.
package appfs

import "embed"

//go:embed migrations
var FS embed.FS
