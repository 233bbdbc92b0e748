// Package assets embeds the static files served by the game server.
package assets

import "embed"

//go:embed index.html
var FS embed.FS
