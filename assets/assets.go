// Package assets embeds the client bootstrap script served to every page.
package assets

import (
	"embed"
)

//go:embed scripts
var Scripts embed.FS

// AppScript returns the browser bootstrap script source.
func AppScript() []byte {
	data, err := Scripts.ReadFile("scripts/appscript.js")
	if err != nil {
		// The file is embedded at build time; a failed read is a build bug.
		panic(err)
	}
	return data
}
