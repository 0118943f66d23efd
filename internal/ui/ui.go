// Package ui holds the browser page served at the room root.
package ui

import (
	_ "embed"
)

//go:embed index.html
var indexHTML []byte

// Index returns the web UI page. The page reads the room password from
// its own query string and polls the API with it.
func Index() []byte {
	return indexHTML
}
