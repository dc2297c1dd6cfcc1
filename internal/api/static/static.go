package static

import (
	"embed"
	"net/http"
)

//go:embed index.html app.js style.css
var staticFS embed.FS

// Handler returns an http.Handler that serves the operator UI
func Handler() http.Handler {
	return http.FileServer(http.FS(staticFS))
}
