package middleware

import (
	"io/fs"
	"net/http"
	"strings"
)

// StaticHandler serves the embedded web pages. Unknown non-API paths fall
// back to index.html.
type StaticHandler struct {
	fs        http.FileSystem
	indexHTML []byte
}

func NewStaticHandler(fsys fs.FS) *StaticHandler {
	index, _ := fs.ReadFile(fsys, "index.html")
	return &StaticHandler{
		fs:        http.FS(fsys),
		indexHTML: index,
	}
}

func (h *StaticHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet && r.Method != http.MethodHead {
		http.NotFound(w, r)
		return
	}

	for _, prefix := range []string{"/api/", "/auth/", "/terminal/", "/ws", "/health", "/metrics"} {
		if strings.HasPrefix(r.URL.Path, prefix) {
			http.NotFound(w, r)
			return
		}
	}

	path := strings.TrimPrefix(r.URL.Path, "/")
	if path != "" {
		if f, err := h.fs.Open(path); err == nil {
			defer f.Close()
			if stat, err := f.Stat(); err == nil && !stat.IsDir() {
				http.FileServer(h.fs).ServeHTTP(w, r)
				return
			}
		}
	}

	if h.indexHTML != nil {
		w.Header().Set("Content-Type", "text/html; charset=utf-8")
		w.Write(h.indexHTML)
		return
	}

	http.NotFound(w, r)
}
