package server

import (
	"net/http"
	"os"
	"path/filepath"
	"strings"
)

// staticHandler serves pre-built client assets from a directory. Any path
// that does not resolve to an existing file falls back to index.html, so the
// client's routing works on deep links.
type staticHandler struct {
	dir string
}

func newStaticHandler(dir string) http.Handler {
	return &staticHandler{dir: dir}
}

func (s *staticHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet && r.Method != http.MethodHead {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	rel := strings.TrimPrefix(filepath.Clean("/"+r.URL.Path), "/")
	if rel == "" {
		rel = "index.html"
	}

	path := filepath.Join(s.dir, rel)

	if fi, err := os.Stat(path); err == nil && !fi.IsDir() {
		http.ServeFile(w, r, path)
		return
	}

	index := filepath.Join(s.dir, "index.html")
	if _, err := os.Stat(index); err != nil {
		http.NotFound(w, r)
		return
	}

	http.ServeFile(w, r, index)
}
