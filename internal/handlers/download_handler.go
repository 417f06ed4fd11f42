package handlers

import (
	"net/http"
	"os"
	"path/filepath"
	"strings"

	"github.com/ternarybob/arbor"
)

// DownloadHandler serves published outputs from the output directory tree.
// Workers only ever write beneath their own <order_id>/, so a clean relative
// path is all that needs checking here.
type DownloadHandler struct {
	outputDir string
	logger    arbor.ILogger
}

// NewDownloadHandler creates a DownloadHandler over the output root.
func NewDownloadHandler(outputDir string, logger arbor.ILogger) *DownloadHandler {
	return &DownloadHandler{outputDir: outputDir, logger: logger}
}

// ServeHandler handles GET /download/<order_id>/<file>.
func (h *DownloadHandler) ServeHandler(w http.ResponseWriter, r *http.Request) {
	if !RequireMethod(w, r, http.MethodGet) {
		return
	}

	rel := strings.TrimPrefix(r.URL.Path, "/download/")
	rel = filepath.Clean(filepath.FromSlash(rel))
	if rel == "." || strings.HasPrefix(rel, "..") || filepath.IsAbs(rel) {
		WriteError(w, http.StatusNotFound, "not found")
		return
	}

	fullPath := filepath.Join(h.outputDir, rel)
	info, err := os.Stat(fullPath)
	if err != nil || info.IsDir() {
		WriteError(w, http.StatusNotFound, "not found")
		return
	}

	h.logger.Info().Str("path", rel).Msg("Output product download")
	w.Header().Set("Content-Disposition", "attachment; filename=\""+filepath.Base(fullPath)+"\"")
	http.ServeFile(w, r, fullPath)
}
