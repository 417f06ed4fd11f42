package server

import (
	"net/http"
	"strings"
)

// setupRoutes configures all HTTP routes
func (s *Server) setupRoutes() *http.ServeMux {
	mux := http.NewServeMux()

	// OData entity sets (exact paths)
	mux.HandleFunc("/TransformationOrders", s.handleTransformationOrders)
	mux.HandleFunc("/TransformationOrders/$count", s.app.OrderHandler.CountHandler)
	mux.HandleFunc("/Workflows", s.app.WorkflowHandler.ListHandler)

	// Admin routes (manager profile enforced in the handler)
	mux.HandleFunc("/admin/TransformationOrders", s.app.OrderHandler.AdminListHandler)

	// Published output downloads
	mux.HandleFunc("/download/", s.app.DownloadHandler.ServeHandler)

	// API routes - System
	mux.HandleFunc("/api/version", s.app.APIHandler.VersionHandler)
	mux.HandleFunc("/api/health", s.app.APIHandler.HealthHandler)
	mux.HandleFunc("/api/status", s.app.APIHandler.StatusHandler)

	// 404 handler for unmatched API routes
	mux.HandleFunc("/api/", s.app.APIHandler.NotFoundHandler)

	// Everything else, including the OData paren-keyed resource paths
	// ("/TransformationOrders('<id>')"), goes through the fallback router.
	mux.HandleFunc("/", s.handleKeyedRoutes)

	return mux
}

// handleTransformationOrders dispatches the entity-set path by method.
func (s *Server) handleTransformationOrders(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodGet:
		s.app.OrderHandler.ListHandler(w, r)
	case http.MethodPost:
		s.app.OrderHandler.CreateHandler(w, r)
	default:
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
	}
}

// handleKeyedRoutes routes the paren-keyed OData resource paths that a
// ServeMux pattern cannot express.
func (s *Server) handleKeyedRoutes(w http.ResponseWriter, r *http.Request) {
	path := r.URL.Path

	if id, suffix, ok := parseKeyedPath(path, "/TransformationOrders"); ok {
		switch suffix {
		case "":
			s.app.OrderHandler.GetHandler(w, r, id)
		case "/Log":
			s.app.OrderHandler.LogHandler(w, r, id)
		case "/Log/$value":
			s.app.OrderHandler.LogValueHandler(w, r, id)
		default:
			http.NotFound(w, r)
		}
		return
	}

	if id, suffix, ok := parseKeyedPath(path, "/Workflows"); ok && suffix == "" {
		s.app.WorkflowHandler.GetHandler(w, r, id)
		return
	}

	// Live order log stream: /ws/orders/<id>/log
	if strings.HasPrefix(path, "/ws/orders/") && strings.HasSuffix(path, "/log") {
		id := strings.TrimSuffix(strings.TrimPrefix(path, "/ws/orders/"), "/log")
		if id != "" && !strings.Contains(id, "/") {
			s.app.WSLogHandler.StreamHandler(w, r, id)
			return
		}
	}

	http.NotFound(w, r)
}

// parseKeyedPath splits "/<entity>('<id>')<suffix>" into its id and suffix.
func parseKeyedPath(path, entity string) (id, suffix string, ok bool) {
	prefix := entity + "('"
	if !strings.HasPrefix(path, prefix) {
		return "", "", false
	}
	rest := path[len(prefix):]
	end := strings.Index(rest, "')")
	if end < 0 {
		return "", "", false
	}
	return rest[:end], rest[end+2:], true
}
