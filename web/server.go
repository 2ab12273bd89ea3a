package web

import (
	"encoding/json"
	"fmt"
	"log"
	"net/http"

	"github.com/skinny-l/IndoorNavigation1-sub003/fusion"
	"github.com/skinny-l/IndoorNavigation1-sub003/nav"
)

// Server exposes the positioning pipeline and navigation controller over
// HTTP: a websocket event stream plus a small JSON API.
type Server struct {
	Hub      *Hub
	Pipeline *fusion.Pipeline
	Ctrl     *nav.Controller
	Graph    *nav.Graph
}

func NewServer(p *fusion.Pipeline, ctrl *nav.Controller, g *nav.Graph) *Server {
	return &Server{
		Hub:      NewHub(),
		Pipeline: p,
		Ctrl:     ctrl,
		Graph:    g,
	}
}

func (s *Server) Start(port int, staticDir string) {
	go s.Hub.Run()

	mux := http.NewServeMux()

	mux.HandleFunc("/ws", func(w http.ResponseWriter, r *http.Request) {
		serveWs(s.Hub, w, r)
	})

	mux.HandleFunc("/api/position", s.handlePosition)
	mux.HandleFunc("/api/route", s.handleRoute)
	mux.HandleFunc("/api/graph", s.handleGraph)

	if staticDir != "" {
		mux.Handle("/", http.FileServer(http.Dir(staticDir)))
	}

	addr := fmt.Sprintf(":%d", port)
	log.Printf("HTTP server listening on %s", addr)
	if err := http.ListenAndServe(addr, mux); err != nil {
		log.Fatalf("HTTP server error: %v", err)
	}
}

type positionResponse struct {
	fusion.Estimate
	State          string `json:"state"`
	ManualRequired bool   `json:"manual_required"`
}

func (s *Server) handlePosition(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodGet:
		resp := positionResponse{
			State:          s.Pipeline.State().String(),
			ManualRequired: s.Pipeline.ManualRequired(),
		}
		est, ok := s.Pipeline.Last()
		if !ok {
			writeJSON(w, http.StatusNotFound, resp)
			return
		}
		resp.Estimate = est
		writeJSON(w, http.StatusOK, resp)
	case http.MethodPost:
		var pos fusion.Position
		if err := json.NewDecoder(r.Body).Decode(&pos); err != nil {
			writeError(w, http.StatusBadRequest, "invalid position payload")
			return
		}
		s.Pipeline.InjectPosition(pos)
		w.WriteHeader(http.StatusNoContent)
	default:
		w.WriteHeader(http.StatusMethodNotAllowed)
	}
}

type routeRequest struct {
	DestID string           `json:"dest_id"`
	From   *fusion.Position `json:"from,omitempty"`
}

func (s *Server) handleRoute(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodGet:
		route, ok := s.Ctrl.Current()
		if !ok {
			writeError(w, http.StatusNotFound, "no active route")
			return
		}
		writeJSON(w, http.StatusOK, route)
	case http.MethodPost:
		var req routeRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.DestID == "" {
			writeError(w, http.StatusBadRequest, "dest_id is required")
			return
		}
		from := req.From
		if from == nil {
			est, ok := s.Pipeline.Last()
			if !ok {
				writeError(w, http.StatusConflict, "no position fix to route from")
				return
			}
			from = &est.Pos
		}
		route, err := s.Ctrl.Navigate(*from, req.DestID)
		if err != nil {
			writeError(w, http.StatusBadRequest, err.Error())
			return
		}
		writeJSON(w, http.StatusOK, route)
	case http.MethodDelete:
		s.Ctrl.Stop()
		w.WriteHeader(http.StatusNoContent)
	default:
		w.WriteHeader(http.StatusMethodNotAllowed)
	}
}

func (s *Server) handleGraph(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodGet:
		w.Header().Set("Content-Type", "application/json")
		if err := nav.Export(s.Graph, w); err != nil {
			log.Printf("web: graph export failed: %v", err)
		}
	case http.MethodPut:
		if err := nav.Import(s.Graph, r.Body); err != nil {
			writeError(w, http.StatusBadRequest, err.Error())
			return
		}
		w.WriteHeader(http.StatusNoContent)
	default:
		w.WriteHeader(http.StatusMethodNotAllowed)
	}
}

func writeJSON(w http.ResponseWriter, code int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		log.Printf("web: response encode failed: %v", err)
	}
}

func writeError(w http.ResponseWriter, code int, msg string) {
	writeJSON(w, code, map[string]string{"error": msg})
}
