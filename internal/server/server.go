package server

import (
	"bytes"
	"embed"
	"encoding/json"
	"fmt"
	"html/template"
	"io/fs"
	"log"
	"net/http"
	"time"

	"github.com/yuin/goldmark"

	"github.com/TobiSchelling/CityPulse/internal/article"
	"github.com/TobiSchelling/CityPulse/internal/database"
	"github.com/TobiSchelling/CityPulse/internal/digest"
	"github.com/TobiSchelling/CityPulse/internal/snapshot"
)

//go:embed templates/*.html
var templateFS embed.FS

//go:embed static/*
var staticFS embed.FS

var md = goldmark.New()

// Server is the read-only HTTP view of stored runs.
type Server struct {
	db    *database.DB
	loc   *time.Location
	pages map[string]*template.Template
	mux   *http.ServeMux
}

// New creates a new Server. Times are displayed in loc; nil means local time.
func New(db *database.DB, loc *time.Location) (*Server, error) {
	if loc == nil {
		loc = time.Local
	}
	funcMap := template.FuncMap{
		"markdown": renderMarkdown,
		"runTime": func(t time.Time) string {
			return digest.FormatRunTime(t, loc)
		},
	}

	base, err := template.New("base.html").Funcs(funcMap).ParseFS(templateFS, "templates/base.html")
	if err != nil {
		return nil, fmt.Errorf("parsing base template: %w", err)
	}

	// Each page gets its own clone so its "content" and "title" blocks
	// don't collide.
	pageNames := []string{"index.html", "run.html"}
	pages := make(map[string]*template.Template, len(pageNames))
	for _, name := range pageNames {
		clone, err := base.Clone()
		if err != nil {
			return nil, fmt.Errorf("cloning base for %s: %w", name, err)
		}
		_, err = clone.ParseFS(templateFS, "templates/"+name)
		if err != nil {
			return nil, fmt.Errorf("parsing template %s: %w", name, err)
		}
		pages[name] = clone
	}

	s := &Server{db: db, loc: loc, pages: pages, mux: http.NewServeMux()}
	s.routes()
	return s, nil
}

// Handler returns the HTTP handler for the server.
func (s *Server) Handler() http.Handler {
	return s.mux
}

func (s *Server) routes() {
	staticSub, _ := fs.Sub(staticFS, "static")
	s.mux.Handle("/static/", http.StripPrefix("/static/", http.FileServer(http.FS(staticSub))))

	s.mux.HandleFunc("GET /{$}", s.handleIndex)
	s.mux.HandleFunc("GET /runs/{id}", s.handleRun)

	s.mux.HandleFunc("GET /api/latest", s.handleLatest)
	s.mux.HandleFunc("GET /api/runs", s.handleRuns)
	s.mux.HandleFunc("GET /api/categories/{category}", s.handleCategory)
	s.mux.HandleFunc("GET /api/neighborhoods/{name}", s.handleNeighborhood)
}

func (s *Server) handleIndex(w http.ResponseWriter, r *http.Request) {
	snap, err := s.db.LatestRun()
	if err != nil {
		log.Printf("Error loading latest run: %v", err)
		http.Error(w, "Internal server error", http.StatusInternalServerError)
		return
	}
	runs, err := s.db.ListRuns(20)
	if err != nil {
		log.Printf("Error listing runs: %v", err)
		http.Error(w, "Internal server error", http.StatusInternalServerError)
		return
	}

	data := map[string]any{"Runs": runs}
	if snap != nil {
		data["Snapshot"] = snap
		data["Digest"] = digest.Markdown(snap)
	}
	s.render(w, "index.html", data)
}

func (s *Server) handleRun(w http.ResponseWriter, r *http.Request) {
	snap, err := s.db.GetRun(r.PathValue("id"))
	if err != nil {
		log.Printf("Error loading run: %v", err)
		http.Error(w, "Internal server error", http.StatusInternalServerError)
		return
	}
	if snap == nil {
		http.NotFound(w, r)
		return
	}
	s.render(w, "run.html", map[string]any{
		"Snapshot": snap,
		"Digest":   digest.Markdown(snap),
	})
}

func (s *Server) handleLatest(w http.ResponseWriter, r *http.Request) {
	snap, ok := s.latest(w)
	if !ok {
		return
	}
	writeJSON(w, http.StatusOK, snap)
}

func (s *Server) handleRuns(w http.ResponseWriter, r *http.Request) {
	runs, err := s.db.ListRuns(50)
	if err != nil {
		log.Printf("Error listing runs: %v", err)
		writeError(w, http.StatusInternalServerError, "internal server error")
		return
	}
	type runJSON struct {
		RunID       string    `json:"run_id"`
		StartedAt   time.Time `json:"started_at"`
		FinishedAt  time.Time `json:"finished_at"`
		Total       int       `json:"total"`
		BackupCalls int       `json:"backup_calls"`
	}
	out := make([]runJSON, 0, len(runs))
	for _, run := range runs {
		out = append(out, runJSON{run.RunID, run.StartedAt, run.FinishedAt, run.Total, run.BackupCalls})
	}
	writeJSON(w, http.StatusOK, out)
}

func (s *Server) handleCategory(w http.ResponseWriter, r *http.Request) {
	cat, err := article.ParseCategory(r.PathValue("category"))
	if err != nil {
		writeError(w, http.StatusNotFound, err.Error())
		return
	}
	snap, ok := s.latest(w)
	if !ok {
		return
	}
	writeJSON(w, http.StatusOK, nonNil(snap.Category(cat)))
}

func (s *Server) handleNeighborhood(w http.ResponseWriter, r *http.Request) {
	snap, ok := s.latest(w)
	if !ok {
		return
	}
	writeJSON(w, http.StatusOK, nonNil(snap.Neighborhood(r.PathValue("name"))))
}

// latest loads the newest snapshot, writing the error response itself when
// there is none.
func (s *Server) latest(w http.ResponseWriter) (*snapshot.Snapshot, bool) {
	snap, err := s.db.LatestRun()
	if err != nil {
		log.Printf("Error loading latest run: %v", err)
		writeError(w, http.StatusInternalServerError, "internal server error")
		return nil, false
	}
	if snap == nil {
		writeError(w, http.StatusNotFound, "no runs yet")
		return nil, false
	}
	return snap, true
}

func (s *Server) render(w http.ResponseWriter, name string, data any) {
	tmpl, ok := s.pages[name]
	if !ok {
		log.Printf("Template %s not found", name)
		http.Error(w, "Internal server error", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	if err := tmpl.ExecuteTemplate(w, "base.html", data); err != nil {
		log.Printf("Error rendering template %s: %v", name, err)
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		log.Printf("Error encoding response: %v", err)
	}
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}

func nonNil(list []article.Article) []article.Article {
	if list == nil {
		return []article.Article{}
	}
	return list
}

func renderMarkdown(text string) template.HTML {
	var buf bytes.Buffer
	if err := md.Convert([]byte(text), &buf); err != nil {
		return template.HTML(template.HTMLEscapeString(text))
	}
	return template.HTML(buf.String()) //nolint: gosec
}

// Serve starts the HTTP server on the given port.
func Serve(db *database.DB, port int, loc *time.Location) error {
	srv, err := New(db, loc)
	if err != nil {
		return err
	}

	addr := fmt.Sprintf("127.0.0.1:%d", port)
	log.Printf("Server listening on http://%s", addr)
	return http.ListenAndServe(addr, srv.Handler())
}
