package server

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/TobiSchelling/CityPulse/internal/aggregate"
	"github.com/TobiSchelling/CityPulse/internal/article"
	"github.com/TobiSchelling/CityPulse/internal/database"
	"github.com/TobiSchelling/CityPulse/internal/snapshot"
)

func openTestDB(t *testing.T) *database.DB {
	t.Helper()
	db, err := database.Open(filepath.Join(t.TempDir(), "test.db"))
	if err != nil {
		t.Fatalf("failed to open test db: %v", err)
	}
	t.Cleanup(func() { db.Close() })
	return db
}

func seed(t *testing.T, db *database.DB) {
	t.Helper()
	s := snapshot.Build(&aggregate.Result{
		Categories: map[article.Category][]article.Article{
			article.Local: {
				{Title: "Mission mural unveiled", URL: "https://a.com/1", Source: "Mission Local",
					Category: article.Local, Score: 9, Neighborhoods: []string{"Mission District"}},
			},
			article.Politics: {},
			article.Economy:  {},
			article.Tech: {
				{Title: "Startup raises", URL: "https://c.com/1", Source: "Hacker News", Category: article.Tech, Score: 4},
			},
		},
		Stats: aggregate.RunStats{
			RunID:      "run-1",
			StartedAt:  time.Date(2024, 5, 1, 11, 59, 0, 0, time.UTC),
			FinishedAt: time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC),
			Total:      2,
		},
	})
	if err := db.SaveRun(s); err != nil {
		t.Fatalf("SaveRun: %v", err)
	}
}

func newServer(t *testing.T, db *database.DB) *Server {
	t.Helper()
	srv, err := New(db, time.UTC)
	if err != nil {
		t.Fatalf("failed to create server: %v", err)
	}
	return srv
}

func get(srv *Server, path string) *httptest.ResponseRecorder {
	req := httptest.NewRequest("GET", path, nil)
	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, req)
	return rec
}

func TestIndexEmpty(t *testing.T) {
	rec := get(newServer(t, openTestDB(t)), "/")
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	if !strings.Contains(rec.Body.String(), "No runs yet") {
		t.Error("expected empty notice in response body")
	}
}

func TestIndexRendersDigest(t *testing.T) {
	db := openTestDB(t)
	seed(t, db)
	rec := get(newServer(t, db), "/")

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	body := rec.Body.String()
	for _, want := range []string{
		"<h2>Local</h2>",
		`<a href="https://a.com/1">Mission mural unveiled</a>`,
		`href="/runs/run-1"`,
		"May 01, 2024 12:00",
	} {
		if !strings.Contains(body, want) {
			t.Errorf("expected %q in body", want)
		}
	}
}

func TestRunRoute(t *testing.T) {
	db := openTestDB(t)
	seed(t, db)
	srv := newServer(t, db)

	rec := get(srv, "/runs/run-1")
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	if !strings.Contains(rec.Body.String(), "Run run-1") {
		t.Error("expected run id in page")
	}

	if rec := get(srv, "/runs/missing"); rec.Code != http.StatusNotFound {
		t.Errorf("expected 404 for unknown run, got %d", rec.Code)
	}
}

func TestUnknownPath(t *testing.T) {
	if rec := get(newServer(t, openTestDB(t)), "/nope"); rec.Code != http.StatusNotFound {
		t.Errorf("expected 404, got %d", rec.Code)
	}
}

func TestAPILatest(t *testing.T) {
	db := openTestDB(t)
	srv := newServer(t, db)

	if rec := get(srv, "/api/latest"); rec.Code != http.StatusNotFound {
		t.Errorf("expected 404 before any run, got %d", rec.Code)
	}

	seed(t, db)
	rec := get(srv, "/api/latest")
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	var got struct {
		RunID      string                       `json:"run_id"`
		Categories map[string][]article.Article `json:"categories"`
	}
	if err := json.NewDecoder(rec.Body).Decode(&got); err != nil {
		t.Fatalf("decoding: %v", err)
	}
	if got.RunID != "run-1" || len(got.Categories["local"]) != 1 {
		t.Errorf("unexpected payload %+v", got)
	}
}

func TestAPICategory(t *testing.T) {
	db := openTestDB(t)
	seed(t, db)
	srv := newServer(t, db)

	rec := get(srv, "/api/categories/Tech")
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	var list []article.Article
	json.NewDecoder(rec.Body).Decode(&list)
	if len(list) != 1 || list[0].Title != "Startup raises" {
		t.Errorf("unexpected tech list %+v", list)
	}

	rec = get(srv, "/api/categories/politics")
	if strings.TrimSpace(rec.Body.String()) != "[]" {
		t.Errorf("expected empty JSON array, got %q", rec.Body.String())
	}

	if rec := get(srv, "/api/categories/sports"); rec.Code != http.StatusNotFound {
		t.Errorf("expected 404 for unknown category, got %d", rec.Code)
	}
}

func TestAPINeighborhood(t *testing.T) {
	db := openTestDB(t)
	seed(t, db)
	srv := newServer(t, db)

	rec := get(srv, "/api/neighborhoods/mission%20district")
	var list []article.Article
	json.NewDecoder(rec.Body).Decode(&list)
	if len(list) != 1 || list[0].URL != "https://a.com/1" {
		t.Errorf("unexpected neighborhood list %+v", list)
	}

	rec = get(srv, "/api/neighborhoods/Bayview")
	if strings.TrimSpace(rec.Body.String()) != "[]" {
		t.Errorf("expected empty JSON array, got %q", rec.Body.String())
	}
}

func TestAPIRuns(t *testing.T) {
	db := openTestDB(t)
	seed(t, db)
	rec := get(newServer(t, db), "/api/runs")
	var runs []map[string]any
	if err := json.NewDecoder(rec.Body).Decode(&runs); err != nil {
		t.Fatalf("decoding: %v", err)
	}
	if len(runs) != 1 || runs[0]["run_id"] != "run-1" {
		t.Errorf("unexpected runs %+v", runs)
	}
}

func TestStaticFiles(t *testing.T) {
	rec := get(newServer(t, openTestDB(t)), "/static/style.css")
	if rec.Code != http.StatusOK {
		t.Errorf("expected 200 for stylesheet, got %d", rec.Code)
	}
}
