package digest

import (
	"strings"
	"testing"
	"time"

	"github.com/TobiSchelling/CityPulse/internal/aggregate"
	"github.com/TobiSchelling/CityPulse/internal/article"
	"github.com/TobiSchelling/CityPulse/internal/snapshot"
)

func testSnapshot() *snapshot.Snapshot {
	return snapshot.Build(&aggregate.Result{
		Categories: map[article.Category][]article.Article{
			article.Local: {
				{Title: "Mission [mural] unveiled", URL: "https://a.com/1", Source: "Mission Local",
					PublishedDate: "2024-05-01T10:00:00Z", Score: 9, Snippet: "A new mural.", Neighborhoods: []string{"Mission District"}},
			},
			article.Politics: {},
			article.Economy: {
				{Title: "Rents fall", URL: "https://b.com/1", Source: "SF Chronicle", PublishedDate: "not a date", Score: 3},
			},
			article.Tech: {
				{Title: "Startup raises", URL: "https://c.com/1", Source: "Hacker News", Score: 14},
			},
		},
		Stats: aggregate.RunStats{RunID: "r", FinishedAt: time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC), BackupCalls: 1},
	})
}

func TestMarkdownSections(t *testing.T) {
	md := Markdown(testSnapshot())

	order := []string{"# City Pulse: May 01, 2024 12:00", "## Top stories", "## Local", "## Politics", "## Economy", "## Tech", "## Neighborhoods"}
	last := -1
	for _, h := range order {
		i := strings.Index(md, h)
		if i < 0 {
			t.Fatalf("missing %q in:\n%s", h, md)
		}
		if i <= last {
			t.Errorf("%q out of order", h)
		}
		last = i
	}

	for _, want := range []string{
		`[Mission \[mural\] unveiled](https://a.com/1)`,
		"_Mission Local · May 01 10:00 · score 9 · Mission District_",
		"_SF Chronicle · score 3_",
		"Nothing new.",
		"- Mission District: 1",
		"3 articles, 1 backup searches",
	} {
		if !strings.Contains(md, want) {
			t.Errorf("expected %q in:\n%s", want, md)
		}
	}
}

func TestHeadlinesOrderedByScore(t *testing.T) {
	md := Markdown(testSnapshot())
	top := md[strings.Index(md, "## Top stories"):strings.Index(md, "## Local")]
	if strings.Index(top, "Startup raises") > strings.Index(top, "Mission") {
		t.Errorf("expected highest score first:\n%s", top)
	}
	if !strings.Contains(top, "(Tech)") {
		t.Errorf("expected category label in headlines:\n%s", top)
	}
}

func TestMarkdownEmpty(t *testing.T) {
	s := snapshot.Build(&aggregate.Result{Categories: map[article.Category][]article.Article{}, Stats: aggregate.RunStats{RunID: "r"}})
	md := Markdown(s)
	if !strings.Contains(md, "No articles collected") {
		t.Errorf("expected empty notice, got:\n%s", md)
	}
	if strings.Contains(md, "## Top stories") {
		t.Error("expected no headlines for an empty run")
	}
}

func TestFormatRunTime(t *testing.T) {
	loc, err := time.LoadLocation("America/Los_Angeles")
	if err != nil {
		t.Skip("tzdata unavailable")
	}
	got := FormatRunTime(time.Date(2024, 5, 1, 20, 5, 0, 0, time.UTC), loc)
	if got != "May 01, 2024 13:05" {
		t.Errorf("got %q", got)
	}
}
