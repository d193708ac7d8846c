package semindex_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/tillerhq/tiller/internal/config"
	"github.com/tillerhq/tiller/internal/embedcache"
	"github.com/tillerhq/tiller/internal/semindex"
	"github.com/tillerhq/tiller/pkg/models"
)

// fakeEmbedder returns canned vectors keyed by input text and counts calls.
type fakeEmbedder struct {
	vectors map[string][]float64
	calls   int
	fail    bool
}

func (f *fakeEmbedder) Kind() string    { return "fake" }
func (f *fakeEmbedder) Dimensions() int { return 3 }
func (f *fakeEmbedder) Embed(_ context.Context, texts []string) ([][]float64, error) {
	f.calls++
	if f.fail {
		return nil, errors.New("embedding backend down")
	}
	out := make([][]float64, len(texts))
	for i, t := range texts {
		if v, ok := f.vectors[t]; ok {
			out[i] = v
		} else {
			out[i] = []float64{1, 0, 0}
		}
	}
	return out, nil
}
func (f *fakeEmbedder) HealthCheck(context.Context) error { return nil }

// failingDriver always errors on search.
type failingDriver struct{ semindex.Driver }

func (failingDriver) Kind() string { return "failing" }
func (failingDriver) Search(context.Context, []float64, int, float64, models.CapabilityPack) ([]models.ToolMatch, error) {
	return nil, errors.New("index backend down")
}

func newTestIndex(t *testing.T, emb *fakeEmbedder) (*semindex.Index, *semindex.EmbeddedDriver) {
	t.Helper()
	driver := semindex.NewEmbeddedDriver()
	cache := embedcache.New(config.CacheConfig{Enabled: true, TTL: time.Hour})
	ix := semindex.New(driver, emb, cache, config.SemanticConfig{
		TopK:     5,
		MinScore: 0.1,
		Timeout:  time.Second,
	})
	return ix, driver
}

func seed(t *testing.T, driver *semindex.EmbeddedDriver, vectors map[string]semindex.ToolVector) {
	t.Helper()
	for _, tv := range vectors {
		if err := driver.Upsert(context.Background(), tv); err != nil {
			t.Fatalf("Upsert() error = %v", err)
		}
	}
}

func TestSearchRanksbyScore(t *testing.T) {
	emb := &fakeEmbedder{vectors: map[string][]float64{"find notes": {1, 0, 0}}}
	ix, driver := newTestIndex(t, emb)

	seed(t, driver, map[string]semindex.ToolVector{
		"note_search": {Name: "note_search", Pack: models.PackNotes, Vector: []float64{0.9, 0.1, 0}},
		"web_search":  {Name: "web_search", Pack: models.PackWeb, Vector: []float64{0.5, 0.5, 0}},
		"email_send":  {Name: "email_send", Pack: models.PackComms, Vector: []float64{0, 0, 1}},
	})

	matches := ix.Search(context.Background(), "find notes", 5, 0.3, "")
	if len(matches) != 2 {
		t.Fatalf("Search() returned %d matches, want 2 (email_send is orthogonal)", len(matches))
	}
	if matches[0].Name != "note_search" {
		t.Errorf("top match = %q, want note_search", matches[0].Name)
	}
	if matches[0].Score <= matches[1].Score {
		t.Errorf("scores not descending: %v", matches)
	}
}

func TestSearchTieBreaksByName(t *testing.T) {
	emb := &fakeEmbedder{vectors: map[string][]float64{"q": {1, 0, 0}}}
	ix, driver := newTestIndex(t, emb)

	// Identical vectors → identical scores.
	seed(t, driver, map[string]semindex.ToolVector{
		"zeta_tool":  {Name: "zeta_tool", Vector: []float64{1, 0, 0}},
		"alpha_tool": {Name: "alpha_tool", Vector: []float64{1, 0, 0}},
	})

	matches := ix.Search(context.Background(), "q", 5, 0.5, "")
	if len(matches) != 2 {
		t.Fatalf("Search() returned %d matches, want 2", len(matches))
	}
	if matches[0].Name != "alpha_tool" || matches[1].Name != "zeta_tool" {
		t.Errorf("tie-break order = [%s, %s], want [alpha_tool, zeta_tool]", matches[0].Name, matches[1].Name)
	}
}

func TestSearchPackFilter(t *testing.T) {
	emb := &fakeEmbedder{vectors: map[string][]float64{"q": {1, 0, 0}}}
	ix, driver := newTestIndex(t, emb)

	seed(t, driver, map[string]semindex.ToolVector{
		"note_search": {Name: "note_search", Pack: models.PackNotes, Vector: []float64{1, 0, 0}},
		"web_search":  {Name: "web_search", Pack: models.PackWeb, Vector: []float64{1, 0, 0}},
	})

	matches := ix.Search(context.Background(), "q", 5, 0.5, models.PackWeb)
	if len(matches) != 1 || matches[0].Name != "web_search" {
		t.Errorf("pack-filtered Search() = %v, want only web_search", matches)
	}
}

func TestSearchTopKLimit(t *testing.T) {
	emb := &fakeEmbedder{vectors: map[string][]float64{"q": {1, 0, 0}}}
	ix, driver := newTestIndex(t, emb)

	seed(t, driver, map[string]semindex.ToolVector{
		"a": {Name: "a", Vector: []float64{1, 0, 0}},
		"b": {Name: "b", Vector: []float64{0.9, 0.1, 0}},
		"c": {Name: "c", Vector: []float64{0.8, 0.2, 0}},
	})

	matches := ix.Search(context.Background(), "q", 2, 0.1, "")
	if len(matches) != 2 {
		t.Errorf("Search() with topK=2 returned %d matches", len(matches))
	}
}

func TestSearchEmbeddingFailureReturnsEmpty(t *testing.T) {
	emb := &fakeEmbedder{fail: true}
	ix, _ := newTestIndex(t, emb)

	matches := ix.Search(context.Background(), "q", 5, 0.1, "")
	if matches != nil {
		t.Errorf("Search() with failing embedder = %v, want nil", matches)
	}
}

func TestSearchDriverFailureReturnsEmpty(t *testing.T) {
	emb := &fakeEmbedder{vectors: map[string][]float64{}}
	cache := embedcache.New(config.CacheConfig{Enabled: true, TTL: time.Hour})
	ix := semindex.New(failingDriver{}, emb, cache, config.SemanticConfig{TopK: 5, MinScore: 0.1, Timeout: time.Second})

	matches := ix.Search(context.Background(), "q", 5, 0.1, "")
	if matches != nil {
		t.Errorf("Search() with failing driver = %v, want nil", matches)
	}
}

func TestSearchConsultsCache(t *testing.T) {
	emb := &fakeEmbedder{vectors: map[string][]float64{"repeat": {1, 0, 0}}}
	ix, driver := newTestIndex(t, emb)

	seed(t, driver, map[string]semindex.ToolVector{
		"a": {Name: "a", Vector: []float64{1, 0, 0}},
	})

	ix.Search(context.Background(), "repeat", 5, 0.1, "")
	ix.Search(context.Background(), "repeat", 5, 0.1, "")
	ix.Search(context.Background(), "repeat", 5, 0.1, "")

	if emb.calls != 1 {
		t.Errorf("embedder called %d times for a repeated query, want 1 (cache)", emb.calls)
	}
}

func TestIndexToolThenSearch(t *testing.T) {
	emb := &fakeEmbedder{vectors: map[string][]float64{}}
	ix, _ := newTestIndex(t, emb)

	desc := models.ToolDescriptor{Name: "audio_transcribe", Description: "transcribe audio", Pack: models.PackMedia}
	if err := ix.IndexTool(context.Background(), desc); err != nil {
		t.Fatalf("IndexTool() error = %v", err)
	}
	if ix.Count(context.Background()) != 1 {
		t.Errorf("Count() = %d, want 1", ix.Count(context.Background()))
	}

	// Default fake vector is {1,0,0} for both the descriptor and the query.
	matches := ix.Search(context.Background(), "any query", 5, 0.5, "")
	if len(matches) != 1 || matches[0].Name != "audio_transcribe" {
		t.Errorf("Search() after IndexTool() = %v", matches)
	}
}
