package server

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/asp2131/storia/internal/api"
	"github.com/asp2131/storia/internal/cache"
	"github.com/asp2131/storia/internal/classify"
	"github.com/asp2131/storia/internal/cost"
	"github.com/asp2131/storia/internal/descriptor"
	"github.com/asp2131/storia/internal/pipeline"
	"github.com/asp2131/storia/internal/server/endpoints"
	"github.com/asp2131/storia/internal/store"
	"github.com/asp2131/storia/internal/synthesis"
)

// paragraph builds a block of prose long enough to matter for pagination.
func paragraph(sentence string, n int) string {
	return strings.TrimSpace(strings.Repeat(sentence+" ", n))
}

// TestServer_BookThroughPipeline drives a book from ingest to review over
// HTTP with mock providers: create, poll to terminal, list scenes, download
// audio, override a soundscape, and read the introspection endpoints.
func TestServer_BookThroughPipeline(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), time.Minute)
	defer cancel()

	srv := newTestServer(t, "18093")

	// Two pages, two distinct descriptor sets, so the book splits into two
	// scenes at the page boundary.
	harborSet := descriptor.Set{
		Mood:             "melancholy",
		Setting:          "harbor",
		TimeOfDay:        "evening",
		Weather:          "fog",
		ActivityLevel:    "low",
		Atmosphere:       "muffled",
		SceneType:        "transition",
		DominantElements: "foghorns",
	}
	marketSet := descriptor.Set{
		Mood:             "lively",
		Setting:          "market",
		TimeOfDay:        "morning",
		Weather:          "clear",
		ActivityLevel:    "high",
		Atmosphere:       "bustling",
		SceneType:        "social",
		DominantElements: "crowd_chatter",
	}

	mockClassify := classify.NewMockClient()
	mockClassify.ClassifyFunc = func(ctx context.Context, req classify.Request) (*classify.Result, error) {
		set := harborSet
		if req.PageNum > 1 {
			set = marketSet
		}
		return &classify.Result{Descriptors: set, Provider: classify.MockName, Attempts: 1}, nil
	}
	srv.Classify().Use(mockClassify)
	srv.Synthesis().Use(synthesis.NewMockClient())

	serverCtx, serverCancel := context.WithCancel(ctx)
	defer serverCancel()
	startServer(t, serverCtx, srv)

	client := api.NewClient("http://" + srv.Addr())

	text := paragraph("The harbor lights flickered across the cold evening water.", 16) +
		"\n\n" +
		paragraph("Morning traders shouted prices over the clatter of the market.", 16)

	var created endpoints.CreateBookResponse
	if err := client.Post(ctx, "/v1/books", endpoints.CreateBookRequest{
		Text:   text,
		Title:  "Harbor Nights",
		Author: "T. Mare",
	}, &created); err != nil {
		t.Fatalf("POST /v1/books error = %v", err)
	}
	if created.Status != "queued" {
		t.Errorf("created.Status = %q, want %q", created.Status, "queued")
	}
	if created.PageCount != 2 {
		t.Errorf("created.PageCount = %d, want 2", created.PageCount)
	}

	// Poll the book until the pipeline finishes.
	var detail endpoints.BookDetailResponse
	deadline := time.Now().Add(30 * time.Second)
	for {
		if err := client.Get(ctx, "/v1/books/"+created.BookID, &detail); err != nil {
			t.Fatalf("GET /v1/books/{id} error = %v", err)
		}
		if detail.Book.Status.Terminal() {
			break
		}
		if time.Now().After(deadline) {
			t.Fatalf("book stuck in status %s", detail.Book.Status)
		}
		time.Sleep(50 * time.Millisecond)
	}

	if detail.Book.Status != store.StatusReadyForReview {
		t.Fatalf("book status = %s, want %s (errors: %+v)", detail.Book.Status, store.StatusReadyForReview, detail.Errors)
	}
	if detail.Book.SceneCount != 2 {
		t.Errorf("SceneCount = %d, want 2", detail.Book.SceneCount)
	}
	if len(detail.Errors) != 0 {
		t.Errorf("errors = %+v, want none", detail.Errors)
	}
	// 2 classification calls at 1.0 plus 2 scenes of 20s at 0.5/s.
	if detail.Book.Cost != 22.0 {
		t.Errorf("Cost = %v, want 22.0", detail.Book.Cost)
	}

	var scenes endpoints.BookScenesResponse
	if err := client.Get(ctx, "/v1/books/"+created.BookID+"/scenes", &scenes); err != nil {
		t.Fatalf("GET /v1/books/{id}/scenes error = %v", err)
	}
	if scenes.Count != 2 {
		t.Fatalf("scenes.Count = %d, want 2", scenes.Count)
	}
	for _, scene := range scenes.Scenes {
		if scene.Soundscape == nil {
			t.Fatalf("scene %d has no soundscape", scene.Index)
		}
		if scene.Soundscape.Source != store.SourceSynthesized {
			t.Errorf("scene %d source = %q, want %q", scene.Index, scene.Soundscape.Source, store.SourceSynthesized)
		}
		if scene.Soundscape.URL == "" {
			t.Errorf("scene %d has empty playback URL", scene.Index)
		}
		if scene.Soundscape.DurationSecs != 20 {
			t.Errorf("scene %d duration = %d, want 20", scene.Index, scene.Soundscape.DurationSecs)
		}
		if scene.Soundscape.DownloadURL == "" {
			t.Errorf("scene %d has no download URL", scene.Index)
		}
	}
	if scenes.Scenes[0].Descriptors != harborSet {
		t.Errorf("scene 0 descriptors = %+v, want harbor set", scenes.Scenes[0].Descriptors)
	}
	if scenes.Scenes[1].Descriptors != marketSet {
		t.Errorf("scene 1 descriptors = %+v, want market set", scenes.Scenes[1].Descriptors)
	}

	t.Run("audio_download", func(t *testing.T) {
		data, err := client.GetRaw(ctx, scenes.Scenes[0].Soundscape.DownloadURL)
		if err != nil {
			t.Fatalf("GET audio error = %v", err)
		}
		if string(data) != "mock-audio" {
			t.Errorf("audio bytes = %q, want %q", data, "mock-audio")
		}
	})

	t.Run("soundscape_override", func(t *testing.T) {
		target := scenes.Scenes[0]
		var overridden endpoints.OverrideSoundscapeResponse
		err := client.Put(ctx, "/v1/scenes/"+target.ID+"/soundscape", endpoints.OverrideSoundscapeRequest{
			URL:          "https://cdn.example.com/rain-loop.mp3",
			DurationSecs: 45,
			Prompt:       "heavy rain on canvas",
		}, &overridden)
		if err != nil {
			t.Fatalf("PUT soundscape error = %v", err)
		}
		if overridden.Soundscape.Source != store.SourceOverride {
			t.Errorf("override source = %q, want %q", overridden.Soundscape.Source, store.SourceOverride)
		}

		var after endpoints.BookScenesResponse
		if err := client.Get(ctx, "/v1/books/"+created.BookID+"/scenes", &after); err != nil {
			t.Fatalf("GET scenes after override error = %v", err)
		}
		got := after.Scenes[0].Soundscape
		if got == nil || got.URL != "https://cdn.example.com/rain-loop.mp3" {
			t.Fatalf("scene 0 soundscape after override = %+v, want replacement URL", got)
		}
		if got.Source != store.SourceOverride {
			t.Errorf("scene 0 source = %q, want %q", got.Source, store.SourceOverride)
		}
		if got.DownloadURL != "" {
			t.Errorf("override download URL = %q, want empty (external audio)", got.DownloadURL)
		}

		// External audio has no stored object to stream.
		if _, err := client.GetRaw(ctx, "/v1/soundscapes/"+overridden.Soundscape.ID+"/audio"); err == nil {
			t.Error("GET audio for override succeeded, want 404")
		}
	})

	t.Run("pipeline_status", func(t *testing.T) {
		var status pipeline.Status
		if err := client.Get(ctx, "/v1/pipeline/status", &status); err != nil {
			t.Fatalf("GET /v1/pipeline/status error = %v", err)
		}
		if status.MaxBooks != 2 {
			t.Errorf("MaxBooks = %d, want 2", status.MaxBooks)
		}
		if len(status.Pools) != 2 {
			t.Errorf("pools = %d, want 2 (classify and synthesize)", len(status.Pools))
		}
	})

	t.Run("cache_stats", func(t *testing.T) {
		var stats cache.Stats
		if err := client.Get(ctx, "/v1/cache/stats", &stats); err != nil {
			t.Fatalf("GET /v1/cache/stats error = %v", err)
		}
		if !stats.Enabled {
			t.Error("cache.Enabled = false, want true")
		}
		if stats.Entries != 2 {
			t.Errorf("cache.Entries = %d, want 2", stats.Entries)
		}
	})

	t.Run("cost_report", func(t *testing.T) {
		var summary cost.Summary
		if err := client.Get(ctx, "/v1/books/"+created.BookID+"/costs", &summary); err != nil {
			t.Fatalf("GET /v1/books/{id}/costs error = %v", err)
		}
		if summary.Total != 22.0 {
			t.Errorf("Total = %v, want 22.0", summary.Total)
		}
		if summary.ClassificationCalls != 2 {
			t.Errorf("ClassificationCalls = %v, want 2", summary.ClassificationCalls)
		}
		if summary.SynthesisSeconds != 40 {
			t.Errorf("SynthesisSeconds = %v, want 40", summary.SynthesisSeconds)
		}
		if summary.Entries != 4 {
			t.Errorf("Entries = %d, want 4 (2 classification, 2 synthesis)", summary.Entries)
		}
	})

	t.Run("error_paths", func(t *testing.T) {
		var resp endpoints.BookDetailResponse
		err := client.Get(ctx, "/v1/books/no-such-book", &resp)
		if err == nil || !strings.Contains(err.Error(), "not found") {
			t.Errorf("GET missing book error = %v, want not found", err)
		}

		var created endpoints.CreateBookResponse
		err = client.Post(ctx, "/v1/books", endpoints.CreateBookRequest{}, &created)
		if err == nil || !strings.Contains(err.Error(), "path or text is required") {
			t.Errorf("POST empty body error = %v, want path or text is required", err)
		}

		var processed endpoints.ProcessBookResponse
		err = client.Post(ctx, "/v1/books/no-such-book/process", nil, &processed)
		if err == nil || !strings.Contains(err.Error(), "book not found") {
			t.Errorf("process missing book error = %v, want book not found", err)
		}
	})

	t.Run("delete_book", func(t *testing.T) {
		if err := client.Delete(ctx, "/v1/books/"+created.BookID); err != nil {
			t.Fatalf("DELETE /v1/books/{id} error = %v", err)
		}

		var gone endpoints.BookDetailResponse
		err := client.Get(ctx, "/v1/books/"+created.BookID, &gone)
		if err == nil || !strings.Contains(err.Error(), "not found") {
			t.Errorf("GET deleted book error = %v, want not found", err)
		}
	})
}
