package analysis_test

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"clipflow/internal/analysis"
	"clipflow/internal/services"
	"clipflow/internal/testsupport"
)

func TestNormalizeClampsTrimWindow(t *testing.T) {
	cases := []struct {
		name      string
		result    analysis.Result
		wantStart float64
		wantEnd   float64
	}{
		{
			name:      "window inside duration kept",
			result:    analysis.Result{TrimStartSec: 10, TrimEndSec: 40, RawDurationSec: 120},
			wantStart: 10,
			wantEnd:   40,
		},
		{
			name:      "negative start clamped",
			result:    analysis.Result{TrimStartSec: -4, TrimEndSec: 30, RawDurationSec: 120},
			wantStart: 0,
			wantEnd:   30,
		},
		{
			name:      "end clamped to duration",
			result:    analysis.Result{TrimStartSec: 10, TrimEndSec: 500, RawDurationSec: 90},
			wantStart: 10,
			wantEnd:   90,
		},
		{
			name:      "degenerate window falls back to opening minute",
			result:    analysis.Result{TrimStartSec: 50, TrimEndSec: 52, RawDurationSec: 120},
			wantStart: 0,
			wantEnd:   60,
		},
		{
			name:      "degenerate window on short clip uses whole clip",
			result:    analysis.Result{TrimStartSec: 20, TrimEndSec: 21, RawDurationSec: 42},
			wantStart: 0,
			wantEnd:   42,
		},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			tc.result.Normalize()
			if tc.result.TrimStartSec != tc.wantStart || tc.result.TrimEndSec != tc.wantEnd {
				t.Fatalf("got window [%v,%v], want [%v,%v]",
					tc.result.TrimStartSec, tc.result.TrimEndSec, tc.wantStart, tc.wantEnd)
			}
		})
	}
}

func TestNormalizeDefaults(t *testing.T) {
	result := analysis.Result{TrimStartSec: 0, TrimEndSec: 30, RawDurationSec: 60, CaptionStyle: "fancy"}
	result.Normalize()
	if result.HookText == "" {
		t.Fatal("expected default hook text")
	}
	if result.CaptionStyle != analysis.CaptionStyleBold {
		t.Fatalf("expected bold fallback style, got %q", result.CaptionStyle)
	}
}

func TestClientAnalyzeRoundTrip(t *testing.T) {
	payload := analysis.Result{
		TrimStartSec:     5,
		TrimEndSec:       35,
		HookText:         "THIS CHANGES EVERYTHING",
		CaptionStyle:     "minimal",
		SuggestedCaption: "A caption.",
		Hashtags:         []string{"clips"},
		RawDurationSec:   80,
	}
	raw, err := json.Marshal(payload)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch {
		case strings.HasPrefix(r.URL.Path, "/upload/"):
			_ = json.NewEncoder(w).Encode(map[string]any{
				"file": map[string]string{"name": "files/abc", "uri": "uri://abc", "state": "ACTIVE"},
			})
		case strings.Contains(r.URL.Path, ":generateContent"):
			_ = json.NewEncoder(w).Encode(map[string]any{
				"candidates": []map[string]any{{
					"content": map[string]any{
						"parts": []map[string]string{{"text": string(raw)}},
					},
				}},
			})
		case r.Method == http.MethodDelete:
			w.WriteHeader(http.StatusOK)
		default:
			t.Errorf("unexpected request: %s %s", r.Method, r.URL.Path)
			w.WriteHeader(http.StatusNotFound)
		}
	}))
	defer server.Close()

	cfg := testsupport.NewConfig(t)
	cfg.Analysis.BaseURL = server.URL
	cfg.Analysis.APIKey = "test-key"
	cfg.Analysis.Model = "test-model"

	client, err := analysis.NewClient(cfg, analysis.WithPollDelay(time.Millisecond))
	if err != nil {
		t.Fatalf("NewClient: %v", err)
	}

	clip := filepath.Join(t.TempDir(), "clip.mp4")
	testsupport.WriteFile(t, clip, 1024)

	result, err := client.Analyze(context.Background(), clip)
	if err != nil {
		t.Fatalf("Analyze: %v", err)
	}
	if result.TrimStartSec != 5 || result.TrimEndSec != 35 {
		t.Fatalf("unexpected trim window [%v,%v]", result.TrimStartSec, result.TrimEndSec)
	}
	if result.HookText != "THIS CHANGES EVERYTHING" {
		t.Fatalf("unexpected hook text %q", result.HookText)
	}
}

func TestClientAnalyzeMalformedJSONIsValidation(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch {
		case strings.HasPrefix(r.URL.Path, "/upload/"):
			_ = json.NewEncoder(w).Encode(map[string]any{
				"file": map[string]string{"name": "files/abc", "uri": "uri://abc", "state": "ACTIVE"},
			})
		case strings.Contains(r.URL.Path, ":generateContent"):
			_ = json.NewEncoder(w).Encode(map[string]any{
				"candidates": []map[string]any{{
					"content": map[string]any{
						"parts": []map[string]string{{"text": "not json"}},
					},
				}},
			})
		default:
			w.WriteHeader(http.StatusOK)
		}
	}))
	defer server.Close()

	cfg := testsupport.NewConfig(t)
	cfg.Analysis.BaseURL = server.URL
	cfg.Analysis.APIKey = "test-key"
	cfg.Analysis.Model = "test-model"

	client, err := analysis.NewClient(cfg)
	if err != nil {
		t.Fatalf("NewClient: %v", err)
	}

	clip := filepath.Join(t.TempDir(), "clip.mp4")
	testsupport.WriteFile(t, clip, 64)

	_, err = client.Analyze(context.Background(), clip)
	if !errors.Is(err, services.ErrValidation) {
		t.Fatalf("expected validation error, got %v", err)
	}
}

func TestNewClientRequiresCredentials(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	cfg.Analysis.BaseURL = ""

	_, err := analysis.NewClient(cfg)
	if !errors.Is(err, services.ErrConfiguration) {
		t.Fatalf("expected configuration error, got %v", err)
	}
}
