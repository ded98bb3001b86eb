package tools

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/ZanzyTHEbar/agrisage-genkit/internal/classifier"
	"github.com/ZanzyTHEbar/agrisage-genkit/internal/config"
	"github.com/ZanzyTHEbar/agrisage-genkit/internal/retrieval"
)

func testConfig(t *testing.T) *config.Config {
	t.Helper()
	cfg, err := config.Load("")
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	dir := t.TempDir()
	cfg.Cache.Dir = filepath.Join(dir, "cache")
	cfg.Retrieval.IndexPath = filepath.Join(dir, "index.json")
	cfg.Server.UploadDir = filepath.Join(dir, "uploads")
	cfg.Weather.Timezone = "UTC"
	return cfg
}

func names(tk *Toolkit) string {
	var out []string
	for _, c := range tk.Capabilities {
		out = append(out, c.Name())
	}
	return strings.Join(out, ",")
}

func TestSetup_DefaultCapabilities(t *testing.T) {
	for _, backend := range []string{"sqlite", "file", "memory"} {
		cfg := testConfig(t)
		cfg.Cache.Backend = backend

		tk, err := Setup(context.Background(), cfg, Deps{})
		if err != nil {
			t.Fatalf("%s: Setup failed: %v", backend, err)
		}
		if got := names(tk); got != "CropInfoRetriever,WeatherInfo,MarketInfo" {
			t.Errorf("%s: unexpected capabilities %s", backend, got)
		}
		// No embedder: the index reports itself unavailable.
		if got := tk.Capabilities[0].Invoke(context.Background(), "rice"); got != retrieval.IndexMissingMessage {
			t.Errorf("%s: unexpected retrieval result %q", backend, got)
		}
		if err := tk.Close(); err != nil {
			t.Errorf("%s: Close failed: %v", backend, err)
		}
	}
	cfg := testConfig(t)
	cfg.Cache.Backend = "sqlite"
	tk, _ := Setup(context.Background(), cfg, Deps{})
	defer tk.Close()
	if _, err := os.Stat(filepath.Join(cfg.Cache.Dir, "weather_cache.db")); err != nil {
		t.Errorf("expected sqlite weather cache file: %v", err)
	}
}

func TestSetup_Classifier(t *testing.T) {
	cfg := testConfig(t)
	cfg.Cache.Backend = "memory"
	cfg.Classifier.Endpoint = "http://127.0.0.1:1"
	cfg.Classifier.LabelsPath = filepath.Join(t.TempDir(), "config.json")

	if _, err := Setup(context.Background(), cfg, Deps{}); err == nil {
		t.Fatal("expected error for missing label config")
	}

	_ = os.WriteFile(cfg.Classifier.LabelsPath, []byte(`{"id2label":{"0":"Rice___Brown_spot"}}`), 0o644)
	tk, err := Setup(context.Background(), cfg, Deps{})
	if err != nil {
		t.Fatalf("Setup failed: %v", err)
	}
	defer tk.Close()
	if got := names(tk); !strings.HasSuffix(got, ","+classifier.CapabilityName) {
		t.Errorf("expected classifier capability, got %s", got)
	}

	sibling := filepath.Join(filepath.Dir(cfg.Classifier.LabelsPath), "preprocessor_config.json")
	_ = os.WriteFile(sibling, []byte(`{"image_mean": [0.5, 0.5]}`), 0o644)
	if _, err := Setup(context.Background(), cfg, Deps{}); err == nil {
		t.Error("expected error for a malformed preprocessor config next to the labels")
	}
	_ = os.WriteFile(sibling, []byte(`{"size": {"shortest_edge": 256}}`), 0o644)
	tk2, err := Setup(context.Background(), cfg, Deps{})
	if err != nil {
		t.Fatalf("Setup with preprocessor config failed: %v", err)
	}
	tk2.Close()
}

func TestSetup_BadTimezone(t *testing.T) {
	cfg := testConfig(t)
	cfg.Cache.Backend = "memory"
	cfg.Weather.Timezone = "Mars/Olympus"
	if _, err := Setup(context.Background(), cfg, Deps{}); err == nil {
		t.Error("expected timezone error")
	}
}
