package prompt

import (
	"strings"
	"testing"
	"time"

	"github.com/ZanzyTHEbar/agrisage-genkit/internal/llm"
)

func TestSystem_ListsToolsAndRules(t *testing.T) {
	out := System([]llm.ToolSpec{
		{Name: "WeatherInfo", Description: "Current weather and forecast.", ArgumentHint: "A city name."},
		{Name: "MarketInfo", Description: "Mandi prices."},
	})
	for _, want := range []string{
		"TOOLKIT",
		"- WeatherInfo: Current weather and forecast. Input: A city name.",
		"- MarketInfo: Mandi prices.\n",
		"write the whole final answer in that language",
		"say plainly which lookup failed",
		"based on general principles rather than specific, real-time data",
		"answer it conversationally\nwithout calling any tool",
	} {
		if !strings.Contains(out, want) {
			t.Errorf("system prompt missing %q", want)
		}
	}

	if empty := System(nil); !strings.Contains(empty, "no tools are available") {
		t.Errorf("expected no-tools line, got:\n%s", empty)
	}
}

func TestInput(t *testing.T) {
	now := time.Date(2025, 7, 9, 10, 0, 0, 0, time.UTC)

	if got := Input(now, "When to sow wheat?", "", ""); got != "Today's date: 2025-07-09\nWhen to sow wheat?" {
		t.Errorf("unexpected input %q", got)
	}

	got := Input(now, "", "Nadia", "/uploads/a.jpg")
	want := "Today's date: 2025-07-09\n\nUser's location: Nadia\n[Image available at: /uploads/a.jpg]\n[User has uploaded an image for analysis.]"
	if got != want {
		t.Errorf("unexpected input\n got: %q\nwant: %q", got, want)
	}
}

func TestHistoryEntry(t *testing.T) {
	if HistoryEntry("  ") != ImagePlaceholder || HistoryEntry("hi") != "hi" {
		t.Error("unexpected history entry")
	}
}
