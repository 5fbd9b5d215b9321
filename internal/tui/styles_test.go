package tui

import (
	"strings"
	"testing"

	"github.com/randomizedcoder/go-pipe-drain/internal/stats"
)

// =============================================================================
// Tests: GetHealth
// =============================================================================

func TestGetHealth(t *testing.T) {
	tests := []struct {
		name     string
		outcomes map[stats.Outcome]int64
		want     Health
	}{
		{"empty", nil, HealthOK},
		{"all ok", map[stats.Outcome]int64{stats.OutcomeOK: 5}, HealthOK},
		{"nonzero exit", map[stats.Outcome]int64{stats.OutcomeNonZeroExit: 2}, HealthOK},
		{"mismatch", map[stats.Outcome]int64{stats.OutcomeOK: 5, stats.OutcomeMismatch: 1}, HealthFailures},
		{"hang", map[stats.Outcome]int64{stats.OutcomeHang: 1}, HealthHangs},
		{"hang outranks mismatch", map[stats.Outcome]int64{stats.OutcomeHang: 1, stats.OutcomeMismatch: 3}, HealthHangs},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := GetHealth(stats.Snapshot{Outcomes: tt.outcomes}); got != tt.want {
				t.Errorf("GetHealth() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestGetHealthLabel(t *testing.T) {
	tests := []struct {
		health Health
		want   string
	}{
		{HealthOK, "Healthy"},
		{HealthFailures, "Failures"},
		{HealthHangs, "Hangs"},
	}

	for _, tt := range tests {
		t.Run(tt.want, func(t *testing.T) {
			if got := GetHealthLabel(tt.health); !strings.Contains(got, tt.want) {
				t.Errorf("GetHealthLabel(%v) = %q, want it to contain %q", tt.health, got, tt.want)
			}
		})
	}
}

// =============================================================================
// Tests: GetFailureRateStyle / GetOutcomeStyle
// =============================================================================

func TestGetFailureRateStyle(t *testing.T) {
	tests := []struct {
		name string
		rate float64
		want string
	}{
		{"zero", 0, "good"},
		{"low", 0.005, "warn"},
		{"high", 0.05, "bad"},
	}

	styles := map[string]string{
		"good": valueGoodStyle.Render("x"),
		"warn": valueWarnStyle.Render("x"),
		"bad":  valueBadStyle.Render("x"),
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := GetFailureRateStyle(tt.rate).Render("x")
			if got != styles[tt.want] {
				t.Errorf("GetFailureRateStyle(%v) rendered %q", tt.rate, got)
			}
		})
	}
}

func TestGetOutcomeStyle(t *testing.T) {
	tests := []struct {
		outcome stats.Outcome
		count   int64
	}{
		{stats.OutcomeOK, 0},
		{stats.OutcomeOK, 5},
		{stats.OutcomeHang, 1},
		{stats.OutcomeNonZeroExit, 2},
	}

	for _, tt := range tests {
		t.Run(string(tt.outcome), func(t *testing.T) {
			if got := GetOutcomeStyle(tt.outcome, tt.count).Render("7"); !strings.Contains(got, "7") {
				t.Errorf("GetOutcomeStyle rendered %q", got)
			}
		})
	}
}

// =============================================================================
// Tests: RenderKeyValue
// =============================================================================

func TestRenderKeyValue(t *testing.T) {
	result := RenderKeyValue("Label", "Value")

	if !strings.Contains(result, "Label") {
		t.Error("result should contain label")
	}
	if !strings.Contains(result, "Value") {
		t.Error("result should contain value")
	}
}

func TestRenderKeyValueWide(t *testing.T) {
	result := RenderKeyValueWide("Wide Label", "Value")

	if !strings.Contains(result, "Wide Label") {
		t.Error("result should contain label")
	}
	if !strings.Contains(result, "Value") {
		t.Error("result should contain value")
	}
}

// =============================================================================
// Tests: RenderProgressBar
// =============================================================================

func TestRenderProgressBar(t *testing.T) {
	tests := []struct {
		name     string
		progress float64
		width    int
	}{
		{"0%", 0, 20},
		{"50%", 0.5, 20},
		{"100%", 1.0, 20},
		{"narrow", 0.5, 5},
		{"wide", 0.5, 50},
		{"over 100%", 1.5, 20},
		{"negative", -0.1, 20},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result := RenderProgressBar(tt.progress, tt.width)
			if result == "" {
				t.Error("RenderProgressBar returned empty string")
			}
			if !strings.Contains(result, "%") {
				t.Error("result should contain percentage")
			}
		})
	}
}

func TestRepeatChar(t *testing.T) {
	tests := []struct {
		char  rune
		count int
		want  string
	}{
		{'x', 0, ""},
		{'x', 1, "x"},
		{'x', 5, "xxxxx"},
		{'█', 3, "███"},
		{'x', -1, ""},
	}

	for _, tt := range tests {
		t.Run(tt.want, func(t *testing.T) {
			if got := repeatChar(tt.char, tt.count); got != tt.want {
				t.Errorf("repeatChar(%q, %d) = %q, want %q", tt.char, tt.count, got, tt.want)
			}
		})
	}
}
