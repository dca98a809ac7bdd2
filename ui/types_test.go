package ui

import (
	"testing"

	rl "github.com/gen2brain/raylib-go/raylib"
)

func TestThemeBarColor(t *testing.T) {
	th := DefaultTheme()
	tests := []struct {
		v    float32
		want string
	}{
		{0, "jammed"},
		{0.29, "jammed"},
		{0.3, "slow"},
		{0.59, "slow"},
		{0.6, "free"},
		{1, "free"},
	}
	names := map[string]rl.Color{"jammed": th.BarJammed, "slow": th.BarSlow, "free": th.BarFree}
	for _, tt := range tests {
		if got := th.barColor(tt.v); got != names[tt.want] {
			t.Errorf("barColor(%v) = %v, want %s", tt.v, got, tt.want)
		}
	}
}
