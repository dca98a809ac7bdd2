package ui

import (
	"testing"

	rl "github.com/gen2brain/raylib-go/raylib"
)

func TestOverlayDefaults(t *testing.T) {
	reg := NewOverlayRegistry()

	if !reg.IsEnabled(OverlayPotential) || !reg.IsEnabled(OverlayWaypoints) {
		t.Error("potential and waypoints should start enabled")
	}
	if reg.IsEnabled(OverlayDistance) || reg.IsEnabled(OverlayVelocity) {
		t.Error("distance and velocity should start disabled")
	}
	if len(reg.All()) != 6 {
		t.Errorf("expected 6 overlays, got %d", len(reg.All()))
	}
}

func TestOverlayExclusive(t *testing.T) {
	reg := NewOverlayRegistry()

	if !reg.Toggle(OverlayDistance) {
		t.Fatal("distance should now be enabled")
	}
	if reg.IsEnabled(OverlayPotential) {
		t.Error("enabling distance should disable potential")
	}

	reg.SetEnabled(OverlayPotential, true)
	if reg.IsEnabled(OverlayDistance) {
		t.Error("enabling potential should disable distance")
	}
}

func TestOverlayKeyPress(t *testing.T) {
	reg := NewOverlayRegistry()

	id, on, ok := reg.HandleKeyPress(rl.KeyV)
	if !ok || id != OverlayVelocity || !on {
		t.Errorf("expected velocity toggled on, got %q %v %v", id, on, ok)
	}

	if _, _, ok := reg.HandleKeyPress(rl.KeyZ); ok {
		t.Error("unbound key should not toggle anything")
	}
}

func TestOverlayUnknown(t *testing.T) {
	reg := NewOverlayRegistry()
	if reg.Toggle("nope") {
		t.Error("unknown overlay cannot be enabled")
	}
	if reg.IsEnabled("nope") {
		t.Error("unknown overlay reported enabled")
	}
}
