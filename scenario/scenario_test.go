package scenario

import (
	"errors"
	"math"
	"testing"

	"github.com/pthm-cable/pedoni/geom"
)

func TestBuiltinsValidate(t *testing.T) {
	for _, name := range Names() {
		t.Run(name, func(t *testing.T) {
			s, err := ByName(name)
			if err != nil {
				t.Fatal(err)
			}
			s.ApplyDefaults(DefaultWidth)
			if err := s.Validate(); err != nil {
				t.Errorf("Validate: %v", err)
			}
		})
	}
}

func TestByNameUnknown(t *testing.T) {
	if _, err := ByName("maze"); err == nil {
		t.Error("expected error for unknown scenario")
	}
}

func TestApplyDefaults(t *testing.T) {
	s := Crossing()
	s.ApplyDefaults(0)
	for i, o := range s.Obstacles {
		if o.Width != DefaultWidth {
			t.Errorf("obstacle %d width = %v, want %v", i, o.Width, DefaultWidth)
		}
	}
}

func TestValidateRejects(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Scenario)
	}{
		{"zero size", func(s *Scenario) { s.Size.X = 0 }},
		{"origin out of range", func(s *Scenario) { s.Sources[0].Origin = 5 }},
		{"negative destination", func(s *Scenario) { s.Sources[0].Destination = -1 }},
		{"negative frequency", func(s *Scenario) { s.Sources[0].Spawn.Frequency = -1 }},
		{"unknown kind", func(s *Scenario) { s.Sources[0].Spawn.Kind = 9 }},
		{"nan waypoint", func(s *Scenario) { s.Waypoints[0].Line = geom.Seg(math.NaN(), 0, 1, 1) }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := Corridor()
			tt.mutate(&s)
			if err := s.Validate(); !errors.Is(err, ErrInvalid) {
				t.Errorf("Validate() = %v, want ErrInvalid", err)
			}
		})
	}
}
