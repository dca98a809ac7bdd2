// Field preview tool - renders the navigation field of a scenario to PNG files.
//
// Usage: go run ./cmd/fieldpreview -scenario bottleneck -out preview
package main

import (
	"context"
	"flag"
	"fmt"
	"image/color"
	"os"
	"path/filepath"

	rl "github.com/gen2brain/raylib-go/raylib"

	"github.com/pthm-cable/pedoni/config"
	"github.com/pthm-cable/pedoni/field"
	"github.com/pthm-cable/pedoni/scenario"
	"github.com/pthm-cable/pedoni/viewer"
)

var waypointColor = color.RGBA{R: 255, G: 255, B: 255, A: 255}

func main() {
	configPath := flag.String("config", "", "Path to config.yaml (empty = use defaults)")
	scenarioName := flag.String("scenario", "corridor", "Scenario name")
	outDir := flag.String("out", "fieldpreview", "Output directory")
	scale := flag.Int("scale", 4, "Output pixels per field cell")
	flag.Parse()

	if err := run(*configPath, *scenarioName, *outDir, *scale); err != nil {
		fmt.Fprintf(os.Stderr, "fieldpreview: %v\n", err)
		os.Exit(1)
	}
}

func run(configPath, name, outDir string, scale int) error {
	cfg, err := config.Load(configPath)
	if err != nil {
		return err
	}
	scn, err := scenario.ByName(name)
	if err != nil {
		return err
	}
	scn.ApplyDefaults(cfg.Field.ObstacleWidth)
	if err := scn.Validate(); err != nil {
		return err
	}

	f, err := field.FromScenario(context.Background(), &scn, cfg.Field.Unit, cfg.Field.ObstacleCost)
	if err != nil {
		return err
	}
	if err := os.MkdirAll(outDir, 0755); err != nil {
		return fmt.Errorf("creating output directory: %w", err)
	}

	rows, cols := f.Shape()
	fmt.Printf("Field %s: %dx%d cells at %.2fm\n", scn.Name, cols, rows, f.Unit())

	var pixels []color.RGBA
	render := func(g field.Grid, file string) error {
		pixels = viewer.FieldPixels(pixels, g, f.Obstacles())
		path := filepath.Join(outDir, file)
		if err := export(pixels, cols, rows, scale, f.Unit(), scn.Waypoints, path); err != nil {
			return err
		}
		fmt.Printf("  %s\n", path)
		return nil
	}

	if err := render(f.DistanceGrid(), "distance.png"); err != nil {
		return err
	}
	for id := range f.Waypoints() {
		if err := render(f.PotentialGrid(id), fmt.Sprintf("potential_%d.png", id)); err != nil {
			return err
		}
	}
	return nil
}

// export scales the cell image up by scale and overlays waypoint lines.
func export(pixels []color.RGBA, cols, rows, scale int, unit float64, waypoints []scenario.Waypoint, path string) error {
	img := rl.GenImageColor(cols, rows, rl.Black)
	defer rl.UnloadImage(img)

	for y := range rows {
		for x := range cols {
			rl.ImageDrawPixel(img, int32(x), int32(y), pixels[y*cols+x])
		}
	}
	rl.ImageResizeNN(img, int32(cols*scale), int32(rows*scale))

	px := float32(float64(scale) / unit)
	for _, w := range waypoints {
		a := rl.NewVector2(float32(w.Line.A.X)*px, float32(w.Line.A.Y)*px)
		b := rl.NewVector2(float32(w.Line.B.X)*px, float32(w.Line.B.Y)*px)
		rl.ImageDrawLineV(img, a, b, waypointColor)
	}

	if !rl.ExportImage(*img, path) {
		return fmt.Errorf("exporting %s", path)
	}
	return nil
}
