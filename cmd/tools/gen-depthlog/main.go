// Command gen-depthlog writes a synthetic depth recording that wakewatch can
// replay with -source replay.
package main

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"log"
	"os"

	"github.com/banshee-data/wakewatch/internal/depth"
	"github.com/banshee-data/wakewatch/internal/sensor"
)

func main() {
	output := flag.String("o", "sample.dlog", "output path")
	frames := flag.Int("n", 900, "number of frames")
	sceneFile := flag.String("scene", "", "scene JSON (overrides the flags below)")
	width := flag.Int("width", depth.DefaultResolution.Width, "frame width")
	height := flag.Int("height", depth.DefaultResolution.Height, "frame height")
	rise := flag.Int("rise", 150, "frames before the person gets up")
	lieDown := flag.Int("lie-down", 0, "frames after rising before lying back down (0 = stays up)")
	noisy := flag.Int("noisy", 200, "flickering pixels")
	unknown := flag.Int("unknown", 500, "pixels that never resolve")
	seed := flag.Int64("seed", 1, "random seed")
	flag.Parse()

	scene := sensor.DefaultScene()
	scene.Resolution = depth.Resolution{Width: *width, Height: *height}
	scene.RiseAfterFrames = *rise
	scene.LieDownAfterFrames = *lieDown
	scene.NoisyPixels = *noisy
	scene.UnknownPixels = *unknown
	scene.Seed = *seed
	if *sceneFile != "" {
		var err error
		if scene, err = loadScene(*sceneFile); err != nil {
			log.Fatalf("failed to load scene: %v", err)
		}
	}

	n, err := generate(context.Background(), *output, scene, *frames)
	if err != nil {
		log.Fatalf("failed to generate %s: %v", *output, err)
	}
	log.Printf("wrote %d frames (%s) to %s", n, scene.Resolution, *output)
}

func loadScene(path string) (sensor.Scene, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return sensor.Scene{}, err
	}
	var sc sensor.Scene
	if err := json.Unmarshal(data, &sc); err != nil {
		return sensor.Scene{}, fmt.Errorf("parse %s: %w", path, err)
	}
	return sc, nil
}

// generate renders frames of scene into path as fast as possible.
func generate(ctx context.Context, path string, scene sensor.Scene, frames int) (int, error) {
	if frames <= 0 {
		return 0, fmt.Errorf("frame count must be positive, got %d", frames)
	}
	scene.FrameRate = 0
	scene.MaxFrames = frames

	src, err := sensor.Open(ctx, sensor.Options{
		Kind:       sensor.KindSynthetic,
		Scene:      scene,
		RecordPath: path,
	})
	if err != nil {
		return 0, err
	}

	n := 0
	for {
		if _, err := src.Next(ctx); err != nil {
			closeErr := src.Close()
			if errors.Is(err, sensor.ErrSourceLost) {
				return n, closeErr
			}
			return n, errors.Join(err, closeErr)
		}
		n++
		if n%300 == 0 {
			log.Printf("%d/%d frames", n, frames)
		}
	}
}
