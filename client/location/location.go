// Package location abstracts the client's source of position fixes.
package location

import (
	"context"
	"math/rand"
	"time"

	"github.com/caredar/caredar/model"
)

// Source produces location fixes at an irregular cadence. The channel closes
// when the context is done.
type Source interface {
	Watch(ctx context.Context) <-chan model.Location
}

// Walker is a simulated source: a random walk around a starting point.
// Useful for terminal clients with no GPS.
type Walker struct {
	Start    model.Location
	StepDeg  float64
	Interval time.Duration

	rng *rand.Rand
}

func NewWalker(start model.Location, stepDeg float64, interval time.Duration) *Walker {
	return &Walker{
		Start:    start,
		StepDeg:  stepDeg,
		Interval: interval,
		rng:      rand.New(rand.NewSource(time.Now().UnixNano())),
	}
}

func (w *Walker) Watch(ctx context.Context) <-chan model.Location {
	out := make(chan model.Location)
	go func() {
		defer close(out)

		cur := w.Start
		ticker := time.NewTicker(w.Interval)
		defer ticker.Stop()

		// first fix immediately, like a fresh GPS lock
		select {
		case out <- cur:
		case <-ctx.Done():
			return
		}

		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				cur.Lat += (w.rng.Float64() - 0.5) * w.StepDeg
				cur.Lng += (w.rng.Float64() - 0.5) * w.StepDeg
				select {
				case out <- cur:
				case <-ctx.Done():
					return
				}
			}
		}
	}()
	return out
}
