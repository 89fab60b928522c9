package sweep

import (
	"context"
	"fmt"
	"math"
	"time"
)

// PowerLevels returns min, min+step, ... up to and including max
func PowerLevels(min, max, step int) ([]int, error) {
	if step <= 0 {
		return nil, fmt.Errorf("step must be positive, got %d", step)
	}
	levels := []int{}
	for p := min; p <= max; p += step {
		levels = append(levels, p)
		if p > math.MaxInt-step {
			break
		}
	}
	return levels, nil
}

// Sleep waits for d, returning early with the context's error when it is done
func Sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
