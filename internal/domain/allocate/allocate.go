package allocate

import (
	"fmt"
	"math"

	"github.com/AnastasiosMedia/clipsense2/internal/types"
)

// Clip is a candidate source with its independently probed duration.
type Clip struct {
	Path     string
	Duration float64 // seconds
}

// Options control allocation behavior.
type Options struct {
	// DedupeClips drops later submissions of an absolute path already in
	// the list before allocation. Off by default: repeated clips are a
	// legitimate way to stretch scarce footage.
	DedupeClips bool

	// LoopClips restarts from the first clip when the list exhausts before
	// the budget is filled, tiling footage until the target is reached.
	// Off by default: the output is capped at the available footage and
	// flagged as a shortfall instead.
	LoopClips bool
}

// Result is the ordered segment list plus bookkeeping.
type Result struct {
	Segments []types.ClipSegment
	Total    float64 // seconds actually allocated

	// Shortfall is set when the clips ran out before the target was
	// reached; the output is capped at the available footage.
	Shortfall bool
}

const timeEps = 1e-9

// Segments partitions the ordered clip list into bar-aligned segments.
//
// It walks bar intervals starting at the first bar boundary, pulling each
// interval's duration sequentially from the current clip and exhausting it
// before advancing. A clip shorter than the remaining need contributes its
// full remainder and the deficit carries into the next clip, so one bar
// interval may produce two segments. Allocation stops at the largest bar
// multiple not exceeding targetSeconds, so the total never overshoots the
// target and never undershoots it by more than one bar.
//
// When the clips run out first, the result is capped at the available
// footage and flagged, unless Options.LoopClips restarts the walk from the
// first clip to tile the list up to the budget.
func Segments(bars types.BarGrid, clips []Clip, targetSeconds int, opts Options) (Result, error) {
	usable := make([]Clip, 0, len(clips))
	seen := make(map[string]bool, len(clips))
	for _, c := range clips {
		if c.Duration <= 0 {
			continue
		}
		if opts.DedupeClips && seen[c.Path] {
			continue
		}
		seen[c.Path] = true
		usable = append(usable, c)
	}
	if len(usable) == 0 {
		return Result{}, fmt.Errorf("%w: no usable clips", types.ErrInput)
	}
	if targetSeconds <= 0 {
		return Result{}, fmt.Errorf("%w: target duration must be positive", types.ErrInput)
	}

	target := float64(targetSeconds)
	barDur := bars.BarDuration()

	// Budget: snap the target down to the nearest bar boundary. A target
	// shorter than one bar (or a degenerate single-bar grid) cannot snap,
	// so the raw target is the budget.
	budget := target
	if barDur > 0 {
		if snapped := math.Floor(target/barDur+timeEps) * barDur; snapped > 0 {
			budget = snapped
		}
	}

	var (
		out       []types.ClipSegment
		total     float64
		clipIdx   int
		posInClip float64
	)

	for interval := 0; total < budget-timeEps; interval++ {
		need := intervalDuration(bars, interval, barDur)
		if need <= 0 {
			need = budget - total
		}
		if need > budget-total {
			need = budget - total
		}

		for need > timeEps {
			if clipIdx >= len(usable) {
				if !opts.LoopClips {
					return Result{Segments: out, Total: total, Shortfall: true}, nil
				}
				// Every usable clip has positive duration, so each pass
				// over the list makes progress toward the budget.
				clipIdx, posInClip = 0, 0
			}
			clip := usable[clipIdx]
			avail := clip.Duration - posInClip
			if avail <= timeEps {
				clipIdx++
				posInClip = 0
				continue
			}
			take := math.Min(need, avail)
			out = append(out, types.ClipSegment{
				Src: clip.Path,
				In:  types.Seconds(posInClip),
				Out: types.Seconds(posInClip + take),
			})
			posInClip += take
			need -= take
			total += take
			if clip.Duration-posInClip <= timeEps {
				clipIdx++
				posInClip = 0
			}
		}
	}

	return Result{Segments: out, Total: total}, nil
}

// intervalDuration returns the length of the interval-th bar interval,
// extending the grid at the regular bar spacing beyond the last marker.
func intervalDuration(bars types.BarGrid, interval int, barDur float64) float64 {
	if interval+1 < len(bars.BarTimes) {
		return bars.BarTimes[interval+1] - bars.BarTimes[interval]
	}
	return barDur
}
