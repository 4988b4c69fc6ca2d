package timeline

import (
	"fmt"
	"time"

	"github.com/rdpaes/narracast/pkg/util"
)

// AllocationError means the narration is too short to give every image at
// least the minimum segment duration.
type AllocationError struct {
	Images    int
	Narration time.Duration
	Minimum   time.Duration
}

func (e *AllocationError) Error() string {
	return fmt.Sprintf("narration %s too short for %d images at minimum segment %s",
		util.FormatDuration(e.Narration), e.Images, util.FormatDuration(e.Minimum))
}

// Allocate computes the on-screen duration of each image so the sequence
// covers the narration exactly.
//
// Every image starts at defaultSegment. A shortfall is distributed across
// all images proportionally to their current duration; an excess is taken
// from the last image backward, clamping each to minimum before touching
// the one before it. Millisecond rounding is absorbed by the last segment,
// so the sum always equals narration exactly. Pure and deterministic.
func Allocate(imageCount int, defaultSegment, narration, minimum time.Duration) ([]time.Duration, error) {
	if imageCount < 1 {
		return nil, fmt.Errorf("allocate: image count must be at least 1, got %d", imageCount)
	}
	if defaultSegment <= 0 {
		return nil, fmt.Errorf("allocate: default segment duration must be positive, got %v", defaultSegment)
	}
	if narration <= 0 {
		return nil, fmt.Errorf("allocate: narration duration must be positive, got %v", narration)
	}
	if minimum <= 0 {
		return nil, fmt.Errorf("allocate: minimum segment duration must be positive, got %v", minimum)
	}
	if minimum > defaultSegment {
		minimum = defaultSegment
	}

	if narration < time.Duration(imageCount)*minimum {
		return nil, &AllocationError{Images: imageCount, Narration: narration, Minimum: minimum}
	}

	durs := make([]time.Duration, imageCount)
	for i := range durs {
		durs[i] = defaultSegment
	}
	total := time.Duration(imageCount) * defaultSegment

	switch {
	case total == narration:
		return durs, nil

	case total < narration:
		// Grow every image by the same proportion; the last segment absorbs
		// the rounding so the cumulative sum stays exact.
		ratio := float64(narration) / float64(total)
		var sum time.Duration
		for i := 0; i < imageCount-1; i++ {
			durs[i] = (time.Duration(float64(durs[i]) * ratio)).Round(time.Millisecond)
			sum += durs[i]
		}
		durs[imageCount-1] = narration - sum
		return durs, nil

	default:
		// Shrink from the last image backward, clamping to the minimum and
		// carrying the remaining excess toward the front.
		excess := total - narration
		for i := imageCount - 1; i >= 0 && excess > 0; i-- {
			reducible := durs[i] - minimum
			if reducible <= 0 {
				continue
			}
			take := reducible
			if take > excess {
				take = excess
			}
			durs[i] -= take
			excess -= take
		}
		if excess > 0 {
			return nil, &AllocationError{Images: imageCount, Narration: narration, Minimum: minimum}
		}
		return durs, nil
	}
}
