package effects

import (
	"fmt"
	"sort"
	"time"
)

// Transitions are xfade-based merges between two adjacent video streams.
// The catalog mirrors the transition names ffmpeg's xfade filter accepts;
// "none" selects plain concatenation instead of a merge.
var transitionCatalog = map[string]bool{
	"fade":       true,
	"smoothleft": true,
	"circleopen": true,
	"zoomin":     true,
	"wipeleft":   true,
}

// IsTransition reports whether name is a known merging transition.
func IsTransition(name string) bool {
	return transitionCatalog[name]
}

// TransitionNames returns the merging transition names, sorted.
func TransitionNames() []string {
	names := make([]string, 0, len(transitionCatalog))
	for name := range transitionCatalog {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// TransitionStep builds the xfade node merging two video streams. The offset
// is the absolute time on the merged stream where the transition begins.
func TransitionStep(name string, duration, offset time.Duration, in1, in2, out string) (Step, error) {
	if !IsTransition(name) {
		return Step{}, &ValidationError{Effect: name, Reason: "unknown transition"}
	}
	if duration <= 0 {
		return Step{}, &ValidationError{Effect: name, Param: "duration", Reason: "must be positive"}
	}
	if offset < 0 {
		return Step{}, &ValidationError{Effect: name, Param: "offset", Reason: "must not be negative"}
	}
	return Step{
		Inputs: []string{in1, in2},
		Name:   "xfade",
		Args: fmt.Sprintf("transition=%s:duration=%s:offset=%s",
			name, durationSeconds(duration), durationSeconds(offset)),
		Output: out,
	}, nil
}

// AudioCrossfadeStep builds the acrossfade node paired with a video
// transition when two adjacent audio streams overlap.
func AudioCrossfadeStep(duration time.Duration, in1, in2, out string) (Step, error) {
	if duration <= 0 {
		return Step{}, &ValidationError{Effect: "acrossfade", Param: "duration", Reason: "must be positive"}
	}
	return Step{
		Inputs: []string{in1, in2},
		Name:   "acrossfade",
		Args:   "d=" + durationSeconds(duration),
		Output: out,
	}, nil
}

func durationSeconds(d time.Duration) string {
	return seconds(float64(d.Milliseconds()) / 1000.0)
}
