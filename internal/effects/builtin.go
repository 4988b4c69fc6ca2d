package effects

import (
	"fmt"
	"strconv"
)

// Overlay position expressions, shared by logo and overlay compositing.
var positionExpr = map[string]string{
	"top_left":     "20:20",
	"top_right":    "W-w-20:20",
	"bottom_left":  "20:H-h-20",
	"bottom_right": "W-w-20:H-h-20",
	"center":       "(W-w)/2:(H-h)/2",
}

var positionNames = []string{"top_left", "top_right", "bottom_left", "bottom_right", "center"}

func init() {
	register(fadeEffect())
	register(volumeEffect())
	register(logoEffect())
	register(overlayEffect())
}

// fadeEffect fades a video stream in or out over a time window.
func fadeEffect() Effect {
	return Effect{
		Descriptor: Descriptor{
			Name:   "fade",
			Target: TargetVideo,
			Params: map[string]ParamSpec{
				"start":    {Type: TypeFloat, Min: floatPtr(0), Default: 0.0},
				"duration": {Type: TypeFloat, Required: true, Min: floatPtr(0.001)},
				"mode":     {Type: TypeString, Enum: []string{"in", "out"}, Default: "in"},
			},
			Description: "fade the video in or out",
		},
		Build: func(params map[string]any, ctx Context) []Step {
			start := params["start"].(float64)
			duration := params["duration"].(float64)
			mode := params["mode"].(string)
			return []Step{{
				Inputs: []string{ctx.In},
				Name:   "fade",
				Args:   fmt.Sprintf("t=%s:st=%s:d=%s", mode, seconds(start), seconds(duration)),
				Output: ctx.Out,
			}}
		},
	}
}

// volumeEffect scales the amplitude of an audio stream.
func volumeEffect() Effect {
	return Effect{
		Descriptor: Descriptor{
			Name:   "volume",
			Target: TargetAudio,
			Params: map[string]ParamSpec{
				"volume": {Type: TypeFloat, Required: true, Min: floatPtr(0)},
			},
			Description: "scale audio volume",
		},
		Build: func(params map[string]any, ctx Context) []Step {
			return []Step{{
				Inputs: []string{ctx.In},
				Name:   "volume",
				Args:   seconds(params["volume"].(float64)),
				Output: ctx.Out,
			}}
		},
	}
}

// logoEffect composites a scaled watermark image onto the running video.
// The logo image arrives as the Aux input stream.
func logoEffect() Effect {
	return Effect{
		Descriptor: Descriptor{
			Name:   "logo",
			Target: TargetVideo,
			Params: map[string]ParamSpec{
				"position": {Type: TypeString, Enum: positionNames, Default: "top_right"},
				"scale":    {Type: TypeFloat, Min: floatPtr(0.01), Max: floatPtr(1), Default: 0.15},
				"opacity":  {Type: TypeFloat, Min: floatPtr(0.01), Max: floatPtr(1), Default: 1.0},
			},
			Description: "overlay a logo image on the video",
		},
		Build: func(params map[string]any, ctx Context) []Step {
			scale := params["scale"].(float64)
			opacity := params["opacity"].(float64)
			pos := positionExpr[params["position"].(string)]

			scaled := ctx.Label("logo")
			steps := []Step{{
				Inputs: []string{ctx.Aux},
				Name:   "scale",
				Args:   fmt.Sprintf("iw*%s:ih*%s", seconds(scale), seconds(scale)),
				Output: scaled,
			}}

			overlayIn := scaled
			if opacity < 1.0 {
				rgba := ctx.Label("logo")
				alpha := ctx.Label("logo")
				steps = append(steps,
					Step{Inputs: []string{scaled}, Name: "format", Args: "rgba", Output: rgba},
					Step{Inputs: []string{rgba}, Name: "colorchannelmixer", Args: "aa=" + seconds(opacity), Output: alpha},
				)
				overlayIn = alpha
			}

			steps = append(steps, Step{
				Inputs: []string{ctx.In, overlayIn},
				Name:   "overlay",
				Args:   pos,
				Output: ctx.Out,
			})
			return steps
		},
	}
}

// overlayEffect composites a looping overlay video over the running stream.
func overlayEffect() Effect {
	return Effect{
		Descriptor: Descriptor{
			Name:   "overlay",
			Target: TargetVideo,
			Params: map[string]ParamSpec{
				"opacity":  {Type: TypeFloat, Min: floatPtr(0.01), Max: floatPtr(1), Default: 1.0},
				"position": {Type: TypeString, Enum: positionNames, Default: "center"},
			},
			Description: "overlay a video on top of the main stream",
		},
		Build: func(params map[string]any, ctx Context) []Step {
			opacity := params["opacity"].(float64)
			pos := positionExpr[params["position"].(string)]

			overlayIn := ctx.Aux
			var steps []Step
			if opacity < 1.0 {
				rgba := ctx.Label("ovr")
				alpha := ctx.Label("ovr")
				steps = append(steps,
					Step{Inputs: []string{ctx.Aux}, Name: "format", Args: "rgba", Output: rgba},
					Step{Inputs: []string{rgba}, Name: "colorchannelmixer", Args: "aa=" + seconds(opacity), Output: alpha},
				)
				overlayIn = alpha
			}

			steps = append(steps, Step{
				Inputs: []string{ctx.In, overlayIn},
				Name:   "overlay",
				Args:   pos + ":format=auto",
				Output: ctx.Out,
			})
			return steps
		},
	}
}

// seconds renders a float the way ffmpeg filter args expect: no exponent,
// no trailing zeros, so the same value always serializes identically.
func seconds(f float64) string {
	return strconv.FormatFloat(f, 'f', -1, 64)
}
