package main

import (
	"context"
	"fmt"
	"math/rand"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"github.com/rdpaes/narracast/internal/config"
	"github.com/rdpaes/narracast/internal/effects"
	"github.com/rdpaes/narracast/internal/ffmpeg"
	"github.com/rdpaes/narracast/internal/logging"
	"github.com/rdpaes/narracast/internal/pipeline"
	"github.com/rdpaes/narracast/pkg/util"
)

var (
	cfgFile string
	verbose bool
)

func main() {
	ctx := context.Background()

	if err := rootCmd.ExecuteContext(ctx); err != nil {
		os.Exit(1)
	}
}

var rootCmd = &cobra.Command{
	Use:   "narracast",
	Short: "narracast - narrated slideshow video renderer",
	Long:  "Turns a narration track and an ordered set of images into a single synchronized video, with optional overlay, music, logo and transitions.",
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		logging.Init(verbose)

		cfg, err := config.Load(cfgFile)
		if err != nil {
			return err
		}

		ctx := config.WithConfig(cmd.Context(), cfg)
		cmd.SetContext(ctx)

		return nil
	},
}

var (
	renderNarration  string
	renderOutput     string
	renderOverlay    string
	renderMusic      string
	renderLogo       string
	renderLogoPos    string
	renderTransition string
	renderPreset     string
)

var renderCmd = &cobra.Command{
	Use:   "render [images...]",
	Short: "Render a narrated video from images",
	Args:  cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg := config.FromContext(cmd.Context())

		for _, path := range append([]string{renderNarration}, args...) {
			if !util.FileExists(path) {
				return fmt.Errorf("input not found: %s", path)
			}
		}

		transition := renderTransition
		if transition == "random" {
			names := effects.TransitionNames()
			transition = names[rand.Intn(len(names))]
			log.Info().Str("transition", transition).Msg("picked random transition")
		}

		mgr, err := pipeline.NewManager(log.Logger, cfg)
		if err != nil {
			return err
		}

		// SIGINT cancels the render; the process still gets its grace period.
		ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
		defer stop()

		job, err := mgr.Start(ctx, pipeline.Request{
			Narration:  renderNarration,
			Images:     args,
			OutputPath: renderOutput,
			Overlay:    renderOverlay,
			Music:      renderMusic,
			Logo:       renderLogo,

			LogoPosition: renderLogoPos,
			Transition:   transition,
			Preset:       renderPreset,

			OnProgress: func(p ffmpeg.Progress) {
				log.Info().
					Str("elapsed", util.FormatDuration(p.Elapsed)).
					Float64("speed", p.Speed).
					Int("percent", int(p.Percent)).
					Msg("rendering")
			},
		})
		if err != nil {
			return err
		}

		if err := job.Wait(); err != nil {
			return err
		}

		log.Info().Str("output", renderOutput).Msg("done")
		return nil
	},
}

var effectsCmd = &cobra.Command{
	Use:   "effects",
	Short: "List available effects and transitions",
	RunE: func(cmd *cobra.Command, args []string) error {
		fmt.Println("effects:")
		for _, name := range effects.Names() {
			fmt.Printf("  %s\n", name)
		}
		fmt.Println("transitions:")
		for _, name := range effects.TransitionNames() {
			fmt.Printf("  %s\n", name)
		}
		return nil
	},
}

var probeCmd = &cobra.Command{
	Use:   "probe [media file]",
	Short: "Show stream metadata for a media file",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg := config.FromContext(cmd.Context())

		exec, err := ffmpeg.New(log.Logger, cfg)
		if err != nil {
			return err
		}

		ctx, cancel := context.WithTimeout(cmd.Context(), 30*time.Second)
		defer cancel()

		info, err := exec.Probe(ctx, args[0])
		if err != nil {
			return err
		}

		log.Info().
			Str("path", info.Path).
			Str("duration", util.FormatDuration(info.Duration)).
			Int("width", info.Width).
			Int("height", info.Height).
			Float64("fps", info.FPS).
			Str("video_codec", info.VideoCodec).
			Str("audio_codec", info.AudioCodec).
			Bool("has_audio", info.HasAudio).
			Msg("probed")

		return nil
	},
}

var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Config management commands",
}

var configInitCmd = &cobra.Command{
	Use:   "init [path]",
	Short: "Write a default config file",
	Args:  cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		path := "./config.yaml"
		if len(args) == 1 {
			path = args[0]
		}
		if util.FileExists(path) {
			return fmt.Errorf("config already exists: %s", path)
		}

		cfg, err := config.Load("")
		if err != nil {
			return err
		}
		if err := cfg.Save(path); err != nil {
			return err
		}

		log.Info().Str("path", path).Msg("config written")
		return nil
	},
}

func init() {
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default: ./config.yaml)")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "verbose output")

	renderCmd.Flags().StringVarP(&renderNarration, "narration", "n", "", "narration audio file (required)")
	renderCmd.Flags().StringVarP(&renderOutput, "output", "o", "output.mp4", "output video file")
	renderCmd.Flags().StringVar(&renderOverlay, "overlay", "", "overlay video looped over the slideshow")
	renderCmd.Flags().StringVar(&renderMusic, "music", "", "background music file")
	renderCmd.Flags().StringVar(&renderLogo, "logo", "", "logo image watermark")
	renderCmd.Flags().StringVar(&renderLogoPos, "logo-position", "", "logo corner (top_left, top_right, bottom_left, bottom_right, center)")
	renderCmd.Flags().StringVarP(&renderTransition, "transition", "t", "", "transition between images (see 'effects'), or 'random'")
	renderCmd.Flags().StringVarP(&renderPreset, "preset", "p", "", "encoder preset (default, hq, fast, nvenc)")
	_ = renderCmd.MarkFlagRequired("narration")

	configCmd.AddCommand(configInitCmd)

	rootCmd.AddCommand(renderCmd)
	rootCmd.AddCommand(effectsCmd)
	rootCmd.AddCommand(probeCmd)
	rootCmd.AddCommand(configCmd)
}
