package cli

import (
	"context"
	"fmt"
	"log"
	"path/filepath"
	"time"

	"github.com/spf13/cobra"

	"github.com/AnastasiosMedia/clipsense2/internal/config"
	"github.com/AnastasiosMedia/clipsense2/internal/domain/timeline"
	"github.com/AnastasiosMedia/clipsense2/internal/ports/adapters/ffmpeg"
	"github.com/AnastasiosMedia/clipsense2/internal/render"
)

func newConformCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "conform --timeline <file> --out <file>",
		Short: "Re-render a persisted timeline from original sources at master quality",
		Args:  cobra.NoArgs,
		RunE:  runConform,
	}
	cmd.Flags().String("timeline", "", "Path to timeline.json (required)")
	cmd.Flags().String("out", "", "Output path for the master file (required)")
	cmd.Flags().String("music", "", "Override the timeline's music track")
	cmd.Flags().Bool("no-audio", false, "Skip the music overlay")
	cmd.Flags().Bool("allow-stale", false, "Warn instead of refusing when sources changed")
	cmd.Flags().String("export-xml", "", "Also write an FCP7 XML interchange file")
	_ = cmd.MarkFlagRequired("timeline")
	_ = cmd.MarkFlagRequired("out")
	return cmd
}

func runConform(cmd *cobra.Command, _ []string) error {
	timelinePath, _ := cmd.Flags().GetString("timeline")
	outPath, _ := cmd.Flags().GetString("out")
	musicOverride, _ := cmd.Flags().GetString("music")
	noAudio, _ := cmd.Flags().GetBool("no-audio")
	allowStale, _ := cmd.Flags().GetBool("allow-stale")
	exportXML, _ := cmd.Flags().GetString("export-xml")

	appCfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("config: %w", err)
	}

	tl, err := timeline.Read(timelinePath)
	if err != nil {
		return err
	}
	cmd.Printf("loaded timeline: %d clips, %ds target, hash %.12s\n",
		len(tl.Clips), tl.TargetSeconds, tl.TimelineHash)

	if exportXML != "" {
		if err := timeline.WriteFCP7XML(tl, exportXML); err != nil {
			return err
		}
		cmd.Printf("fcp7 xml: %s\n", exportXML)
	}

	outAbs, err := filepath.Abs(outPath)
	if err != nil {
		return err
	}
	if musicOverride != "" {
		if musicOverride, err = filepath.Abs(musicOverride); err != nil {
			return err
		}
	}

	media := ffmpeg.New(appCfg.FFmpegPath, appCfg.FFprobePath, appCfg.Encode)
	if _, _, err := media.Verify(cmd.Context()); err != nil {
		return err
	}
	renderer := render.New(media, appCfg.TempDir, log.Printf)

	res, err := renderer.Conform(context.Background(), tl, outAbs, render.ConformOptions{
		MusicOverride: musicOverride,
		NoAudio:       noAudio,
		AllowStale:    allowStale,
	}, func(stage render.Stage, msg string) {
		cmd.Printf("[%s] %s\n", stage, msg)
	})
	if err != nil {
		return err
	}

	if appCfg.TimingLogs {
		cmd.Printf("master: %s (%s)\n", res.Output, res.ConformTime.Round(time.Millisecond))
	} else {
		cmd.Printf("master: %s\n", res.Output)
	}
	return nil
}
