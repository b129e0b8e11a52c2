package cli

import (
	"context"
	"encoding/json"
	"fmt"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/AnastasiosMedia/clipsense2/internal/config"
	"github.com/AnastasiosMedia/clipsense2/internal/domain/beat"
	"github.com/AnastasiosMedia/clipsense2/internal/ports/adapters/ffmpeg"
)

func newAnalyzeCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "analyze <music>",
		Short: "Detect tempo, beats and bars in a music track",
		Args:  cobra.ExactArgs(1),
		RunE:  runAnalyze,
	}
	cmd.Flags().Float64("duration", 0, "Limit analysis to the first N seconds")
	cmd.Flags().Int("beats-per-bar", 4, "Beats per bar")
	return cmd
}

func runAnalyze(cmd *cobra.Command, args []string) error {
	durationHint, _ := cmd.Flags().GetFloat64("duration")
	beatsPerBar, _ := cmd.Flags().GetInt("beats-per-bar")

	appCfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("config: %w", err)
	}

	musicAbs, err := filepath.Abs(args[0])
	if err != nil {
		return err
	}

	media := ffmpeg.New(appCfg.FFmpegPath, appCfg.FFprobePath, appCfg.Encode)
	if _, _, err := media.Verify(cmd.Context()); err != nil {
		return err
	}
	wave, err := media.DecodeWaveform(context.Background(), musicAbs, appCfg.AnalysisSampleRate)
	if err != nil {
		return err
	}

	analysis := beat.Analyze(wave, beat.Config{BeatsPerBar: beatsPerBar}, durationHint)

	out := struct {
		Tempo         float64   `json:"tempo"`
		BeatTimes     []float64 `json:"beat_times"`
		BarTimes      []float64 `json:"bar_times"`
		BeatsPerBar   int       `json:"beats_per_bar"`
		TimeSignature string    `json:"time_signature"`
		StartOffset   float64   `json:"music_start_offset"`
		Confidence    float64   `json:"confidence"`
		Degraded      bool      `json:"degraded"`
	}{
		Tempo:         analysis.Beats.Tempo,
		BeatTimes:     analysis.Beats.BeatTimes,
		BarTimes:      analysis.Bars.BarTimes,
		BeatsPerBar:   analysis.Bars.BeatsPerBar,
		TimeSignature: analysis.Bars.TimeSignature,
		StartOffset:   analysis.StartOffset,
		Confidence:    analysis.Beats.Confidence,
		Degraded:      analysis.Beats.Degraded,
	}
	b, err := json.MarshalIndent(out, "", "  ")
	if err != nil {
		return err
	}
	cmd.Println(string(b))
	return nil
}
