package cli

import (
	"fmt"
	"log"
	"path/filepath"
	"time"

	"github.com/spf13/cobra"

	"github.com/AnastasiosMedia/clipsense2/internal/config"
	"github.com/AnastasiosMedia/clipsense2/internal/jobs"
	"github.com/AnastasiosMedia/clipsense2/internal/pipeline"
	"github.com/AnastasiosMedia/clipsense2/internal/types"
)

func newAutocutCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "autocut --music <file> --target <seconds> <clip>...",
		Short: "Analyze, allocate and render a beat-synced proxy preview",
		Args:  cobra.MinimumNArgs(1),
		RunE:  runAutocut,
	}
	cmd.Flags().String("music", "", "Music track (required)")
	cmd.Flags().Int("target", 30, "Target duration in seconds")
	cmd.Flags().String("out", "out", "Output directory")
	cmd.Flags().Int("fps", 25, "Output frame rate")
	cmd.Flags().Int("beats-per-bar", 4, "Beats per bar")
	cmd.Flags().Bool("dedupe", false, "Drop repeated clip paths before allocation")
	cmd.Flags().Bool("loop", false, "Reuse clips to fill the target when footage runs short")
	_ = cmd.MarkFlagRequired("music")
	return cmd
}

func runAutocut(cmd *cobra.Command, args []string) error {
	music, _ := cmd.Flags().GetString("music")
	target, _ := cmd.Flags().GetInt("target")
	outDir, _ := cmd.Flags().GetString("out")
	fps, _ := cmd.Flags().GetInt("fps")
	beatsPerBar, _ := cmd.Flags().GetInt("beats-per-bar")
	dedupe, _ := cmd.Flags().GetBool("dedupe")
	loop, _ := cmd.Flags().GetBool("loop")

	appCfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("config: %w", err)
	}

	clips := make([]string, len(args))
	for i, a := range args {
		abs, err := filepath.Abs(a)
		if err != nil {
			return err
		}
		clips[i] = abs
	}
	musicAbs, err := filepath.Abs(music)
	if err != nil {
		return err
	}
	outAbs, err := filepath.Abs(outDir)
	if err != nil {
		return err
	}

	cfg := pipeline.Config{
		Clips:         clips,
		Music:         musicAbs,
		TargetSeconds: target,
		FPS:           fps,
		OutDir:        outAbs,
		TempDir:       appCfg.TempDir,
		Options: pipeline.Options{
			BeatsPerBar: beatsPerBar,
			DedupeClips: dedupe,
			LoopClips:   loop,
		},
		FFmpegPath:         appCfg.FFmpegPath,
		FFprobePath:        appCfg.FFprobePath,
		Encode:             appCfg.Encode,
		AnalysisSampleRate: appCfg.AnalysisSampleRate,
		Logf:               log.Printf,
	}

	mgr := jobs.New(log.Printf)
	id, err := mgr.Start(cfg)
	if err != nil {
		return err
	}
	cmd.Printf("job started: %s\n", id)

	// Poll until the job reaches a terminal state.
	lastStep := ""
	for {
		st, err := mgr.Status(id)
		if err != nil {
			return err
		}
		if st.CurrentStep != lastStep {
			cmd.Printf("[%3d%%] %s\n", st.Progress, st.CurrentStep)
			lastStep = st.CurrentStep
		}
		if st.State == types.JobFailed {
			return st.Err
		}
		if st.State == types.JobCompleted {
			break
		}
		time.Sleep(500 * time.Millisecond)
	}

	res, err := mgr.Result(id)
	if err != nil {
		return err
	}
	cmd.Printf("timeline: %s\n", res.TimelinePath)
	cmd.Printf("proxy:    %s\n", res.ProxyOutput)
	cmd.Printf("duration: %.2fs of %ds target", res.Timeline.TotalDuration(), res.Timeline.TargetSeconds)
	if res.Timeline.Shortfall {
		cmd.Printf(" (capped: clips shorter than target)")
	}
	cmd.Println()
	if appCfg.TimingLogs {
		cmd.Printf("timing:   proxies %s, render %s, total %s\n",
			res.ProxyTime.Round(time.Millisecond),
			res.RenderTime.Round(time.Millisecond),
			res.TotalTime.Round(time.Millisecond))
	}
	return nil
}
