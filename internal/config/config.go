package config

import (
	"strings"

	"github.com/spf13/viper"
)

// Config holds worker settings. Values come from an optional config.yaml and
// environment variables; everything has a usable default.
type Config struct {
	FFmpegPath  string
	FFprobePath string
	TempDir     string // base dir for per-render temp trees; "" = system temp

	AnalysisSampleRate int // mono decode rate for beat analysis

	Encode Encode

	TimingLogs bool
}

// Encode groups the ffmpeg encode parameters for the two render stages.
type Encode struct {
	// Proxy (assemble) stage: speed over quality.
	ProxyPreset  string
	ProxyCRF     string
	ProxyScale   string // -vf scale filter applied when building proxies
	AudioBitrate string

	// Master (conform) stage: quality over speed.
	MasterPreset string
	MasterCRF    string

	// Loudness normalization for the music overlay (EBU R128).
	LoudnessTarget float64 // LUFS
	TruePeak       float64 // dBTP
	LoudnessRange  float64 // LU
}

// Load reads configuration from config.yaml (if present) and the environment.
func Load() (*Config, error) {
	viper.SetConfigName("config")
	viper.SetConfigType("yaml")
	viper.AddConfigPath(".")
	viper.AddConfigPath("./config")
	viper.SetEnvPrefix("clipsense")
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	viper.AutomaticEnv()

	viper.SetDefault("ffmpeg.path", "ffmpeg")
	viper.SetDefault("ffprobe.path", "ffprobe")
	viper.SetDefault("temp_dir", "")
	viper.SetDefault("analysis.sample_rate", 22050)
	viper.SetDefault("encode.proxy_preset", "ultrafast")
	viper.SetDefault("encode.proxy_crf", "28")
	viper.SetDefault("encode.proxy_scale", "scale='min(1280,iw)':-2")
	viper.SetDefault("encode.audio_bitrate", "96k")
	viper.SetDefault("encode.master_preset", "medium")
	viper.SetDefault("encode.master_crf", "18")
	viper.SetDefault("encode.loudness_target", -14.0)
	viper.SetDefault("encode.true_peak", -1.5)
	viper.SetDefault("encode.loudness_range", 11.0)
	viper.SetDefault("timing_logs", true)

	// Config file is optional.
	_ = viper.ReadInConfig()

	cfg := &Config{
		FFmpegPath:         viper.GetString("ffmpeg.path"),
		FFprobePath:        viper.GetString("ffprobe.path"),
		TempDir:            viper.GetString("temp_dir"),
		AnalysisSampleRate: viper.GetInt("analysis.sample_rate"),
		Encode: Encode{
			ProxyPreset:    viper.GetString("encode.proxy_preset"),
			ProxyCRF:       viper.GetString("encode.proxy_crf"),
			ProxyScale:     viper.GetString("encode.proxy_scale"),
			AudioBitrate:   viper.GetString("encode.audio_bitrate"),
			MasterPreset:   viper.GetString("encode.master_preset"),
			MasterCRF:      viper.GetString("encode.master_crf"),
			LoudnessTarget: viper.GetFloat64("encode.loudness_target"),
			TruePeak:       viper.GetFloat64("encode.true_peak"),
			LoudnessRange:  viper.GetFloat64("encode.loudness_range"),
		},
		TimingLogs: viper.GetBool("timing_logs"),
	}

	return cfg, nil
}

// DefaultEncode returns the encode settings used when no config is loaded.
func DefaultEncode() Encode {
	return Encode{
		ProxyPreset:    "ultrafast",
		ProxyCRF:       "28",
		ProxyScale:     "scale='min(1280,iw)':-2",
		AudioBitrate:   "96k",
		MasterPreset:   "medium",
		MasterCRF:      "18",
		LoudnessTarget: -14.0,
		TruePeak:       -1.5,
		LoudnessRange:  11.0,
	}
}
