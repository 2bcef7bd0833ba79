// Package config loads service configuration from the environment, with an
// optional YAML file underneath. Precedence: built-in defaults, then the file
// named by CONFIG_FILE, then environment variables.
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

type Configuration struct {
	Service       ServiceConfig
	Segmenter     SegmenterConfig
	Emitter       EmitterConfig
	Kafka         KafkaConfig
	Sink          SinkConfig
	Observability ObservabilityConfig
}

type ServiceConfig struct {
	Principal string
	HTTPPort  string
	DataDir   string

	// SessionTTL is how long a session may go without captions before the
	// reaper closes it. Zero disables idle expiry.
	SessionTTL time.Duration
}

// SegmenterConfig holds the timing knobs of the caption segmenter. All
// windows are expressed in seconds in the environment and the config file.
type SegmenterConfig struct {
	Idle             time.Duration
	MergeGap         time.Duration
	RevisionWindow   time.Duration
	ForceSplitGap    time.Duration
	MaxSegment       time.Duration
	MergeConsecutive bool

	// Similarity judge tunables.
	SimilarityThreshold float64
	TailWindow          int
}

type EmitterConfig struct {
	// Mode selects the emission strategy: "segments" (idle-flushed
	// utterances, the default) or "deltas" (periodic unseen-suffix
	// streaming).
	Mode        string
	Interval    time.Duration
	DedupWindow time.Duration
}

type KafkaConfig struct {
	Enabled        bool
	Brokers        []string
	TopicUtterance string
	TopicDelta     string
	Principal      string
}

type SinkConfig struct {
	BackendURL      string
	CaptionsLogPath string
	RequestTimeout  time.Duration
}

type ObservabilityConfig struct {
	MetricsPort string
	LogLevel    string
}

const (
	EmitModeSegments = "segments"
	EmitModeDeltas   = "deltas"
)

// Load builds the configuration. It never fails: unparseable values fall
// back to the layer below, and a missing CONFIG_FILE is ignored.
func Load() *Configuration {
	cfg := defaults()

	if path := os.Getenv("CONFIG_FILE"); path != "" {
		applyFile(cfg, path)
	}
	applyEnv(cfg)

	if cfg.Kafka.Principal == "" {
		cfg.Kafka.Principal = cfg.Service.Principal
	}
	return cfg
}

func defaults() *Configuration {
	return &Configuration{
		Service: ServiceConfig{
			Principal:  "svc-caption-ingress",
			HTTPPort:   "8000",
			DataDir:    "./data",
			SessionTTL: 15 * time.Minute,
		},
		Segmenter: SegmenterConfig{
			Idle:                2 * time.Second,
			MergeGap:            1 * time.Second,
			RevisionWindow:      8 * time.Second,
			ForceSplitGap:       30 * time.Second,
			MaxSegment:          20 * time.Second,
			MergeConsecutive:    false,
			SimilarityThreshold: 0.80,
			TailWindow:          24,
		},
		Emitter: EmitterConfig{
			Mode:        EmitModeSegments,
			Interval:    4 * time.Second,
			DedupWindow: 2 * time.Second,
		},
		Kafka: KafkaConfig{
			Enabled:        false,
			Brokers:        []string{"localhost:9092"},
			TopicUtterance: "captions.utterances",
			TopicDelta:     "captions.deltas",
		},
		Sink: SinkConfig{
			BackendURL:      "",
			CaptionsLogPath: "./data/captions.log",
			RequestTimeout:  5 * time.Second,
		},
		Observability: ObservabilityConfig{
			MetricsPort: "9090",
			LogLevel:    "info",
		},
	}
}

// fileConfig mirrors Configuration with optional fields so a sparse YAML
// file only overrides what it names.
type fileConfig struct {
	Service struct {
		Principal         *string  `yaml:"principal"`
		HTTPPort          *string  `yaml:"http_port"`
		DataDir           *string  `yaml:"data_dir"`
		SessionTTLSeconds *float64 `yaml:"session_ttl_seconds"`
	} `yaml:"service"`
	Segmenter struct {
		IdleSeconds           *float64 `yaml:"idle_seconds"`
		MergeGapSeconds       *float64 `yaml:"merge_gap_seconds"`
		RevisionWindowSeconds *float64 `yaml:"revision_window_seconds"`
		ForceSplitGapSeconds  *float64 `yaml:"force_split_gap_seconds"`
		MaxSegmentSeconds     *float64 `yaml:"max_segment_seconds"`
		MergeConsecutive      *bool    `yaml:"merge_consecutive"`
		SimilarityThreshold   *float64 `yaml:"similarity_threshold"`
		TailWindowChars       *int     `yaml:"tail_window_chars"`
	} `yaml:"segmenter"`
	Emitter struct {
		Mode               *string  `yaml:"mode"`
		IntervalSeconds    *float64 `yaml:"interval_seconds"`
		DedupWindowSeconds *float64 `yaml:"dedup_window_seconds"`
	} `yaml:"emitter"`
	Kafka struct {
		Enabled        *bool    `yaml:"enabled"`
		Brokers        []string `yaml:"brokers"`
		TopicUtterance *string  `yaml:"topic_utterance"`
		TopicDelta     *string  `yaml:"topic_delta"`
		Principal      *string  `yaml:"principal"`
	} `yaml:"kafka"`
	Sink struct {
		BackendURL      *string  `yaml:"backend_url"`
		CaptionsLogPath *string  `yaml:"captions_log_path"`
		TimeoutSeconds  *float64 `yaml:"timeout_seconds"`
	} `yaml:"sink"`
	Observability struct {
		MetricsPort *string `yaml:"metrics_port"`
		LogLevel    *string `yaml:"log_level"`
	} `yaml:"observability"`
}

func applyFile(cfg *Configuration, path string) {
	data, err := os.ReadFile(path)
	if err != nil {
		fmt.Fprintf(os.Stderr, "config: cannot read %s: %v\n", path, err)
		return
	}
	var f fileConfig
	if err := yaml.Unmarshal(data, &f); err != nil {
		fmt.Fprintf(os.Stderr, "config: cannot parse %s: %v\n", path, err)
		return
	}

	setString(&cfg.Service.Principal, f.Service.Principal)
	setString(&cfg.Service.HTTPPort, f.Service.HTTPPort)
	setString(&cfg.Service.DataDir, f.Service.DataDir)
	setSeconds(&cfg.Service.SessionTTL, f.Service.SessionTTLSeconds)

	setSeconds(&cfg.Segmenter.Idle, f.Segmenter.IdleSeconds)
	setSeconds(&cfg.Segmenter.MergeGap, f.Segmenter.MergeGapSeconds)
	setSeconds(&cfg.Segmenter.RevisionWindow, f.Segmenter.RevisionWindowSeconds)
	setSeconds(&cfg.Segmenter.ForceSplitGap, f.Segmenter.ForceSplitGapSeconds)
	setSeconds(&cfg.Segmenter.MaxSegment, f.Segmenter.MaxSegmentSeconds)
	setBool(&cfg.Segmenter.MergeConsecutive, f.Segmenter.MergeConsecutive)
	if v := f.Segmenter.SimilarityThreshold; v != nil && *v > 0 && *v <= 1 {
		cfg.Segmenter.SimilarityThreshold = *v
	}
	if v := f.Segmenter.TailWindowChars; v != nil && *v > 0 {
		cfg.Segmenter.TailWindow = *v
	}

	setString(&cfg.Emitter.Mode, f.Emitter.Mode)
	setSeconds(&cfg.Emitter.Interval, f.Emitter.IntervalSeconds)
	setSeconds(&cfg.Emitter.DedupWindow, f.Emitter.DedupWindowSeconds)

	setBool(&cfg.Kafka.Enabled, f.Kafka.Enabled)
	if len(f.Kafka.Brokers) > 0 {
		cfg.Kafka.Brokers = f.Kafka.Brokers
	}
	setString(&cfg.Kafka.TopicUtterance, f.Kafka.TopicUtterance)
	setString(&cfg.Kafka.TopicDelta, f.Kafka.TopicDelta)
	setString(&cfg.Kafka.Principal, f.Kafka.Principal)

	setString(&cfg.Sink.BackendURL, f.Sink.BackendURL)
	setString(&cfg.Sink.CaptionsLogPath, f.Sink.CaptionsLogPath)
	setSeconds(&cfg.Sink.RequestTimeout, f.Sink.TimeoutSeconds)

	setString(&cfg.Observability.MetricsPort, f.Observability.MetricsPort)
	setString(&cfg.Observability.LogLevel, f.Observability.LogLevel)
}

func applyEnv(cfg *Configuration) {
	cfg.Service.Principal = envOrDefault("SERVICE_PRINCIPAL", cfg.Service.Principal)
	cfg.Service.HTTPPort = envOrDefault("HTTP_PORT", cfg.Service.HTTPPort)
	cfg.Service.DataDir = envOrDefault("DATA_DIR", cfg.Service.DataDir)
	// An explicit 0 turns idle expiry off.
	if v := os.Getenv("SESSION_TTL_SECONDS"); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil && f >= 0 {
			cfg.Service.SessionTTL = time.Duration(f * float64(time.Second))
		}
	}

	cfg.Segmenter.Idle = envOrDefaultSeconds("CAPTION_IDLE_SECONDS", cfg.Segmenter.Idle)
	cfg.Segmenter.MergeGap = envOrDefaultSeconds("MERGE_GAP_SECONDS", cfg.Segmenter.MergeGap)
	cfg.Segmenter.RevisionWindow = envOrDefaultSeconds("REVISION_WINDOW_SECONDS", cfg.Segmenter.RevisionWindow)
	cfg.Segmenter.ForceSplitGap = envOrDefaultSeconds("FORCE_SPLIT_GAP_SECONDS", cfg.Segmenter.ForceSplitGap)
	cfg.Segmenter.MaxSegment = envOrDefaultSeconds("MAX_SEGMENT_SECONDS", cfg.Segmenter.MaxSegment)
	cfg.Segmenter.MergeConsecutive = envOrDefaultBool("MERGE_CONSECUTIVE_CAPTIONS", cfg.Segmenter.MergeConsecutive)
	cfg.Segmenter.SimilarityThreshold = envOrDefaultFloat("SIMILARITY_THRESHOLD", cfg.Segmenter.SimilarityThreshold)
	cfg.Segmenter.TailWindow = envOrDefaultInt("TAIL_WINDOW_CHARS", cfg.Segmenter.TailWindow)

	cfg.Emitter.Mode = envOrDefault("EMIT_MODE", cfg.Emitter.Mode)
	cfg.Emitter.Interval = envOrDefaultSeconds("CAPTION_EMIT_INTERVAL_SECONDS", cfg.Emitter.Interval)
	cfg.Emitter.DedupWindow = envOrDefaultSeconds("DEDUP_WINDOW_SECONDS", cfg.Emitter.DedupWindow)

	cfg.Kafka.Enabled = envOrDefaultBool("KAFKA_ENABLED", cfg.Kafka.Enabled)
	if v := os.Getenv("KAFKA_BROKERS"); v != "" {
		cfg.Kafka.Brokers = splitBrokers(v)
	}
	cfg.Kafka.TopicUtterance = envOrDefault("KAFKA_TOPIC_UTTERANCE", cfg.Kafka.TopicUtterance)
	cfg.Kafka.TopicDelta = envOrDefault("KAFKA_TOPIC_DELTA", cfg.Kafka.TopicDelta)
	cfg.Kafka.Principal = envOrDefault("KAFKA_PRINCIPAL", cfg.Kafka.Principal)

	cfg.Sink.BackendURL = envOrDefault("BACKEND_URL", cfg.Sink.BackendURL)
	cfg.Sink.CaptionsLogPath = envOrDefault("CAPTIONS_LOG_PATH", cfg.Sink.CaptionsLogPath)
	cfg.Sink.RequestTimeout = envOrDefaultSeconds("SINK_TIMEOUT_SECONDS", cfg.Sink.RequestTimeout)

	cfg.Observability.MetricsPort = envOrDefault("METRICS_PORT", cfg.Observability.MetricsPort)
	cfg.Observability.LogLevel = envOrDefault("LOG_LEVEL", cfg.Observability.LogLevel)
}

func setString(dst *string, v *string) {
	if v != nil {
		*dst = *v
	}
}

func setBool(dst *bool, v *bool) {
	if v != nil {
		*dst = *v
	}
}

func setSeconds(dst *time.Duration, v *float64) {
	if v != nil && *v > 0 {
		*dst = time.Duration(*v * float64(time.Second))
	}
}

func splitBrokers(s string) []string {
	parts := strings.Split(s, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}

func envOrDefault(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func envOrDefaultBool(key string, def bool) bool {
	if v := os.Getenv(key); v != "" {
		if b, err := strconv.ParseBool(strings.ToLower(v)); err == nil {
			return b
		}
	}
	return def
}

func envOrDefaultInt(key string, def int) int {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			return n
		}
	}
	return def
}

func envOrDefaultFloat(key string, def float64) float64 {
	if v := os.Getenv(key); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil && f > 0 {
			return f
		}
	}
	return def
}

// envOrDefaultSeconds reads a duration expressed as a (possibly fractional)
// number of seconds.
func envOrDefaultSeconds(key string, def time.Duration) time.Duration {
	if v := os.Getenv(key); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil && f > 0 {
			return time.Duration(f * float64(time.Second))
		}
	}
	return def
}
