package infra

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"
)

const (
	StorageDriverFS = "fs"
	StorageDriverS3 = "s3"

	DispatchModeLocal = "local"
	DispatchModeHTTP  = "http"
)

// Config represents application configuration loaded from environment variables.
type Config struct {
	AppEnv     string
	Port       string
	WorkerPort string

	StorageDriver        string
	StoragePath          string
	StorageBaseURL       string
	StorageSigningSecret string
	S3Bucket             string
	AWSRegion            string
	S3Endpoint           string

	GeminiAPIKey  string
	GeminiModel   string
	GeminiBaseURL string

	FFmpegPath         string
	WorkspaceRoot      string
	FrameDuration      float64
	FadeIn             float64
	FadeOut            float64
	AudioFadeOut       float64
	VideoWidth         int
	VideoHeight        int
	VideoFPS           int
	BackgroundAudioKey string
	PipelineTimeout    time.Duration

	SourceKeyPrefix         string
	SourceAllowPrivateHosts bool

	DispatchMode string
	WorkerURL    string
	URLTTL       time.Duration
	CORSOrigins  []string

	SubmitRateLimit int
	DefaultLocale   string

	HTTPReadTimeout  time.Duration
	HTTPWriteTimeout time.Duration
	HTTPIdleTimeout  time.Duration
}

// LoadConfig loads configuration from environment variables and applies defaults where needed.
func LoadConfig() (*Config, error) {
	port := getEnv("PORT", "8080")
	cfg := &Config{
		AppEnv:               getEnv("APP_ENV", "development"),
		Port:                 port,
		WorkerPort:           getEnv("WORKER_PORT", "8081"),
		StorageDriver:        strings.ToLower(getEnv("STORAGE_DRIVER", StorageDriverFS)),
		StoragePath:          getEnv("STORAGE_PATH", "./storage"),
		StorageBaseURL:       getEnv("STORAGE_BASE_URL", "http://localhost:"+port),
		StorageSigningSecret: os.Getenv("STORAGE_SIGNING_SECRET"),
		S3Bucket:             os.Getenv("S3_BUCKET_NAME"),
		AWSRegion:            getEnv("AWS_REGION", "us-west-2"),
		S3Endpoint:           os.Getenv("S3_ENDPOINT"),
		GeminiAPIKey:         os.Getenv("GEMINI_API_KEY"),
		GeminiModel:          getEnv("GEMINI_MODEL", "gemini-2.5-flash-image"),
		GeminiBaseURL:        getEnv("GEMINI_BASE_URL", "https://generativelanguage.googleapis.com/v1beta"),
		FFmpegPath:           getEnv("FFMPEG_PATH", "ffmpeg"),
		WorkspaceRoot:        getEnv("WORKSPACE_ROOT", filepath.Join(os.TempDir(), "memory-video")),
		FrameDuration:        getEnvFloat("FRAME_DURATION_SECONDS", 3),
		FadeIn:               getEnvFloat("FADE_IN_SECONDS", 0.5),
		FadeOut:              getEnvFloat("FADE_OUT_SECONDS", 0.5),
		AudioFadeOut:         getEnvFloat("AUDIO_FADE_OUT_SECONDS", 2),
		VideoWidth:           getEnvInt("VIDEO_WIDTH", 1920),
		VideoHeight:          getEnvInt("VIDEO_HEIGHT", 1080),
		VideoFPS:             getEnvInt("VIDEO_FPS", 30),
		BackgroundAudioKey:   getEnv("BACKGROUND_AUDIO_KEY", "music/bgm.mp3"),
		PipelineTimeout:      time.Second * time.Duration(getEnvInt("PIPELINE_TIMEOUT_SECONDS", 900)),
		SourceKeyPrefix:      os.Getenv("SOURCE_KEY_PREFIX"),
		DispatchMode:         strings.ToLower(getEnv("DISPATCH_MODE", DispatchModeLocal)),
		WorkerURL:            os.Getenv("WORKER_URL"),
		URLTTL:               time.Second * time.Duration(getEnvInt("URL_TTL_SECONDS", 7200)),
		CORSOrigins:          splitList(os.Getenv("CORS_ALLOWED_ORIGINS")),
		SubmitRateLimit:      getEnvInt("SUBMIT_RATE_LIMIT_PER_MINUTE", 30),
		DefaultLocale:        os.Getenv("DEFAULT_LOCALE"),
		HTTPReadTimeout:      time.Second * time.Duration(getEnvInt("HTTP_READ_TIMEOUT_SECONDS", 15)),
		HTTPWriteTimeout:     time.Second * time.Duration(getEnvInt("HTTP_WRITE_TIMEOUT_SECONDS", 30)),
		HTTPIdleTimeout:      time.Second * time.Duration(getEnvInt("HTTP_IDLE_TIMEOUT_SECONDS", 60)),
	}

	switch cfg.StorageDriver {
	case StorageDriverFS:
		if cfg.StorageSigningSecret == "" {
			cfg.StorageSigningSecret = "dev-signing-secret"
			if cfg.AppEnv != "development" {
				return nil, fmt.Errorf("STORAGE_SIGNING_SECRET is required outside development")
			}
		}
	case StorageDriverS3:
		if cfg.S3Bucket == "" {
			return nil, fmt.Errorf("S3_BUCKET_NAME is required when STORAGE_DRIVER=s3")
		}
	default:
		return nil, fmt.Errorf("unsupported STORAGE_DRIVER %q", cfg.StorageDriver)
	}

	switch cfg.DispatchMode {
	case DispatchModeLocal:
	case DispatchModeHTTP:
		if cfg.WorkerURL == "" {
			return nil, fmt.Errorf("WORKER_URL is required when DISPATCH_MODE=http")
		}
	default:
		return nil, fmt.Errorf("unsupported DISPATCH_MODE %q", cfg.DispatchMode)
	}

	cfg.SourceAllowPrivateHosts = getEnvBool("SOURCE_ALLOW_PRIVATE_HOSTS", false)
	if cfg.SourceAllowPrivateHosts && cfg.AppEnv != "development" {
		return nil, fmt.Errorf("SOURCE_ALLOW_PRIVATE_HOSTS is only allowed in development")
	}

	// Synthetic captions only exist for local development.
	if strings.TrimSpace(cfg.GeminiAPIKey) == "" && cfg.AppEnv != "development" {
		return nil, fmt.Errorf("GEMINI_API_KEY is required outside development")
	}

	if cfg.FrameDuration <= 0 {
		return nil, fmt.Errorf("FRAME_DURATION_SECONDS must be positive")
	}
	if cfg.FadeIn < 0 || cfg.FadeOut < 0 || cfg.AudioFadeOut < 0 {
		return nil, fmt.Errorf("fade durations must not be negative")
	}
	if cfg.PipelineTimeout <= 0 {
		return nil, fmt.Errorf("PIPELINE_TIMEOUT_SECONDS must be positive")
	}

	return cfg, nil
}

func getEnv(key, fallback string) string {
	if v, ok := os.LookupEnv(key); ok && v != "" {
		return v
	}
	return fallback
}

func getEnvInt(key string, fallback int) int {
	if v, ok := os.LookupEnv(key); ok && v != "" {
		if i, err := strconv.Atoi(v); err == nil {
			return i
		}
	}
	return fallback
}

func getEnvBool(key string, fallback bool) bool {
	if v, ok := os.LookupEnv(key); ok && v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			return b
		}
	}
	return fallback
}

func getEnvFloat(key string, fallback float64) float64 {
	if v, ok := os.LookupEnv(key); ok && v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			return f
		}
	}
	return fallback
}

func splitList(raw string) []string {
	var out []string
	for _, part := range strings.Split(raw, ",") {
		if p := strings.TrimSpace(part); p != "" {
			out = append(out, p)
		}
	}
	return out
}
