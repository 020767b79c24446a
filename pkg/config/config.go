// Package config loads service configuration from YAML with .env and
// environment overrides.
package config

import (
	"context"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

type contextKey string

const configKey contextKey = "config"

// Config holds all application configuration
type Config struct {
	Server   ServerConfig   `yaml:"server"`
	Log      LogConfig      `yaml:"log"`
	FFmpeg   FFmpegConfig   `yaml:"ffmpeg"`
	OCR      OCRConfig      `yaml:"ocr"`
	Speech   SpeechConfig   `yaml:"speech"`
	Cache    CacheConfig    `yaml:"cache"`
	Storage  StorageConfig  `yaml:"storage"`
	Executor ExecutorConfig `yaml:"executor"`
	Auth     AuthConfig     `yaml:"auth"`
	Queue    QueueConfig    `yaml:"queue"`
	Audio    AudioConfig    `yaml:"audio"`
	Upload   UploadConfig   `yaml:"upload"`
}

type ServerConfig struct {
	Host string `yaml:"host"`
	Port int    `yaml:"port"`
}

type LogConfig struct {
	Level  string `yaml:"level"`
	Pretty bool   `yaml:"pretty"`
}

type FFmpegConfig struct {
	Binary  string `yaml:"binary"`
	FFprobe string `yaml:"ffprobe"`
}

type OCRConfig struct {
	Binary   string `yaml:"binary"`
	Language string `yaml:"language"`
}

type SpeechConfig struct {
	WhisperBinary string `yaml:"whisper_binary"`
	WhisperModel  string `yaml:"whisper_model"`
	EspeakBinary  string `yaml:"espeak_binary"`
	Language      string `yaml:"language"`
}

// CacheConfig selects the result cache substrate: memory, file or storage
type CacheConfig struct {
	Substrate string `yaml:"substrate"`
	Path      string `yaml:"path"`
	URI       string `yaml:"uri"`
}

type StorageConfig struct {
	ArtifactRoot string   `yaml:"artifact_root"`
	ExportRoot   string   `yaml:"export_root"`
	UploadRoot   string   `yaml:"upload_root"`
	S3           S3Config `yaml:"s3"`
}

// S3Config enables s3:// URIs. Credentials come from the AWS default chain.
type S3Config struct {
	Enabled   bool   `yaml:"enabled"`
	Region    string `yaml:"region"`
	Endpoint  string `yaml:"endpoint"`
	PathStyle bool   `yaml:"path_style"`
}

type ExecutorConfig struct {
	CacheHitLatency time.Duration `yaml:"cache_hit_latency"`
}

type AuthConfig struct {
	JWTSecret string         `yaml:"jwt_secret"`
	TokenTTL  time.Duration  `yaml:"token_ttl"`
	Required  bool           `yaml:"required"`
	APIKeys   []APIKeyConfig `yaml:"api_keys"`
}

type APIKeyConfig struct {
	Key    string `yaml:"key"`
	UserID string `yaml:"user_id"`
	Name   string `yaml:"name"`
}

type QueueConfig struct {
	URL      string `yaml:"url"`
	Commands string `yaml:"commands"`
	Results  string `yaml:"results"`
}

type AudioConfig struct {
	Tracks []TrackConfig `yaml:"tracks"`
}

type TrackConfig struct {
	ID       string `yaml:"id"`
	Name     string `yaml:"name"`
	URI      string `yaml:"uri"`
	Seconds  int    `yaml:"seconds"`
	Category string `yaml:"category"`
}

type UploadConfig struct {
	MaxSizeMB     int      `yaml:"max_size_mb"`
	AcceptedTypes []string `yaml:"accepted_types"`
}

// Load reads configuration from path, or from the first config file found
// when path is empty, then applies environment overrides. A .env file in the
// working directory is loaded first if present.
func Load(path string) (*Config, error) {
	_ = godotenv.Load() // best-effort

	cfg := Default()

	if path == "" {
		path = findConfigFile()
	}

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil && !os.IsNotExist(err) {
			return nil, err
		}
		if err == nil {
			if err := yaml.Unmarshal(data, cfg); err != nil {
				return nil, err
			}
		}
	}

	cfg.applyEnv()
	return cfg, nil
}

// Save writes configuration to file
func (c *Config) Save(path string) error {
	data, err := yaml.Marshal(c)
	if err != nil {
		return err
	}

	return os.WriteFile(path, data, 0644)
}

// Default returns the built-in configuration
func Default() *Config {
	return &Config{
		Server: ServerConfig{Host: "0.0.0.0", Port: 8080},
		Log:    LogConfig{Level: "info"},
		FFmpeg: FFmpegConfig{Binary: "ffmpeg", FFprobe: "ffprobe"},
		OCR:    OCRConfig{Binary: "tesseract", Language: "por"},
		Speech: SpeechConfig{
			WhisperBinary: "whisper-cli",
			WhisperModel:  "./models/ggml-base.bin",
			EspeakBinary:  "espeak-ng",
			Language:      "pt-BR",
		},
		Cache: CacheConfig{Substrate: "file", Path: "./data/cache"},
		Storage: StorageConfig{
			ArtifactRoot: "file://" + absPath("./data/artifacts"),
			ExportRoot:   "file://" + absPath("./data/exports"),
			UploadRoot:   "file://" + absPath("./data/uploads"),
		},
		Executor: ExecutorConfig{CacheHitLatency: 500 * time.Millisecond},
		Auth:     AuthConfig{TokenTTL: 24 * time.Hour},
		Queue:    QueueConfig{Commands: "vidioai.commands", Results: "vidioai.results"},
		Audio: AudioConfig{Tracks: []TrackConfig{
			{ID: "lofi1", Name: "Lo-Fi Beats", URI: "file://" + absPath("./assets/audio/lofi.mp3"), Seconds: 120, Category: "lofi"},
			{ID: "trap1", Name: "Trap Beat", URI: "file://" + absPath("./assets/audio/trap.mp3"), Seconds: 90, Category: "trap"},
			{ID: "funny1", Name: "Funny Sound", URI: "file://" + absPath("./assets/audio/funny.mp3"), Seconds: 60, Category: "funny"},
		}},
		Upload: UploadConfig{MaxSizeMB: 500, AcceptedTypes: []string{"video/"}},
	}
}

func (c *Config) applyEnv() {
	c.Server.Port = GetEnvInt("VIDIOAI_PORT", c.Server.Port)
	c.Log.Level = GetEnv("VIDIOAI_LOG_LEVEL", c.Log.Level)
	c.FFmpeg.Binary = GetEnv("VIDIOAI_FFMPEG", c.FFmpeg.Binary)
	c.Storage.ArtifactRoot = GetEnv("VIDIOAI_ARTIFACT_ROOT", c.Storage.ArtifactRoot)
	c.Storage.ExportRoot = GetEnv("VIDIOAI_EXPORT_ROOT", c.Storage.ExportRoot)
	c.Auth.JWTSecret = GetEnv("VIDIOAI_JWT_SECRET", c.Auth.JWTSecret)
	c.Queue.URL = GetEnv("VIDIOAI_AMQP_URL", c.Queue.URL)
	c.Cache.Path = GetEnv("VIDIOAI_CACHE_PATH", c.Cache.Path)
	c.Storage.S3.Region = GetEnv("AWS_REGION", c.Storage.S3.Region)
	c.Storage.S3.Endpoint = GetEnv("VIDIOAI_S3_ENDPOINT", c.Storage.S3.Endpoint)
}

// GetEnv returns the value of the environment variable named by key, or fallback
// if the variable is unset or empty.
func GetEnv(key, fallback string) string {
	if s := os.Getenv(key); s != "" {
		return s
	}
	return fallback
}

// GetEnvInt returns the integer value of the environment variable named by key,
// or fallback if the variable is unset, empty, or not a valid integer.
func GetEnvInt(key string, fallback int) int {
	if s := os.Getenv(key); s != "" {
		if n, err := strconv.Atoi(s); err == nil {
			return n
		}
	}
	return fallback
}

func findConfigFile() string {
	candidates := []string{
		"./vidioai.yaml",
		"./vidioai.yml",
		filepath.Join(os.Getenv("HOME"), ".vidioai", "config.yaml"),
	}

	for _, path := range candidates {
		if _, err := os.Stat(path); err == nil {
			return path
		}
	}

	return ""
}

func absPath(p string) string {
	abs, err := filepath.Abs(p)
	if err != nil {
		return p
	}
	return abs
}

// WithConfig stores config in context
func WithConfig(ctx context.Context, cfg *Config) context.Context {
	return context.WithValue(ctx, configKey, cfg)
}

// FromContext retrieves config from context
func FromContext(ctx context.Context) *Config {
	if cfg, ok := ctx.Value(configKey).(*Config); ok {
		return cfg
	}
	return Default()
}
