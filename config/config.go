package config

import (
	"log"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"github.com/joho/godotenv"
)

// Config stores the engine and service configuration.
type Config struct {
	// Audio engine
	SampleRate      int
	Channels        int
	MaxFrames       int     // largest callback the engine will ever be asked for
	DeviceFrames    int     // preferred device callback size
	LowCutoffHz     float64 // low / mid-low crossover
	HighCutoffHz    float64 // mid-high / high crossover
	TalkoverDuck    float64 // music bed multiplier while talkover is held
	PeakHoldTau     time.Duration
	AutoFadeDefault time.Duration
	LevelInterval   time.Duration // minimum spacing between level snapshots
	StateInterval   time.Duration // minimum spacing between fade-only state patches
	CommandQueue    int
	RecordChunks    int    // pre-allocated recording chunks
	AudioOutput     string // "device" or "null"

	// Decode / analysis
	FFmpegPath        string
	DecodeWorkers     int
	WaveformPointsSec int
	WaveformChunkSize int
	MusicDir          string

	// Recording
	RecordingDir  string
	ArchiveOnStop bool

	// Service
	HTTPAddr string

	// MySQL
	DBHost     string
	DBPort     string
	DBUser     string
	DBPassword string
	DBName     string

	// Redis
	RedisHost     string
	RedisPort     string
	RedisPassword string
	RedisDB       int
	AnalysisTTL   time.Duration

	// MinIO
	MinioEndpoint  string
	MinioAccessKey string
	MinioSecretKey string
	MinioBucket    string
	MinioRegion    string
	MinioUseSSL    bool

	// Logging
	LogLevel      string
	LogFile       string
	LogMaxSizeMB  int
	LogMaxBackups int
	LogMaxAgeDays int
}

// getEnv gets an environment variable or returns a default value.
func getEnv(key, fallback string) string {
	if value, exists := os.LookupEnv(key); exists {
		return value
	}
	return fallback
}

// getEnvInt gets an environment variable as int or returns a default value.
func getEnvInt(key string, fallback int) int {
	if value, exists := os.LookupEnv(key); exists {
		if intVal, err := strconv.Atoi(value); err == nil {
			return intVal
		}
	}
	return fallback
}

func getEnvFloat(key string, fallback float64) float64 {
	if value, exists := os.LookupEnv(key); exists {
		if f, err := strconv.ParseFloat(value, 64); err == nil {
			return f
		}
	}
	return fallback
}

func getEnvBool(key string, fallback bool) bool {
	if value, exists := os.LookupEnv(key); exists {
		if b, err := strconv.ParseBool(value); err == nil {
			return b
		}
	}
	return fallback
}

// getEnvDuration accepts Go duration strings ("1.5s", "30ms").
func getEnvDuration(key string, fallback time.Duration) time.Duration {
	if value, exists := os.LookupEnv(key); exists {
		if d, err := time.ParseDuration(value); err == nil {
			return d
		}
	}
	return fallback
}

// Load loads configuration from environment variables (via .env file) or defaults.
func Load() *Config {
	// godotenv.Load() does not override variables that are already set.
	if err := godotenv.Load(); err != nil {
		log.Println("No .env file found, relying on environment variables and defaults.")
	}

	dataBase := getEnv("DATA_DIR", "data")

	return &Config{
		SampleRate:      getEnvInt("SAMPLE_RATE", 44100),
		Channels:        2,
		MaxFrames:       getEnvInt("MAX_FRAMES", 4096),
		DeviceFrames:    getEnvInt("DEVICE_FRAMES", 512),
		LowCutoffHz:     getEnvFloat("EQ_LOW_CUTOFF", 250),
		HighCutoffHz:    getEnvFloat("EQ_HIGH_CUTOFF", 5000),
		TalkoverDuck:    getEnvFloat("TALKOVER_DUCK", 0.3),
		PeakHoldTau:     getEnvDuration("PEAK_HOLD_TAU", 1500*time.Millisecond),
		AutoFadeDefault: getEnvDuration("AUTO_CROSSFADE", 8*time.Second),
		LevelInterval:   getEnvDuration("LEVEL_INTERVAL", 33*time.Millisecond),
		StateInterval:   getEnvDuration("STATE_INTERVAL", 100*time.Millisecond),
		CommandQueue:    getEnvInt("COMMAND_QUEUE", 256),
		RecordChunks:    getEnvInt("RECORD_CHUNKS", 64),
		AudioOutput:     getEnv("AUDIO_OUTPUT", "device"),

		FFmpegPath:        getEnv("FFMPEG_PATH", "ffmpeg"),
		DecodeWorkers:     getEnvInt("DECODE_WORKERS", 2),
		WaveformPointsSec: getEnvInt("WAVEFORM_POINTS_PER_SECOND", 50),
		WaveformChunkSize: getEnvInt("WAVEFORM_CHUNK_SIZE", 2048),
		MusicDir:          getEnv("MUSIC_DIR", filepath.Join(dataBase, "music")),

		RecordingDir:  getEnv("RECORDING_DIR", filepath.Join(dataBase, "recordings")),
		ArchiveOnStop: getEnvBool("ARCHIVE_ON_STOP", false),

		HTTPAddr: getEnv("HTTP_ADDR", ":8080"),

		DBHost:     getEnv("DB_HOST", ""),
		DBPort:     getEnv("DB_PORT", "3306"),
		DBUser:     getEnv("DB_USER", "root"),
		DBPassword: os.Getenv("DB_PASSWORD"),
		DBName:     getEnv("DB_NAME", "djmix"),

		RedisHost:     getEnv("REDIS_HOST", ""),
		RedisPort:     getEnv("REDIS_PORT", "6379"),
		RedisPassword: getEnv("REDIS_PASSWORD", ""),
		RedisDB:       getEnvInt("REDIS_DB", 0),
		AnalysisTTL:   getEnvDuration("ANALYSIS_TTL", 30*24*time.Hour),

		MinioEndpoint:  getEnv("MINIO_ENDPOINT", ""),
		MinioAccessKey: getEnv("MINIO_ACCESS_KEY", ""),
		MinioSecretKey: getEnv("MINIO_SECRET_KEY", ""),
		MinioBucket:    getEnv("MINIO_BUCKET", "djmix"),
		MinioRegion:    getEnv("MINIO_REGION", "us-east-1"),
		MinioUseSSL:    getEnvBool("MINIO_USE_SSL", false),

		LogLevel:      getEnv("LOG_LEVEL", "info"),
		LogFile:       getEnv("LOG_FILE", ""),
		LogMaxSizeMB:  getEnvInt("LOG_MAX_SIZE_MB", 100),
		LogMaxBackups: getEnvInt("LOG_MAX_BACKUPS", 5),
		LogMaxAgeDays: getEnvInt("LOG_MAX_AGE_DAYS", 30),
	}
}

// RedisEnabled reports whether an analysis cache is configured.
func (c *Config) RedisEnabled() bool { return c.RedisHost != "" }

// MinioEnabled reports whether recordings can be archived.
func (c *Config) MinioEnabled() bool { return c.MinioEndpoint != "" }

// DBEnabled reports whether recording history is persisted.
func (c *Config) DBEnabled() bool { return c.DBHost != "" }
