package config

import (
	_ "embed"
	"os"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"
)

//go:embed tiers.yaml
var tiersYAML []byte

type Config struct {
	Log       LogConfig
	Database  DatabaseConfig
	Redis     RedisConfig
	DeepFace  DeepFaceConfig
	FaceCheck FaceCheckConfig
	Vision    VisionConfig
	TinEye    TinEyeConfig
	Analysis  AnalysisConfig
	Scan      ScanConfig
	Web       WebConfig
	Tiers     TiersConfig
}

type LogConfig struct {
	Mode string // "production" or "development" (default)
}

type DatabaseConfig struct {
	URL            string // PostgreSQL connection URL
	MaxOpenConns   int    // Maximum open connections (default 25)
	MaxIdleConns   int    // Maximum idle connections (default 5)
	AssetIndexPath string // Path to persist the asset HNSW index (optional, if empty index is rebuilt on startup)
}

type RedisConfig struct {
	Addr     string        // Redis address for the discovery cache (optional; empty disables caching)
	CacheTTL time.Duration // How long cached discovery results stay valid (default 24h)
}

type DeepFaceConfig struct {
	URL       string        // Face/content embedding service URL (defaults to http://localhost:8000)
	HealthTTL time.Duration // How long a health-check result is reused before re-probing (default 30s)
}

type FaceCheckConfig struct {
	URL      string // Face search API base URL
	APIToken string // API token; empty disables the identity engine
}

type VisionConfig struct {
	Enabled         bool   // Enables the Cloud Vision web-detection engine
	CredentialsFile string // Service account credentials file (optional, falls back to ADC)
}

type TinEyeConfig struct {
	URL    string // Exact-match API base URL
	APIKey string // API key; empty disables exact-match search
}

type AnalysisConfig struct {
	Provider    string // "openai", "gemini", or empty to disable match analysis
	OpenAIToken string
	GeminiKey   string
}

type ScanConfig struct {
	MaxCandidates int           // Default candidate cap per discovery engine (default 50)
	MaxExpansions int           // Default expansion budget per scan run (default 10)
	TxTimeout     time.Duration // Persistence transaction timeout, sized for hundreds of upserts (default 5m)
}

type WebConfig struct {
	APIKey string // Static API key for the HTTP API (optional; empty disables the check)
}

type TiersConfig struct {
	Tiers []TierPolicy `yaml:"tiers"`
}

// TierPolicy describes one confidence tier for visual-similarity matches:
// the minimum similarity to keep a match, which secondary verifications it
// needs, and whether passing it raises an alert automatically.
type TierPolicy struct {
	Kind          string  `yaml:"kind"`
	Floor         float64 `yaml:"floor"`
	IdentityCheck bool    `yaml:"identity_check"`
	ContentCheck  bool    `yaml:"content_check"`
	Alert         string  `yaml:"alert"` // "auto" or "review"
}

// Tier alert policies.
const (
	TierAlertAuto   = "auto"
	TierAlertReview = "review"
)

// envInt reads an environment variable and parses it as a positive integer.
// Returns the default value if the env var is unset, empty, or invalid.
func envInt(key string, defaultVal int) int {
	s := os.Getenv(key)
	if s == "" {
		return defaultVal
	}
	if n, err := strconv.Atoi(s); err == nil && n > 0 {
		return n
	}
	return defaultVal
}

// envBool reads an environment variable as a boolean ("true", "1", ...).
// Returns the default value if the env var is unset or invalid.
func envBool(key string, defaultVal bool) bool {
	s := os.Getenv(key)
	if s == "" {
		return defaultVal
	}
	if b, err := strconv.ParseBool(s); err == nil {
		return b
	}
	return defaultVal
}

// envDuration reads an environment variable as a Go duration ("30s", "5m").
// Returns the default value if the env var is unset or invalid.
func envDuration(key string, defaultVal time.Duration) time.Duration {
	s := os.Getenv(key)
	if s == "" {
		return defaultVal
	}
	if d, err := time.ParseDuration(s); err == nil && d > 0 {
		return d
	}
	return defaultVal
}

func envDefault(key, defaultVal string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return defaultVal
}

func Load() *Config {
	var tiers TiersConfig
	if err := yaml.Unmarshal(tiersYAML, &tiers); err != nil {
		// Embedded file, so this can only happen when the file itself is broken
		panic("failed to unmarshal embedded tiers.yaml: " + err.Error())
	}

	visionCreds := os.Getenv("VISION_CREDENTIALS_FILE")

	return &Config{
		Log: LogConfig{
			Mode: envDefault("LOG_MODE", "development"),
		},
		Database: DatabaseConfig{
			URL:            os.Getenv("DATABASE_URL"),
			MaxOpenConns:   envInt("DATABASE_MAX_OPEN_CONNS", 25),
			MaxIdleConns:   envInt("DATABASE_MAX_IDLE_CONNS", 5),
			AssetIndexPath: os.Getenv("ASSET_INDEX_PATH"),
		},
		Redis: RedisConfig{
			Addr:     os.Getenv("REDIS_ADDR"),
			CacheTTL: envDuration("DISCOVERY_CACHE_TTL", 24*time.Hour),
		},
		DeepFace: DeepFaceConfig{
			URL:       envDefault("DEEPFACE_URL", "http://localhost:8000"),
			HealthTTL: envDuration("DEEPFACE_HEALTH_TTL", 30*time.Second),
		},
		FaceCheck: FaceCheckConfig{
			URL:      envDefault("FACECHECK_URL", "https://facecheck.id"),
			APIToken: os.Getenv("FACECHECK_API_TOKEN"),
		},
		Vision: VisionConfig{
			Enabled:         envBool("VISION_ENABLED", visionCreds != ""),
			CredentialsFile: visionCreds,
		},
		TinEye: TinEyeConfig{
			URL:    envDefault("TINEYE_URL", "https://api.tineye.com"),
			APIKey: os.Getenv("TINEYE_API_KEY"),
		},
		Analysis: AnalysisConfig{
			Provider:    os.Getenv("ANALYSIS_PROVIDER"),
			OpenAIToken: os.Getenv("OPENAI_TOKEN"),
			GeminiKey:   os.Getenv("GEMINI_API_KEY"),
		},
		Scan: ScanConfig{
			MaxCandidates: envInt("SCAN_MAX_CANDIDATES", 50),
			MaxExpansions: envInt("SCAN_MAX_EXPANSIONS", 10),
			TxTimeout:     envDuration("SCAN_TX_TIMEOUT", 5*time.Minute),
		},
		Web: WebConfig{
			APIKey: os.Getenv("WEB_API_KEY"),
		},
		Tiers: tiers,
	}
}

// TierFor returns the tier policy for a match kind, or false when the kind
// has no configured tier.
func (c *Config) TierFor(kind string) (TierPolicy, bool) {
	for _, t := range c.Tiers.Tiers {
		if t.Kind == kind {
			return t, true
		}
	}
	return TierPolicy{}, false
}
