package infra

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

const (
	modeSingle = "single"
	modeSplit  = "split"
)

// Config represents application configuration loaded from environment variables.
type Config struct {
	AppEnv          string
	PipelineMode    string
	GeminiAPIKey    string
	GeminiModel     string
	GeminiBaseURL   string
	GeminiUploadURL string
	GeminiTimeout   time.Duration
	DishIDsPath     string
	ImagesBasePath  string
	ResultsDir      string
	RequestPacing   time.Duration
	PromptLocale    string
	DatabaseURL     string
}

// LoadDotEnv loads the given env files in order. Variables already present in
// the environment win, and missing files are ignored.
func LoadDotEnv(files ...string) {
	if len(files) == 0 {
		files = []string{".env.local", ".env"}
	}
	for _, f := range files {
		_ = godotenv.Load(f)
	}
}

// LoadConfig loads configuration from environment variables and applies defaults where needed.
func LoadConfig() (*Config, error) {
	mode := strings.ToLower(strings.TrimSpace(getEnv("PIPELINE_MODE", modeSplit)))
	if mode != modeSingle && mode != modeSplit {
		return nil, fmt.Errorf("PIPELINE_MODE must be %q or %q, got %q", modeSingle, modeSplit, mode)
	}

	pacing, err := getEnvDuration("REQUEST_PACING", defaultPacing(mode))
	if err != nil {
		return nil, err
	}
	if pacing < 0 {
		return nil, fmt.Errorf("REQUEST_PACING must not be negative")
	}

	cfg := &Config{
		AppEnv:          getEnv("APP_ENV", "development"),
		PipelineMode:    mode,
		GeminiAPIKey:    strings.TrimSpace(os.Getenv("GEMINI_API_KEY")),
		GeminiModel:     getEnv("GEMINI_MODEL", "gemini-1.5-flash"),
		GeminiBaseURL:   getEnv("GEMINI_BASE_URL", "https://generativelanguage.googleapis.com/v1beta"),
		GeminiUploadURL: getEnv("GEMINI_UPLOAD_URL", "https://generativelanguage.googleapis.com/upload/v1beta/files"),
		GeminiTimeout:   time.Second * time.Duration(getEnvInt("GEMINI_TIMEOUT_SECONDS", 120)),
		DishIDsPath:     getEnv("DISH_IDS_PATH", "data/bronze/dish_ids/splits/rgb_test_ids.txt"),
		ImagesBasePath:  getEnv("IMAGES_BASE_PATH", "data/bronze/imagery/realsense_overhead"),
		ResultsDir:      getEnv("RESULTS_DIR", defaultResultsDir(mode)),
		RequestPacing:   pacing,
		PromptLocale:    getEnv("PROMPT_LOCALE", "pt-BR"),
		DatabaseURL:     strings.TrimSpace(os.Getenv("DATABASE_URL")),
	}

	if cfg.GeminiTimeout <= 0 {
		return nil, fmt.Errorf("GEMINI_TIMEOUT_SECONDS must be positive")
	}

	return cfg, nil
}

func defaultResultsDir(mode string) string {
	if mode == modeSingle {
		return "results/gemini"
	}
	return "results/gemini_split"
}

func defaultPacing(mode string) time.Duration {
	if mode == modeSplit {
		return 2 * time.Second
	}
	return 0
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

// getEnvDuration accepts Go durations ("1500ms", "2s") or whole seconds.
func getEnvDuration(key string, fallback time.Duration) (time.Duration, error) {
	v, ok := os.LookupEnv(key)
	v = strings.TrimSpace(v)
	if !ok || v == "" {
		return fallback, nil
	}
	if secs, err := strconv.Atoi(v); err == nil {
		return time.Duration(secs) * time.Second, nil
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return 0, fmt.Errorf("%s: invalid duration %q", key, v)
	}
	return d, nil
}
