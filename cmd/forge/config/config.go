package config

import (
	"os"
	"strconv"

	"github.com/joho/godotenv"
)

type Config struct {
	// BuildID names this build's artifacts; empty means a dated default.
	BuildID string

	WorkDir   string
	OutputDir string
	CacheDir  string
	RecipeDir string

	// Remote switches the pipeline into a throwaway VM.
	Remote   bool
	BootISO  string
	InputDir string
	MemoryMB int
	CPUs     int
}

// Load loads configuration from environment variables.
// Automatically loads .env file if present.
func Load() *Config {
	// Try to load .env file (fail silently if not present)
	_ = godotenv.Load()

	return &Config{
		BuildID:   getEnv("FORGE_BUILD_ID", ""),
		WorkDir:   getEnv("FORGE_WORK_DIR", "/var/tmp/forge"),
		OutputDir: getEnv("FORGE_OUTPUT_DIR", "./output"),
		CacheDir:  getEnv("FORGE_CACHE_DIR", "/var/cache/forge/pkg"),
		RecipeDir: getEnv("FORGE_RECIPE_DIR", "./recipes"),
		Remote:    getEnvBool("FORGE_REMOTE", false),
		BootISO:   getEnv("FORGE_BOOT_ISO", ""),
		InputDir:  getEnv("FORGE_INPUT_DIR", ""),
		MemoryMB:  getEnvInt("FORGE_VM_MEMORY_MB", 4096),
		CPUs:      getEnvInt("FORGE_VM_CPUS", 2),
	}
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		b, err := strconv.ParseBool(value)
		if err == nil {
			return b
		}
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		n, err := strconv.Atoi(value)
		if err == nil {
			return n
		}
	}
	return defaultValue
}
