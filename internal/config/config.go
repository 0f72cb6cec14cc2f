package config

import (
	"fmt"
	"os"
	"strconv"

	"github.com/joho/godotenv"
)

// Load reads the .env file specified by NEXUS_ENV (or .env by default),
// then loads the corresponding .secret file if it exists.
// All config is flat env vars read via os.Getenv after loading.
func Load() error {
	envFile := os.Getenv("NEXUS_ENV")
	if envFile == "" {
		envFile = ".env"
	}

	// Load main env file (ignore error if file doesn't exist)
	_ = godotenv.Load(envFile)

	// Load secret sidecar if it exists
	_ = godotenv.Load(envFile + ".secret")

	return nil
}

func ServerPort() int {
	port, err := strconv.Atoi(os.Getenv("SERVER_PORT"))
	if err != nil {
		return 8080
	}
	return port
}

func ServerAddr() string {
	return fmt.Sprintf(":%d", ServerPort())
}

// PrimaryDSN is the connection string for the pgvector-backed primary store.
func PrimaryDSN() string {
	return os.Getenv("PRIMARY_DSN")
}

func OpenAIAPIKey() string {
	return os.Getenv("OPENAI_API_KEY")
}

// EmbeddingProvider returns the configured embedding provider.
// Valid values: remote, mock. Defaults to "remote".
func EmbeddingProvider() string {
	p := os.Getenv("EMBEDDING_PROVIDER")
	if p == "" {
		return "remote"
	}
	return p
}

// EmbeddingDimension returns the embedding vector dimension.
// Defaults to 1536.
func EmbeddingDimension() int {
	d, err := strconv.Atoi(os.Getenv("EMBEDDING_DIMENSION"))
	if err != nil || d <= 0 {
		return 1536
	}
	return d
}

// DeduplicationMode returns the dedup mode (log_only or active).
// Defaults to "log_only".
func DeduplicationMode() string {
	m := os.Getenv("DEDUPLICATION_MODE")
	if m == "" {
		return "log_only"
	}
	return m
}

// DedupSimilarityThreshold returns the semantic-duplicate threshold.
// Defaults to 0.95.
func DedupSimilarityThreshold() float32 {
	t, err := strconv.ParseFloat(os.Getenv("DEDUP_SIMILARITY_THRESHOLD"), 32)
	if err != nil || t <= 0 || t > 1 {
		return 0.95
	}
	return float32(t)
}

// GraphEnabled reports whether the knowledge-graph provider runs.
// Defaults to true.
func GraphEnabled() bool {
	v := os.Getenv("GRAPH_ENABLED")
	if v == "" {
		return true
	}
	b, err := strconv.ParseBool(v)
	return err == nil && b
}

// GraphSyncMode returns "inline" or "background". Defaults to "inline".
func GraphSyncMode() string {
	m := os.Getenv("GRAPH_SYNC_MODE")
	if m == "" {
		return "inline"
	}
	return m
}

// GraphSyncQueueSize bounds the background sync queue. Defaults to 1024.
func GraphSyncQueueSize() int {
	n, err := strconv.Atoi(os.Getenv("GRAPH_SYNC_QUEUE_SIZE"))
	if err != nil || n <= 0 {
		return 1024
	}
	return n
}

// ExtractorURL is the base URL of the NER sidecar. Empty means the regex
// fallback extractor is used without probing.
func ExtractorURL() string {
	return os.Getenv("EXTRACTOR_URL")
}

// MinPoolSize returns the minimum primary connection pool size. Defaults to 5.
func MinPoolSize() int {
	n, err := strconv.Atoi(os.Getenv("MIN_POOL_SIZE"))
	if err != nil || n <= 0 {
		return 5
	}
	return n
}

// MaxPoolSize returns the maximum primary connection pool size. Defaults to 20.
func MaxPoolSize() int {
	n, err := strconv.Atoi(os.Getenv("MAX_POOL_SIZE"))
	if err != nil || n <= 0 {
		return 20
	}
	return n
}

// SecondaryEnabled reports whether the embedded secondary provider runs.
// Defaults to false.
func SecondaryEnabled() bool {
	b, err := strconv.ParseBool(os.Getenv("SECONDARY_ENABLED"))
	return err == nil && b
}

// SecondaryPath is the data directory for the embedded secondary store.
// Defaults to "data/secondary".
func SecondaryPath() string {
	p := os.Getenv("SECONDARY_PATH")
	if p == "" {
		return "data/secondary"
	}
	return p
}

// ImportBatchSize returns the bulk-import batch size. Defaults to 100.
func ImportBatchSize() int {
	n, err := strconv.Atoi(os.Getenv("IMPORT_BATCH_SIZE"))
	if err != nil || n <= 0 {
		return 100
	}
	return n
}

// ImportParallelism bounds concurrent stores within an import batch.
// Defaults to 8.
func ImportParallelism() int {
	n, err := strconv.Atoi(os.Getenv("IMPORT_PARALLELISM"))
	if err != nil || n <= 0 {
		return 8
	}
	return n
}

// RateLimitRPS returns requests per second limit. Defaults to 100.
func RateLimitRPS() float64 {
	rps, err := strconv.ParseFloat(os.Getenv("RATE_LIMIT_RPS"), 64)
	if err != nil || rps <= 0 {
		return 100
	}
	return rps
}

// RateLimitBurst returns the burst size for rate limiting. Defaults to 20.
func RateLimitBurst() int {
	burst, err := strconv.Atoi(os.Getenv("RATE_LIMIT_BURST"))
	if err != nil || burst <= 0 {
		return 20
	}
	return burst
}

// LogLevel returns the log level (debug, info, warn, error).
// Defaults to "info".
func LogLevel() string {
	level := os.Getenv("LOG_LEVEL")
	if level == "" {
		return "info"
	}
	return level
}
