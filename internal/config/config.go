package config

import (
	"flag"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

type Config struct {
	Port string
	Env  string

	OutputRoot string

	LLM          LLMConfig
	Conversation ConversationConfig
	Mirror       MirrorConfig
}

type LLMConfig struct {
	// Provider is "gemini", "groq" or "fake".
	Provider string
	Model    string
	APIKey   string
	RPS      float64
	Burst    int
}

type ConversationConfig struct {
	// PostgresDSN, when set, selects the relational store; otherwise
	// histories live on disk under Dir.
	PostgresDSN string
	Dir         string
	TTL         time.Duration
}

type MirrorConfig struct {
	Enabled   bool
	Endpoint  string
	Region    string
	AccessKey string
	SecretKey string
	Bucket    string
	UseSSL    bool
}

func Load() (*Config, error) {
	_ = godotenv.Load()

	port := flag.String("port", ":8080", "server port")
	flag.Parse()

	if envPort := os.Getenv("PORT"); envPort != "" {
		if strings.HasPrefix(envPort, ":") {
			*port = envPort
		} else {
			*port = ":" + envPort
		}
	}

	env := strings.TrimSpace(os.Getenv("APP_ENV"))
	if env == "" {
		env = "local"
	}

	outputRoot := firstNonEmpty(strings.TrimSpace(os.Getenv("OUTPUT_ROOT")), "generated-apps")

	return &Config{
		Port:         *port,
		Env:          env,
		OutputRoot:   outputRoot,
		LLM:          loadLLMConfig(),
		Conversation: loadConversationConfig(outputRoot),
		Mirror:       loadMirrorConfig(env),
	}, nil
}

func loadLLMConfig() LLMConfig {
	provider := strings.ToLower(firstNonEmpty(strings.TrimSpace(os.Getenv("LLM_PROVIDER")), "gemini"))
	var key string
	switch provider {
	case "groq":
		key = strings.TrimSpace(os.Getenv("GROQ_API_KEY"))
	default:
		key = strings.TrimSpace(os.Getenv("GEMINI_API_KEY"))
	}
	return LLMConfig{
		Provider: provider,
		Model:    strings.TrimSpace(os.Getenv("LLM_MODEL")),
		APIKey:   key,
		RPS:      envFloat("LLM_RPS", 0),
		Burst:    envInt("LLM_BURST", 1),
	}
}

func loadConversationConfig(outputRoot string) ConversationConfig {
	ttl := time.Duration(envInt("CONVERSATION_TTL_SECONDS", 3600)) * time.Second
	return ConversationConfig{
		PostgresDSN: strings.TrimSpace(os.Getenv("CONVERSATION_PG_DSN")),
		Dir:         firstNonEmpty(strings.TrimSpace(os.Getenv("CONVERSATION_DIR")), outputRoot+"-conversations"),
		TTL:         ttl,
	}
}

func loadMirrorConfig(env string) MirrorConfig {
	endpoint := resolveMirrorEndpoint(env)
	return MirrorConfig{
		Enabled:   endpoint != "",
		Endpoint:  endpoint,
		Region:    firstNonEmpty(strings.TrimSpace(os.Getenv("MIRROR_S3_REGION")), "us-east-1"),
		AccessKey: firstNonEmpty(strings.TrimSpace(os.Getenv("MIRROR_S3_ACCESS_KEY")), strings.TrimSpace(os.Getenv("MINIO_ROOT_USER"))),
		SecretKey: firstNonEmpty(strings.TrimSpace(os.Getenv("MIRROR_S3_SECRET_KEY")), strings.TrimSpace(os.Getenv("MINIO_ROOT_PASSWORD"))),
		Bucket:    firstNonEmpty(strings.TrimSpace(os.Getenv("MIRROR_S3_BUCKET")), "appforge-artifacts"),
		UseSSL:    resolveMirrorUseSSL(env),
	}
}

func resolveMirrorEndpoint(env string) string {
	if strings.EqualFold(strings.TrimSpace(env), "local") {
		return strings.TrimSpace(os.Getenv("MIRROR_MINIO_ENDPOINT"))
	}
	return strings.TrimSpace(os.Getenv("MIRROR_S3_ENDPOINT"))
}

func resolveMirrorUseSSL(env string) bool {
	if strings.EqualFold(strings.TrimSpace(env), "local") {
		return false
	}
	raw := strings.TrimSpace(os.Getenv("MIRROR_S3_USE_SSL"))
	if raw == "" {
		return true
	}
	v, err := strconv.ParseBool(raw)
	if err != nil {
		return true
	}
	return v
}

func envInt(name string, def int) int {
	raw := strings.TrimSpace(os.Getenv(name))
	if raw == "" {
		return def
	}
	v, err := strconv.Atoi(raw)
	if err != nil {
		return def
	}
	return v
}

func envFloat(name string, def float64) float64 {
	raw := strings.TrimSpace(os.Getenv(name))
	if raw == "" {
		return def
	}
	v, err := strconv.ParseFloat(raw, 64)
	if err != nil {
		return def
	}
	return v
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if strings.TrimSpace(v) != "" {
			return v
		}
	}
	return ""
}
