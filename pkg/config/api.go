package config

import "time"

// APIConfig holds runtime configuration for the Alfreya API service.
type APIConfig struct {
	Environment        string
	Addr               string
	DatabaseURL        string
	MigrationsDir      string
	JWTSecret          string
	AccessTokenTTL     time.Duration
	RefreshTokenTTL    time.Duration
	GeminiAPIKey       string
	GeminiBaseURL      string
	GeminiModel        string
	GeminiImageModel   string
	GeminiTimeout      time.Duration
	FetchProxyURL      string
	FetchTimeout       time.Duration
	GitHubToken        string
	GitHubBaseURL      string
	NetlifyToken       string
	NetlifyBaseURL     string
	DeployRepoBase     string
	DeployBranch       string
	DeployReadyWait    time.Duration
	SourceDir          string
	RateLimitRedisAddr string
	RateLimitRedisPass string
	RateLimitRedisDB   int
}

// LoadAPIConfig constructs an APIConfig from environment variables.
func LoadAPIConfig() APIConfig {
	return APIConfig{
		Environment:        GetString("APP_ENV", "development"),
		Addr:               GetString("API_ADDR", ":4100"),
		DatabaseURL:        GetString("DATABASE_URL", "postgres://alfreya:alfreya@db:5432/alfreya?sslmode=disable"),
		MigrationsDir:      GetString("DB_MIGRATIONS_DIR", "./db/migrations"),
		JWTSecret:          GetString("JWT_SECRET", "supersecuresecret"),
		AccessTokenTTL:     time.Duration(GetInt("ACCESS_TOKEN_TTL_MIN", 15)) * time.Minute,
		RefreshTokenTTL:    time.Duration(GetInt("REFRESH_TOKEN_TTL_HOURS", 24)) * time.Hour,
		GeminiAPIKey:       GetString("GEMINI_API_KEY", ""),
		GeminiBaseURL:      GetString("GEMINI_BASE_URL", "https://generativelanguage.googleapis.com/v1beta"),
		GeminiModel:        GetString("GEMINI_MODEL", "gemini-2.5-flash"),
		GeminiImageModel:   GetString("GEMINI_IMAGE_MODEL", "gemini-2.0-flash-preview-image-generation"),
		GeminiTimeout:      time.Duration(GetInt("GEMINI_TIMEOUT_SECONDS", 120)) * time.Second,
		FetchProxyURL:      GetString("FETCH_PROXY_URL", "https://api.allorigins.win/raw?url="),
		FetchTimeout:       time.Duration(GetInt("FETCH_TIMEOUT_SECONDS", 20)) * time.Second,
		GitHubToken:        GetString("GITHUB_TOKEN", ""),
		GitHubBaseURL:      GetString("GITHUB_BASE_URL", "https://api.github.com"),
		NetlifyToken:       GetString("NETLIFY_TOKEN", ""),
		NetlifyBaseURL:     GetString("NETLIFY_BASE_URL", "https://api.netlify.com/api/v1"),
		DeployRepoBase:     GetString("DEPLOY_REPO_BASE", "alfreya-site"),
		DeployBranch:       GetString("DEPLOY_BRANCH", "main"),
		DeployReadyWait:    time.Duration(GetInt("DEPLOY_READY_WAIT_SECONDS", 15)) * time.Second,
		SourceDir:          GetString("SOURCE_DIR", "./web"),
		RateLimitRedisAddr: GetString("RATE_LIMIT_REDIS_ADDR", ""),
		RateLimitRedisPass: GetString("RATE_LIMIT_REDIS_PASSWORD", ""),
		RateLimitRedisDB:   GetInt("RATE_LIMIT_REDIS_DB", 0),
	}
}
