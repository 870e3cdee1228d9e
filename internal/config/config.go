package config

import (
	"errors"
	"fmt"
	"net"
	"net/url"
	"os"
	"strconv"
	"strings"
	"time"
)

// Config holds all configuration required by the API process and voicectl.
// All values must come from env (or env-file loaded by the process runner).
// No business logic should depend on raw environment variables.
type Config struct {
	App       AppConfig
	DB        DBConfig
	Redis     RedisConfig
	Auth      AuthConfig
	Voice     VoiceConfig
	Inference InferenceConfig
	RateLimit RateLimitConfig
}

type AppConfig struct {
	Env  string
	Port int
}

type DBConfig struct {
	Host     string
	Port     int
	User     string
	Password string
	Name     string

	// Accepts: disable, require, verify-ca, verify-full
	SSLMode string
}

// RedisConfig is only needed when inference slots are capped cluster-wide.
type RedisConfig struct {
	Host     string
	Port     int
	Password string
}

type AuthConfig struct {
	JWTSecret      string
	JWTIssuer      string
	JWTAudience    string
	AccessTokenTTL time.Duration
	BcryptCost     int
}

// VoiceConfig carries the biometric decision parameters. A negative
// threshold means unset and is replaced by its default in Validate.
type VoiceConfig struct {
	EmbeddingDim      int
	ModelVersion      string
	EnrollSampleCount int
	IdentifyThreshold float64
	PhraseThreshold   float64
}

type InferenceConfig struct {
	DependencyTimeout time.Duration
	ExtractorURL      string

	OpenAIAPIKey       string
	OpenAIBaseURL      string
	TranscribeModel    string
	TranscribeLanguage string

	// FFmpegPath enables decoding of compressed containers. Empty means WAV only.
	FFmpegPath string

	// MaxConcurrency caps in-flight inference calls across all API processes.
	// Zero disables the cap.
	MaxConcurrency int
}

type RateLimitConfig struct {
	// VoiceLoginRate is the sustained voice-login attempts per second per client IP.
	VoiceLoginRate  float64
	VoiceLoginBurst int
}

func Load() (Config, error) {
	c := Config{}
	var parseErrs []error

	c.App.Env = strings.TrimSpace(os.Getenv("APP_ENV"))
	c.App.Port = collect[int](&parseErrs)(mustInt("APP_PORT"))

	c.DB.Host = strings.TrimSpace(os.Getenv("DB_HOST"))
	c.DB.Port = collect[int](&parseErrs)(mustInt("DB_PORT"))
	c.DB.User = strings.TrimSpace(os.Getenv("DB_USER"))
	c.DB.Password = os.Getenv("DB_PASSWORD")
	c.DB.Name = strings.TrimSpace(os.Getenv("DB_NAME"))
	c.DB.SSLMode = strings.TrimSpace(os.Getenv("DB_SSLMODE"))

	c.Redis.Host = strings.TrimSpace(os.Getenv("REDIS_HOST"))
	c.Redis.Port = collect[int](&parseErrs)(optionalInt("REDIS_PORT", 6379))
	c.Redis.Password = os.Getenv("REDIS_PASSWORD")

	c.Auth.JWTSecret = os.Getenv("JWT_SECRET")
	c.Auth.JWTIssuer = strings.TrimSpace(os.Getenv("JWT_ISSUER"))
	c.Auth.JWTAudience = strings.TrimSpace(os.Getenv("JWT_AUDIENCE"))
	// Duration env vars are optional; defaults applied in Validate().
	c.Auth.AccessTokenTTL = mustDuration("JWT_ACCESS_TTL")
	c.Auth.BcryptCost = collect[int](&parseErrs)(optionalInt("BCRYPT_COST", 0))

	c.Voice.EmbeddingDim = collect[int](&parseErrs)(optionalInt("EMBEDDING_DIM", 0))
	c.Voice.ModelVersion = strings.TrimSpace(os.Getenv("EMBEDDING_MODEL_VERSION"))
	c.Voice.EnrollSampleCount = collect[int](&parseErrs)(optionalInt("ENROLL_SAMPLE_COUNT", 0))
	c.Voice.IdentifyThreshold = collect[float64](&parseErrs)(optionalFloat("IDENTIFY_THRESHOLD", -1))
	c.Voice.PhraseThreshold = collect[float64](&parseErrs)(optionalFloat("PHRASE_THRESHOLD", -1))

	c.Inference.DependencyTimeout = mustDuration("DEPENDENCY_TIMEOUT")
	c.Inference.ExtractorURL = strings.TrimSpace(os.Getenv("EXTRACTOR_URL"))
	c.Inference.OpenAIAPIKey = os.Getenv("OPENAI_API_KEY")
	c.Inference.OpenAIBaseURL = strings.TrimSpace(os.Getenv("OPENAI_BASE_URL"))
	c.Inference.TranscribeModel = strings.TrimSpace(os.Getenv("TRANSCRIBE_MODEL"))
	c.Inference.TranscribeLanguage = strings.TrimSpace(os.Getenv("TRANSCRIBE_LANGUAGE"))
	c.Inference.FFmpegPath = strings.TrimSpace(os.Getenv("FFMPEG_PATH"))
	c.Inference.MaxConcurrency = collect[int](&parseErrs)(optionalInt("INFERENCE_MAX_CONCURRENCY", 0))

	c.RateLimit.VoiceLoginRate = collect[float64](&parseErrs)(optionalFloat("VOICE_LOGIN_RATE", 0))
	c.RateLimit.VoiceLoginBurst = collect[int](&parseErrs)(optionalInt("VOICE_LOGIN_BURST", 0))

	if err := joinErrors(parseErrs); err != nil {
		return Config{}, err
	}
	if err := c.Validate(); err != nil {
		return Config{}, err
	}
	return c, nil
}

// Validate checks c and fills in defaults for optional values.
func (c *Config) Validate() error {
	var errs []error

	if c.App.Env == "" {
		errs = append(errs, errors.New("APP_ENV is required"))
	} else if !isValidEnv(c.App.Env) {
		errs = append(errs, fmt.Errorf("APP_ENV must be one of local, dev, staging, production, got %q", c.App.Env))
	}
	if c.App.Port <= 0 || c.App.Port > 65535 {
		errs = append(errs, fmt.Errorf("APP_PORT must be a valid port, got %d", c.App.Port))
	}

	if c.DB.Host == "" {
		errs = append(errs, errors.New("DB_HOST is required"))
	}
	if c.DB.Port <= 0 || c.DB.Port > 65535 {
		errs = append(errs, fmt.Errorf("DB_PORT must be a valid port, got %d", c.DB.Port))
	}
	if c.DB.User == "" {
		errs = append(errs, errors.New("DB_USER is required"))
	}
	if c.DB.Name == "" {
		errs = append(errs, errors.New("DB_NAME is required"))
	}
	if c.DB.SSLMode == "" {
		if c.IsProduction() {
			errs = append(errs, errors.New("DB_SSLMODE is required in production"))
		} else {
			// Local-friendly default; production must be explicit.
			c.DB.SSLMode = "disable"
		}
	}
	if c.DB.SSLMode != "" && !isValidSSLMode(c.DB.SSLMode) {
		errs = append(errs, fmt.Errorf("DB_SSLMODE must be one of disable, require, verify-ca, verify-full, got %q", c.DB.SSLMode))
	}

	if c.Inference.MaxConcurrency < 0 {
		errs = append(errs, fmt.Errorf("INFERENCE_MAX_CONCURRENCY must be >= 0, got %d", c.Inference.MaxConcurrency))
	}
	if c.Inference.MaxConcurrency > 0 {
		if c.Redis.Host == "" {
			errs = append(errs, errors.New("REDIS_HOST is required when INFERENCE_MAX_CONCURRENCY is set"))
		}
		if c.Redis.Port <= 0 || c.Redis.Port > 65535 {
			errs = append(errs, fmt.Errorf("REDIS_PORT must be a valid port, got %d", c.Redis.Port))
		}
	}

	if c.Auth.JWTSecret == "" {
		errs = append(errs, errors.New("JWT_SECRET is required"))
	}
	if c.IsProduction() {
		if c.Auth.JWTIssuer == "" {
			errs = append(errs, errors.New("JWT_ISSUER is required in production"))
		}
		if c.Auth.JWTAudience == "" {
			errs = append(errs, errors.New("JWT_AUDIENCE is required in production"))
		}
	}
	if c.Auth.AccessTokenTTL <= 0 {
		c.Auth.AccessTokenTTL = 15 * time.Minute
	}
	if c.Auth.BcryptCost == 0 {
		c.Auth.BcryptCost = 12
	}
	if c.Auth.BcryptCost < 4 || c.Auth.BcryptCost > 31 {
		errs = append(errs, fmt.Errorf("BCRYPT_COST must be between 4 and 31, got %d", c.Auth.BcryptCost))
	}

	if c.Voice.EmbeddingDim == 0 {
		c.Voice.EmbeddingDim = 192
	}
	if c.Voice.EmbeddingDim < 0 {
		errs = append(errs, fmt.Errorf("EMBEDDING_DIM must be > 0, got %d", c.Voice.EmbeddingDim))
	}
	if c.Voice.ModelVersion == "" {
		c.Voice.ModelVersion = "ecapa-voxceleb"
	}
	if c.Voice.EnrollSampleCount == 0 {
		c.Voice.EnrollSampleCount = 3
	}
	if c.Voice.EnrollSampleCount < 0 {
		errs = append(errs, fmt.Errorf("ENROLL_SAMPLE_COUNT must be > 0, got %d", c.Voice.EnrollSampleCount))
	}
	if c.Voice.IdentifyThreshold < 0 {
		c.Voice.IdentifyThreshold = 0.5
	}
	if c.Voice.IdentifyThreshold > 1 {
		errs = append(errs, fmt.Errorf("IDENTIFY_THRESHOLD must be within [-1, 1], got %v", c.Voice.IdentifyThreshold))
	}
	if c.Voice.PhraseThreshold < 0 {
		c.Voice.PhraseThreshold = 0.8
	}
	if c.Voice.PhraseThreshold > 1 {
		errs = append(errs, fmt.Errorf("PHRASE_THRESHOLD must be within [0, 1], got %v", c.Voice.PhraseThreshold))
	}

	if c.Inference.DependencyTimeout <= 0 {
		c.Inference.DependencyTimeout = 30 * time.Second
	}
	if c.Inference.TranscribeLanguage == "" {
		c.Inference.TranscribeLanguage = "en"
	}
	if c.Inference.ExtractorURL != "" {
		if u, err := url.Parse(c.Inference.ExtractorURL); err != nil || u.Scheme == "" || u.Host == "" {
			errs = append(errs, fmt.Errorf("EXTRACTOR_URL must be an absolute URL, got %q", c.Inference.ExtractorURL))
		}
	} else if c.IsProduction() {
		errs = append(errs, errors.New("EXTRACTOR_URL is required in production"))
	}
	if c.IsProduction() && c.Inference.OpenAIAPIKey == "" {
		errs = append(errs, errors.New("OPENAI_API_KEY is required in production"))
	}

	if c.RateLimit.VoiceLoginRate <= 0 {
		// Default: one attempt every 6 seconds per client IP.
		c.RateLimit.VoiceLoginRate = 1.0 / 6
	}
	if c.RateLimit.VoiceLoginBurst <= 0 {
		c.RateLimit.VoiceLoginBurst = 5
	}

	return joinErrors(errs)
}

func (c Config) IsProduction() bool {
	return c.App.Env == "production"
}

func (c Config) HTTPAddr() string {
	return fmt.Sprintf(":%d", c.App.Port)
}

func (c Config) PostgresDSN() string {
	// Avoid logging this string; it contains secrets.
	return fmt.Sprintf(
		"host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		c.DB.Host,
		c.DB.Port,
		c.DB.User,
		c.DB.Password,
		c.DB.Name,
		c.DB.SSLMode,
	)
}

// PostgresURL is the same connection in URL form, as golang-migrate expects.
func (c Config) PostgresURL() string {
	u := url.URL{
		Scheme:   "postgres",
		User:     url.UserPassword(c.DB.User, c.DB.Password),
		Host:     net.JoinHostPort(c.DB.Host, strconv.Itoa(c.DB.Port)),
		Path:     "/" + c.DB.Name,
		RawQuery: url.Values{"sslmode": []string{c.DB.SSLMode}}.Encode(),
	}
	return u.String()
}

func (c Config) RedisAddr() string {
	return net.JoinHostPort(c.Redis.Host, strconv.Itoa(c.Redis.Port))
}

func mustInt(key string) (int, error) {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return 0, fmt.Errorf("%s is required", key)
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return 0, fmt.Errorf("%s must be an integer, got %q", key, v)
	}
	return n, nil
}

func optionalInt(key string, def int) (int, error) {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return def, nil
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return def, fmt.Errorf("%s must be an integer, got %q", key, v)
	}
	return n, nil
}

func optionalFloat(key string, def float64) (float64, error) {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return def, nil
	}
	f, err := strconv.ParseFloat(v, 64)
	if err != nil {
		return def, fmt.Errorf("%s must be a number, got %q", key, v)
	}
	return f, nil
}

func mustDuration(key string) time.Duration {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return 0
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return 0
	}
	return d
}

// collect returns a function that records a parse error in errs and passes
// the value through.
func collect[T any](errs *[]error) func(T, error) T {
	return func(v T, err error) T {
		if err != nil {
			*errs = append(*errs, err)
		}
		return v
	}
}

func isValidEnv(v string) bool {
	switch v {
	case "local", "dev", "staging", "production":
		return true
	default:
		return false
	}
}

func isValidSSLMode(v string) bool {
	switch v {
	case "disable", "require", "verify-ca", "verify-full":
		return true
	default:
		return false
	}
}

func joinErrors(errs []error) error {
	if len(errs) == 0 {
		return nil
	}
	if len(errs) == 1 {
		return errs[0]
	}
	var b strings.Builder
	b.WriteString("config errors:\n")
	for _, e := range errs {
		b.WriteString("- ")
		b.WriteString(e.Error())
		b.WriteString("\n")
	}
	return errors.New(strings.TrimSpace(b.String()))
}
