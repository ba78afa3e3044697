package config

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"
	_ "time/tzdata"
)

const (
	defaultEnvFile          = ".env"
	defaultPort             = "8080"
	defaultReadTimeout      = 15 * time.Second
	defaultWriteTimeout     = 60 * time.Second
	defaultIdleTimeout      = 120 * time.Second
	defaultShutdownTimeout  = 20 * time.Second
	defaultEnvironment      = "local"
	defaultStorageBackend   = StorageBackendLocal
	defaultLocalDir         = "uploads"
	defaultMaxOrderFileSize = 10 << 20
	defaultMaxImageSize     = 5 << 20
	defaultMaxFilesPerOrder = 10
	defaultTempMaxAge       = time.Hour
	defaultSweepInterval    = time.Hour
	defaultOrderCounterKey  = "orderCode"
	defaultOrderSeed        = 1278
	defaultCustomPricing    = CustomPricingClientEstimate
	defaultEmailTransport   = EmailTransportNone
	defaultSMTPPort         = 587
	defaultShopName         = "Gráfica Los Rumbos"
	defaultShopWhatsApp     = "5491125042343"
	defaultAuthMode         = AuthModeJWT
	defaultAdminRole        = "admin"
	defaultCatalogCacheTTL  = 5 * time.Minute
	defaultStatsTimeZone    = "America/Argentina/Buenos_Aires"
	defaultSecretsFallback  = ".secrets.local"
)

// Storage backends for attachments.
const (
	StorageBackendGCS   = "gcs"
	StorageBackendLocal = "local"
)

// Custom order pricing policies.
const (
	CustomPricingClientEstimate = "client_estimate"
	CustomPricingPriceList      = "price_list"
)

// Email transports.
const (
	EmailTransportNone   = "none"
	EmailTransportSMTP   = "smtp"
	EmailTransportPubSub = "pubsub"
)

// Admin authentication modes.
const (
	AuthModeJWT      = "jwt"
	AuthModeFirebase = "firebase"
	AuthModeDisabled = "disabled"
)

// Config captures all runtime configuration organised by concern.
type Config struct {
	Server        ServerConfig
	Firebase      FirebaseConfig
	Firestore     FirestoreConfig
	Storage       StorageConfig
	Uploads       UploadConfig
	Counters      CounterConfig
	Pricing       PricingConfig
	Notifications NotificationConfig
	Auth          AuthConfig
	Redis         RedisConfig
	PubSub        PubSubConfig
	Stats         StatsConfig
	Secrets       SecretsConfig
}

// ServerConfig configures HTTP server parameters and build metadata.
type ServerConfig struct {
	Port            string
	ReadTimeout     time.Duration
	WriteTimeout    time.Duration
	IdleTimeout     time.Duration
	ShutdownTimeout time.Duration
	Environment     string
	Version         string
	CommitSHA       string
}

// FirebaseConfig stores Firebase project settings used by ID token verification.
type FirebaseConfig struct {
	ProjectID       string
	CredentialsFile string
}

// FirestoreConfig stores database parameters.
type FirestoreConfig struct {
	ProjectID    string
	EmulatorHost string
}

// StorageConfig selects where attachments live and how large they may be.
type StorageConfig struct {
	Backend          string
	Bucket           string
	LocalDir         string
	MaxOrderFileSize int64
	MaxImageSize     int64
	MaxFilesPerOrder int
}

// UploadConfig controls the stale temp upload sweep.
type UploadConfig struct {
	TempMaxAge    time.Duration
	SweepInterval time.Duration
}

// CounterConfig names the order number sequence and its starting point.
type CounterConfig struct {
	OrderKey  string
	OrderSeed int64
}

// PricingConfig selects how custom orders are priced on creation.
type PricingConfig struct {
	CustomPolicy string
}

// NotificationConfig configures outbound customer messages.
type NotificationConfig struct {
	EmailTransport string
	From           string
	MailTopic      string
	ShopName       string
	ShopWhatsApp   string
	ShopAddress    string
	SMTP           SMTPConfig
}

// SMTPConfig holds SMTP relay credentials.
type SMTPConfig struct {
	Host     string
	Port     int
	Username string
	Password string
	Secure   bool
}

// AuthConfig controls admin route protection.
type AuthConfig struct {
	Mode      string
	JWTSecret string
	JWTIssuer string
	AdminRole string
}

// RedisConfig configures the optional catalog cache. An empty Addr disables caching.
type RedisConfig struct {
	Addr       string
	Password   string
	DB         int
	CatalogTTL time.Duration
}

// PubSubConfig configures order event publishing. An empty topic disables publishing.
type PubSubConfig struct {
	ProjectID        string
	OrderEventsTopic string
}

// StatsConfig configures dashboard aggregation.
type StatsConfig struct {
	TimeZone string
}

// SecretsConfig configures Secret Manager lookups.
type SecretsConfig struct {
	ProjectID    string
	FallbackFile string
}

// SecretResolver resolves references to external secrets (e.g. Secret Manager URIs).
type SecretResolver interface {
	ResolveSecret(ctx context.Context, ref string) (string, error)
}

// SecretResolverFunc adapts ordinary functions to SecretResolver.
type SecretResolverFunc func(context.Context, string) (string, error)

// ResolveSecret resolves the secret using the wrapped function.
func (f SecretResolverFunc) ResolveSecret(ctx context.Context, ref string) (string, error) {
	return f(ctx, ref)
}

// ValidationError is returned when required configuration fields are missing or invalid.
type ValidationError struct {
	fields []string
}

// Error implements the error interface.
func (e *ValidationError) Error() string {
	return fmt.Sprintf("config validation failed: missing or invalid fields [%s]", strings.Join(e.fields, ", "))
}

// Fields returns a copy of the missing/invalid field list.
func (e *ValidationError) Fields() []string {
	out := make([]string, len(e.fields))
	copy(out, e.fields)
	return out
}

// SecretError describes failures while resolving a secret reference.
type SecretError struct {
	Ref string
	Err error
}

// Error implements the error interface.
func (e *SecretError) Error() string {
	return fmt.Sprintf("secret resolution failed for ref %q: %v", e.Ref, e.Err)
}

// Unwrap exposes the underlying error.
func (e *SecretError) Unwrap() error { return e.Err }

var errSecretResolverNotConfigured = errors.New("secret resolver not configured")

// Option customises Load behaviour.
type Option func(*loaderOptions)

type loaderOptions struct {
	envFile      string
	envMap       map[string]string
	useSystemEnv bool
	secret       SecretResolver
}

// WithEnvFile overrides the .env file path used for local overrides.
func WithEnvFile(path string) Option {
	return func(o *loaderOptions) {
		o.envFile = path
	}
}

// WithEnvMap injects explicit values that take precedence over the system environment.
func WithEnvMap(values map[string]string) Option {
	return func(o *loaderOptions) {
		o.envMap = values
	}
}

// WithoutSystemEnv disables reading from the process environment.
func WithoutSystemEnv() Option {
	return func(o *loaderOptions) {
		o.useSystemEnv = false
	}
}

// WithSecretResolver sets the resolver used for secret:// and sm:// references.
func WithSecretResolver(resolver SecretResolver) Option {
	return func(o *loaderOptions) {
		o.secret = resolver
	}
}

// Load assembles the configuration from defaults, .env, the process environment and explicit
// overrides (in increasing precedence), then resolves secret references.
func Load(ctx context.Context, opts ...Option) (Config, error) {
	options := loaderOptions{
		envFile:      defaultEnvFile,
		useSystemEnv: true,
	}
	for _, opt := range opts {
		opt(&options)
	}

	lookup, err := newLookup(options)
	if err != nil {
		return Config{}, err
	}

	cfg := Config{
		Server: ServerConfig{
			Port:            stringWithDefault(lookup, "API_SERVER_PORT", stringWithDefault(lookup, "PORT", defaultPort)),
			ReadTimeout:     durationWithDefault(lookup, "API_SERVER_READ_TIMEOUT", defaultReadTimeout),
			WriteTimeout:    durationWithDefault(lookup, "API_SERVER_WRITE_TIMEOUT", defaultWriteTimeout),
			IdleTimeout:     durationWithDefault(lookup, "API_SERVER_IDLE_TIMEOUT", defaultIdleTimeout),
			ShutdownTimeout: durationWithDefault(lookup, "API_SERVER_SHUTDOWN_TIMEOUT", defaultShutdownTimeout),
			Environment:     strings.ToLower(stringWithDefault(lookup, "API_ENVIRONMENT", defaultEnvironment)),
			Version:         stringWithDefault(lookup, "API_VERSION", "dev"),
			CommitSHA:       stringWithDefault(lookup, "API_COMMIT_SHA", ""),
		},
		Firebase: FirebaseConfig{
			ProjectID:       stringWithDefault(lookup, "API_FIREBASE_PROJECT_ID", ""),
			CredentialsFile: stringWithDefault(lookup, "API_FIREBASE_CREDENTIALS_FILE", ""),
		},
		Firestore: FirestoreConfig{
			ProjectID:    stringWithDefault(lookup, "API_FIRESTORE_PROJECT_ID", ""),
			EmulatorHost: stringWithDefault(lookup, "API_FIRESTORE_EMULATOR_HOST", ""),
		},
		Storage: StorageConfig{
			Backend:          strings.ToLower(stringWithDefault(lookup, "API_STORAGE_BACKEND", defaultStorageBackend)),
			Bucket:           stringWithDefault(lookup, "API_STORAGE_BUCKET", ""),
			LocalDir:         stringWithDefault(lookup, "API_STORAGE_LOCAL_DIR", defaultLocalDir),
			MaxOrderFileSize: int64(intWithDefault(lookup, "API_STORAGE_MAX_ORDER_FILE_BYTES", defaultMaxOrderFileSize)),
			MaxImageSize:     int64(intWithDefault(lookup, "API_STORAGE_MAX_IMAGE_BYTES", defaultMaxImageSize)),
			MaxFilesPerOrder: intWithDefault(lookup, "API_STORAGE_MAX_FILES_PER_ORDER", defaultMaxFilesPerOrder),
		},
		Uploads: UploadConfig{
			TempMaxAge:    durationWithDefault(lookup, "API_UPLOADS_TEMP_MAX_AGE", defaultTempMaxAge),
			SweepInterval: durationWithDefault(lookup, "API_UPLOADS_SWEEP_INTERVAL", defaultSweepInterval),
		},
		Counters: CounterConfig{
			OrderKey:  stringWithDefault(lookup, "API_COUNTER_ORDER_KEY", defaultOrderCounterKey),
			OrderSeed: int64(intWithDefault(lookup, "API_COUNTER_ORDER_SEED", defaultOrderSeed)),
		},
		Pricing: PricingConfig{
			CustomPolicy: strings.ToLower(stringWithDefault(lookup, "API_PRICING_CUSTOM_POLICY", defaultCustomPricing)),
		},
		Notifications: NotificationConfig{
			EmailTransport: strings.ToLower(stringWithDefault(lookup, "API_NOTIFY_EMAIL_TRANSPORT", defaultEmailTransport)),
			From:           stringWithDefault(lookup, "API_NOTIFY_FROM", ""),
			MailTopic:      stringWithDefault(lookup, "API_NOTIFY_MAIL_TOPIC", ""),
			ShopName:       stringWithDefault(lookup, "API_SHOP_NAME", defaultShopName),
			ShopWhatsApp:   stringWithDefault(lookup, "API_SHOP_WHATSAPP", defaultShopWhatsApp),
			ShopAddress:    stringWithDefault(lookup, "API_SHOP_ADDRESS", ""),
			SMTP: SMTPConfig{
				Host:     stringWithDefault(lookup, "API_SMTP_HOST", ""),
				Port:     intWithDefault(lookup, "API_SMTP_PORT", defaultSMTPPort),
				Username: stringWithDefault(lookup, "API_SMTP_USER", ""),
				Password: stringWithDefault(lookup, "API_SMTP_PASS", ""),
				Secure:   boolWithDefault(lookup, "API_SMTP_SECURE", false),
			},
		},
		Auth: AuthConfig{
			Mode:      strings.ToLower(stringWithDefault(lookup, "API_AUTH_MODE", defaultAuthMode)),
			JWTSecret: stringWithDefault(lookup, "API_AUTH_JWT_SECRET", ""),
			JWTIssuer: stringWithDefault(lookup, "API_AUTH_JWT_ISSUER", ""),
			AdminRole: stringWithDefault(lookup, "API_AUTH_ADMIN_ROLE", defaultAdminRole),
		},
		Redis: RedisConfig{
			Addr:       stringWithDefault(lookup, "API_REDIS_ADDR", ""),
			Password:   stringWithDefault(lookup, "API_REDIS_PASSWORD", ""),
			DB:         intWithDefault(lookup, "API_REDIS_DB", 0),
			CatalogTTL: durationWithDefault(lookup, "API_REDIS_CATALOG_TTL", defaultCatalogCacheTTL),
		},
		PubSub: PubSubConfig{
			ProjectID:        stringWithDefault(lookup, "API_PUBSUB_PROJECT_ID", ""),
			OrderEventsTopic: stringWithDefault(lookup, "API_PUBSUB_ORDER_EVENTS_TOPIC", ""),
		},
		Stats: StatsConfig{
			TimeZone: stringWithDefault(lookup, "API_STATS_TIMEZONE", defaultStatsTimeZone),
		},
		Secrets: SecretsConfig{
			ProjectID:    stringWithDefault(lookup, "API_SECRETS_PROJECT_ID", ""),
			FallbackFile: stringWithDefault(lookup, "API_SECRETS_FALLBACK_FILE", defaultSecretsFallback),
		},
	}

	// Firestore and Pub/Sub default to the Firebase project when unspecified.
	if cfg.Firestore.ProjectID == "" {
		cfg.Firestore.ProjectID = cfg.Firebase.ProjectID
	}
	if cfg.PubSub.ProjectID == "" {
		cfg.PubSub.ProjectID = cfg.Firestore.ProjectID
	}
	if cfg.Secrets.ProjectID == "" {
		cfg.Secrets.ProjectID = cfg.Firestore.ProjectID
	}

	secretFields := []*string{
		&cfg.Notifications.SMTP.Password,
		&cfg.Auth.JWTSecret,
		&cfg.Redis.Password,
	}
	for _, field := range secretFields {
		resolved, err := resolveSecret(ctx, *field, options.secret)
		if err != nil {
			return Config{}, err
		}
		*field = resolved
	}

	if err := validateConfig(cfg); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// EnvironmentValues returns the effective environment map after applying the same precedence
// rules as Load, so callers can build dependencies (e.g. the secret fetcher) before loading.
func EnvironmentValues(opts ...Option) (map[string]string, error) {
	options := loaderOptions{
		envFile:      defaultEnvFile,
		useSystemEnv: true,
	}
	for _, opt := range opts {
		opt(&options)
	}

	values, err := loadDotEnv(options.envFile)
	if err != nil {
		return nil, err
	}
	if values == nil {
		values = make(map[string]string)
	}
	if options.useSystemEnv {
		for _, entry := range os.Environ() {
			key, value, ok := strings.Cut(entry, "=")
			if !ok || strings.TrimSpace(key) == "" {
				continue
			}
			values[key] = value
		}
	}
	for key, value := range options.envMap {
		values[key] = value
	}
	return values, nil
}

func newLookup(options loaderOptions) (func(string) (string, bool), error) {
	dotEnvValues, err := loadDotEnv(options.envFile)
	if err != nil {
		return nil, err
	}
	return func(key string) (string, bool) {
		if value, ok := options.envMap[key]; ok {
			return value, true
		}
		if options.useSystemEnv {
			if value, ok := os.LookupEnv(key); ok {
				return value, true
			}
		}
		value, ok := dotEnvValues[key]
		return value, ok
	}, nil
}

func resolveSecret(ctx context.Context, value string, resolver SecretResolver) (string, error) {
	if !IsSecretReference(value) {
		return value, nil
	}
	normalized := normalizeSecretReference(value)
	if resolver == nil {
		return "", &SecretError{Ref: normalized, Err: errSecretResolverNotConfigured}
	}
	secret, err := resolver.ResolveSecret(ctx, normalized)
	if err != nil {
		return "", &SecretError{Ref: normalized, Err: err}
	}
	return secret, nil
}

func validateConfig(cfg Config) error {
	var invalid []string

	if cfg.Server.Port == "" {
		invalid = append(invalid, "Server.Port")
	}
	if cfg.Firestore.ProjectID == "" {
		invalid = append(invalid, "Firestore.ProjectID")
	}
	switch cfg.Storage.Backend {
	case StorageBackendGCS:
		if cfg.Storage.Bucket == "" {
			invalid = append(invalid, "Storage.Bucket")
		}
	case StorageBackendLocal:
		if cfg.Storage.LocalDir == "" {
			invalid = append(invalid, "Storage.LocalDir")
		}
	default:
		invalid = append(invalid, "Storage.Backend")
	}
	if cfg.Storage.MaxOrderFileSize <= 0 {
		invalid = append(invalid, "Storage.MaxOrderFileSize")
	}
	if cfg.Storage.MaxImageSize <= 0 {
		invalid = append(invalid, "Storage.MaxImageSize")
	}
	if cfg.Uploads.TempMaxAge <= 0 {
		invalid = append(invalid, "Uploads.TempMaxAge")
	}
	if cfg.Uploads.SweepInterval <= 0 {
		invalid = append(invalid, "Uploads.SweepInterval")
	}
	if strings.TrimSpace(cfg.Counters.OrderKey) == "" {
		invalid = append(invalid, "Counters.OrderKey")
	}
	if cfg.Counters.OrderSeed < 0 {
		invalid = append(invalid, "Counters.OrderSeed")
	}
	switch cfg.Pricing.CustomPolicy {
	case CustomPricingClientEstimate, CustomPricingPriceList:
	default:
		invalid = append(invalid, "Pricing.CustomPolicy")
	}
	switch cfg.Notifications.EmailTransport {
	case EmailTransportNone:
	case EmailTransportSMTP:
		if cfg.Notifications.SMTP.Host == "" {
			invalid = append(invalid, "Notifications.SMTP.Host")
		}
		if cfg.Notifications.From == "" && cfg.Notifications.SMTP.Username == "" {
			invalid = append(invalid, "Notifications.From")
		}
	case EmailTransportPubSub:
		if cfg.Notifications.MailTopic == "" {
			invalid = append(invalid, "Notifications.MailTopic")
		}
	default:
		invalid = append(invalid, "Notifications.EmailTransport")
	}
	switch cfg.Auth.Mode {
	case AuthModeJWT:
		if cfg.Auth.JWTSecret == "" {
			invalid = append(invalid, "Auth.JWTSecret")
		}
	case AuthModeFirebase:
		if cfg.Firebase.ProjectID == "" {
			invalid = append(invalid, "Firebase.ProjectID")
		}
	case AuthModeDisabled:
		if cfg.Server.Environment != defaultEnvironment {
			invalid = append(invalid, "Auth.Mode")
		}
	default:
		invalid = append(invalid, "Auth.Mode")
	}
	if _, err := time.LoadLocation(cfg.Stats.TimeZone); err != nil {
		invalid = append(invalid, "Stats.TimeZone")
	}

	if len(invalid) > 0 {
		return &ValidationError{fields: invalid}
	}
	return nil
}

// IsSecretReference reports whether value points at Secret Manager.
func IsSecretReference(value string) bool {
	trimmed := strings.TrimSpace(value)
	return strings.HasPrefix(trimmed, "secret://") || strings.HasPrefix(trimmed, "sm://")
}

func normalizeSecretReference(value string) string {
	trimmed := strings.TrimSpace(value)
	if strings.HasPrefix(trimmed, "sm://") {
		return "secret://" + strings.TrimPrefix(trimmed, "sm://")
	}
	return trimmed
}

func loadDotEnv(path string) (map[string]string, error) {
	if path == "" {
		return nil, nil
	}
	absPath, err := filepath.Abs(path)
	if err != nil {
		absPath = path
	}

	file, err := os.Open(absPath)
	if errors.Is(err, os.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("config: unable to read %s: %w", absPath, err)
	}
	defer file.Close()

	values := make(map[string]string)
	scanner := bufio.NewScanner(file)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		line = strings.TrimSpace(strings.TrimPrefix(line, "export "))
		key, value, ok := strings.Cut(line, "=")
		key = strings.TrimSpace(key)
		if !ok || key == "" {
			continue
		}
		values[key] = strings.Trim(strings.TrimSpace(value), "\"'")
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("config: failed parsing %s: %w", absPath, err)
	}
	return values, nil
}

func stringWithDefault(lookup func(string) (string, bool), key, fallback string) string {
	if value, ok := lookup(key); ok && strings.TrimSpace(value) != "" {
		return strings.TrimSpace(value)
	}
	return fallback
}

func durationWithDefault(lookup func(string) (string, bool), key string, fallback time.Duration) time.Duration {
	if value, ok := lookup(key); ok && value != "" {
		if d, err := time.ParseDuration(strings.TrimSpace(value)); err == nil {
			return d
		}
	}
	return fallback
}

func intWithDefault(lookup func(string) (string, bool), key string, fallback int) int {
	if value, ok := lookup(key); ok && value != "" {
		if parsed, err := strconv.Atoi(strings.TrimSpace(value)); err == nil {
			return parsed
		}
	}
	return fallback
}

func boolWithDefault(lookup func(string) (string, bool), key string, fallback bool) bool {
	if value, ok := lookup(key); ok && value != "" {
		switch strings.ToLower(strings.TrimSpace(value)) {
		case "true", "1", "yes", "on":
			return true
		case "false", "0", "no", "off":
			return false
		}
	}
	return fallback
}
