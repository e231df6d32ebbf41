package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/Ailurotech/ailurowander/libs/notifier"
	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const (
	maxRequestBytes            = 50 * 1024 * 1024
	maxUploadBytes             = 10 * 1024 * 1024
	maxConcurrentUploads       = 4
	agentCookieName            = "agent_session"
	agentSessionDuration       = 24 * time.Hour
	contactRateLimitRequests   = 5
	contactRateLimitWindow     = 10 * time.Minute
	rateLimiterCleanupInterval = time.Minute
	defaultRelatedToursLimit   = 3
	defaultMongoURI            = "mongodb://localhost:27017/ailuroWander"
	defaultMongoDatabase       = "ailuroWander"
	defaultAWSRegion           = "ap-southeast-2"
	defaultContactEmail        = "contact@ailurotech.com.au"
	devCORSOriginLocalhost     = "http://localhost:5173"
	devCORSOriginLoopback      = "http://127.0.0.1:5173"
	trustedProxyLoopbackIPv4   = "127.0.0.1"
	trustedProxyLoopbackIPv6   = "::1"
)

var (
	agentRoles        = []string{"admin", "agent", "guide", "marketing", "support"}
	allowedImageTypes = map[string]struct{}{
		"image/jpeg": {},
		"image/png":  {},
		"image/webp": {},
		"image/gif":  {},
	}
)

type Config struct {
	Addr                   string
	Env                    string
	PublicBaseURL          string
	MongoURI               string
	MongoDatabase          string
	DataRoot               string
	StorageBackend         string
	S3Bucket               string
	S3Region               string
	S3AccessKeyID          string
	S3SecretAccessKey      string
	S3PublicBaseURL        string
	SNSTopicARN            string
	SNSRegion              string
	SNSAccessKeyID         string
	SNSSecretAccessKey     string
	ResendAPIKey           string
	MailerFromAddress      string
	ContactEmailTo         string
	UseAWSTranslate        bool
	WeatherGeocodingURL    string
	WeatherArchiveURL      string
	NominatimURL           string
	BootstrapAgentUsername string
	BootstrapAgentPassword string
	BootstrapAgentEmail    string
	SeedSampleTours        bool
}

type App struct {
	cfg *Config
	log *slog.Logger

	mongo        *mongoProvider
	tours        TourStore
	agents       AgentStore
	sessions     SessionStore
	translations TranslationStore

	objects    ObjectStore
	climate    *ClimateService
	translator Translator
	notifier   *notifier.Notifier
	metrics    *apiMetrics

	rateLimiterMu sync.Mutex
	rateBuckets   map[string]rateBucket

	now func() time.Time
}

type rateBucket struct {
	start time.Time
	count int
}

type apiError struct {
	Status  int
	Message string
	Details string
}

func (e *apiError) Error() string { return e.Message }

func main() {
	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		fmt.Fprintf(os.Stderr, "warning: %v\n", err)
	}

	cfg, err := loadConfig()
	if err != nil {
		panic(err)
	}

	logger := slog.New(slog.NewJSONHandler(os.Stdout, nil))
	ctx := context.Background()

	app, err := newApp(ctx, cfg, logger, prometheus.DefaultRegisterer)
	if err != nil {
		panic(err)
	}
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = app.mongo.Disconnect(shutdownCtx)
	}()

	logger.Info(
		"runtime configuration",
		"env", cfg.Env,
		"addr", cfg.Addr,
		"storage", cfg.StorageBackend,
		"notifier", app.notifier.ProviderName(),
		"translator", app.translator.Name(),
	)

	if len(os.Args) > 1 && os.Args[1] == "create-agent" {
		if len(os.Args) < 4 {
			fmt.Fprintln(os.Stderr, "usage: api create-agent <username> <password> [email]")
			os.Exit(1)
		}
		email := ""
		if len(os.Args) > 4 {
			email = os.Args[4]
		}
		agent, err := app.ensureAgent(ctx, os.Args[2], os.Args[3], email, "admin")
		if err != nil {
			logger.Error("create-agent failed", "err", err)
			os.Exit(1)
		}
		logger.Info("agent ensured", "username", agent.Username, "id", agent.ID.Hex())
		return
	}

	if len(os.Args) > 1 && os.Args[1] == "seed-tours" {
		if err := app.mongo.EnsureIndexes(ctx); err != nil {
			panic(err)
		}
		created, err := app.seedSampleTours(ctx)
		if err != nil {
			logger.Error("seed-tours failed", "err", err)
			os.Exit(1)
		}
		logger.Info("seed-tours completed", "created", created)
		return
	}

	if err := app.mongo.EnsureIndexes(ctx); err != nil {
		// The database may still be starting; handlers reconnect lazily.
		logger.Error("ensure indexes failed", "err", err)
	}
	if err := app.bootstrapAgent(ctx); err != nil {
		logger.Error("bootstrap agent failed", "err", err)
	}
	if cfg.SeedSampleTours {
		if _, err := app.seedSampleTours(ctx); err != nil {
			logger.Error("seed sample tours failed", "err", err)
		}
	}

	cleanupCtx, cleanupCancel := context.WithCancel(context.Background())
	defer cleanupCancel()
	app.startRateLimiterCleanup(cleanupCtx, rateLimiterCleanupInterval)

	r := app.newRouter()
	app.log.Info("starting gin API", "addr", cfg.Addr)
	if err := r.Run(cfg.Addr); err != nil {
		panic(err)
	}
}

func newApp(ctx context.Context, cfg *Config, logger *slog.Logger, registerer prometheus.Registerer) (*App, error) {
	httpClient := &http.Client{Timeout: 15 * time.Second}

	provider := newMongoProvider(cfg.MongoURI, cfg.MongoDatabase)

	objects, err := newObjectStore(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("object store: %w", err)
	}

	translator, err := newTranslator(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("translator: %w", err)
	}

	notifyProvider, err := newNotificationProvider(ctx, cfg, logger)
	if err != nil {
		return nil, fmt.Errorf("notifier: %w", err)
	}

	geocoder := &FallbackGeocoder{
		Primary:   &OpenMeteoGeocoder{BaseURL: cfg.WeatherGeocodingURL, Client: httpClient},
		Secondary: &NominatimGeocoder{BaseURL: cfg.NominatimURL, UserAgent: "AiluroWander-API/1.0", Client: httpClient},
	}

	app := &App{
		cfg:          cfg,
		log:          logger,
		mongo:        provider,
		tours:        &mongoTourStore{provider: provider},
		agents:       &mongoAgentStore{provider: provider},
		sessions:     &mongoSessionStore{provider: provider},
		translations: &mongoTranslationStore{provider: provider},
		objects:      objects,
		climate:      newClimateService(geocoder, &OpenMeteoArchive{BaseURL: cfg.WeatherArchiveURL, Client: httpClient}, logger),
		translator:   translator,
		notifier:     notifier.New(notifyProvider, cfg.MailerFromAddress),
		metrics:      newAPIMetrics(registerer),
		rateBuckets:  make(map[string]rateBucket),
		now:          time.Now,
	}
	return app, nil
}

func loadConfig() (*Config, error) {
	env := valueFromEnvKeys("APP_ENV", "NODE_ENV")
	if env == "" {
		env = "development"
	}

	publicBase := strings.TrimRight(valueOrDefault("PUBLIC_BASE_URL", "https://ailurowander.com"), "/")

	addr := strings.TrimSpace(os.Getenv("GIN_ADDR"))
	if addr == "" {
		if port := strings.TrimSpace(os.Getenv("PORT")); port != "" {
			if _, err := strconv.Atoi(port); err != nil {
				return nil, fmt.Errorf("PORT must be numeric")
			}
			addr = ":" + port
		} else {
			addr = ":8080"
		}
	}

	mongoURI := valueOrDefault("MONGODB_URI", defaultMongoURI)
	parsedMongoURI, err := url.Parse(mongoURI)
	if err != nil || (parsedMongoURI.Scheme != "mongodb" && parsedMongoURI.Scheme != "mongodb+srv") {
		return nil, fmt.Errorf("MONGODB_URI must be a mongodb:// or mongodb+srv:// URI")
	}
	mongoDatabase := strings.TrimSpace(os.Getenv("MONGODB_DATABASE"))
	if mongoDatabase == "" {
		mongoDatabase = strings.Trim(parsedMongoURI.Path, "/")
	}
	if mongoDatabase == "" {
		mongoDatabase = defaultMongoDatabase
	}

	cfg := &Config{
		Addr:                   addr,
		Env:                    env,
		PublicBaseURL:          publicBase,
		MongoURI:               mongoURI,
		MongoDatabase:          mongoDatabase,
		DataRoot:               valueOrDefault("DATA_ROOT", "./data"),
		S3Bucket:               valueFromEnvKeys("S3_BUCKET_NAME", "AWS_S3_BUCKET_NAME"),
		S3Region:               valueFromEnvKeys("S3_REGION", "AWS_REGION"),
		S3AccessKeyID:          valueFromEnvKeys("S3_ACCESS_KEY_ID", "AWS_ACCESS_KEY_ID"),
		S3SecretAccessKey:      valueFromEnvKeys("S3_SECRET_ACCESS_KEY", "AWS_SECRET_ACCESS_KEY"),
		S3PublicBaseURL:        strings.TrimRight(strings.TrimSpace(os.Getenv("S3_PUBLIC_BASE_URL")), "/"),
		SNSTopicARN:            strings.TrimSpace(os.Getenv("SNS_TOPIC_ARN")),
		SNSRegion:              valueFromEnvKeys("SNS_REGION", "AWS_REGION"),
		SNSAccessKeyID:         valueFromEnvKeys("SNS_ACCESS_KEY_ID", "AWS_ACCESS_KEY_ID"),
		SNSSecretAccessKey:     valueFromEnvKeys("SNS_SECRET_ACCESS_KEY", "AWS_SECRET_ACCESS_KEY"),
		ResendAPIKey:           strings.TrimSpace(os.Getenv("RESEND_API_KEY")),
		MailerFromAddress:      valueOrDefault("MAILER_FROM_ADDRESS", "noreply@ailurowander.com"),
		ContactEmailTo:         valueOrDefault("CONTACT_EMAIL_TO", defaultContactEmail),
		WeatherGeocodingURL:    valueOrDefault("WEATHER_GEOCODING_URL", defaultOpenMeteoGeocodingURL),
		WeatherArchiveURL:      valueOrDefault("WEATHER_ARCHIVE_URL", defaultOpenMeteoArchiveURL),
		NominatimURL:           valueOrDefault("NOMINATIM_URL", defaultNominatimSearchURL),
		BootstrapAgentUsername: strings.TrimSpace(os.Getenv("BOOTSTRAP_AGENT_USERNAME")),
		BootstrapAgentPassword: strings.TrimSpace(os.Getenv("BOOTSTRAP_AGENT_PASSWORD")),
		BootstrapAgentEmail:    strings.TrimSpace(os.Getenv("BOOTSTRAP_AGENT_EMAIL")),
	}
	if cfg.S3Region == "" {
		cfg.S3Region = defaultAWSRegion
	}
	if cfg.SNSRegion == "" {
		cfg.SNSRegion = defaultAWSRegion
	}

	if cfg.UseAWSTranslate, err = parseBoolEnv("USE_AWS_TRANSLATE"); err != nil {
		return nil, err
	}
	if cfg.SeedSampleTours, err = parseBoolEnv("SEED_SAMPLE_TOURS"); err != nil {
		return nil, err
	}

	cfg.StorageBackend = strings.ToLower(strings.TrimSpace(os.Getenv("STORAGE_BACKEND")))
	switch cfg.StorageBackend {
	case "":
		cfg.StorageBackend = "disk"
		if cfg.S3Bucket != "" {
			cfg.StorageBackend = "s3"
		}
	case "s3":
		if cfg.S3Bucket == "" {
			return nil, fmt.Errorf("S3_BUCKET_NAME must be set when STORAGE_BACKEND=s3")
		}
	case "disk":
	default:
		return nil, fmt.Errorf("STORAGE_BACKEND must be 's3' or 'disk'")
	}
	if cfg.S3PublicBaseURL == "" && cfg.S3Bucket != "" {
		cfg.S3PublicBaseURL = fmt.Sprintf("https://%s.s3.%s.amazonaws.com", cfg.S3Bucket, cfg.S3Region)
	}

	if (cfg.BootstrapAgentUsername == "") != (cfg.BootstrapAgentPassword == "") {
		return nil, fmt.Errorf("BOOTSTRAP_AGENT_USERNAME and BOOTSTRAP_AGENT_PASSWORD must be set together")
	}

	return cfg, nil
}

func parseBoolEnv(key string) (bool, error) {
	raw := strings.TrimSpace(os.Getenv(key))
	if raw == "" {
		return false, nil
	}
	value, err := strconv.ParseBool(raw)
	if err != nil {
		return false, fmt.Errorf("%s must be a boolean", key)
	}
	return value, nil
}

func valueOrDefault(key, fallback string) string {
	value := strings.TrimSpace(os.Getenv(key))
	if value == "" {
		return fallback
	}
	return value
}

func valueFromEnvKeys(keys ...string) string {
	for _, key := range keys {
		value := strings.TrimSpace(os.Getenv(key))
		if value != "" {
			return value
		}
	}
	return ""
}

func (a *App) isProduction() bool {
	return strings.EqualFold(a.cfg.Env, "production")
}

func (a *App) newRouter() *gin.Engine {
	r := gin.New()
	if err := r.SetTrustedProxies([]string{trustedProxyLoopbackIPv4, trustedProxyLoopbackIPv6}); err != nil {
		panic(err)
	}
	r.MaxMultipartMemory = 8 << 20
	r.Use(gin.Recovery())
	r.Use(a.loggingMiddleware())
	r.Use(a.corsMiddleware())
	a.registerRoutes(r)
	return r
}

func (a *App) registerRoutes(r *gin.Engine) {
	r.GET("/healthz", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})
	r.GET("/metrics", gin.WrapH(promhttp.Handler()))

	if disk, ok := a.objects.(*DiskObjectStore); ok {
		r.Static(diskUploadsURLPrefix, disk.Root)
	}

	api := r.Group("/api")
	{
		tours := api.Group("/tours")
		{
			tours.GET("", a.optionalAgentSession(), a.listToursHandler)
			tours.GET("/destinations", a.tourDestinationsHandler)
			tours.GET("/related", a.relatedToursHandler)
			tours.GET("/by-slug/:slug", a.optionalAgentSession(), a.tourBySlugHandler)
			tours.GET("/:id", a.optionalAgentSession(), a.getTourHandler)
			tours.GET("/:id/brochure.pdf", a.optionalAgentSession(), a.tourBrochureHandler)
			tours.POST("/create", a.requireAgentSession(), a.createTourHandler)
			tours.PUT("/:id", a.requireAgentSession(), a.updateTourHandler)
			tours.PATCH("/:id", a.requireAgentSession(), a.patchTourHandler)
			tours.DELETE("/:id", a.requireAgentSession(), a.deleteTourHandler)
		}

		auth := api.Group("/auth")
		{
			auth.POST("/login", a.loginHandler)
			auth.POST("/logout", a.logoutHandler)
			auth.GET("/session", a.requireAgentSession(), a.sessionHandler)
		}

		users := api.Group("/users")
		users.Use(a.requireAgentSession())
		{
			users.GET("", a.listUsersHandler)
			users.POST("/create", a.requireRole("admin"), a.createUserHandler)
			users.GET("/:id", a.getUserHandler)
			users.PUT("/:id", a.requireRole("admin"), a.updateUserHandler)
			users.DELETE("/:id", a.requireRole("admin"), a.deleteUserHandler)
		}

		api.POST("/contact", a.contactHandler)
		api.GET("/weather", a.weatherHandler)

		api.POST("/translations", a.translateHandler)
		api.GET("/translations", a.translationHistoryHandler)
		api.DELETE("/translations", a.requireAgentSession(), a.deleteTranslationHandler)

		api.GET("/debug", a.debugHandler)
	}
}

func (a *App) loggingMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		elapsed := time.Since(start)
		a.metrics.observeRequest(c.Request.Method, c.FullPath(), c.Writer.Status(), elapsed)
		a.log.Info("request",
			"method", c.Request.Method,
			"path", c.Request.URL.Path,
			"status", c.Writer.Status(),
			"duration_ms", elapsed.Milliseconds(),
			"ip", c.ClientIP(),
		)
	}
}

func (a *App) corsMiddleware() gin.HandlerFunc {
	return cors.New(cors.Config{
		AllowOriginFunc:  a.isAllowedCORSOrigin,
		AllowMethods:     []string{"GET", "POST", "PUT", "PATCH", "DELETE", "OPTIONS"},
		AllowHeaders:     []string{"Content-Type", "Authorization"},
		AllowCredentials: true,
		MaxAge:           12 * time.Hour,
	})
}

func (a *App) isAllowedCORSOrigin(origin string) bool {
	if origin == "" || a.cfg == nil {
		return false
	}
	if a.cfg.PublicBaseURL != "" && origin == a.cfg.PublicBaseURL {
		return true
	}
	if !strings.EqualFold(a.cfg.Env, "development") {
		return false
	}
	return origin == devCORSOriginLocalhost || origin == devCORSOriginLoopback
}

func writeAPIError(c *gin.Context, err error) {
	var apiErr *apiError
	if errors.As(err, &apiErr) {
		body := gin.H{"error": apiErr.Message}
		if apiErr.Details != "" {
			body["details"] = apiErr.Details
		}
		c.JSON(apiErr.Status, body)
		return
	}

	c.JSON(http.StatusInternalServerError, gin.H{"error": "Internal server error", "details": err.Error()})
}

func (a *App) debugHandler(c *gin.Context) {
	keys := []string{
		"MONGODB_URI", "MONGODB_DATABASE", "S3_BUCKET_NAME", "S3_REGION", "S3_ACCESS_KEY_ID",
		"S3_SECRET_ACCESS_KEY", "SNS_TOPIC_ARN", "SNS_REGION", "RESEND_API_KEY", "USE_AWS_TRANSLATE",
	}
	present := make(map[string]bool, len(keys))
	for _, key := range keys {
		present[key] = strings.TrimSpace(os.Getenv(key)) != ""
	}
	c.JSON(http.StatusOK, gin.H{
		"env":        a.cfg.Env,
		"storage":    a.cfg.StorageBackend,
		"dataRoot":   filepath.Clean(a.cfg.DataRoot),
		"notifier":   a.notifier.ProviderName(),
		"translator": a.translator.Name(),
		"variables":  present,
	})
}
