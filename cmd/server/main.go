package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/rs/zerolog/log"

	"dbella/pos/internal/cache"
	"dbella/pos/internal/config"
	"dbella/pos/internal/httpapi"
	"dbella/pos/internal/logging"
	"dbella/pos/internal/media"
	"dbella/pos/internal/metrics"
	"dbella/pos/internal/service"
	"dbella/pos/internal/store"
	"dbella/pos/internal/store/memory"
	pgstore "dbella/pos/internal/store/postgres"
	"dbella/pos/internal/telemetry"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "load config: %v\n", err)
		os.Exit(1)
	}
	logging.Setup(cfg.Env, cfg.LogLevel)
	if err := validateSecurityConfig(cfg); err != nil {
		log.Fatal().Err(err).Msg("invalid security configuration")
	}

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Second)
	defer cancel()

	closers := make([]func() error, 0, 3)

	shutdownTracing, err := telemetry.Init(ctx, cfg.OTLPEndpoint, cfg.ServiceName)
	if err != nil {
		log.Fatal().Err(err).Msg("init tracing")
	}

	var repo store.Repository
	if cfg.DatabaseURL != "" {
		pg, err := pgstore.New(ctx, cfg.DatabaseURL, cfg.DBMaxOpenConns)
		if err != nil {
			log.Fatal().Err(err).Msg("postgres unavailable and DATABASE_URL is set; refusing to start with in-memory fallback")
		}
		if err := pg.Migrate(ctx); err != nil {
			log.Fatal().Err(err).Msg("apply migrations")
		}
		repo = pg
		closers = append(closers, pg.Close)
		log.Info().Msg("repository: postgres")
	} else {
		repo = memory.NewSeeded(seedUsers(cfg))
		log.Info().Msg("repository: in-memory")
	}

	dashboardCache := cache.DashboardCache(cache.NewMemoryDashboardCache())
	if cfg.RedisAddr != "" {
		redisCache := cache.NewRedisDashboardCache(cfg.RedisAddr, cfg.RedisPassword, cfg.RedisDB)
		if err := redisCache.Ping(ctx); err != nil {
			log.Warn().Err(err).Msg("redis unavailable, using in-process cache")
		} else {
			dashboardCache = redisCache
			closers = append(closers, redisCache.Close)
			log.Info().Msg("cache: redis")
		}
	} else {
		log.Info().Msg("cache: in-process")
	}

	mediaStore, mediaDir, err := newMediaStore(cfg)
	if err != nil {
		log.Fatal().Err(err).Msg("media store")
	}

	loc, err := time.LoadLocation(cfg.Timezone)
	if err != nil {
		log.Warn().Err(err).Str("timezone", cfg.Timezone).Msg("unknown timezone, using UTC")
		loc = time.UTC
	}

	m := metrics.New()
	svc := service.New(repo, service.Options{
		Cache:        dashboardCache,
		DashboardTTL: time.Duration(cfg.DashboardTTLSeconds) * time.Second,
		Media:        mediaStore,
		Metrics:      m,
		Location:     loc,
	})
	auth := httpapi.NewAuthManager(cfg.AuthSecret, time.Duration(cfg.AccessTokenTTLMinutes)*time.Minute, repo)
	if err := auth.EnsureSeedAdmin(ctx, cfg.SeedAdminEmail, cfg.SeedAdminPassword); err != nil {
		log.Fatal().Err(err).Msg("seed admin")
	}
	api := httpapi.New(svc, auth, httpapi.Options{
		AllowedOrigin: cfg.AllowedOrigin,
		AllowSignUp:   cfg.AllowSignUp,
		Metrics:       m,
		MediaDir:      mediaDir,
	})

	server := &http.Server{
		Addr:              cfg.Address(),
		Handler:           api.Handler(),
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       15 * time.Second,
		WriteTimeout:      30 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	go func() {
		log.Info().Str("addr", cfg.Address()).Msg("D'Bella POS backend listening")
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatal().Err(err).Msg("server error")
		}
	}()

	sig := make(chan os.Signal, 1)
	signal.Notify(sig, syscall.SIGINT, syscall.SIGTERM)
	<-sig

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 8*time.Second)
	defer shutdownCancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("shutdown error")
	}
	if err := shutdownTracing(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("tracing shutdown error")
	}
	for _, closeFn := range closers {
		if err := closeFn(); err != nil {
			log.Error().Err(err).Msg("close error")
		}
	}

	log.Info().Msg("server stopped")
}

// newMediaStore returns the configured image store and, for the local
// driver, the directory to serve under /media/.
func newMediaStore(cfg config.Config) (media.Store, string, error) {
	switch strings.ToLower(strings.TrimSpace(cfg.MediaDriver)) {
	case "bucket":
		if cfg.MediaBucketURL == "" || cfg.MediaBucketName == "" {
			return nil, "", errors.New("MEDIA_BUCKET_URL and MEDIA_BUCKET_NAME are required for the bucket driver")
		}
		log.Info().Str("bucket", cfg.MediaBucketName).Msg("media: bucket")
		return media.NewBucketStore(cfg.MediaBucketURL, cfg.MediaBucketName, cfg.MediaBucketKey), "", nil
	case "", "local":
		local, err := media.NewLocalStore(cfg.MediaLocalDir, cfg.MediaPublicURL)
		if err != nil {
			return nil, "", fmt.Errorf("create %s: %w", cfg.MediaLocalDir, err)
		}
		log.Info().Str("dir", local.Dir()).Msg("media: local")
		return local, local.Dir(), nil
	case "none":
		return nil, "", nil
	}
	return nil, "", fmt.Errorf("unknown MEDIA_DRIVER %q", cfg.MediaDriver)
}

func seedUsers(cfg config.Config) memory.SeedUsers {
	return memory.SeedUsers{
		AdminEmail:      cfg.SeedAdminEmail,
		AdminPassword:   cfg.SeedAdminPassword,
		ManagerPassword: cfg.SeedManagerPassword,
		SellerPassword:  cfg.SeedSellerPassword,
	}
}

func validateSecurityConfig(cfg config.Config) error {
	if len(cfg.AuthSecret) < 32 {
		return fmt.Errorf("AUTH_SECRET must be set and at least 32 characters")
	}
	for _, seed := range []struct {
		key      string
		password string
	}{
		{"SEED_ADMIN_PASSWORD", cfg.SeedAdminPassword},
		{"SEED_MANAGER_PASSWORD", cfg.SeedManagerPassword},
		{"SEED_SELLER_PASSWORD", cfg.SeedSellerPassword},
	} {
		if seed.password == "" {
			continue
		}
		if len(seed.password) < 8 {
			return fmt.Errorf("%s must be at least 8 characters", seed.key)
		}
		if err := validatePasswordStrength(seed.password); err != nil {
			return fmt.Errorf("%s is too weak: %w", seed.key, err)
		}
	}
	// The in-memory store seeds demo accounts; outside development they
	// must not carry the built-in passwords.
	if cfg.DatabaseURL == "" && !cfg.IsDevelopment() && seedUsers(cfg).UsesDefaults() {
		return fmt.Errorf("in-memory store outside development requires SEED_ADMIN_PASSWORD, SEED_MANAGER_PASSWORD and SEED_SELLER_PASSWORD")
	}
	return nil
}

// validatePasswordStrength rejects passwords that repeat one character, run
// in sequence (ascending or descending), or appear in a known-weak list.
func validatePasswordStrength(password string) error {
	known := map[string]bool{
		"12345678": true, "123456789": true, "87654321": true, "password": true,
		"password1": true, "qwertyui": true, "admin123": true, "dbella123": true,
		"11111111": true, "00000000": true,
	}
	if known[strings.ToLower(password)] {
		return fmt.Errorf("common password not allowed")
	}

	allSame := true
	for i := 1; i < len(password); i++ {
		if password[i] != password[0] {
			allSame = false
			break
		}
	}
	if allSame {
		return fmt.Errorf("single-character password not allowed")
	}

	ascending, descending := true, true
	for i := 1; i < len(password); i++ {
		diff := int(password[i]) - int(password[i-1])
		if diff != 1 {
			ascending = false
		}
		if diff != -1 {
			descending = false
		}
	}
	if ascending || descending {
		return fmt.Errorf("sequential password not allowed")
	}
	return nil
}
