package main

import (
	"context"
	"errors"
	"net/http"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"

	"schoolreg/internal/audit"
	"schoolreg/internal/auth"
	"schoolreg/internal/config"
	"schoolreg/internal/handler"
	"schoolreg/internal/httpmiddleware"
	"schoolreg/internal/logging"
	"schoolreg/internal/queue"
	"schoolreg/internal/store"
	"schoolreg/internal/students"
	"schoolreg/internal/uploads"
	"schoolreg/internal/users"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		logging.Fatal().Err(err).Msg("load config")
	}
	logging.Init(logging.Config{Level: cfg.LogLevel, Format: cfg.LogFormat})

	if cfg.Production() {
		gin.SetMode(gin.ReleaseMode)
	}

	if err := runHTTP(cfg); err != nil {
		logging.Fatal().Err(err).Msg("http server failed")
	}
}

func runHTTP(cfg config.App) error {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	db, err := store.NewDB(ctx, cfg.DatabaseURL)
	if err != nil {
		return err
	}
	defer func() { _ = db.Close() }()

	if err := db.Bootstrap(ctx); err != nil {
		return err
	}
	created, err := db.SeedAdmin(ctx, cfg.SeedAdminUsername, cfg.SeedAdminPassword)
	if err != nil {
		return err
	}
	if created {
		logging.Warn().Str("username", cfg.SeedAdminUsername).Msg("default admin created, change its password")
	}

	redisClient, err := store.NewRedis(cfg.RedisAddr)
	if err != nil {
		return err
	}
	defer func() { _ = redisClient.Close() }()

	auditRepo := audit.NewRepository(db.Client)

	// The memory backend drains in this process; the redis backend is drained by cmd/worker.
	var (
		q         queue.Queue
		mem       *queue.InMemory
		drainStop context.CancelFunc
		drainWG   sync.WaitGroup
	)
	if cfg.QueueBackend == "redis" {
		q = queue.NewRedisQueue(redisClient.Client, queue.DefaultRedisKey)
	} else {
		mem = queue.NewInMemory(cfg.AuditBufferSize)
		q = mem
		var drainCtx context.Context
		drainCtx, drainStop = context.WithCancel(context.Background())
		drainWG.Add(1)
		go func() {
			defer drainWG.Done()
			if err := audit.Drain(drainCtx, q, auditRepo); err != nil {
				logging.Error().Err(err).Msg("audit drain stopped")
			}
		}()
	}
	recorder := audit.NewRecorder(q, cfg.AuditBufferSize)

	var limitStore httpmiddleware.Store
	if cfg.RateLimitBackend == "redis" {
		limitStore = httpmiddleware.NewRedisStore(redisClient.Client)
	} else {
		ms := httpmiddleware.NewMemoryStore()
		go ms.Run(ctx, time.Minute)
		limitStore = ms
	}

	var (
		files     uploads.Store
		uploadDir string
	)
	if cfg.UploadBackend == "cloudinary" {
		files = uploads.NewCloudinaryStore(uploads.CloudinaryConfig{
			CloudName: cfg.CloudinaryCloudName,
			APIKey:    cfg.CloudinaryAPIKey,
			APISecret: cfg.CloudinaryAPISecret,
			Folder:    cfg.CloudinaryFolder,
		})
		logging.Info().Str("cloud", cfg.CloudinaryCloudName).Msg("uploads stored in cloudinary")
	} else {
		local, err := uploads.NewLocalStore(cfg.UploadDir)
		if err != nil {
			return err
		}
		files, uploadDir = local, cfg.UploadDir
	}

	userRepo := users.NewRepository(db.Client)
	authSvc := auth.NewService(userRepo, auditRepo, recorder, auth.Options{
		Issuer:     cfg.JWTIssuer,
		SigningKey: cfg.JWTSigningKey,
		TokenTTL:   cfg.TokenTTL,
		Threshold:  cfg.FailedLoginThreshold,
		Window:     cfg.FailedLoginWindow,
	})

	h := handler.New(handler.Deps{
		Auth:     authSvc,
		Users:    userRepo,
		Students: students.NewRepository(db.Client),
		Audit:    auditRepo,
		Recorder: recorder,
		Files:    files,
		Health: map[string]handler.HealthCheck{
			"db":    db.Healthy,
			"redis": redisClient.Healthy,
		},
	}, handler.Options{
		UploadDir:      uploadDir,
		MaxUploadBytes: cfg.MaxUploadBytes,
		SchoolName:     cfg.SchoolName,
		CORSOrigins:    cfg.CORSOrigins,
		Production:     cfg.Production(),
	})

	srv := &http.Server{
		Addr:              ":" + cfg.HTTPPort,
		Handler:           handler.NewRouter(h, httpmiddleware.NewLimiter(limitStore)),
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       60 * time.Second,
		WriteTimeout:      60 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logging.Info().Str("port", cfg.HTTPPort).Str("env", cfg.Env).Msg("starting server")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}
	logging.Info().Msg("shutting down server")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logging.Error().Err(err).Msg("server forced shutdown")
	}

	// No request can record anymore: flush the recorder, then close the queue so the sink
	// stores what is left and returns.
	recorder.Close()
	if mem != nil {
		mem.Close()
		drained := make(chan struct{})
		go func() {
			drainWG.Wait()
			close(drained)
		}()
		select {
		case <-drained:
		case <-shutdownCtx.Done():
			logging.Warn().Msg("audit sink still busy at shutdown deadline")
			drainStop()
			<-drained
		}
		drainStop()
	}

	logging.Info().Msg("server exited")
	return nil
}
