package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/joho/godotenv"
	"github.com/manzil-bh/manzil-backend/internal/auth"
	"github.com/manzil-bh/manzil-backend/internal/config"
	"github.com/manzil-bh/manzil-backend/internal/db"
	"github.com/manzil-bh/manzil-backend/internal/firmproperties"
	"github.com/manzil-bh/manzil-backend/internal/firmstats"
	"github.com/manzil-bh/manzil-backend/internal/geocoding"
	"github.com/manzil-bh/manzil-backend/internal/httputil"
	"github.com/manzil-bh/manzil-backend/internal/images"
	"github.com/manzil-bh/manzil-backend/internal/logging"
	"github.com/manzil-bh/manzil-backend/internal/marketplace"
	"github.com/manzil-bh/manzil-backend/internal/middleware"
	"github.com/manzil-bh/manzil-backend/internal/parcels"
	"github.com/manzil-bh/manzil-backend/internal/scheduler"
	"github.com/manzil-bh/manzil-backend/internal/search"
	"gorm.io/gorm"
)

func RootHandler(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "text/plain")
	_, _ = w.Write([]byte("Server is up!\n"))
}

// MapConfigHandler hands the front end its public map token.
func MapConfigHandler(token string) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		httputil.WriteJSON(w, http.StatusOK, map[string]string{"mapbox_token": token})
	}
}

func HealthHandler(d *gorm.DB) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
		defer cancel()
		if err := db.Ping(ctx, d); err != nil {
			httputil.WriteError(w, http.StatusServiceUnavailable, "database unavailable")
			return
		}
		httputil.WriteJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	}
}

// RunJobHandler runs a registered job synchronously for operators.
func RunJobHandler(sched *scheduler.Scheduler, name string) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if err := sched.RunNow(name); err != nil {
			httputil.Fail(w, r, err)
			return
		}
		httputil.WriteJSON(w, http.StatusOK, map[string]string{"job": name, "status": "done"})
	}
}

func main() {
	_ = godotenv.Load(".env.local")
	_ = godotenv.Load(".env")

	configPath := os.Getenv("CONFIG_FILE")
	if configPath == "" {
		configPath = "config.yaml"
	}
	cfg, err := config.Load(configPath)
	if err != nil {
		slog.Error("load config", logging.Err(err))
		os.Exit(1)
	}
	log := logging.New(logging.Options{Level: cfg.LogLevel, JSON: cfg.LogJSON})
	slog.SetDefault(log)
	if err := cfg.Validate(); err != nil {
		log.Error("invalid config", logging.Err(err))
		os.Exit(1)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg, log); err != nil {
		log.Error("server exited", logging.Err(err))
		os.Exit(1)
	}
}

func run(ctx context.Context, cfg *config.Config, log *slog.Logger) error {
	gdb, err := db.Connect(db.Options{DSN: cfg.DatabaseURL, Logger: log})
	if err != nil {
		return err
	}
	for _, initFn := range []func(*gorm.DB) error{auth.Init, firmproperties.Init, images.Init} {
		if err := initFn(gdb); err != nil {
			return err
		}
	}

	// auth
	tokens, err := auth.NewTokenService(cfg.JWTSecret, cfg.TokenTTL)
	if err != nil {
		return err
	}
	var mailer auth.Mailer = auth.LogMailer{Logger: log}
	if cfg.MailEnabled() {
		mailer = auth.NewSMTPMailer(cfg.SMTP.Host, cfg.SMTP.Port, cfg.SMTP.User, cfg.SMTP.Pass, cfg.SMTP.Sender)
	} else {
		log.Warn("SMTP not configured, one-time codes are only logged")
	}
	authStore := auth.NewGormStore(gdb)
	requireAuth := middleware.RequireAuth(tokens, authStore)
	authLimit := middleware.RateLimit(middleware.NewIPLimiter(cfg.RateLimit.AuthPerMinute, cfg.RateLimit.AuthBurst))

	// optional services; interfaces stay nil when disabled
	var geocoder firmproperties.Geocoder
	if c := geocoding.NewClient(cfg.GoogleMapsAPIKey); c != nil {
		geocoder = c
	}

	var (
		imgHandler  *images.Handler
		imgService  *images.Service
		purger      firmproperties.ImagePurger
		imageLister marketplace.ImageLister
		orphans     scheduler.OrphanPurger
	)
	if cfg.MediaEnabled() {
		objects, err := images.ConnectGridFS(ctx, cfg.Mongo.URI, cfg.Mongo.Database)
		if err != nil {
			return err
		}
		defer func() {
			closeCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			_ = objects.Close(closeCtx)
		}()
		imgService = images.NewService(images.NewGormStore(gdb), objects, cfg.PublicBaseURL, images.Limits{
			MaxFileBytes: cfg.Uploads.MaxFileBytes,
			MaxFiles:     cfg.Uploads.MaxFiles,
			AllowedTypes: cfg.Uploads.AllowedTypes,
		})
		imgHandler = images.NewHandler(imgService)
		purger, imageLister, orphans = imgService, imgService, imgService
	} else {
		log.Warn("MONGO_URI not set, image uploads disabled")
	}

	mpStore := marketplace.NewGormStore(gdb)
	var searcher marketplace.Searcher = search.Disabled{}
	var reindexer *search.Reindexer
	if cfg.SearchEnabled() {
		idx := search.NewMeiliIndex(cfg.Meili.Host, cfg.Meili.APIKey, cfg.Meili.Index)
		if err := idx.Bootstrap(); err != nil {
			log.Error("search bootstrap failed, continuing without search", logging.Err(err))
		} else {
			searcher = idx
			reindexer = search.NewReindexer(mpStore, idx, log)
		}
	}

	// routes
	r := chi.NewRouter()
	r.Use(chimw.RequestID, middleware.ClientIP(cfg.TrustProxy), logging.Middleware(log), chimw.Recoverer)
	r.Use(middleware.CORS(cfg.CORS.AllowedOrigins))

	r.Get("/", RootHandler)
	r.Get("/healthz", HealthHandler(gdb))
	r.Get("/config/map", MapConfigHandler(cfg.MapboxToken))

	r.Mount("/auth", auth.SetupRoutes(auth.NewHandler(authStore, tokens, mailer, cfg.CookieSecure), requireAuth, authLimit))

	fpHandler := firmproperties.NewHandler(firmproperties.NewGormStore(gdb), geocoder, purger)
	var extra []func(chi.Router)
	if imgHandler != nil {
		extra = append(extra, imgHandler.ListingRoutes)
		r.Mount("/media", images.MediaRoutes(imgHandler))
	}
	r.Mount("/firm-properties", firmproperties.SetupRoutes(fpHandler, requireAuth, extra...))

	r.Mount("/marketplace", marketplace.SetupRoutes(marketplace.NewHandler(mpStore, imageLister, searcher)))
	r.Mount("/coordinates", parcels.SetupRoutes(
		parcels.NewHandler(parcels.NewGormStore(gdb), cfg.Parcels.ExcludedZoning, cfg.Parcels.MaxFeatures), requireAuth))
	r.Mount("/firmSpecificData", firmstats.SetupRoutes(firmstats.NewHandler(firmstats.NewGormStore(gdb)), requireAuth))

	// periodic jobs
	sched := scheduler.New(log)
	if err := sched.Add(scheduler.PurgeJob(cfg.Scheduler.PurgeSpec, authStore, orphans, nil)); err != nil {
		return err
	}
	if reindexer != nil {
		if err := sched.Add(scheduler.ReindexJob(cfg.Scheduler.ReindexSpec, reindexer)); err != nil {
			return err
		}
		r.With(requireAuth, middleware.RequireRole("admin")).Post("/admin/reindex", RunJobHandler(sched, "search-reindex"))
	}
	if cfg.Scheduler.Enabled {
		sched.Start()
		defer sched.Stop()
		if reindexer != nil {
			go func() { _ = sched.RunNow("search-reindex") }()
		}
	}

	srv := &http.Server{
		Addr:              "0.0.0.0:" + cfg.Port,
		Handler:           r,
		ReadHeaderTimeout: 10 * time.Second,
	}
	errCh := make(chan error, 1)
	go func() {
		log.Info("server listening", "addr", srv.Addr)
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	case <-ctx.Done():
	}

	log.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	return srv.Shutdown(shutdownCtx)
}
