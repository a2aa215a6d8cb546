package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"datasync-service/internal/config"
	"datasync-service/internal/email"
	"datasync-service/internal/fcm"
	"datasync-service/internal/middleware"
	"datasync-service/internal/pipeline"
	"datasync-service/internal/source"
	"datasync-service/internal/sse"
	"datasync-service/internal/storage"
	"datasync-service/internal/store"
	datasync "datasync-service/internal/sync"
	"datasync-service/internal/transport/http"

	firebase "firebase.google.com/go/v4"
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/cors"
	"github.com/gofiber/fiber/v2/middleware/logger"
	"github.com/gofiber/fiber/v2/middleware/recover"
	"google.golang.org/api/option"
)

var startTime time.Time

func main() {
	startTime = time.Now()
	cfg := config.Load()
	log.Printf("🔧 Service expected token: %s", middleware.MaskToken(cfg.ServiceExpectedToken))

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Firebase backs the Firestore store and push notifications
	var firebaseApp *firebase.App
	if cfg.FirebaseCredentialsJSON != "" || cfg.StoreBackend == "firestore" {
		app, err := newFirebaseApp(ctx, cfg)
		if err != nil {
			log.Fatalf("❌ [FIREBASE] Failed to initialize app: %v", err)
		}
		firebaseApp = app
		log.Println("✅ [FIREBASE] App initialized")
	}

	st, err := openStore(ctx, cfg, firebaseApp)
	if err != nil {
		log.Fatalf("❌ [STORE] Failed to open %s store: %v", cfg.StoreBackend, err)
	}
	defer st.Close()
	log.Printf("✅ [STORE] Using %s backend", cfg.StoreBackend)

	var notifier datasync.Notifier
	if firebaseApp != nil && cfg.FirebaseCredentialsJSON != "" {
		client, err := fcm.NewFCMClient(ctx, firebaseApp)
		if err != nil {
			log.Fatalf("❌ Failed to initialize FCM: %v", err)
		}
		notifier = client
		log.Println("✅ FCM client initialized")
	} else {
		log.Println("⚠️ FCM disabled (no FIREBASE_CREDENTIALS_JSON)")
	}

	var publisher http.ReportPublisher
	if cfg.R2Enabled() {
		r2Client, err := storage.NewR2Client(ctx, storage.R2Config{
			AccountID:       cfg.R2AccountID,
			AccessKeyID:     cfg.R2AccessKeyID,
			AccessKeySecret: cfg.R2AccessKeySecret,
			BucketName:      cfg.R2BucketName,
			PublicURL:       cfg.R2PublicURL,
		})
		if err != nil {
			log.Fatalf("❌ [R2] Failed to initialize client: %v", err)
		}
		publisher = r2Client
		log.Println("✅ [R2] Report storage initialized")
	} else {
		log.Println("⚠️ [R2] Report publishing disabled (R2_* not set)")
	}

	var mailer http.ReportMailer
	if cfg.SMTPEnabled() {
		mailer = email.NewSender(cfg)
		log.Println("✅ [SMTP] Report e-mail enabled")
	} else {
		log.Println("⚠️ [SMTP] Report e-mail disabled (SMTP_HOST/SMTP_FROM not set)")
	}

	broker := sse.NewBroker()
	syncService := datasync.NewService(st, source.NewHTTPClient(cfg.HTTPTimeout), broker, notifier, datasync.Options{
		SurveyDomain:     cfg.SurveyDomain,
		SurveyBaseURL:    cfg.SurveyBaseURL,
		ProxyBase:        cfg.CORSProxyURL,
		MaxBodySize:      cfg.MaxDownloadBytes,
		SurveyMaxPerForm: cfg.SurveyMaxPerForm,
		Limits: pipeline.Limits{
			Generic: cfg.BatchLimitGeneric,
			Survey:  cfg.BatchLimitSurvey,
			Excel:   cfg.BatchLimitExcel,
		},
	})
	handler := http.NewHandler(syncService, broker, publisher, mailer)
	log.Println("✅ [SERVICE] SyncService & Handler initialized")

	go syncService.StartScheduler(ctx, cfg.SyncInterval)

	app := fiber.New(fiber.Config{
		AppName:      "datasync-service",
		ErrorHandler: customErrorHandler,
	})

	app.Use(recover.New())

	app.Use(cors.New(cors.Config{
		AllowOrigins:     cfg.AllowedOrigins,
		AllowMethods:     "GET,POST,PUT,DELETE,OPTIONS,PATCH,HEAD",
		AllowHeaders:     "Origin,Content-Type,Accept,Authorization,X-Requested-With,X-Device-ID,X-User-ID,X-Service-Token,Cache-Control",
		ExposeHeaders:    "Content-Type,Content-Disposition",
		AllowCredentials: true,
		MaxAge:           86400,
	}))

	app.Use(logger.New(logger.Config{
		Format: "${time} | ${status} | ${latency} | ${ip} | ${method} | ${path} | ${ua}\n",
	}))

	// 1. Account routes (via Gateway)
	handler.Register(app.Group("/v2", middleware.GatewayAuth()))
	log.Println("✅ [ROUTES] Registered account routes: /v2/*")

	// 2. Service-to-service routes
	handler.RegisterService(app.Group("/svc/v1", middleware.ServiceAuth(cfg.ServiceExpectedToken)))
	log.Println("✅ [ROUTES] Registered service routes: /svc/v1/sync/:account_id")

	app.Get("/health", func(c *fiber.Ctx) error {
		uptime := time.Since(startTime).Round(time.Second)
		return c.JSON(fiber.Map{
			"status":        "ok",
			"service":       "datasync-service",
			"uptime":        uptime.String(),
			"timestamp":     time.Now().UTC().Format(time.RFC3339),
			"store":         cfg.StoreBackend,
			"fcm_enabled":   notifier != nil,
			"r2_enabled":    publisher != nil,
			"smtp_enabled":  mailer != nil,
			"sse_clients":   broker.GetTotalClientCount(),
			"sync_interval": cfg.SyncInterval.String(),
		})
	})
	log.Println("✅ [ROUTES] Registered /health")

	sig := make(chan os.Signal, 1)
	signal.Notify(sig, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		<-sig
		log.Println("🛑 [SHUTDOWN] Graceful shutdown initiated...")
		cancel()
		if err := app.ShutdownWithTimeout(10 * time.Second); err != nil {
			log.Printf("❌ [SHUTDOWN] Error: %v", err)
		}
	}()

	log.Printf("🚀 datasync-service starting...")
	log.Printf("   🔗 Listening on port: %s", cfg.ServerPort)
	log.Printf("   🌐 CORS allowed origins: %s", cfg.AllowedOrigins)
	log.Printf("   🔀 Relay proxy: %q", cfg.CORSProxyURL)
	log.Printf("   📋 Survey domain: %s", cfg.SurveyDomain)
	log.Println("✅ Server ready.")

	if err := app.Listen(":" + cfg.ServerPort); err != nil {
		log.Fatalf("❌ [STARTUP] Server failed to start: %v", err)
	}
}

func newFirebaseApp(ctx context.Context, cfg *config.Config) (*firebase.App, error) {
	var opts []option.ClientOption
	if cfg.FirebaseCredentialsJSON != "" {
		opts = append(opts, option.WithCredentialsJSON([]byte(cfg.FirebaseCredentialsJSON)))
	}
	var fbConfig *firebase.Config
	if cfg.FirebaseProjectID != "" {
		fbConfig = &firebase.Config{ProjectID: cfg.FirebaseProjectID}
	}
	return firebase.NewApp(ctx, fbConfig, opts...)
}

func openStore(ctx context.Context, cfg *config.Config, app *firebase.App) (store.Store, error) {
	switch cfg.StoreBackend {
	case "postgres":
		return store.OpenPostgres(cfg)
	case "memory":
		log.Println("⚠️ [STORE] In-memory backend: data is lost on restart")
		return store.NewMemoryStore(), nil
	default:
		return store.NewFirestoreStore(ctx, app)
	}
}

func customErrorHandler(c *fiber.Ctx, err error) error {
	code := fiber.StatusInternalServerError
	var errMsg string
	if e, ok := err.(*fiber.Error); ok {
		code = e.Code
		errMsg = e.Message
	} else {
		errMsg = err.Error()
	}
	log.Printf("🔥 [ERROR] [%d] %s %s → %v | IP=%s | UA=%s",
		code,
		c.Method(),
		c.Path(),
		errMsg,
		c.IP(),
		c.Get("User-Agent"),
	)
	return c.Status(code).JSON(fiber.Map{
		"error":      "something went wrong",
		"request_id": c.Get("X-Request-ID"),
	})
}
