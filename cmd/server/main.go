package main

import (
	"context"
	"encoding/json"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/viper"
	httpSwagger "github.com/swaggo/http-swagger"

	"github.com/walletverify/backend/docs"
	"github.com/walletverify/backend/internal/config"
	"github.com/walletverify/backend/internal/database"
	"github.com/walletverify/backend/internal/handlers"
	mW "github.com/walletverify/backend/internal/middleware"
	"github.com/walletverify/backend/internal/nlu"
	"github.com/walletverify/backend/internal/services"
)

// @title WalletVerify Backend API
// @version 1.0
// @description Conversational banking front-end: chat webhook, OTP verification and wallet transfers
// @host localhost:8080
// @BasePath /api/v1
// @schemes http https

func main() {
	// Initialize config
	viper.SetConfigFile(".env")
	viper.AutomaticEnv()

	viper.BindEnv("database.host", "DATABASE_HOST")
	viper.BindEnv("database.port", "DATABASE_PORT")
	viper.BindEnv("database.user", "DATABASE_USER")
	viper.BindEnv("database.password", "DATABASE_PASSWORD")
	viper.BindEnv("database.name", "DATABASE_NAME")
	viper.BindEnv("database.ssl_mode", "DATABASE_SSL_MODE")

	viper.BindEnv("redis.host", "REDIS_HOST")
	viper.BindEnv("redis.port", "REDIS_PORT")
	viper.BindEnv("redis.password", "REDIS_PASSWORD")
	viper.BindEnv("redis.db", "REDIS_DB")

	viper.BindEnv("jwt.secret_key", "JWT_SECRET_KEY")
	viper.BindEnv("twilio.auth_token", "TWILIO_AUTH_TOKEN")
	viper.BindEnv("webhook.public_url", "WEBHOOK_PUBLIC_URL")

	if err := viper.ReadInConfig(); err != nil {
		log.Printf("Config file not found, using defaults: %v", err)
	}

	// Initialize Swagger docs
	docs.SwaggerInfo.Title = "WalletVerify Backend API"
	docs.SwaggerInfo.Description = "Conversational banking front-end: chat webhook, OTP verification and wallet transfers"
	docs.SwaggerInfo.Version = "1.0"
	docs.SwaggerInfo.Host = "localhost:8080"
	docs.SwaggerInfo.BasePath = "/api/v1"
	docs.SwaggerInfo.Schemes = []string{"http", "https"}

	otpCfg := config.LoadOTPConfig()
	verifyCfg := config.LoadVerifyConfig()
	bankCfg := config.LoadBankConfig()

	db := database.InitDatabase()
	defer db.Close()

	redisClient := database.InitRedis()
	if redisClient != nil {
		defer redisClient.Close()
	}

	// Wire services
	limiter := services.NewRateLimiter()
	users := services.NewUserStore(db)
	requests := services.NewPendingRequestStore(db)
	lockout := services.NewLockoutPolicy(otpCfg)
	verifyProvider := services.NewVerifyProvider(verifyCfg, otpCfg, redisClient)
	bankService := services.NewBankService(db, bankCfg)
	parser := nlu.FromConfig(os.Getenv("NLU_PROVIDER"))
	tasks := services.NewTaskRunner(30 * time.Second)

	orchestrator := services.NewOrchestrator(db, limiter, users, requests,
		lockout, verifyProvider, bankService, parser, tasks, otpCfg)
	accountService := services.NewAccountService(users, bankService,
		verifyProvider, limiter, lockout, parser, otpCfg)
	iso20022Service := services.NewISO20022Service(bankService)
	voiceService := services.NewVoiceService(parser)
	defer voiceService.Close()

	qrService := services.NewQRService(redisClient)
	qrHandler := handlers.NewQRHandler(qrService)
	webhookHandler := handlers.NewWebhookHandler(orchestrator,
		viper.GetString("twilio.auth_token"), viper.GetString("webhook.public_url"))

	// Setup router
	r := chi.NewRouter()

	r.Use(mW.SecurityHeaders)
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	r.Use(middleware.RealIP)
	r.Use(middleware.Timeout(60 * time.Second))

	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   []string{"https://*", "http://*"},
		AllowedMethods:   []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type", "Access-Control-Allow-Origin"},
		ExposedHeaders:   []string{"Link"},
		AllowCredentials: true,
		MaxAge:           86400,
	}))

	// Health check
	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(map[string]string{"status": "healthy"})
	})

	// Prometheus metrics
	r.Handle("/metrics", promhttp.Handler())

	// Swagger documentation
	r.Get("/swagger/*", httpSwagger.Handler(
		httpSwagger.URL("http://localhost:8080/swagger/doc.json"),
	))

	// Channel webhook: authenticated by signature, not by JWT.
	r.Post("/webhook/whatsapp", webhookHandler.InboundMessage)

	// API routes
	r.Route("/api/v1", func(r chi.Router) {
		r.Group(func(r chi.Router) {
			r.Use(mW.AuthMiddleware)

			r.Post("/verify/send", accountService.SendVerification)
			r.Post("/verify/check", accountService.CheckVerification)

			r.Post("/nlu/parse", accountService.ParseMessage)
			r.Post("/voice/transcribe", voiceService.TranscribeAudio)

			r.Get("/accounts/{userId}/balance", accountService.GetBalance)

			r.Post("/transfers", accountService.CreateTransfer)
			r.Get("/transfers/{txId}", accountService.GetTransaction)
			r.Get("/transfers/{txId}/iso20022", iso20022Service.ExportTransaction)

			r.Post("/qr/generate", qrHandler.GeneratePaymentRequest)
			r.Post("/qr/resolve", qrHandler.ResolvePaymentRequest)
		})
	})

	port := os.Getenv("PORT")
	if port == "" {
		port = "8080"
	}

	server := &http.Server{
		Addr:         ":" + port,
		Handler:      r,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		log.Printf("Server starting on :%s", port)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("Server failed: %v", err)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Println("Server shutting down...")
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := server.Shutdown(ctx); err != nil {
		log.Fatal("Server forced to shutdown:", err)
	}

	// Let in-flight OTP deliveries and request executions finish.
	tasks.Wait()

	log.Println("Server stopped")
}
