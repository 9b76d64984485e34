package main

import (
	"context"
	"log"
	"strings"

	api "plateping-backend/cmd/api"
	alertdomain "plateping-backend/internal/alert/domain"
	alertRepo "plateping-backend/internal/alert/repository"
	"plateping-backend/internal/alert/scheduler"
	alertUsecase "plateping-backend/internal/alert/usecase"
	authdomain "plateping-backend/internal/auth/domain"
	authRepo "plateping-backend/internal/auth/repository"
	authUsecase "plateping-backend/internal/auth/usecase"
	"plateping-backend/internal/notification"
	"plateping-backend/pkg/config"
	"plateping-backend/pkg/database"
	"plateping-backend/pkg/push"
)

func main() {
	// Load configuration
	cfg := config.Load()

	// Initialize database
	db, err := database.NewPostgresConnection(cfg)
	if err != nil {
		log.Fatal("Failed to connect to database:", err)
	}

	// Auto-migrate database schemas
	if err := db.AutoMigrate(&authdomain.User{}, &authdomain.RefreshToken{}, &authdomain.DeviceToken{},
		&alertdomain.PlateRegistration{}, &alertdomain.Alert{}, &alertdomain.AlertRecipient{},
		&alertdomain.UserStats{}); err != nil {
		log.Fatal("Failed to migrate database:", err)
	}

	// Initialize repositories (dependency injection)
	userRepository := authRepo.NewUserRepository(db)
	deviceTokenRepository := authRepo.NewDeviceTokenRepository(db)
	plateRepository := alertRepo.NewPlateRegistrationRepository(db)
	alertRepository := alertRepo.NewAlertRepository(db)
	statsRepository := alertRepo.NewUserStatsRepository(db)

	// Initialize use cases
	authUsecaseInstance := authUsecase.NewAuthUsecase(userRepository, deviceTokenRepository, cfg)
	alertUsecaseInstance := alertUsecase.NewAlertUsecase(alertRepository, plateRepository, statsRepository)

	// Initialize push delivery (optional, the API works without it)
	var dispatcher *notification.Dispatcher
	if cfg.FCMCredentialsFile != "" {
		creds, err := push.NewCredentials(cfg.FCMCredentialsFile, cfg.FCMTokenURI)
		if err != nil {
			log.Printf("[WARN] Failed to load push credentials (push delivery disabled): %v", err)
		} else {
			pushClient := push.NewClient(creds, cfg.FCMProjectID, cfg.FCMEndpoint, cfg.PushTimeout)
			dispatcher = notification.NewDispatcher(deviceTokenRepository, alertUsecaseInstance, pushClient,
				cfg.DispatchWorkers, cfg.DispatchRate, cfg.PushTimeout)
			log.Println("[FCM] Push dispatcher initialized")
		}
	} else {
		log.Println("[WARN] FCM_CREDENTIALS_FILE not configured, push delivery disabled")
	}

	// Start the escalation/expiry loop
	escalator := scheduler.NewEscalator(alertRepository, dispatcher, cfg.EscalatorInterval)
	escalator.Start()

	// Start the blockage-report event listener (optional)
	if cfg.GoogleProjectID != "" {
		topicName := cfg.ReportTopic
		if parts := strings.Split(topicName, "/"); len(parts) > 1 {
			topicName = parts[len(parts)-1]
		}

		listener, err := notification.NewReportListener(cfg.GoogleProjectID, topicName,
			cfg.GoogleCredentials, alertUsecaseInstance, dispatcher)
		if err != nil {
			log.Printf("[ERROR] Failed to initialize report listener: %v", err)
		} else {
			go listener.Start(context.Background())
		}
	} else {
		log.Println("[WARN] GOOGLE_PROJECT_ID not configured, report listener disabled")
	}

	// Initialize HTTP handler
	handler := api.NewHandler(authUsecaseInstance, alertUsecaseInstance, dispatcher, cfg)

	log.Printf("Server starting on port %s", cfg.Port)
	if err := handler.Start(":" + cfg.Port); err != nil {
		log.Fatal("Failed to start server:", err)
	}
}
