package main

import (
	"log"

	"github.com/joho/godotenv"

	"github.com/fieldtrack/geofence-backend-go/internal/api"
	"github.com/fieldtrack/geofence-backend-go/internal/config"
	"github.com/fieldtrack/geofence-backend-go/internal/database"
	"github.com/fieldtrack/geofence-backend-go/internal/handler"
	"github.com/fieldtrack/geofence-backend-go/internal/relay"
	"github.com/fieldtrack/geofence-backend-go/internal/repository"
	"github.com/fieldtrack/geofence-backend-go/internal/service"
)

func main() {
	// .env is optional; real deployments set the environment directly
	_ = godotenv.Load()

	cfg := config.Load()

	db, err := database.Open(database.Config{Path: cfg.DBPath})
	if err != nil {
		log.Fatal("Failed to open database:", err)
	}
	defer db.Close()

	if err := database.Migrate(db); err != nil {
		log.Fatal("Failed to run migrations:", err)
	}

	staffRepo := repository.NewStaffRepository(db)

	liveRelay := relay.New(staffRepo, relay.Options{
		DisconnectGrace:   cfg.DisconnectGrace,
		QueueLimit:        cfg.SubscriberQueue,
		LowAccuracyMeters: cfg.LowAccuracyMeters,
	})
	defer liveRelay.Close()

	staffService := service.NewStaffService(staffRepo, liveRelay)

	wsHandler := handler.NewWSHandler(liveRelay)
	defer wsHandler.Close()

	router := api.SetupRouter(handler.NewStaffHandler(staffService), wsHandler)

	log.Printf("Server starting on port %s", cfg.Port)
	if err := router.Run(cfg.Port); err != nil {
		log.Fatal("Failed to start server:", err)
	}
}
