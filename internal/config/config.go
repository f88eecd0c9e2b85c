package config

import (
	"log"
	"os"
	"strconv"
	"time"
)

// Config holds application configuration
type Config struct {
	Port              string
	DBPath            string
	DisconnectGrace   time.Duration // how long a disconnected staff session survives
	LowAccuracyMeters float64       // low-confidence sample threshold
	SubscriberQueue   int           // per-supervisor event queue size
}

// Load reads configuration from environment variables with defaults
func Load() *Config {
	port := os.Getenv("PORT")
	if port == "" {
		port = ":8080"
	}

	dbPath := os.Getenv("DB_PATH")
	if dbPath == "" {
		dbPath = "./data/staff.db"
	}

	return &Config{
		Port:              port,
		DBPath:            dbPath,
		DisconnectGrace:   durationEnv("DISCONNECT_GRACE", 30*time.Second),
		LowAccuracyMeters: floatEnv("LOW_ACCURACY_M", 300),
		SubscriberQueue:   intEnv("SUBSCRIBER_QUEUE", 64),
	}
}

func durationEnv(key string, fallback time.Duration) time.Duration {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		log.Printf("Invalid %s=%q, using %v", key, v, fallback)
		return fallback
	}
	return d
}

func floatEnv(key string, fallback float64) float64 {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	f, err := strconv.ParseFloat(v, 64)
	if err != nil {
		log.Printf("Invalid %s=%q, using %v", key, v, fallback)
		return fallback
	}
	return f
}

func intEnv(key string, fallback int) int {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		log.Printf("Invalid %s=%q, using %v", key, v, fallback)
		return fallback
	}
	return n
}
