package config

import (
	"log"
	"os"
	"strconv"
	"strings"

	"github.com/joho/godotenv"
)

var DebugMode = false

type Config struct {
	Pairs               []string `json:"pairs"`
	SnapshotDepthLimit  int      `json:"snapshot_depth_limit"`
	ProjectionDepth     int      `json:"projection_depth"`
	BinanceRestEndpoint string   `json:"binance_rest_endpoint"`
	BinanceWsEndpoint   string   `json:"binance_ws_endpoint"`
	Port                string   `json:"port"`
	MetricsPort         string   `json:"metrics_port"`
}

func Load() *Config {
	if err := godotenv.Load(); err != nil {
		log.Println("no .env file found, relying on process environment")
	}

	DebugMode = envOr("DEBUG_MODE", "false") == "true"

	return &Config{
		Pairs:               splitList(envOr("PAIRS", "btcusdt,ethusdt,bnbusdt")),
		SnapshotDepthLimit:  envIntOr("SNAPSHOT_DEPTH_LIMIT", 1000),
		ProjectionDepth:     envIntOr("PROJECTION_DEPTH", 10),
		BinanceRestEndpoint: envOr("BINANCE_REST_ENDPOINT", "https://api.binance.com"),
		BinanceWsEndpoint:   envOr("BINANCE_WS_ENDPOINT", "wss://stream.binance.com:9443/stream"),
		Port:                envOr("PORT", "3001"),
		MetricsPort:         envOr("METRICS_PORT", "8080"),
	}
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}

	return fallback
}

func envIntOr(key string, fallback int) int {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}

	n, err := strconv.Atoi(v)
	if err != nil {
		log.Printf("invalid value %q for %s, using %d", v, key, fallback)
		return fallback
	}

	return n
}

func splitList(s string) []string {
	parts := strings.Split(s, ",")
	result := make([]string, 0, len(parts))
	for _, p := range parts {
		p = strings.TrimSpace(p)
		if p != "" {
			result = append(result, p)
		}
	}

	return result
}
