package main

import (
	"context"
	"net/http"
	"os"

	"github.com/gorilla/mux"
	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/telcoops/topup/internal/api"
	"github.com/telcoops/topup/internal/config"
	"github.com/telcoops/topup/internal/store"
)

func main() {
	zerolog.TimeFieldFormat = zerolog.TimeFormatUnix
	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr})

	if err := godotenv.Load(); err != nil {
		log.Warn().Msg(".env not found, using system environment")
	}

	cfg, err := config.Load()
	if err != nil {
		log.Fatal().Err(err).Msg("invalid configuration")
	}

	topupStore, err := store.NewStore(cfg.DBSource)
	if err != nil {
		log.Fatal().Err(err).Msg("unable to connect to database")
	}
	defer topupStore.Close()

	// Idempotent intake is best effort: without Redis the API still works,
	// retries just create duplicate PENDING requests.
	redisClient := redis.NewClient(&redis.Options{Addr: cfg.RedisAddr})
	if err := redisClient.Ping(context.Background()).Err(); err != nil {
		log.Warn().Err(err).Msg("redis unreachable, idempotent replay degraded")
	}
	cache := api.NewResponseCache(redisClient, log.Logger)

	handler := api.NewHandler(topupStore, log.Logger)

	r := mux.NewRouter()
	r.Handle("/metrics", promhttp.Handler())
	r.HandleFunc("/health", handler.HealthCheckHandler)

	apiV1 := r.PathPrefix("/api/v1").Subrouter()
	apiV1.Use(api.Idempotency(cache))
	apiV1.HandleFunc("/topups", handler.CreateTopupHandler).Methods("POST")
	apiV1.HandleFunc("/topups/{id}", handler.GetTopupHandler).Methods("GET")
	apiV1.HandleFunc("/wallets/{operator}", handler.GetWalletHandler).Methods("GET")

	log.Info().Str("port", cfg.Port).Msg("intake API starting")
	if err := http.ListenAndServe(":"+cfg.Port, r); err != nil {
		log.Fatal().Err(err).Msg("server stopped")
	}
}
