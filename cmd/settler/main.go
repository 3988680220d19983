package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	amqp "github.com/rabbitmq/amqp091-go"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/telcoops/topup/internal/broker"
	"github.com/telcoops/topup/internal/config"
	"github.com/telcoops/topup/internal/service"
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

	conn, err := amqp.DialConfig(cfg.AMQPUrl, amqp.Config{
		Properties: amqp.Table{"connection_name": "topup_settler"},
	})
	if err != nil {
		log.Fatal().Err(err).Msg("unable to connect to broker")
	}
	defer conn.Close()

	ch, err := conn.Channel()
	if err != nil {
		log.Fatal().Err(err).Msg("unable to open channel")
	}
	defer ch.Close()

	if err := broker.DeclareTopology(ch, cfg.Exchange, cfg.Queue, cfg.RoutingKey); err != nil {
		log.Fatal().Err(err).Msg("topology declaration failed")
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	notifyClose := ch.NotifyClose(make(chan *amqp.Error, 1))
	go func() {
		if err, ok := <-notifyClose; ok && err != nil {
			log.Error().Err(err).Msg("broker channel closed")
			os.Exit(1)
		}
	}()

	go func() {
		http.Handle("/metrics", promhttp.Handler())
		if err := http.ListenAndServe(":"+cfg.Port, nil); err != nil {
			log.Error().Err(err).Msg("metrics server stopped")
		}
	}()

	engine := service.NewEngine(topupStore, log.Logger)
	consumer := broker.NewConsumer(ch, cfg.Queue, cfg.SettlementWorkers, engine, log.Logger)

	if err := consumer.Run(ctx); err != nil {
		log.Fatal().Err(err).Msg("consumer stopped")
	}
	log.Info().Msg("settler shut down")
}
