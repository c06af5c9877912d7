package main

import (
	"context"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"hackabot/api"
	"hackabot/bot"
	"hackabot/config"
	"hackabot/db"
	"hackabot/logging"
	"hackabot/monitoring"
	"hackabot/telegram"
	"hackabot/worker"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/rs/zerolog/pkgerrors"
)

// Variables injected at build-time
var GitSHA = "0000000000"

func setupSignalHandler(cancel context.CancelFunc) {
	channel := make(chan os.Signal, 1)
	signal.Notify(channel, os.Interrupt, syscall.SIGTERM, syscall.SIGINT)

	go func() {
		<-channel
		log.Info().Msg("🚦 Received interrupt signal: shutting down...")
		cancel()

		// A second signal forces exit
		<-channel
		os.Exit(1)
	}()
}

func main() {
	const version = "1.0.0"

	var debug bool
	flag.BoolVar(&debug, "debug", false, "Specify to enable debug mode")
	flag.Parse()

	// Enable stack traces
	zerolog.ErrorStackMarshaler = pkgerrors.MarshalStack

	// Set-up logging
	if !debug {
		// If not debugging, log to file
		logf := logging.SetupLogFile("logs")
		defer logf.Close()

		log.Logger = log.Output(zerolog.ConsoleWriter{Out: logf, NoColor: true, TimeFormat: time.RFC822Z})
		gin.SetMode(gin.ReleaseMode)
	} else {
		// If debugging, output to console
		log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.RFC822Z})
		log.Logger = log.Logger.Level(zerolog.DebugLevel)
	}

	log.Info().Msgf("🤖 Hackabot %s (%s) started", version, GitSHA[0:7])

	// Load config
	conf := config.LoadConfig()

	// Open database
	database := &db.Database{}
	database.Open(conf.DbFolder)
	defer database.Close()

	// Outbound client
	client := telegram.NewClient(conf.Token, conf.WebhookUrl, conf.WebhookSecret, conf.InviteUrl)

	if err := client.VerifyWebhook(); err != nil {
		// Survivable: the daily re-verification retries, and a previously
		// registered webhook keeps delivering meanwhile
		log.Error().Err(err).Msg("Webhook verification failed at startup")
	}

	reporter := &monitoring.LogReporter{}

	session := &config.Session{
		Config:  conf,
		Version: fmt.Sprintf("%s (%s)", version, GitSHA[0:7]),
		Started: time.Now(),
		Debug:   debug,
	}

	inbound := &bot.Bot{
		Db:       database,
		Client:   client,
		Reporter: reporter,
		Config:   conf,
		Session:  session,
	}

	dispatcher := &worker.Worker{
		Db:       database,
		Client:   client,
		Reporter: reporter,
		Config:   conf,
		Verifier: client,
	}

	ctx, cancel := context.WithCancel(context.Background())
	setupSignalHandler(cancel)

	go func() {
		if err := dispatcher.Start(ctx); err != nil {
			log.Fatal().Err(err).Msg("Starting dispatcher failed")
		}
	}()

	server := &api.Server{Db: database, Bot: inbound, Config: conf}
	router := server.NewRouter()

	httpServer := &http.Server{Addr: conf.ListenAddr, Handler: router}

	go func() {
		<-ctx.Done()
		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer shutdownCancel()
		_ = httpServer.Shutdown(shutdownCtx)
	}()

	log.Info().Msgf("🌐 Listening on %s", conf.ListenAddr)

	if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		log.Fatal().Err(err).Msg("HTTP server failed")
	}

	log.Info().Msg("Server stopped")
}
