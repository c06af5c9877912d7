package config

import (
	"bufio"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/joho/godotenv"
	"github.com/rs/zerolog/log"
)

type Config struct {
	Token           string // Telegram bot API token
	WebhookUrl      string // Public URL Telegram delivers updates to
	WebhookSecret   string // Shared secret echoed back in the secret-token header
	ListenAddr      string // Webhook server bind address
	Owner           int64  // Bot owner's Telegram id: may use /admin
	GlobalChatId    int64  // The network-wide chat: weekly summaries go here
	PhotoUploadChat int64  // Chat whose photo uploads are ingested
	InviteUrl       string // Invite link for the global chat
	NetworkUrl      string // Public website, referenced in bot copy
	BioMaxLength    int    // Deployment-specific bio limit
	PhotoRetention  int    // Photos kept by the daily cleanup sweep
	DbFolder        string
	Mutex           sync.Mutex `json:"-"`
}

// Session is a superstruct to simplify passing around other structs
type Session struct {
	Config  *Config
	Version string
	Started time.Time
	Debug   bool
}

func DumpConfig(config *Config) {
	// Dumps config to disk
	jsonbytes, err := json.MarshalIndent(config, "", "\t")

	if err != nil {
		log.Error().Err(err).Msg("Error marshaling config json")
	}

	wd, _ := os.Getwd()
	configf := filepath.Join(wd, "config", "bot-config.json")

	file, err := os.Create(configf)

	if err != nil {
		log.Fatal().Err(err).Msg("Error creating config file")
	}

	// Write, close
	_, err = file.Write(jsonbytes)
	if err != nil {
		log.Error().Err(err).Msg("Error writing config to disk")
	}

	file.Close()
}

/* Loads the config, returns a pointer to it */
func LoadConfig() *Config {
	// A .env in the working directory may override tokens and secrets
	_ = godotenv.Load()

	// Get config file's path relative to working dir
	wd, _ := os.Getwd()
	configPath := filepath.Join(wd, "config")
	if _, err := os.Stat(configPath); os.IsNotExist(err) {
		_ = os.Mkdir(configPath, os.ModePerm)
	}

	configf := filepath.Join(configPath, "bot-config.json")
	if _, err := os.Stat(configf); os.IsNotExist(err) {
		// Config doesn't exist: create
		fmt.Print("Enter bot token: ")

		reader := bufio.NewReader(os.Stdin)
		inp, _ := reader.ReadString('\n')
		botToken := strings.TrimSuffix(inp, "\n")

		config := defaults()
		config.Token = botToken

		fmt.Println("Success! Starting bot...")

		go DumpConfig(config)
		return applyEnvOverrides(config)
	}

	// Config exists: load
	fbytes, err := os.ReadFile(configf)
	if err != nil {
		log.Fatal().Err(err).Msg("Error reading config file")
	}

	// New config struct
	config := defaults()

	// Unmarshal into our config struct
	err = json.Unmarshal(fbytes, config)
	if err != nil {
		log.Fatal().Err(err).Msg("Error unmarshaling config json")
	}

	return applyEnvOverrides(config)
}

func defaults() *Config {
	return &Config{
		ListenAddr:     ":8080",
		BioMaxLength:   140,
		PhotoRetention: 500,
		DbFolder:       "data",
	}
}

func applyEnvOverrides(config *Config) *Config {
	if v := os.Getenv("TELEGRAM_BOT_TOKEN"); v != "" {
		config.Token = v
	}

	if v := os.Getenv("TELEGRAM_WEBHOOK_URL"); v != "" {
		config.WebhookUrl = v
	}

	if v := os.Getenv("TELEGRAM_WEBHOOK_SECRET"); v != "" {
		config.WebhookSecret = v
	}

	if v := os.Getenv("GLOBAL_CHAT_ID"); v != "" {
		id, err := strconv.ParseInt(v, 10, 64)
		if err == nil {
			config.GlobalChatId = id
		}
	}

	return config
}
