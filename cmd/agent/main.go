package main

import (
	// Go Internal Packages
	"context"
	"log"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	// Local Packages
	config "termbridge/config"
	gateway "termbridge/gateway"
	metrics "termbridge/metrics"
	protocol "termbridge/protocol"

	// External Packages
	"github.com/alecthomas/kingpin/v2"
	"github.com/gin-gonic/gin"
	_ "github.com/jsternberg/zap-logfmt"
	"github.com/knadh/koanf"
	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/providers/rawbytes"
	"go.uber.org/zap"
)

// LoadSecrets Loads the environment overrides and updates the config
func LoadSecrets(k config.Config) config.Config {
	if v := os.Getenv("TERMINAL_IP"); v != "" {
		k.Terminal.IP = v
	}
	if v, err := strconv.Atoi(os.Getenv("TERMINAL_PORT")); err == nil {
		k.Terminal.Port = v
	}
	if v, err := strconv.Atoi(os.Getenv("TERMINAL_PORT_ALT")); err == nil {
		k.Terminal.AltPort = v
	}
	if v := os.Getenv("ECR_ID"); v != "" {
		k.Terminal.EcrID = v
	}
	if v, err := strconv.Atoi(os.Getenv("CONNECT_TIMEOUT_MS")); err == nil {
		k.Timeouts.ConnectMS = v
	}
	if v, err := strconv.Atoi(os.Getenv("READ_TIMEOUT_MS")); err == nil {
		k.Timeouts.ReadMS = v
	}
	if v, err := strconv.Atoi(os.Getenv("IDLE_BYTE_TIMEOUT_MS")); err == nil {
		k.Timeouts.IdleByteMS = v
	}
	if v, err := strconv.Atoi(os.Getenv("AGENT_HTTP_PORT")); err == nil {
		k.Agent.HTTPPort = v
	}

	IsProdMode := os.Getenv("IS_PROD_MODE")
	k.IsProdMode = IsProdMode == "true"
	return k
}

// LoadConfig loads the default configuration and overrides it with the config file
// specified by the path defined in the config flag
func LoadConfig() *koanf.Koanf {
	configPathMsg := "Path to the application config file"
	configPath := kingpin.Flag("config", configPathMsg).Short('c').Default("config.yml").String()

	kingpin.Parse()
	k := koanf.New(".")
	_ = k.Load(rawbytes.Provider(config.DefaultConfig), yaml.Parser())
	if *configPath != "" {
		_ = k.Load(file.Provider(*configPath), yaml.Parser())
	}
	return k
}

func main() {
	k := LoadConfig()
	appKonf := config.Config{}

	// Unmarshalling config into struct
	err := k.Unmarshal("", &appKonf)
	if err != nil {
		log.Fatalf("Error loading config: %v", err)
	}

	// Update and Validate config before starting the server
	updatedKonf := LoadSecrets(appKonf)
	if err = updatedKonf.Validate(); err != nil {
		log.Fatalf("Invalid configuration: %v", err)
	}

	if !updatedKonf.IsProdMode {
		k.Print()
	} else {
		gin.SetMode(gin.ReleaseMode)
	}

	cfg := zap.NewProductionConfig()
	cfg.Encoding = "logfmt"
	_ = cfg.Level.UnmarshalText([]byte(k.String("logger.level")))
	cfg.InitialFields = make(map[string]any)
	cfg.InitialFields["host"], _ = os.Hostname()
	cfg.InitialFields["service"] = "termbridge-agent"
	cfg.OutputPaths = []string{"stdout"}
	logger, _ := cfg.Build()
	defer func() {
		_ = logger.Sync()
	}()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	m := metrics.New("agent")
	engine := protocol.NewEngine(logger, m)
	defaults := gateway.NewDefaults(&updatedKonf)
	gw := gateway.New(logger, m, engine, defaults)

	server := &http.Server{
		Addr:    ":" + strconv.Itoa(updatedKonf.Agent.HTTPPort),
		Handler: gw.Router(),
	}

	serveErrs := make(chan error, 1)
	go func() {
		serveErrs <- server.ListenAndServe()
	}()
	logger.Info("gateway listening",
		zap.Int("port", updatedKonf.Agent.HTTPPort),
		zap.String("terminal", updatedKonf.Terminal.IP),
		zap.Int("terminalPort", updatedKonf.Terminal.Port))

	select {
	case err := <-serveErrs:
		logger.Fatal("cannot serve http", zap.Error(err))
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Warn("shutdown incomplete", zap.Error(err))
	}
	logger.Info("gateway stopped")
}
