package main

import (
	// Go Internal Packages
	"context"
	"errors"
	"log"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	// Local Packages
	config "termbridge/config"
	emulator "termbridge/emulator"
	metrics "termbridge/metrics"
	filestore "termbridge/repositories/filestore"
	dispatch "termbridge/services/dispatch"

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
	if v, err := strconv.Atoi(os.Getenv("EMULATOR_PORT")); err == nil {
		k.Emulator.Port = v
	}
	if v, err := strconv.Atoi(os.Getenv("EMULATOR_ADMIN_PORT")); err == nil {
		k.Emulator.AdminPort = v
	}
	if v := os.Getenv("EMULATOR_DATA_FILE"); v != "" {
		k.Emulator.DataFile = v
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
	cfg.InitialFields["service"] = "termbridge-emulator"
	cfg.OutputPaths = []string{"stdout"}
	logger, _ := cfg.Build()
	defer func() {
		_ = logger.Sync()
	}()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	m := metrics.New("emulator")
	store, err := filestore.Open(updatedKonf.Emulator.DataFile, logger, m)
	if err != nil {
		logger.Fatal("cannot open data file", zap.Error(err))
	}

	delays := dispatch.Delays{
		Min: time.Duration(updatedKonf.Emulator.MinDelayMS) * time.Millisecond,
		Max: time.Duration(updatedKonf.Emulator.MaxDelayMS) * time.Millisecond,
	}
	processor := dispatch.NewProcessor(logger, store, m, delays)

	server := emulator.NewServer(logger, processor, m)
	if err := server.Start(updatedKonf.Emulator.Port); err != nil {
		logger.Fatal("cannot start terminal listener", zap.Error(err))
	}

	admin := &http.Server{
		Addr:    ":" + strconv.Itoa(updatedKonf.Emulator.AdminPort),
		Handler: emulator.AdminRouter(logger, m, store),
	}
	adminErrs := make(chan error, 1)
	go func() {
		adminErrs <- admin.ListenAndServe()
	}()
	logger.Info("emulator ready",
		zap.Int("port", updatedKonf.Emulator.Port),
		zap.Int("adminPort", updatedKonf.Emulator.AdminPort),
		zap.String("dataFile", updatedKonf.Emulator.DataFile))

	select {
	case err := <-adminErrs:
		if !errors.Is(err, http.ErrServerClosed) {
			logger.Fatal("cannot serve admin http", zap.Error(err))
		}
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	_ = admin.Shutdown(shutdownCtx)
	server.Stop()
	store.Close()
	logger.Info("emulator stopped")
}
