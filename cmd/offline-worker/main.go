package main

import (
	"context"
	"flag"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"

	offlineworker "github.com/offline-worker/offline-worker"
	"github.com/offline-worker/offline-worker/cache"
	clienthub "github.com/offline-worker/offline-worker/pkg/client-hub"

	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

var (
	// CLI flags
	configFilenameFlag string
	portFlag           int
	originFlag         string
	hostFlag           string
	providerFlag       string
	dbFilenameFlag     string
	cacheVersionFlag   string
	verbosityTraceFlag bool
	logFilenameFlag    string

	// this is set by goreleaser
	version string
)

func init() {
	flag.StringVar(&configFilenameFlag, "config", "", "Path to config file")
	flag.StringVar(&originFlag, "origin", "", "Origin URL to serve offline (overrides config)")
	flag.StringVar(&hostFlag, "host", "", "Hostname of origin")
	flag.IntVar(&portFlag, "port", 8080, "Port to listen on")
	flag.StringVar(&providerFlag, "provider", "sqlite", "Caching provider to use")
	flag.StringVar(&dbFilenameFlag, "db", "cache.db", "Cache DB file name (use 'memory' for in-memory db)")
	flag.StringVar(&cacheVersionFlag, "cache-version", "", "Cache generation version token (overrides config)")
	flag.BoolVar(&verbosityTraceFlag, "vv", false, "Verbosity: trace logging")
	flag.StringVar(&logFilenameFlag, "log-file", "", "Log file to use (in addition to stdout)")

	if version == "" {
		version = "DEV"
	}
}

// overrideConfig applies CLI flags on top of the file config.
// Any flag passed on the command line wins over the config file;
// built-in flag defaults only fill fields the config leaves unset.
func overrideConfig(config *Config, setFlags map[string]bool) {
	if originFlag != "" {
		config.Origin = originFlag
	}
	if hostFlag != "" {
		config.OriginHost = hostFlag
	}
	if cacheVersionFlag != "" {
		config.CacheVersion = cacheVersionFlag
	}
	if setFlags["port"] || config.Port <= 0 {
		config.Port = portFlag
	}
	if setFlags["provider"] || config.Provider == "" {
		config.Provider = providerFlag
	}
	if setFlags["db"] || config.DBFile == "" {
		config.DBFile = dbFilenameFlag
	}
}

func main() {
	flag.Parse()

	// set log level
	logLevel := zerolog.DebugLevel
	if verbosityTraceFlag {
		logLevel = zerolog.TraceLevel
	}

	// set up log output to stdout
	// also output to logfile if specified
	logOutputs := make([]io.Writer, 0)
	logOutputs = append(logOutputs, zerolog.ConsoleWriter{Out: os.Stdout})
	if logFilenameFlag != "" {
		if logFileOutput, err := os.OpenFile(logFilenameFlag, os.O_APPEND|os.O_WRONLY|os.O_CREATE, 0644); err != nil {
			log.Fatal().Err(err).Msg("Cannot open log file")
		} else {
			logOutputs = append(logOutputs, logFileOutput)
		}
	}
	multiWriter := zerolog.MultiLevelWriter(logOutputs...)
	log.Logger = log.Level(logLevel).Output(multiWriter).
		With().Str("version", version).Logger()

	var config Config
	if configFilenameFlag != "" {
		var err error
		config, err = getConfig(configFilenameFlag)
		if err != nil {
			log.Fatal().Err(err).Msg("Could not read config file")
		}
	}

	setFlags := make(map[string]bool)
	flag.Visit(func(f *flag.Flag) { setFlags[f.Name] = true })
	overrideConfig(&config, setFlags)

	if config.Origin == "" {
		log.Fatal().Msg("Please specify origin")
	}
	originURL, err := url.Parse(config.Origin)
	if err != nil {
		log.Fatal().Err(err).Msg("Could not parse origin url")
	}

	// use configured provider, bail if none matches
	var provider cache.CacheProvider
	switch config.Provider {
	case "sqlite":
		dbFilename := config.DBFile
		if dbFilename == "memory" {
			dbFilename = "file::memory:?cache=shared"
		}
		provider = cache.NewSQLiteCache(dbFilename)
	case "memory":
		provider = cache.NewMemCache()
	default:
		log.Fatal().Msgf("Unsupported cache provider: %s", config.Provider)
	}

	worker := offlineworker.CreateWorker(offlineworker.Config{
		Cache:                  provider,
		OriginURL:              *originURL,
		OriginHost:             config.OriginHost,
		Logger:                 &log.Logger,
		CacheVersion:           config.CacheVersion,
		CoreAssets:             config.CoreAssets,
		ExtraAssets:            config.ExtraAssets,
		NavigationNetworkFirst: config.NavigationNetworkFirst,
	})
	hub := clienthub.NewHub(log.Logger, worker.ClearUpdates)
	worker.AttachHub(hub)

	// install must complete before activation, and activation before
	// any traffic is served
	ctx := context.Background()
	if err := worker.Install(ctx); err != nil {
		log.Fatal().Err(err).Msg("Install failed")
	}
	if err := worker.Activate(ctx); err != nil {
		log.Fatal().Err(err).Msg("Activation failed")
	}

	r := chi.NewRouter()
	r.Get("/ws", hub.ServeHTTP)
	r.Handle("/*", worker)

	log.Info().Msgf("Serving port %v for origin %s", config.Port, originURL.String())
	if err := http.ListenAndServe(fmt.Sprintf(":%d", config.Port), r); err != nil {
		panic(err)
	}
}
