package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	flag "github.com/spf13/pflag"

	"github.com/zurustar/chitko/internal/config"
	"github.com/zurustar/chitko/internal/logging"
	"github.com/zurustar/chitko/internal/server"
)

const appName = "chitko"

// version is set at build time with -ldflags "-X main.version=...".
var version = "dev"

type options struct {
	verbose    bool
	host       string
	port       int
	logFile    string
	configFile string
}

func parseFlags(args []string) (*options, *flag.FlagSet, error) {
	opts := &options{}
	fs := flag.NewFlagSet(appName, flag.ContinueOnError)
	fs.BoolVarP(&opts.verbose, "verbose", "v", false, "Log at debug level")
	fs.StringVarP(&opts.host, "host", "H", config.DefaultHost, "Address to bind")
	fs.IntVarP(&opts.port, "port", "p", config.DefaultPort, "TCP port to listen on")
	fs.StringVarP(&opts.logFile, "log-file-path", "l", config.DefaultLogFile, "Log file path (strftime patterns allowed)")
	fs.StringVarP(&opts.configFile, "config", "c", "", "Optional YAML configuration file")
	if err := fs.Parse(args); err != nil {
		return nil, nil, err
	}
	return opts, fs, nil
}

// buildConfig loads the optional config file and applies the flags the user
// set explicitly on top of it.
func buildConfig(opts *options, fs *flag.FlagSet) (*config.Config, error) {
	cfg := config.GetDefaultConfig()
	if opts.configFile != "" {
		loaded, err := config.NewManager().Load(opts.configFile)
		if err != nil {
			return nil, err
		}
		cfg = loaded
	}

	if opts.verbose {
		cfg.Logging.Level = "debug"
	}
	if fs.Changed("host") {
		cfg.Server.Host = opts.host
	}
	if fs.Changed("port") {
		cfg.Server.Port = opts.port
	}
	if fs.Changed("log-file-path") {
		cfg.Logging.File = opts.logFile
	}

	if err := config.NewManager().Validate(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

func run(args []string) error {
	opts, fs, err := parseFlags(args)
	if err != nil {
		return err
	}
	cfg, err := buildConfig(opts, fs)
	if err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}

	logger, err := logging.NewLoggerFromConfig(logging.LoggerConfig{
		Level:      cfg.Logging.Level,
		File:       cfg.Logging.File,
		MaxSizeMB:  cfg.Logging.MaxSizeMB,
		MaxBackups: cfg.Logging.MaxBackups,
	})
	if err != nil {
		return fmt.Errorf("failed to initialize logger: %w", err)
	}
	defer logger.Close()

	logger.Info("Starting server",
		logging.StringField("name", appName),
		logging.StringField("version", version),
		logging.AddressField("address", cfg.Address()))

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	sipServer := server.NewSIPServer(server.WithConfig(cfg), server.WithLogger(logger))
	if err := sipServer.Run(ctx); err != nil {
		logger.Error("Server error", logging.ErrorField(err))
		return err
	}
	return nil
}

func main() {
	if err := run(os.Args[1:]); err != nil {
		if errors.Is(err, flag.ErrHelp) {
			return
		}
		fmt.Fprintf(os.Stderr, "%s: %v\n", appName, err)
		os.Exit(1)
	}
}
