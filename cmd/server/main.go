package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/bdarnell/tornado-tracing/internal/infrastructure/config"
	"github.com/bdarnell/tornado-tracing/internal/infrastructure/server"
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}

// newRootCmd builds the server command. Flags override the environment
// only when set explicitly.
func newRootCmd() *cobra.Command {
	var (
		port           string
		host           string
		memcache       []string
		cacheBackend   string
		redisAddr      string
		enableAppstats bool
		optionsFile    string
		mountPrefix    string
		dev            bool
	)

	cmd := &cobra.Command{
		Use:          "server",
		Short:        "Demo server with appstats request tracing",
		SilenceUsage: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load()
			if err != nil {
				return err
			}

			flags := cmd.Flags()
			if flags.Changed("port") {
				cfg.Server.Port = port
			}
			if flags.Changed("host") {
				cfg.Server.Host = host
			}
			if flags.Changed("memcache") {
				cfg.Cache.MemcacheServers = memcache
			}
			if flags.Changed("cache-backend") {
				cfg.Cache.Backend = cacheBackend
			}
			if flags.Changed("redis") {
				cfg.Cache.RedisAddr = redisAddr
			}
			if flags.Changed("enable-appstats") {
				cfg.Appstats.Enabled = enableAppstats
			}
			if flags.Changed("appstats-options-file") {
				cfg.Appstats.OptionsFile = optionsFile
			}
			if flags.Changed("appstats-mount") {
				cfg.Appstats.MountPrefix = mountPrefix
			}
			if flags.Changed("dev") {
				cfg.Logging.Development = dev
			}
			if err := cfg.Validate(); err != nil {
				return err
			}

			return run(cfg)
		},
	}

	flags := cmd.Flags()
	flags.StringVar(&port, "port", "8888", "Server port")
	flags.StringVar(&host, "host", "0.0.0.0", "Listen address")
	flags.StringSliceVar(&memcache, "memcache", []string{"localhost:11211"}, "Memcache servers (host:port, comma separated)")
	flags.StringVar(&cacheBackend, "cache-backend", config.BackendMemcache, "Record store: memcache, redis or memory")
	flags.StringVar(&redisAddr, "redis", "localhost:6379", "Redis address for the redis backend")
	flags.BoolVar(&enableAppstats, "enable-appstats", false, "Record requests with appstats")
	flags.StringVar(&optionsFile, "appstats-options-file", "", "YAML or TOML file of appstats options")
	flags.StringVar(&mountPrefix, "appstats-mount", "/appstats", "URL prefix of the appstats UI")
	flags.BoolVar(&dev, "dev", false, "Development mode (console logs, debug level)")

	cmd.AddCommand(newVersionCmd())
	return cmd
}

func newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print the version",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Fprintln(cmd.OutOrStdout(), "tornado-tracing", version)
		},
	}
}

var version = "dev"

func run(cfg *config.Config) error {
	srv, err := server.NewServer(cfg, nil)
	if err != nil {
		return fmt.Errorf("failed to create server: %w", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	runErr := srv.Run(ctx)
	closeErr := srv.Close()
	if runErr != nil {
		return runErr
	}
	return closeErr
}
