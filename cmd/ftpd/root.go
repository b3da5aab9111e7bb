package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"maps"
	"os"

	"github.com/jpillora/jplog"
	flag "github.com/spf13/pflag"

	"github.com/gonzalop/ftpd/internal/config"
	"github.com/gonzalop/ftpd/server"
)

// version is overridable at link time:
//
//	go build -ldflags "-X main.version=1.2.0"
var version = "0.1.0"

// execute parses args, builds the server and serves until ctx is done.
func execute(ctx context.Context, args []string) error {
	fs := flag.NewFlagSet("ftpd", flag.ContinueOnError)

	var (
		configPath string
		flagCfg    config.Config
		users      map[string]string
	)
	fs.StringVarP(&configPath, "config", "c", "", "YAML config file")

	registerFlags(fs, &flagCfg, &users)

	var showVersion, showHelp bool
	fs.BoolVar(&showVersion, "version", false, "Print version and exit")
	fs.BoolVarP(&showHelp, "help", "h", false, "Show this help")
	fs.Usage = func() { printUsage(fs) }

	if err := fs.Parse(args); err != nil {
		return err
	}
	if showHelp {
		printUsage(fs)
		return nil
	}
	if showVersion {
		fmt.Printf("ftpd %s\n", version)
		return nil
	}

	cfg, err := config.Load(configPath)
	if err != nil {
		return err
	}
	config.LoadFromEnv(cfg)
	applyFlags(fs, cfg, &flagCfg, users)

	if err := cfg.LoadUsers(); err != nil {
		return err
	}
	if err := cfg.Validate(); err != nil {
		return err
	}

	h := jplog.Handler(os.Stderr)
	if cfg.Verbose {
		h = h.Verbose()
	}
	logger := slog.New(h)

	srv, err := newServer(cfg, logger)
	if err != nil {
		return err
	}

	go func() {
		<-ctx.Done()
		logger.Info("shutting down")
		_ = srv.Shutdown()
	}()

	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, server.ErrServerClosed) {
		return err
	}
	return nil
}

// registerFlags binds the config flags to f and users.
func registerFlags(fs *flag.FlagSet, f *config.Config, users *map[string]string) {
	// ── listener ─────────────────────────────────────────────────────
	fs.StringVarP(&f.Listen, "listen", "l", config.DefaultListen, "Control connection address")
	fs.IntVar(&f.MaxConnections, "max-connections", 0, "Maximum simultaneous sessions (0 = unlimited)")

	// ── filesystem / accounts ────────────────────────────────────────
	fs.StringVarP(&f.Root, "root", "r", config.DefaultRoot, "Directory to serve")
	fs.StringToStringVarP(users, "user", "u", nil, "Account as name=password (repeatable)")
	fs.StringVar(&f.UsersFile, "users-file", "", "YAML file of name: password")

	// ── data connections ─────────────────────────────────────────────
	fs.StringVar(&f.PassivePorts, "passive-ports", "", "PASV port range as min-max")
	fs.StringVar(&f.PublicHost, "public-host", "", "Address advertised in PASV replies")
	fs.Int64Var(&f.BandwidthLimit, "bandwidth-limit", 0, "Per-transfer limit in bytes/s (0 = unlimited)")
	fs.DurationVar(&f.IdleTimeout, "idle-timeout", config.DefaultIdleTimeout, "Close idle control connections after")
	fs.DurationVar(&f.DataTimeout, "data-timeout", config.DefaultDataTimeout, "Wait this long for a data connection")

	// ── output ───────────────────────────────────────────────────────
	fs.StringVar(&f.Welcome, "welcome", "", "Greeting sent in the 220 reply")
	fs.BoolVarP(&f.Verbose, "verbose", "v", false, "Debug logging")
}

// applyFlags copies only the flags given on the command line over cfg, so
// defaults in the flag set never mask config file or environment values.
func applyFlags(fs *flag.FlagSet, cfg, f *config.Config, users map[string]string) {
	if fs.Changed("listen") {
		cfg.Listen = f.Listen
	}
	if fs.Changed("max-connections") {
		cfg.MaxConnections = f.MaxConnections
	}
	if fs.Changed("root") {
		cfg.Root = f.Root
	}
	if fs.Changed("users-file") {
		cfg.UsersFile = f.UsersFile
	}
	if fs.Changed("passive-ports") {
		cfg.PassivePorts = f.PassivePorts
	}
	if fs.Changed("public-host") {
		cfg.PublicHost = f.PublicHost
	}
	if fs.Changed("bandwidth-limit") {
		cfg.BandwidthLimit = f.BandwidthLimit
	}
	if fs.Changed("idle-timeout") {
		cfg.IdleTimeout = f.IdleTimeout
	}
	if fs.Changed("data-timeout") {
		cfg.DataTimeout = f.DataTimeout
	}
	if fs.Changed("welcome") {
		cfg.Welcome = f.Welcome
	}
	if fs.Changed("verbose") {
		cfg.Verbose = f.Verbose
	}
	if len(users) > 0 {
		if cfg.Users == nil {
			cfg.Users = make(map[string]string, len(users))
		}
		maps.Copy(cfg.Users, users)
	}
}

// newServer translates a validated Config into server options.
func newServer(cfg *config.Config, logger *slog.Logger) (*server.Server, error) {
	opts := []server.Option{
		server.WithRoot(cfg.Root),
		server.WithCredentials(server.NewCredentials(cfg.Users)),
		server.WithLogger(logger),
		server.WithMaxIdleTime(cfg.IdleTimeout),
		server.WithDataTimeout(cfg.DataTimeout),
		server.WithBandwidthLimit(cfg.BandwidthLimit),
		server.WithMaxConnections(cfg.MaxConnections),
	}
	if lo, hi, _ := cfg.PassiveRange(); lo > 0 {
		opts = append(opts, server.WithPassivePortRange(lo, hi))
	}
	if cfg.PublicHost != "" {
		opts = append(opts, server.WithPublicHost(cfg.PublicHost))
	}
	if cfg.Welcome != "" {
		opts = append(opts, server.WithWelcomeMessage(cfg.Welcome))
	}
	return server.NewServer(cfg.Listen, opts...)
}

func printUsage(fs *flag.FlagSet) {
	fmt.Fprintf(os.Stderr, `ftpd %s - FTP server

Usage:
  ftpd [flags]

Examples:
  ftpd -r /srv/ftp -u alice=secret
  ftpd -c /etc/ftpd.yaml --passive-ports 30000-30100

Flags:
%s
Environment:
  FTPD_LISTEN, FTPD_ROOT, FTPD_USERS_FILE, FTPD_PASSIVE_PORTS,
  FTPD_PUBLIC_HOST, FTPD_IDLE_TIMEOUT, FTPD_DATA_TIMEOUT,
  FTPD_BANDWIDTH_LIMIT, FTPD_MAX_CONNECTIONS, FTPD_WELCOME, FTPD_VERBOSE

Config file keys override defaults, environment overrides the file and
flags override everything.
`, version, fs.FlagUsages())
}
