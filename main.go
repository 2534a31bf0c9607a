package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"flowwatch/cli"
	"flowwatch/config"
	"flowwatch/core"
	"flowwatch/database"
	"flowwatch/handlers"
	"flowwatch/service"
	"flowwatch/upstream"
	"flowwatch/version"

	"github.com/chzyer/readline"
	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/hashicorp/go-hclog"
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
)

const portScanRange = 100

func main() {
	var configPath string
	cfg := config.Default()

	rootCmd := &cobra.Command{
		Use:           "flowwatch",
		Short:         "n8n workflow error dashboard backend",
		Long:          "flowwatch collects n8n workflow errors through a webhook and serves them to the dashboard.",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			loaded, err := config.Load(configPath)
			if err != nil {
				return fmt.Errorf("failed to load config: %w", err)
			}
			if err := applyFlagOverrides(cmd, loaded); err != nil {
				return err
			}
			*cfg = *loaded
			return nil
		},
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServe(cfg)
		},
	}
	rootCmd.PersistentFlags().StringVar(&configPath, "config", "", "YAML config file (overrides FLOWWATCH_CONFIG)")
	cfg.BindFlags(rootCmd.PersistentFlags())

	rootCmd.AddCommand(newServeCommand(cfg))
	rootCmd.AddCommand(newCLICommand(cfg))
	rootCmd.AddCommand(newHashPasswordCommand())
	rootCmd.AddCommand(newVersionCommand())

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

// applyFlagOverrides re-applies flags given on the command line on top of
// the loaded config, so flags win over the file and the environment.
func applyFlagOverrides(cmd *cobra.Command, cfg *config.Config) error {
	fs := pflag.NewFlagSet("overrides", pflag.ContinueOnError)
	cfg.BindFlags(fs)

	var err error
	cmd.Flags().Visit(func(f *pflag.Flag) {
		if err != nil || fs.Lookup(f.Name) == nil {
			return
		}
		if setErr := fs.Set(f.Name, f.Value.String()); setErr != nil {
			err = fmt.Errorf("invalid --%s: %w", f.Name, setErr)
		}
	})
	return err
}

func newServeCommand(cfg *config.Config) *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP server (default)",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServe(cfg)
		},
	}
}

func runServe(cfg *config.Config) error {
	logger, logFile, err := setupLogging(cfg.LogLevel, cfg.LogFile)
	if err != nil {
		return fmt.Errorf("failed to set up logging: %w", err)
	}
	if logFile != nil {
		defer logFile.Close()
	}

	logger.Info("system starting up", "version", version.GetFullVersion())

	if !logger.IsDebug() {
		gin.SetMode(gin.ReleaseMode)
	}

	// Route gin's own output through the logger.
	ginOut := logger.Named("gin").StandardWriter(&hclog.StandardLoggerOptions{InferLevels: true})
	gin.DefaultWriter = ginOut
	gin.DefaultErrorWriter = ginOut
	gin.DisableConsoleColor()

	diag := core.NewDiagnostics(core.DefaultDiagnosticsCapacity, logger.Named("diagnostics"))

	db, err := database.Open(cfg, logger.Named("store"), diag)
	if err != nil {
		return fmt.Errorf("failed to initialize database: %w", err)
	}
	defer func() {
		if err := database.Close(db); err != nil {
			logger.Error("error closing database", "error", err)
		}
	}()

	svc := service.NewServices(db, cfg, logger, diag)

	transport := upstream.NewTransport(
		svc.Settings,
		cfg.OutboundProxyURL,
		time.Duration(cfg.UpstreamTimeoutSeconds)*time.Second,
		logger.Named("upstream"),
	)
	n8n := upstream.NewN8NClient(cfg.N8NBaseURL, cfg.N8NAPIKey, transport, logger.Named("n8n"))
	crm := upstream.NewCloseClient(cfg.CloseBaseURL, cfg.CloseAPIKey, transport, logger.Named("close"))

	if !n8n.Configured() {
		logger.Warn("n8n API not configured; workflow endpoints return empty results")
	}
	if !cfg.AuthEnabled() {
		logger.Warn("no operators configured; dashboard sign-in is disabled")
	}

	acl, err := core.NewSourceACL(cfg.WebhookAllowCIDRs, cfg.WebhookDenyCIDRs)
	if err != nil {
		return err
	}

	h := handlers.New(handlers.Deps{
		Config:    cfg,
		DB:        db,
		Services:  svc,
		N8N:       n8n,
		Close:     crm,
		Transport: transport,
		Logger:    logger.Named("http"),

		WebhookACL: acl,
	})

	r := gin.New()
	r.Use(handlers.RequestLogger(logger.Named("http")))
	r.Use(gin.Recovery())
	r.Use(cors.New(cors.Config{
		AllowOriginFunc:  func(string) bool { return true },
		AllowMethods:     []string{"GET", "POST", "PUT", "PATCH", "DELETE", "OPTIONS"},
		AllowHeaders:     []string{"Origin", "Content-Type", "Accept", "Authorization"},
		ExposeHeaders:    []string{"Content-Length"},
		AllowCredentials: true,
		MaxAge:           12 * time.Hour,
	}))
	h.Register(r)

	listener, port, err := core.ListenTCP("0.0.0.0", cfg.Port, portScanRange)
	if err != nil {
		return fmt.Errorf("failed to listen: %w", err)
	}
	if port != cfg.Port {
		logger.Warn("configured port is busy, switched", "configured", cfg.Port, "port", port)
	}

	srv := &http.Server{
		Handler:           r,
		ReadHeaderTimeout: 10 * time.Second,
	}

	serveErr := make(chan error, 1)
	go func() {
		logger.Info("server listening", "url", fmt.Sprintf("http://127.0.0.1:%d", port))
		if err := srv.Serve(listener); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serveErr <- err
		}
		close(serveErr)
	}()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	select {
	case <-ctx.Done():
		logger.Info("received interrupt signal")
	case err := <-serveErr:
		if err != nil {
			return fmt.Errorf("server failed: %w", err)
		}
	}

	logger.Info("system shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("server forced to shutdown", "error", err)
	}

	logger.Info("server exited")
	return nil
}

func newCLICommand(cfg *config.Config) *cobra.Command {
	var profile string

	cmd := &cobra.Command{
		Use:   "cli",
		Short: "Interactive console against a running server",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			profiles, err := cli.LoadConfig(cfg.CLIServer)
			if err != nil {
				fmt.Fprintf(os.Stderr, "Warning: server profiles unavailable: %v\n", err)
				profiles = nil
			}

			serverURL := cfg.CLIServer
			name := ""
			if profiles != nil && !cmd.Flags().Changed("server") {
				if s, err := profiles.GetServer(profile); err == nil {
					serverURL = s.URL
					name = profile
					if name == "" {
						name = profiles.DefaultServer
					}
				} else if profile != "" {
					return err
				}
			}

			fmt.Printf("flowwatch CLI - connecting to %s\n", serverURL)

			repl, err := cli.NewREPL(serverURL, name, profiles)
			if err != nil {
				fmt.Println("\nTips:")
				fmt.Println("  1. Make sure the flowwatch server is running:")
				fmt.Println("     ./flowwatch serve")
				fmt.Println("  2. Or specify a different server:")
				fmt.Println("     ./flowwatch cli --server http://your-server:3000")
				return err
			}
			repl.Start()
			return nil
		},
	}
	cmd.Flags().StringVar(&profile, "profile", "", "Saved server to connect to (default: the profile file's default)")
	return cmd
}

func newHashPasswordCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "hash-password [password]",
		Short: "Print a bcrypt hash for an operator entry",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			password := ""
			if len(args) == 1 {
				password = args[0]
			} else {
				rl, err := readline.NewEx(&readline.Config{})
				if err != nil {
					return err
				}
				line, err := rl.ReadPassword("Password: ")
				rl.Close()
				if err != nil {
					return err
				}
				password = string(line)
			}
			if strings.TrimSpace(password) == "" {
				return errors.New("password cannot be empty")
			}

			hash, err := handlers.HashPassword(password)
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), hash)
			return nil
		},
	}
}

func newVersionCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print build information",
		Args:  cobra.NoArgs,
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Fprintln(cmd.OutOrStdout(), version.GetBuildInfo())
		},
	}
}
