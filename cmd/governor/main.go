// Command governor runs the scraping resilience governor.
//
// Usage:
//
//	governor run   --config phoenix.yaml [--every 30m]
//	governor serve --config phoenix.yaml [--addr :8085]
//	governor mcp   --config phoenix.yaml
//	governor hubs  --config phoenix.yaml
//	governor discover "Jane Doe" "Acme"
//
// Secrets come from the environment: PHOENIX_ENCRYPTION_KEY,
// PHOENIX_GEMINI_API_KEY, PHOENIX_FINGERPRINT_API_KEY,
// PHOENIX_PROXYCURL_API_KEY, PHOENIX_PHANTOMBUSTER_API_KEY,
// PHOENIX_REDIS_PASSWORD.
package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/modelcontextprotocol/go-sdk/mcp"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/Sm36384/Phoenix/governor"
	"github.com/Sm36384/Phoenix/observability"
)

// Version is set at build time.
var Version = "dev"

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := newRootCmd().ExecuteContext(ctx); err != nil {
		fmt.Fprintln(os.Stderr, "governor:", err)
		os.Exit(1)
	}
}

// app is the state shared by subcommands once PersistentPreRunE has run.
type app struct {
	v      *viper.Viper
	cfg    *governor.Config
	logger *slog.Logger
	closer io.Closer
}

func newApp() *app {
	v := viper.New()
	v.SetEnvPrefix("PHOENIX")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_", "-", "_"))
	v.AutomaticEnv()
	return &app{v: v}
}

func newRootCmd() *cobra.Command {
	a := newApp()

	root := &cobra.Command{
		Use:           "governor",
		Short:         "Adaptive scraping resilience governor",
		Version:       Version,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			return a.load()
		},
		PersistentPostRunE: func(*cobra.Command, []string) error {
			if a.closer != nil {
				return a.closer.Close()
			}
			return nil
		},
	}

	pf := root.PersistentFlags()
	pf.String("config", "phoenix.yaml", "path to the YAML config file")
	pf.String("log-level", "", "log level: debug, info, warn, error")
	pf.String("log-file", "", "also write logs to this rotated file")
	a.v.BindPFlag("config", pf.Lookup("config"))
	a.v.BindPFlag("log.level", pf.Lookup("log-level"))
	a.v.BindPFlag("log.file", pf.Lookup("log-file"))

	root.AddCommand(a.runCmd(), a.serveCmd(), a.mcpCmd(), a.hubsCmd(), a.discoverCmd())
	return root
}

// load reads the config file, overlays flags and environment, and builds
// the logger.
func (a *app) load() error {
	path := a.v.GetString("config")
	cfg := &governor.Config{}
	if _, err := os.Stat(path); err == nil {
		if cfg, err = governor.LoadConfig(path); err != nil {
			return err
		}
	} else if a.v.IsSet("config") && !errors.Is(err, os.ErrNotExist) {
		return err
	}

	if lvl := a.v.GetString("log.level"); lvl != "" {
		cfg.Log.Level = lvl
	}
	if f := a.v.GetString("log.file"); f != "" {
		cfg.Log.File = f
	}
	if db := a.v.GetString("db_path"); db != "" {
		cfg.DBPath = db
	}

	cfg.Vault.Secret = a.v.GetString("encryption_key")
	cfg.Heal.APIKey = a.v.GetString("gemini_api_key")
	cfg.BotScore.APIKey = a.v.GetString("fingerprint_api_key")
	cfg.Enrich.Proxycurl.APIKey = a.v.GetString("proxycurl_api_key")
	cfg.Enrich.PhantomBuster.APIKey = a.v.GetString("phantombuster_api_key")
	if id := a.v.GetString("phantombuster_agent_id"); id != "" {
		cfg.Enrich.PhantomBuster.AgentID = id
	}
	cfg.Enrich.Redis.Password = a.v.GetString("redis_password")

	a.cfg = cfg
	a.logger, a.closer = observability.NewLogger(cfg.Log)
	slog.SetDefault(a.logger)
	return nil
}

func (a *app) open() (*governor.Governor, error) {
	return governor.New(a.cfg, governor.Deps{Logger: a.logger})
}

func (a *app) runCmd() *cobra.Command {
	var every time.Duration
	cmd := &cobra.Command{
		Use:   "run",
		Short: "Run every configured job once, or every --every",
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx := cmd.Context()
			g, err := a.open()
			if err != nil {
				return err
			}
			defer g.Close()

			for {
				reports, err := g.RunCycle(ctx, a.cfg.Jobs)
				if err != nil && ctx.Err() == nil {
					return err
				}
				if err := printJSON(cmd.OutOrStdout(), reports); err != nil {
					return err
				}
				if err := g.Maintain(ctx); err != nil {
					a.logger.Warn("governor: maintenance failed", "error", err)
				}
				if every <= 0 {
					return nil
				}
				select {
				case <-ctx.Done():
					return nil
				case <-time.After(every):
				}
			}
		},
	}
	cmd.Flags().DurationVar(&every, "every", 0, "repeat the cycle at this interval (0 = once)")
	return cmd
}

func (a *app) serveCmd() *cobra.Command {
	var addr string
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve the JSON status feed",
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx := cmd.Context()
			g, err := a.open()
			if err != nil {
				return err
			}
			defer g.Close()

			if f := a.cfg.HubsFile; f != "" {
				if err := g.Hubs().Load(f); err != nil {
					return err
				}
				go func() {
					if err := g.Hubs().Watch(ctx, f); err != nil {
						a.logger.Error("governor: hubs watcher", "error", err)
					}
				}()
			}

			if addr == "" {
				addr = a.cfg.Listen
			}
			srv := &http.Server{Addr: addr, Handler: g.Handler(), ReadHeaderTimeout: 10 * time.Second}
			go func() {
				<-ctx.Done()
				shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
				defer cancel()
				srv.Shutdown(shutdownCtx)
			}()

			a.logger.Info("governor: serving", "addr", addr)
			if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				return err
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&addr, "addr", "", "listen address (default from config)")
	return cmd
}

func (a *app) mcpCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "mcp",
		Short: "Serve the governor tools over MCP on stdio",
		RunE: func(cmd *cobra.Command, _ []string) error {
			g, err := a.open()
			if err != nil {
				return err
			}
			defer g.Close()

			srv := mcp.NewServer(&mcp.Implementation{Name: "phoenix-governor", Version: Version}, nil)
			g.RegisterMCP(srv)
			return srv.Run(cmd.Context(), &mcp.StdioTransport{})
		},
	}
}

func (a *app) hubsCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "hubs",
		Short: "Show each hub's local hour and business window state",
		RunE: func(cmd *cobra.Command, _ []string) error {
			g, err := a.open()
			if err != nil {
				return err
			}
			defer g.Close()
			return printJSON(cmd.OutOrStdout(), g.HubStatus())
		},
	}
}

func (a *app) discoverCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "discover NAME [COMPANY]",
		Short: "Resolve a profile URL through the enrichment providers",
		Args:  cobra.RangeArgs(1, 2),
		RunE: func(cmd *cobra.Command, args []string) error {
			g, err := a.open()
			if err != nil {
				return err
			}
			defer g.Close()

			company := ""
			if len(args) == 2 {
				company = args[1]
			}
			res, err := g.Discover(cmd.Context(), args[0], company)
			if err != nil {
				return err
			}
			return printJSON(cmd.OutOrStdout(), res)
		},
	}
}

func printJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
