package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"go.uber.org/zap"

	"streamline/internal/app"
	"streamline/internal/config"
	"streamline/internal/domain"
	"streamline/internal/engine"
	"streamline/internal/logging"
	"streamline/internal/server"
)

var rootCmd = &cobra.Command{
	Use:   "streamline",
	Short: "Streamline CLI",
	Long: `Streamline tracks deadline work items ("streams") for community guilds.
- Stream: a subject owned by a member with a due date picked from a fixed set of day counts.
- Guard: repeated or rapid submissions are rejected before they reach the store.
- Reminder: once a day owners of streams due tomorrow get a nudge.
- Retention: completed streams are removed after the retention window.
- Event log: every mutation is recorded, view with 'streamline events'.`,
	SilenceUsage: true,
}

func main() {
	cobra.OnInitialize(initConfig)
	addPersistentFlags()
	registerCommands()
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	if err := rootCmd.ExecuteContext(ctx); err != nil {
		fmt.Println("error:", err)
		os.Exit(1)
	}
}

func initConfig() {
	viper.SetEnvPrefix("STREAMLINE")
	viper.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	viper.AutomaticEnv()
}

func addPersistentFlags() {
	rootCmd.PersistentFlags().StringP("workspace", "w", ".", "workspace directory")
	rootCmd.PersistentFlags().String("config", "", "config file (default <workspace>/streamline.yml)")
	rootCmd.PersistentFlags().String("db", "", "database path override")
	rootCmd.PersistentFlags().Bool("json", false, "output JSON")
	rootCmd.PersistentFlags().String("actor-id", "local-user", "actor identifier")
	rootCmd.PersistentFlags().StringP("guild", "g", "", "guild id (scope)")
	for _, name := range []string{"workspace", "config", "db", "json", "actor-id", "guild"} {
		_ = viper.BindPFlag(name, rootCmd.PersistentFlags().Lookup(name))
	}
}

func registerCommands() {
	rootCmd.AddCommand(streamCmd())
	rootCmd.AddCommand(sweepCmd())
	rootCmd.AddCommand(remindCmd())
	rootCmd.AddCommand(eventsCmd())
	rootCmd.AddCommand(configCmd())
	rootCmd.AddCommand(tokenCmd())
	rootCmd.AddCommand(serveCmd())
}

func streamCmd() *cobra.Command {
	st := &cobra.Command{Use: "stream", Short: "Manage streams"}
	st.AddCommand(streamCreateCmd())
	st.AddCommand(streamListCmd())
	st.AddCommand(streamShowCmd())
	st.AddCommand(streamCompleteCmd())
	st.AddCommand(streamWipeCmd())
	return st
}

func streamCreateCmd() *cobra.Command {
	var in engine.CreateInput
	cmd := &cobra.Command{
		Use:   "create",
		Short: "Register a stream",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd.Context(), func(ctx context.Context, a *app.App) error {
				scope, err := requireGuild()
				if err != nil {
					return err
				}
				in.Scope = scope
				in.CallerID = viper.GetString("actor-id")
				if !cmd.Flags().Changed("days") {
					in.DueInDays = a.Config.Streams.DefaultDueDays
				}
				s, err := a.Engine.Create(ctx, in)
				if err != nil {
					return err
				}
				return printJSONOrTable(engine.View(s, time.Now()))
			})
		},
	}
	cmd.Flags().StringVar(&in.Subject, "subject", "", "item being streamed")
	cmd.Flags().StringVar(&in.OwnerID, "owner-id", "", "owner (defaults to --actor-id)")
	cmd.Flags().StringVar(&in.SponsorID, "sponsor-id", "", "sponsor to credit")
	cmd.Flags().IntVar(&in.DueInDays, "days", 0, "days until due")
	cmd.Flags().StringVar(&in.Category, "category", "", "category")
	cmd.Flags().StringVar(&in.Link, "link", "", "reference link")
	_ = cmd.MarkFlagRequired("subject")
	return cmd
}

func streamListCmd() *cobra.Command {
	var status, owner string
	var byDue bool
	var limit int
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List streams",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd.Context(), func(ctx context.Context, a *app.App) error {
				scope, err := requireGuild()
				if err != nil {
					return err
				}
				items, err := a.Engine.List(ctx, engine.ListFilter{
					Scope:      scope,
					Status:     domain.Status(status),
					OwnerID:    owner,
					OrderByDue: byDue,
					Limit:      limit,
				})
				if err != nil {
					return err
				}
				if viper.GetBool("json") {
					return printJSON(items)
				}
				tw := table.NewWriter()
				tw.SetOutputMirror(os.Stdout)
				tw.AppendHeader(table.Row{"ID", "Subject", "Owner", "Due", "Days", "Badge"})
				for _, v := range items {
					tw.AppendRow(table.Row{v.PublicID, v.Subject, v.OwnerID, v.DueAt.Format("2006-01-02 15:04"), v.DaysRemaining, v.Badge})
				}
				tw.Render()
				return nil
			})
		},
	}
	cmd.Flags().StringVar(&status, "status", "", "status filter (active|completed)")
	cmd.Flags().StringVar(&owner, "owner-id", "", "owner filter")
	cmd.Flags().BoolVar(&byDue, "by-due", false, "order by due date")
	cmd.Flags().IntVar(&limit, "limit", 0, "max rows")
	return cmd
}

func streamShowCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "show <public-id>",
		Short: "Show a stream",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd.Context(), func(ctx context.Context, a *app.App) error {
				scope, err := requireGuild()
				if err != nil {
					return err
				}
				v, err := a.Engine.Get(ctx, scope, args[0])
				if err != nil {
					return err
				}
				return printJSONOrTable(v)
			})
		},
	}
	return cmd
}

func streamCompleteCmd() *cobra.Command {
	var elevated bool
	cmd := &cobra.Command{
		Use:   "complete <public-id>",
		Short: "Mark a stream completed",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd.Context(), func(ctx context.Context, a *app.App) error {
				scope, err := requireGuild()
				if err != nil {
					return err
				}
				s, err := a.Engine.Complete(ctx, engine.CompleteInput{
					Scope:    scope,
					PublicID: args[0],
					CallerID: viper.GetString("actor-id"),
					Elevated: elevated,
				})
				if err != nil {
					return err
				}
				return printJSONOrTable(s)
			})
		},
	}
	cmd.Flags().BoolVar(&elevated, "elevated", false, "act as a moderator")
	return cmd
}

func streamWipeCmd() *cobra.Command {
	var yes bool
	cmd := &cobra.Command{
		Use:   "wipe",
		Short: "Delete every stream of the guild",
		RunE: func(cmd *cobra.Command, args []string) error {
			if !yes {
				return fmt.Errorf("wipe deletes all streams of the guild; pass --yes to confirm")
			}
			return withApp(cmd.Context(), func(ctx context.Context, a *app.App) error {
				scope, err := requireGuild()
				if err != nil {
					return err
				}
				removed, err := a.Engine.Wipe(ctx, engine.WipeInput{
					Scope:    scope,
					CallerID: viper.GetString("actor-id"),
					Elevated: true,
				})
				if err != nil {
					return err
				}
				return printJSONOrTable(map[string]any{"count": len(removed), "removed": removed})
			})
		},
	}
	cmd.Flags().BoolVar(&yes, "yes", false, "confirm")
	return cmd
}

func sweepCmd() *cobra.Command {
	var window time.Duration
	var basis string
	cmd := &cobra.Command{
		Use:   "sweep",
		Short: "Run the retention sweep now",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd.Context(), func(ctx context.Context, a *app.App) error {
				opts := engine.SweepOptions{
					Scope:   viper.GetString("guild"),
					Basis:   basis,
					ActorID: viper.GetString("actor-id"),
				}
				if cmd.Flags().Changed("window") {
					opts.Window = &window
				}
				res, err := a.Engine.RetentionSweep(ctx, opts)
				if err != nil {
					return err
				}
				return printJSONOrTable(res)
			})
		},
	}
	cmd.Flags().DurationVar(&window, "window", 0, "retention window override")
	cmd.Flags().StringVar(&basis, "basis", "", "completed|created (default from config)")
	return cmd
}

func remindCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "remind",
		Short: "Send reminders for streams due tomorrow",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd.Context(), func(ctx context.Context, a *app.App) error {
				report, err := a.Engine.RemindDueTomorrow(ctx)
				if err != nil {
					return err
				}
				return printJSONOrTable(report)
			})
		},
	}
}

func eventsCmd() *cobra.Command {
	var n int
	var evtType string
	cmd := &cobra.Command{
		Use:   "events",
		Short: "Tail audit events",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd.Context(), func(ctx context.Context, a *app.App) error {
				evts, err := a.Engine.ListEvents(ctx, viper.GetString("guild"), evtType, n)
				if err != nil {
					return err
				}
				if viper.GetBool("json") {
					return printJSON(evts)
				}
				tw := table.NewWriter()
				tw.SetOutputMirror(os.Stdout)
				tw.AppendHeader(table.Row{"TS", "Type", "Guild", "Stream", "Actor"})
				for _, e := range evts {
					tw.AppendRow(table.Row{e.TS, e.Type, e.Scope, e.PublicID, e.ActorID})
				}
				tw.Render()
				return nil
			})
		},
	}
	cmd.Flags().IntVar(&n, "n", 20, "number of events")
	cmd.Flags().StringVar(&evtType, "type", "", "event type filter")
	return cmd
}

func configCmd() *cobra.Command {
	cfg := &cobra.Command{
		Use:   "config",
		Short: "Inspect workspace config",
		Long:  "Config lives in streamline.yml in the workspace: due day choices, guard windows, retention, schedules and notification targets.",
	}
	cfg.AddCommand(configInitCmd())
	cfg.AddCommand(configShowCmd())
	cfg.AddCommand(configValidateCmd())
	return cfg
}

func configInitCmd() *cobra.Command {
	var force bool
	cmd := &cobra.Command{
		Use:   "init",
		Short: "Write a default streamline.yml",
		RunE: func(cmd *cobra.Command, args []string) error {
			path := configPath()
			if _, err := os.Stat(path); err == nil && !force {
				return fmt.Errorf("%s already exists; pass --force to overwrite", path)
			}
			if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
				return err
			}
			if err := os.WriteFile(path, []byte(config.GenerateDefault()), 0o644); err != nil {
				return err
			}
			fmt.Println("wrote", path)
			return nil
		},
	}
	cmd.Flags().BoolVar(&force, "force", false, "overwrite an existing file")
	return cmd
}

func configShowCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "show",
		Short: "Show loaded config",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			return printJSONOrTable(cfg)
		},
	}
}

func configValidateCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "validate",
		Short: "Validate the config file",
		RunE: func(cmd *cobra.Command, args []string) error {
			_, err := config.Load(configPath())
			if viper.GetBool("json") {
				return printJSON(map[string]any{"ok": err == nil, "error": fmt.Sprint(err)})
			}
			if err != nil {
				return err
			}
			fmt.Println("config OK")
			return nil
		},
	}
}

func tokenCmd() *cobra.Command {
	var subject string
	var perms []string
	var ttl time.Duration
	cmd := &cobra.Command{
		Use:   "token",
		Short: "Mint an API bearer token",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			tok, err := server.SignToken(jwtSecret(cfg), subject, perms, ttl)
			if err != nil {
				return err
			}
			if viper.GetBool("json") {
				return printJSON(map[string]string{"token": tok})
			}
			fmt.Println(tok)
			return nil
		},
	}
	cmd.Flags().StringVar(&subject, "subject", "", "user id the token acts as")
	cmd.Flags().StringArrayVar(&perms, "perm", nil, "permission to grant (repeatable: "+server.PermModerate+", "+server.PermAdmin+")")
	cmd.Flags().DurationVar(&ttl, "ttl", 24*time.Hour, "token lifetime (0 never expires)")
	_ = cmd.MarkFlagRequired("subject")
	return cmd
}

func serveCmd() *cobra.Command {
	var addr, basePath string
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start the HTTP API and the scheduled jobs",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd.Context(), func(ctx context.Context, a *app.App) error {
				secret := jwtSecret(a.Config)
				if secret == "" {
					return fmt.Errorf("STREAMLINE_JWT_SECRET or server.jwt_secret is required for bearer auth")
				}
				if addr == "" {
					addr = a.Config.Server.Addr
				}
				if basePath == "" {
					basePath = a.Config.Server.BasePath
				}
				handler, err := server.New(server.Config{
					Engine:   a.Engine,
					BasePath: basePath,
					Auth:     server.AuthConfig{JWTSecret: secret},
					Log:      a.Log.Named("http"),
				})
				if err != nil {
					return err
				}
				srv := &http.Server{Addr: addr, Handler: handler, ReadHeaderTimeout: 10 * time.Second}
				a.Start()
				go func() {
					<-ctx.Done()
					shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
					defer cancel()
					srv.Shutdown(shutdownCtx)
				}()
				a.Log.Info("serving streamline api", zap.String("addr", addr), zap.String("base_path", basePath))
				err = srv.ListenAndServe()
				shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
				defer cancel()
				if serr := a.Shutdown(shutdownCtx); serr != nil {
					a.Log.Warn("shutdown incomplete", zap.Error(serr))
				}
				if err != nil && !errors.Is(err, http.ErrServerClosed) {
					return err
				}
				return nil
			})
		},
	}
	cmd.Flags().StringVar(&addr, "addr", "", "listen address (default server.addr)")
	cmd.Flags().StringVar(&basePath, "base-path", "", "API base path (default server.base_path)")
	return cmd
}

// --- helpers ---

func configPath() string {
	if p := viper.GetString("config"); p != "" {
		return p
	}
	return config.Path(viper.GetString("workspace"))
}

func loadConfig() (*config.Config, error) {
	return app.ResolveConfig(viper.GetString("workspace"), viper.GetString("config"))
}

func jwtSecret(cfg *config.Config) string {
	if s := viper.GetString("jwt-secret"); s != "" {
		return s
	}
	return cfg.Server.JWTSecret
}

func requireGuild() (string, error) {
	g := strings.TrimSpace(viper.GetString("guild"))
	if g == "" {
		return "", fmt.Errorf("--guild required")
	}
	return g, nil
}

// withApp opens the workspace and hands fn a wired App. Detached
// notifications are drained before returning.
func withApp(ctx context.Context, fn func(context.Context, *app.App) error) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	log, err := logging.New(cfg.Log.Level, cfg.Log.Format)
	if err != nil {
		return err
	}
	defer log.Sync()
	conn, err := app.OpenStore(viper.GetString("workspace"), viper.GetString("db"))
	if err != nil {
		return err
	}
	defer conn.Close()
	a, err := app.New(cfg, log, conn, nil)
	if err != nil {
		return err
	}
	runErr := fn(ctx, a)
	drainCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if err := a.Dispatcher.Drain(drainCtx); err != nil {
		log.Warn("notifications still pending at exit", zap.Error(err))
	}
	return runErr
}

func printJSONOrTable(v any) error {
	if viper.GetBool("json") {
		return printJSON(v)
	}
	b, _ := json.MarshalIndent(v, "", "  ")
	fmt.Println(string(b))
	return nil
}

func printJSON(v any) error {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
