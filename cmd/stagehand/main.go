package main

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/rs/zerolog"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"gopkg.in/yaml.v3"

	"stagehand/internal/app"
	"stagehand/internal/config"
	"stagehand/internal/db"
	"stagehand/internal/domain"
	"stagehand/internal/engine"
	"stagehand/internal/events"
	"stagehand/internal/migrate"
	"stagehand/internal/notify"
	"stagehand/internal/repo"
	"stagehand/internal/server"
	"stagehand/internal/store"
)

var rootCmd = &cobra.Command{
	Use:   "stagehand",
	Short: "Stagehand live-event automation",
	Long: `Stagehand turns live events into automated reactions. Viewers type commands,
redeem channel-point rewards, cheer, or subscribe; timers tick; a MIDI
controller sends notes. Stagehand matches each event against your actions and
runs their steps: switch scenes, toggle sources, send chat messages, play
sounds, start or stop the stream.`,
}

func main() {
	cobra.OnInitialize(initConfig)
	addPersistentFlags()
	registerCommands()
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(1)
	}
}

func initConfig() {
	viper.SetEnvPrefix("STAGEHAND")
	viper.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	viper.AutomaticEnv()
}

func addPersistentFlags() {
	rootCmd.PersistentFlags().StringP("workspace", "w", ".", "workspace directory")
	rootCmd.PersistentFlags().Bool("json", false, "output JSON")
	_ = viper.BindPFlag("workspace", rootCmd.PersistentFlags().Lookup("workspace"))
	_ = viper.BindPFlag("json", rootCmd.PersistentFlags().Lookup("json"))
}

func registerCommands() {
	rootCmd.AddCommand(serveCmd())
	rootCmd.AddCommand(actionCmd())
	rootCmd.AddCommand(logCmd())
	rootCmd.AddCommand(tokenCmd())
}

func newLogger() zerolog.Logger {
	return zerolog.New(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.Kitchen}).
		With().Timestamp().Logger()
}

func serveCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the automation engine and local API",
		RunE: func(cmd *cobra.Command, args []string) error {
			workspace := viper.GetString("workspace")
			settings, err := config.Load(workspace)
			if err != nil {
				return err
			}
			logger := newLogger()

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			a, err := app.New(ctx, app.Options{
				Workspace: workspace,
				Settings:  settings,
				Logger:    logger,
			})
			if err != nil {
				return err
			}
			defer a.Close()
			return a.Run(ctx)
		},
	}
	return cmd
}

func actionCmd() *cobra.Command {
	action := &cobra.Command{Use: "action", Short: "Manage actions"}
	action.AddCommand(actionListCmd())
	action.AddCommand(actionShowCmd())
	action.AddCommand(actionCreateCmd())
	action.AddCommand(actionDeleteCmd())
	action.AddCommand(actionTestCmd())
	action.AddCommand(actionExportCmd())
	action.AddCommand(actionImportCmd())
	return action
}

func actionListCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List actions in execution order",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withStore(cmd.Context(), func(ctx context.Context, s *store.Store) error {
				actions := s.List()
				if viper.GetBool("json") {
					return printJSON(actions)
				}
				tw := table.NewWriter()
				tw.SetOutputMirror(os.Stdout)
				tw.AppendHeader(table.Row{"#", "ID", "Name", "Triggers", "Steps", "Roles"})
				for i, a := range actions {
					tw.AppendRow(table.Row{i + 1, a.ID, a.Name, describeTriggers(a.Triggers), len(a.Steps), describeRoles(a.Permissions)})
				}
				tw.Render()
				return nil
			})
		},
	}
}

func actionShowCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "show <id>",
		Short: "Show one action",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withStore(cmd.Context(), func(ctx context.Context, s *store.Store) error {
				a, err := s.Get(args[0])
				if err != nil {
					return err
				}
				return printJSON(a)
			})
		},
	}
}

func actionCreateCmd() *cobra.Command {
	var file string
	cmd := &cobra.Command{
		Use:   "create",
		Short: "Create an action from a YAML file",
		RunE: func(cmd *cobra.Command, args []string) error {
			data, err := os.ReadFile(file)
			if err != nil {
				return err
			}
			var a domain.Action
			if err := yaml.Unmarshal(data, &a); err != nil {
				return fmt.Errorf("parse %s: %w", file, err)
			}
			return withStore(cmd.Context(), func(ctx context.Context, s *store.Store) error {
				created, err := s.Create(ctx, a)
				if err != nil {
					return err
				}
				fmt.Printf("created action %s (%s)\n", created.Name, created.ID)
				return nil
			})
		},
	}
	cmd.Flags().StringVarP(&file, "file", "f", "", "action definition YAML")
	_ = cmd.MarkFlagRequired("file")
	return cmd
}

func actionDeleteCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "delete <id>",
		Short: "Delete an action",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withStore(cmd.Context(), func(ctx context.Context, s *store.Store) error {
				if err := s.Delete(ctx, args[0]); err != nil {
					return err
				}
				fmt.Println("deleted", args[0])
				return nil
			})
		},
	}
}

func actionTestCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "test <id>",
		Short: "Run an action now, skipping triggers and permissions",
		Long: `Runs the action's steps directly. Offline collaborators fail their steps:
without a running control surface or chat connection only delay steps
succeed, which is still enough to check ordering and timing.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withStore(cmd.Context(), func(ctx context.Context, s *store.Store) error {
				logger := newLogger()
				notifier := notify.ZerologSink{Logger: logger}
				eng := &engine.Engine{
					Store:    s,
					Executor: engine.Executor{Notifier: notifier},
					Notifier: notifier,
					Logger:   logger,
				}
				return eng.Test(ctx, args[0])
			})
		},
	}
}

func actionExportCmd() *cobra.Command {
	var file string
	cmd := &cobra.Command{
		Use:   "export",
		Short: "Export all actions as YAML",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withStore(cmd.Context(), func(ctx context.Context, s *store.Store) error {
				data, err := yaml.Marshal(s.List())
				if err != nil {
					return err
				}
				if file == "" {
					fmt.Print(string(data))
					return nil
				}
				return os.WriteFile(file, data, 0o644)
			})
		},
	}
	cmd.Flags().StringVarP(&file, "file", "f", "", "output file (default stdout)")
	return cmd
}

func actionImportCmd() *cobra.Command {
	var file string
	cmd := &cobra.Command{
		Use:   "import",
		Short: "Replace all actions from a YAML file",
		RunE: func(cmd *cobra.Command, args []string) error {
			data, err := os.ReadFile(file)
			if err != nil {
				return err
			}
			var actions []domain.Action
			if err := yaml.Unmarshal(data, &actions); err != nil {
				return fmt.Errorf("parse %s: %w", file, err)
			}
			return withStore(cmd.Context(), func(ctx context.Context, s *store.Store) error {
				if err := s.Replace(ctx, actions); err != nil {
					return err
				}
				fmt.Printf("imported %d actions\n", len(actions))
				return nil
			})
		},
	}
	cmd.Flags().StringVarP(&file, "file", "f", "", "actions YAML")
	_ = cmd.MarkFlagRequired("file")
	return cmd
}

func logCmd() *cobra.Command {
	log := &cobra.Command{Use: "log", Short: "Event log"}
	log.AddCommand(logTailCmd())
	return log
}

func logTailCmd() *cobra.Command {
	var n int
	cmd := &cobra.Command{
		Use:   "tail",
		Short: "Show the latest event log entries",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withDB(cmd.Context(), func(ctx context.Context, conn *sql.DB) error {
				records, err := events.Reader{DB: conn}.Tail(ctx, n)
				if err != nil {
					return err
				}
				if viper.GetBool("json") {
					return printJSON(records)
				}
				tw := table.NewWriter()
				tw.SetOutputMirror(os.Stdout)
				tw.AppendHeader(table.Row{"TS", "Type", "Level", "Source", "Message"})
				for _, r := range records {
					msg := r.Message
					if msg == "" {
						msg = r.Payload
					}
					tw.AppendRow(table.Row{r.TS, r.Type, r.Level, r.Source, msg})
				}
				tw.Render()
				return nil
			})
		},
	}
	cmd.Flags().IntVar(&n, "n", 20, "number of entries")
	return cmd
}

func tokenCmd() *cobra.Command {
	var subject string
	var ttl time.Duration
	cmd := &cobra.Command{
		Use:   "token",
		Short: "Mint a bearer token for the API",
		RunE: func(cmd *cobra.Command, args []string) error {
			settings, err := config.Load(viper.GetString("workspace"))
			if err != nil {
				return err
			}
			if settings.Server.Secret == "" {
				return fmt.Errorf("server secret not configured; auth is disabled")
			}
			token, err := server.IssueToken(settings.Server.Secret, subject, ttl)
			if err != nil {
				return err
			}
			fmt.Println(token)
			return nil
		},
	}
	cmd.Flags().StringVar(&subject, "subject", "ui", "token subject")
	cmd.Flags().DurationVar(&ttl, "ttl", 24*time.Hour, "token lifetime")
	return cmd
}

func withDB(ctx context.Context, fn func(context.Context, *sql.DB) error) error {
	workspace := viper.GetString("workspace")
	if _, err := db.EnsureWorkspace(workspace); err != nil {
		return err
	}
	conn, err := db.Open(db.Config{Workspace: workspace})
	if err != nil {
		return err
	}
	defer conn.Close()
	if err := migrate.Migrate(conn); err != nil {
		return err
	}
	return fn(ctx, conn)
}

func withStore(ctx context.Context, fn func(context.Context, *store.Store) error) error {
	return withDB(ctx, func(ctx context.Context, conn *sql.DB) error {
		s, err := store.Open(ctx, repo.Repo{DB: conn})
		if err != nil {
			return err
		}
		return fn(ctx, s)
	})
}

func printJSON(v any) error {
	b, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return err
	}
	fmt.Println(string(b))
	return nil
}

func describeTriggers(triggers []domain.Trigger) string {
	parts := make([]string, 0, len(triggers))
	for _, t := range triggers {
		switch t.Type {
		case domain.TriggerCommand:
			parts = append(parts, string(t.Type)+":"+t.Command.Command)
		case domain.TriggerTimer:
			parts = append(parts, fmt.Sprintf("%s:%ds", t.Type, t.Timer.IntervalSeconds))
		default:
			parts = append(parts, string(t.Type))
		}
	}
	return strings.Join(parts, ", ")
}

func describeRoles(p *domain.Permissions) string {
	if p == nil {
		return "everyone"
	}
	var roles []string
	if p.Viewer {
		roles = append(roles, "viewer")
	}
	if p.Moderator {
		roles = append(roles, "moderator")
	}
	if p.Broadcaster {
		roles = append(roles, "broadcaster")
	}
	return strings.Join(roles, ",")
}
