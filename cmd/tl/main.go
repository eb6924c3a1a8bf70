package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"ticketline/internal/app"
	"ticketline/internal/config"
	"ticketline/internal/db"
	"ticketline/internal/engine"
)

var rootCmd = &cobra.Command{
	Use:   "tl",
	Short: "Ticketline CLI",
	Long: `Ticketline runs client/freelancer work tickets with escrowed payment.
Core concepts:
- Ticket: a piece of work a client posts with a payment amount and a deadline; the payment is escrowed at creation.
- Lifecycle: open -> assigned -> in_progress -> submitted -> completed; rejected work returns to in_progress.
- Disputes: client or freelancer may dispute an assigned, in-progress or submitted ticket; a resolver or admin settles it (0 = client, 1 = freelancer).
- Escrow: once a ticket is completed, cancelled or resolved, the entitled party withdraws the full amount exactly once.
- Roles: admins and resolvers are seeded from ticketline.yml and managed with 'tl role'.
- Event log: every committed change, view with 'tl log tail'.`,
	SilenceUsage: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		workspace := viper.GetString("workspace")
		if _, err := db.EnsureWorkspace(workspace); err != nil {
			return err
		}
		return nil
	},
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
	viper.SetEnvPrefix("TICKETLINE")
	viper.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	viper.AutomaticEnv()
}

func addPersistentFlags() {
	rootCmd.PersistentFlags().StringP("workspace", "w", ".", "workspace directory")
	rootCmd.PersistentFlags().Bool("json", false, "output JSON")
	rootCmd.PersistentFlags().String("as", "", "actor identifier the command runs as")
	rootCmd.PersistentFlags().String("log-level", "", "log level (debug, info, warn, error); overrides config")
	rootCmd.PersistentFlags().String("at", "", "RFC 3339 time to use as now (scripting and replays)")
	for _, name := range []string{"workspace", "json", "as", "log-level", "at"} {
		_ = viper.BindPFlag(name, rootCmd.PersistentFlags().Lookup(name))
	}
}

func registerCommands() {
	rootCmd.AddCommand(ticketCmd())
	rootCmd.AddCommand(roleCmd())
	rootCmd.AddCommand(apiKeyCmd())
	rootCmd.AddCommand(tokenCmd())
	rootCmd.AddCommand(logCmd())
	rootCmd.AddCommand(configCmd())
	rootCmd.AddCommand(serveCmd())
}

// --- helpers ---

func loadConfig() (*config.Config, error) {
	return config.LoadOptional(viper.GetString("workspace"))
}

// withRuntime bootstraps the workspace, runs fn and closes the database.
func withRuntime(ctx context.Context, fn func(context.Context, *app.Runtime) error) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	level := cfg.Logging.Level
	if v := viper.GetString("log-level"); v != "" {
		level = v
	}
	logger := app.NewLogger(os.Stderr, level, cfg.Logging.Format)
	rt, err := app.Bootstrap(ctx, viper.GetString("workspace"), cfg, logger)
	if err != nil {
		return err
	}
	defer rt.Close()
	return fn(ctx, rt)
}

func withEngine(ctx context.Context, fn func(context.Context, engine.Engine) error) error {
	return withRuntime(ctx, func(ctx context.Context, rt *app.Runtime) error {
		return fn(ctx, rt.Engine)
	})
}

func now() (time.Time, error) {
	at := strings.TrimSpace(viper.GetString("at"))
	if at == "" {
		return time.Now().UTC(), nil
	}
	t, err := time.Parse(time.RFC3339, at)
	if err != nil {
		return time.Time{}, fmt.Errorf("--at must be RFC 3339: %w", err)
	}
	return t.UTC(), nil
}

// currentCall is the engine call for the --as actor at the current time.
func currentCall() (engine.Call, error) {
	actor := strings.TrimSpace(viper.GetString("as"))
	if actor == "" {
		return engine.Call{}, fmt.Errorf("actor required; pass --as or set TICKETLINE_AS")
	}
	at, err := now()
	if err != nil {
		return engine.Call{}, err
	}
	return engine.Call{Caller: actor, Now: at}, nil
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

func strPtrValue(ptr *string) string {
	if ptr == nil {
		return ""
	}
	return *ptr
}
