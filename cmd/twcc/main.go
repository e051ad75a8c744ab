package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"twcc/internal/app"
	"twcc/internal/config"
	"twcc/internal/twcc"
)

var verbosity int

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	err := rootCmd.ExecuteContext(ctx)
	stop()
	if err != nil {
		fmt.Fprintf(os.Stderr, "twcc: %v\n", err)
		os.Exit(1)
	}
}

// loadConfig reads the config from the default location.
func loadConfig() (*config.Config, error) {
	defaults, err := app.GetDefaults()
	if err != nil {
		return nil, fmt.Errorf("getting defaults: %w", err)
	}

	cfg, err := config.ReadFromFile(defaults["config_path"])
	if err != nil {
		return nil, fmt.Errorf("reading config: %w", err)
	}
	return cfg, nil
}

// newApp creates a TWApp from cfg. The caller must defer app.Close().
func newApp(ctx context.Context, cfg *config.Config) (*app.TWApp, error) {
	a, err := app.NewTWApp(ctx, cfg, app.Options{Verbosity: verbosity})
	if err != nil {
		return nil, fmt.Errorf("initializing app: %w", err)
	}
	return a, nil
}

var rootCmd = &cobra.Command{
	Use:           "twcc",
	Short:         "Track deleted tweets across runs",
	SilenceUsage:  true,
	SilenceErrors: true,
}

// deleted-tweets command
var deletedTweetsCmd = &cobra.Command{
	Use:   "deleted-tweets --report USERNAME",
	Short: "Report tweets deleted since the last run",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		username, _ := cmd.Flags().GetString("report")

		cfg, err := loadConfig()
		if err != nil {
			return err
		}
		if cmd.Flags().Changed("output") {
			cfg.Report.OutputDir, _ = cmd.Flags().GetString("output")
		}
		if cmd.Flags().Changed("include-modified") {
			cfg.Report.IncludeModified, _ = cmd.Flags().GetBool("include-modified")
		}

		a, err := newApp(cmd.Context(), cfg)
		if err != nil {
			return err
		}
		defer a.Close()

		summary, err := a.DeletedTweets(cmd.Context(), username)
		if err != nil {
			return err
		}

		if summary.FirstRun {
			fmt.Printf("First run for @%s: recorded %d tweet(s) as the baseline\n", summary.UserID, summary.LiveTweets)
		} else {
			c := summary.Counts
			fmt.Printf("@%s: %d deleted, %d modified, %d new, %d unchanged\n",
				summary.UserID, c.Deleted, c.Modified, c.New, c.Present)
		}
		fmt.Printf("Report: %s\n", summary.ReportPath)
		return nil
	},
}

// snapshots command
var snapshotsCmd = &cobra.Command{
	Use:   "snapshots USERNAME",
	Short: "List stored snapshots",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig()
		if err != nil {
			return err
		}
		a, err := newApp(cmd.Context(), cfg)
		if err != nil {
			return err
		}
		defer a.Close()

		infos, err := a.Snapshots(cmd.Context(), args[0])
		if err != nil {
			return err
		}

		if len(infos) == 0 {
			fmt.Println("No snapshots stored.")
			return nil
		}

		for _, info := range infos {
			fmt.Printf("%s  %8d  %s\n",
				info.CapturedAt.Format("2006-01-02 15:04:05"),
				info.Size,
				info.Key,
			)
		}
		return nil
	},
}

// history command
var historyCmd = &cobra.Command{
	Use:   "history",
	Short: "View run history",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		limit, _ := cmd.Flags().GetInt("limit")

		cfg, err := loadConfig()
		if err != nil {
			return err
		}
		a, err := newApp(cmd.Context(), cfg)
		if err != nil {
			return err
		}
		defer a.Close()

		runs, err := a.History(cmd.Context(), limit)
		if err != nil {
			return err
		}

		if len(runs) == 0 {
			fmt.Println("No runs recorded.")
			return nil
		}

		for _, r := range runs {
			duration := ""
			if !r.FinishedAt.IsZero() {
				duration = r.FinishedAt.Sub(r.StartedAt).Truncate(time.Millisecond).String()
			}
			outcome := fmt.Sprintf("%d deleted, %d modified", r.Counts.Deleted, r.Counts.Modified)
			if r.Status == twcc.RunError {
				outcome = r.Stage + ": " + r.Error
			}
			fmt.Printf("#%d  @%-15s  %s  %-8s  %-8s  %s\n",
				r.ID,
				r.UserID,
				r.StartedAt.Format("2006-01-02 15:04:05"),
				r.Status,
				duration,
				outcome,
			)
		}
		return nil
	},
}

// config command
var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Manage configuration",
}

var configInitCmd = &cobra.Command{
	Use:   "init",
	Short: "Initialize configuration",
	RunE: func(cmd *cobra.Command, args []string) error {
		defaults, err := app.GetDefaults()
		if err != nil {
			return fmt.Errorf("failed to get defaults: %w", err)
		}

		cfg := config.NewConfig(defaults["base_dir"])
		if err := config.Init(defaults["config_path"], cfg); err != nil {
			return fmt.Errorf("failed to initialize config: %w", err)
		}

		fmt.Printf("Configuration initialized at %s\n", defaults["config_path"])
		fmt.Printf("Base Dir: %s\n", defaults["base_dir"])
		return nil
	},
}

var configListCmd = &cobra.Command{
	Use:   "list",
	Short: "View configuration",
	RunE: func(cmd *cobra.Command, args []string) error {
		defaults, err := app.GetDefaults()
		if err != nil {
			return fmt.Errorf("failed to get defaults: %w", err)
		}

		cfg, err := config.ReadFromFile(defaults["config_path"])
		if err != nil {
			return fmt.Errorf("failed to read config: %w", err)
		}

		fmt.Printf("# Configuration from %s\n\n", defaults["config_path"])
		m := &config.Manager{}
		return m.Write(os.Stdout, cfg)
	},
}

// keys command
var keysCmd = &cobra.Command{
	Use:   "keys",
	Short: "Manage snapshot encryption keys",
}

var keysInitCmd = &cobra.Command{
	Use:   "init",
	Short: "Generate the snapshot encryption key pair",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig()
		if err != nil {
			return err
		}

		prompt := app.NewPassphrasePrompt(cfg.Encryption.PassphraseEnv)
		if err := app.InitKeys(cfg, prompt.NewPassphrase); err != nil {
			return err
		}

		fmt.Printf("Public key:  %s\n", cfg.Encryption.PublicKeyPath)
		fmt.Printf("Private key: %s (passphrase protected)\n", cfg.Encryption.PrivateKeyPath)
		fmt.Println("Set snapshots.encrypt = true to encrypt new snapshots.")
		return nil
	},
}

func init() {
	rootCmd.PersistentFlags().CountVarP(&verbosity, "verbose", "v", "Increase log verbosity (repeatable)")

	deletedTweetsCmd.Flags().String("report", "", "Username to report on")
	deletedTweetsCmd.MarkFlagRequired("report")
	deletedTweetsCmd.Flags().StringP("output", "o", "", "Directory for the report (overrides report.output_dir)")
	deletedTweetsCmd.Flags().Bool("include-modified", true, "List modified tweets in the report (overrides report.include_modified)")
	rootCmd.AddCommand(deletedTweetsCmd)

	rootCmd.AddCommand(snapshotsCmd)

	historyCmd.Flags().IntP("limit", "n", 20, "Maximum number of runs to show")
	rootCmd.AddCommand(historyCmd)

	configCmd.AddCommand(configInitCmd)
	configCmd.AddCommand(configListCmd)
	rootCmd.AddCommand(configCmd)

	keysCmd.AddCommand(keysInitCmd)
	rootCmd.AddCommand(keysCmd)
}
