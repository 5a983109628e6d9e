package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/fatih/color"
	"github.com/openmined/s3repo/internal/config"
	"github.com/openmined/s3repo/internal/logging"
	"github.com/openmined/s3repo/internal/version"
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"
)

var (
	green  = color.New(color.FgHiGreen, color.Bold).SprintFunc()
	yellow = color.New(color.FgHiYellow, color.Bold).SprintFunc()
	cyan   = color.New(color.FgHiCyan).SprintFunc()
	red    = color.New(color.FgHiRed, color.Bold).SprintFunc()
)

func newRootCmd() *cobra.Command {
	rootCmd := &cobra.Command{
		Use:           "s3repo",
		Short:         "Maintain RPM repositories stored in S3",
		Version:       version.Detailed(),
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	rootCmd.PersistentFlags().StringP("config", "c", "", "path to a config file (yaml, json or toml)")
	rootCmd.PersistentFlags().String("log-level", config.DefaultLogLevel, "log level (debug, info, warn, error)")
	rootCmd.PersistentFlags().String("log-file", "", "also write logs to this file")
	rootCmd.PersistentFlags().String("s3-region", "", "S3 region")
	rootCmd.PersistentFlags().String("s3-endpoint", "", "custom S3 endpoint URL, enables path style addressing")
	rootCmd.PersistentFlags().String("s3-access-key", "", "S3 access key, defaults to the AWS credential chain")
	rootCmd.PersistentFlags().String("s3-secret-key", "", "S3 secret key")
	rootCmd.PersistentFlags().Bool("s3-use-accelerate", false, "use S3 transfer acceleration")

	rootCmd.AddCommand(newRebuildCmd())
	rootCmd.AddCommand(newAddCmd())
	rootCmd.AddCommand(newListCmd())
	rootCmd.AddCommand(newVersionCmd())
	return rootCmd
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := newRootCmd().ExecuteContext(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "%s %v\n", red("ERROR"), err)
		stop()
		os.Exit(1)
	}
}

// loadConfig resolves the configuration for cmd: flags first, then S3REPO_*
// environment variables, then the config file, then defaults. A positional
// repository argument overrides every other source.
func loadConfig(cmd *cobra.Command, args []string) (*config.Config, error) {
	v := viper.New()

	if path, _ := cmd.Flags().GetString("config"); path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("config read %q: %w", path, err)
		}
	}

	v.SetEnvPrefix(config.EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_", "-", "_"))
	v.AutomaticEnv()

	var bindErr error
	cmd.Flags().VisitAll(func(f *pflag.Flag) {
		if f.Name == "config" || f.Name == "help" || bindErr != nil {
			return
		}
		bindErr = v.BindPFlag(configKey(f.Name), f)
	})
	if bindErr != nil {
		return nil, fmt.Errorf("bind flags: %w", bindErr)
	}

	if len(args) > 0 {
		v.Set("repository", args[0])
	}

	cfg := config.Default()
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("config unmarshal: %w", err)
	}
	return cfg, nil
}

// configKey maps a flag name to its config key: s3-access-key is s3.access_key
// and staging-dir is staging_dir.
func configKey(flagName string) string {
	if rest, ok := strings.CutPrefix(flagName, "s3-"); ok {
		return "s3." + strings.ReplaceAll(rest, "-", "_")
	}
	return strings.ReplaceAll(flagName, "-", "_")
}

// aliasFlags normalizes deprecated flag spellings to their current names.
func aliasFlags(_ *pflag.FlagSet, name string) pflag.NormalizedName {
	if name == "no-upload" {
		name = "dry-run"
	}
	return pflag.NormalizedName(name)
}

// setupLogging installs the process logger for cfg and returns its closer.
func setupLogging(cmd *cobra.Command, cfg *config.Config) (func(), error) {
	level, err := config.ParseLevel(cfg.LogLevel)
	if err != nil {
		return nil, err
	}
	closer, err := logging.Setup(logging.Options{
		Level:   level,
		Console: cmd.ErrOrStderr(),
		File:    cfg.LogFile,
	})
	if err != nil {
		return nil, fmt.Errorf("setup logging: %w", err)
	}
	return func() {
		if err := closer(); err != nil {
			slog.Warn("failed to close log file", "error", err)
		}
	}, nil
}
