package cmd

import (
	"context"
	"fmt"
	"os"

	"github.com/agubarev/orgkeeper/internal/config"
	"github.com/agubarev/orgkeeper/internal/core"
	"github.com/agubarev/orgkeeper/pkg/util"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

var (
	cfgFile string
	envFile string
	v       = config.New()
)

// rootCmd represents the base command when called without any subcommands
var rootCmd = &cobra.Command{
	Use:   "orgkeeper",
	Short: "Organization membership and email domain keeper.",
	Long: `orgkeeper manages organizations, their email domains and members,
keeping every member's email within the domains of its organization.`,
	SilenceUsage: true,
}

// Execute adds all child commands to the root command and sets flags appropriately.
// This is called by main.main(). It only needs to happen once to the rootCmd.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func init() {
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (yaml)")
	rootCmd.PersistentFlags().StringVar(&envFile, "env", "", "dotenv file to preload (default is ./.env)")
	rootCmd.PersistentFlags().Bool("debug", false, "enable debug logging")
	rootCmd.PersistentFlags().String("log-dir", "", "directory for log files")
	rootCmd.PersistentFlags().String("log-format", "console", "log output format: console or json")

	_ = v.BindPFlag("log.debug", rootCmd.PersistentFlags().Lookup("debug"))
	_ = v.BindPFlag("log.dir", rootCmd.PersistentFlags().Lookup("log-dir"))
	_ = v.BindPFlag("log.format", rootCmd.PersistentFlags().Lookup("log-format"))
}

// initCore loads the configuration and assembles the core along with its logger
func initCore(ctx context.Context) (*core.Core, *config.Config, *zap.Logger, error) {
	var files []string
	if envFile != "" {
		files = append(files, envFile)
	}

	if err := config.LoadDotEnv(files...); err != nil {
		return nil, nil, nil, err
	}

	cfg, err := config.Load(v, cfgFile)
	if err != nil {
		return nil, nil, nil, err
	}

	logger, err := util.NewLogger(util.LogOptions{
		Level:  cfg.Log.Level,
		Format: cfg.Log.Format,
		Dir:    cfg.Log.Dir,
		Debug:  cfg.Log.Debug,
	})
	if err != nil {
		return nil, nil, nil, err
	}

	c, err := core.New(ctx, &cfg, logger)
	if err != nil {
		_ = logger.Sync()
		return nil, nil, nil, err
	}

	return c, &cfg, logger, nil
}
