package cmd

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/agubarev/orgkeeper/internal/server"
	"github.com/spf13/cobra"
)

// startCmd represents the start command
var startCmd = &cobra.Command{
	Use:   "start",
	Short: "Start the management API server.",
	Long:  ``,
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
		defer stop()

		c, cfg, logger, err := initCore(ctx)
		if err != nil {
			return err
		}

		defer logger.Sync()
		defer c.Shutdown()

		return server.Run(ctx, c, cfg.Server.Addr)
	},
}

func init() {
	rootCmd.AddCommand(startCmd)

	startCmd.Flags().String("addr", "", "address to listen on")
	_ = v.BindPFlag("server.addr", startCmd.Flags().Lookup("addr"))
}
