package main

import (
	"context"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	serverrun "github.com/sunng87/clojalk/internal/cmd/server"
	"github.com/sunng87/clojalk/internal/config"
)

var version = "dev"

func main() {
	rootCmd := &cobra.Command{
		Use:   "clojalkd",
		Short: "clojalkd is a beanstalkd-compatible in-memory job queue server",
		Long: "clojalkd serves the beanstalkd text protocol: producers put jobs into\n" +
			"tubes with a priority, delay, and time-to-run; workers reserve, then\n" +
			"delete, release, bury, or touch them. An optional write-ahead log makes\n" +
			"the queue crash-recoverable.",
	}

	serverCmd := &cobra.Command{Use: "server", Short: "Server commands"}
	serverStartCmd := &cobra.Command{
		Use:     "start [config-file]",
		Short:   "Start clojalkd (beanstalkd protocol, optional admin HTTP)",
		Aliases: []string{"run"},
		Args:    cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			path := ""
			if len(args) == 1 {
				path = args[0]
			}
			cfg, err := config.Load(path)
			if err != nil {
				return fmt.Errorf("load config: %w", err)
			}
			config.FromEnv(&cfg)
			if port, _ := cmd.Flags().GetInt("port"); port > 0 {
				cfg.Server.Port = port
			}
			if admin, _ := cmd.Flags().GetInt("admin-port"); admin > 0 {
				cfg.Admin.Port = admin
			}
			if drain, _ := cmd.Flags().GetBool("drain"); drain {
				cfg.Drain = true
			}
			if err := serverrun.Run(context.Background(), serverrun.Options{Config: cfg}); err != nil {
				return fmt.Errorf("server error: %w", err)
			}
			return nil
		},
	}
	serverStartCmd.Flags().Int("port", 0, "Override server.port from the config file")
	serverStartCmd.Flags().Int("admin-port", 0, "Override admin.port from the config file")
	serverStartCmd.Flags().Bool("drain", false, "Start in drain mode (puts rejected)")
	serverCmd.AddCommand(serverStartCmd)
	rootCmd.AddCommand(serverCmd)

	versionCmd := &cobra.Command{
		Use:   "version",
		Short: "Print version",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Println("clojalkd", version)
		},
	}
	rootCmd.AddCommand(versionCmd)

	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}
