// Command meerchatctl is an operator and terminal client for a MeerChat server.
package main

import (
	"os"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"

	"meerchat/pkg/logger"
)

type globalOpts struct {
	Server  string
	Session string
}

func newRootCmd() *cobra.Command {
	opts := &globalOpts{}
	root := &cobra.Command{
		Use:           "meerchatctl",
		Short:         "Talk to a MeerChat server from the terminal",
		SilenceUsage:  true,
		SilenceErrors: false,
	}

	defServer := os.Getenv("MEERCHAT_URL")
	if defServer == "" {
		defServer = "http://localhost:8080"
	}
	root.PersistentFlags().StringVarP(&opts.Server, "server", "s", defServer, "MeerChat base URL")
	root.PersistentFlags().StringVar(&opts.Session, "session", "", "session cache file (default ~/.config/meerchat/session.json)")

	root.AddCommand(
		newLoginCmd(opts),
		newLogoutCmd(opts),
		newSendCmd(opts),
		newTailCmd(opts),
		newInspectCmd(),
	)
	return root
}

func main() {
	_ = godotenv.Load(".env")
	// keep the terminal quiet unless asked
	lvl := os.Getenv("MEERCHAT_LOG_LEVEL")
	if lvl == "" {
		lvl = "error"
	}
	logger.Init(lvl)
	defer logger.Sync()

	if err := newRootCmd().Execute(); err != nil {
		logger.Sync()
		os.Exit(1)
	}
}
