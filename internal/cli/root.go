package cli

import (
	"github.com/spf13/cobra"

	"minichat/internal/config"
)

// RootOptions agrupa los flags globales.
type RootOptions struct {
	APIURL              string
	StatePath           string
	Verbose             bool
	DirectoryMaxEntries int
}

// NewRootCommand crea el comando raiz del cliente de chat.
func NewRootCommand() *cobra.Command {
	opts := &RootOptions{
		APIURL:    "http://localhost:8080",
		StatePath: config.DefaultStatePath(),
	}
	if cfg, err := config.LoadClientConfig(); err == nil {
		opts.APIURL = cfg.APIURL
		opts.StatePath = cfg.StatePath
		opts.DirectoryMaxEntries = cfg.DirectoryMaxEntries
	}

	cmd := &cobra.Command{
		Use:   "chat",
		Short: "Minimal authenticated chat",
		Long:  "Terminal client for minichat: sign in, post messages and follow the live message list.",
	}

	cmd.PersistentFlags().StringVar(&opts.APIURL, "api", opts.APIURL, "backend base URL")
	cmd.PersistentFlags().StringVar(&opts.StatePath, "state", opts.StatePath, "local state file (empty keeps state in memory)")
	cmd.PersistentFlags().BoolVarP(&opts.Verbose, "verbose", "v", false, "verbose logging to stderr")

	cmd.AddCommand(NewRunCommand(opts))
	cmd.AddCommand(NewLoginCommand(opts))
	cmd.AddCommand(NewLogoutCommand(opts))
	cmd.AddCommand(NewWhoamiCommand(opts))
	cmd.AddCommand(NewTailCommand(opts))

	return cmd
}
