package cmd

import (
	"github.com/spf13/cobra"
	"github.com/texelworks/painterlink/internal/bridge"
	"github.com/texelworks/painterlink/internal/core"
	"github.com/texelworks/painterlink/internal/host"
)

func NewServeCommand() *cobra.Command {
	serveCmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the command bridge",
		Long: `Run the command bridge: listen for the companion process, dispatch its
commands and supervise its lifecycle.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			registry := bridge.NewRegistry()
			b := bridge.New(core.Config, registry)

			localHost := host.NewLocalHost(core.FormatVersion(core.Version))
			host.RegisterAll(registry, localHost, host.Options{
				Notify:   b.Notify,
				SetDebug: b.SetDebug,
			})

			return b.Run()
		},
	}

	return serveCmd
}
