package cmd

import (
	"fmt"

	"github.com/spf13/cobra"
	"github.com/texelworks/painterlink/internal/core"
)

func NewVersionCommand() *cobra.Command {
	versionCmd := &cobra.Command{
		Use:   "version",
		Short: "Show version",
		Long:  `Show the painterlink version`,
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Printf("painterlink %s\n", core.FormatVersion(core.Version))
		},
	}

	return versionCmd
}
