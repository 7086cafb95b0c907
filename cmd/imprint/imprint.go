// Package imprintcmder
package imprintcmder

import (
	"github.com/spf13/cobra"

	configcmder "github.com/soulprintco/imprint/cmd/imprint/config"
	runcmder "github.com/soulprintco/imprint/cmd/imprint/run"
	servecmder "github.com/soulprintco/imprint/cmd/imprint/serve"
	versioncmder "github.com/soulprintco/imprint/cmd/imprint/version"
)

const imprintLongDesc string = `Imprint distills chat archives into persistent user memories.

Submit an exported conversation archive and imprint reconstructs each
conversation, extracts durable facts about the user, and synthesizes a
memory document served back over the API.

  imprint serve                Run the API server and pipeline workers
  imprint run <user> <path>    Process one archive and wait for the result
  imprint config               Manage persistent configuration`

const imprintShortDesc string = "Imprint - Chat Archive Memory"

func NewImprintCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "imprint",
		Short: imprintShortDesc,
		Long:  imprintLongDesc,
	}

	// Global flags
	cmd.PersistentFlags().BoolP("debug", "d", false, "Enable debug logging")
	cmd.PersistentFlags().String("config-dir", "", "Directory containing the .imprint config (default: auto-discover)")

	// Add subcommands
	cmd.AddCommand(servecmder.NewServeCmd())
	cmd.AddCommand(runcmder.NewRunCmd())
	cmd.AddCommand(configcmder.NewConfigCmd())
	cmd.AddCommand(versioncmder.NewVersionCmd())

	return cmd
}
