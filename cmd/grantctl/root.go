package main

import (
	"encoding/json"
	"io"

	"github.com/spf13/cobra"

	"github.com/vlinder/social-grant/pkg/config"
)

// cli carries the configuration loaded before any subcommand runs
type cli struct {
	cfg *config.Config
}

func newRootCmd() *cobra.Command {
	c := &cli{}
	root := &cobra.Command{
		Use:   "grantctl",
		Short: "Operator tooling for the social grant service",
		Long: `grantctl reads the same environment (and .env file) as grant-server.
It mints eSignet client assertions, decodes userinfo responses and
inspects or seeds the credential CSV feed.`,
		SilenceUsage: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load()
			if err != nil {
				return err
			}
			c.cfg = cfg
			return nil
		},
	}

	root.AddCommand(
		c.newAssertionCmd(),
		c.newDecodeUserInfoCmd(),
		c.newCredentialCmd(),
	)
	return root
}

func printJSON(w io.Writer, v interface{}) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
