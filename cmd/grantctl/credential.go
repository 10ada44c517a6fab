package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/vlinder/social-grant/pkg/credential"
)

func (c *cli) newCredentialCmd() *cobra.Command {
	var file string

	feed := func() *credential.CSVFeed {
		if file != "" {
			return credential.NewCSVFeed(file)
		}
		return credential.NewCSVFeed(c.cfg.CredentialFeed.CSVPath)
	}

	cmd := &cobra.Command{
		Use:   "credential",
		Short: "Inspect or seed the credential CSV feed",
	}
	cmd.PersistentFlags().StringVarP(&file, "file", "f", "", "CSV file (defaults to CREDENTIAL_CSV_PATH)")

	cmd.AddCommand(&cobra.Command{
		Use:   "get <nationalId>",
		Short: "Print the credential row for a citizen",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			record, err := feed().Get(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			if record == nil {
				return fmt.Errorf("no credential row for %s", args[0])
			}
			return printJSON(cmd.OutOrStdout(), record)
		},
	})

	cmd.AddCommand(&cobra.Command{
		Use:     "append <nationalId> <fullName>",
		Short:   "Append a citizen to the feed",
		Example: `  grantctl credential append 5012345678 "Asha Rao"`,
		Args:    cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			result, err := feed().Append(cmd.Context(), args[0], args[1])
			if err != nil {
				return err
			}
			if err := printJSON(cmd.OutOrStdout(), result); err != nil {
				return err
			}
			if !result.Success {
				return fmt.Errorf("%s", result.Message)
			}
			return nil
		},
	})

	return cmd
}
