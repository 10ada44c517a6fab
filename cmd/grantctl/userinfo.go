package main

import (
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/vlinder/social-grant/pkg/userinfo"
)

func (c *cli) newDecodeUserInfoCmd() *cobra.Command {
	var (
		responseType string
		key          string
	)

	cmd := &cobra.Command{
		Use:   "decode-userinfo [file]",
		Short: "Decode a userinfo response into claims",
		Long: `Decrypts (JWE) or decodes (JWT) a userinfo body read from a file or stdin.
Signatures are not verified.`,
		Example: `  grantctl decode-userinfo response.txt
  curl -s ... | grantctl decode-userinfo --type jwt`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			var in io.Reader = cmd.InOrStdin()
			if len(args) == 1 && args[0] != "-" {
				f, err := os.Open(args[0])
				if err != nil {
					return err
				}
				defer f.Close()
				in = f
			}
			body, err := io.ReadAll(in)
			if err != nil {
				return fmt.Errorf("failed to read userinfo response: %w", err)
			}

			if responseType == "" {
				responseType = c.cfg.Esignet.UserInfoResponseType
			}
			if key == "" {
				key = c.cfg.Esignet.UserInfoPrivateKey
			}
			var opts []userinfo.Option
			if key != "" {
				opts = append(opts, userinfo.WithDecryptionKey(key))
			}

			claims, err := userinfo.NewDecoder(opts...).Decode(cmd.Context(), strings.TrimSpace(string(body)), responseType)
			if err != nil {
				return err
			}
			return printJSON(cmd.OutOrStdout(), claims)
		},
	}

	cmd.Flags().StringVar(&responseType, "type", "", "jwe or jwt (defaults to USERINFO_RESPONSE_TYPE)")
	cmd.Flags().StringVar(&key, "key", "", "base64 encoded private JWK (defaults to JWE_USERINFO_PRIVATE_KEY)")
	return cmd
}
