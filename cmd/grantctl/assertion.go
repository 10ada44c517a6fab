package main

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/vlinder/social-grant/pkg/assertion"
)

type assertionOutput struct {
	Token     string    `json:"token"`
	Issuer    string    `json:"iss"`
	Subject   string    `json:"sub"`
	Audience  string    `json:"aud"`
	ID        string    `json:"jti"`
	IssuedAt  time.Time `json:"iat"`
	ExpiresAt time.Time `json:"exp"`
}

func (c *cli) newAssertionCmd() *cobra.Command {
	var (
		clientID string
		audience string
		keyFile  string
		par      bool
		raw      bool
	)

	cmd := &cobra.Command{
		Use:   "assertion",
		Short: "Mint a client assertion",
		Long: `Signs a private_key_jwt client assertion with the configured client key.
The audience defaults to the token endpoint, or to the PAR audience with --par.`,
		Example: `  grantctl assertion --client-id grant-portal
  grantctl assertion --client-id grant-portal --par --raw`,
		RunE: func(cmd *cobra.Command, args []string) error {
			esignetCfg := c.cfg.Esignet
			if keyFile != "" {
				esignetCfg.ClientPrivateKeyFile = keyFile
			}

			var opts []assertion.Option
			if esignetCfg.ClientKeyID != "" {
				opts = append(opts, assertion.WithKeyID(esignetCfg.ClientKeyID))
			}
			var (
				signer *assertion.Signer
				err    error
			)
			switch {
			case esignetCfg.ClientPrivateKeyFile != "":
				signer, err = assertion.NewSignerFromFile(esignetCfg.ClientPrivateKeyFile, opts...)
			case esignetCfg.ClientPrivateKey != "":
				signer, err = assertion.NewSignerFromPEM(esignetCfg.ClientPrivateKey, opts...)
			default:
				return fmt.Errorf("no client key: set CLIENT_PRIVATE_KEY, CLIENT_PRIVATE_KEY_FILE or --key-file")
			}
			if err != nil {
				return err
			}

			if audience == "" {
				resolved := esignetCfg.ToEsignetConfig()
				audience = resolved.TokenAudience
				if par {
					audience = resolved.PARAudience
				}
			}

			a, err := signer.Sign(clientID, audience)
			if err != nil {
				return err
			}
			if raw {
				_, err = fmt.Fprintln(cmd.OutOrStdout(), a.Token)
				return err
			}
			return printJSON(cmd.OutOrStdout(), assertionOutput{
				Token:     a.Token,
				Issuer:    a.Issuer,
				Subject:   a.Subject,
				Audience:  a.Audience,
				ID:        a.ID,
				IssuedAt:  a.IssuedAt,
				ExpiresAt: a.ExpiresAt,
			})
		},
	}

	cmd.Flags().StringVar(&clientID, "client-id", "", "registered eSignet client id")
	cmd.Flags().StringVar(&audience, "audience", "", "audience override")
	cmd.Flags().StringVar(&keyFile, "key-file", "", "PEM private key file override")
	cmd.Flags().BoolVar(&par, "par", false, "use the pushed authorization audience")
	cmd.Flags().BoolVar(&raw, "raw", false, "print only the compact token")
	_ = cmd.MarkFlagRequired("client-id")
	return cmd
}
