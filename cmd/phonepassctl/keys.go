package main

import (
	"crypto/rand"
	"encoding/base64"

	"github.com/spf13/cobra"

	"github.com/dropDatabas3/phonepass/internal/security/secretbox"
	tokens "github.com/dropDatabas3/phonepass/internal/security/token"
)

// keysCmd imprime un juego nuevo de secretos listo para pegar en .env.
func keysCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "keys",
		Short: "Genera secretos nuevos (formato .env)",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			key := make([]byte, secretbox.KeySize)
			if _, err := rand.Read(key); err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			printf(out, "EXCHANGE_KEY=%s\n", base64.StdEncoding.EncodeToString(key))
			for _, name := range []string{"IDENTITY_SECRET", "OTP_PEPPER", "WEB_LOGIN_SIGNING_SECRET", "WEB_LOGIN_SERVER_SALT"} {
				v, err := tokens.GenerateOpaqueToken(32)
				if err != nil {
					return err
				}
				printf(out, "%s=%s\n", name, v)
			}
			return nil
		},
	}
}
