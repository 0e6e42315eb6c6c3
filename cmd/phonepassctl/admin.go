package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/dropDatabas3/phonepass/internal/domain/repository"
	"github.com/dropDatabas3/phonepass/internal/domain/types"
	tokens "github.com/dropDatabas3/phonepass/internal/security/token"
)

func credentialCmd(c *cli) *cobra.Command {
	cmd := &cobra.Command{Use: "credential", Short: "Administra AppCredentials"}

	var secret string
	rotate := &cobra.Command{
		Use:   "rotate-secret <client_id>",
		Short: "Reemplaza el client secret (invalida tokens web-login en vuelo)",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			newSecret := secret
			if newSecret == "" {
				var err error
				if newSecret, err = tokens.GenerateOpaqueToken(32); err != nil {
					return err
				}
			}
			return c.withStore(cmd.Context(), func(st repository.Store) error {
				if err := st.RotateCredentialSecret(cmd.Context(), args[0], newSecret); err != nil {
					return err
				}
				printf(cmd.OutOrStdout(), "client_id=%s\nclient_secret=%s\n", args[0], newSecret)
				return nil
			})
		},
	}
	rotate.Flags().StringVar(&secret, "secret", "", "secreto a usar (default: aleatorio)")

	status := &cobra.Command{
		Use:   "set-status <client_id> <active|inactive>",
		Short: "Activa o desactiva una credencial",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			s := types.CredentialStatus(args[1])
			if !s.IsValid() {
				return fmt.Errorf("estado inválido: %q", args[1])
			}
			return c.withStore(cmd.Context(), func(st repository.Store) error {
				if err := st.SetCredentialStatus(cmd.Context(), args[0], s); err != nil {
					return err
				}
				printf(cmd.OutOrStdout(), "%s -> %s\n", args[0], s)
				return nil
			})
		},
	}

	cmd.AddCommand(rotate, status)
	return cmd
}

func appUserCmd(c *cli) *cobra.Command {
	cmd := &cobra.Command{Use: "appuser", Short: "Administra bindings App/Identity"}

	reset := &cobra.Command{
		Use:   "mark-reset <app_user_id>",
		Short: "Rota el external id en el próximo redeem",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return c.withStore(cmd.Context(), func(st repository.Store) error {
				if err := st.MarkAppUserReset(cmd.Context(), args[0]); err != nil {
					return err
				}
				printf(cmd.OutOrStdout(), "%s marcado para reset\n", args[0])
				return nil
			})
		},
	}

	access := &cobra.Command{
		Use:   "set-access <app_user_id> <granted|denied>",
		Short: "Concede o revoca el acceso del binding",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			s := types.AccessStatus(args[1])
			if !s.IsValid() {
				return fmt.Errorf("acceso inválido: %q", args[1])
			}
			return c.withStore(cmd.Context(), func(st repository.Store) error {
				if err := st.SetAppUserAccess(cmd.Context(), args[0], s); err != nil {
					return err
				}
				printf(cmd.OutOrStdout(), "%s -> %s\n", args[0], s)
				return nil
			})
		},
	}

	cmd.AddCommand(reset, access)
	return cmd
}

func identityCmd(c *cli) *cobra.Command {
	cmd := &cobra.Command{Use: "identity", Short: "Administra identidades"}
	cmd.AddCommand(&cobra.Command{
		Use:   "set-status <identity_id> <verified|suspended|unverified>",
		Short: "Cambia el estado de una identidad",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			s := types.IdentityStatus(args[1])
			if !s.IsValid() {
				return fmt.Errorf("estado inválido: %q", args[1])
			}
			return c.withStore(cmd.Context(), func(st repository.Store) error {
				if err := st.SetIdentityStatus(cmd.Context(), args[0], s); err != nil {
					return err
				}
				printf(cmd.OutOrStdout(), "%s -> %s\n", args[0], s)
				return nil
			})
		},
	})
	return cmd
}

func exchangeCmd(c *cli) *cobra.Command {
	cmd := &cobra.Command{Use: "exchange", Short: "Mantenimiento de exchange sessions"}
	cmd.AddCommand(&cobra.Command{
		Use:   "sweep",
		Short: "Borra las exchange sessions vencidas",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return c.withStore(cmd.Context(), func(st repository.Store) error {
				n, err := st.DeleteExpiredExchangeSessions(cmd.Context(), c.now())
				if err != nil {
					return err
				}
				printf(cmd.OutOrStdout(), "%d sesiones borradas\n", n)
				return nil
			})
		},
	})
	return cmd
}
