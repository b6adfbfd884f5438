package main

import (
	"fmt"

	"github.com/google/uuid"
	"github.com/phrazzld/careminder/internal/service/auth"
	"github.com/spf13/cobra"
)

func newTokenCmd(load configLoader) *cobra.Command {
	var (
		patientID string
		scopes    []string
	)

	cmd := &cobra.Command{
		Use:   "token",
		Short: "Mint a bearer token for a patient",
		Long: `Prints a signed token for the patient, valid for auth.token_lifetime.
Meant for operators and local testing; production tokens come from the identity
provider sharing the signing secret.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			id, err := uuid.Parse(patientID)
			if err != nil {
				return fmt.Errorf("invalid patient id %q: %w", patientID, err)
			}

			cfg, err := load()
			if err != nil {
				return err
			}
			jwtService, err := auth.NewJWTService(cfg.Auth)
			if err != nil {
				return err
			}

			token, err := jwtService.GenerateToken(cmd.Context(), id, scopes...)
			if err != nil {
				return err
			}
			_, err = fmt.Fprintln(cmd.OutOrStdout(), token)
			return err
		},
	}

	cmd.Flags().StringVar(&patientID, "patient", "", "patient id the token is issued for")
	cmd.Flags().StringSliceVar(&scopes, "scope", nil,
		fmt.Sprintf("scopes to grant, e.g. %s", auth.ScopeNotesWrite))
	_ = cmd.MarkFlagRequired("patient")
	return cmd
}
