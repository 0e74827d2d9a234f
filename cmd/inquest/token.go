// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Inquest Contributors

package main

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/inquest-dev/inquest/internal/auth"
	"github.com/inquest-dev/inquest/internal/secrets"
	inqerr "github.com/inquest-dev/inquest/pkg/errors"
)

func newTokenCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "token <app-id>",
		Short: "Mint an app token",
		Long:  "Sign a short-lived app token with the configured JWT secret. The gateway accepts it as the Bearer token on tool and investigation requests.",
		Args:  cobra.ExactArgs(1),
		RunE:  runToken,
	}

	cmd.Flags().Duration("ttl", time.Hour, "token lifetime")

	return cmd
}

func runToken(cmd *cobra.Command, args []string) error {
	ttl, _ := cmd.Flags().GetDuration("ttl")

	cfg, _, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	if cfg.Auth.JWTSecret == "" {
		return inqerr.New(inqerr.CodeCLISetupFailure,
			"auth.jwt_secret is not configured; tokens cannot be minted locally")
	}

	secret, err := secrets.Resolve(secrets.NewKeyringStore(), cfg.Auth.JWTSecret)
	if err != nil {
		return err
	}

	token, err := auth.NewJWTVerifier([]byte(secret)).Generate(args[0], ttl)
	if err != nil {
		return err
	}

	fmt.Fprintln(cmd.OutOrStdout(), token)
	return nil
}
