package main

import (
	"errors"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/cloudx-io/hotiron/client"
	"github.com/cloudx-io/hotiron/server"
)

var adminCmd = &cobra.Command{
	Use:   "admin",
	Short: "Administer a running service",
}

var (
	tokenSubject string
	tokenTTL     time.Duration
)

var adminTokenCmd = &cobra.Command{
	Use:   "token",
	Short: "Issue an admin bearer token signed with admin.jwt_secret",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, _ []string) error {
		if cfg.Admin.JWTSecret == "" {
			return usageError(errors.New("admin.jwt_secret is not configured"))
		}
		token, err := server.IssueAdminToken(cfg.Admin.JWTSecret, cfg.Admin.Issuer, tokenSubject, tokenTTL)
		if err != nil {
			return err
		}
		fmt.Fprintln(cmd.OutOrStdout(), token)
		return nil
	},
}

var (
	reloadRemote string
	reloadToken  string
)

var adminReloadCmd = &cobra.Command{
	Use:   "reload",
	Short: "Reload the seller registry of a running service",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, _ []string) error {
		token := reloadToken
		if token == "" {
			if cfg.Admin.JWTSecret == "" {
				return usageError(errors.New("set --token or admin.jwt_secret"))
			}
			var err error
			token, err = server.IssueAdminToken(cfg.Admin.JWTSecret, cfg.Admin.Issuer, "hotiron-cli", time.Minute)
			if err != nil {
				return err
			}
		}

		c, err := client.New(reloadRemote, client.WithAdminToken(token))
		if err != nil {
			return usageError(err)
		}
		resp, err := c.ReloadSellers(cmd.Context())
		if err != nil {
			return err
		}
		fmt.Fprintln(cmd.OutOrStdout(), passStyle.Render(fmt.Sprintf("Loaded %d sellers from %s (version %s)",
			resp.Sellers, resp.Source, resp.Version)))
		return nil
	},
}

func init() {
	adminTokenCmd.Flags().StringVar(&tokenSubject, "subject", "operator", "Token subject")
	adminTokenCmd.Flags().DurationVar(&tokenTTL, "ttl", time.Hour, "Token lifetime")

	adminReloadCmd.Flags().StringVar(&reloadRemote, "remote", "http://localhost:8000", "Base URL of the running service")
	adminReloadCmd.Flags().StringVar(&reloadToken, "token", "", "Admin bearer token (default: issued from admin.jwt_secret)")

	adminCmd.AddCommand(adminTokenCmd)
	adminCmd.AddCommand(adminReloadCmd)
}
