package main

import (
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/spf13/cobra"
	"golang.org/x/oauth2"

	"github.com/driveindex/driveindex/internal/tokenfile"
)

func newLoginCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "login",
		Short: "Save credentials for the remote drive",
		Long: `Save an access token and/or refresh token to the token file.

With a refresh token and remote.client_id / remote.token_url configured,
expired access tokens are renewed automatically and written back.`,
		Args: cobra.NoArgs,
		RunE: runLogin,
	}

	cmd.Flags().String("access-token", "", "bearer access token")
	cmd.Flags().String("refresh-token", "", "OAuth2 refresh token")
	cmd.Flags().Duration("expires-in", 0, "access token lifetime (0 = unknown)")
	cmd.Flags().String("account", "", "account name shown by status")

	return cmd
}

func newLogoutCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "logout",
		Short: "Remove saved credentials",
		Args:  cobra.NoArgs,
		RunE:  runLogout,
	}
}

func runLogin(cmd *cobra.Command, _ []string) error {
	cc := mustCLIContext(cmd.Context())

	access, _ := cmd.Flags().GetString("access-token")
	refresh, _ := cmd.Flags().GetString("refresh-token")
	expiresIn, _ := cmd.Flags().GetDuration("expires-in")
	account, _ := cmd.Flags().GetString("account")

	if access == "" && refresh == "" {
		return errors.New("specify --access-token, --refresh-token, or both")
	}

	if refresh != "" && (cc.Cfg.Remote.ClientID == "" || cc.Cfg.Remote.TokenURL == "") {
		cc.Logger.Warn("refresh token saved but remote.client_id or remote.token_url is not set; it cannot be used")
	}

	now := time.Now()
	tok := &oauth2.Token{
		AccessToken:  access,
		RefreshToken: refresh,
		TokenType:    "Bearer",
	}

	if expiresIn > 0 {
		tok.Expiry = now.Add(expiresIn)
	} else if access == "" {
		// Force a refresh on first use.
		tok.Expiry = now.Add(-time.Minute)
	}

	meta := map[string]string{tokenfile.MetaSavedAt: now.UTC().Format(time.RFC3339)}
	if account != "" {
		meta[tokenfile.MetaAccount] = account
	}

	path := cc.Cfg.Remote.TokenFile
	if err := tokenfile.Save(path, tok, meta); err != nil {
		return err
	}

	cc.Logger.Info("credentials saved", slog.String("path", path), slog.String("account", account))
	cc.Statusf("Credentials saved to %s\n", path)

	return nil
}

func runLogout(cmd *cobra.Command, _ []string) error {
	cc := mustCLIContext(cmd.Context())
	path := cc.Cfg.Remote.TokenFile

	removed, err := tokenfile.Remove(path)
	if err != nil {
		return err
	}

	if !removed {
		cc.Statusf("Not logged in.\n")
		return nil
	}

	cc.Logger.Info("credentials removed", slog.String("path", path))
	cc.Statusf("Logged out.\n")

	return nil
}

// expirySummary describes when an access token expires, for status output.
func expirySummary(tok *oauth2.Token, now time.Time) string {
	switch {
	case tok.Expiry.IsZero():
		return "no expiry"
	case tok.Expiry.Before(now):
		return fmt.Sprintf("expired %s ago", now.Sub(tok.Expiry).Round(time.Second))
	default:
		return fmt.Sprintf("expires in %s", tok.Expiry.Sub(now).Round(time.Second))
	}
}
