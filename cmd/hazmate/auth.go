package main

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"os"
	"strings"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
	"golang.org/x/term"

	"hazmate/pkg/auth"
	"hazmate/pkg/config"
	"hazmate/pkg/logger"
	"hazmate/pkg/meli"
)

// authCmd represents the auth command
var authCmd = &cobra.Command{
	Use:   "auth",
	Short: "Manage MercadoLibre OAuth credentials",
	Long: `Manage the OAuth token pair used to call the MercadoLibre API.

Credentials are stored using:
  - System keychain (when available)
  - Encrypted file with PBKDF2 key derivation
  - Dotenv file (backward compatibility)

The access token is refreshed automatically during collection; you only need
to log in again when the refresh token itself expires or is revoked.`,
}

// loginCmd represents the auth login command
var loginCmd = &cobra.Command{
	Use:   "login",
	Short: "Authorize the application and store the token pair",
	Long: `Run the OAuth authorization code flow and store the resulting token pair.

You will be prompted for:
  - Application client ID (if not configured)
  - Application client secret (if not configured, hidden as you type)
  - The authorization code from the redirect URL

The command prints an authorization URL. Open it in a browser, approve the
application, and paste back the 'code' parameter from the URL you are
redirected to.`,
	Example: `  # Interactive login
  hazmate auth login`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		return runLogin(cmd.Context())
	},
}

// statusCmd represents the auth status command
var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show the stored credential status",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		return runStatus()
	},
}

// logoutCmd represents the auth logout command
var logoutCmd = &cobra.Command{
	Use:   "logout",
	Short: "Remove the stored token pair",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		return runLogout()
	},
}

func init() {
	rootCmd.AddCommand(authCmd)
	authCmd.AddCommand(loginCmd)
	authCmd.AddCommand(statusCmd)
	authCmd.AddCommand(logoutCmd)
}

func runLogin(ctx context.Context) error {
	cfg, err := loadConfigLenient()
	if err != nil {
		return err
	}

	reader := bufio.NewReader(os.Stdin)

	clientID := cfg.Auth.ClientID
	if clientID == "" {
		fmt.Print("Application client ID: ")
		input, err := reader.ReadString('\n')
		if err != nil {
			return fmt.Errorf("failed to read client ID: %w", err)
		}
		clientID = strings.TrimSpace(input)
	}
	if clientID == "" {
		return errors.New("client ID is required")
	}

	clientSecret := cfg.Auth.ClientSecret
	if clientSecret == "" {
		fmt.Print("Application client secret (hidden): ")
		clientSecret, err = readPassword()
		if err != nil {
			return fmt.Errorf("failed to read client secret: %w", err)
		}
	}
	if clientSecret == "" {
		return errors.New("client secret is required")
	}

	fmt.Println()
	fmt.Println("Open this URL in a browser and approve the application:")
	fmt.Println()
	fmt.Printf("  %s\n", meli.AuthorizationURL(clientID, cfg.Auth.RedirectURI))
	fmt.Println()
	fmt.Print("Paste the 'code' parameter from the redirect URL: ")
	input, err := reader.ReadString('\n')
	if err != nil {
		return fmt.Errorf("failed to read authorization code: %w", err)
	}
	code := strings.TrimSpace(input)
	if code == "" {
		return errors.New("authorization code is required")
	}

	client := meli.NewClient(30*time.Second, logger.NewNopLogger())
	tok, err := client.ExchangeAuthorizationCode(ctx, clientID, clientSecret, code, cfg.Auth.RedirectURI)
	if err != nil {
		return fmt.Errorf("authorization code exchange failed: %w", err)
	}

	cred := auth.Credential{
		AccessToken:  tok.AccessToken,
		RefreshToken: tok.RefreshToken,
		ExpiresAt:    auth.ExpiresAtFromNow(tok.ExpiresIn, time.Now()),
	}

	manager, err := auth.NewManager(cfg.Auth.TokenFile)
	if err != nil {
		return fmt.Errorf("failed to initialize token store: %w", err)
	}
	if err := manager.Store(&cred); err != nil {
		return fmt.Errorf("failed to store credentials: %w", err)
	}

	fmt.Println()
	fmt.Printf("Logged in. Access token valid until %s\n", cred.ExpiresAt.Format(time.RFC3339))
	if cred.RefreshToken == "" {
		fmt.Println("Warning: no refresh token was issued; collection runs longer than the token lifetime will fail")
	}
	return nil
}

func runStatus() error {
	cfg, err := loadConfigLenient()
	if err != nil {
		return err
	}

	manager, err := auth.NewManager(cfg.Auth.TokenFile)
	if err != nil {
		return fmt.Errorf("failed to initialize token store: %w", err)
	}
	cred, err := manager.Retrieve()
	if err != nil {
		if errors.Is(err, auth.ErrCredentialsNotFound) {
			fmt.Println("No stored credentials. Run 'hazmate auth login'.")
			return nil
		}
		return fmt.Errorf("failed to load credentials: %w", err)
	}

	remaining := cred.RemainingLifetime(time.Now())
	fmt.Printf("Access token:  %s\n", maskToken(cred.AccessToken))
	fmt.Printf("Refresh token: %s\n", maskToken(cred.RefreshToken))
	fmt.Printf("Expires at:    %s\n", cred.ExpiresAt.Format(time.RFC3339))
	if remaining > 0 {
		fmt.Printf("Status:        valid for %s\n", remaining.Round(time.Second))
	} else {
		fmt.Println("Status:        expired (will be refreshed on next use)")
	}
	return nil
}

func runLogout() error {
	cfg, err := loadConfigLenient()
	if err != nil {
		return err
	}

	manager, err := auth.NewManager(cfg.Auth.TokenFile)
	if err != nil {
		return fmt.Errorf("failed to initialize token store: %w", err)
	}
	if !manager.Exists() {
		fmt.Println("No stored credentials.")
		return nil
	}
	if err := manager.Delete(); err != nil {
		return fmt.Errorf("failed to remove credentials: %w", err)
	}
	fmt.Println("Credentials removed.")
	return nil
}

// loadConfigLenient loads configuration without requiring the OAuth client
// to be configured yet. Used by commands that run before login.
func loadConfigLenient() (*config.Config, error) {
	_ = godotenv.Load(".env")

	cfg := config.DefaultConfig()
	if err := cfg.LoadFromFile(configFile); err != nil {
		return nil, fmt.Errorf("failed to load config file: %w", err)
	}
	if err := cfg.LoadFromEnv(); err != nil {
		return nil, fmt.Errorf("failed to load environment variables: %w", err)
	}
	return cfg, nil
}

// readPassword reads a password from stdin without echoing
func readPassword() (string, error) {
	bytePassword, err := term.ReadPassword(int(syscall.Stdin))
	if err != nil {
		return "", err
	}
	fmt.Println()
	return strings.TrimSpace(string(bytePassword)), nil
}

func maskToken(token string) string {
	if token == "" {
		return "(none)"
	}
	if len(token) <= 8 {
		return "****"
	}
	return token[:4] + "..." + token[len(token)-4:]
}
