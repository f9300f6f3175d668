package cmd

import (
	"errors"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/spf13/cobra"
	"golang.org/x/term"

	"github.com/calembot/calembot/internal/adapters/channel/fbns"
	"github.com/calembot/calembot/internal/adapters/instagram"
	"github.com/calembot/calembot/internal/application"
	"github.com/calembot/calembot/internal/domain"
	"github.com/calembot/calembot/internal/ports"
)

// Default signed-body key of the mobile API version the client imitates.
const defaultSignatureKey = "19ce5f445dbfd9d29c59dc2a78c616a7fc090a8e018b9267bc4240a30244c53b"

func newRunCmd(app *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "run",
		Short: "Connect the push channel and answer messages until interrupted",
		RunE: func(cmd *cobra.Command, _ []string) error {
			username, password, err := resolveCredentials(cmd, app)
			if err != nil {
				return err
			}

			dict, err := app.dictionary()
			if err != nil {
				return err
			}

			signatureKey := app.cfg.GetString("ig.signature_key")
			if signatureKey == "" {
				signatureKey = defaultSignatureKey
			}
			factory := instagram.NewFactory(signatureKey)

			tokens := application.NewTokenService(username, password, app.sessions, factory, ports.SystemClock{}, app.logger)
			messenger := application.NewMessenger(tokens)
			responder := application.NewResponder(app.prefs, dict, messenger, app.logger)
			dispatcher := application.NewDispatcher(responder, messenger, tokens, app.logger)

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			channel := fbns.New(func() fbns.Credentials {
				state, err := app.sessions.Load(ctx, username)
				if err != nil {
					if !errors.Is(err, domain.ErrSessionNotFound) {
						app.logger.Warn("push_auth_load_error", "error", err.Error())
					}
					return fbns.Credentials{}
				}
				return fbns.CredentialsFromAuth(state.PushAuth)
			}, app.logger)

			handlers := ports.ChannelHandlers{
				OnAuthRenewed: func(auth []byte) {
					if err := tokens.HandleAuthRenewed(ctx, auth); err != nil {
						app.logger.Error("push_auth_store_error", "error", err.Error())
					}
				},
				OnTokenIssued: func(token string) {
					if err := tokens.HandleTokenIssued(ctx, token); err != nil {
						app.logger.Error("push_register_error", "error", err.Error())
					}
				},
				OnMessage: func(payload []byte) {
					dispatcher.Dispatch(ctx, payload)
				},
			}

			manager := application.NewConnectionManager(channel, app.channelConfig(), handlers, app.logger)
			return manager.Run(ctx)
		},
	}

	return cmd
}

// resolveCredentials reads the account username and password from config and
// environment, falling back to an interactive password prompt on a terminal.
func resolveCredentials(cmd *cobra.Command, app *app) (domain.Username, string, error) {
	username := strings.TrimSpace(app.cfg.GetString("ig.username"))
	if username == "" {
		return "", "", fmt.Errorf("account username is not set: set ig.username in config or %s_IG_USERNAME", envPrefix)
	}

	password := app.cfg.GetString("ig.password")
	if password == "" {
		prompted, err := promptPassword(cmd, username)
		if err != nil {
			return "", "", err
		}
		password = prompted
	}
	if password == "" {
		return "", "", errors.New("account password is empty")
	}

	return domain.Username(username), password, nil
}

func promptPassword(cmd *cobra.Command, username string) (string, error) {
	fd := int(os.Stdin.Fd())
	if !term.IsTerminal(fd) {
		return "", fmt.Errorf("account password is not set: set ig.password in config or %s_IG_PASSWORD", envPrefix)
	}

	fmt.Fprintf(cmd.OutOrStdout(), "Password for %s: ", username)
	secret, err := term.ReadPassword(fd)
	fmt.Fprintln(cmd.OutOrStdout())
	if err != nil {
		return "", fmt.Errorf("read password: %w", err)
	}
	return string(secret), nil
}
