package cli

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/spf13/cobra"

	"minichat/internal/view"
)

// LoginOptions agrupa los flags de login.
type LoginOptions struct {
	*RootOptions
	Email    string
	Password string
	Code     bool
	SignUp   bool
}

// NewLoginCommand crea el comando login.
func NewLoginCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &LoginOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "login",
		Short: "Sign in and store the session locally",
		Long: `Sign in and store the session locally.

Examples:
  chat login --email me@example.com --password secret
  chat login --email me@example.com --signup --password secret
  chat login --email me@example.com --code`,
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runLogin(commandContext(cmd), opts, cmd.InOrStdin(), cmd.OutOrStdout())
		},
	}

	cmd.Flags().StringVar(&opts.Email, "email", "", "account email")
	cmd.Flags().StringVar(&opts.Password, "password", "", "account password")
	cmd.Flags().BoolVar(&opts.Code, "code", false, "sign in with a one-time code sent by email")
	cmd.Flags().BoolVar(&opts.SignUp, "signup", false, "create the account first")

	return cmd
}

func runLogin(ctx context.Context, opts *LoginOptions, in io.Reader, out io.Writer) error {
	a, err := openApp(opts.RootOptions)
	if err != nil {
		return err
	}
	defer a.Close()

	reader := bufio.NewReader(in)
	email := opts.Email
	if email == "" {
		email = prompt(reader, out, "Email: ")
	}

	auth := view.NewAuthView(a.sessions, a.logger)
	switch {
	case opts.Code:
		err = codeFlow(ctx, auth, reader, out, email)
	case opts.SignUp:
		err = auth.SignUp(ctx, email, passwordOrPrompt(opts.Password, reader, out))
	default:
		err = auth.SignIn(ctx, email, passwordOrPrompt(opts.Password, reader, out))
	}
	if err != nil {
		return fmt.Errorf("login: %w", err)
	}

	session := a.sessions.CurrentSession()
	if session == nil {
		return errors.New("login: no session returned")
	}
	fmt.Fprintf(out, "Signed in as %s\n", session.User.Email)
	return nil
}

func codeFlow(ctx context.Context, auth *view.AuthView, reader *bufio.Reader, out io.Writer, email string) error {
	if err := auth.RequestCode(ctx, email); err != nil {
		return err
	}
	fmt.Fprintf(out, "Code sent to %s\n", email)
	return auth.VerifyCode(ctx, email, prompt(reader, out, "Code: "))
}

func passwordOrPrompt(password string, reader *bufio.Reader, out io.Writer) string {
	if password != "" {
		return password
	}
	return prompt(reader, out, "Password: ")
}

func prompt(reader *bufio.Reader, out io.Writer, label string) string {
	fmt.Fprint(out, label)
	line, _ := reader.ReadString('\n')
	return strings.TrimSpace(line)
}
