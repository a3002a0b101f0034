package cli

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"sync"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"minichat/internal/shell"
	"minichat/internal/view"
)

// NewRunCommand crea el comando run: la terminal interactiva.
func NewRunCommand(opts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "run",
		Short: "Interactive chat",
		Long: `Interactive chat.

Without a session it asks for credentials:
  login <email> <password>
  signup <email> <password>
  code <email>
Signed in, any line is posted as a message. Commands: /refresh, /logout, /quit.`,
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runInteractive(commandContext(cmd), opts, cmd.InOrStdin(), cmd.OutOrStdout())
		},
	}
}

// lockedWriter serializa las escrituras del loop y de los renders del feed.
type lockedWriter struct {
	mu  sync.Mutex
	out io.Writer
}

func (w *lockedWriter) Write(p []byte) (int, error) {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.out.Write(p)
}

func runInteractive(ctx context.Context, opts *RootOptions, in io.Reader, rawOut io.Writer) error {
	a, err := openApp(opts)
	if err != nil {
		return err
	}
	defer a.Close()

	out := &lockedWriter{out: rawOut}
	reader := bufio.NewReader(in)
	auth := view.NewAuthView(a.sessions, a.logger)

	sh := shell.New(a.sessions, a.logger)
	defer sh.Close()
	sh.OnRoute(func(route string) {
		a.logger.Debug("route", zap.String("route", route))
	})
	sh.Start()

	var (
		mv     *view.MessageView
		active string
	)
	defer func() {
		if mv != nil {
			mv.Close()
		}
	}()

	for {
		route := sh.Current()
		if route != active {
			if mv != nil {
				mv.Close()
				mv = nil
			}
			if route == shell.RouteDashboard {
				mv = a.newMessageView()
				mv.OnRender(newListPrinter(out).Print)
				if err := mv.Initialize(ctx); err != nil {
					fmt.Fprintln(out, errorStyle.Render(err.Error()))
				}
			} else {
				fmt.Fprintln(out, titleStyle.Render("Sign in"))
				fmt.Fprintln(out, mutedStyle.Render("login <email> <password> | signup <email> <password> | code <email> | /quit"))
			}
			active = route
		}

		if route == shell.RouteDashboard {
			fmt.Fprint(out, "> ")
		} else {
			fmt.Fprint(out, "auth> ")
		}
		line, readErr := reader.ReadString('\n')
		line = strings.TrimSpace(line)

		if line == "/quit" {
			return nil
		}
		if line != "" {
			if route == shell.RouteDashboard {
				handleDashboardLine(ctx, mv, line, out)
			} else {
				handleAuthLine(ctx, auth, reader, out, line)
			}
		}

		if readErr != nil {
			if errors.Is(readErr, io.EOF) {
				return nil
			}
			return fmt.Errorf("read input: %w", readErr)
		}
	}
}

func handleDashboardLine(ctx context.Context, mv *view.MessageView, line string, out io.Writer) {
	switch line {
	case "/logout":
		if err := mv.Logout(ctx); err != nil {
			fmt.Fprintln(out, errorStyle.Render(err.Error()))
		}
	case "/refresh":
		_ = mv.Fetch(ctx)
	default:
		mv.SetDraft(line)
		if !mv.Snapshot().CanSubmit {
			fmt.Fprintln(out, mutedStyle.Render("Cannot post yet: identity unknown"))
			return
		}
		// el error ya queda en el snapshot renderizado
		_ = mv.Submit(ctx)
	}
}

func handleAuthLine(ctx context.Context, auth *view.AuthView, reader *bufio.Reader, out io.Writer, line string) {
	fields := strings.Fields(line)
	var err error
	switch {
	case len(fields) == 3 && fields[0] == "login":
		err = auth.SignIn(ctx, fields[1], fields[2])
	case len(fields) == 3 && fields[0] == "signup":
		err = auth.SignUp(ctx, fields[1], fields[2])
	case len(fields) == 2 && fields[0] == "code":
		err = codeFlow(ctx, auth, reader, out, fields[1])
	default:
		fmt.Fprintln(out, mutedStyle.Render("Unknown command."))
		return
	}
	if err != nil {
		fmt.Fprintln(out, errorStyle.Render(err.Error()))
	}
}
