package cli

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"minichat/internal/client"
)

// NewTailCommand crea el comando tail: imprime la lista en cada cambio.
func NewTailCommand(opts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:           "tail",
		Short:         "Follow the message list until interrupted",
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, stop := signal.NotifyContext(commandContext(cmd), os.Interrupt, syscall.SIGTERM)
			defer stop()
			return runTail(ctx, opts, cmd.OutOrStdout())
		},
	}
}

func runTail(ctx context.Context, opts *RootOptions, out io.Writer) error {
	a, err := openApp(opts)
	if err != nil {
		return err
	}
	defer a.Close()

	if a.sessions.CurrentSession() == nil {
		return fmt.Errorf("tail: %w, run `chat login` first", client.ErrNoSession)
	}

	mv := a.newMessageView()
	defer mv.Close()

	mv.OnRender(newListPrinter(out).Print)

	if err := mv.Initialize(ctx); err != nil {
		a.logger.Warn("tail initialized with errors")
		fmt.Fprintln(out, errorStyle.Render(err.Error()))
	}

	<-ctx.Done()
	return nil
}
