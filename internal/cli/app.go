package cli

import (
	"fmt"
	"io"

	"go.uber.org/zap"

	"minichat/internal/client"
	"minichat/internal/directory"
	"minichat/internal/localstore"
	"minichat/internal/view"
)

// app agrupa las dependencias del cliente para un comando.
type app struct {
	logger    *zap.Logger
	sessions  *client.HTTPSessionStore
	table     *client.HTTPMessageTable
	feed      *client.WSChangeFeed
	directory *directory.Directory
	closer    io.Closer
}

func openApp(opts *RootOptions) (*app, error) {
	logger := zap.NewNop()
	if opts.Verbose {
		l, err := zap.NewDevelopment()
		if err != nil {
			return nil, fmt.Errorf("init logger: %w", err)
		}
		logger = l
	}

	var (
		store  localstore.Store
		closer io.Closer
	)
	if opts.StatePath == "" {
		store = localstore.NewMemoryStore()
	} else {
		sqlite, err := localstore.Open(opts.StatePath)
		if err != nil {
			return nil, err
		}
		store, closer = sqlite, sqlite
	}

	sessions := client.NewHTTPSessionStore(opts.APIURL, store, logger, nil)
	return &app{
		logger:    logger,
		sessions:  sessions,
		table:     client.NewHTTPMessageTable(opts.APIURL, sessions, nil),
		feed:      client.NewWSChangeFeed(opts.APIURL, sessions, logger),
		directory: directory.New(store, logger, opts.DirectoryMaxEntries),
		closer:    closer,
	}, nil
}

func (a *app) newMessageView() *view.MessageView {
	return view.NewMessageView(a.sessions, a.table, a.feed, a.directory, a.logger)
}

func (a *app) Close() error {
	_ = a.logger.Sync()
	if a.closer != nil {
		return a.closer.Close()
	}
	return nil
}
