// Command cdpcli is a command-line client over a CDP connection
// (SPEC_FULL.md §11 domain stack): connect, print the tree, read a
// value, write a value, or watch a value change.
package main

import (
	"context"
	"crypto/tls"
	"fmt"
	"os"
	"sync"

	"github.com/urfave/cli/v2"
	"golang.org/x/exp/slog"

	"github.com/cdptech/cdpclient"
	"github.com/cdptech/cdpclient/internal/config"
	"github.com/cdptech/cdpclient/internal/credwatch"
	"github.com/cdptech/cdpclient/internal/debugsrv"
	"github.com/cdptech/cdpclient/internal/metrics"
)

func main() {
	app := &cli.App{
		Name:  "cdpcli",
		Usage: "inspect and drive a CDP-speaking application from the command line",
		Flags: []cli.Flag{
			&cli.StringFlag{Name: "config", Usage: "path to a TOML config file (SPEC_FULL.md §10.3)"},
			&cli.StringFlag{Name: "host", Usage: "overrides config host"},
			&cli.IntFlag{Name: "port", Usage: "overrides config port"},
		},
		Commands: []*cli.Command{
			connectCommand,
			treeCommand,
			getCommand,
			setCommand,
			watchCommand,
		},
	}
	if err := app.Run(os.Args); err != nil {
		fmt.Fprintln(os.Stderr, "cdpcli:", err)
		os.Exit(1)
	}
}

// loadConfig merges -config, -host, and -port into an effective config.Config.
func loadConfig(c *cli.Context) (config.Config, error) {
	cfg := config.Default()
	if path := c.String("config"); path != "" {
		var err error
		cfg, err = config.Load(path)
		if err != nil {
			return config.Config{}, err
		}
	}
	if h := c.String("host"); h != "" {
		cfg.Host = h
	}
	if p := c.Int("port"); p != 0 {
		cfg.Port = p
	}
	return cfg, nil
}

// newClient builds a Client from the resolved config, wiring in a
// credential-file watcher and debug server when configured.
func newClient(c *cli.Context, logger *slog.Logger) (*cdpclient.Client, func(), error) {
	cfg, err := loadConfig(c)
	if err != nil {
		return nil, nil, err
	}

	collector := metrics.New()
	var closers []func() error

	var listener cdpclient.Listener = &acceptingListener{}
	if cfg.CredentialsFile != "" {
		al := &acceptingListener{}
		watcher, err := credwatch.New(cfg.CredentialsFile, al.setCreds, logger)
		if err != nil {
			return nil, nil, fmt.Errorf("cdpcli: %w", err)
		}
		closers = append(closers, watcher.Close)
		listener = al
	}

	var tlsConfig *tls.Config
	if cfg.TLS.Enabled {
		tlsConfig = &tls.Config{InsecureSkipVerify: cfg.TLS.InsecureSkipVerify}
		if cfg.TLS.CertFile != "" {
			cert, err := tls.LoadX509KeyPair(cfg.TLS.CertFile, cfg.TLS.KeyFile)
			if err != nil {
				return nil, nil, fmt.Errorf("cdpcli: %w", err)
			}
			tlsConfig.Certificates = []tls.Certificate{cert}
		}
	}

	client := cdpclient.New(cdpclient.Options{
		Host:          cfg.Host,
		Port:          cfg.Port,
		AutoReconnect: cfg.AutoReconnect,
		Listener:      listener,
		Logger:        logger,
		Metrics:       collector,
		TLSConfig:     tlsConfig,
	})

	if cfg.DebugListenAddr != "" {
		srv, err := debugsrv.New(cfg.DebugListenAddr, collector, client.CachedRoot, cfg.DebugToken, logger)
		if err != nil {
			return nil, nil, fmt.Errorf("cdpcli: %w", err)
		}
		closers = append(closers, srv.Close)
	}

	cleanup := func() {
		for _, close := range closers {
			close()
		}
	}
	return client, cleanup, nil
}

// acceptingListener accepts every application and supplies whatever
// credentials were most recently delivered by credwatch, if any. creds is
// written from credwatch's watch goroutine and read from the session's
// auth goroutine, so both sides go through mu.
type acceptingListener struct {
	mu    sync.Mutex
	creds map[string]string
}

func (l *acceptingListener) setCreds(c map[string]string) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.creds = c
}

func (*acceptingListener) OnApplicationAcceptanceRequested(req *cdpclient.AcceptanceRequest) {
	req.Accept()
}

func (l *acceptingListener) OnCredentialsRequested(req *cdpclient.CredentialsRequest) {
	l.mu.Lock()
	creds := l.creds
	l.mu.Unlock()
	if creds == nil {
		req.Reject()
		return
	}
	req.Accept(creds)
}

var connectCommand = &cli.Command{
	Name:  "connect",
	Usage: "connect and block until interrupted, printing state transitions",
	Action: func(c *cli.Context) error {
		logger := slog.Default()
		client, cleanup, err := newClient(c, logger)
		if err != nil {
			return err
		}
		defer cleanup()

		ctx := c.Context
		fmt.Println("connecting...")
		return client.RunEventLoop(ctx)
	},
}

var treeCommand = &cli.Command{
	Name:  "tree",
	Usage: "print the node tree rooted at the local application",
	Action: func(c *cli.Context) error {
		logger := slog.Default()
		client, cleanup, err := newClient(c, logger)
		if err != nil {
			return err
		}
		defer cleanup()

		ctx, cancel := context.WithCancel(c.Context)
		go client.RunEventLoop(ctx)
		defer cancel()

		rootOutcome := client.Root().Recv()
		if rootOutcome.Err != nil {
			return rootOutcome.Err
		}
		root := rootOutcome.Value.(*cdpclient.Node)
		return printTree(root, 0)
	},
}

func printTree(n *cdpclient.Node, depth int) error {
	for i := 0; i < depth; i++ {
		fmt.Print("  ")
	}
	fmt.Println(n.Name())

	childrenOutcome := n.Children().Recv()
	if childrenOutcome.Err != nil {
		return childrenOutcome.Err
	}
	for _, child := range childrenOutcome.Value.([]*cdpclient.Node) {
		if err := printTree(child, depth+1); err != nil {
			return err
		}
	}
	return nil
}

var getCommand = &cli.Command{
	Name:      "get",
	Usage:     "read a value by dotted path",
	ArgsUsage: "<dotted.path>",
	Action: func(c *cli.Context) error {
		path := c.Args().First()
		if path == "" {
			return fmt.Errorf("cdpcli get: missing <dotted.path>")
		}
		logger := slog.Default()
		client, cleanup, err := newClient(c, logger)
		if err != nil {
			return err
		}
		defer cleanup()

		ctx, cancel := context.WithCancel(c.Context)
		go client.RunEventLoop(ctx)
		defer cancel()

		nodeOutcome := client.FindNode(path).Recv()
		if nodeOutcome.Err != nil {
			return nodeOutcome.Err
		}
		node := nodeOutcome.Value.(*cdpclient.Node)
		fmt.Println(node.LastValue())
		return nil
	},
}

var setCommand = &cli.Command{
	Name:      "set",
	Usage:     "write a value by dotted path",
	ArgsUsage: "<dotted.path> <value>",
	Action: func(c *cli.Context) error {
		path := c.Args().Get(0)
		raw := c.Args().Get(1)
		if path == "" || raw == "" {
			return fmt.Errorf("cdpcli set: requires <dotted.path> <value>")
		}
		logger := slog.Default()
		client, cleanup, err := newClient(c, logger)
		if err != nil {
			return err
		}
		defer cleanup()

		ctx, cancel := context.WithCancel(c.Context)
		go client.RunEventLoop(ctx)
		defer cancel()

		nodeOutcome := client.FindNode(path).Recv()
		if nodeOutcome.Err != nil {
			return nodeOutcome.Err
		}
		node := nodeOutcome.Value.(*cdpclient.Node)
		v, err := parseValueForType(node.ValueType(), raw)
		if err != nil {
			return err
		}
		return node.SetValue(v, 0)
	},
}

var watchCommand = &cli.Command{
	Name:      "watch",
	Usage:     "print every value update for a dotted path until interrupted",
	ArgsUsage: "<dotted.path>",
	Action: func(c *cli.Context) error {
		path := c.Args().First()
		if path == "" {
			return fmt.Errorf("cdpcli watch: missing <dotted.path>")
		}
		logger := slog.Default()
		client, cleanup, err := newClient(c, logger)
		if err != nil {
			return err
		}
		defer cleanup()

		ctx, cancel := context.WithCancel(c.Context)
		defer cancel()
		go client.RunEventLoop(ctx)

		nodeOutcome := client.FindNode(path).Recv()
		if nodeOutcome.Err != nil {
			return nodeOutcome.Err
		}
		node := nodeOutcome.Value.(*cdpclient.Node)
		node.SubscribeToValueChanges(func(value any, timestampNS int64) {
			fmt.Printf("%d %v\n", timestampNS, value)
		})
		<-ctx.Done()
		return nil
	},
}
