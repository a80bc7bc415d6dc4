// Package cmd is the fileshare command line.
package cmd

import (
	"context"
	"fmt"
	"net"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"github.com/Dyastin-0/fileshare/core"
	"github.com/Dyastin-0/fileshare/logger"
	"github.com/common-nighthawk/go-figure"
	"github.com/urfave/cli/v3"
)

const defaultDir = "fileshare/received"

func New() *cli.Command {
	return &cli.Command{
		Name:    "fileshare",
		Usage:   "share files with peers on the local network",
		Version: core.VERSION,
		Flags:   globalFlags(),
		Action:  fileshareAction,
		Commands: []*cli.Command{
			serveCommand(),
			peersCommand(),
			lsCommand(),
			getCommand(),
			pullCommand(),
			browseCommand(),
		},
	}
}

func fileshareAction(ctx context.Context, cmd *cli.Command) error {
	figure := figure.NewFigure("fileshare", "", true)
	figure.Print()

	fmt.Println()

	return cli.ShowAppHelp(cmd)
}

func globalFlags() []cli.Flag {
	return []cli.Flag{
		&cli.StringFlag{
			Name:    "addr",
			Aliases: []string{"a"},
			Usage:   "transfer server listen address",
			Value:   fmt.Sprintf(":%d", core.TransferPort),
			Sources: cli.EnvVars("FILESHARE_ADDR"),
		},
		&cli.StringFlag{
			Name:    "group",
			Usage:   "discovery multicast group",
			Value:   core.DiscoveryGroup,
			Sources: cli.EnvVars("FILESHARE_GROUP"),
		},
		&cli.IntFlag{
			Name:    "discovery-port",
			Usage:   "discovery udp port",
			Value:   core.DiscoveryPort,
			Sources: cli.EnvVars("FILESHARE_DISCOVERY_PORT"),
		},
		&cli.StringFlag{
			Name:    "dir",
			Aliases: []string{"d"},
			Usage:   "download directory",
			Value:   filepath.Join(homeDir(), defaultDir),
			Sources: cli.EnvVars("FILESHARE_DIR"),
		},
		&cli.StringFlag{
			Name:    "log",
			Usage:   "log file, defaults to ~/fileshare/logs/fileshare.log",
			Sources: cli.EnvVars("FILESHARE_LOG"),
		},
		&cli.BoolFlag{
			Name:    "verbose",
			Aliases: []string{"v"},
			Usage:   "also write logs to stderr",
			Sources: cli.EnvVars("FILESHARE_VERBOSE"),
		},
		&cli.IntFlag{
			Name:    "workers",
			Usage:   "maximum concurrent transfer connections",
			Value:   core.DefaultMaxWorkers,
			Sources: cli.EnvVars("FILESHARE_WORKERS"),
		},
	}
}

// configFrom maps the global flags onto a node config. The client dials the
// port the server listens on, so nodes sharing flags reach each other.
func configFrom(cmd *cli.Command) (core.Config, error) {
	cfg := core.DefaultConfig()

	addr := cmd.String("addr")
	_, port, err := net.SplitHostPort(addr)
	if err != nil {
		return cfg, fmt.Errorf("invalid --addr %q: %w", addr, err)
	}

	p, err := strconv.Atoi(port)
	if err != nil || p < 0 || p > 65535 {
		return cfg, fmt.Errorf("invalid --addr port %q", port)
	}

	cfg.Server.Addr = addr
	cfg.Server.MaxWorkers = int64(cmd.Int("workers"))
	if p != 0 {
		cfg.Client.Port = p
	}

	cfg.Discovery.Group = cmd.String("group")
	cfg.Discovery.Port = int(cmd.Int("discovery-port"))

	return cfg, nil
}

func newLogger(cmd *cli.Command) (logger.Logger, error) {
	path := cmd.String("log")
	if path == "" {
		var err error
		path, err = logger.LogPath("logs")
		if err != nil {
			return nil, err
		}
	}

	log := logger.New()
	if cmd.Bool("verbose") {
		log.InitMultiWriter(path)
	} else {
		log.Init(path)
	}

	return log, nil
}

func newNode(cmd *cli.Command) (*core.Node, logger.Logger, error) {
	cfg, err := configFrom(cmd)
	if err != nil {
		return nil, nil, err
	}

	log, err := newLogger(cmd)
	if err != nil {
		return nil, nil, err
	}

	return core.NewNode(cfg, log), log, nil
}

// waitForPeers runs discovery for up to wait, returning early once a peer
// other than this host shows up when early is set.
func waitForPeers(ctx context.Context, d *core.Discovery, wait time.Duration, early bool) {
	ctx, cancel := context.WithTimeout(ctx, wait)
	defer cancel()

	ticker := time.NewTicker(200 * time.Millisecond)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if early && len(core.WithoutLocal(d.Peers())) > 0 {
				return
			}
		}
	}
}

func homeDir() string {
	homeDir, err := os.UserHomeDir()
	if err != nil {
		homeDir = "./"
	}

	return homeDir
}
