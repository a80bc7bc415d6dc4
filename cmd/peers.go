package cmd

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/Dyastin-0/fileshare/core"
	"github.com/Dyastin-0/fileshare/styles"
	"github.com/charmbracelet/huh/spinner"
	"github.com/urfave/cli/v3"
)

const defaultWait = 6 * time.Second

func waitFlag() cli.Flag {
	return &cli.DurationFlag{
		Name:    "wait",
		Aliases: []string{"w"},
		Usage:   "how long to listen for announcements",
		Value:   defaultWait,
	}
}

func peersCommand() *cli.Command {
	return &cli.Command{
		Name:   "peers",
		Usage:  "listen for announcements and print the discovered peers",
		Flags:  []cli.Flag{waitFlag()},
		Action: peersAction,
	}
}

func peersAction(ctx context.Context, cmd *cli.Command) error {
	d, err := startDiscovery(cmd)
	if err != nil {
		return err
	}
	defer d.Stop()

	wait := cmd.Duration("wait")

	err = spinner.New().
		Title(styles.INFO.Render(fmt.Sprintf("listening for peers (%s)...", wait))).
		ActionWithErr(func(context.Context) error {
			waitForPeers(ctx, d, wait, false)
			return nil
		}).
		Run()
	if err != nil {
		return err
	}

	printPeers(os.Stdout, core.WithoutLocal(d.Peers()))
	return nil
}

// startDiscovery runs discovery on its own, without a transfer server, so it
// can sit next to a serving node on the same host.
func startDiscovery(cmd *cli.Command) (*core.Discovery, error) {
	cfg, err := configFrom(cmd)
	if err != nil {
		return nil, err
	}

	log, err := newLogger(cmd)
	if err != nil {
		return nil, err
	}

	d := core.NewDiscovery(cfg.Discovery, log)
	if err := d.Start(); err != nil {
		return nil, err
	}

	return d, nil
}
