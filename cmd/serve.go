package cmd

import (
	"context"
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/Dyastin-0/fileshare/styles"
	"github.com/urfave/cli/v3"
)

func serveCommand() *cli.Command {
	return &cli.Command{
		Name:      "serve",
		Usage:     "share files with peers until interrupted",
		ArgsUsage: "[files...]",
		Flags: []cli.Flag{
			&cli.BoolFlag{
				Name:    "pick",
				Aliases: []string{"p"},
				Usage:   "choose the files to share interactively",
			},
		},
		Action: serveAction,
	}
}

func serveAction(ctx context.Context, cmd *cli.Command) error {
	node, log, err := newNode(cmd)
	if err != nil {
		return err
	}

	paths := cmd.Args().Slice()
	if cmd.Bool("pick") {
		wd, err := os.Getwd()
		if err != nil {
			return err
		}

		fs := NewFileSelector(wd)
		if err := fs.RunRecur(); err != nil {
			if errors.Is(err, ErrCanceled) {
				return nil
			}
			return err
		}
		paths = append(paths, fs.SelectedPaths()...)
	}

	for _, p := range paths {
		if _, err := node.AddSharedFile(p); err != nil {
			fmt.Println(styles.ERROR.Render(fmt.Sprintf("failed to share %s: %v", p, err)))
		}
	}

	err = node.Start()
	defer node.Stop()

	if node.Addr() == nil {
		return err
	}
	if err != nil {
		log.WithErr(err).Warn("serving without discovery")
		fmt.Println(styles.WARNING.Render(fmt.Sprintf("discovery unavailable: %v", err)))
	}

	fmt.Println(styles.SUCCESS.Render(fmt.Sprintf("serving on %s (node %s)", node.Addr(), node.ID)))
	printFiles(os.Stdout, "shared", node.ListSharedFiles())
	fmt.Println(styles.INFO.Render("press ctrl+c to stop"))

	ticker := time.NewTicker(time.Second)
	defer ticker.Stop()

	seen := make(map[string]bool)
	for {
		select {
		case <-ctx.Done():
			fmt.Println(styles.INFO.Render("shutting down..."))
			return nil
		case <-ticker.C:
			for _, p := range node.ListDiscoveredPeers() {
				if seen[p.IPAddress] {
					continue
				}
				seen[p.IPAddress] = true
				fmt.Println(styles.SUCCESS.Render("discovered peer " + p.IPAddress))
			}
		}
	}
}
