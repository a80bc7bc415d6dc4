package cmd

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/Dyastin-0/fileshare/core"
	"github.com/Dyastin-0/fileshare/styles"
	"github.com/Dyastin-0/fileshare/types"
	"github.com/charmbracelet/huh"
	"github.com/charmbracelet/huh/spinner"
	"github.com/dustin/go-humanize"
	"github.com/urfave/cli/v3"
)

func browseCommand() *cli.Command {
	return &cli.Command{
		Name:  "browse",
		Usage: "discover peers, pick files and download them interactively",
		Flags: []cli.Flag{
			waitFlag(),
			&cli.IntFlag{
				Name:    "jobs",
				Aliases: []string{"j"},
				Usage:   "concurrent downloads",
				Value:   defaultJobs,
			},
		},
		Action: browseAction,
	}
}

func browseAction(ctx context.Context, cmd *cli.Command) error {
	d, err := startDiscovery(cmd)
	if err != nil {
		return err
	}
	defer d.Stop()

	node, _, err := newNode(cmd)
	if err != nil {
		return err
	}

	wait := cmd.Duration("wait")
	err = spinner.New().
		Title(styles.INFO.Render("looking for peers...")).
		ActionWithErr(func(context.Context) error {
			waitForPeers(ctx, d, wait, true)
			return nil
		}).
		Run()
	if err != nil {
		return err
	}

	peers := func() []types.Peer { return core.WithoutLocal(d.Peers()) }
	if len(peers()) == 0 {
		return fmt.Errorf("no peers discovered within %s", wait)
	}

	ps := NewPeerSelector(peers)
	if err := ps.RunRecur(); err != nil {
		if errors.Is(err, ErrCanceled) {
			return nil
		}
		return err
	}

	dir := cmd.String("dir")
	jobs := int(cmd.Int("jobs"))

	var errs []error
	for _, peer := range ps.SelectedPeers() {
		if err := browsePeer(ctx, node, peer.IPAddress, dir, jobs); err != nil {
			if errors.Is(err, ErrCanceled) {
				continue
			}
			fmt.Println(styles.ERROR.Render(fmt.Sprintf("%s: %v", peer.IPAddress, err)))
			errs = append(errs, err)
		}
	}

	return errors.Join(errs...)
}

func browsePeer(ctx context.Context, node *core.Node, addr, dir string, jobs int) error {
	files, err := node.ListPeerFiles(ctx, addr)
	if err != nil {
		return describe(addr, "", err)
	}

	if len(files) == 0 {
		fmt.Println(styles.INFO.Render(addr + " shares no files"))
		return nil
	}

	chosen, err := pickRemoteFiles(addr, files)
	if err != nil {
		return err
	}
	if len(chosen) == 0 {
		return nil
	}

	confirm, err := showConfirm(
		fmt.Sprintf("download %d files (%s) into %s?", len(chosen), humanize.IBytes(uint64(totalSize(chosen))), dir),
		time.Minute,
	)
	if err != nil || !confirm {
		return ErrCanceled
	}

	return download(ctx, node, addr, chosen, dir, jobs)
}

func pickRemoteFiles(addr string, files []types.FileInfo) ([]types.FileInfo, error) {
	options := make([]huh.Option[int], 0, len(files))
	for i, f := range files {
		options = append(options, huh.NewOption(fmt.Sprintf("%-40s %10s", truncate(f.Name, 40), humanize.IBytes(uint64(f.Size))), i))
	}

	var picked []int
	form := huh.NewForm(
		huh.NewGroup(
			huh.NewMultiSelect[int]().
				Title(fmt.Sprintf("files shared by %s", addr)).
				Options(options...).
				Filterable(true).
				Height(20).
				Value(&picked),
		),
	)

	if err := form.Run(); err != nil {
		if errors.Is(err, huh.ErrUserAborted) {
			return nil, ErrCanceled
		}
		return nil, err
	}

	chosen := make([]types.FileInfo, 0, len(picked))
	for _, i := range picked {
		chosen = append(chosen, files[i])
	}

	return chosen, nil
}

func showConfirm(title string, duration time.Duration) (bool, error) {
	var confirm bool

	form := huh.NewForm(
		huh.NewGroup(
			huh.NewConfirm().
				Affirmative("yes").
				Negative("no").
				Title(title).
				Value(&confirm),
		),
	).WithTimeout(duration)

	err := form.Run()
	if err != nil {
		return false, err
	}

	return confirm, nil
}

func totalSize(files []types.FileInfo) int64 {
	var n int64
	for _, f := range files {
		n += f.Size
	}
	return n
}
