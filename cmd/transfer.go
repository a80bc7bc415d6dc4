package cmd

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sync"

	"github.com/Dyastin-0/fileshare/core"
	"github.com/Dyastin-0/fileshare/progress"
	"github.com/Dyastin-0/fileshare/styles"
	"github.com/Dyastin-0/fileshare/types"
	"github.com/charmbracelet/huh/spinner"
	"github.com/dustin/go-humanize"
	"github.com/urfave/cli/v3"
	"golang.org/x/sync/errgroup"
)

const defaultJobs = 4

func lsCommand() *cli.Command {
	return &cli.Command{
		Name:      "ls",
		Usage:     "list the files a peer shares",
		ArgsUsage: "<addr>",
		Action:    lsAction,
	}
}

func lsAction(ctx context.Context, cmd *cli.Command) error {
	if cmd.NArg() != 1 {
		return cli.Exit("usage: fileshare ls <addr>", 2)
	}
	addr := cmd.Args().First()

	node, _, err := newNode(cmd)
	if err != nil {
		return err
	}

	var files []types.FileInfo
	err = spinner.New().
		Title(styles.INFO.Render(fmt.Sprintf("asking %s...", addr))).
		ActionWithErr(func(context.Context) error {
			var lerr error
			files, lerr = node.ListPeerFiles(ctx, addr)
			return lerr
		}).
		Run()

	printFiles(os.Stdout, addr, files)
	if err != nil {
		return describe(addr, "", err)
	}

	return nil
}

// describe turns core errors into messages that tell an unreachable peer
// apart from a missing file.
func describe(addr, name string, err error) error {
	switch {
	case errors.Is(err, core.ErrFileNotFound):
		return fmt.Errorf("%s does not share %s: %w", addr, name, core.ErrFileNotFound)
	case errors.Is(err, core.ErrPeerUnreachable):
		return fmt.Errorf("%s is unreachable, is it running fileshare serve? (%w)", addr, err)
	}
	return err
}

// save persists data at target, falling back to the home directory so a
// fetched file is not lost when target is not writable.
func save(node *core.Node, target string, data []byte) (string, error) {
	err := node.PersistDownload(target, data)
	if err == nil {
		return target, nil
	}

	fallback := core.UniqueDownloadPath(homeDir(), filepath.Base(target))
	if ferr := node.PersistDownload(fallback, data); ferr != nil {
		return "", errors.Join(err, ferr)
	}

	fmt.Println(styles.WARNING.Render(fmt.Sprintf("could not write %s (%v), saved to %s instead", target, err, fallback)))
	return fallback, nil
}

func outputFlag(usage string) cli.Flag {
	return &cli.StringFlag{
		Name:    "output",
		Aliases: []string{"o"},
		Usage:   usage,
	}
}

func getCommand() *cli.Command {
	return &cli.Command{
		Name:      "get",
		Usage:     "download one file from a peer",
		ArgsUsage: "<addr> <name>",
		Flags:     []cli.Flag{outputFlag("target file or directory, defaults to --dir")},
		Action:    getAction,
	}
}

func getAction(ctx context.Context, cmd *cli.Command) error {
	if cmd.NArg() != 2 {
		return cli.Exit("usage: fileshare get <addr> <name>", 2)
	}
	addr, name := cmd.Args().Get(0), cmd.Args().Get(1)

	node, _, err := newNode(cmd)
	if err != nil {
		return err
	}

	target := resolveTarget(cmd.String("output"), cmd.String("dir"), name)

	node.Client().Progress = func(name string, size int64, r io.Reader) io.Reader {
		return io.TeeReader(r, DefaultBar(size, name))
	}

	data, err := node.FetchFile(ctx, addr, name)
	if err != nil {
		return describe(addr, name, err)
	}

	target, err = save(node, target, data)
	if err != nil {
		return err
	}

	fmt.Println(styles.SUCCESS.Render(fmt.Sprintf("saved %s (%s)", target, humanize.IBytes(uint64(len(data))))))
	return nil
}

// resolveTarget picks where a download of name lands: output as given when
// it names a file, inside output when it is a directory, else inside dir.
func resolveTarget(output, dir, name string) string {
	if output == "" {
		return core.UniqueDownloadPath(dir, name)
	}

	if fi, err := os.Stat(output); err == nil && fi.IsDir() {
		return core.UniqueDownloadPath(output, name)
	}

	return output
}

func pullCommand() *cli.Command {
	return &cli.Command{
		Name:      "pull",
		Usage:     "download every file a peer shares",
		ArgsUsage: "<addr>",
		Flags: []cli.Flag{
			outputFlag("target directory, defaults to --dir"),
			&cli.IntFlag{
				Name:    "jobs",
				Aliases: []string{"j"},
				Usage:   "concurrent downloads",
				Value:   defaultJobs,
			},
		},
		Action: pullAction,
	}
}

func pullAction(ctx context.Context, cmd *cli.Command) error {
	if cmd.NArg() != 1 {
		return cli.Exit("usage: fileshare pull <addr>", 2)
	}
	addr := cmd.Args().First()

	dir := cmd.String("output")
	if dir == "" {
		dir = cmd.String("dir")
	}

	node, _, err := newNode(cmd)
	if err != nil {
		return err
	}

	files, err := node.ListPeerFiles(ctx, addr)
	if err != nil {
		return describe(addr, "", err)
	}

	if len(files) == 0 {
		fmt.Println(styles.INFO.Render(addr + " shares no files"))
		return nil
	}

	return download(ctx, node, addr, files, dir, int(cmd.Int("jobs")))
}

type downloadResult struct {
	name   string
	target string
	size   int
	err    error
}

// download fetches files from addr concurrently into dir, one bar per file.
// A failed file does not stop the others.
func download(ctx context.Context, node *core.Node, addr string, files []types.FileInfo, dir string, jobs int) error {
	if jobs <= 0 {
		jobs = defaultJobs
	}

	p := progress.New()
	node.Client().Progress = p.Hook
	defer func() { node.Client().Progress = nil }()

	var (
		mu      sync.Mutex
		results []downloadResult
	)

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(jobs)

	for _, name := range uniqueNames(files) {
		g.Go(func() error {
			res := downloadResult{name: name}

			data, err := node.FetchFile(gctx, addr, name)
			p.Finish(name, err)

			if err == nil {
				mu.Lock()
				res.target, err = save(node, core.UniqueDownloadPath(dir, name), data)
				mu.Unlock()
				res.size = len(data)
			}
			if err != nil {
				res.err = describe(addr, name, err)
			}

			mu.Lock()
			results = append(results, res)
			mu.Unlock()

			return nil
		})
	}

	g.Wait()
	p.Wait()

	var errs []error
	for _, res := range results {
		if res.err != nil {
			errs = append(errs, fmt.Errorf("%s: %w", res.name, res.err))
			fmt.Println(styles.ERROR.Render(fmt.Sprintf("failed %s: %v", res.name, res.err)))
			continue
		}
		fmt.Println(styles.SUCCESS.Render(fmt.Sprintf("saved %s (%s)", filepath.Base(res.target), humanize.IBytes(uint64(res.size)))))
	}

	return errors.Join(errs...)
}

// uniqueNames keeps the first of each display name, the only one a peer
// serves.
func uniqueNames(files []types.FileInfo) []string {
	seen := make(map[string]bool, len(files))
	names := make([]string, 0, len(files))

	for _, f := range files {
		if seen[f.Name] {
			continue
		}
		seen[f.Name] = true
		names = append(names, f.Name)
	}

	return names
}
