package cmd

import (
	"fmt"
	"io"

	"github.com/Dyastin-0/fileshare/styles"
	"github.com/Dyastin-0/fileshare/types"
	"github.com/dustin/go-humanize"
)

func printFiles(w io.Writer, title string, files []types.FileInfo) {
	fmt.Fprintln(w, styles.TITLE.Render(fmt.Sprintf("%s (%d)", title, len(files))))

	if len(files) == 0 {
		fmt.Fprintln(w, styles.INFO.Render("  no files shared"))
		return
	}

	for _, f := range files {
		line := fmt.Sprintf("  %-40s %10s", truncate(f.Name, 40), humanize.IBytes(uint64(f.Size)))
		if f.Missing {
			line = styles.WARNING.Render(line + "  (missing)")
		}
		fmt.Fprintln(w, line)
	}
}

func printPeers(w io.Writer, peers []types.Peer) {
	fmt.Fprintln(w, styles.TITLE.Render(fmt.Sprintf("peers (%d)", len(peers))))

	if len(peers) == 0 {
		fmt.Fprintln(w, styles.INFO.Render("  no peers discovered"))
		return
	}

	for _, p := range peers {
		fmt.Fprintf(w, "  %-16s %s\n", p.IPAddress, styles.INFO.Render("seen "+humanize.Time(p.LastSeen)))
	}
}

func truncate(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n-3]) + "..."
}
