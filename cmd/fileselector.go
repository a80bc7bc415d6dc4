package cmd

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/Dyastin-0/fileshare/styles"
	"github.com/Dyastin-0/fileshare/types"
	"github.com/charmbracelet/huh"
	"github.com/dustin/go-humanize"
)

// FileSelector browses the local filesystem and collects regular files to
// share, keyed by absolute path.
type FileSelector struct {
	selected       string
	dir            string
	Selected       map[string]types.FileInfo
	nBytesSelected int64
	filter         string
	page           int
}

func NewFileSelector(dir string) *FileSelector {
	abs, err := filepath.Abs(dir)
	if err != nil {
		abs = dir
	}
	return &FileSelector{
		dir:      abs,
		Selected: make(map[string]types.FileInfo),
		page:     0,
	}
}

func (f *FileSelector) filteredEntries() ([]os.DirEntry, error) {
	entries, err := os.ReadDir(f.dir)
	if err != nil {
		return nil, err
	}

	sort.Slice(entries, func(i, j int) bool {
		if entries[i].IsDir() != entries[j].IsDir() {
			return entries[i].IsDir()
		}
		return strings.ToLower(entries[i].Name()) < strings.ToLower(entries[j].Name())
	})

	if f.filter != "" {
		filtered := make([]os.DirEntry, 0)
		filterLower := strings.ToLower(f.filter)
		for _, entry := range entries {
			if strings.Contains(strings.ToLower(entry.Name()), filterLower) {
				filtered = append(filtered, entry)
			}
		}
		return filtered, nil
	}

	return entries, nil
}

func (f *FileSelector) RunRecur() error {
	entries, err := f.filteredEntries()
	if err != nil {
		return err
	}

	totalItems := len(entries)
	totalPages := (totalItems + PAGESIZE - 1) / PAGESIZE
	if totalPages == 0 {
		totalPages = 1
	}

	if f.page < 0 {
		f.page = 0
	}

	var options []huh.Option[string]

	if parent := filepath.Dir(f.dir); parent != f.dir {
		options = append(options, huh.NewOption("../", parent))
	}

	filterText := "Filter files"
	if f.filter != "" {
		filterText = fmt.Sprintf("Filter: '%s'", f.filter)
	}

	options = append(options, huh.NewOption(filterText, "filter"))

	if totalPages > 1 {
		pageInfo := fmt.Sprintf("Page %d of %d (%d items)", f.page+1, totalPages, totalItems)
		options = append(options, huh.NewOption(styles.PAGE.Render(pageInfo), "page_info"))

		if f.page > 0 {
			options = append(options, huh.NewOption("<-", "prev_page"))
		}
		if f.page < totalPages-1 {
			options = append(options, huh.NewOption("->", "next_page"))
		}
	}

	start := f.page * PAGESIZE
	end := min(start+PAGESIZE, len(entries))

	for i := start; i < end; i++ {
		entry := entries[i]
		path := filepath.Join(f.dir, entry.Name())
		name := entry.Name()

		if entry.IsDir() {
			name = styles.DIR.Render(name + "/")
		}

		if _, ok := f.Selected[path]; ok {
			name = styles.SELECTED.Render("✓ " + name)
		}

		options = append(options, huh.NewOption(name, path))
	}

	options = append(options,
		huh.NewOption("Done", "done"),
		huh.NewOption("Cancel", "cancel"),
	)

	title := fmt.Sprintf("Choose files to share (%d selected, %s):", len(f.Selected), humanize.IBytes(uint64(f.nBytesSelected)))
	if f.filter != "" {
		title += fmt.Sprintf(" [Filter: %s]", f.filter)
	}

	form := huh.NewSelect[string]().
		Title(title).
		Options(options...).
		Value(&f.selected).
		Height(20)

	err = form.Run()
	if err != nil {
		return err
	}

	switch f.selected {
	case "cancel":
		return ErrCanceled
	case "done":
		return nil
	case "filter":
		err := f.Filter()
		if err != nil {
			return err
		}
		return f.RunRecur()
	case "prev_page":
		f.page--
		return f.RunRecur()
	case "next_page":
		f.page++
		return f.RunRecur()
	case "page_info":
		return f.RunRecur()
	default:
		err := f.Selection()
		if err != nil {
			return err
		}
		return f.RunRecur()
	}
}

func (f *FileSelector) Filter() error {
	var newFilter string

	form := huh.NewInput().
		Title("Filter:").
		Value(&newFilter).
		Placeholder(f.filter)

	err := form.Run()
	if err != nil {
		return err
	}

	f.filter = strings.TrimSpace(newFilter)
	f.page = 0
	return nil
}

func (f *FileSelector) Selection() error {
	stat, err := os.Stat(f.selected)
	if err != nil {
		return nil
	}

	if !stat.IsDir() {
		f.Toggle(f.selected, stat)
		return nil
	}

	var action string
	form := huh.NewSelect[string]().
		Title(fmt.Sprintf("Directory: %s", filepath.Base(f.selected))).
		Options(
			huh.NewOption("Navigate", "navigate"),
			huh.NewOption("Select all", "select_all"),
			huh.NewOption("Back", "back"),
		).
		Value(&action)

	if err := form.Run(); err != nil {
		return nil
	}

	switch action {
	case "navigate":
		f.dir = f.selected
		f.page = 0
		f.filter = ""
	case "select_all":
		return f.SelectDir(f.selected)
	}

	return nil
}

// Toggle flips the selection of the regular file at fullPath.
func (f *FileSelector) Toggle(fullPath string, stat os.FileInfo) {
	if !stat.Mode().IsRegular() {
		return
	}

	if _, ok := f.Selected[fullPath]; ok {
		f.nBytesSelected -= stat.Size()
		delete(f.Selected, fullPath)
		return
	}

	f.nBytesSelected += stat.Size()
	f.Selected[fullPath] = types.FileInfo{Name: stat.Name(), Size: stat.Size(), Path: fullPath}
}

// SelectDir toggles every regular file under dir, recursively.
func (f *FileSelector) SelectDir(dir string) error {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return err
	}

	for _, entry := range entries {
		path := filepath.Join(dir, entry.Name())
		if entry.IsDir() {
			// unreadable subdirectories are skipped
			f.SelectDir(path)
			continue
		}

		stat, err := os.Stat(path)
		if err != nil {
			continue
		}
		f.Toggle(path, stat)
	}

	return nil
}

func (f *FileSelector) SelectedPaths() []string {
	paths := make([]string, 0, len(f.Selected))
	for path := range f.Selected {
		paths = append(paths, path)
	}
	sort.Strings(paths)
	return paths
}

func (f *FileSelector) ClearSelection() {
	f.Selected = make(map[string]types.FileInfo)
	f.nBytesSelected = 0
}
