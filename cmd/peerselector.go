package cmd

import (
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/Dyastin-0/fileshare/core"
	"github.com/Dyastin-0/fileshare/styles"
	"github.com/Dyastin-0/fileshare/types"
	"github.com/charmbracelet/huh"
	"github.com/dustin/go-humanize"
)

const (
	PAGESIZE = 25
)

var ErrCanceled = errors.New("canceled")

// PeerSelector lets the user toggle peers from a paginated, filterable list.
type PeerSelector struct {
	selected string
	peers    func() []types.Peer
	Selected map[string]types.Peer
	filter   string
	page     int
	sortBy   string
}

// NewPeerSelector reads the current peers from source on every redraw, so
// peers discovered while the picker is open show up.
func NewPeerSelector(source func() []types.Peer) *PeerSelector {
	return &PeerSelector{
		peers:    source,
		Selected: make(map[string]types.Peer),
		page:     0,
		sortBy:   "address",
	}
}

func (p *PeerSelector) filteredPeers() []types.Peer {
	peerList := p.peers()

	if p.filter != "" {
		filtered := make([]types.Peer, 0)
		filterLower := strings.ToLower(p.filter)
		for _, peer := range peerList {
			if strings.Contains(strings.ToLower(peer.IPAddress), filterLower) {
				filtered = append(filtered, peer)
			}
		}
		peerList = filtered
	}

	sort.Slice(peerList, func(i, j int) bool {
		switch p.sortBy {
		case "lastseen":
			return peerList[i].LastSeen.After(peerList[j].LastSeen)
		default:
			return peerList[i].IPAddress < peerList[j].IPAddress
		}
	})

	return peerList
}

func (p *PeerSelector) formatPeerOption(peer types.Peer) string {
	selectedPrefix := ""
	if _, isSelected := p.Selected[peer.IPAddress]; isSelected {
		selectedPrefix = styles.SELECTED.Render("✓ ")
	}

	text := fmt.Sprintf("%s%-20s %s", selectedPrefix, peer.IPAddress, humanize.Time(peer.LastSeen))

	// missed at least two announcements
	if time.Since(peer.LastSeen) > 2*core.AnnounceInterval {
		text = styles.WARNING.Render(text)
	}

	return text
}

func (p *PeerSelector) RunRecur() error {
	peers := p.filteredPeers()

	totalItems := len(peers)
	totalPages := (totalItems + PAGESIZE - 1) / PAGESIZE
	if totalPages == 0 {
		totalPages = 1
	}

	if p.page < 0 {
		p.page = 0
	}
	if p.page >= totalPages {
		p.page = totalPages - 1
	}

	var options []huh.Option[string]

	filterText := "Filter peers"
	if p.filter != "" {
		filterText = fmt.Sprintf("Filter: '%s'", p.filter)
	}
	options = append(options,
		huh.NewOption("Refresh", "refresh"),
		huh.NewOption(filterText, "filter"),
	)

	if totalPages > 1 {
		pageInfo := fmt.Sprintf("Page %d of %d (%d peers)", p.page+1, totalPages, totalItems)
		options = append(options, huh.NewOption(styles.PAGE.Render(pageInfo), "page_info"))

		if p.page > 0 {
			options = append(options, huh.NewOption("<-", "prev_page"))
		}
		if p.page < totalPages-1 {
			options = append(options, huh.NewOption("->", "next_page"))
		}
	}

	start := p.page * PAGESIZE
	end := min(start+PAGESIZE, len(peers))

	for i := start; i < end; i++ {
		peer := peers[i]
		options = append(options, huh.NewOption(p.formatPeerOption(peer), peer.IPAddress))
	}

	options = append(options,
		huh.NewOption("All", "select_all"),
		huh.NewOption("Done", "done"),
		huh.NewOption("Cancel", "cancel"),
	)

	title := fmt.Sprintf("Choose peers (%d selected):", len(p.Selected))
	if p.filter != "" {
		title += fmt.Sprintf(" [Filter: %s]", p.filter)
	}

	form := huh.NewSelect[string]().
		Title(title).
		Options(options...).
		Value(&p.selected).
		Height(20)

	err := form.Run()
	if err != nil {
		return err
	}

	switch p.selected {
	case "cancel":
		return ErrCanceled
	case "done":
		return nil
	case "filter":
		return p.Filter()
	case "prev_page":
		p.page--
		return p.RunRecur()
	case "next_page":
		p.page++
		return p.RunRecur()
	case "select_all":
		p.ToggleAll()
		return p.RunRecur()
	case "refresh", "page_info":
		return p.RunRecur()
	default:
		p.TogglePeer(p.selected)
		return p.RunRecur()
	}
}

func (p *PeerSelector) Filter() error {
	var newFilter string

	form := huh.NewInput().
		Title("Filter peers (by address):").
		Value(&newFilter).
		Placeholder(p.filter)

	err := form.Run()
	if err != nil {
		return p.RunRecur()
	}

	p.SetFilter(newFilter)
	return p.RunRecur()
}

func (p *PeerSelector) SetFilter(filter string) {
	p.filter = strings.TrimSpace(filter)
	p.page = 0
}

func (p *PeerSelector) TogglePeer(addr string) {
	if _, isSelected := p.Selected[addr]; isSelected {
		delete(p.Selected, addr)
		return
	}

	for _, peer := range p.peers() {
		if peer.IPAddress == addr {
			p.Selected[addr] = peer
			return
		}
	}
}

// ToggleAll flips the selection of every peer matching the filter.
func (p *PeerSelector) ToggleAll() {
	for _, peer := range p.filteredPeers() {
		if _, ok := p.Selected[peer.IPAddress]; ok {
			delete(p.Selected, peer.IPAddress)
		} else {
			p.Selected[peer.IPAddress] = peer
		}
	}
}

func (p *PeerSelector) SelectedPeers() []types.Peer {
	peers := make([]types.Peer, 0, len(p.Selected))
	for _, peer := range p.Selected {
		peers = append(peers, peer)
	}

	sort.Slice(peers, func(i, j int) bool {
		return peers[i].IPAddress < peers[j].IPAddress
	})

	return peers
}
