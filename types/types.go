package types

import "time"

// FileInfo describes one shared file as seen in a listing.
// Path is only set for local entries, it never crosses the wire.
type FileInfo struct {
	Name    string `json:"name"`
	Size    int64  `json:"size"`
	Path    string `json:"path,omitempty"`
	Missing bool   `json:"missing,omitempty"`
}

// Peer is a node that announced itself on the discovery group.
type Peer struct {
	IPAddress string    `json:"ip_address"`
	FirstSeen time.Time `json:"first_seen"`
	LastSeen  time.Time `json:"last_seen"`
}
