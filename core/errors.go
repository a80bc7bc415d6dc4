package core

import "errors"

var (
	ErrPeerUnreachable      = errors.New("peer unreachable")
	ErrFileNotFound         = errors.New("file not found")
	ErrNoMulticastInterface = errors.New("could not join discovery group on any interface")
	ErrAlreadyStarted       = errors.New("already started")
)
