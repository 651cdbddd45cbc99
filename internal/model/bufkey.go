package model

import (
	"fmt"
	"strings"
)

// BufKind discriminates the conversation target a buffer belongs to.
type BufKind int

const (
	// BufStatus is the client's own status buffer.
	BufStatus BufKind = iota
	// BufServer holds server-wide messages from the core.
	BufServer
	// BufChannel is a multi-user channel.
	BufChannel
	// BufQuery is a private conversation with one peer.
	BufQuery
)

var bufKindNames = [...]string{
	BufStatus:  "status",
	BufServer:  "server",
	BufChannel: "channel",
	BufQuery:   "query",
}

func (k BufKind) String() string {
	if k < 0 || int(k) >= len(bufKindNames) {
		return fmt.Sprintf("BufKind(%d)", int(k))
	}
	return bufKindNames[k]
}

// ParseBufKind maps a wire name to a BufKind.
func ParseBufKind(name string) (BufKind, error) {
	for k, n := range bufKindNames {
		if n == name {
			return BufKind(k), nil
		}
	}
	return 0, fmt.Errorf("unknown buffer kind %q", name)
}

// BufKey identifies a buffer. It is comparable and used as a map key.
type BufKey struct {
	Kind BufKind
	Name string
}

// StatusKey returns the key of the status buffer.
func StatusKey() BufKey { return BufKey{Kind: BufStatus} }

// ServerKey returns the key of the server buffer.
func ServerKey() BufKey { return BufKey{Kind: BufServer} }

// ChannelKey returns the key of the named channel.
func ChannelKey(name string) BufKey { return BufKey{Kind: BufChannel, Name: name} }

// QueryKey returns the key of a private conversation with peer.
func QueryKey(peer string) BufKey { return BufKey{Kind: BufQuery, Name: peer} }

// NewBufKey validates kind/name and builds a key. Status and server keys carry no name.
func NewBufKey(kind BufKind, name string) (BufKey, error) {
	switch kind {
	case BufStatus, BufServer:
		return BufKey{Kind: kind}, nil
	case BufChannel, BufQuery:
		if strings.TrimSpace(name) == "" {
			return BufKey{}, fmt.Errorf("%s buffer requires a name", kind)
		}
		return BufKey{Kind: kind, Name: name}, nil
	default:
		return BufKey{}, fmt.Errorf("invalid buffer kind %d", int(kind))
	}
}

// ParseBufKey turns user input into a key: "status", "server", "#chan" or a peer name.
func ParseBufKey(s string) BufKey {
	switch s {
	case "status":
		return StatusKey()
	case "server":
		return ServerKey()
	}
	if strings.HasPrefix(s, "#") || strings.HasPrefix(s, "&") {
		return ChannelKey(s)
	}
	return QueryKey(s)
}

// DisplayName is the default buffer name shown to the user.
func (k BufKey) DisplayName() string {
	switch k.Kind {
	case BufStatus, BufServer:
		return k.Kind.String()
	default:
		return k.Name
	}
}

func (k BufKey) String() string {
	return k.DisplayName()
}

func (k BufKey) less(o BufKey) bool {
	if k.Kind != o.Kind {
		return k.Kind < o.Kind
	}
	return k.Name < o.Name
}
