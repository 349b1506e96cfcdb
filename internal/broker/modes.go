package broker

import "fmt"

// GroupMode is a Group's fixed delivery discipline.
type GroupMode int

const (
	Cluster GroupMode = iota
	Broadcast
)

func (m GroupMode) String() string {
	switch m {
	case Cluster:
		return "cluster"
	case Broadcast:
		return "broadcast"
	default:
		return "unknown"
	}
}

// ParseGroupMode parses the admin-API and System-sub-protocol spelling of
// a group mode, defaulting to Cluster when s is empty.
func ParseGroupMode(s string) (GroupMode, error) {
	switch s {
	case "", "cluster":
		return Cluster, nil
	case "broadcast":
		return Broadcast, nil
	default:
		return 0, fmt.Errorf("broker: unknown group mode %q", s)
	}
}

// ChannelMode is a Channel's delivery posture.
type ChannelMode int

const (
	ChannelNone ChannelMode = iota
	ChannelPush
	ChannelPull
)

func (m ChannelMode) String() string {
	switch m {
	case ChannelPush:
		return "push"
	case ChannelPull:
		return "pull"
	default:
		return "none"
	}
}

// ParseChannelMode parses the admin-API and System-sub-protocol spelling
// of a channel mode, defaulting to Push when s is empty.
func ParseChannelMode(s string) (ChannelMode, error) {
	switch s {
	case "", "push":
		return ChannelPush, nil
	case "pull":
		return ChannelPull, nil
	default:
		return ChannelNone, fmt.Errorf("broker: unknown channel mode %q", s)
	}
}
