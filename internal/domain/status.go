package domain

import "fmt"

// Status is the confirmed liveness of a target. The zero value is Unknown,
// which is only ever reported for targets the monitor does not track.
type Status int

const (
	StatusUnknown Status = iota
	StatusOffline
	StatusOnline
)

func (s Status) String() string {
	switch s {
	case StatusOffline:
		return "offline"
	case StatusOnline:
		return "online"
	default:
		return "unknown"
	}
}

func (s Status) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

func (s *Status) UnmarshalText(b []byte) error {
	v, err := ParseStatus(string(b))
	if err != nil {
		return err
	}
	*s = v
	return nil
}

func ParseStatus(s string) (Status, error) {
	switch s {
	case "offline":
		return StatusOffline, nil
	case "online":
		return StatusOnline, nil
	case "unknown", "":
		return StatusUnknown, nil
	}
	return StatusUnknown, fmt.Errorf("unknown status %q", s)
}

// SyncState tracks whether a subscription's display shows the latest label.
type SyncState int

const (
	OutOfSync SyncState = iota
	Synced
)

func (s SyncState) String() string {
	if s == Synced {
		return "synced"
	}
	return "out_of_sync"
}
