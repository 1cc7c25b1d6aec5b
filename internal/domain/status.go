package domain

import "time"

type Reachability struct {
	Reachable bool   `json:"reachable"`
	Reason    string `json:"reason,omitempty"`
}

func Reachable() Reachability { return Reachability{Reachable: true} }

func Unreachable(reason string) Reachability {
	return Reachability{Reachable: false, Reason: reason}
}

type BacklogSource string

const (
	BacklogLive        BacklogSource = "live"
	BacklogCached      BacklogSource = "cached"
	BacklogUnavailable BacklogSource = "unavailable"
)

type StatusSnapshot struct {
	Database            Reachability  `json:"database"`
	Network             Reachability  `json:"network"`
	NotificationBacklog int           `json:"notification_backlog"`
	BacklogSource       BacklogSource `json:"backlog_source"`
	TakenAt             time.Time     `json:"taken_at"`
}
