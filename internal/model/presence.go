package model

import "time"

// PresenceStatus is a user's availability.
type PresenceStatus string

const (
	PresenceOnline  PresenceStatus = "online"
	PresenceAway    PresenceStatus = "away"
	PresenceBusy    PresenceStatus = "busy"
	PresenceOffline PresenceStatus = "offline"
)

// PresenceInfo is the last known presence record of a user.
type PresenceInfo struct {
	UserID          string         `json:"userId"`
	UserName        string         `json:"userName"`
	Status          PresenceStatus `json:"status"`
	LastSeen        time.Time      `json:"lastSeen"`
	CurrentActivity string         `json:"currentActivity,omitempty"`
	Location        string         `json:"location,omitempty"`
}
