// Package domain contains entity types without logic, just meta-data.
package domain

type UserID string

// Status is a user's presence state as other channel members see it.
// Absence of a presence record always reads as StatusOffline.
type Status string

const (
	StatusOnline  Status = "online"
	StatusBusy    Status = "busy"
	StatusAway    Status = "away"
	StatusDND     Status = "dnd"
	StatusOffline Status = "offline"
)

func (s Status) Valid() bool {
	switch s {
	case StatusOnline, StatusBusy, StatusAway, StatusDND, StatusOffline:
		return true
	}
	return false
}

type User struct {
	ID          UserID `json:"id"`
	Username    string `json:"username"`
	DisplayName string `json:"display_name"`
	Status      Status `json:"status"`
}
