package models

import "time"

// Farm is the tenant every animal, breeding event and reminder belongs to.
type Farm struct {
	ID       string    `json:"id"`
	Name     string    `json:"name"`
	Timezone string    `json:"timezone,omitempty"`  // IANA name, empty means the configured default
	NotifyTo string    `json:"notify_to,omitempty"` // WhatsApp recipient for reminders
	Created  time.Time `json:"created_at"`
}
