package models

import (
	"time"
)

// Event is the show a listing sells tickets for.
type Event struct {
	Name        string    `json:"name"`
	Description string    `json:"description"`
	Location    string    `json:"location"`
	Image       string    `json:"image"`
	Time        time.Time `json:"time"`
}
