package parking

import "time"

type Vehicle struct {
	ID        string    `json:"id"`
	EntryTime time.Time `json:"entry_time"`
}

func NewVehicle(id string, entryTime time.Time) *Vehicle {
	return &Vehicle{
		ID:        id,
		EntryTime: entryTime,
	}
}
