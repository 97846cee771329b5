package model

import "time"

type Contact struct {
	ID        int64     `json:"id"`
	Phone     string    `json:"phone_e164"`
	Name      *string   `json:"name,omitempty"`
	CreatedAt time.Time `json:"created_at"`
}
