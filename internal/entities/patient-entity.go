package entities

import "time"

type Patient struct {
	ID        uint64    `json:"id"`
	Fio       string    `json:"fio"`
	Phone     string    `json:"phone"`
	CreatedAt time.Time `json:"created_at"`
}
