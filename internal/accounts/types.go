package accounts

import "time"

// Account is one connected transport account and its canned replies.
type Account struct {
	ID              string    `json:"id"`
	Name            string    `json:"name"`
	Status          string    `json:"status"`
	GreetingMessage string    `json:"greeting_message"`
	FarewellMessage string    `json:"farewell_message"`
	CreatedAt       time.Time `json:"created_at"`
	UpdatedAt       time.Time `json:"updated_at"`
}
