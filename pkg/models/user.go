package models

import (
	"time"

	"github.com/google/uuid"
)

// User owns a credit balance. Balances only change through the store's
// atomic ledger operations and never go below zero.
type User struct {
	ID          uuid.UUID `db:"id"           json:"id"`
	DisplayName string    `db:"display_name" json:"displayName"`
	Credential  string    `db:"credential"   json:"-"`
	Credits     int       `db:"credits"      json:"credits"`
	CreatedAt   time.Time `db:"created_at"   json:"createdAt"`
	UpdatedAt   time.Time `db:"updated_at"   json:"updatedAt"`
}
