package tenant

import (
	"time"

	"github.com/opsgrid/opsgrid/internal/types"
)

// Tenant is an isolated customer organization with its own data and exactly
// one subscription
type Tenant struct {
	ID        string    `db:"id" json:"id"`
	Name      string    `db:"name" json:"name"`
	Slug      string    `db:"slug" json:"slug"`
	Status    types.Status `db:"status" json:"status"`
	CreatedAt time.Time `db:"created_at" json:"created_at"`
	UpdatedAt time.Time `db:"updated_at" json:"updated_at"`
}
