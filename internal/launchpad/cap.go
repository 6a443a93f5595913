package launchpad

import (
	"github.com/google/uuid"
)

// AdminCap authorizes configuration changes and graduation. It can only be
// obtained from NewConfig; a zero value never authorizes anything.
type AdminCap struct {
	id     uuid.UUID
	holder string
}

func newAdminCap(holder string) *AdminCap {
	return &AdminCap{id: uuid.New(), holder: holder}
}

// Holder returns the current holder label.
func (c *AdminCap) Holder() string {
	if c == nil {
		return ""
	}
	return c.holder
}

// Transfer hands the capability to a new holder.
func (c *AdminCap) Transfer(to string) {
	if c == nil {
		return
	}
	c.holder = to
}

func (c *AdminCap) matches(id uuid.UUID) bool {
	return c != nil && c.id != uuid.Nil && c.id == id
}
