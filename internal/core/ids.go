package core

import (
	"github.com/google/uuid"
	"github.com/rs/xid"
)

// IDGenerator supplies identifiers for transactions and auto-generated entities.
type IDGenerator interface {
	NewTransactionID() string
	NewEntityID(prefix string) string
}

// NewXIDGenerator returns the default generator: random UUIDs for
// transactions and sortable xids for entity codes.
func NewXIDGenerator() IDGenerator {
	return xidGenerator{}
}

type xidGenerator struct{}

func (xidGenerator) NewTransactionID() string {
	return uuid.NewString()
}

func (xidGenerator) NewEntityID(prefix string) string {
	return prefix + xid.New().String()
}
