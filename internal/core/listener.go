package core

import (
	"context"
	"time"

	"estatecore/pkg/domain"

	"pkt.systems/pslog"
)

// Listener handles one payload section of a service operation. Every phase
// runs inside the unit of work opened by the chain or recovery controller.
type Listener interface {
	Name() string
	StageBusiness(ctx context.Context, lc *Context) error
	Materialize(ctx context.Context, lc *Context) error
	Reverse(ctx context.Context, lc *Context) error
}

// LockKeyer is implemented by listeners that know which live rows a payload
// will touch before the unit of work starts.
type LockKeyer interface {
	LockKeys(payload Payload) []string
}

// Context carries the transaction and the unit-of-work handle through the
// listener phases.
type Context struct {
	Txn    *BusinessTransaction
	Tx     domain.Transaction
	Stager *Stager
	IDs    IDGenerator
	Logger pslog.Logger
	Now    time.Time
}

// SetOutput records an output parameter returned to the caller on commit.
func (c *Context) SetOutput(key, value string) {
	if key == "" {
		return
	}
	if c.Txn.OutputParams == nil {
		c.Txn.OutputParams = make(map[string]string)
	}
	c.Txn.OutputParams[key] = value
}
