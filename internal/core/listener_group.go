package core

import (
	"context"
	"strings"
)

// ListenerGroup runs several section listeners as one registration, so a
// single chain position can cover an entity together with its child
// sections. Members run in the order given for every phase.
type ListenerGroup struct {
	name    string
	members []Listener
}

// NewListenerGroup groups members under name. An empty name joins the member names.
func NewListenerGroup(name string, members ...Listener) *ListenerGroup {
	if name == "" {
		names := make([]string, 0, len(members))
		for _, m := range members {
			names = append(names, m.Name())
		}
		name = strings.Join(names, "+")
	}
	return &ListenerGroup{name: name, members: members}
}

func (g *ListenerGroup) Name() string { return g.name }

// Members returns the grouped listeners.
func (g *ListenerGroup) Members() []Listener {
	out := make([]Listener, len(g.members))
	copy(out, g.members)
	return out
}

func (g *ListenerGroup) LockKeys(payload Payload) []string {
	var keys []string
	for _, m := range g.members {
		if keyer, ok := m.(LockKeyer); ok {
			keys = append(keys, keyer.LockKeys(payload)...)
		}
	}
	return keys
}

func (g *ListenerGroup) StageBusiness(ctx context.Context, lc *Context) error {
	for _, m := range g.members {
		if err := m.StageBusiness(ctx, lc); err != nil {
			return err
		}
	}
	return nil
}

func (g *ListenerGroup) Materialize(ctx context.Context, lc *Context) error {
	for _, m := range g.members {
		if err := m.Materialize(ctx, lc); err != nil {
			return err
		}
	}
	return nil
}

func (g *ListenerGroup) Reverse(ctx context.Context, lc *Context) error {
	for _, m := range g.members {
		if err := m.Reverse(ctx, lc); err != nil {
			return err
		}
	}
	return nil
}
