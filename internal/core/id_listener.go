package core

import (
	"context"

	"estatecore/pkg/domain"
)

// IDListener assigns an identity to a section whose id field is absent or
// carries the auto-generate marker, and copies it into dependent child
// sections. It must be ordered before the listeners staging those sections.
type IDListener struct {
	section  string
	field    string
	prefix   string
	output   string
	children []string
}

// NewIDListener flushes field of section using generated ids with prefix.
// When output is set the assigned id is returned as an output parameter.
func NewIDListener(section, field, prefix, output string, children ...string) *IDListener {
	return &IDListener{section: section, field: field, prefix: prefix, output: output, children: children}
}

func (l *IDListener) Name() string { return "flush." + l.section + "." + l.field }

func (l *IDListener) StageBusiness(_ context.Context, lc *Context) error {
	obj, ok, err := lc.Txn.Payload.Object(l.section)
	if err != nil || !ok {
		return err
	}
	id := obj.String(l.field)
	if domain.IsAutoGen(id) {
		id = lc.IDs.NewEntityID(l.prefix)
		obj[l.field] = id
		lc.Txn.Payload.SetObjects(l.section, []Fields{obj})
		lc.Logger.Debug("listener.flush_id", "section", l.section, "field", l.field, "id", id)
	}
	for _, child := range l.children {
		rows, err := lc.Txn.Payload.Objects(child)
		if err != nil {
			return err
		}
		if len(rows) == 0 {
			continue
		}
		for _, row := range rows {
			if domain.IsAutoGen(row.String(l.field)) {
				row[l.field] = id
			}
		}
		lc.Txn.Payload.SetObjects(child, rows)
	}
	lc.SetOutput(l.output, id)
	return nil
}

func (l *IDListener) Materialize(context.Context, *Context) error { return nil }

func (l *IDListener) Reverse(context.Context, *Context) error { return nil }
