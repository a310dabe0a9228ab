package core

import (
	"errors"
	"testing"

	"estatecore/pkg/domain"
)

func TestRegistryResolveSortsByOrder(t *testing.T) {
	registry := NewRegistry()
	mustRegister(t, registry, "svc", 5, &recordingListener{name: "five"})
	mustRegister(t, registry, "svc", 1, &recordingListener{name: "one"})
	mustRegister(t, registry, "svc", 3, &recordingListener{name: "three"})
	mustRegister(t, registry, "other", 1, &recordingListener{name: "other"})

	regs, err := registry.Resolve("svc")
	if err != nil {
		t.Fatalf("resolve: %v", err)
	}
	var names []string
	for _, reg := range regs {
		names = append(names, reg.Listener.Name())
	}
	if len(names) != 3 || names[0] != "one" || names[1] != "three" || names[2] != "five" {
		t.Fatalf("unexpected order %v", names)
	}
	codes := registry.ServiceCodes()
	if len(codes) != 2 || codes[0] != "other" || codes[1] != "svc" {
		t.Fatalf("unexpected service codes %v", codes)
	}
}

func TestRegistryRejectsInvalidRegistrations(t *testing.T) {
	registry := NewRegistry()
	mustRegister(t, registry, "svc", 1, &recordingListener{name: "one"})
	cases := []struct {
		name     string
		code     ServiceCode
		order    int
		listener Listener
	}{
		{name: "duplicate order", code: "svc", order: 1, listener: &recordingListener{name: "dup"}},
		{name: "empty code", code: "", order: 2, listener: &recordingListener{name: "x"}},
		{name: "nil listener", code: "svc", order: 2},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if err := registry.Register(tc.code, tc.order, tc.listener); err == nil {
				t.Fatalf("expected registration error")
			}
		})
	}
	_, err := registry.Resolve("missing")
	var perr domain.ParameterError
	if !errors.As(err, &perr) || perr.Field != "serviceCode" {
		t.Fatalf("expected ParameterError, got %v", err)
	}
}
