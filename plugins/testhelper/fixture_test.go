package testhelper

import (
	"context"
	"testing"

	"estatecore/internal/core"
	"estatecore/pkg/domain"
)

type infoModule struct{}

func (infoModule) Name() string    { return "info" }
func (infoModule) Version() string { return "0.0.1" }

func (infoModule) Register(registry *core.ModuleRegistry) error {
	schema := core.SectionSchema{Section: "shopInfo", Entity: domain.EntityShop, IDField: "shopId", Output: "shopId", IDPrefix: "S"}
	registry.RegisterListener("save.shop.info", 1, core.NewSectionListener(schema, core.ModeSave))
	return registry.RegisterSchema(schema)
}

func TestSequentialIDs(t *testing.T) {
	ids := &SequentialIDs{}
	if got := ids.NewTransactionID(); got != "T1" {
		t.Fatalf("first txn id = %q", got)
	}
	if got := ids.NewEntityID("S"); got != "S001" {
		t.Fatalf("first entity id = %q", got)
	}
	if got := ids.NewEntityID("SC"); got != "SC002" {
		t.Fatalf("second entity id = %q", got)
	}
}

func TestFixtureServiceRoundTrip(t *testing.T) {
	svc := NewService(t, infoModule{})
	res := Dispatch(svc, t, "save.shop.info", "", `{"shopInfo":{"shopId":"-1","name":"Corner"}}`)
	if res.TxnID != "T1" || res.OutputParams["shopId"] != "S001" {
		t.Fatalf("unexpected result %+v", res)
	}
	row := Live(svc, t, domain.EntityShop, "S001")
	if row.TxnID != "T1" || row.Fields.String("name") != "Corner" {
		t.Fatalf("unexpected row %+v", row)
	}
	if _, err := Try(svc, t, "save.shop.unknown", "", `{}`); err == nil {
		t.Fatalf("expected unknown service code to fail")
	}
	if got := Recover(svc, t, "T1"); got.Status != core.TxnReversed {
		t.Fatalf("unexpected recovery %+v", got)
	}
	if _, err := svc.Recover(context.Background(), "T1"); err == nil {
		t.Fatalf("expected second recovery to fail")
	}
}
