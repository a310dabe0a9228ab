// Package shop registers the shop and shop catalog listeners.
package shop

import (
	"context"
	"fmt"

	"estatecore/internal/core"
	"estatecore/pkg/domain"
)

const (
	CodeSaveInfo      core.ServiceCode = "save.shop.info"
	CodeUpdateInfo    core.ServiceCode = "update.shop.info"
	CodeSaveCatalog   core.ServiceCode = "save.shop.catalog"
	CodeUpdateCatalog core.ServiceCode = "update.shop.catalog"
	CodeDeleteCatalog core.ServiceCode = "delete.shop.catalog"
)

const (
	SectionInfo    = "shopInfo"
	SectionAttrs   = "shopAttrs"
	SectionCatalog = "shopCatalog"
)

const (
	OutputShopID    = "shopId"
	OutputCatalogID = "catalogId"
)

var (
	infoSchema = core.SectionSchema{
		Section:  SectionInfo,
		Entity:   domain.EntityShop,
		IDField:  "shopId",
		Required: []string{"name", "storeId"},
		Output:   OutputShopID,
		IDPrefix: "S",
	}
	attrSchema = core.SectionSchema{
		Section:  SectionAttrs,
		Entity:   domain.EntityShopAttr,
		IDField:  "attrId",
		Multi:    true,
		Required: []string{"shopId", "specCd"},
		IDPrefix: "SA",
	}
	catalogSchema = core.SectionSchema{
		Section:  SectionCatalog,
		Entity:   domain.EntityShopCatalog,
		IDField:  "catalogId",
		Required: []string{"shopId", "name"},
		Fields: []domain.FieldMapping{
			{Payload: "catalogId"},
			{Payload: "shopId"},
			{Payload: "name"},
			{Payload: "level"},
			{Payload: "parentCatalogId"},
		},
		Output:   OutputCatalogID,
		IDPrefix: "SC",
	}
)

// Plugin implements the shop module.
type Plugin struct{}

func New() Plugin { return Plugin{} }

func (Plugin) Name() string { return "shop" }

func (Plugin) Version() string { return "0.1.0" }

func (Plugin) Register(registry *core.ModuleRegistry) error {
	for _, schema := range []core.SectionSchema{infoSchema, attrSchema, catalogSchema} {
		if err := registry.RegisterSchema(schema); err != nil {
			return err
		}
	}

	registry.RegisterListener(CodeSaveInfo, 1, core.NewIDListener(SectionInfo, "shopId", infoSchema.IDPrefix, OutputShopID, SectionAttrs))
	registry.RegisterListener(CodeSaveInfo, 2, core.NewListenerGroup("save.shop",
		core.NewSectionListener(infoSchema, core.ModeSave),
		core.NewSectionListener(attrSchema, core.ModeSave, core.Optional()),
	))
	registry.RegisterListener(CodeUpdateInfo, 2, core.NewListenerGroup("update.shop",
		core.NewSectionListener(infoSchema, core.ModeUpdate),
		core.NewSectionListener(attrSchema, core.ModeUpdate, core.Optional()),
	))

	// A catalog id that is absent or carries the auto-generate marker is
	// replaced before the catalog is staged.
	registry.RegisterListener(CodeSaveCatalog, 1, core.NewIDListener(SectionCatalog, "catalogId", catalogSchema.IDPrefix, OutputCatalogID))
	registry.RegisterListener(CodeSaveCatalog, 2, core.NewSectionListener(catalogSchema, core.ModeSave))
	registry.RegisterListener(CodeUpdateCatalog, 2, core.NewSectionListener(catalogSchema, core.ModeUpdate))
	registry.RegisterListener(CodeDeleteCatalog, 2, core.NewSectionListener(catalogSchema, core.ModeDelete))

	registry.RegisterRule(catalogRule{})
	return nil
}

// catalogRule keeps shop attributes and catalogs attached to a valid shop and
// nested catalogs attached to a valid catalog of the same shop.
type catalogRule struct{}

func (catalogRule) Name() string { return "shop_catalog" }

func (r catalogRule) Evaluate(_ context.Context, view core.RuleView, changes []core.Change) (core.Result, error) {
	var result core.Result
	block := func(row core.LiveEntity, format string, args ...any) {
		result.Violations = append(result.Violations, core.Violation{
			Rule:     r.Name(),
			Severity: core.SeverityBlock,
			Message:  fmt.Sprintf("%s %s: ", row.Entity, row.ID) + fmt.Sprintf(format, args...),
			Kind:     domain.KindLive,
			Key:      row.Key(),
		})
	}
	for _, row := range core.ChangedLive(view, changes) {
		if row.Status != core.StatusValid {
			continue
		}
		if row.Entity != domain.EntityShopAttr && row.Entity != domain.EntityShopCatalog {
			continue
		}
		shopID := row.Fields.String("shop_id")
		if shop, ok := view.FindLive(domain.EntityShop, shopID); !ok || shop.Status != core.StatusValid {
			block(row, "shop %q is not valid", shopID)
			continue
		}
		if row.Entity != domain.EntityShopCatalog {
			continue
		}
		parentID := row.Fields.String("parent_catalog_id")
		if parentID == "" {
			continue
		}
		if parentID == row.ID {
			block(row, "catalog cannot be its own parent")
			continue
		}
		parent, ok := view.FindLive(domain.EntityShopCatalog, parentID)
		if !ok || parent.Status != core.StatusValid || parent.Fields.String("shop_id") != shopID {
			block(row, "parent catalog %q is not a valid catalog of shop %q", parentID, shopID)
		}
	}
	return result, nil
}
