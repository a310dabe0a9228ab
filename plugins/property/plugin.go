// Package property registers the property company listeners: company info
// with its attributes, photos and credentials.
package property

import (
	"context"
	"fmt"

	"estatecore/internal/core"
	"estatecore/pkg/domain"
)

// Service codes handled by the module.
const (
	CodeSaveInfo          core.ServiceCode = "save.property.info"
	CodeUpdateInfo        core.ServiceCode = "update.property.info"
	CodeDeleteInfo        core.ServiceCode = "delete.property.info"
	CodeSavePhoto         core.ServiceCode = "save.property.photo"
	CodeDeletePhoto       core.ServiceCode = "delete.property.photo"
	CodeUpdateCerdentials core.ServiceCode = "update.property.cerdentials"
)

// Payload sections.
const (
	SectionInfo        = "propertyInfo"
	SectionAttrs       = "propertyAttrs"
	SectionPhotos      = "propertyPhotos"
	SectionCerdentials = "propertyCerdentials"
)

// OutputPropertyID carries the property id back to the caller.
const OutputPropertyID = "propertyId"

var (
	infoSchema = core.SectionSchema{
		Section:  SectionInfo,
		Entity:   domain.EntityProperty,
		IDField:  "propertyId",
		Required: []string{"name"},
		Output:   OutputPropertyID,
		IDPrefix: "P",
	}
	attrSchema = core.SectionSchema{
		Section:  SectionAttrs,
		Entity:   domain.EntityPropertyAttr,
		IDField:  "attrId",
		Multi:    true,
		Required: []string{"propertyId", "specCd"},
		IDPrefix: "PA",
	}
	photoSchema = core.SectionSchema{
		Section:  SectionPhotos,
		Entity:   domain.EntityPropertyPhoto,
		IDField:  "propertyPhotoId",
		Multi:    true,
		Required: []string{"propertyId", "photo"},
		IDPrefix: "PP",
	}
	cerdentialsSchema = core.SectionSchema{
		Section:  SectionCerdentials,
		Entity:   domain.EntityPropertyCerdentials,
		IDField:  "propertyCerdentialsId",
		Multi:    true,
		Required: []string{"propertyId", "credentialsCd", "value"},
		IDPrefix: "PC",
	}
)

// Plugin implements the property module.
type Plugin struct{}

// New constructs a property plugin instance.
func New() Plugin {
	return Plugin{}
}

func (Plugin) Name() string { return "property" }

func (Plugin) Version() string { return "0.1.0" }

// Schemas returns the section schemas the module accepts.
func (Plugin) Schemas() []core.SectionSchema {
	return []core.SectionSchema{infoSchema, attrSchema, photoSchema, cerdentialsSchema}
}

// Register wires the property listeners, schemas and the parent rule.
func (p Plugin) Register(registry *core.ModuleRegistry) error {
	for _, schema := range p.Schemas() {
		if err := registry.RegisterSchema(schema); err != nil {
			return err
		}
	}

	registry.RegisterListener(CodeSaveInfo, 1,
		core.NewIDListener(SectionInfo, "propertyId", infoSchema.IDPrefix, OutputPropertyID, SectionAttrs, SectionPhotos, SectionCerdentials))
	registry.RegisterListener(CodeSaveInfo, 2, core.NewListenerGroup("save.property",
		core.NewSectionListener(infoSchema, core.ModeSave),
		core.NewSectionListener(attrSchema, core.ModeSave, core.Optional()),
		core.NewSectionListener(photoSchema, core.ModeSave, core.Optional()),
		core.NewSectionListener(cerdentialsSchema, core.ModeSave, core.Optional()),
	))

	registry.RegisterListener(CodeUpdateInfo, 2, core.NewListenerGroup("update.property",
		core.NewSectionListener(infoSchema, core.ModeUpdate, core.Optional()),
		core.NewSectionListener(attrSchema, core.ModeUpdate, core.Optional()),
	))

	registry.RegisterListener(CodeDeleteInfo, 2, core.NewListenerGroup("delete.property",
		core.NewSectionListener(infoSchema, core.ModeDelete),
		core.NewSectionListener(attrSchema, core.ModeDelete, core.Optional()),
		core.NewSectionListener(photoSchema, core.ModeDelete, core.Optional()),
		core.NewSectionListener(cerdentialsSchema, core.ModeDelete, core.Optional()),
	))

	registry.RegisterListener(CodeSavePhoto, 3, core.NewSectionListener(photoSchema, core.ModeSave))
	registry.RegisterListener(CodeDeletePhoto, 3, core.NewSectionListener(photoSchema, core.ModeDelete))
	registry.RegisterListener(CodeUpdateCerdentials, 2, core.NewSectionListener(cerdentialsSchema, core.ModeUpdate))

	registry.RegisterRule(parentRule{})
	return nil
}

const parentRuleName = "property_parent"

// parentRule blocks valid child rows whose property is missing or deleted.
type parentRule struct{}

func (parentRule) Name() string { return parentRuleName }

func (parentRule) Evaluate(_ context.Context, view core.RuleView, changes []core.Change) (core.Result, error) {
	var result core.Result
	for _, row := range core.ChangedLive(view, changes) {
		switch row.Entity {
		case domain.EntityPropertyAttr, domain.EntityPropertyPhoto, domain.EntityPropertyCerdentials:
		default:
			continue
		}
		if row.Status != core.StatusValid {
			continue
		}
		propertyID := row.Fields.String("property_id")
		parent, ok := view.FindLive(domain.EntityProperty, propertyID)
		if ok && parent.Status == core.StatusValid {
			continue
		}
		result.Violations = append(result.Violations, core.Violation{
			Rule:     parentRuleName,
			Severity: core.SeverityBlock,
			Message:  fmt.Sprintf("%s %s references property %q which is not valid", row.Entity, row.ID, propertyID),
			Kind:     domain.KindLive,
			Key:      row.Key(),
		})
	}
	return result, nil
}
