// Package agent registers the agent (operator company) listeners.
package agent

import (
	"context"
	"fmt"

	"estatecore/internal/core"
	"estatecore/pkg/domain"
)

const (
	CodeSaveInfo    core.ServiceCode = "save.agent.info"
	CodeUpdateInfo  core.ServiceCode = "update.agent.info"
	CodeDeleteInfo  core.ServiceCode = "delete.agent.info"
	CodeDeletePhoto core.ServiceCode = "delete.agent.photo"
)

const (
	SectionInfo        = "agentInfo"
	SectionAttrs       = "agentAttrs"
	SectionPhotos      = "agentPhotos"
	SectionCerdentials = "agentCerdentials"
)

// OutputAgentID carries the agent id back to the caller.
const OutputAgentID = "agentId"

var schemas = []core.SectionSchema{
	{
		Section:  SectionInfo,
		Entity:   domain.EntityAgent,
		IDField:  "agentId",
		Required: []string{"name", "tel"},
		Output:   OutputAgentID,
		IDPrefix: "A",
	},
	{
		Section:  SectionAttrs,
		Entity:   domain.EntityAgentAttr,
		IDField:  "attrId",
		Multi:    true,
		Required: []string{"agentId", "specCd"},
		IDPrefix: "AA",
	},
	{
		Section:  SectionPhotos,
		Entity:   domain.EntityAgentPhoto,
		IDField:  "agentPhotoId",
		Multi:    true,
		Required: []string{"agentId", "photo"},
		IDPrefix: "AP",
	},
	{
		Section:  SectionCerdentials,
		Entity:   domain.EntityAgentCerdentials,
		IDField:  "agentCerdentialsId",
		Multi:    true,
		Required: []string{"agentId", "credentialsCd", "value"},
		IDPrefix: "AC",
	},
}

// Plugin implements the agent module.
type Plugin struct{}

func New() Plugin { return Plugin{} }

func (Plugin) Name() string { return "agent" }

func (Plugin) Version() string { return "0.1.0" }

// Register wires the agent listeners. Only the info section is mandatory;
// child sections ride along when present.
func (Plugin) Register(registry *core.ModuleRegistry) error {
	for _, schema := range schemas {
		if err := registry.RegisterSchema(schema); err != nil {
			return err
		}
	}
	info, attrs, photos, cerdentials := schemas[0], schemas[1], schemas[2], schemas[3]

	registry.RegisterListener(CodeSaveInfo, 1,
		core.NewIDListener(SectionInfo, "agentId", info.IDPrefix, OutputAgentID, SectionAttrs, SectionPhotos, SectionCerdentials))
	registry.RegisterListener(CodeSaveInfo, 2, sections("save.agent", core.ModeSave, info, attrs, photos, cerdentials))
	registry.RegisterListener(CodeUpdateInfo, 2, sections("update.agent", core.ModeUpdate, info, attrs, photos, cerdentials))
	registry.RegisterListener(CodeDeleteInfo, 2, sections("delete.agent", core.ModeDelete, info, attrs, photos, cerdentials))
	registry.RegisterListener(CodeDeletePhoto, 3, core.NewSectionListener(photos, core.ModeDelete))

	registry.RegisterRule(ownerRule{})
	return nil
}

// sections groups a mandatory head section with optional children.
func sections(name string, mode core.Mode, head core.SectionSchema, children ...core.SectionSchema) *core.ListenerGroup {
	members := []core.Listener{core.NewSectionListener(head, mode)}
	for _, child := range children {
		members = append(members, core.NewSectionListener(child, mode, core.Optional()))
	}
	return core.NewListenerGroup(name, members...)
}

// ownerRule blocks valid agent child rows that point at no valid agent.
type ownerRule struct{}

func (ownerRule) Name() string { return "agent_owner" }

func (r ownerRule) Evaluate(_ context.Context, view core.RuleView, changes []core.Change) (core.Result, error) {
	var result core.Result
	for _, row := range core.ChangedLive(view, changes) {
		if row.Entity == domain.EntityAgent || row.Status != core.StatusValid {
			continue
		}
		if row.Entity != domain.EntityAgentAttr && row.Entity != domain.EntityAgentPhoto && row.Entity != domain.EntityAgentCerdentials {
			continue
		}
		agentID := row.Fields.String("agent_id")
		if owner, ok := view.FindLive(domain.EntityAgent, agentID); ok && owner.Status == core.StatusValid {
			continue
		}
		result.Violations = append(result.Violations, core.Violation{
			Rule:     r.Name(),
			Severity: core.SeverityBlock,
			Message:  fmt.Sprintf("%s %s has no valid agent %q", row.Entity, row.ID, agentID),
			Kind:     domain.KindLive,
			Key:      row.Key(),
		})
	}
	return result, nil
}
