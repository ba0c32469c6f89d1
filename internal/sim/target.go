package sim

import "frontier/internal/sim/grid"

// TargetKind discriminates what a unit is trying to do.
type TargetKind uint32

const (
	TargetNone TargetKind = iota
	TargetCell
	TargetAttackMove
	TargetEntity
	TargetRepair
	TargetBuild
	TargetBuildAssist
	TargetUnload
	TargetMolotov
	TargetGold   // derived by workers: walk to a mine and dig
	TargetCamp   // derived by workers: return held gold to a camp
	TargetPatrol // loop between two cells
)

// Target is the discriminated union describing a unit's current intent. It is
// a flat record rather than an interface so it can be copied, queued and
// checksummed without indirection; unused fields stay zero.
type Target struct {
	Kind TargetKind

	Cell grid.Point // TargetCell, TargetAttackMove, TargetUnload, TargetMolotov
	ID   EntityID   // TargetEntity, TargetRepair, TargetGold, TargetCamp, TargetBuildAssist

	// Build fields.
	BuildType EntityType
	BuildCell grid.Point // where the building goes
	UnitCell  grid.Point // where the worker stands to build
	BuildID   EntityID   // filled in once the site exists

	// Patrol fields. CellB is the far point; Cell is the current leg's goal.
	CellB grid.Point
}

// emptyTarget is the zero target with the id fields normalized to NoEntity.
func emptyTarget() Target {
	return Target{Kind: TargetNone, ID: NoEntity, BuildID: NoEntity}
}

// targetOnCell builds a plain movement target.
func targetOnCell(kind TargetKind, cell grid.Point) Target {
	t := emptyTarget()
	t.Kind = kind
	t.Cell = cell
	return t
}

// targetOnEntity builds an entity-directed target.
func targetOnEntity(kind TargetKind, id EntityID) Target {
	t := emptyTarget()
	t.Kind = kind
	t.ID = id
	return t
}
