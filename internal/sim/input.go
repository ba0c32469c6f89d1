package sim

import (
	"encoding/binary"

	"github.com/pkg/errors"

	"frontier/internal/config"
	"frontier/internal/sim/grid"
)

// InputType tags a match input record on the wire.
type InputType uint8

const (
	InputNone InputType = iota
	InputMoveCell
	InputMoveEntity
	InputMoveAttackCell
	InputMoveAttackEntity
	InputMoveRepair
	InputMoveUnload
	InputMoveMolotov
	InputStop
	InputDefend
	InputBuild
	InputBuildCancel
	InputBuildingEnqueue
	InputBuildingDequeue
	InputRally
	InputSingleUnload
	InputUnload
	InputCamo
	InputDecamo
	InputPatrol
	inputTypeCount
)

// String returns the input type name for logs and the replay inspector.
func (t InputType) String() string {
	names := [...]string{
		"NONE", "MOVE_CELL", "MOVE_ENTITY", "MOVE_ATTACK_CELL",
		"MOVE_ATTACK_ENTITY", "MOVE_REPAIR", "MOVE_UNLOAD", "MOVE_MOLOTOV",
		"STOP", "DEFEND", "BUILD", "BUILD_CANCEL", "BUILDING_ENQUEUE",
		"BUILDING_DEQUEUE", "RALLY", "SINGLE_UNLOAD", "UNLOAD", "CAMO",
		"DECAMO", "PATROL",
	}
	if int(t) < len(names) {
		return names[t]
	}
	return "INVALID"
}

// Input is one match command. It is a flat record covering every variant;
// which fields are meaningful depends on Type, and the wire codec writes
// exactly the fields the variant declares, in declaration order.
type Input struct {
	Type InputType

	Shift      bool
	TargetCell grid.Point
	TargetID   EntityID

	BuildingType EntityType // BUILD

	ItemKind    QueueItemKind // BUILDING_ENQUEUE
	ItemSubtype uint32
	QueueIndex  uint8 // BUILDING_DEQUEUE; DequeueFront pops the head

	RallyPoint grid.Point
	CellB      grid.Point // PATROL second leg

	EntityIDs []EntityID
}

// DequeueFront is the BUILDING_DEQUEUE sentinel for "cancel the in-progress
// head item".
const DequeueFront = dequeueFront

// ErrBatchTooLarge is returned when a serialized batch would exceed the
// fixed network input buffer.
var ErrBatchTooLarge = errors.New("input batch exceeds buffer size")

// ErrTruncatedInput is returned when a batch ends mid-record.
var ErrTruncatedInput = errors.New("truncated input record")

// ErrUnknownInputType is returned for tags outside the known set. A peer
// sending these is running a different build; the engine treats it as fatal.
var ErrUnknownInputType = errors.New("unknown input type")

// Serialize appends the wire form of one input to buf.
func (in *Input) Serialize(buf []byte) []byte {
	buf = append(buf, byte(in.Type))
	switch in.Type {
	case InputNone:
	case InputMoveCell, InputMoveEntity, InputMoveAttackCell, InputMoveAttackEntity,
		InputMoveRepair, InputMoveUnload, InputMoveMolotov:
		buf = append(buf, boolByte(in.Shift))
		buf = appendPoint(buf, in.TargetCell)
		buf = binary.LittleEndian.AppendUint32(buf, uint32(in.TargetID))
		buf = appendEntityIDs(buf, in.EntityIDs)
	case InputStop, InputDefend, InputUnload, InputCamo, InputDecamo:
		buf = appendEntityIDs(buf, in.EntityIDs)
	case InputBuild:
		buf = append(buf, boolByte(in.Shift))
		buf = append(buf, byte(in.BuildingType))
		buf = appendPoint(buf, in.TargetCell)
		buf = appendEntityIDs(buf, in.EntityIDs)
	case InputBuildCancel, InputSingleUnload:
		buf = binary.LittleEndian.AppendUint32(buf, uint32(in.TargetID))
	case InputBuildingEnqueue:
		buf = append(buf, byte(in.ItemKind))
		buf = binary.LittleEndian.AppendUint32(buf, in.ItemSubtype)
		buf = appendEntityIDs(buf, in.EntityIDs)
	case InputBuildingDequeue:
		buf = binary.LittleEndian.AppendUint32(buf, uint32(in.TargetID))
		buf = append(buf, in.QueueIndex)
	case InputRally:
		buf = appendPoint(buf, in.RallyPoint)
		buf = appendEntityIDs(buf, in.EntityIDs)
	case InputPatrol:
		buf = appendPoint(buf, in.TargetCell)
		buf = appendPoint(buf, in.CellB)
		buf = appendEntityIDs(buf, in.EntityIDs)
	}
	return buf
}

// Deserialize reads one input starting at *head and advances it.
func Deserialize(buf []byte, head *int) (Input, error) {
	r := reader{buf: buf, pos: *head}
	var in Input

	tag, err := r.u8()
	if err != nil {
		return in, err
	}
	in.Type = InputType(tag)

	switch in.Type {
	case InputNone:
	case InputMoveCell, InputMoveEntity, InputMoveAttackCell, InputMoveAttackEntity,
		InputMoveRepair, InputMoveUnload, InputMoveMolotov:
		in.Shift, err = r.boolean()
		if err == nil {
			in.TargetCell, err = r.point()
		}
		if err == nil {
			in.TargetID, err = r.entityID()
		}
		if err == nil {
			in.EntityIDs, err = r.entityIDs()
		}
	case InputStop, InputDefend, InputUnload, InputCamo, InputDecamo:
		in.EntityIDs, err = r.entityIDs()
	case InputBuild:
		in.Shift, err = r.boolean()
		if err == nil {
			var b uint8
			b, err = r.u8()
			in.BuildingType = EntityType(b)
		}
		if err == nil {
			in.TargetCell, err = r.point()
		}
		if err == nil {
			in.EntityIDs, err = r.entityIDs()
		}
	case InputBuildCancel, InputSingleUnload:
		in.TargetID, err = r.entityID()
	case InputBuildingEnqueue:
		var kind uint8
		kind, err = r.u8()
		in.ItemKind = QueueItemKind(kind)
		if err == nil {
			in.ItemSubtype, err = r.u32()
		}
		if err == nil {
			in.EntityIDs, err = r.entityIDs()
		}
	case InputBuildingDequeue:
		in.TargetID, err = r.entityID()
		if err == nil {
			in.QueueIndex, err = r.u8()
		}
	case InputRally:
		in.RallyPoint, err = r.point()
		if err == nil {
			in.EntityIDs, err = r.entityIDs()
		}
	case InputPatrol:
		in.TargetCell, err = r.point()
		if err == nil {
			in.CellB, err = r.point()
		}
		if err == nil {
			in.EntityIDs, err = r.entityIDs()
		}
	default:
		return in, errors.Wrapf(ErrUnknownInputType, "tag %d", tag)
	}

	if err != nil {
		return in, err
	}
	*head = r.pos
	return in, nil
}

// SerializeBatch concatenates a turn's inputs. A batch has no outer count:
// record boundaries are implied by each record's tag.
func SerializeBatch(inputs []Input) ([]byte, error) {
	buf := make([]byte, 0, 64)
	for i := range inputs {
		buf = inputs[i].Serialize(buf)
		if len(buf) > config.InputBufferSize {
			return nil, ErrBatchTooLarge
		}
	}
	return buf, nil
}

// DeserializeBatch parses a full turn batch. An empty batch means the player
// sent nothing this turn and yields a single NONE input.
func DeserializeBatch(buf []byte) ([]Input, error) {
	if len(buf) == 0 {
		return []Input{{Type: InputNone}}, nil
	}
	inputs := make([]Input, 0, 4)
	head := 0
	for head < len(buf) {
		in, err := Deserialize(buf, &head)
		if err != nil {
			return nil, err
		}
		inputs = append(inputs, in)
	}
	return inputs, nil
}

func boolByte(b bool) byte {
	if b {
		return 1
	}
	return 0
}

func appendPoint(buf []byte, p grid.Point) []byte {
	buf = binary.LittleEndian.AppendUint32(buf, uint32(int32(p.X)))
	return binary.LittleEndian.AppendUint32(buf, uint32(int32(p.Y)))
}

func appendEntityIDs(buf []byte, ids []EntityID) []byte {
	count := len(ids)
	if count > config.SelectionLimit {
		count = config.SelectionLimit
	}
	buf = append(buf, byte(count))
	for i := 0; i < count; i++ {
		buf = binary.LittleEndian.AppendUint32(buf, uint32(ids[i]))
	}
	return buf
}

// reader is a bounds-checked little-endian cursor. Network bytes are hostile;
// a malformed record must produce an error, never a panic.
type reader struct {
	buf []byte
	pos int
}

func (r *reader) u8() (uint8, error) {
	if r.pos+1 > len(r.buf) {
		return 0, ErrTruncatedInput
	}
	v := r.buf[r.pos]
	r.pos++
	return v, nil
}

func (r *reader) boolean() (bool, error) {
	v, err := r.u8()
	return v != 0, err
}

func (r *reader) u32() (uint32, error) {
	if r.pos+4 > len(r.buf) {
		return 0, ErrTruncatedInput
	}
	v := binary.LittleEndian.Uint32(r.buf[r.pos:])
	r.pos += 4
	return v, nil
}

func (r *reader) entityID() (EntityID, error) {
	v, err := r.u32()
	return EntityID(v), err
}

func (r *reader) point() (grid.Point, error) {
	x, err := r.u32()
	if err != nil {
		return grid.Point{}, err
	}
	y, err := r.u32()
	if err != nil {
		return grid.Point{}, err
	}
	return grid.Point{X: int(int32(x)), Y: int(int32(y))}, nil
}

func (r *reader) entityIDs() ([]EntityID, error) {
	count, err := r.u8()
	if err != nil {
		return nil, err
	}
	if int(count) > config.SelectionLimit {
		return nil, errors.Wrapf(ErrTruncatedInput, "id count %d over selection limit", count)
	}
	ids := make([]EntityID, 0, count)
	for i := 0; i < int(count); i++ {
		id, err := r.entityID()
		if err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	return ids, nil
}

// =============================================================================
// INPUT APPLICATION
// =============================================================================

// Apply validates and applies one input for a player. Stale ids and illegal
// requests are dropped silently, with a feedback event to the issuing player
// where the failure is player-visible; application never fails and never
// panics on hostile data.
func (s *Simulation) Apply(playerID uint8, in Input) {
	if playerID >= config.MaxPlayers || !s.Players[playerID].Active {
		return
	}

	switch in.Type {
	case InputNone:

	case InputMoveCell, InputMoveAttackCell, InputMoveUnload, InputMoveMolotov:
		if !s.Map.InBounds(in.TargetCell) {
			return
		}
		kind := map[InputType]TargetKind{
			InputMoveCell:       TargetCell,
			InputMoveAttackCell: TargetAttackMove,
			InputMoveUnload:     TargetUnload,
			InputMoveMolotov:    TargetMolotov,
		}[in.Type]
		for _, unit := range s.selectOwnUnits(playerID, in.EntityIDs) {
			if in.Type == InputMoveMolotov && unit.Type != UnitPyro {
				continue
			}
			if in.Type == InputMoveUnload && Stats(unit.Type).GarrisonCapacity == 0 {
				continue
			}
			s.assignTarget(unit, targetOnCell(kind, in.TargetCell), in.Shift)
		}

	case InputMoveEntity, InputMoveAttackEntity, InputMoveRepair:
		if s.Pool.Get(in.TargetID) == nil {
			return
		}
		kind := TargetEntity
		if in.Type == InputMoveRepair {
			kind = TargetRepair
		}
		for _, unit := range s.selectOwnUnits(playerID, in.EntityIDs) {
			if unit.ID == in.TargetID {
				continue
			}
			s.assignTarget(unit, targetOnEntity(kind, in.TargetID), in.Shift)
		}

	case InputStop:
		for _, unit := range s.selectOwnUnits(playerID, in.EntityIDs) {
			unit.Target = emptyTarget()
			unit.TargetQueue = nil
			unit.Path = nil
			unit.Flags &^= FlagHoldPosition
			if unit.Mode == ModeMove || unit.Mode == ModeMoveBlocked || unit.Mode == ModeMoveFinished {
				unit.Mode = ModeIdle
				unit.Animation = NewAnimation(AnimIdle, -1)
			}
		}

	case InputDefend:
		for _, unit := range s.selectOwnUnits(playerID, in.EntityIDs) {
			unit.Flags |= FlagHoldPosition
			unit.Target = emptyTarget()
			unit.TargetQueue = nil
			unit.Path = nil
		}

	case InputBuild:
		if in.BuildingType >= EntityTypeCount || !s.Map.InBounds(in.TargetCell) {
			return
		}
		workers := s.selectOwnUnits(playerID, in.EntityIDs)
		var builder *Entity
		for _, w := range workers {
			if buildableBy(w.Type, in.BuildingType) {
				builder = w
				break
			}
		}
		if builder == nil {
			return
		}
		target := emptyTarget()
		target.Kind = TargetBuild
		target.BuildType = in.BuildingType
		target.BuildCell = in.TargetCell
		target.UnitCell = in.TargetCell
		s.assignTarget(builder, target, in.Shift)
		for _, w := range workers {
			if w.ID == builder.ID || !Stats(w.Type).IsWorker {
				continue
			}
			s.assignTarget(w, targetOnEntity(TargetBuildAssist, builder.ID), in.Shift)
		}

	case InputBuildCancel:
		building := s.Pool.Get(in.TargetID)
		if building != nil && building.PlayerID == playerID && building.Mode == ModeBuildingInProgress {
			s.cancelConstruction(building)
		}

	case InputBuildingEnqueue:
		// Among the selected buildings, feed the shortest queue.
		var best *Entity
		for _, id := range in.EntityIDs {
			building := s.Pool.Get(id)
			if building == nil || building.PlayerID != playerID || !building.IsBuilding() {
				continue
			}
			if building.Mode != ModeBuildingFinished {
				continue
			}
			if best == nil || len(building.Queue) < len(best.Queue) {
				best = building
			}
		}
		if best != nil {
			s.enqueueProduction(best, QueueItem{Kind: in.ItemKind, Subtype: in.ItemSubtype})
		}

	case InputBuildingDequeue:
		building := s.Pool.Get(in.TargetID)
		if building != nil && building.PlayerID == playerID && building.IsBuilding() {
			s.dequeueProduction(building, in.QueueIndex)
		}

	case InputRally:
		if !s.Map.InBounds(in.RallyPoint) {
			return
		}
		for _, id := range in.EntityIDs {
			building := s.Pool.Get(id)
			if building != nil && building.PlayerID == playerID && building.IsBuilding() {
				building.RallyPoint = in.RallyPoint
			}
		}

	case InputSingleUnload:
		passenger := s.Pool.Get(in.TargetID)
		if passenger == nil || passenger.PlayerID != playerID || passenger.GarrisonID == NoEntity {
			return
		}
		carrier := s.Pool.Get(passenger.GarrisonID)
		if carrier == nil || carrier.Mode == ModeBuildingInProgress {
			return
		}
		if s.unloadOne(carrier, passenger) {
			carrier.removePassenger(passenger.ID)
		} else {
			s.emit(EventExitBlocked, playerID, carrier.ID, carrier.Cell)
		}

	case InputUnload:
		for _, id := range in.EntityIDs {
			carrier := s.Pool.Get(id)
			if carrier == nil || carrier.PlayerID != playerID {
				continue
			}
			if Stats(carrier.Type).GarrisonCapacity == 0 || carrier.Mode == ModeBuildingInProgress {
				continue
			}
			s.unloadAll(carrier)
		}

	case InputCamo:
		for _, unit := range s.selectOwnUnits(playerID, in.EntityIDs) {
			if Stats(unit.Type).CanCamo && unit.Energy > 0 {
				unit.Flags |= FlagInvisible
				unit.EnergyRegenTimer = CamoEnergyDrainInterval
			}
		}

	case InputDecamo:
		for _, unit := range s.selectOwnUnits(playerID, in.EntityIDs) {
			unit.Flags &^= FlagInvisible
			unit.EnergyRegenTimer = EnergyRegenInterval
		}

	case InputPatrol:
		if !s.Map.InBounds(in.TargetCell) || !s.Map.InBounds(in.CellB) {
			return
		}
		for _, unit := range s.selectOwnUnits(playerID, in.EntityIDs) {
			target := targetOnCell(TargetPatrol, in.TargetCell)
			target.CellB = in.CellB
			s.assignTarget(unit, target, in.Shift)
		}
	}
}

// ApplyBatch applies a player's turn inputs in send order.
func (s *Simulation) ApplyBatch(playerID uint8, inputs []Input) {
	for i := range inputs {
		s.Apply(playerID, inputs[i])
	}
}

// selectOwnUnits resolves ids to living, selectable units owned by the
// player, preserving the order the ids arrived in. Unknown and stale ids
// drop out silently.
func (s *Simulation) selectOwnUnits(playerID uint8, ids []EntityID) []*Entity {
	units := make([]*Entity, 0, len(ids))
	for _, id := range ids {
		entity := s.Pool.Get(id)
		if entity == nil || entity.PlayerID != playerID {
			continue
		}
		if !entity.IsUnit() || !entity.IsSelectable() {
			continue
		}
		units = append(units, entity)
	}
	return units
}

// assignTarget replaces or queues a command. A non-shift command replaces
// the unit's target and clears the queue; shift appends.
func (s *Simulation) assignTarget(unit *Entity, target Target, shift bool) {
	unit.Flags &^= FlagHoldPosition
	if shift && (unit.Target.Kind != TargetNone || len(unit.TargetQueue) > 0) {
		if len(unit.TargetQueue) < config.SelectionLimit {
			unit.TargetQueue = append(unit.TargetQueue, target)
		}
		return
	}
	unit.Target = target
	unit.TargetQueue = nil
	unit.Path = nil
	switch unit.Mode {
	case ModeMove, ModeMoveBlocked, ModeMoveFinished, ModeIdle,
		ModeAttackCooldown, ModeRepair:
		unit.Mode = ModeIdle
		unit.Timer = 0
	}
}
