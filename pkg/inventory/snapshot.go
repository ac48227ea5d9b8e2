package inventory

import (
	"fmt"

	"github.com/cockroachdb/errors"
	"github.com/google/uuid"
)

// SnapshotVersion is written into every Snapshot. Readers accept any version
// and ignore fields they do not know.
const SnapshotVersion = 1

// Snapshot is the portable form of a container. Items reference the catalog
// by DefinitionID only. The json and codec (MessagePack) field names are part
// of the persisted format and must not change.
type Snapshot struct {
	Version int          `json:"version" codec:"version"`
	Name    string       `json:"name" codec:"name"`
	Purpose string       `json:"purpose,omitempty" codec:"purpose,omitempty"`
	Width   int          `json:"width" codec:"width"`
	Height  int          `json:"height" codec:"height"`
	Items   []ItemRecord `json:"items" codec:"items"`
}

// ItemRecord is one placed item inside a Snapshot.
type ItemRecord struct {
	DefinitionID DefinitionID   `json:"definitionId" codec:"definitionId"`
	InstanceID   string         `json:"instanceId,omitempty" codec:"instanceId,omitempty"`
	PosX         int            `json:"posX" codec:"posX"`
	PosY         int            `json:"posY" codec:"posY"`
	Rotation     Rotation       `json:"rotation" codec:"rotation"`
	Metadata     map[string]any `json:"metadata,omitempty" codec:"metadata,omitempty"`
}

// EntryIssue reports a snapshot entry that Deserialize skipped. Err matches
// ErrUnknownItemDefinition or ErrCorruptPlacement under errors.Is.
type EntryIssue struct {
	Index        int
	DefinitionID DefinitionID
	Err          error
}

func (e EntryIssue) Error() string {
	return fmt.Sprintf("snapshot entry %d (%s): %v", e.Index, e.DefinitionID, e.Err)
}

func (e EntryIssue) Unwrap() error { return e.Err }

// Serialize captures c as a Snapshot with one record per distinct item, in
// Items order. Metadata maps are copied.
func Serialize(c *Container) Snapshot {
	snap := Snapshot{
		Version: SnapshotVersion,
		Name:    c.name,
		Purpose: c.purpose,
		Width:   c.bounds.Width,
		Height:  c.bounds.Height,
		Items:   make([]ItemRecord, 0, c.count),
	}
	for it := range c.Items() {
		snap.Items = append(snap.Items, ItemRecord{
			DefinitionID: it.instance.Definition.ID,
			InstanceID:   it.instance.ID.String(),
			PosX:         it.bounds.X,
			PosY:         it.bounds.Y,
			Rotation:     it.rotation,
			Metadata:     cloneMetadata(it.instance.Metadata),
		})
	}
	return snap
}

// Deserialize rebuilds a container from snap, resolving definitions through
// catalog. An entry whose definition is missing, or whose placement no longer
// validates (bad rotation, out of bounds, overlap, duplicate instance id), is
// skipped and reported; the rest of the container is still restored. The
// returned error is reserved for snapshots that cannot produce a container at
// all.
func Deserialize(snap Snapshot, catalog Catalog) (*Container, []EntryIssue, error) {
	if catalog == nil {
		return nil, nil, errors.New("inventory: deserialize requires a catalog")
	}
	c, err := NewContainer(snap.Name, snap.Width, snap.Height, WithPurpose(snap.Purpose))
	if err != nil {
		return nil, nil, err
	}

	var issues []EntryIssue
	seen := make(map[uuid.UUID]bool, len(snap.Items))
	report := func(i int, rec ItemRecord, err error) {
		issues = append(issues, EntryIssue{Index: i, DefinitionID: rec.DefinitionID, Err: err})
	}

	for i, rec := range snap.Items {
		def, ok := catalog.LookupDefinition(rec.DefinitionID)
		if !ok {
			report(i, rec, errors.Wrapf(ErrUnknownItemDefinition, "%s", rec.DefinitionID))
			continue
		}
		if !rec.Rotation.Valid() {
			report(i, rec, errors.Wrapf(ErrCorruptPlacement, "rotation %d", int(rec.Rotation)))
			continue
		}
		b := def.BoundsAt(Point{X: rec.PosX, Y: rec.PosY}, rec.Rotation)
		if err := c.checkPlacement(b, nil); err != nil {
			report(i, rec, errors.Mark(err, ErrCorruptPlacement))
			continue
		}

		id, err := uuid.Parse(rec.InstanceID)
		if err != nil {
			id = uuid.New()
		}
		if seen[id] {
			report(i, rec, errors.Wrapf(ErrCorruptPlacement, "duplicate instance id %s", id))
			continue
		}
		seen[id] = true

		inst := &ItemInstance{ID: id, Definition: def, Metadata: cloneMetadata(rec.Metadata)}
		if inst.Metadata == nil {
			inst.Metadata = make(map[string]any)
		}
		c.add(inst, b, rec.Rotation)
	}
	return c, issues, nil
}
