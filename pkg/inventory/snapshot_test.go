package inventory

import (
	"encoding/json"
	"math"
	"testing"

	"github.com/cockroachdb/errors"
	"github.com/google/uuid"
	"github.com/santhosh-tekuri/jsonschema/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSnapshotRoundTrip(t *testing.T) {
	reg, cat := SampleRegistry(OwnerID("demo"))
	backpack, _ := reg.Get("backpack")
	rifle, ok := backpack.ItemAt(Point{0, 0})
	require.True(t, ok)
	rifle.Instance().Set("serial", "BR-0042")
	rifle.Instance().Set("loaded", true)

	data, err := json.Marshal(Serialize(backpack))
	require.NoError(t, err)

	var snap Snapshot
	require.NoError(t, json.Unmarshal(data, &snap))
	restored, issues, err := Deserialize(snap, cat)
	require.NoError(t, err)
	assert.Empty(t, issues)

	assert.Equal(t, backpack.Name(), restored.Name())
	assert.Equal(t, backpack.Purpose(), restored.Purpose())
	assert.Equal(t, backpack.Bounds(), restored.Bounds())
	want, got := backpack.ItemList(), restored.ItemList()
	require.Len(t, got, len(want))
	for i := range want {
		assert.Equal(t, want[i].Instance().ID, got[i].Instance().ID)
		assert.Equal(t, want[i].Definition().ID, got[i].Definition().ID)
		assert.Equal(t, want[i].Bounds(), got[i].Bounds())
		assert.Equal(t, want[i].Rotation(), got[i].Rotation())
		assert.Equal(t, cloneMetadata(want[i].Instance().Metadata), cloneMetadata(got[i].Instance().Metadata))
	}
	assert.Equal(t, Serialize(backpack), Serialize(restored))
}

func TestDeserializeUnknownDefinitionScenarioE(t *testing.T) {
	cat := SampleCatalog()
	snap := Snapshot{
		Version: SnapshotVersion,
		Name:    "crate",
		Width:   4,
		Height:  2,
		Items: []ItemRecord{
			{DefinitionID: SampleAmmoBox, PosX: 0, PosY: 0},
			{DefinitionID: "11111111-2222-3333-4444-555555555555", PosX: 2, PosY: 0},
			{DefinitionID: SampleRadio, PosX: 3, PosY: 1},
		},
	}

	c, issues, err := Deserialize(snap, cat)
	require.NoError(t, err)
	require.Len(t, issues, 1)
	assert.Equal(t, 1, issues[0].Index)
	assert.ErrorIs(t, issues[0], ErrUnknownItemDefinition)

	assert.Equal(t, 2, c.Len())
	ammo, ok := c.ItemAt(Point{1, 0})
	require.True(t, ok)
	assert.Equal(t, SampleAmmoBox, ammo.Definition().ID)
	_, ok = c.ItemAt(Point{3, 1})
	assert.True(t, ok)
}

func TestDeserializeCorruptPlacement(t *testing.T) {
	cat := SampleCatalog()
	dup := uuid.NewString()
	snap := Snapshot{
		Name:   "pouch",
		Width:  3,
		Height: 3,
		Items: []ItemRecord{
			{DefinitionID: SampleMedkit, InstanceID: dup, PosX: 0, PosY: 0},
			{DefinitionID: SampleRadio, PosX: 1, PosY: 1},                  // overlaps medkit
			{DefinitionID: SampleRifle, PosX: 0, PosY: 2},                  // wider than the pouch
			{DefinitionID: SampleCanteen, PosX: 2, PosY: 0, Rotation: 45},  // unsupported rotation
			{DefinitionID: SampleRation, InstanceID: dup, PosX: 2, PosY: 2}, // repeated instance id
			{DefinitionID: SampleCanteen, InstanceID: "not-a-uuid", PosX: 2, PosY: 0},
			{DefinitionID: SampleRadio, PosX: math.MaxInt, PosY: 0}, // anchor overflows
			{DefinitionID: SampleRadio, PosX: 0, PosY: math.MaxInt}, // row overflows
		},
	}

	c, issues, err := Deserialize(snap, cat)
	require.NoError(t, err)
	require.Len(t, issues, 6)
	for i, idx := range []int{1, 2, 3, 4, 6, 7} {
		assert.Equal(t, idx, issues[i].Index)
		assert.True(t, errors.Is(issues[i], ErrCorruptPlacement), "issue %d: %v", idx, issues[i])
	}

	assert.Equal(t, 2, c.Len())
	canteen, ok := c.ItemAt(Point{2, 1})
	require.True(t, ok)
	assert.NotEqual(t, uuid.Nil, canteen.Instance().ID)
	assert.Len(t, Serialize(c).Items, 2)
	requireConsistent(t, c)
}

func TestDeserializeFatal(t *testing.T) {
	_, _, err := Deserialize(Snapshot{Name: "x", Width: 0, Height: 3}, SampleCatalog())
	assert.ErrorIs(t, err, ErrInvalidSize)
	_, _, err = Deserialize(Snapshot{Name: "x", Width: 1, Height: 1}, nil)
	assert.Error(t, err)
}

func TestSnapshotIgnoresUnknownFields(t *testing.T) {
	raw := `{"version":3,"name":"pockets","width":2,"height":2,"future":{"a":1},
		"items":[{"definitionId":"` + string(SampleRadio) + `","posX":1,"posY":1,"rotation":0,"glow":true}]}`
	var snap Snapshot
	require.NoError(t, json.Unmarshal([]byte(raw), &snap))
	c, issues, err := Deserialize(snap, SampleCatalog())
	require.NoError(t, err)
	assert.Empty(t, issues)
	assert.Equal(t, 1, c.Len())
}

func TestSnapshotMatchesSchema(t *testing.T) {
	schema, err := jsonschema.Compile("testdata/snapshot.schema.json")
	require.NoError(t, err)

	reg, _ := SampleRegistry(OwnerID("demo"))
	for _, c := range reg.Containers() {
		data, err := json.Marshal(Serialize(c))
		require.NoError(t, err)
		var doc any
		require.NoError(t, json.Unmarshal(data, &doc))
		assert.NoError(t, schema.Validate(doc), "container %s", c.Name())
	}
}
