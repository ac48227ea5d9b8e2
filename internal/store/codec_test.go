package store

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/gravitas-games/gridstash/pkg/inventory"
)

// sampleSnapshot returns the demo backpack with metadata of every scalar
// kind the codecs must carry.
func sampleSnapshot(t *testing.T) (inventory.Snapshot, *inventory.ItemRegistry) {
	t.Helper()
	reg, cat := inventory.SampleRegistry(inventory.OwnerID("demo"))
	backpack, ok := reg.Get("backpack")
	require.True(t, ok)
	rifle, ok := backpack.ItemAt(inventory.Point{X: 0, Y: 0})
	require.True(t, ok)
	rifle.Instance().Set("serial", "BR-0042")
	rifle.Instance().Set("loaded", true)
	rifle.Instance().Set("wear", 0.25)
	return inventory.Serialize(backpack), cat
}

func TestCodecRoundTrip(t *testing.T) {
	snap, cat := sampleSnapshot(t)
	for _, f := range []Format{FormatJSON, FormatMsgpack} {
		t.Run(string(f), func(t *testing.T) {
			data, err := Encode(snap, f)
			require.NoError(t, err)
			got, err := Decode(data, f)
			require.NoError(t, err)
			assert.Equal(t, snap, got)

			c, issues, err := inventory.Deserialize(got, cat)
			require.NoError(t, err)
			assert.Empty(t, issues)
			assert.Equal(t, snap, inventory.Serialize(c))
		})
	}
}

func TestParseFormat(t *testing.T) {
	f, err := ParseFormat("msgpack")
	require.NoError(t, err)
	assert.Equal(t, FormatMsgpack, f)

	_, err = ParseFormat("xml")
	assert.ErrorIs(t, err, ErrUnknownFormat)
	_, err = Encode(inventory.Snapshot{}, Format("gob"))
	assert.ErrorIs(t, err, ErrUnknownFormat)
}

func TestDecodeGarbage(t *testing.T) {
	_, err := Decode([]byte("{not json"), FormatJSON)
	assert.Error(t, err)
	_, err = Decode([]byte{0x85, 0xa4}, FormatMsgpack)
	assert.Error(t, err)
}
