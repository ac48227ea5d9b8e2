package catalog

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/gravitas-games/gridstash/pkg/inventory"
)

const sampleYAML = `
items:
  - id: 6f1c2d7e-3a41-4c1e-9a55-0b6f8d2c1a01
    name: Field Medkit
    type: medical
    width: 2
    height: 2
  - id: 6f1c2d7e-3a41-4c1e-9a55-0b6f8d2c1a03
    name: Bolt Rifle
    type: weapon
    width: 4
    height: 1
`

func TestLoad(t *testing.T) {
	path := filepath.Join(t.TempDir(), "items.yaml")
	require.NoError(t, os.WriteFile(path, []byte(sampleYAML), 0o644))

	reg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, 2, reg.Len())

	rifle, ok := reg.LookupDefinition(inventory.SampleRifle)
	require.True(t, ok)
	assert.Equal(t, "Bolt Rifle", rifle.Name)
	assert.Equal(t, 4, rifle.Width)
	assert.Equal(t, 1, rifle.Height)
}

func TestParseRejects(t *testing.T) {
	cases := map[string]string{
		"not a guid": `items: [{id: medkit, width: 1, height: 1}]`,
		"zero width": `items: [{id: 6f1c2d7e-3a41-4c1e-9a55-0b6f8d2c1a01, width: 0, height: 1}]`,
		"duplicate": `items:
  - {id: 6f1c2d7e-3a41-4c1e-9a55-0b6f8d2c1a01, width: 1, height: 1}
  - {id: 6f1c2d7e-3a41-4c1e-9a55-0b6f8d2c1a01, width: 2, height: 1}`,
	}
	for name, doc := range cases {
		t.Run(name, func(t *testing.T) {
			_, err := Parse([]byte(doc))
			assert.ErrorIs(t, err, inventory.ErrInvalidDefinition)
		})
	}

	_, err := Parse([]byte("items: {"))
	assert.Error(t, err)
	_, err = Load(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.Error(t, err)
}

func TestShippedCatalogMatchesSample(t *testing.T) {
	reg, err := Load("../../configs/items.yaml")
	require.NoError(t, err)

	sample := inventory.SampleCatalog()
	assert.Equal(t, sample.Len(), reg.Len())
	for _, def := range sample.Export() {
		got, ok := reg.LookupDefinition(def.ID)
		require.True(t, ok, def.ID)
		assert.Equal(t, def, *got)
	}
}
