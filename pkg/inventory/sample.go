package inventory

// Sample catalog identifiers. They are stable so saved demo snapshots keep
// resolving.
const (
	SampleMedkit  DefinitionID = "6f1c2d7e-3a41-4c1e-9a55-0b6f8d2c1a01"
	SampleAmmoBox DefinitionID = "6f1c2d7e-3a41-4c1e-9a55-0b6f8d2c1a02"
	SampleRifle   DefinitionID = "6f1c2d7e-3a41-4c1e-9a55-0b6f8d2c1a03"
	SampleCanteen DefinitionID = "6f1c2d7e-3a41-4c1e-9a55-0b6f8d2c1a04"
	SampleRadio   DefinitionID = "6f1c2d7e-3a41-4c1e-9a55-0b6f8d2c1a05"
	SampleToolkit DefinitionID = "6f1c2d7e-3a41-4c1e-9a55-0b6f8d2c1a06"
	SampleRation  DefinitionID = "6f1c2d7e-3a41-4c1e-9a55-0b6f8d2c1a07"
)

// SampleCatalog returns a small item catalog for demos and tests.
func SampleCatalog() *ItemRegistry {
	return MustItemRegistry(
		ItemDefinition{ID: SampleMedkit, Name: "Field Medkit", Type: "medical", Width: 2, Height: 2},
		ItemDefinition{ID: SampleAmmoBox, Name: "Ammo Box", Type: "ammo", Width: 2, Height: 1},
		ItemDefinition{ID: SampleRifle, Name: "Bolt Rifle", Type: "weapon", Width: 4, Height: 1},
		ItemDefinition{ID: SampleCanteen, Name: "Canteen", Type: "consumable", Width: 1, Height: 2},
		ItemDefinition{ID: SampleRadio, Name: "Handheld Radio", Type: "tool", Width: 1, Height: 1},
		ItemDefinition{ID: SampleToolkit, Name: "Toolkit", Type: "tool", Width: 3, Height: 2},
		ItemDefinition{ID: SampleRation, Name: "Field Ration", Type: "consumable", Width: 1, Height: 1},
	)
}

// SampleRegistry returns a player's containers populated from SampleCatalog:
// a backpack, two pockets and a vest.
func SampleRegistry(owner OwnerID) (*ContainerRegistry, *ItemRegistry) {
	cat := SampleCatalog()
	reg := NewContainerRegistry(owner)

	backpack, _ := reg.Add("backpack", 6, 4, WithPurpose("backpack"))
	pocketL, _ := reg.Add("pocket_left", 2, 2, WithPurpose("pockets"))
	_, _ = reg.Add("pocket_right", 2, 2, WithPurpose("pockets"))
	vest, _ := reg.Add("vest", 4, 2, WithPurpose("clothing"))

	place := func(c *Container, id DefinitionID, p Point, r Rotation) {
		inst, err := cat.NewInstance(id)
		if err != nil {
			return
		}
		_, _ = c.PlaceAt(inst, p, r)
	}

	// Rifle along the top row of the backpack
	place(backpack, SampleRifle, Point{X: 0, Y: 0}, Rotation0)
	// Toolkit under it
	place(backpack, SampleToolkit, Point{X: 0, Y: 1}, Rotation0)
	// Canteen laid flat
	place(backpack, SampleCanteen, Point{X: 4, Y: 0}, Rotation90)
	place(pocketL, SampleRadio, Point{X: 0, Y: 0}, Rotation0)
	place(vest, SampleAmmoBox, Point{X: 0, Y: 0}, Rotation0)
	place(vest, SampleAmmoBox, Point{X: 2, Y: 0}, Rotation0)

	// Medkit auto-placed, lands in the backpack's first free 2x2
	if inst, err := cat.NewInstance(SampleMedkit); err == nil {
		if it, err := backpack.TryAutoPlace(inst); err == nil {
			it.Instance().Set("charges", float64(3))
		}
	}
	return reg, cat
}
