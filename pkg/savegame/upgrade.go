package savegame

import "github.com/freeeve/freecol/server/pkg/world"

// A fixup brings a document written before Version up to that version.
type fixup struct {
	Version int
	Name    string
	Apply   func(*Document)
}

// fixups run in ascending version order; later ones rely on the tree the
// earlier ones produce.
var fixups = []fixup{
	{Version: 10, Name: "high seas transit", Apply: migrateEuropeTransit},
	{Version: 11, Name: "synthesize options", Apply: synthesizeOptions},
	{Version: 12, Name: "server object roster", Apply: rederiveServerObjects},
}

// Upgrade applies every fixup newer than the document's version and marks
// the document current. A current document is left untouched.
func Upgrade(doc *Document) error {
	if doc.Version < MinimumVersion || doc.Version > CurrentVersion {
		return &VersionError{Version: doc.Version}
	}
	for _, f := range fixups {
		if doc.Version < f.Version {
			f.Apply(doc)
			doc.Version = f.Version
		}
	}
	return nil
}

// migrateEuropeTransit moves units that older saves parked in Europe with
// a sailing state onto the high seas.
func migrateEuropeTransit(doc *Document) {
	for i := range doc.Game.Units {
		u := &doc.Game.Units[i]
		var dest world.Destination
		switch u.State {
		case world.StateLegacyToAmerica:
			dest = world.DestMap
		case world.StateLegacyToEurope:
			dest = world.DestEurope
		default:
			continue
		}
		u.Location = world.Location{Kind: world.LocHighSeas}
		u.Destination = dest
		u.TurnsLeft = max(u.WorkLeft, 1)
		u.WorkLeft = 0
		u.State = world.StateInTransit
		u.MovesLeft = 0
	}
}

// optionsAddedIn11 were introduced with version 11 rule sets.
var optionsAddedIn11 = []string{world.OptionTurnsToSail, world.OptionLandPrice, world.OptionRecruitThreshold}

func synthesizeOptions(doc *Document) {
	if doc.Game.Options == nil {
		doc.Game.Options = make(map[string]int)
	}
	for _, key := range optionsAddedIn11 {
		if _, ok := doc.Game.Options[key]; ok {
			continue
		}
		if v, ok := world.DefaultOption(key); ok {
			doc.Game.Options[key] = v
		}
	}
}

// rederiveServerObjects rebuilds the roster from the parsed world.
func rederiveServerObjects(doc *Document) {
	roster := world.ClassifyServerObjects(&doc.Game)
	doc.ServerObjects = doc.ServerObjects[:0]
	for _, id := range world.SortedIDs(roster) {
		doc.ServerObjects = append(doc.ServerObjects, ServerObject{ID: id, Type: roster[id]})
	}
}
