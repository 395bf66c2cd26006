// Package demo holds the sample entities spec.md §8 exercises end to end
// (S1, S2, S7): a flat record with a composite locator, a one-to-one link
// target, and a record carrying both a child-table list and a child-table
// map. These are demonstration collaborators, not part of the ORM core
// itself (spec.md §1: "the demo entities ... are external collaborators").
package demo

// PlayerHome is spec.md S1/S2's flat entity: a per-player, per-server home
// location. Username is the primary key; ServerName is a secondary key, so
// one player may have one home per server.
type PlayerHome struct {
	Username   string `ptc:"id"`
	ServerName string `ptc:"key"`
	World      string
	X          float64
	Y          float64
	Z          float64
	Active     bool
}

// Guild is the link target for PlayerProfile.Guild: spec.md's "sequence
// of link fields" chain needs at least one linkable entity with its own
// link-free column set.
type Guild struct {
	ID   int64
	Name string
	Tag  string `ptc:"length=8"`
}

// PlayerProfile is spec.md S7's accessor-persistence entity: Properties is
// a Map field reachable through a live MapAccessor, Tags is a plain List
// field reachable through a live ListAccessor, and Guild is a one-to-one
// link cascaded on save and LEFT JOIN-hydrated on read.
type PlayerProfile struct {
	Username   string `ptc:"id"`
	Guild      *Guild `ptc:"link"`
	Tags       []string
	Properties map[string]string
}
