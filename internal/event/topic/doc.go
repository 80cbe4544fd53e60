// Package topic resolves the name arguments accepted by the event bus.
//
// Everywhere a bus accepts an event name it also accepts several names
// separated by whitespace, and the map variants accept a name-to-handler
// map. Resolution turns both shapes into a flat list of single names so
// registration, removal and triggering only deal with one name at a time.
//
//	topic.Resolve("a b")              // ["a", "b"]
//	topic.Expand(map[string]H{"b": h2, "a c": h1})
//	// [{a h1} {c h1} {b h2}]
//
// The name "all" is the wildcard: listeners registered under it see every
// event triggered on the bus.
package topic
