// Package harness replays YAML scenarios through a fresh store and checks the
// resulting observation log and version histories.
//
// # Scenario Format
//
//	name: run_length
//	description: "A A B B A yields three versions"
//	maintain_versions: true   # optional, default true
//	steps:
//	  - append:
//	      - { type: player, entity: p1, at: 0s, data: { name: a } }
//	      - { type: player, entity: p1, at: 1s, data: { name: a } }
//	  - rebuild: player
//	assertions:
//	  - type: versions
//	    entity_type: player
//	    entity: p1
//	    count: 3
//
// Entity and source labels map to deterministic UUIDs in order of first
// appearance. An update without an entity label resolves its id the way the
// store does (payload "id", then "_id", else none). Offsets in "at" are Go
// durations from testutil.DefaultStart.
//
// # Assertion Types
//
//   - versions: the entity has exactly count versions
//   - version_at: the version valid at "at" is number version (0 for none)
//   - current: the open version's payload equals data
//   - observations: the log holds exactly count rows
//   - objects: the object table holds exactly count payloads
//   - consistent: every stored history equals a fresh derivation from the log
//
// # Golden Snapshots
//
// RunWithGolden writes each history as JSON with hashes replaced by labels
// h1, h2, ... in order of first appearance, and timestamps as offsets, so
// snapshots stay stable across runs. Regenerate with:
//
//	go test ./internal/harness -update
package harness
