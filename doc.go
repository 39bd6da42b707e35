// Package loreweave is a lore activation engine for LLM prompts: it scans
// conversation text against world-info books and decides which lore entries
// are injected, where, and in what order.
//
// Books are heterogeneous JSON (CCv2 character books, CCv3 lorebooks,
// SillyTavern world-info exports); the lore package normalizes them into one
// entry model, including inline @@decorator parsing and regex-aware key
// lists. The engine package runs the multi-pass activation loop: keyword and
// regex matching, constant and forced activations, recursive scanning with a
// bounded buffer, token-budget acceptance, probability rolls, inclusion
// groups, and sticky/cooldown/delay timed effects persisted through the vars
// package.
//
// Key Components:
//
//   - lore: data model and parsers. Book and Entry normalization, key-list
//     splitting with regex literals, decorator blocks, concurrent Library
//     loading.
//
//   - engine: the evaluator. Engine.Evaluate takes a Request (books, scan
//     text, budget, timed-effect clock) and returns a Result of selected and
//     dropped candidates with per-position ordering and outlet assembly.
//
//   - tokens: token estimation used for budget accounting.
//
//   - vars: variable stores (in-memory and SQLite) holding timed-effect
//     state across evaluations.
//
//   - config: YAML configuration for engine defaults and logging.
//
//   - errors, logging: structured errors with codes and fields, leveled
//     logging shared by every package.
//
// Example usage:
//
//	lib := lore.NewLibrary()
//	if err := lib.LoadFiles(lore.SourceGlobal, "world.json"); err != nil {
//		log.Fatal(err)
//	}
//	eng := engine.New(engine.WithDefaults(engine.Defaults{ScanDepth: 2}))
//	res, err := eng.Evaluate(engine.Request{
//		Books:    lib.Books(),
//		ScanText: "A dragon circles the tower.",
//	})
//	if err != nil {
//		log.Fatal(err)
//	}
//	grouped, _ := res.SelectedByPosition(engine.StrategySortedEvenly)
//	for pos, group := range grouped {
//		fmt.Println(pos, len(group))
//	}
package loreweave
