// Package engine implements the per-entity persisters.
//
// A Factory resolves every mapped entity into a Closure at boot (its tables,
// properties, fetch groups and inheritance strategy) and generates the
// statements that do not depend on runtime state. Persisters are immutable
// afterwards and shared by all sessions.
//
// # Writing
//
// Writes go through an Executor bound to one dialect.Session:
//
//	f, err := engine.NewFactory(cfg, entities)
//	if err != nil {
//	    return err
//	}
//	users, _ := f.Persister("User")
//	x := engine.NewExecutor(sess, cfg)
//	entry, err := users.Insert(ctx, x, &User{Email: "a@example.com"})
//	...
//	u.Email = "b@example.com"
//	err = users.Update(ctx, x, entry, u) // writes only the dirty columns that changed
//	err = x.Flush(ctx)
//
// Row counts are checked against an Expectation: a non-optional table that
// matched no row raises persist.StaleStateError. Optional secondary tables
// follow a small state machine and an UPDATE that finds no row falls back
// to an INSERT.
//
// # Reading
//
// Load, LoadMany and Page consult the second-level cache first when the
// entity is cacheable, and polymorphic roots read the concrete subtype in
// the same statement. Lazy properties stay Unfetched until their fetch
// group is initialized with InitializeLazy.
package engine
