package engine

// Entry is the session record of one persistent instance: its identifier,
// the state it was loaded or last written with, and which lazy fetch groups
// are initialized. Entries belong to one session.
type Entry struct {
	Entity  string
	ID      any
	Version any
	// Loaded is the snapshot in canonical form. A nil snapshot marks a
	// detached instance whose database state is unknown.
	Loaded  []any
	Removed bool
	groups  []bool
}

func newEntry(c *Closure, id, version any, state []any, initialized bool) *Entry {
	e := &Entry{Entity: c.Name(), ID: id, Version: version, groups: make([]bool, len(c.Groups))}
	if state != nil {
		e.Loaded = append([]any(nil), state...)
	}
	for g := range e.groups {
		e.groups[g] = initialized
	}
	return e
}

// GroupInitialized reports whether the named fetch group is loaded.
func (e *Entry) GroupInitialized(group int) bool {
	return group >= 0 && group < len(e.groups) && e.groups[group]
}

// Snapshot returns a copy of the loaded state.
func (e *Entry) Snapshot() []any {
	if e.Loaded == nil {
		return nil
	}
	return append([]any(nil), e.Loaded...)
}
