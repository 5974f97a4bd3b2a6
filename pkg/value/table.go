package value

// Table is an open-addressed hash table with linear probing: capacities are
// always powers of two so `hash & (capacity-1)` replaces a modulo, the
// load-factor ceiling is 0.75, and a deleted entry becomes a tombstone
// (Key == nil, Value == True) rather than an empty slot (Key == nil,
// Value == Nil) so probe sequences started before the deletion don't
// terminate early.
//
// It backs globals, class method tables, instance field tables, and (used
// as a set, values always Nil) the VM's string intern table.
type Table struct {
	count   int // occupied slots, including tombstones
	entries []entry
}

type entry struct {
	Key   *ObjStringData
	Value Value
}

const tableMaxLoad = 0.75

// NewTable returns an empty Table. It lazily allocates its backing array on
// first insert.
func NewTable() *Table { return &Table{} }

// Get looks up key, returning (value, true) if present.
func (t *Table) Get(key *ObjStringData) (Value, bool) {
	if t.count == 0 {
		return Nil, false
	}
	e := t.find(key)
	if e.Key == nil {
		return Nil, false
	}
	return e.Value, true
}

// Set inserts or overwrites key -> val, returning true if this added a new
// key (as opposed to overwriting an existing one).
func (t *Table) Set(key *ObjStringData, val Value) bool {
	if float64(t.count+1) > float64(len(t.entries))*tableMaxLoad {
		t.grow(growCapacity(len(t.entries)))
	}
	e := t.find(key)
	isNewKey := e.Key == nil
	if isNewKey && e.Value.Kind == KindNil {
		// Only a genuinely empty slot grows count; reusing a tombstone does
		// not, since count already includes tombstones.
		t.count++
	}
	e.Key = key
	e.Value = val
	return isNewKey
}

// Delete removes key, leaving a tombstone behind so later probes for other
// keys that hashed into the same run still find them.
func (t *Table) Delete(key *ObjStringData) bool {
	if t.count == 0 {
		return false
	}
	e := t.find(key)
	if e.Key == nil {
		return false
	}
	e.Key = nil
	e.Value = True // tombstone marker
	return true
}

// Each calls fn once per live (non-tombstone) entry. Order is unspecified.
func (t *Table) Each(fn func(key *ObjStringData, val Value)) {
	for i := range t.entries {
		if t.entries[i].Key != nil {
			fn(t.entries[i].Key, t.entries[i].Value)
		}
	}
}

// Len reports the number of live keys (excludes tombstones from the probe
// count but not from the internal slot count).
func (t *Table) Len() int {
	n := 0
	for i := range t.entries {
		if t.entries[i].Key != nil {
			n++
		}
	}
	return n
}

// AddAll copies every live entry of src into t, used by OP_INHERIT to copy
// a superclass's method table into a subclass.
func (t *Table) AddAll(src *Table) {
	src.Each(func(k *ObjStringData, v Value) {
		t.Set(k, v)
	})
}

// FindString looks up an interned string by content without already having
// an *ObjStringData to compare pointers against — the one primitive the
// string-interning allocator needs that a generic Get can't provide, since
// interning exists precisely to answer "do I already have one of these".
func (t *Table) FindString(chars string, hash uint32) *ObjStringData {
	if t.count == 0 || len(t.entries) == 0 {
		return nil
	}
	capMask := uint32(len(t.entries) - 1)
	index := hash & capMask
	for {
		e := &t.entries[index]
		if e.Key == nil {
			if e.Value.Kind == KindNil {
				return nil // empty slot: not found
			}
			// tombstone: keep probing
		} else if e.Key.Hash == hash && e.Key.Chars == chars {
			return e.Key
		}
		index = (index + 1) & capMask
	}
}

// RemoveWhite deletes every entry whose key's mark bit is false. This
// implements the intern table's weak-reference semantics: called after
// marking and before sweeping, so strings the mark phase didn't reach are
// dropped from the table before they're freed, rather than being kept alive
// by the table itself.
func (t *Table) RemoveWhite() {
	for i := range t.entries {
		e := &t.entries[i]
		if e.Key != nil && !IsMarked(e.Key) {
			e.Key = nil
			e.Value = True
		}
	}
}

func (t *Table) find(key *ObjStringData) *entry {
	if len(t.entries) == 0 {
		t.grow(8)
	}
	capMask := uint32(len(t.entries) - 1)
	index := key.Hash & capMask
	var tombstone *entry
	for {
		e := &t.entries[index]
		if e.Key == nil {
			if e.Value.Kind == KindNil {
				if tombstone != nil {
					return tombstone
				}
				return e
			}
			if tombstone == nil {
				tombstone = e
			}
		} else if e.Key == key {
			return e
		}
		index = (index + 1) & capMask
	}
}

func growCapacity(cap int) int {
	if cap < 8 {
		return 8
	}
	return cap * 2
}

func (t *Table) grow(newCap int) {
	newEntries := make([]entry, newCap)
	oldEntries := t.entries
	t.entries = newEntries
	t.count = 0
	for i := range oldEntries {
		e := &oldEntries[i]
		if e.Key == nil {
			continue
		}
		dst := t.find(e.Key)
		dst.Key = e.Key
		dst.Value = e.Value
		t.count++
	}
}
