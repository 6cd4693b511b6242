package ecs

import "sort"

// Flags holds object and component state bits.
type Flags uint32

const (
	FlagDynamic Flags = 1 << iota
	FlagForceDynamic
	FlagActiveFlag
	FlagActiveState
	FlagInitialized
	FlagInitializing
	FlagSimulationStarted
	FlagChildChangesNotifications
	FlagParentChangesNotifications
	FlagCreatedByPrefab
	flagDead
)

// User flags occupy bits 24-31 of component flags.
const (
	userFlagShift       = 24
	userFlagMask  Flags = 0xFF << userFlagShift
)

func (f Flags) Has(bit Flags) bool { return f&bit != 0 }

func (f *Flags) Set(bit Flags, on bool) {
	if on {
		*f |= bit
	} else {
		*f &^= bit
	}
}

// TagSet is a sorted set of tag names.
type TagSet struct {
	tags []string
}

// NewTagSet builds a set from names, dropping duplicates.
func NewTagSet(names ...string) TagSet {
	var t TagSet
	for _, n := range names {
		t.Set(n)
	}
	return t
}

func (t *TagSet) Set(tag string) {
	i := sort.SearchStrings(t.tags, tag)
	if i < len(t.tags) && t.tags[i] == tag {
		return
	}
	t.tags = append(t.tags, "")
	copy(t.tags[i+1:], t.tags[i:])
	t.tags[i] = tag
}

func (t *TagSet) Remove(tag string) {
	i := sort.SearchStrings(t.tags, tag)
	if i < len(t.tags) && t.tags[i] == tag {
		t.tags = append(t.tags[:i], t.tags[i+1:]...)
	}
}

func (t TagSet) IsSet(tag string) bool {
	i := sort.SearchStrings(t.tags, tag)
	return i < len(t.tags) && t.tags[i] == tag
}

// IsAnySet reports whether t and o share a tag.
func (t TagSet) IsAnySet(o TagSet) bool {
	for _, tag := range o.tags {
		if t.IsSet(tag) {
			return true
		}
	}
	return false
}

func (t TagSet) Len() int { return len(t.tags) }

// Values returns the tags in sorted order. The slice must not be modified.
func (t TagSet) Values() []string { return t.tags }

func (t TagSet) Clone() TagSet {
	return TagSet{tags: append([]string(nil), t.tags...)}
}
