package frame

import (
	"strconv"

	"github.com/getsentry/speedscope/internal/weight"
)

const rootName = "(speedscope root)"

// RootID identifies the synthetic root frame. It never indexes a registry.
const RootID ID = -1

type (
	// ID is the index of a frame in its registry.
	ID int32

	// Key identifies a call stack location. It holds either a string or an
	// integer; StringKey("1") and IntKey(1) are different keys.
	Key struct {
		str     string
		num     int64
		numeric bool
	}

	// Info describes a frame. Line and Col are 1-based, 0 means unknown.
	Info struct {
		Key  Key
		Name string
		File string
		Line uint32
		Col  uint32
	}

	// Frame is the canonical record for a key. Its ledger aggregates weight
	// from every call tree node sharing the key.
	Frame struct {
		Info
		weight.Ledger

		id ID
	}
)

// Root is shared by every call tree as the frame of its root node.
var Root = &Frame{
	Info: Info{Key: StringKey(rootName), Name: rootName},
	id:   RootID,
}

func StringKey(s string) Key {
	return Key{str: s}
}

func IntKey(i int) Key {
	return Key{num: int64(i), numeric: true}
}

func (k Key) IsNumeric() bool {
	return k.numeric
}

func (k Key) String() string {
	if k.numeric {
		return strconv.FormatInt(k.num, 10)
	}
	return k.str
}

func (f *Frame) ID() ID {
	return f.id
}

func (f *Frame) IsRoot() bool {
	return f.id == RootID
}

// Equal lets go-cmp compare keys despite their unexported fields.
func (k Key) Equal(o Key) bool {
	return k == o
}
