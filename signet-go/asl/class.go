package asl

import (
	"strings"

	"github.com/signetml/signet/signet-golib/errors"
)

// NumClasses is the size of the hand-sign vocabulary: the digits 0-9 and the
// letters a-z.
const NumClasses = 36

// Class identifies one of the 36 hand-sign classes. The integer value of a
// Class is its position in the lexicographic ordering of class names, so
// digits sort before letters. This matches the label indices produced by
// loading a dataset directory with sorted class subdirectories.
type Class int

var names = []string{
	"0", "1", "2", "3", "4", "5", "6", "7", "8", "9",
	"a", "b", "c", "d", "e", "f", "g", "h", "i", "j",
	"k", "l", "m", "n", "o", "p", "q", "r", "s", "t",
	"u", "v", "w", "x", "y", "z",
}

var byName = func() map[string]Class {
	m := make(map[string]Class, len(names))
	for i, n := range names {
		m[n] = Class(i)
	}
	return m
}()

// Names returns the class names in index order
func Names() []string {
	return append([]string(nil), names...)
}

// Valid reports whether c is within the vocabulary
func (c Class) Valid() bool {
	return c >= 0 && int(c) < len(names)
}

// Name returns the canonical (lower-case) name of the class
func (c Class) Name() string {
	if !c.Valid() {
		return "invalid"
	}
	return names[c]
}

func (c Class) String() string {
	return c.Name()
}

// FromName resolves a class from its name, e.g. a dataset subdirectory name.
// Matching is case-insensitive.
func FromName(name string) (Class, error) {
	c, ok := byName[strings.ToLower(strings.TrimSpace(name))]
	if !ok {
		return 0, errors.Errorf("unknown class name %q", name)
	}
	return c, nil
}
