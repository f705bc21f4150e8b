// Package record describes how records are encoded to lines, decoded from
// lines and ordered. The sort pipeline is generic over the record type and
// only ever touches records through a Format.
package record

import (
	"cmp"
	"fmt"
	"strings"
)

// EncodeFunc renders a record as a single line without the trailing newline.
type EncodeFunc[T any] func(T) string

// DecodeFunc parses a single line (without newline) into a record.
type DecodeFunc[T any] func(string) (T, error)

// CompareFunc orders records: negative if a sorts before b, zero if their
// keys are equal, positive otherwise.
type CompareFunc[T any] func(a, b T) int

// Format bundles the line codec and ordering for one record type.
type Format[T any] struct {
	Encode  EncodeFunc[T]
	Decode  DecodeFunc[T]
	Compare CompareFunc[T]
}

// Validate reports a missing function.
func (f Format[T]) Validate() error {
	switch {
	case f.Encode == nil:
		return fmt.Errorf("record format has no encoder")
	case f.Decode == nil:
		return fmt.Errorf("record format has no decoder")
	case f.Compare == nil:
		return fmt.Errorf("record format has no comparator")
	}
	return nil
}

// ByKey orders records ascending by the key extracted with key.
func ByKey[T any, K cmp.Ordered](key func(T) K) CompareFunc[T] {
	return func(a, b T) int {
		return cmp.Compare(key(a), key(b))
	}
}

// Lines is the identity format over raw text lines, ordered bytewise.
// It is used for raw chunking where records are copied without decoding.
func Lines() Format[string] {
	return Format[string]{
		Encode:  func(s string) string { return s },
		Decode:  func(s string) (string, error) { return s, nil },
		Compare: strings.Compare,
	}
}
