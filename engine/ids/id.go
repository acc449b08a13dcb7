// Package ids provides strongly-typed fixed-width handles.
//
// Each layout packs an index (and, for most layouts, a generation) into a
// 32- or 64-bit word. The type parameter T is a tag that keeps handles of
// different resources apart at compile time:
//
//	type textureTag struct{}
//	type TextureID = ids.ID24x8[textureTag]
//
// Handles compare by their raw bit pattern. Conversions between layouts of
// the same width keep index and generation and fail with ErrFieldOverflow
// when a field does not fit the target.
package ids

import (
	"cmp"
	"errors"
	"fmt"
	"math"
)

var ErrFieldOverflow = errors.New("ids: field does not fit target layout")

const (
	MaxIndex24 = 1<<24 - 1
	MaxIndex16 = 1<<16 - 1
	MaxGen8    = 1<<8 - 1
	MaxGen16   = 1<<16 - 1
)

// ID32 is a plain 32-bit index.
type ID32[T any] struct{ bits uint32 }

func NewID32[T any](index uint32) ID32[T] { return ID32[T]{bits: index} }
func InvalidID32[T any]() ID32[T]         { return ID32[T]{bits: math.MaxUint32} }
func (id ID32[T]) Raw() uint32            { return id.bits }
func (id ID32[T]) Index() uint32          { return id.bits }
func (id ID32[T]) IsValid() bool          { return id.bits != math.MaxUint32 }
func (id ID32[T]) Equal(o ID32[T]) bool   { return id.bits == o.bits }
func (id ID32[T]) Compare(o ID32[T]) int  { return cmp.Compare(id.bits, o.bits) }
func (id ID32[T]) String() string         { return fmt.Sprintf("%d", id.bits) }

// ID24x8 packs a 24-bit index in the low bits and an 8-bit generation above it.
type ID24x8[T any] struct{ bits uint32 }

func NewID24x8[T any](index uint32, gen uint8) (ID24x8[T], error) {
	if index > MaxIndex24 {
		return InvalidID24x8[T](), fmt.Errorf("%w: index %d exceeds 24 bits", ErrFieldOverflow, index)
	}
	return ID24x8[T]{bits: uint32(gen)<<24 | index}, nil
}

func InvalidID24x8[T any]() ID24x8[T]           { return ID24x8[T]{bits: math.MaxUint32} }
func ID24x8FromRaw[T any](raw uint32) ID24x8[T] { return ID24x8[T]{bits: raw} }
func (id ID24x8[T]) Raw() uint32                { return id.bits }
func (id ID24x8[T]) Index() uint32              { return id.bits & MaxIndex24 }
func (id ID24x8[T]) Generation() uint8          { return uint8(id.bits >> 24) }
func (id ID24x8[T]) IsValid() bool              { return id.bits != math.MaxUint32 }
func (id ID24x8[T]) Equal(o ID24x8[T]) bool     { return id.bits == o.bits }
func (id ID24x8[T]) Compare(o ID24x8[T]) int    { return cmp.Compare(id.bits, o.bits) }
func (id ID24x8[T]) String() string {
	return fmt.Sprintf("%d@%d", id.Index(), id.Generation())
}

// ID16x16 packs a 16-bit index in the low bits and a 16-bit generation above it.
type ID16x16[T any] struct{ bits uint32 }

func NewID16x16[T any](index uint16, gen uint16) ID16x16[T] {
	return ID16x16[T]{bits: uint32(gen)<<16 | uint32(index)}
}

func InvalidID16x16[T any]() ID16x16[T]        { return ID16x16[T]{bits: math.MaxUint32} }
func (id ID16x16[T]) Raw() uint32              { return id.bits }
func (id ID16x16[T]) Index() uint16            { return uint16(id.bits) }
func (id ID16x16[T]) Generation() uint16       { return uint16(id.bits >> 16) }
func (id ID16x16[T]) IsValid() bool            { return id.bits != math.MaxUint32 }
func (id ID16x16[T]) Equal(o ID16x16[T]) bool  { return id.bits == o.bits }
func (id ID16x16[T]) Compare(o ID16x16[T]) int { return cmp.Compare(id.bits, o.bits) }
func (id ID16x16[T]) String() string {
	return fmt.Sprintf("%d@%d", id.Index(), id.Generation())
}

// ID32x32 packs a 32-bit index in the low word and a 32-bit generation above it.
type ID32x32[T any] struct{ bits uint64 }

func NewID32x32[T any](index, gen uint32) ID32x32[T] {
	return ID32x32[T]{bits: uint64(gen)<<32 | uint64(index)}
}

func InvalidID32x32[T any]() ID32x32[T]        { return ID32x32[T]{bits: math.MaxUint64} }
func (id ID32x32[T]) Raw() uint64              { return id.bits }
func (id ID32x32[T]) Index() uint32            { return uint32(id.bits) }
func (id ID32x32[T]) Generation() uint32       { return uint32(id.bits >> 32) }
func (id ID32x32[T]) IsValid() bool            { return id.bits != math.MaxUint64 }
func (id ID32x32[T]) Equal(o ID32x32[T]) bool  { return id.bits == o.bits }
func (id ID32x32[T]) Compare(o ID32x32[T]) int { return cmp.Compare(id.bits, o.bits) }
func (id ID32x32[T]) String() string {
	return fmt.Sprintf("%d@%d", id.Index(), id.Generation())
}

// ID32x24x8 packs a 32-bit owner value in the high word, then a 24-bit index
// and an 8-bit generation in the low word.
type ID32x24x8[T any] struct{ bits uint64 }

func NewID32x24x8[T any](owner, index uint32, gen uint8) (ID32x24x8[T], error) {
	if index > MaxIndex24 {
		return InvalidID32x24x8[T](), fmt.Errorf("%w: index %d exceeds 24 bits", ErrFieldOverflow, index)
	}
	return ID32x24x8[T]{bits: uint64(owner)<<32 | uint64(gen)<<24 | uint64(index)}, nil
}

func InvalidID32x24x8[T any]() ID32x24x8[T]        { return ID32x24x8[T]{bits: math.MaxUint64} }
func (id ID32x24x8[T]) Raw() uint64                { return id.bits }
func (id ID32x24x8[T]) Owner() uint32              { return uint32(id.bits >> 32) }
func (id ID32x24x8[T]) Index() uint32              { return uint32(id.bits) & MaxIndex24 }
func (id ID32x24x8[T]) Generation() uint8          { return uint8(id.bits >> 24) }
func (id ID32x24x8[T]) IsValid() bool              { return id.bits != math.MaxUint64 }
func (id ID32x24x8[T]) Equal(o ID32x24x8[T]) bool  { return id.bits == o.bits }
func (id ID32x24x8[T]) Compare(o ID32x24x8[T]) int { return cmp.Compare(id.bits, o.bits) }
func (id ID32x24x8[T]) String() string {
	return fmt.Sprintf("%d:%d@%d", id.Owner(), id.Index(), id.Generation())
}

// To24x8 narrows a plain index into a generation-0 ID24x8.
func (id ID32[T]) To24x8() (ID24x8[T], error) {
	if !id.IsValid() {
		return InvalidID24x8[T](), nil
	}
	return NewID24x8[T](id.bits, 0)
}

// To16x16 keeps index and generation; both must fit 16 bits.
func (id ID24x8[T]) To16x16() (ID16x16[T], error) {
	if !id.IsValid() {
		return InvalidID16x16[T](), nil
	}
	if id.Index() > MaxIndex16 {
		return InvalidID16x16[T](), fmt.Errorf("%w: index %d exceeds 16 bits", ErrFieldOverflow, id.Index())
	}
	return NewID16x16[T](uint16(id.Index()), uint16(id.Generation())), nil
}

// To24x8 keeps index and generation; the generation must fit 8 bits.
func (id ID16x16[T]) To24x8() (ID24x8[T], error) {
	if !id.IsValid() {
		return InvalidID24x8[T](), nil
	}
	if id.Generation() > MaxGen8 {
		return InvalidID24x8[T](), fmt.Errorf("%w: generation %d exceeds 8 bits", ErrFieldOverflow, id.Generation())
	}
	return NewID24x8[T](uint32(id.Index()), uint8(id.Generation()))
}

// To32x24x8 keeps index and generation and stores owner in the high word.
func (id ID32x32[T]) To32x24x8(owner uint32) (ID32x24x8[T], error) {
	if !id.IsValid() {
		return InvalidID32x24x8[T](), nil
	}
	if id.Generation() > MaxGen8 {
		return InvalidID32x24x8[T](), fmt.Errorf("%w: generation %d exceeds 8 bits", ErrFieldOverflow, id.Generation())
	}
	return NewID32x24x8[T](owner, id.Index(), uint8(id.Generation()))
}

// To32x32 widens the index and generation fields; it never fails.
func (id ID32x24x8[T]) To32x32() ID32x32[T] {
	if !id.IsValid() {
		return InvalidID32x32[T]()
	}
	return NewID32x32[T](id.Index(), uint32(id.Generation()))
}
