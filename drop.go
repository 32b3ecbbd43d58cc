package rawpar

import "unsafe"

// Dropper is implemented by elements that own resources which must be
// released when the element is destroyed without being handed to a consumer.
//
// Drop is called at most once per stored element: either the element is moved
// out of its slot (Bucket.Read) and becomes the reader's responsibility, or it
// is destroyed in place (Bucket.Drop, RawTable.Clear, an abandoned producer).
type Dropper interface {
	Drop()
}

// needsDrop reports whether destroying a T in place has any observable
// effect: T implements Dropper, or T holds pointers that should be released
// to the garbage collector.
func needsDrop[T any]() bool {
	if _, ok := any((*T)(nil)).(Dropper); ok {
		return true
	}
	if _, ok := any(*new(T)).(Dropper); ok {
		return true
	}
	// [1]T keeps interface-typed T from collapsing to its dynamic type.
	return iTypeOf([1]T{}).PtrBytes != 0
}

// dropInPlace destroys the element at p and zeroes the slot.
func dropInPlace[T any](p *T) {
	if d, ok := any(p).(Dropper); ok {
		d.Drop()
	} else if d, ok := any(*p).(Dropper); ok {
		d.Drop()
	}
	*p = *new(T)
}

type iTFlag uint8
type iKind uint8
type iNameOff int32
type iTypeOff int32

// iType mirrors the leading fields of the runtime's type descriptor.
// It should be verified for compatibility with each Go version upgrade.
type iType struct {
	Size_       uintptr
	PtrBytes    uintptr // number of (prefix) bytes in the type that can contain pointers
	Hash        uint32
	TFlag       iTFlag
	Align_      uint8
	FieldAlign_ uint8
	Kind_       iKind
	Equal       func(unsafe.Pointer, unsafe.Pointer) bool
	GCData      *byte
	Str         iNameOff
	PtrToThis   iTypeOff
}

type iEmptyInterface struct {
	Type *iType
	Data unsafe.Pointer
}

func iTypeOf(a any) *iType {
	eface := *(*iEmptyInterface)(unsafe.Pointer(&a))
	return eface.Type
}
