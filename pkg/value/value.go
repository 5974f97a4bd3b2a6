package value

import (
	"fmt"
	"strconv"
)

// Kind discriminates the tagged union below. A NaN-boxed 64-bit word would
// pack tighter, but a plain tagged struct needs no unsafe pointer tricks to
// stay GC-visible to Go's own runtime, which still owns the memory ember's
// own collector is bookkeeping on top of.
type Kind byte

const (
	KindNil Kind = iota
	KindBool
	KindNumber
	KindObject
)

// Value is a dynamically-typed ember runtime value: nil, a boolean, an
// IEEE-754 double, or a pointer to a heap Object.
type Value struct {
	Kind Kind
	Bool bool
	Num  float64
	Obj  Object
}

// Nil, True, and False are the three singleton non-number, non-object
// values; they're cheap to construct directly but these read better at call
// sites than repeating struct literals.
var (
	Nil   = Value{Kind: KindNil}
	True  = Value{Kind: KindBool, Bool: true}
	False = Value{Kind: KindBool, Bool: false}
)

// BoolValue wraps a boolean as a Value.
func BoolValue(b bool) Value {
	if b {
		return True
	}
	return False
}

// Number wraps a float64 as a Value.
func Number(n float64) Value { return Value{Kind: KindNumber, Num: n} }

// FromObject wraps a heap Object as a Value.
func FromObject(o Object) Value { return Value{Kind: KindObject, Obj: o} }

// IsNil, IsBool, IsNumber, and IsObject report a Value's Kind.
func (v Value) IsNil() bool    { return v.Kind == KindNil }
func (v Value) IsBool() bool   { return v.Kind == KindBool }
func (v Value) IsNumber() bool { return v.Kind == KindNumber }
func (v Value) IsObject() bool { return v.Kind == KindObject }

// IsObjKind reports whether v is a heap object of the given kind.
func (v Value) IsObjKind(k ObjKind) bool {
	return v.Kind == KindObject && v.Obj != nil && v.Obj.Kind() == k
}

// AsString returns v's underlying string object, or (nil, false) if v isn't
// a string.
func (v Value) AsString() (*ObjStringData, bool) {
	if s, ok := v.Obj.(*ObjStringData); ok && v.Kind == KindObject {
		return s, true
	}
	return nil, false
}

// AsClosure returns v's underlying closure object, if any.
func (v Value) AsClosure() (*ObjClosureData, bool) {
	if c, ok := v.Obj.(*ObjClosureData); ok && v.Kind == KindObject {
		return c, true
	}
	return nil, false
}

// AsClass returns v's underlying class object, if any.
func (v Value) AsClass() (*ObjClassData, bool) {
	if c, ok := v.Obj.(*ObjClassData); ok && v.Kind == KindObject {
		return c, true
	}
	return nil, false
}

// AsInstance returns v's underlying instance object, if any.
func (v Value) AsInstance() (*ObjInstanceData, bool) {
	if i, ok := v.Obj.(*ObjInstanceData); ok && v.Kind == KindObject {
		return i, true
	}
	return nil, false
}

// AsBoundMethod returns v's underlying bound-method object, if any.
func (v Value) AsBoundMethod() (*ObjBoundMethodData, bool) {
	if b, ok := v.Obj.(*ObjBoundMethodData); ok && v.Kind == KindObject {
		return b, true
	}
	return nil, false
}

// AsNative returns v's underlying native-function object, if any.
func (v Value) AsNative() (*ObjNativeData, bool) {
	if n, ok := v.Obj.(*ObjNativeData); ok && v.Kind == KindObject {
		return n, true
	}
	return nil, false
}

// AsFunction returns v's underlying function object, if any.
func (v Value) AsFunction() (*ObjFunctionData, bool) {
	if f, ok := v.Obj.(*ObjFunctionData); ok && v.Kind == KindObject {
		return f, true
	}
	return nil, false
}

// IsFalsey implements ember's extended falsiness rule, which diverges from
// classic Lox: nil, false, and the number 0 are falsey; everything else —
// including empty strings and zero-field instances — is truthy.
func IsFalsey(v Value) bool {
	switch v.Kind {
	case KindNil:
		return true
	case KindBool:
		return !v.Bool
	case KindNumber:
		return v.Num == 0
	default:
		return false
	}
}

// Equal compares two values: numbers compare by value, booleans and nil
// trivially, and objects by pointer identity — which for strings is sound
// only because every string is interned.
func Equal(a, b Value) bool {
	if a.Kind != b.Kind {
		return false
	}
	switch a.Kind {
	case KindNil:
		return true
	case KindBool:
		return a.Bool == b.Bool
	case KindNumber:
		return a.Num == b.Num
	case KindObject:
		return a.Obj == b.Obj
	default:
		return false
	}
}

// TypeofCategory classifies v into one of the category names the `typeof`
// operator can report. The VM maps the result onto its own pre-interned
// category strings (see vm.typeofStrings) rather than interning here, since
// package value sits below the intern table's owner and has no VM to
// register the result with.
func TypeofCategory(v Value) string {
	switch v.Kind {
	case KindBool:
		return "boolean"
	case KindNil:
		return "nil"
	case KindNumber:
		return "number"
	case KindObject:
		switch v.Obj.Kind() {
		case ObjString:
			return "string"
		case ObjClass:
			return "class"
		case ObjInstance:
			return "object"
		case ObjClosure, ObjFunction, ObjNative, ObjBoundMethod:
			return "function"
		}
	}
	return "object"
}

// String renders v the way `print` writes it to stdout.
func (v Value) String() string {
	switch v.Kind {
	case KindNil:
		return "nil"
	case KindBool:
		if v.Bool {
			return "true"
		}
		return "false"
	case KindNumber:
		return formatNumber(v.Num)
	case KindObject:
		return objectString(v.Obj)
	default:
		return "<invalid value>"
	}
}

func formatNumber(n float64) string {
	if n == float64(int64(n)) && !isNegZero(n) {
		return strconv.FormatInt(int64(n), 10)
	}
	return strconv.FormatFloat(n, 'g', -1, 64)
}

func isNegZero(n float64) bool {
	return n == 0 && 1/n < 0
}

func objectString(o Object) string {
	switch obj := o.(type) {
	case *ObjStringData:
		return obj.Chars
	case *ObjFunctionData:
		if obj.Name == nil {
			return "<script>"
		}
		return fmt.Sprintf("<fn %s>", obj.Name.Chars)
	case *ObjNativeData:
		return fmt.Sprintf("<native fn %s>", obj.Name)
	case *ObjClosureData:
		if obj.Function.Name == nil {
			return "<script>"
		}
		return fmt.Sprintf("<fn %s>", obj.Function.Name.Chars)
	case *ObjUpvalueData:
		return "<upvalue>"
	case *ObjClassData:
		return obj.Name.Chars
	case *ObjInstanceData:
		return fmt.Sprintf("%s instance", obj.Class.Name.Chars)
	case *ObjBoundMethodData:
		if obj.Method.Function.Name == nil {
			return "<script>"
		}
		return fmt.Sprintf("<fn %s>", obj.Method.Function.Name.Chars)
	default:
		return "<object>"
	}
}
