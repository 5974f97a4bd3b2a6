// Package value implements ember's value representation, heap object model,
// bytecode chunk, and open-addressed hash table.
//
// Every data structure here is documented explicitly rather than left to
// infer from usage. A tagged Value and a real object graph are needed
// because string interning, closures capturing upvalues, and classes all
// require pointer identity and a GC that can trace references — properties
// a bare interface{} representation can't give you.
package value

// ObjKind tags the concrete type of an Object: the object-kind field of the
// common object header.
type ObjKind byte

const (
	ObjString ObjKind = iota
	ObjFunction
	ObjNative
	ObjClosure
	ObjUpvalue
	ObjClass
	ObjInstance
	ObjBoundMethod
)

func (k ObjKind) String() string {
	switch k {
	case ObjString:
		return "string"
	case ObjFunction:
		return "function"
	case ObjNative:
		return "native"
	case ObjClosure:
		return "closure"
	case ObjUpvalue:
		return "upvalue"
	case ObjClass:
		return "class"
	case ObjInstance:
		return "instance"
	case ObjBoundMethod:
		return "bound method"
	default:
		return "unknown"
	}
}

// Object is implemented by every heap-allocated value. Each concrete type
// embeds Header, giving it the mark bit and intrusive-list link that make up
// the common object header; Kind dispatches the GC's blacken step and the
// disassembler without a type switch on every caller.
type Object interface {
	Kind() ObjKind
	head() *Header
}

// Header is the common prefix of every heap object: a mark bit for the
// tri-color GC and a forward link threading all live objects into the
// single intrusive list rooted at the VM.
type Header struct {
	Marked bool
	Next   Object
}

func (h *Header) head() *Header { return h }

// Mark and Marked let the GC and allocator read/flip the mark bit without
// reaching into the concrete type.
func Mark(o Object)        { o.head().Marked = true }
func Unmark(o Object)      { o.head().Marked = false }
func IsMarked(o Object) bool { return o.head().Marked }

// NextOf and SetNext manipulate the intrusive object-list link.
func NextOf(o Object) Object     { return o.head().Next }
func SetNext(o Object, n Object) { o.head().Next = n }

// ObjStringData is an immutable, interned byte sequence. Its Hash is
// precomputed with FNV-1a at construction, and since every string is
// interned, pointer equality of *ObjStringData implies value equality.
type ObjStringData struct {
	Header
	Chars string
	Hash  uint32
}

func (*ObjStringData) Kind() ObjKind { return ObjString }

// FNV1a32 computes the 32-bit FNV-1a hash used for interning and lookup.
func FNV1a32(s string) uint32 {
	var h uint32 = 2166136261
	for i := 0; i < len(s); i++ {
		h ^= uint32(s[i])
		h *= 16777619
	}
	return h
}

// ObjFunctionData is a compiled function: its name (nil for the implicit
// top-level script function), arity, upvalue count, and owned Chunk.
type ObjFunctionData struct {
	Header
	Name         *ObjStringData // nil for the top-level script
	Arity        int
	UpvalueCount int
	Chunk        Chunk
}

func (*ObjFunctionData) Kind() ObjKind { return ObjFunction }

// NativeFn is a host function's signature: it receives the arguments slice
// (argv[0] is the first argument, not the receiver) and returns a Value or
// an error that becomes a runtime error in the calling VM.
type NativeFn func(args []Value) (Value, error)

// ObjNativeData wraps a host-supplied Go function so it can live in a Value
// and be called through OP_CALL like any other callable.
type ObjNativeData struct {
	Header
	Name string
	Fn   NativeFn
}

func (*ObjNativeData) Kind() ObjKind { return ObjNative }

// UpvalueState distinguishes an upvalue that still aliases a live stack slot
// ("open") from one whose value has been hoisted into its own storage
// ("closed") because the frame that owned the slot returned.
type UpvalueState byte

const (
	UpvalueOpen UpvalueState = iota
	UpvalueClosed
)

// ObjUpvalueData is a captured variable. While State is UpvalueOpen,
// Location points at a live VM stack slot; Close copies that slot's value
// into Closed, flips Location to point at Closed instead, and sets State to
// UpvalueClosed; the VM's closeUpvalues unlinks it from the open list.
type ObjUpvalueData struct {
	Header
	State    UpvalueState
	Location *Value // points either into the VM stack or at &Closed
	Index    int     // stack slot Location aliases while State==UpvalueOpen
	Closed   Value
	Next     *ObjUpvalueData // next entry in the VM's open-upvalue list
}

func (*ObjUpvalueData) Kind() ObjKind { return ObjUpvalue }

// Close hoists the aliased stack slot's value into the upvalue's own
// storage and redirects Location at it.
func (u *ObjUpvalueData) Close() {
	u.Closed = *u.Location
	u.Location = &u.Closed
	u.State = UpvalueClosed
}

// ObjClosureData pairs a compiled function with the upvalues it captured at
// creation time.
type ObjClosureData struct {
	Header
	Function *ObjFunctionData
	Upvalues []*ObjUpvalueData
}

func (*ObjClosureData) Kind() ObjKind { return ObjClosure }

// ObjClassData is a class: its name and a method table mapping selector
// string identity to the closure implementing it. An `extends` clause
// copies the superclass's table into the subclass at OP_INHERIT time.
type ObjClassData struct {
	Header
	Name    *ObjStringData
	Methods *Table // string(name) -> Value(closure)
}

func (*ObjClassData) Kind() ObjKind { return ObjClass }

// ObjInstanceData is an instance of a class: the class pointer plus a field
// table keyed by field name.
type ObjInstanceData struct {
	Header
	Class  *ObjClassData
	Fields *Table
}

func (*ObjInstanceData) Kind() ObjKind { return ObjInstance }

// ObjBoundMethodData is the (receiver, closure) pair produced when a method
// is looked up as a value — via OP_GET_PROPERTY — rather than invoked
// directly through OP_INVOKE.
type ObjBoundMethodData struct {
	Header
	Receiver Value
	Method   *ObjClosureData
}

func (*ObjBoundMethodData) Kind() ObjKind { return ObjBoundMethod }
