// Package vm implements ember's stack-based bytecode interpreter: call
// frames, closures with open/closed upvalues, classes with inheritance and
// bound methods, and a tri-color mark-sweep collector layered on top of
// Go's own garbage collector (see gc.go).
//
// Compilation and execution never overlap within a single Interpret call:
// the compiler produces a complete tree of ObjFunctionData values first,
// then the VM runs the top-level one. The VM and the compiler share the
// same heap-object graph and string intern table, since compiled constants
// (interned strings, nested function objects) are already heap-allocated
// by the time execution starts.
package vm

import (
	"fmt"
	"io"
	"os"

	"go.uber.org/zap"

	"github.com/kristofer/ember/pkg/compiler"
	"github.com/kristofer/ember/pkg/value"
)

// FramesMax bounds the call-frame array; recursion past this depth is a
// runtime "Stack overflow."
const FramesMax = 64

// StackMax is the fixed value-stack capacity: enough slots for every local
// in every frame on a maximally deep call stack.
const StackMax = FramesMax * 256

// InterpretResult is the outcome of a call to Interpret.
type InterpretResult int

const (
	InterpretOK InterpretResult = iota
	InterpretCompileError
	InterpretRuntimeError
)

// callFrame is one activation record: the closure being executed, its
// instruction pointer, and the base of its locals within the shared value
// stack.
type callFrame struct {
	closure   *value.ObjClosureData
	ip        int
	slotsBase int
}

// VM is a self-contained interpreter instance; nothing about its state is
// global, so more than one can exist in a process (the redesign the
// original singleton-VM source invited, per its own design notes).
type VM struct {
	stack     [StackMax]value.Value
	stackTop  int
	frames    [FramesMax]callFrame
	frameCount int

	globals *value.Table
	strings *value.Table // weak string-intern table

	objects        value.Object
	bytesAllocated int64
	nextGC         int64
	compiling      bool // suppresses collection while the compiler is allocating
	stressGC       bool

	openUpvalues *value.ObjUpvalueData

	initializerName         *value.ObjStringData
	initializerNameOverride string // set via WithInitializerName, read once by New
	typeofStrings           map[string]*value.ObjStringData

	log    *zap.Logger
	Debug  bool // gates disassembly tracing, see debug.go
	Stdout io.Writer
	Stderr io.Writer
}

// Option configures a VM at construction.
type Option func(*VM)

// WithInitializerName overrides the constructor method name (default
// compiler.DefaultInitializerName).
func WithInitializerName(name string) Option {
	return func(v *VM) { v.initializerNameOverride = name }
}

// WithLogger attaches a zap logger for GC and anomaly observability. The
// default is a no-op logger: logging never changes interpreted semantics.
func WithLogger(l *zap.Logger) Option {
	return func(v *VM) { v.log = l }
}

// WithStressGC collects on every growing allocation instead of only past
// the heap-growth threshold, to shake out GC-safety bugs under test.
func WithStressGC() Option {
	return func(v *VM) { v.stressGC = true }
}

const initialNextGC = 1 << 20 // 1 MiB

// New creates a VM ready to Interpret source. It registers no native
// functions; callers wire pkg/natives (or their own) via DefineNative.
func New(opts ...Option) *VM {
	v := &VM{
		globals: value.NewTable(),
		strings: value.NewTable(),
		nextGC:  initialNextGC,
		log:     zap.NewNop(),
		Stdout:  os.Stdout,
		Stderr:  os.Stderr,
	}
	for _, opt := range opts {
		opt(v)
	}
	name := v.initializerNameOverride
	if name == "" {
		name = compiler.DefaultInitializerName
	}
	v.initializerName = v.InternString(name)
	v.typeofStrings = map[string]*value.ObjStringData{}
	for _, cat := range []string{"boolean", "nil", "number", "string", "class", "object", "function"} {
		v.typeofStrings[cat] = v.InternString(cat)
	}
	return v
}

// DefineNative registers fn as a global callable named name.
func (vm *VM) DefineNative(name string, fn value.NativeFn) {
	nameStr := vm.InternString(name)
	vm.push(value.FromObject(nameStr)) // keep the name interned across the native's allocation
	native := &value.ObjNativeData{Name: name, Fn: fn}
	vm.registerObject(native, len(name))
	vm.globals.Set(nameStr, value.FromObject(native))
	vm.pop()
}

// Push and Pop let natives manipulate the value stack directly while they
// run, which matters when a native allocates a GC-managed object (e.g. a
// string) and must keep it reachable until it can return it.
func (vm *VM) Push(v value.Value) { vm.push(v) }
func (vm *VM) Pop() value.Value   { return vm.pop() }

func (vm *VM) push(v value.Value) {
	vm.stack[vm.stackTop] = v
	vm.stackTop++
}

func (vm *VM) pop() value.Value {
	vm.stackTop--
	return vm.stack[vm.stackTop]
}

func (vm *VM) peek(distance int) value.Value {
	return vm.stack[vm.stackTop-1-distance]
}

func (vm *VM) resetStack() {
	vm.stackTop = 0
	vm.frameCount = 0
	vm.openUpvalues = nil
}

// Interpret compiles and runs a full program, matching the host-embedding
// contract: compile-only errors never execute any bytecode.
func (vm *VM) Interpret(source string) InterpretResult {
	vm.compiling = true
	c := compiler.New(source, vm, compiler.WithInitializerName(vm.initializerName.Chars))
	fn, ok := c.Compile()
	if !ok {
		vm.compiling = false
		for _, e := range c.Errors() {
			fmt.Fprintln(vm.Stderr, e)
		}
		return InterpretCompileError
	}
	// Link the compiled function tree onto the object list while collection
	// is still suppressed, so each cycle clears and re-traces it.
	var link func(f *value.ObjFunctionData)
	link = func(f *value.ObjFunctionData) {
		for _, k := range f.Chunk.Constants {
			if nested, isFn := k.AsFunction(); isFn {
				link(nested)
			}
		}
		vm.registerObject(f, 0)
	}
	link(fn)
	vm.compiling = false

	vm.resetStack()
	vm.push(value.FromObject(fn)) // keep fn rooted across the closure's allocation
	closure := vm.NewClosure(fn)
	vm.pop()
	vm.push(value.FromObject(closure))
	vm.callClosure(closure, 0)

	return vm.run()
}

// InternString implements compiler.Interner, canonicalizing chars into the
// single heap ObjStringData shared by every equal string in the program.
func (vm *VM) InternString(chars string) *value.ObjStringData {
	hash := value.FNV1a32(chars)
	if existing := vm.strings.FindString(chars, hash); existing != nil {
		return existing
	}
	s := &value.ObjStringData{Chars: chars, Hash: hash}
	vm.registerObject(s, len(chars))
	vm.push(value.FromObject(s)) // keep reachable across the table insert
	vm.strings.Set(s, value.Nil)
	vm.pop()
	return s
}

func (vm *VM) currentFrame() *callFrame { return &vm.frames[vm.frameCount-1] }

func (vm *VM) readByte(f *callFrame) byte {
	b := f.closure.Function.Chunk.Code[f.ip]
	f.ip++
	return b
}

func (vm *VM) readShort(f *callFrame) int {
	hi := vm.readByte(f)
	lo := vm.readByte(f)
	return int(hi)<<8 | int(lo)
}

func (vm *VM) readConstant(f *callFrame) value.Value {
	return f.closure.Function.Chunk.Constants[vm.readByte(f)]
}

func (vm *VM) readString(f *callFrame) *value.ObjStringData {
	s, _ := vm.readConstant(f).AsString()
	return s
}

// run is the bytecode dispatch loop.
func (vm *VM) run() InterpretResult {
	frame := vm.currentFrame()

	for {
		if vm.Debug {
			vm.traceInstruction(frame)
		}

		op := value.Opcode(vm.readByte(frame))
		switch op {
		case value.OpConstant:
			vm.push(vm.readConstant(frame))

		case value.OpNil:
			vm.push(value.Nil)
		case value.OpTrue:
			vm.push(value.True)
		case value.OpFalse:
			vm.push(value.False)

		case value.OpPop:
			vm.pop()

		case value.OpGetLocal:
			slot := vm.readByte(frame)
			vm.push(vm.stack[frame.slotsBase+int(slot)])
		case value.OpSetLocal:
			slot := vm.readByte(frame)
			vm.stack[frame.slotsBase+int(slot)] = vm.peek(0)

		case value.OpGetGlobal:
			name := vm.readString(frame)
			v, ok := vm.globals.Get(name)
			if !ok {
				vm.runtimeError("Undefined variable '%s'.", name.Chars)
				return InterpretRuntimeError
			}
			vm.push(v)
		case value.OpDefineGlobal:
			name := vm.readString(frame)
			vm.globals.Set(name, vm.peek(0))
			vm.pop()
		case value.OpSetGlobal:
			name := vm.readString(frame)
			if vm.globals.Set(name, vm.peek(0)) {
				vm.globals.Delete(name)
				vm.runtimeError("Undefined variable '%s'.", name.Chars)
				return InterpretRuntimeError
			}

		case value.OpGetUpvalue:
			slot := vm.readByte(frame)
			vm.push(*frame.closure.Upvalues[slot].Location)
		case value.OpSetUpvalue:
			slot := vm.readByte(frame)
			*frame.closure.Upvalues[slot].Location = vm.peek(0)

		case value.OpGetProperty:
			if !vm.getProperty(frame) {
				return InterpretRuntimeError
			}

		case value.OpSetProperty:
			if !vm.setProperty(frame) {
				return InterpretRuntimeError
			}

		case value.OpGetSuper:
			name := vm.readString(frame)
			superclass, _ := vm.pop().AsClass()
			if !vm.bindMethod(superclass, name) {
				return InterpretRuntimeError
			}

		case value.OpEqual:
			b := vm.pop()
			a := vm.pop()
			vm.push(value.BoolValue(value.Equal(a, b)))
		case value.OpGreater:
			if !vm.numericBinary(func(a, b float64) value.Value { return value.BoolValue(a > b) }) {
				return InterpretRuntimeError
			}
		case value.OpLess:
			if !vm.numericBinary(func(a, b float64) value.Value { return value.BoolValue(a < b) }) {
				return InterpretRuntimeError
			}

		case value.OpAdd:
			if !vm.add() {
				return InterpretRuntimeError
			}
		case value.OpSubtract:
			if !vm.numericBinary(func(a, b float64) value.Value { return value.Number(a - b) }) {
				return InterpretRuntimeError
			}
		case value.OpMultiply:
			if !vm.numericBinary(func(a, b float64) value.Value { return value.Number(a * b) }) {
				return InterpretRuntimeError
			}
		case value.OpDivide:
			if !vm.numericBinary(func(a, b float64) value.Value { return value.Number(a / b) }) {
				return InterpretRuntimeError
			}
		case value.OpModulo:
			if !vm.numericBinary(func(a, b float64) value.Value { return value.Number(mod(a, b)) }) {
				return InterpretRuntimeError
			}

		case value.OpBitAnd:
			if !vm.int32Binary(func(a, b int32) int32 { return a & b }) {
				return InterpretRuntimeError
			}
		case value.OpBitOr:
			if !vm.int32Binary(func(a, b int32) int32 { return a | b }) {
				return InterpretRuntimeError
			}
		case value.OpBitXor:
			if !vm.int32Binary(func(a, b int32) int32 { return a ^ b }) {
				return InterpretRuntimeError
			}
		case value.OpLeftShift:
			if !vm.int32Binary(func(a, b int32) int32 { return a << uint32(b) }) {
				return InterpretRuntimeError
			}
		case value.OpRightShift:
			if !vm.int32Binary(func(a, b int32) int32 { return a >> uint32(b) }) {
				return InterpretRuntimeError
			}
		case value.OpUnsignedLeftShift:
			if !vm.int32Binary(func(a, b int32) int32 { return a << uint32(b) }) {
				return InterpretRuntimeError
			}
		case value.OpUnsignedRightShift:
			if !vm.uint32Binary(func(a, b uint32) uint32 { return a >> b }) {
				return InterpretRuntimeError
			}
		case value.OpBitNot:
			n, ok := asNumber(vm.pop())
			if !ok {
				vm.runtimeError("Operand must be a number.")
				return InterpretRuntimeError
			}
			vm.push(value.Number(float64(^int32(n))))

		case value.OpNot:
			vm.push(value.BoolValue(value.IsFalsey(vm.pop())))
		case value.OpNegate:
			v := vm.peek(0)
			if !v.IsNumber() {
				vm.runtimeError("Operand must be a number.")
				return InterpretRuntimeError
			}
			vm.pop()
			vm.push(value.Number(-v.Num))

		case value.OpTypeof:
			v := vm.pop()
			cat := value.TypeofCategory(v)
			vm.push(value.FromObject(vm.typeofStrings[cat]))

		case value.OpPrint:
			fmt.Fprintln(vm.Stdout, vm.pop().String())

		case value.OpJump:
			offset := vm.readShort(frame)
			frame.ip += offset
		case value.OpJumpIfFalse:
			offset := vm.readShort(frame)
			if value.IsFalsey(vm.peek(0)) {
				frame.ip += offset
			}
		case value.OpLoop:
			offset := vm.readShort(frame)
			frame.ip -= offset

		case value.OpCall:
			argc := int(vm.readByte(frame))
			if !vm.callValue(vm.peek(argc), argc) {
				return InterpretRuntimeError
			}
			frame = vm.currentFrame()

		case value.OpInvoke:
			method := vm.readString(frame)
			argc := int(vm.readByte(frame))
			if !vm.invoke(method, argc) {
				return InterpretRuntimeError
			}
			frame = vm.currentFrame()

		case value.OpSuperInvoke:
			method := vm.readString(frame)
			argc := int(vm.readByte(frame))
			superclass, _ := vm.pop().AsClass()
			if !vm.invokeFromClass(superclass, method, argc) {
				return InterpretRuntimeError
			}
			frame = vm.currentFrame()

		case value.OpClosure:
			fn, _ := vm.readConstant(frame).AsFunction()
			closure := vm.NewClosure(fn)
			vm.push(value.FromObject(closure))
			for i := 0; i < fn.UpvalueCount; i++ {
				isLocal := vm.readByte(frame)
				index := vm.readByte(frame)
				if isLocal == 1 {
					closure.Upvalues[i] = vm.captureUpvalue(frame.slotsBase + int(index))
				} else {
					closure.Upvalues[i] = frame.closure.Upvalues[index]
				}
			}

		case value.OpCloseUpvalue:
			vm.closeUpvalues(vm.stackTop - 1)
			vm.pop()

		case value.OpReturn:
			result := vm.pop()
			vm.closeUpvalues(frame.slotsBase)
			vm.frameCount--
			if vm.frameCount == 0 {
				vm.pop()
				return InterpretOK
			}
			vm.stackTop = frame.slotsBase
			vm.push(result)
			frame = vm.currentFrame()

		case value.OpClass:
			name := vm.readString(frame)
			vm.push(value.FromObject(vm.NewClass(name)))

		case value.OpInherit:
			superVal := vm.peek(1)
			superclass, ok := superVal.AsClass()
			if !ok {
				vm.runtimeError("Superclass must be a class.")
				return InterpretRuntimeError
			}
			subclass, _ := vm.peek(0).AsClass()
			subclass.Methods.AddAll(superclass.Methods)
			vm.pop()

		case value.OpMethod:
			name := vm.readString(frame)
			vm.defineMethod(name)

		default:
			vm.runtimeError(fmt.Sprintf("Unknown opcode %d.", op))
			return InterpretRuntimeError
		}
	}
}

func mod(a, b float64) float64 {
	r := a - b*float64(int64(a/b))
	return r
}

// asNumber extracts a float64 from a Value, used wherever an operand must
// be a number to proceed.
func asNumber(v value.Value) (float64, bool) {
	if !v.IsNumber() {
		return 0, false
	}
	return v.Num, true
}

func (vm *VM) numericBinary(f func(a, b float64) value.Value) bool {
	b, bOk := asNumber(vm.peek(0))
	a, aOk := asNumber(vm.peek(1))
	if !aOk || !bOk {
		return vm.runtimeError("Operands must be numbers.")
	}
	vm.pop()
	vm.pop()
	vm.push(f(a, b))
	return true
}

func (vm *VM) int32Binary(f func(a, b int32) int32) bool {
	b, bOk := asNumber(vm.peek(0))
	a, aOk := asNumber(vm.peek(1))
	if !aOk || !bOk {
		return vm.runtimeError("Operands must be numbers.")
	}
	vm.pop()
	vm.pop()
	vm.push(value.Number(float64(f(int32(a), int32(b)))))
	return true
}

func (vm *VM) uint32Binary(f func(a, b uint32) uint32) bool {
	b, bOk := asNumber(vm.peek(0))
	a, aOk := asNumber(vm.peek(1))
	if !aOk || !bOk {
		return vm.runtimeError("Operands must be numbers.")
	}
	vm.pop()
	vm.pop()
	vm.push(value.Number(float64(f(uint32(int32(a)), uint32(int32(b))))))
	return true
}

func (vm *VM) add() bool {
	b := vm.peek(0)
	a := vm.peek(1)
	switch {
	case a.IsNumber() && b.IsNumber():
		vm.pop()
		vm.pop()
		vm.push(value.Number(a.Num + b.Num))
		return true
	case a.IsObjKind(value.ObjString) && b.IsObjKind(value.ObjString):
		as, _ := a.AsString()
		bs, _ := b.AsString()
		concat := vm.InternString(as.Chars + bs.Chars)
		vm.pop()
		vm.pop()
		vm.push(value.FromObject(concat))
		return true
	default:
		return vm.runtimeError("Operands must be two numbers or two strings.")
	}
}

func (vm *VM) getProperty(frame *callFrame) bool {
	if !vm.peek(0).IsObjKind(value.ObjInstance) {
		return vm.runtimeError("Only instances have properties.")
	}
	instance, _ := vm.peek(0).AsInstance()
	name := vm.readString(frame)
	if v, ok := instance.Fields.Get(name); ok {
		vm.pop()
		vm.push(v)
		return true
	}
	return vm.bindMethod(instance.Class, name)
}

func (vm *VM) setProperty(frame *callFrame) bool {
	if !vm.peek(1).IsObjKind(value.ObjInstance) {
		return vm.runtimeError("Only instances have fields.")
	}
	instance, _ := vm.peek(1).AsInstance()
	name := vm.readString(frame)
	instance.Fields.Set(name, vm.peek(0))
	v := vm.pop()
	vm.pop()
	vm.push(v)
	return true
}

func (vm *VM) bindMethod(class *value.ObjClassData, name *value.ObjStringData) bool {
	method, ok := class.Methods.Get(name)
	if !ok {
		return vm.runtimeError(fmt.Sprintf("Undefined property '%s'.", name.Chars))
	}
	closure, _ := method.AsClosure()
	bound := vm.NewBoundMethod(vm.peek(0), closure)
	vm.pop()
	vm.push(value.FromObject(bound))
	return true
}

func (vm *VM) defineMethod(name *value.ObjStringData) {
	method := vm.peek(0)
	class, _ := vm.peek(1).AsClass()
	closure, _ := method.AsClosure()
	class.Methods.Set(name, value.FromObject(closure))
	vm.pop()
}

// callValue dispatches OP_CALL's callee across its four callable shapes.
func (vm *VM) callValue(callee value.Value, argc int) bool {
	if callee.IsObject() {
		switch callee.Obj.Kind() {
		case value.ObjClosure:
			c, _ := callee.AsClosure()
			return vm.callClosure(c, argc)
		case value.ObjNative:
			n, _ := callee.AsNative()
			args := vm.stack[vm.stackTop-argc : vm.stackTop]
			result, err := n.Fn(args)
			if err != nil {
				return vm.runtimeError(err.Error())
			}
			vm.stackTop -= argc + 1
			vm.push(result)
			return true
		case value.ObjClass:
			class, _ := callee.AsClass()
			instance := vm.NewInstance(class)
			vm.stack[vm.stackTop-argc-1] = value.FromObject(instance)
			if initializer, ok := class.Methods.Get(vm.initializerName); ok {
				closure, _ := initializer.AsClosure()
				return vm.callClosure(closure, argc)
			}
			if argc != 0 {
				return vm.runtimeError(fmt.Sprintf("Expected 0 arguments but got %d.", argc))
			}
			return true
		case value.ObjBoundMethod:
			bound, _ := callee.AsBoundMethod()
			vm.stack[vm.stackTop-argc-1] = bound.Receiver
			return vm.callClosure(bound.Method, argc)
		}
	}
	return vm.runtimeError("Can only call functions and classes.")
}

func (vm *VM) callClosure(closure *value.ObjClosureData, argc int) bool {
	if argc != closure.Function.Arity {
		return vm.runtimeError(fmt.Sprintf("Expected %d arguments but got %d.", closure.Function.Arity, argc))
	}
	if vm.frameCount == FramesMax {
		return vm.runtimeError("Stack overflow.")
	}
	frame := &vm.frames[vm.frameCount]
	vm.frameCount++
	frame.closure = closure
	frame.ip = 0
	frame.slotsBase = vm.stackTop - argc - 1
	return true
}

func (vm *VM) invoke(name *value.ObjStringData, argc int) bool {
	receiver := vm.peek(argc)
	if !receiver.IsObjKind(value.ObjInstance) {
		return vm.runtimeError("Only instances have methods.")
	}
	instance, _ := receiver.AsInstance()
	if field, ok := instance.Fields.Get(name); ok {
		vm.stack[vm.stackTop-argc-1] = field
		return vm.callValue(field, argc)
	}
	return vm.invokeFromClass(instance.Class, name, argc)
}

func (vm *VM) invokeFromClass(class *value.ObjClassData, name *value.ObjStringData, argc int) bool {
	method, ok := class.Methods.Get(name)
	if !ok {
		return vm.runtimeError(fmt.Sprintf("Undefined property '%s'.", name.Chars))
	}
	closure, _ := method.AsClosure()
	return vm.callClosure(closure, argc)
}

// captureUpvalue returns the open upvalue for the stack slot at absolute
// index stackIdx, reusing one from the sorted open list if it already
// exists there, or inserting a freshly allocated one in sorted position.
func (vm *VM) captureUpvalue(stackIdx int) *value.ObjUpvalueData {
	var prev *value.ObjUpvalueData
	cur := vm.openUpvalues
	for cur != nil && cur.Index > stackIdx {
		prev = cur
		cur = cur.Next
	}
	if cur != nil && cur.Index == stackIdx {
		return cur
	}
	created := &value.ObjUpvalueData{Location: &vm.stack[stackIdx], Index: stackIdx, Next: cur}
	vm.registerObject(created, 0)
	if prev == nil {
		vm.openUpvalues = created
	} else {
		prev.Next = created
	}
	return created
}

// closeUpvalues hoists every open upvalue at or above the stack slot
// threshold into its own storage, detaching it from the open list.
func (vm *VM) closeUpvalues(threshold int) {
	for vm.openUpvalues != nil && vm.openUpvalues.Index >= threshold {
		u := vm.openUpvalues
		u.Close()
		vm.openUpvalues = u.Next
	}
}
