package vm

import (
	"go.uber.org/zap"

	"github.com/kristofer/ember/pkg/value"
)

// collectGarbage runs one full tri-color mark-sweep cycle: mark every root,
// trace from a gray worklist until nothing is left gray, drop unreachable
// entries from the weak intern table, then sweep the object list.
//
// Compilation and execution never overlap within one Interpret call (see
// package doc), so the compiler's in-flight function chain never needs to
// be a root here: vm.compiling is true for the whole compile phase and
// suppresses collection, matching spec root (f) without a second root
// source once execution begins.
func (vm *VM) collectGarbage() {
	if vm.compiling {
		return
	}

	before := vm.bytesAllocated
	gray := vm.markRoots()
	gray = vm.traceReferences(gray)
	vm.strings.RemoveWhite()
	vm.sweep()
	vm.nextGC = vm.bytesAllocated * 2
	if vm.nextGC < initialNextGC {
		vm.nextGC = initialNextGC
	}

	vm.log.Debug("gc cycle",
		zap.Int64("before", before),
		zap.Int64("after", vm.bytesAllocated),
	)
}

// markRoots marks every GC root and returns the initial gray worklist:
// stack values (a), active-frame closures (b), the open-upvalue list (c),
// the globals table's names and values (d), the initializer-name string
// (e), and the pre-interned typeof category strings.
func (vm *VM) markRoots() []value.Object {
	var gray []value.Object

	for i := 0; i < vm.stackTop; i++ {
		gray = markValue(vm.stack[i], gray)
	}
	for i := 0; i < vm.frameCount; i++ {
		gray = mark(vm.frames[i].closure, gray)
	}
	for u := vm.openUpvalues; u != nil; u = u.Next {
		gray = mark(u, gray)
	}
	vm.globals.Each(func(k *value.ObjStringData, v value.Value) {
		gray = mark(k, gray)
		gray = markValue(v, gray)
	})
	if vm.initializerName != nil {
		gray = mark(vm.initializerName, gray)
	}
	for _, s := range vm.typeofStrings {
		gray = mark(s, gray)
	}
	return gray
}

func markValue(v value.Value, gray []value.Object) []value.Object {
	if v.IsObject() && v.Obj != nil {
		return mark(v.Obj, gray)
	}
	return gray
}

func mark(o value.Object, gray []value.Object) []value.Object {
	if o == nil || value.IsMarked(o) {
		return gray
	}
	value.Mark(o)
	return append(gray, o)
}

// traceReferences drains the gray worklist, blackening each object by
// kind-specific outgoing-reference rules until nothing remains gray.
func (vm *VM) traceReferences(gray []value.Object) []value.Object {
	for len(gray) > 0 {
		o := gray[len(gray)-1]
		gray = gray[:len(gray)-1]
		gray = blacken(o, gray)
	}
	return gray
}

func blacken(o value.Object, gray []value.Object) []value.Object {
	switch obj := o.(type) {
	case *value.ObjClassData:
		gray = mark(obj.Name, gray)
		obj.Methods.Each(func(k *value.ObjStringData, v value.Value) {
			gray = mark(k, gray)
			gray = markValue(v, gray)
		})
	case *value.ObjInstanceData:
		gray = mark(obj.Class, gray)
		obj.Fields.Each(func(k *value.ObjStringData, v value.Value) {
			gray = mark(k, gray)
			gray = markValue(v, gray)
		})
	case *value.ObjClosureData:
		gray = mark(obj.Function, gray)
		for _, u := range obj.Upvalues {
			if u != nil {
				gray = mark(u, gray)
			}
		}
	case *value.ObjFunctionData:
		if obj.Name != nil {
			gray = mark(obj.Name, gray)
		}
		for _, c := range obj.Chunk.Constants {
			gray = markValue(c, gray)
		}
	case *value.ObjBoundMethodData:
		gray = markValue(obj.Receiver, gray)
		gray = mark(obj.Method, gray)
	case *value.ObjUpvalueData:
		gray = markValue(obj.Closed, gray)
	case *value.ObjStringData, *value.ObjNativeData:
		// no outgoing references
	}
	return gray
}

// sweep walks the object list, keeping marked objects (clearing their mark
// bit for the next cycle) and dropping unmarked ones from the list. Go's
// own GC reclaims the memory once nothing here references them; this sweep
// only enforces ember's own liveness semantics (so e.g. a freed string can
// no longer satisfy interning) and updates the byte-accounting heuristic.
func (vm *VM) sweep() {
	var prev value.Object
	cur := vm.objects
	for cur != nil {
		next := value.NextOf(cur)
		if value.IsMarked(cur) {
			value.Unmark(cur)
			prev = cur
		} else {
			if prev == nil {
				vm.objects = next
			} else {
				value.SetNext(prev, next)
			}
			vm.bytesAllocated -= objectSize(cur)
		}
		cur = next
	}
}

func objectSize(o value.Object) int64 {
	switch obj := o.(type) {
	case *value.ObjStringData:
		return int64(len(obj.Chars)) + 32
	case *value.ObjClosureData:
		return int64(8*len(obj.Upvalues)) + 32
	default:
		return 32
	}
}
