package vm

import "github.com/kristofer/ember/pkg/value"

// registerObject charges size bytes against the GC's allocation budget,
// possibly triggering a collection, and then threads obj onto the VM's
// intrusive object list. Collecting before linking means a collection never
// sweeps obj before its caller has had a chance to root it. size is an
// estimate (e.g. a string's byte length); it only needs to be proportional
// to real cost since it drives nothing but the heap-growth heuristic.
func (vm *VM) registerObject(obj value.Object, size int) {
	vm.bytesAllocated += int64(size) + 32 // flat per-object overhead estimate

	if vm.stressGC || vm.bytesAllocated > vm.nextGC {
		vm.collectGarbage()
	}

	value.SetNext(obj, vm.objects)
	vm.objects = obj
}

// NewClosure wraps fn with freshly allocated (nil) upvalue slots, one per
// fn.UpvalueCount; OP_CLOSURE fills each in immediately after this returns.
func (vm *VM) NewClosure(fn *value.ObjFunctionData) *value.ObjClosureData {
	c := &value.ObjClosureData{
		Function: fn,
		Upvalues: make([]*value.ObjUpvalueData, fn.UpvalueCount),
	}
	vm.registerObject(c, 8*fn.UpvalueCount)
	return c
}

// NewClass allocates an empty class named name; OP_METHOD populates its
// method table afterward, and OP_INHERIT may copy a superclass's in too.
func (vm *VM) NewClass(name *value.ObjStringData) *value.ObjClassData {
	c := &value.ObjClassData{Name: name, Methods: value.NewTable()}
	vm.registerObject(c, 0)
	return c
}

// NewInstance allocates an instance of class with an empty field table.
func (vm *VM) NewInstance(class *value.ObjClassData) *value.ObjInstanceData {
	i := &value.ObjInstanceData{Class: class, Fields: value.NewTable()}
	vm.registerObject(i, 0)
	return i
}

// NewBoundMethod pairs receiver with method, the value OP_GET_PROPERTY
// pushes when a method is looked up without being invoked directly.
func (vm *VM) NewBoundMethod(receiver value.Value, method *value.ObjClosureData) *value.ObjBoundMethodData {
	b := &value.ObjBoundMethodData{Receiver: receiver, Method: method}
	vm.registerObject(b, 0)
	return b
}
