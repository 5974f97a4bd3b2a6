// Package natives implements ember's built-in host-function catalogue:
// clock/sleep/system/random (the last preserving a documented generator
// quirk inherited from the language this was distilled from) plus a small
// set of field-reflection helpers and a uuid generator. Registration goes
// through vm.VM.DefineNative, the same interface any embedder would use to
// add their own.
package natives

import (
	"fmt"
	"math/rand"
	"os/exec"
	"time"

	"github.com/google/uuid"

	"github.com/kristofer/ember/pkg/value"
	"github.com/kristofer/ember/pkg/vm"
)

// Register installs the full catalogue as globals on v.
func Register(v *vm.VM) {
	v.DefineNative("clock", clockNative)
	v.DefineNative("sleep", sleepNative)
	v.DefineNative("system", systemNative)
	v.DefineNative("random", randomNative)
	v.DefineNative("hasField", hasFieldNative)
	v.DefineNative("getField", getFieldNative)
	v.DefineNative("setField", setFieldNative)
	v.DefineNative("deleteField", deleteFieldNative)
	v.DefineNative("uuid", uuidNative(v))
}

// clockNative reports wall-clock time in seconds since the Unix epoch. It
// does not measure process CPU time the way C's clock()/CLOCKS_PER_SEC does.
func clockNative(args []value.Value) (value.Value, error) {
	return value.Number(float64(time.Now().UnixNano()) / 1e9), nil
}

// sleepNative blocks the single cooperative thread for the given number of
// seconds, returning 0 on success and -1 if the argument was missing or not
// a number — the single thread really does block, per the concurrency
// model: there is no other work for the VM to do while it sleeps.
func sleepNative(args []value.Value) (value.Value, error) {
	if len(args) < 1 || !args[0].IsNumber() {
		return value.Number(-1), nil
	}
	time.Sleep(time.Duration(args[0].Num * float64(time.Second)))
	return value.Number(0), nil
}

// systemNative shells out to run a command and returns its exit code, or
// nil if no string command was given.
func systemNative(args []value.Value) (value.Value, error) {
	if len(args) == 0 {
		return value.Nil, nil
	}
	s, ok := args[0].AsString()
	if !ok {
		return value.Nil, nil
	}
	cmd := exec.Command("sh", "-c", s.Chars)
	err := cmd.Run()
	if err == nil {
		return value.Number(0), nil
	}
	if exitErr, ok := err.(*exec.ExitError); ok {
		return value.Number(float64(exitErr.ExitCode())), nil
	}
	return value.Number(-1), nil
}

// randomNative deliberately preserves a non-uniform distribution: it
// returns RAND_MAX/rand() rather than a value uniform on [0,1), with
// rand()==0 special-cased to avoid a division by zero. A future cleanup
// should replace this with a real uniform generator; kept as-is to match
// the documented behavior of the reference generator this reproduces.
func randomNative(args []value.Value) (value.Value, error) {
	const randMax = 32767 // original rand()'s RAND_MAX on the reference platform
	v := rand.Intn(randMax + 1)
	if v == 0 {
		return value.Number(0), nil
	}
	return value.Number(float64(randMax) / float64(v)), nil
}

func hasFieldNative(args []value.Value) (value.Value, error) {
	if len(args) != 2 {
		return value.False, nil
	}
	instance, ok := args[0].AsInstance()
	if !ok {
		return value.False, nil
	}
	name, ok := args[1].AsString()
	if !ok {
		return value.False, nil
	}
	_, found := instance.Fields.Get(name)
	return value.BoolValue(found), nil
}

func getFieldNative(args []value.Value) (value.Value, error) {
	if len(args) != 2 {
		return value.Nil, nil
	}
	instance, ok := args[0].AsInstance()
	if !ok {
		return value.Nil, nil
	}
	name, ok := args[1].AsString()
	if !ok {
		return value.Nil, nil
	}
	v, _ := instance.Fields.Get(name)
	return v, nil
}

func setFieldNative(args []value.Value) (value.Value, error) {
	if len(args) != 3 {
		return value.False, nil
	}
	instance, ok := args[0].AsInstance()
	if !ok {
		return value.False, nil
	}
	name, ok := args[1].AsString()
	if !ok {
		return value.False, nil
	}
	instance.Fields.Set(name, args[2])
	return value.True, nil
}

func deleteFieldNative(args []value.Value) (value.Value, error) {
	if len(args) != 2 {
		return value.False, nil
	}
	instance, ok := args[0].AsInstance()
	if !ok {
		return value.False, nil
	}
	name, ok := args[1].AsString()
	if !ok {
		return value.False, nil
	}
	return value.BoolValue(instance.Fields.Delete(name)), nil
}

// uuidNative closes over v so it can intern the generated string through
// the VM's own table, preserving the invariant that every string reachable
// from the language is interned.
func uuidNative(v *vm.VM) value.NativeFn {
	return func(args []value.Value) (value.Value, error) {
		id, err := uuid.NewRandom()
		if err != nil {
			return value.Nil, fmt.Errorf("uuid: %w", err)
		}
		return value.FromObject(v.InternString(id.String())), nil
	}
}
