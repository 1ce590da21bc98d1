package kfmt

import (
	"bytes"
	"errors"
	"strings"
	"testing"

	"pagemap/kernel"
)

func TestPanic(t *testing.T) {
	defer func(origHaltFn func(*kernel.Error)) {
		haltFn = origHaltFn
		SetOutputSink(nil)
	}(haltFn)

	var haltedWith *kernel.Error
	haltFn = func(err *kernel.Error) {
		haltedWith = err
	}

	specs := []struct {
		input     interface{}
		expModule string
		expMsg    string
	}{
		{&kernel.Error{Module: "test", Message: "panic test"}, "test", "panic test"},
		{errors.New("go error"), "rt", "go error"},
		{"string error", "rt", "string error"},
		{42, "rt", "unknown cause"},
	}

	for specIndex, spec := range specs {
		var buf bytes.Buffer
		SetOutputSink(&buf)
		haltedWith = nil

		Panic(spec.input)

		if haltedWith == nil {
			t.Errorf("[spec %d] expected halt function to be called", specIndex)
			continue
		}

		if haltedWith.Module != spec.expModule || haltedWith.Message != spec.expMsg {
			t.Errorf("[spec %d] expected halt with {%s, %s}; got {%s, %s}", specIndex, spec.expModule, spec.expMsg, haltedWith.Module, haltedWith.Message)
		}

		exp := "[" + spec.expModule + "] unrecoverable error: " + spec.expMsg + "\n*** kernel panic: operation aborted ***"
		if got := buf.String(); !strings.Contains(got, exp) {
			t.Errorf("[spec %d] expected output to contain:\n%q\ngot:\n%q", specIndex, exp, got)
		}
	}
}

func TestPanicUnwindsWithKernelError(t *testing.T) {
	defer SetOutputSink(nil)
	SetOutputSink(&bytes.Buffer{})

	expErr := &kernel.Error{Module: "test", Message: "fatal"}
	defer func() {
		if r := recover(); r != expErr {
			t.Fatalf("expected to recover %v; got %v", expErr, r)
		}
	}()

	Panic(expErr)
	t.Fatal("expected Panic not to return")
}
