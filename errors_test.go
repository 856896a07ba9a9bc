package microkernel

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestErrorMessageIncludesSubsystemAndOp(t *testing.T) {
	err := NewError("alloc", "Alloc", NoMem, "arena exhausted")
	require.Equal(t, "microkernel: arena exhausted (subsystem=alloc op=Alloc)", err.Error())
	require.Equal(t, NoMem, err.Code)
}

func TestErrorMessageFallsBackToCodeWhenMsgEmpty(t *testing.T) {
	err := NewError("", "", Busy, "")
	require.Equal(t, "microkernel: busy", err.Error())
}

func TestWrapErrorPreservesInnerForUnwrap(t *testing.T) {
	inner := errors.New("boom")
	err := WrapError("uart", "Read", Io, inner)
	require.ErrorIs(t, err, inner)
	require.Equal(t, Io, err.Code)
}

func TestWrapErrorNilIsNil(t *testing.T) {
	require.Nil(t, WrapError("uart", "Read", Io, nil))
}

func TestWrapErrorOfStructuredErrorKeepsCode(t *testing.T) {
	original := NewError("shell", "Register", Exist, "duplicate command")
	wrapped := WrapError("kernel", "Boot", Inval, original)
	require.Equal(t, Exist, wrapped.Code, "wrapping a structured error should keep its code, not the caller's")
}

func TestIsCodeMatchesWrappedError(t *testing.T) {
	err := NewError("sched", "Spawn", NoMem, "thread table full")
	require.True(t, IsCode(err, NoMem))
	require.False(t, IsCode(err, Busy))
	require.False(t, IsCode(nil, NoMem))
}

func TestErrorIsComparesByCode(t *testing.T) {
	a := NewError("alloc", "Alloc", NoMem, "exhausted")
	b := &Error{Code: NoMem}
	require.True(t, errors.Is(a, b))

	c := &Error{Code: Busy}
	require.False(t, errors.Is(a, c))
}
