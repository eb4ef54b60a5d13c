package vslq

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestError_MessageIncludesVxidWhenPresent(t *testing.T) {
	err := newVxidError("Dispatch", 42, CodeDiagnostic, "late Begin record ignored")
	require.Contains(t, err.Error(), "vxid=42")
	require.Contains(t, err.Error(), "Dispatch")
}

func TestError_MessageOmitsVxidWhenZero(t *testing.T) {
	err := newError("New", CodeFatal, "cursor must not be nil")
	require.NotContains(t, err.Error(), "vxid")
}

func TestError_IsComparesByCode(t *testing.T) {
	a := newVxidError("Dispatch", 1, CodeForced, "forced complete: incomplete timeout exceeded")
	b := newError("Flush", CodeForced, "forced complete: flush")
	require.True(t, errors.Is(a, b))

	c := newError("New", CodeFatal, "cursor must not be nil")
	require.False(t, errors.Is(a, c))
}

func TestError_WrapPreservesInnerCode(t *testing.T) {
	inner := newVxidError("Dispatch", 7, CodeDiagnostic, "malformed Begin payload")
	wrapped := wrapError("Flush", inner)
	require.Equal(t, CodeDiagnostic, wrapped.Code)
	require.EqualValues(t, 7, wrapped.Vxid)
	require.True(t, errors.Is(wrapped, inner))
}

func TestError_WrapOfPlainErrorBecomesFatal(t *testing.T) {
	wrapped := wrapError("Dispatch", errors.New("boom"))
	require.Equal(t, CodeFatal, wrapped.Code)
	require.ErrorIs(t, wrapped, wrapped.Inner)
}

func TestIsCode(t *testing.T) {
	err := wrapError("Dispatch", newError("New", CodeFatal, "invalid grouping"))
	require.True(t, IsCode(err, CodeFatal))
	require.False(t, IsCode(err, CodeDiagnostic))
	require.False(t, IsCode(errors.New("plain"), CodeFatal))
}
