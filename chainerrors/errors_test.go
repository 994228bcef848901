package chainerrors

import (
	"fmt"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestGetErrorCode(t *testing.T) {
	require.Equal(t, "BG5", GetErrorCode(ErrBranchNotFound))
	require.Equal(t, "HM2", GetErrorCode(ErrNotFound))
	require.Equal(t, "", GetErrorCode(nil))
	require.Equal(t, "", GetErrorCode(fmt.Errorf("plain error, no code")))
}

func TestGetErrorCodeSurvivesWrapping(t *testing.T) {
	wrapped := fmt.Errorf("%w: branch 7", ErrBranchNotFound)
	require.Equal(t, "BG5", GetErrorCode(wrapped))
	require.ErrorIs(t, wrapped, ErrBranchNotFound)
}

func TestGetErrorName(t *testing.T) {
	require.Equal(t, "BranchNotFound", GetErrorName(ErrBranchNotFound))
	require.Equal(t, "MaxDepth", GetErrorName(ErrMaxDepth))
	require.Equal(t, "no error", GetErrorName(nil))
}

func TestGetErrorCodeInt(t *testing.T) {
	require.Equal(t, 5, GetErrorCodeInt(ErrBranchNotFound))
	require.Equal(t, 2, GetErrorCodeInt(ErrNotFound))
	require.Equal(t, 0, GetErrorCodeInt(nil))
}

func TestErrorCodesAreUnique(t *testing.T) {
	all := []error{
		ErrLoadError, ErrNoGenesisBranch, ErrParentExpected, ErrNoCurrentChain,
		ErrBranchNotFound, ErrHeadNotFound, ErrHeadNotSynced, ErrCycleDetected,
		ErrStoreError, ErrHeightMismatch, ErrNoCommonRoot, ErrNoRoute,
		ErrExpectedCID, ErrNotFound, ErrMaxDepth,
	}
	seen := map[string]bool{}
	for _, err := range all {
		code := GetErrorCode(err)
		require.NotEmpty(t, code)
		require.False(t, seen[code], "duplicate code %s", code)
		seen[code] = true
	}
}
