package errors

import (
	stderrors "errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestWrapAndIsCode(t *testing.T) {
	cause := stderrors.New("boom")
	err := Wrap(CodeDependencyFailure, "embedding failed", cause)

	require.True(t, IsCode(err, CodeDependencyFailure))
	require.False(t, IsCode(err, CodeInvalidRequest))
	require.ErrorIs(t, err, cause)
	require.Equal(t, "embedding failed: boom", err.Error())

	outer := fmt.Errorf("handler: %w", err)
	require.True(t, IsCode(outer, CodeDependencyFailure))
	require.Equal(t, "embedding failed", MessageOf(outer))
}

func TestMessageOfPlainError(t *testing.T) {
	require.Equal(t, "plain", MessageOf(stderrors.New("plain")))
	require.Equal(t, "", MessageOf(nil))
}
