package browser

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestErrorFormatting(t *testing.T) {
	err := NewError(KindLocatorNotFound, "no element matches %q", "#x")
	assert.Equal(t, `LocatorNotFound: no element matches "#x"`, err.Error())

	wrapped := WrapError(KindExecutionTimeout, context.DeadlineExceeded, "click timed out")
	assert.Contains(t, wrapped.Error(), "ExecutionTimeout")
	assert.True(t, errors.Is(wrapped, context.DeadlineExceeded))
}

func TestKindOf(t *testing.T) {
	assert.Equal(t, KindDomainBlocked, KindOf(NewError(KindDomainBlocked, "nope")))
	assert.Equal(t, ErrorKind(""), KindOf(errors.New("plain")))
	assert.Equal(t, ErrorKind(""), KindOf(nil))
}

func TestIsKindSeesThroughWrapping(t *testing.T) {
	inner := NewError(KindSessionNotReady, "still spawning")
	outer := fmt.Errorf("dispatch failed: %w", inner)

	assert.True(t, IsKind(outer, KindSessionNotReady))
	assert.False(t, IsKind(outer, KindSessionNotFound))
}
