package errors_test

import (
	"errors"
	"fmt"
	"io"
	"testing"

	gwerrors "github.com/AltairaLabs/agentgw/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNew(t *testing.T) {
	cause := fmt.Errorf("connection refused")
	err := gwerrors.New("worker", "call", gwerrors.KindUnreachable, cause)

	assert.Equal(t, "worker", err.Component)
	assert.Equal(t, "call", err.Operation)
	assert.Equal(t, gwerrors.KindUnreachable, err.Kind)
	assert.Equal(t, 0, err.StatusCode)
	assert.Nil(t, err.Details)
	assert.Equal(t, cause, err.Cause)
}

func TestNew_NilCause(t *testing.T) {
	err := gwerrors.New("registry", "upsert", gwerrors.KindInvalid, nil)

	assert.Equal(t, "registry", err.Component)
	assert.Equal(t, "upsert", err.Operation)
	assert.Nil(t, err.Cause)
}

func TestError_BasicMessage(t *testing.T) {
	cause := fmt.Errorf("dial tcp: connection refused")
	err := gwerrors.New("worker", "call", gwerrors.KindUnreachable, cause)

	assert.Equal(t, "[worker] call: unreachable: dial tcp: connection refused", err.Error())
}

func TestError_NoCause(t *testing.T) {
	err := gwerrors.New("taskstore", "put", gwerrors.KindTerminal, nil)

	assert.Equal(t, "[taskstore] put: terminal", err.Error())
}

func TestError_WithStatusCode(t *testing.T) {
	cause := fmt.Errorf("server error")
	err := gwerrors.New("worker", "call", gwerrors.KindRemote, cause).WithStatusCode(503)

	assert.Equal(t, "[worker] call: remote (status 503): server error", err.Error())
}

func TestWithStatusCode(t *testing.T) {
	err := gwerrors.New("worker", "call", gwerrors.KindTimeout, fmt.Errorf("timeout"))
	result := err.WithStatusCode(0)

	assert.Same(t, err, result)
}

func TestWithDetails(t *testing.T) {
	details := map[string]any{"agent_id": "A1", "attempt": 3}
	err := gwerrors.New("webhook", "deliver", gwerrors.KindRemote, fmt.Errorf("failed"))
	result := err.WithDetails(details)

	assert.Same(t, err, result)
	assert.Equal(t, details, err.Details)
}

func TestChainedBuilders(t *testing.T) {
	err := gwerrors.New("worker", "call", gwerrors.KindRemote, fmt.Errorf("bad gateway")).
		WithStatusCode(502).
		WithDetails(map[string]any{"agent_id": "A1"})

	assert.Equal(t, 502, err.StatusCode)
	assert.Equal(t, map[string]any{"agent_id": "A1"}, err.Details)
	assert.Equal(t, "[worker] call: remote (status 502): bad gateway", err.Error())
}

func TestUnwrap(t *testing.T) {
	cause := fmt.Errorf("root cause")
	err := gwerrors.New("worker", "call", gwerrors.KindUnreachable, cause)

	assert.Equal(t, cause, err.Unwrap())
}

func TestErrorsIs(t *testing.T) {
	sentinel := fmt.Errorf("sentinel error")
	wrapped := fmt.Errorf("mid-layer: %w", sentinel)
	err := gwerrors.New("worker", "call", gwerrors.KindUnreachable, wrapped)

	assert.True(t, errors.Is(err, sentinel))
	assert.True(t, errors.Is(err, wrapped))
}

func TestErrorsAs(t *testing.T) {
	cause := fmt.Errorf("something failed")
	err := gwerrors.New("registry", "fetch", gwerrors.KindAgentNotFound, cause)

	outer := fmt.Errorf("outer: %w", err)

	var ctxErr *gwerrors.ContextualError
	require.True(t, errors.As(outer, &ctxErr))
	assert.Equal(t, "registry", ctxErr.Component)
	assert.Equal(t, gwerrors.KindAgentNotFound, ctxErr.Kind)
}

func TestKindOf(t *testing.T) {
	err := gwerrors.New("worker", "call", gwerrors.KindCircuitOpen, nil)
	wrapped := fmt.Errorf("dispatch: %w", err)

	kind, ok := gwerrors.KindOf(wrapped)
	require.True(t, ok)
	assert.Equal(t, gwerrors.KindCircuitOpen, kind)
}

func TestKindOf_NotContextual(t *testing.T) {
	_, ok := gwerrors.KindOf(io.ErrUnexpectedEOF)
	assert.False(t, ok)
}

func TestNestedContextualErrors(t *testing.T) {
	inner := gwerrors.New("registry", "fetch", gwerrors.KindUnreachable, io.ErrUnexpectedEOF).WithStatusCode(0)
	outer := gwerrors.New("worker", "call", gwerrors.KindRemote, inner).WithStatusCode(502)

	assert.Equal(t, "[worker] call: remote (status 502): [registry] fetch: unreachable: unexpected EOF", outer.Error())
	assert.True(t, errors.Is(outer, io.ErrUnexpectedEOF))

	// KindOf on the outer error returns the outermost Kind, not the inner one.
	kind, ok := gwerrors.KindOf(outer)
	require.True(t, ok)
	assert.Equal(t, gwerrors.KindRemote, kind)
}

func TestDetailsDoNotAffectErrorString(t *testing.T) {
	err := gwerrors.New("worker", "call", gwerrors.KindInvalid, nil).
		WithDetails(map[string]any{"key": "value"})

	assert.Equal(t, "[worker] call: invalid", err.Error())
}
