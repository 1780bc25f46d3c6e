package modules_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/latticehq/lattice/internal/broker"
	"github.com/latticehq/lattice/internal/modules"
)

func TestNativeModuleRegister(t *testing.T) {
	m := modules.NewNativeModule()

	handler := func(ctx context.Context, bundle *broker.Context, params map[string]interface{}) (interface{}, error) {
		return "ok", nil
	}

	require.NoError(t, m.Register("get_output_stats", handler))
	assert.Error(t, m.Register("get_output_stats", handler), "duplicate registration")
	assert.Error(t, m.Register("", handler), "empty name")
	assert.Error(t, m.Register("nil_handler", nil))

	assert.True(t, m.Has("get_output_stats"))
	assert.False(t, m.Has("ghost"))
}

func TestNativeModuleCall(t *testing.T) {
	m := modules.NewNativeModule()
	require.NoError(t, m.Register("double", func(ctx context.Context, bundle *broker.Context, params map[string]interface{}) (interface{}, error) {
		n := params["n"].(int)
		return n * 2, nil
	}))

	result, err := m.Call(context.Background(), "double", nil, map[string]interface{}{"n": 21})
	require.NoError(t, err)
	assert.Equal(t, 42, result)

	_, err = m.Call(context.Background(), "ghost", nil, nil)
	assert.Error(t, err)
}
