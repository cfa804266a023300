package tools

import (
	"context"
	"encoding/json"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/mindpattern/voicegate/types"
)

// stubTool is a configurable test tool.
type stubTool struct {
	name    string
	params  map[string]Param
	execute func(ctx context.Context, args json.RawMessage) (string, error)
}

func (s *stubTool) Name() string               { return s.name }
func (s *stubTool) Description() string        { return "stub tool" }
func (s *stubTool) Parameters() map[string]Param { return s.params }

func (s *stubTool) Execute(ctx context.Context, args json.RawMessage) (string, error) {
	if s.execute != nil {
		return s.execute(ctx, args)
	}
	return "ok", nil
}

func TestRegistryRegisterAndGet(t *testing.T) {
	r := NewRegistry(zap.NewNop())
	tool := &stubTool{name: "echo"}

	require.NoError(t, r.Register(tool))
	assert.True(t, r.Has("echo"))
	assert.Equal(t, 1, r.Len())

	got, err := r.Get("echo")
	require.NoError(t, err)
	assert.Equal(t, tool, got)

	// Duplicate registration is rejected.
	assert.Error(t, r.Register(&stubTool{name: "echo"}))
}

func TestRegistryGetUnknown(t *testing.T) {
	r := NewRegistry(nil)
	_, err := r.Get("missing")
	require.Error(t, err)
	assert.Equal(t, types.ErrToolNotFound, types.GetErrorCode(err))
}

func TestRegistryUnregister(t *testing.T) {
	r := NewRegistry(nil)
	require.NoError(t, r.Register(&stubTool{name: "echo"}))
	require.NoError(t, r.Unregister("echo"))
	assert.False(t, r.Has("echo"))
	assert.Error(t, r.Unregister("echo"))
}

func TestBuildSchemaComputesRequired(t *testing.T) {
	tool := &stubTool{
		name: "lookup",
		params: map[string]Param{
			"query":  {Type: "string", Description: "search query"},
			"limit":  {Type: "integer", Optional: true},
			"source": {Type: "string"},
		},
	}

	schema := BuildSchema(tool)
	assert.Equal(t, "lookup", schema.Name)

	var decoded struct {
		Type       string           `json:"type"`
		Properties map[string]Param `json:"properties"`
		Required   []string         `json:"required"`
	}
	require.NoError(t, json.Unmarshal(schema.Parameters, &decoded))
	assert.Equal(t, "object", decoded.Type)
	assert.Len(t, decoded.Properties, 3)
	assert.Equal(t, []string{"query", "source"}, decoded.Required)
}

func TestRegistrySchemasOrderedByName(t *testing.T) {
	r := NewRegistry(nil)
	require.NoError(t, r.Register(&stubTool{name: "zeta"}))
	require.NoError(t, r.Register(&stubTool{name: "alpha"}))

	schemas := r.Schemas()
	require.Len(t, schemas, 2)
	assert.Equal(t, "alpha", schemas[0].Name)
	assert.Equal(t, "zeta", schemas[1].Name)
}

var errBoom = errors.New("boom")
