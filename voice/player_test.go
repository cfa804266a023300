package voice

import (
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func TestPlayer_FIFOOrder(t *testing.T) {
	p := NewPlayer(4, zap.NewNop())

	require.NoError(t, p.Enqueue(Clip{ID: "c1", Audio: []byte{1}}))
	require.NoError(t, p.Enqueue(Clip{ID: "c2", Audio: []byte{2}}))
	assert.Equal(t, 2, p.Len())

	clip, ok := p.Next()
	require.True(t, ok)
	assert.Equal(t, "c1", clip.ID)
	assert.Equal(t, "c1", p.Playing())

	clip, ok = p.Next()
	require.True(t, ok)
	assert.Equal(t, "c2", clip.ID)

	_, ok = p.Next()
	assert.False(t, ok)
}

func TestPlayer_QueueFull(t *testing.T) {
	p := NewPlayer(2, zap.NewNop())

	require.NoError(t, p.Enqueue(Clip{ID: "c1"}))
	require.NoError(t, p.Enqueue(Clip{ID: "c2"}))

	err := p.Enqueue(Clip{ID: "c3"})
	assert.ErrorIs(t, err, ErrQueueFull)
	assert.Equal(t, 2, p.Len())
}

func TestPlayer_Clear(t *testing.T) {
	p := NewPlayer(4, zap.NewNop())

	require.NoError(t, p.Enqueue(Clip{ID: "c1"}))
	_, ok := p.Next()
	require.True(t, ok)

	require.NoError(t, p.Enqueue(Clip{ID: "c2"}))
	require.NoError(t, p.Enqueue(Clip{ID: "c3"}))

	assert.Equal(t, 2, p.Clear())
	assert.Equal(t, 0, p.Len())
	// The in-flight clip already started; Clear does not stop it.
	assert.Equal(t, "c1", p.Playing())
}

func TestPlayer_FinishClearsCurrent(t *testing.T) {
	p := NewPlayer(4, zap.NewNop())

	require.NoError(t, p.Enqueue(Clip{ID: "c1"}))
	_, ok := p.Next()
	require.True(t, ok)

	p.Finish("c1")
	assert.Equal(t, "", p.Playing())
}

func TestPlayer_FinishIgnoresStaleClip(t *testing.T) {
	p := NewPlayer(4, zap.NewNop())

	require.NoError(t, p.Enqueue(Clip{ID: "c1"}))
	_, ok := p.Next()
	require.True(t, ok)

	p.Finish("c0")
	assert.Equal(t, "c1", p.Playing())
}

func TestPlayer_PlayThroughAdvancesState(t *testing.T) {
	p := NewPlayer(1, zap.NewNop())

	for i := 0; i < 10; i++ {
		id := fmt.Sprintf("c%d", i)
		require.NoError(t, p.Enqueue(Clip{ID: id}))

		clip, ok := p.Next()
		require.True(t, ok)
		assert.Equal(t, id, clip.ID)
		assert.Equal(t, id, p.Playing())

		p.Finish(id)
		assert.Equal(t, "", p.Playing())
	}
	assert.Equal(t, 0, p.Len())
}
