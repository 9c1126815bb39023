package gateway

import (
	"encoding/json"
	"testing"

	"chartdesk/internal/chart"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func fillQueue(c *Client) {
	for i := 0; i < cap(c.send); i++ {
		c.enqueue([]byte(`{"type":"STATUS"}`))
	}
}

func drain(c *Client) int {
	n := 0
	for len(c.send) > 0 {
		<-c.send
		n++
	}
	return n
}

func heldData(t *testing.T, c *Client) []SetDataMsg {
	t.Helper()
	var out []SetDataMsg
	for _, raw := range c.takeHeld() {
		var m SetDataMsg
		require.NoError(t, json.Unmarshal(raw, &m))
		out = append(out, m)
	}
	return out
}

func TestSetData_FullQueueKeepsNewestPerSink(t *testing.T) {
	c := newClient(NewHub(HubConfig{}), nil, "")
	prim := c.NewSink(chart.SinkSpec{ID: "primary", Pane: "main", Kind: chart.KindLine})
	rsi := c.NewSink(chart.SinkSpec{ID: "rsi:rsi", Pane: "rsi", Kind: chart.KindLine})

	fillQueue(c)
	require.NoError(t, prim.SetData([]int{1}))
	require.NoError(t, prim.SetData([]int{1, 2}))
	require.NoError(t, rsi.SetData([]int{7}))

	assert.Equal(t, cap(c.send), drain(c))
	held := heldData(t, c)
	require.Len(t, held, 2)
	bySink := map[string]any{}
	for _, m := range held {
		bySink[m.ID] = m.Data
	}
	assert.Equal(t, []any{1.0, 2.0}, bySink["primary"])
	assert.Equal(t, []any{7.0}, bySink["rsi:rsi"])
	assert.Empty(t, c.takeHeld(), "held frames are handed out once")
}

func TestSetData_QueuedFrameSupersedesHeld(t *testing.T) {
	c := newClient(NewHub(HubConfig{}), nil, "")
	s := c.NewSink(chart.SinkSpec{ID: "primary", Pane: "main", Kind: chart.KindLine})

	fillQueue(c)
	require.NoError(t, s.SetData([]int{1}))
	drain(c)

	// the next push fits and is newer than the held frame
	require.NoError(t, s.SetData([]int{2}))
	assert.Empty(t, c.takeHeld())
	assert.Equal(t, 1, drain(c))
}

func TestDispose_DropsHeldFrame(t *testing.T) {
	c := newClient(NewHub(HubConfig{}), nil, "")
	s := c.NewSink(chart.SinkSpec{ID: "sma20", Pane: "main", Kind: chart.KindLine})

	fillQueue(c)
	require.NoError(t, s.SetData([]int{1}))
	s.Dispose()
	assert.Empty(t, c.takeHeld())
	assert.ErrorIs(t, s.SetData([]int{2}), chart.ErrDisposed)
}
