package graph

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func parentNext(parents map[string]string) Next[string] {
	return func(cur string) (string, Step) {
		p, ok := parents[cur]
		if !ok {
			return "", Miss
		}
		if p == cur {
			return "", Terminal
		}
		return p, Continue
	}
}

func identity(s string) string { return s }

func TestWalk(t *testing.T) {
	t.Run("terminates on self-parented node", func(t *testing.T) {
		p := Walk("A", identity, parentNext(map[string]string{"A": "B", "B": "C", "C": "C"}), 14)
		assert.Equal(t, StopTerminal, p.Reason)
		assert.Equal(t, []string{"A", "B", "C"}, p.Nodes)
		assert.Equal(t, "C", p.Last())
		assert.Equal(t, 2, p.Hops())
	})

	t.Run("detects cycles longer than three", func(t *testing.T) {
		parents := map[string]string{"A": "B", "B": "C", "C": "D", "D": "E", "E": "B"}
		p := Walk("A", identity, parentNext(parents), 14)
		require.Equal(t, StopCycle, p.Reason)
		assert.Equal(t, 1, p.CycleStart)
		assert.Equal(t, "B", p.Last())
	})

	t.Run("start node in the cycle", func(t *testing.T) {
		p := Walk("A", identity, parentNext(map[string]string{"A": "B", "B": "A"}), 14)
		require.Equal(t, StopCycle, p.Reason)
		assert.Equal(t, 0, p.CycleStart)
		assert.Equal(t, []string{"A", "B", "A"}, p.Nodes)
	})

	t.Run("hop limit", func(t *testing.T) {
		parents := map[string]string{"A": "B", "B": "C", "C": "D", "D": "D"}
		p := Walk("A", identity, parentNext(parents), 2)
		assert.Equal(t, StopHopLimit, p.Reason)
		assert.Equal(t, []string{"A", "B", "C"}, p.Nodes)
	})

	t.Run("lookup miss keeps the path so far", func(t *testing.T) {
		p := Walk("A", identity, parentNext(map[string]string{"A": "B"}), 14)
		assert.Equal(t, StopMiss, p.Reason)
		assert.Equal(t, []string{"A", "B"}, p.Nodes)
	})

	t.Run("no hop", func(t *testing.T) {
		p := Walk("A", identity, func(string) (string, Step) { return "", NoHop }, 14)
		assert.Equal(t, StopNoHop, p.Reason)
		assert.Equal(t, 0, p.Hops())
	})
}

func TestStopReasonString(t *testing.T) {
	assert.Equal(t, "cycle", StopCycle.String())
	assert.Equal(t, "hop_limit", StopHopLimit.String())
	assert.Equal(t, "unknown", StopReason(42).String())
}
