package orchestra

import (
	"fmt"
	"math/rand/v2"
	"slices"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func reg(id string, priority Priority, deps ...string) Registration {
	return Registration{ID: id, Factory: nopFactory, Priority: priority, Dependencies: deps}
}

func computeOrder(t *testing.T, regs ...Registration) ([]string, error) {
	t.Helper()
	g, err := BuildGraph(regs)
	require.NoError(t, err)
	return g.ComputeOrder()
}

func TestComputeOrder(t *testing.T) {
	tests := []struct {
		name string
		regs []Registration
		want []string
	}{
		{
			name: "dependencies start first",
			regs: []Registration{
				reg("alert", PriorityNormal, "ai", "sys"),
				reg("ai", PriorityNormal, "sys"),
				reg("sys", PriorityNormal),
			},
			want: []string{"sys", "ai", "alert"},
		},
		{
			name: "ready managers start by priority",
			regs: []Registration{
				reg("a", PriorityNormal),
				reg("b", PriorityCritical),
				reg("c", PriorityHigh),
				reg("d", PriorityLow),
			},
			want: []string{"b", "c", "a", "d"},
		},
		{
			name: "equal priority keeps registration order",
			regs: []Registration{
				reg("z", PriorityNormal),
				reg("m", PriorityNormal),
				reg("a", PriorityNormal),
			},
			want: []string{"z", "m", "a"},
		},
		{
			name: "priority never overrides a dependency",
			regs: []Registration{
				reg("low", PriorityLow),
				reg("critical", PriorityCritical, "low"),
				reg("normal", PriorityNormal),
			},
			want: []string{"normal", "low", "critical"},
		},
		{
			name: "newly ready managers compete with waiting ones",
			regs: []Registration{
				reg("base", PriorityCritical),
				reg("plain", PriorityNormal),
				reg("urgent", PriorityHigh, "base"),
			},
			want: []string{"base", "urgent", "plain"},
		},
		{
			name: "empty registry",
			regs: nil,
			want: []string{},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			order, err := computeOrder(t, tt.regs...)
			require.NoError(t, err)
			assert.Equal(t, tt.want, order)
		})
	}
}

func TestComputeOrder_CircularDependency(t *testing.T) {
	t.Run("two-node cycle", func(t *testing.T) {
		_, err := computeOrder(t,
			reg("a", PriorityNormal, "b"),
			reg("b", PriorityNormal, "a"),
			reg("c", PriorityNormal),
		)
		var cycleErr *CircularDependencyError
		require.ErrorAs(t, err, &cycleErr)
		assert.ErrorIs(t, err, ErrCircularDependency)
		assert.Equal(t, []string{"a", "b"}, cycleErr.Unresolved)
		assert.Equal(t, []string{"a", "b", "a"}, cycleErr.Cycle)
		assert.Contains(t, err.Error(), "cycle: a -> b -> a")
	})

	t.Run("managers behind a cycle are unresolved too", func(t *testing.T) {
		_, err := computeOrder(t,
			reg("d", PriorityNormal, "a"),
			reg("a", PriorityNormal, "b"),
			reg("b", PriorityNormal, "c"),
			reg("c", PriorityNormal, "a"),
		)
		var cycleErr *CircularDependencyError
		require.ErrorAs(t, err, &cycleErr)
		assert.Equal(t, []string{"d", "a", "b", "c"}, cycleErr.Unresolved)
		assert.Equal(t, []string{"a", "b", "c", "a"}, cycleErr.Cycle)
	})
}

func TestBuildGraph(t *testing.T) {
	t.Run("edges point from dependency to dependent", func(t *testing.T) {
		g, err := BuildGraph([]Registration{
			reg("sys", PriorityNormal),
			reg("ai", PriorityNormal, "sys"),
			reg("alert", PriorityNormal, "sys", "ai"),
		})
		require.NoError(t, err)

		assert.Len(t, g.Nodes, 3)
		assert.Equal(t, 3, g.Size())
		assert.Contains(t, g.Edges, DependencyEdge{From: "sys", To: "ai"})
		assert.Equal(t, []string{"ai", "alert"}, g.Nodes["sys"].Dependents)
		assert.Equal(t, 2, g.Nodes["alert"].Index)
	})

	t.Run("unknown dependency", func(t *testing.T) {
		_, err := BuildGraph([]Registration{reg("api", PriorityNormal, "auth")})
		var unknown *UnknownDependencyError
		require.ErrorAs(t, err, &unknown)
		assert.Equal(t, "api", unknown.ManagerID)
		assert.Equal(t, "auth", unknown.DependencyID)
		assert.ErrorIs(t, err, ErrUnknownDependency)
	})
}

// Random acyclic registrations always produce a permutation in which every
// dependency precedes its dependents.
func TestComputeOrder_RandomAcyclicGraphs(t *testing.T) {
	rng := rand.New(rand.NewPCG(7, 11))

	for round := range 50 {
		n := 1 + rng.IntN(25)
		ids := make([]string, n)
		for i := range ids {
			ids[i] = fmt.Sprintf("m%02d", i)
		}

		// Dependencies only point at lower indices, then registration order
		// is shuffled.
		regs := make([]Registration, n)
		for i := range n {
			var deps []string
			for j := range i {
				if rng.IntN(4) == 0 {
					deps = append(deps, ids[j])
				}
			}
			regs[i] = reg(ids[i], Priority(rng.IntN(4)-1), deps...)
		}
		rng.Shuffle(n, func(i, j int) { regs[i], regs[j] = regs[j], regs[i] })

		order, err := computeOrder(t, regs...)
		require.NoError(t, err, "round %d", round)
		require.Len(t, order, n)

		sorted := slices.Clone(order)
		slices.Sort(sorted)
		require.Equal(t, ids, sorted, "order must be a permutation")

		position := make(map[string]int, n)
		for i, id := range order {
			position[id] = i
		}
		for _, r := range regs {
			for _, dep := range r.Dependencies {
				assert.Less(t, position[dep], position[r.ID], "round %d: %s before %s", round, dep, r.ID)
			}
		}
	}
}
