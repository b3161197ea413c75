package orchestra

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestConsolidationReport(t *testing.T) {
	o := newTestOrchestrator(t)
	require.NoError(t, o.Register(Registration{ID: "sys", Factory: nopFactory}))
	require.NoError(t, o.Register(Registration{ID: "ai", Factory: nopFactory, Dependencies: []string{"sys"}, Category: CategorySpecialized}))
	require.NoError(t, o.Register(Registration{ID: "alert", Factory: nopFactory, Dependencies: []string{"sys", "ai"}, Category: CategoryExtended}))

	report := o.ConsolidationReport()
	assert.Equal(t, 3, report.RegistrationCount)
	assert.Equal(t, 3, report.GraphNodes)
	assert.Equal(t, 3, report.GraphEdges)
	assert.Equal(t, []string{"sys", "ai", "alert"}, report.StartupOrder)
	assert.Empty(t, report.OrderError)
	assert.Equal(t, map[Category]int{CategoryCore: 1, CategorySpecialized: 1, CategoryExtended: 1}, report.Categories)
	assert.False(t, report.Running)

	require.NoError(t, o.Start(context.Background()))
	assert.True(t, o.ConsolidationReport().Running)
}

func TestConsolidationReport_UnresolvableGraph(t *testing.T) {
	t.Run("cycle", func(t *testing.T) {
		o := newTestOrchestrator(t)
		require.NoError(t, o.Register(Registration{ID: "a", Factory: nopFactory, Dependencies: []string{"b"}}))
		require.NoError(t, o.Register(Registration{ID: "b", Factory: nopFactory, Dependencies: []string{"a"}}))

		report := o.ConsolidationReport()
		assert.Equal(t, 2, report.GraphNodes)
		assert.Equal(t, 2, report.GraphEdges)
		assert.NotNil(t, report.StartupOrder)
		assert.Empty(t, report.StartupOrder)
		assert.Contains(t, report.OrderError, "circular dependency")
	})

	t.Run("unknown dependency", func(t *testing.T) {
		o := newTestOrchestrator(t)
		require.NoError(t, o.Register(Registration{ID: "api", Factory: nopFactory, Dependencies: []string{"auth"}}))

		report := o.ConsolidationReport()
		assert.Equal(t, 1, report.RegistrationCount)
		assert.Equal(t, 0, report.GraphNodes)
		assert.Contains(t, report.OrderError, "auth")
	})
}

func TestQueries(t *testing.T) {
	o := newTestOrchestrator(t)
	require.NoError(t, o.Register(Registration{ID: "cache", Factory: nopFactory, Category: CategoryExtended, Version: "2.1.0"}))
	require.NoError(t, o.Register(Registration{ID: "db", Factory: nopFactory}))

	_, err := o.ManagerStatus("missing")
	assert.ErrorIs(t, err, ErrManagerNotFound)

	extended := o.ManagersByCategory(CategoryExtended)
	require.Contains(t, extended, "cache")
	assert.Equal(t, "2.1.0", extended["cache"].Version)
	assert.Empty(t, o.ManagersByCategory(Category("unknown")))

	order, err := o.ComputeOrder()
	require.NoError(t, err)
	assert.Equal(t, []string{"cache", "db"}, order)

	graph, err := o.DependencyGraph()
	require.NoError(t, err)
	assert.Equal(t, 0, graph.Size())

	infos := o.Managers()
	require.Len(t, infos, 2)
	infos[0].Version = "mutated"
	info, err := o.Manager("cache")
	require.NoError(t, err)
	assert.Equal(t, "2.1.0", info.Version)
}
