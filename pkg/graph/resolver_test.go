package graph_test

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/Dijital-Vizyon/flowforge-nexus/pkg/graph"
)

func TestDetectCycle(t *testing.T) {
	t.Run("LinearChainIsAcyclic", func(t *testing.T) {
		nodes := []graph.Node{
			{ID: "step1", Next: []string{"step2"}},
			{ID: "step2", Next: []string{"step3"}},
			{ID: "step3"},
		}
		cyclic, participants := graph.DetectCycle(nodes)
		assert.False(t, cyclic)
		assert.Empty(t, participants)
	})

	t.Run("BackEdgeIsReported", func(t *testing.T) {
		nodes := []graph.Node{
			{ID: "step1", Next: []string{"step2"}},
			{ID: "step2", Next: []string{"step1"}},
		}
		cyclic, participants := graph.DetectCycle(nodes)
		assert.True(t, cyclic)
		assert.NotEmpty(t, participants, "at least one participant must be identified")
		assert.Subset(t, []string{"step1", "step2"}, participants)
	})

	t.Run("SelfLoop", func(t *testing.T) {
		nodes := []graph.Node{{ID: "a", Next: []string{"a"}}}
		cyclic, participants := graph.DetectCycle(nodes)
		assert.True(t, cyclic)
		assert.Contains(t, participants, "a")
	})

	t.Run("DependencyParallelToNextIsNotACycle", func(t *testing.T) {
		// the common valid shape: prepare runs before finalize via next, and
		// finalize also declares prepare as a prerequisite
		nodes := []graph.Node{
			{ID: "prepare", Next: []string{"finalize"}},
			{ID: "finalize", Dependencies: []string{"prepare"}},
		}
		cyclic, _ := graph.DetectCycle(nodes)
		assert.False(t, cyclic)
	})

	t.Run("ContradictoryDependencyIsACycle", func(t *testing.T) {
		// a runs before b via next, yet a also requires b to have run first
		nodes := []graph.Node{
			{ID: "a", Next: []string{"b"}, Dependencies: []string{"b"}},
			{ID: "b"},
		}
		cyclic, participants := graph.DetectCycle(nodes)
		assert.True(t, cyclic)
		assert.Equal(t, []string{"a", "b"}, participants)
	})

	t.Run("CycleThroughDependencies", func(t *testing.T) {
		nodes := []graph.Node{
			{ID: "a", Next: []string{"b"}},
			{ID: "b"},
			{ID: "c", Next: []string{"a"}, Dependencies: []string{"b"}},
		}
		cyclic, participants := graph.DetectCycle(nodes)
		assert.True(t, cyclic)
		assert.NotEmpty(t, participants)
	})

	t.Run("DiamondIsAcyclic", func(t *testing.T) {
		nodes := []graph.Node{
			{ID: "a", Next: []string{"b", "c"}},
			{ID: "b", Next: []string{"d"}},
			{ID: "c", Next: []string{"d"}},
			{ID: "d"},
		}
		cyclic, _ := graph.DetectCycle(nodes)
		assert.False(t, cyclic)
	})

	t.Run("DeterministicAcrossRuns", func(t *testing.T) {
		nodes := []graph.Node{
			{ID: "x", Next: []string{"y"}},
			{ID: "y", Next: []string{"z"}},
			{ID: "z", Next: []string{"x"}},
		}
		first, firstIDs := graph.DetectCycle(nodes)
		for i := 0; i < 20; i++ {
			again, ids := graph.DetectCycle(nodes)
			assert.Equal(t, first, again)
			assert.Equal(t, firstIDs, ids)
		}
	})
}

func TestValidateReferences(t *testing.T) {
	nodes := []graph.Node{
		{ID: "a", Next: []string{"b", "ghost"}, ErrorHandler: "phantom"},
		{ID: "b", Dependencies: []string{"a", "missing"}},
	}
	dangling := graph.ValidateReferences(nodes)
	assert.Equal(t, []string{"ghost", "missing", "phantom"}, dangling)

	assert.Nil(t, graph.ValidateReferences([]graph.Node{
		{ID: "a", Next: []string{"b"}},
		{ID: "b"},
	}))
}

func TestOrphans(t *testing.T) {
	t.Run("UnreferencedStepIsOrphaned", func(t *testing.T) {
		nodes := []graph.Node{
			{ID: "step1", Next: []string{"step2"}},
			{ID: "step2"},
			{ID: "floating"},
		}
		orphans := graph.Orphans(nodes, []string{"step1"})
		assert.Equal(t, []string{"floating"}, orphans)
	})

	t.Run("EveryReferencedStepExcluded", func(t *testing.T) {
		nodes := []graph.Node{
			{ID: "a", Next: []string{"b"}, ErrorHandler: "handler"},
			{ID: "b", Dependencies: []string{"dep"}},
			{ID: "dep"},
			{ID: "handler"},
		}
		assert.Empty(t, graph.Orphans(nodes, []string{"a"}))
	})

	t.Run("DeclaringDependenciesDoesNotAnchorAStep", func(t *testing.T) {
		// nothing points at c, so the walk can never reach it, no matter
		// what c itself requires
		nodes := []graph.Node{
			{ID: "a", Next: []string{"b"}},
			{ID: "b"},
			{ID: "c", Dependencies: []string{"a"}},
		}
		assert.Equal(t, []string{"c"}, graph.Orphans(nodes, []string{"a"}))
	})

	t.Run("EntryPointIsNotOrphaned", func(t *testing.T) {
		nodes := []graph.Node{{ID: "only"}}
		assert.Empty(t, graph.Orphans(nodes, []string{"only"}))
		assert.Equal(t, []string{"only"}, graph.Orphans(nodes, nil))
	})
}

func TestEntryPoints(t *testing.T) {
	t.Run("RootsWithSuccessors", func(t *testing.T) {
		nodes := []graph.Node{
			{ID: "step1", Next: []string{"step2"}},
			{ID: "step2", Next: []string{"step3"}},
			{ID: "step3"},
		}
		assert.Equal(t, []string{"step1"}, graph.EntryPoints(nodes))
	})

	t.Run("IsolatedNodeIsNotAnEntryPoint", func(t *testing.T) {
		nodes := []graph.Node{
			{ID: "a", Next: []string{"b"}},
			{ID: "b"},
			{ID: "floating"},
		}
		assert.Equal(t, []string{"a"}, graph.EntryPoints(nodes))
	})

	t.Run("SingleStepGraph", func(t *testing.T) {
		assert.Equal(t, []string{"solo"}, graph.EntryPoints([]graph.Node{{ID: "solo"}}))
	})

	t.Run("DependencyRootIsExcluded", func(t *testing.T) {
		nodes := []graph.Node{
			{ID: "a", Next: []string{"b"}},
			{ID: "b", Dependencies: []string{"a"}, Next: []string{"c"}},
			{ID: "c"},
		}
		assert.Equal(t, []string{"a"}, graph.EntryPoints(nodes))
	})
}

func TestReadySet(t *testing.T) {
	nodes := []graph.Node{
		{ID: "a"},
		{ID: "b", Dependencies: []string{"a"}},
		{ID: "c", Dependencies: []string{"a", "b"}},
	}

	t.Run("NothingCompleted", func(t *testing.T) {
		ready := graph.ReadySet(nodes, []string{"a", "b", "c"}, map[string]bool{})
		assert.Equal(t, []string{"a"}, ready)
	})

	t.Run("PartialCompletion", func(t *testing.T) {
		ready := graph.ReadySet(nodes, []string{"b", "c"}, map[string]bool{"a": true})
		assert.Equal(t, []string{"b"}, ready)
	})

	t.Run("CompletedStepsExcluded", func(t *testing.T) {
		ready := graph.ReadySet(nodes, []string{"a", "b", "c"}, map[string]bool{"a": true, "b": true})
		assert.Equal(t, []string{"c"}, ready)
	})

	t.Run("UnknownCandidateIgnored", func(t *testing.T) {
		ready := graph.ReadySet(nodes, []string{"nope"}, map[string]bool{})
		assert.Empty(t, ready)
	})

	t.Run("PreservesCandidateOrder", func(t *testing.T) {
		flat := []graph.Node{{ID: "x"}, {ID: "y"}, {ID: "z"}}
		ready := graph.ReadySet(flat, []string{"z", "x", "y"}, map[string]bool{})
		assert.Equal(t, []string{"z", "x", "y"}, ready)
	})
}

func TestDependenciesMet(t *testing.T) {
	n := graph.Node{ID: "b", Dependencies: []string{"a", "c"}}
	assert.False(t, graph.DependenciesMet(n, map[string]bool{"a": true}))
	assert.True(t, graph.DependenciesMet(n, map[string]bool{"a": true, "c": true}))
	assert.True(t, graph.DependenciesMet(graph.Node{ID: "free"}, map[string]bool{}))
}
