package services

import (
	"context"
	"math"
	"testing"

	"github.com/calcforest/calcforest/internal/apperr"
	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func strPtr(s string) *string { return &s }

func TestCreateRoot(t *testing.T) {
	f := newFixture(t)
	alice := f.register(t, "alice")

	node, err := f.calculations.CreateRoot(context.Background(), alice, 10)
	require.NoError(t, err)

	assert.NotEmpty(t, node.ID)
	assert.Nil(t, node.ParentID)
	assert.Nil(t, node.Operation)
	assert.Equal(t, 10.0, node.Operand)
	assert.Equal(t, node.Operand, node.Result)
	assert.Equal(t, "alice", node.Username)
	assert.Equal(t, alice.UserID, node.UserID)

	require.Len(t, f.broadcaster.events, 1)
	assert.Equal(t, EventCalculationCreated, f.broadcaster.events[0].eventType)
	assert.Equal(t, node, f.broadcaster.events[0].data)
}

func TestCreateRoot_RejectsNonFinite(t *testing.T) {
	f := newFixture(t)
	alice := f.register(t, "alice")

	for _, v := range []float64{math.NaN(), math.Inf(1), math.Inf(-1)} {
		_, err := f.calculations.CreateRoot(context.Background(), alice, v)
		require.Error(t, err)
		assert.Equal(t, "A valid number is required", apperr.From(err).Message)
	}
	assert.Empty(t, f.broadcaster.events)
}

func TestApplyOperation(t *testing.T) {
	f := newFixture(t)
	alice := f.register(t, "alice")
	bob := f.register(t, "bob")

	root, err := f.calculations.CreateRoot(context.Background(), alice, 7)
	require.NoError(t, err)

	node, err := f.calculations.ApplyOperation(context.Background(), bob, OperationInput{
		ParentID:  root.ID,
		Operation: "divide",
		Operand:   float(2),
	})
	require.NoError(t, err)

	assert.Equal(t, 3.5, node.Result)
	assert.Equal(t, 2.0, node.Operand)
	require.NotNil(t, node.ParentID)
	assert.Equal(t, root.ID, *node.ParentID)
	require.NotNil(t, node.Operation)
	assert.Equal(t, "divide", *node.Operation)
	assert.Equal(t, "bob", node.Username)

	stored, err := f.calculations.GetByID(context.Background(), node.ID)
	require.NoError(t, err)
	assert.Equal(t, node, stored)
}

func TestApplyOperation_Validation(t *testing.T) {
	f := newFixture(t)
	alice := f.register(t, "alice")
	root, err := f.calculations.CreateRoot(context.Background(), alice, 1)
	require.NoError(t, err)

	tests := []struct {
		name    string
		in      OperationInput
		message string
	}{
		{"missing parent", OperationInput{Operation: "add", Operand: float(1)}, "parentId is required"},
		{"unknown operation", OperationInput{ParentID: root.ID, Operation: "modulo", Operand: float(1)}, "Valid operation is required (add, subtract, multiply, divide)"},
		{"empty operation", OperationInput{ParentID: root.ID, Operand: float(1)}, "Valid operation is required (add, subtract, multiply, divide)"},
		{"missing operand", OperationInput{ParentID: root.ID, Operation: "add"}, "A valid operand number is required"},
		{"NaN operand", OperationInput{ParentID: root.ID, Operation: "add", Operand: float(math.NaN())}, "A valid operand number is required"},
		{"divide by zero", OperationInput{ParentID: root.ID, Operation: "divide", Operand: float(0)}, "Division by zero is not allowed"},
		{"divide by negative zero", OperationInput{ParentID: root.ID, Operation: "divide", Operand: float(math.Copysign(0, -1))}, "Division by zero is not allowed"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := f.calculations.ApplyOperation(context.Background(), alice, tt.in)
			require.Error(t, err)
			assert.True(t, apperr.Is(err, apperr.KindValidation))
			assert.Equal(t, tt.message, apperr.From(err).Message)
		})
	}
}

func TestApplyOperation_DivideByZeroBeforeParentLookup(t *testing.T) {
	f := newFixture(t)
	alice := f.register(t, "alice")

	// the parent does not exist, but the operand is checked first
	_, err := f.calculations.ApplyOperation(context.Background(), alice, OperationInput{
		ParentID:  "nonexistent-id",
		Operation: "divide",
		Operand:   float(0),
	})
	assert.True(t, apperr.Is(err, apperr.KindValidation))
}

func TestApplyOperation_ParentNotFound(t *testing.T) {
	f := newFixture(t)
	alice := f.register(t, "alice")

	_, err := f.calculations.ApplyOperation(context.Background(), alice, OperationInput{
		ParentID:  "nonexistent-id",
		Operation: "add",
		Operand:   float(1),
	})
	require.Error(t, err)
	assert.True(t, apperr.Is(err, apperr.KindNotFound))
	assert.Equal(t, "Parent calculation not found", apperr.From(err).Message)
}

func TestApplyOperation_RejectsOverflow(t *testing.T) {
	f := newFixture(t)
	alice := f.register(t, "alice")
	root, err := f.calculations.CreateRoot(context.Background(), alice, math.MaxFloat64)
	require.NoError(t, err)

	_, err = f.calculations.ApplyOperation(context.Background(), alice, OperationInput{
		ParentID:  root.ID,
		Operation: "multiply",
		Operand:   float(2),
	})
	assert.True(t, apperr.Is(err, apperr.KindValidation))
}

func TestGetByID_NotFound(t *testing.T) {
	f := newFixture(t)

	_, err := f.calculations.GetByID(context.Background(), "missing")
	require.Error(t, err)
	assert.True(t, apperr.Is(err, apperr.KindNotFound))
	assert.Equal(t, "Calculation not found", apperr.From(err).Message)
}

func TestListFlat_Empty(t *testing.T) {
	f := newFixture(t)

	nodes, err := f.calculations.ListFlat(context.Background())
	require.NoError(t, err)
	assert.NotNil(t, nodes)
	assert.Empty(t, nodes)

	trees, err := f.calculations.ListForest(context.Background())
	require.NoError(t, err)
	assert.NotNil(t, trees)
	assert.Empty(t, trees)
}

// buildSample creates two chains:
//
//	10 -> *5 -> -3
//	   -> +1
//	 4
func buildSample(t *testing.T, f *fixture) (Actor, []Node) {
	t.Helper()
	ctx := context.Background()
	alice := f.register(t, "alice")

	apply := func(parent Node, op string, operand float64) Node {
		n, err := f.calculations.ApplyOperation(ctx, alice, OperationInput{ParentID: parent.ID, Operation: op, Operand: float(operand)})
		require.NoError(t, err)
		return n
	}

	root, err := f.calculations.CreateRoot(ctx, alice, 10)
	require.NoError(t, err)
	times := apply(root, "multiply", 5)
	second, err := f.calculations.CreateRoot(ctx, alice, 4)
	require.NoError(t, err)
	plus := apply(root, "add", 1)
	minus := apply(times, "subtract", 3)

	return alice, []Node{root, times, second, plus, minus}
}

func TestListForest_Structure(t *testing.T) {
	f := newFixture(t)
	_, created := buildSample(t, f)
	root, times, second, plus, minus := created[0], created[1], created[2], created[3], created[4]

	trees, err := f.calculations.ListForest(context.Background())
	require.NoError(t, err)

	require.Len(t, trees, 2)
	assert.Equal(t, root.ID, trees[0].ID)
	assert.Equal(t, second.ID, trees[1].ID)
	assert.Empty(t, trees[1].Children)
	assert.NotNil(t, trees[1].Children)

	require.Len(t, trees[0].Children, 2)
	assert.Equal(t, times.ID, trees[0].Children[0].ID)
	assert.Equal(t, plus.ID, trees[0].Children[1].ID)
	assert.Equal(t, 50.0, trees[0].Children[0].Result)
	assert.Equal(t, 11.0, trees[0].Children[1].Result)

	require.Len(t, trees[0].Children[0].Children, 1)
	assert.Equal(t, minus.ID, trees[0].Children[0].Children[0].ID)
	assert.Equal(t, 47.0, trees[0].Children[0].Children[0].Result)
}

func TestListForest_SingleStoreRead(t *testing.T) {
	f := newFixture(t)
	buildSample(t, f)

	_, err := f.calculations.ListForest(context.Background())
	require.NoError(t, err)

	assert.Equal(t, 1, f.store.lists)
	assert.Equal(t, 0, f.store.gets)
}

func TestListForest_Idempotent(t *testing.T) {
	f := newFixture(t)
	buildSample(t, f)

	first, err := f.calculations.ListForest(context.Background())
	require.NoError(t, err)
	second, err := f.calculations.ListForest(context.Background())
	require.NoError(t, err)

	if diff := cmp.Diff(first, second); diff != "" {
		t.Errorf("forest changed between reads (-first +second):\n%s", diff)
	}
}

func TestListForest_SameNodesAsFlat(t *testing.T) {
	f := newFixture(t)
	buildSample(t, f)

	flat, err := f.calculations.ListFlat(context.Background())
	require.NoError(t, err)
	trees, err := f.calculations.ListForest(context.Background())
	require.NoError(t, err)

	var walked []Node
	var walk func([]*Tree)
	walk = func(ts []*Tree) {
		for _, tree := range ts {
			walked = append(walked, tree.Node)
			walk(tree.Children)
		}
	}
	walk(trees)

	assert.ElementsMatch(t, flat, walked)
}

func TestBuildForest_DropsOrphans(t *testing.T) {
	nodes := []Node{
		{ID: "a"},
		{ID: "b", ParentID: strPtr("a"), Operation: strPtr("add")},
		{ID: "orphan", ParentID: strPtr("missing"), Operation: strPtr("add")},
		{ID: "orphan-child", ParentID: strPtr("orphan"), Operation: strPtr("add")},
	}

	trees := BuildForest(nodes)

	require.Len(t, trees, 1)
	assert.Equal(t, "a", trees[0].ID)
	require.Len(t, trees[0].Children, 1)
	assert.Equal(t, "b", trees[0].Children[0].ID)
}

func TestBuildForest_ChildBeforeParentInInput(t *testing.T) {
	// every node is mapped before any link is made
	nodes := []Node{
		{ID: "child", ParentID: strPtr("root"), Operation: strPtr("add")},
		{ID: "root"},
	}

	trees := BuildForest(nodes)

	require.Len(t, trees, 1)
	require.Len(t, trees[0].Children, 1)
	assert.Equal(t, "child", trees[0].Children[0].ID)
}

func TestBuildForest_Empty(t *testing.T) {
	trees := BuildForest(nil)
	assert.NotNil(t, trees)
	assert.Empty(t, trees)
}
