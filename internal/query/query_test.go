package query

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sdv-broker/databroker/internal/broker"
	"github.com/sdv-broker/databroker/internal/brokererr"
)

func testResolver() Resolver {
	table := map[string]struct {
		id   broker.ID
		kind broker.Kind
	}{
		"Vehicle.Speed":           {1, broker.KindFloat},
		"Vehicle.Cabin.DoorCount": {2, broker.KindUint8},
		"Vehicle.IsMoving":        {3, broker.KindBool},
		"Vehicle.Name":            {4, broker.KindString},
	}
	return func(path string) (broker.ID, broker.Kind, bool) {
		e, ok := table[path]
		return e.id, e.kind, ok
	}
}

func TestCompileProjectionOnly(t *testing.T) {
	cq, err := Compile("SELECT Vehicle.Speed, Vehicle.IsMoving", testResolver())
	require.NoError(t, err)
	require.Len(t, cq.Projection, 2)
	assert.ElementsMatch(t, []broker.ID{1, 3}, cq.ReferencedIDs())
}

func TestCompileWithWhereClause(t *testing.T) {
	cq, err := Compile(`SELECT Vehicle.Speed WHERE Vehicle.IsMoving = true`, testResolver())
	require.NoError(t, err)
	require.NotNil(t, cq.Where)
	assert.ElementsMatch(t, []broker.ID{1, 3}, cq.ReferencedIDs())
}

func TestCompileRejectsMalformedQuery(t *testing.T) {
	_, err := Compile("not a query", testResolver())
	require.Error(t, err)
	assert.Equal(t, brokererr.CompilationError, brokererr.CodeOf(err))
}

func TestCompileRejectsEmptyProjectedPath(t *testing.T) {
	_, err := Compile("SELECT Vehicle.Speed, ", testResolver())
	require.Error(t, err)
	assert.Equal(t, brokererr.CompilationError, brokererr.CodeOf(err))
}

func TestCompileRejectsUnknownPath(t *testing.T) {
	_, err := Compile("SELECT Vehicle.DoesNotExist", testResolver())
	require.Error(t, err)
	assert.Equal(t, brokererr.CompilationError, brokererr.CodeOf(err))
}

func TestCompileRejectsMalformedWhereClause(t *testing.T) {
	_, err := Compile("SELECT Vehicle.Speed WHERE this is nonsense", testResolver())
	require.Error(t, err)
	assert.Equal(t, brokererr.CompilationError, brokererr.CodeOf(err))
}

func TestCompileRejectsWhereLiteralThatDoesNotFitType(t *testing.T) {
	_, err := Compile(`SELECT Vehicle.Speed WHERE Vehicle.IsMoving = "not-a-bool"`, testResolver())
	require.Error(t, err)
	assert.Equal(t, brokererr.CompilationError, brokererr.CodeOf(err))
}

func TestExecuteProjectionOnlyReturnsAllFields(t *testing.T) {
	cq, err := Compile("SELECT Vehicle.Speed, Vehicle.Cabin.DoorCount", testResolver())
	require.NoError(t, err)

	values := map[broker.ID]broker.Value{
		1: broker.FloatValue(55.5),
		2: broker.Uint8Value(4),
	}
	fields, ok, err := cq.Execute(func(id broker.ID) (broker.Value, error) { return values[id], nil })
	require.NoError(t, err)
	require.True(t, ok)
	require.Len(t, fields, 2)
	assert.Equal(t, "Vehicle.Speed", fields[0].Path)
	assert.True(t, fields[0].Value.Equals(broker.FloatValue(55.5)))
}

func TestExecuteWhereClauseFiltersRow(t *testing.T) {
	cq, err := Compile("SELECT Vehicle.Speed WHERE Vehicle.IsMoving = true", testResolver())
	require.NoError(t, err)

	t.Run("MatchingConditionYieldsRow", func(t *testing.T) {
		values := map[broker.ID]broker.Value{1: broker.FloatValue(10), 3: broker.BoolValue(true)}
		_, ok, err := cq.Execute(func(id broker.ID) (broker.Value, error) { return values[id], nil })
		require.NoError(t, err)
		assert.True(t, ok)
	})

	t.Run("NonMatchingConditionSuppressesRow", func(t *testing.T) {
		values := map[broker.ID]broker.Value{1: broker.FloatValue(10), 3: broker.BoolValue(false)}
		_, ok, err := cq.Execute(func(id broker.ID) (broker.Value, error) { return values[id], nil })
		require.NoError(t, err)
		assert.False(t, ok)
	})

	t.Run("NotAvailableConditionValueNeverMatches", func(t *testing.T) {
		_, ok, err := cq.Execute(func(id broker.ID) (broker.Value, error) { return broker.NotAvailable, nil })
		require.NoError(t, err)
		assert.False(t, ok)
	})
}

func TestExecuteLookupErrorSubstitutesNotAvailable(t *testing.T) {
	cq, err := Compile("SELECT Vehicle.Speed", testResolver())
	require.NoError(t, err)

	fields, ok, err := cq.Execute(func(id broker.ID) (broker.Value, error) {
		return broker.Value{}, assert.AnError
	})
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, broker.KindNotAvailable, fields[0].Value.Kind)
}

func TestEvalConditionOperators(t *testing.T) {
	tests := []struct {
		op   Op
		v    broker.Value
		lit  string
		want bool
	}{
		{OpEq, broker.Int32Value(5), "5", true},
		{OpNe, broker.Int32Value(5), "6", true},
		{OpLt, broker.Int32Value(5), "6", true},
		{OpLe, broker.Int32Value(5), "5", true},
		{OpGt, broker.Int32Value(6), "5", true},
		{OpGe, broker.Int32Value(5), "5", true},
		{OpGt, broker.Int32Value(5), "5", false},
	}
	for _, tt := range tests {
		got, err := evalCondition(tt.op, tt.v, tt.lit)
		require.NoError(t, err)
		assert.Equal(t, tt.want, got)
	}
}
