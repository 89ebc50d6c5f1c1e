package platform

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFilterByVisibility(t *testing.T) {
	funcs := []Function{
		{ID: "fn-1", Name: "alpha", IsPublic: false},
		{ID: "fn-2", Name: "beta", IsPublic: true},
		{ID: "fn-3", Name: "gamma", IsPublic: false},
	}

	assert.Len(t, FilterByVisibility(funcs, TabAll), 3)

	personal := FilterByVisibility(funcs, TabPersonal)
	require.Len(t, personal, 2)
	assert.Equal(t, "alpha", personal[0].Name)
	assert.Equal(t, "gamma", personal[1].Name)

	public := FilterByVisibility(funcs, TabPublic)
	require.Len(t, public, 1)
	assert.Equal(t, "beta", public[0].Name)
}

func TestSearchFunctions(t *testing.T) {
	funcs := []Function{
		{Name: "Fetch Weather", Description: "gets the forecast"},
		{Name: "Hello World", Description: "greets"},
	}

	assert.Len(t, SearchFunctions(funcs, ""), 2)
	assert.Len(t, SearchFunctions(funcs, "  "), 2)

	got := SearchFunctions(funcs, "WEATHER")
	require.Len(t, got, 1)
	assert.Equal(t, "Fetch Weather", got[0].Name)

	got = SearchFunctions(funcs, "forecast")
	require.Len(t, got, 1)

	assert.Empty(t, SearchFunctions(funcs, "nothing"))
}

func TestSearchExecutions(t *testing.T) {
	records := []Execution{
		{ID: "exec-1", FunctionName: "Fetch Weather"},
		{ID: "exec-2", FunctionName: "Hello World"},
	}

	got := SearchExecutions(records, "hello")
	require.Len(t, got, 1)
	assert.Equal(t, "exec-2", got[0].ID)
	assert.Len(t, SearchExecutions(records, ""), 2)
}

func TestDefaultFunctionsShape(t *testing.T) {
	defaults := DefaultFunctions()
	require.Len(t, defaults, 2)

	assert.Equal(t, "Hello World (Public)", defaults[0].Name)
	assert.True(t, defaults[0].IsPublic)
	assert.Equal(t, "python", defaults[0].Language)
	assert.Contains(t, defaults[0].Code, "print('Hello, World!')")

	assert.Equal(t, "Hello World (Private)", defaults[1].Name)
	assert.False(t, defaults[1].IsPublic)
	assert.Contains(t, defaults[1].Code, "(Private)")

	for _, d := range defaults {
		assert.False(t, d.Persisted(), "defaults are drafts until created")
	}
}

func TestRejectedErrorMessage(t *testing.T) {
	assert.Equal(t, "chat rejected by server", (&RejectedError{Op: "chat"}).Error())
	assert.Equal(t, "chat rejected by server: busy", (&RejectedError{Op: "chat", Message: "busy"}).Error())
}
