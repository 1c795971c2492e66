package routing_test

import (
	"context"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/northbound/deptqa/internal/routing"
)

type fakeLLM struct {
	json string
	err  error
}

func (f fakeLLM) Complete(ctx context.Context, systemPrompt, userPrompt string) (string, error) {
	return f.json, f.err
}

func (f fakeLLM) CompleteJSON(ctx context.Context, systemPrompt, userPrompt string) (string, error) {
	return f.json, f.err
}

func TestRouteAcceptsWellFormedResponse(t *testing.T) {
	llm := fakeLLM{json: `{
		"is_business": true, "business_confidence": 0.9,
		"primary_department": "hr", "department_confidence": 0.8,
		"secondary_departments": ["legal"],
		"needs_clarification": false, "clarifying_question": ""
	}`}
	c := routing.New(llm, slog.Default())

	result := c.Route(context.Background(), "What's our parental leave policy?", []string{"hr", "legal", "it"}, "")
	assert.True(t, result.IsBusiness)
	assert.Equal(t, "hr", result.PrimaryDepartment)
	assert.Equal(t, []string{"legal"}, result.SecondaryDepartments)
	assert.False(t, result.NeedsClarification)
}

func TestRouteFallsBackToSafeDefaultOnProviderError(t *testing.T) {
	llm := fakeLLM{err: assertError{}}
	c := routing.New(llm, slog.Default())

	result := c.Route(context.Background(), "something", []string{"hr"}, "")
	assert.True(t, result.IsBusiness)
	assert.Equal(t, routing.UnknownDepartment, result.PrimaryDepartment)
	assert.True(t, result.NeedsClarification)
}

func TestRouteFallsBackOnMalformedJSON(t *testing.T) {
	llm := fakeLLM{json: "not json"}
	c := routing.New(llm, slog.Default())

	result := c.Route(context.Background(), "something", []string{"hr"}, "")
	assert.Equal(t, routing.UnknownDepartment, result.PrimaryDepartment)
	assert.True(t, result.NeedsClarification)
}

func TestRouteRejectsUnknownDepartmentCode(t *testing.T) {
	llm := fakeLLM{json: `{
		"is_business": true, "business_confidence": 0.9,
		"primary_department": "marketing", "department_confidence": 0.8,
		"secondary_departments": [],
		"needs_clarification": false, "clarifying_question": ""
	}`}
	c := routing.New(llm, slog.Default())

	result := c.Route(context.Background(), "something", []string{"hr", "legal"}, "")
	require.True(t, result.NeedsClarification)
	assert.Equal(t, routing.UnknownDepartment, result.PrimaryDepartment)
}

func TestRouteFiltersSecondaryDepartmentsToKnownCodes(t *testing.T) {
	llm := fakeLLM{json: `{
		"is_business": true, "business_confidence": 0.9,
		"primary_department": "hr", "department_confidence": 0.8,
		"secondary_departments": ["legal", "ghost", "hr"],
		"needs_clarification": false, "clarifying_question": ""
	}`}
	c := routing.New(llm, slog.Default())

	result := c.Route(context.Background(), "something", []string{"hr", "legal"}, "")
	assert.Equal(t, []string{"legal"}, result.SecondaryDepartments)
}

type assertError struct{}

func (assertError) Error() string { return "boom" }
