// Copyright 2025 The cdmlint Authors
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package sqltemplate

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTemplate_Render_Substitution(t *testing.T) {
	tests := []struct {
		name     string
		template string
		ctx      Context
		expected string
	}{
		{
			name:     "single variable",
			template: "SELECT * FROM {{schema}}.person",
			ctx:      Context{"schema": StringValue("cdm")},
			expected: "SELECT * FROM cdm.person",
		},
		{
			name:     "repeated variable",
			template: "{{schema}}.{{table}} JOIN {{schema}}.visit",
			ctx: Context{
				"schema": StringValue("cdm"),
				"table":  StringValue("person"),
			},
			expected: "cdm.person JOIN cdm.visit",
		},
		{
			name:     "number renders without exponent",
			template: "cohort_definition_id = {{cohortDefinitionId}}",
			ctx:      Context{"cohortDefinitionId": IntValue(42)},
			expected: "cohort_definition_id = 42",
		},
		{
			name:     "no placeholders",
			template: "SELECT 1",
			ctx:      Context{},
			expected: "SELECT 1",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tmpl, err := Parse(tt.name, tt.template)
			require.NoError(t, err)
			res, err := tmpl.Render(tt.ctx)
			require.NoError(t, err)
			assert.Equal(t, tt.expected, res)
		})
	}
}

func TestTemplate_Render_MissingVariable(t *testing.T) {
	tmpl, err := Parse("missing", "SELECT * FROM {{schema}}.person")
	require.NoError(t, err)
	_, err = tmpl.Render(Context{})
	require.Error(t, err)
	var terr *Error
	require.ErrorAs(t, err, &terr)
	assert.Contains(t, terr.Msg, "schema")
}

func TestTemplate_Render_Conditionals(t *testing.T) {
	tests := []struct {
		name     string
		template string
		ctx      Context
		expected string
	}{
		{
			name:     "true branch",
			template: "{% if '{{dbms}}' == 'tsql' %}COUNT_BIG(*){% else %}COUNT(*){% endif %}",
			ctx:      Context{"dbms": StringValue("tsql")},
			expected: "COUNT_BIG(*)",
		},
		{
			name:     "else branch",
			template: "{% if '{{dbms}}' == 'tsql' %}COUNT_BIG(*){% else %}COUNT(*){% endif %}",
			ctx:      Context{"dbms": StringValue("postgresql")},
			expected: "COUNT(*)",
		},
		{
			name:     "elif branch",
			template: "{% if '{{dbms}}' == 'tsql' %}a{% elif '{{dbms}}' == 'sqlite' %}b{% else %}c{% endif %}",
			ctx:      Context{"dbms": StringValue("sqlite")},
			expected: "b",
		},
		{
			name:     "bare variable truthy",
			template: "x{% if cohort %} JOIN cohort{% endif %}",
			ctx:      Context{"cohort": BoolValue(true)},
			expected: "x JOIN cohort",
		},
		{
			name:     "bare variable falsy when absent",
			template: "x{% if cohort %} JOIN cohort{% endif %}",
			ctx:      Context{},
			expected: "x",
		},
		{
			name:     "bare variable falsy when false",
			template: "x{% if cohort %} JOIN cohort{% endif %}",
			ctx:      Context{"cohort": BoolValue(false)},
			expected: "x",
		},
		{
			name:     "not equal",
			template: "{% if '{{a}}' != '{{b}}' %}differ{% else %}same{% endif %}",
			ctx: Context{
				"a": StringValue("cdm.person"),
				"b": StringValue("vocab.concept"),
			},
			expected: "differ",
		},
		{
			name:     "in set hit",
			template: "{% if '{{cdmDatatype}}' IN ('date', 'datetime') %}temporal{% else %}plain{% endif %}",
			ctx:      Context{"cdmDatatype": StringValue("datetime")},
			expected: "temporal",
		},
		{
			name:     "in set miss",
			template: "{% if '{{cdmDatatype}}' IN ('date', 'datetime') %}temporal{% else %}plain{% endif %}",
			ctx:      Context{"cdmDatatype": StringValue("integer")},
			expected: "plain",
		},
		{
			name:     "and short circuit",
			template: "{% if cohort & '{{dbms}}' == 'tsql' %}both{% else %}not both{% endif %}",
			ctx:      Context{"dbms": StringValue("tsql")},
			expected: "not both",
		},
		{
			name:     "or",
			template: "{% if '{{dbms}}' == 'tsql' | '{{dbms}}' == 'sqlite' %}special{% else %}plain{% endif %}",
			ctx:      Context{"dbms": StringValue("sqlite")},
			expected: "special",
		},
		{
			name:     "parenthesized",
			template: "{% if ('{{a}}' == '1' | '{{a}}' == '2') & '{{b}}' == 'x' %}yes{% else %}no{% endif %}",
			ctx: Context{
				"a": StringValue("2"),
				"b": StringValue("x"),
			},
			expected: "yes",
		},
		{
			name: "nested conditionals",
			template: "{% if '{{dbms}}' == 'sqlite' %}date({{field}})" +
				"{% else %}{% if '{{dbms}}' == 'tsql' %}CAST({{field}} AS date){% else %}{{field}}::date{% endif %}{% endif %}",
			ctx: Context{
				"dbms":  StringValue("tsql"),
				"field": StringValue("birth_datetime"),
			},
			expected: "CAST(birth_datetime AS date)",
		},
		{
			name:     "numeric comparison ignores formatting",
			template: "{% if '{{conceptId}}' == '8507' %}male{% else %}other{% endif %}",
			ctx:      Context{"conceptId": IntValue(8507)},
			expected: "male",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tmpl, err := Parse(tt.name, tt.template)
			require.NoError(t, err)
			res, err := tmpl.Render(tt.ctx)
			require.NoError(t, err)
			assert.Equal(t, tt.expected, res)
		})
	}
}

func TestTemplate_Render_CohortRestriction(t *testing.T) {
	const text = "SELECT COUNT(*) FROM {{cdmDatabaseSchema}}.{{cdmTableName}} cdmTable" +
		"{% if cohort %} JOIN {{cohortDatabaseSchema}}.cohort c" +
		" ON cdmTable.person_id = c.subject_id" +
		" AND c.cohort_definition_id = {{cohortDefinitionId}}{% endif %}"

	tmpl, err := Parse("cohort", text)
	require.NoError(t, err)

	base := Context{
		"cdmDatabaseSchema": StringValue("cdm"),
		"cdmTableName":      StringValue("measurement"),
	}

	t.Run("disabled", func(t *testing.T) {
		res, err := tmpl.Render(base)
		require.NoError(t, err)
		assert.Equal(t, "SELECT COUNT(*) FROM cdm.measurement cdmTable", res)
	})

	t.Run("enabled", func(t *testing.T) {
		ctx := base.Merge(Context{
			"cohort":               BoolValue(true),
			"cohortDatabaseSchema": StringValue("results"),
			"cohortDefinitionId":   IntValue(42),
		})
		res, err := tmpl.Render(ctx)
		require.NoError(t, err)
		assert.Contains(t, res, "JOIN results.cohort c")
		assert.Contains(t, res, "c.cohort_definition_id = 42")
	})
}

func TestTemplate_Render_Idempotent(t *testing.T) {
	tmpl, err := Parse("idempotent", "{% if '{{dbms}}' == 'tsql' %}TOP 1 {% endif %}{{field}}")
	require.NoError(t, err)
	ctx := Context{
		"dbms":  StringValue("tsql"),
		"field": StringValue("person_id"),
	}
	first, err := tmpl.Render(ctx)
	require.NoError(t, err)
	second, err := tmpl.Render(ctx)
	require.NoError(t, err)
	assert.Equal(t, first, second)
}

func TestParse_Errors(t *testing.T) {
	tests := []struct {
		name     string
		template string
	}{
		{
			name:     "missing endif",
			template: "{% if a %}x",
		},
		{
			name:     "elif after else",
			template: "{% if a %}x{% else %}y{% elif b %}z{% endif %}",
		},
		{
			name:     "endif without if",
			template: "x{% endif %}",
		},
		{
			name:     "unknown tag",
			template: "{% for a %}x{% endif %}",
		},
		{
			name:     "malformed expression",
			template: "{% if == %}x{% endif %}",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Parse(tt.name, tt.template)
			require.Error(t, err)
			var terr *Error
			assert.ErrorAs(t, err, &terr)
		})
	}
}

func TestValue_Truthy(t *testing.T) {
	assert.True(t, StringValue("x").Truthy())
	assert.True(t, IntValue(1).Truthy())
	assert.True(t, BoolValue(true).Truthy())
	assert.False(t, StringValue("").Truthy())
	assert.False(t, IntValue(0).Truthy())
	assert.False(t, BoolValue(false).Truthy())
}

func TestValue_Render(t *testing.T) {
	assert.Equal(t, "8507", IntValue(8507).Render())
	assert.Equal(t, "0.5", NumberValue(0.5).Render())
	assert.Equal(t, "1", BoolValue(true).Render())
	assert.Equal(t, "0", BoolValue(false).Render())
	assert.Equal(t, "person", StringValue("person").Render())
}
