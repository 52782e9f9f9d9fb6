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

package runner

import (
	"context"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cdmlint/cdmlint/internal/checks"
	"github.com/cdmlint/cdmlint/internal/dbms"
	"github.com/cdmlint/cdmlint/internal/report"
	"github.com/cdmlint/cdmlint/internal/sqltemplate"
)

// fakePool routes every executed query through a single handler. Each
// session counts as one acquisition so the tests can verify session
// discipline.
type fakePool struct {
	mu       sync.Mutex
	sessions int
	handler  func(query string) (*dbms.Row, error)
}

func (p *fakePool) Session(_ context.Context) (Session, error) {
	p.mu.Lock()
	p.sessions++
	p.mu.Unlock()
	return &fakeSession{pool: p}, nil
}

type fakeSession struct {
	pool   *fakePool
	closed bool
}

func (s *fakeSession) Execute(_ context.Context, query string) (*dbms.Row, error) {
	return s.pool.handler(query)
}

func (s *fakeSession) Close() error {
	s.closed = true
	return nil
}

func fieldDef(table, field string) checks.CheckDefinition {
	return checks.CheckDefinition{
		Kind:      checks.IsRequired,
		TableName: table,
		FieldName: field,
		Params: sqltemplate.Context{
			"cdmTableName": sqltemplate.StringValue(table),
			"cdmFieldName": sqltemplate.StringValue(field),
		},
	}
}

func testRunContext() *RunContext {
	return &RunContext{
		Dbms:       dbms.SQLiteKind,
		CDMSchema:  "main",
		CDMVersion: "5.3",
	}
}

func TestRunContext_TemplateContext(t *testing.T) {
	t.Run("vocab schema defaults to cdm schema", func(t *testing.T) {
		ctx := testRunContext().TemplateContext()
		assert.Equal(t, "main", ctx["cdmDatabaseSchema"].Render())
		assert.Equal(t, "main", ctx["vocabDatabaseSchema"].Render())
		_, ok := ctx["cohort"]
		assert.False(t, ok)
	})

	t.Run("explicit vocab schema", func(t *testing.T) {
		rc := testRunContext()
		rc.VocabSchema = "vocab"
		ctx := rc.TemplateContext()
		assert.Equal(t, "vocab", ctx["vocabDatabaseSchema"].Render())
	})

	t.Run("cohort variables", func(t *testing.T) {
		rc := testRunContext()
		rc.Cohort = true
		rc.CohortDefinitionID = 42
		rc.CohortSchema = "results"
		ctx := rc.TemplateContext()
		assert.True(t, ctx["cohort"].Truthy())
		assert.Equal(t, "42", ctx["cohortDefinitionId"].Render())
		assert.Equal(t, "results", ctx["cohortDatabaseSchema"].Render())
	})

	t.Run("cohort schema defaults to cdm schema", func(t *testing.T) {
		rc := testRunContext()
		rc.Cohort = true
		ctx := rc.TemplateContext()
		assert.Equal(t, "main", ctx["cohortDatabaseSchema"].Render())
	})
}

func TestRunner_Render(t *testing.T) {
	def := fieldDef("person", "person_id")
	r := New(nil, testRunContext(), 1)

	query, err := r.Render(&def)
	require.NoError(t, err)
	assert.Contains(t, query, "main.person")
	assert.Contains(t, query, "person_id IS NULL")
	assert.NotContains(t, query, "{{")
}

func TestRunner_Execute_Verdicts(t *testing.T) {
	defs := []checks.CheckDefinition{
		fieldDef("person", "person_id"),
		fieldDef("measurement", "person_id"),
		fieldDef("observation", "person_id"),
	}
	pool := &fakePool{handler: func(query string) (*dbms.Row, error) {
		switch {
		case strings.Contains(query, "main.person "):
			return &dbms.Row{NumViolatedRows: 0, PctViolatedRows: 0, NumDenominatorRows: 100}, nil
		case strings.Contains(query, "main.measurement "):
			return &dbms.Row{NumViolatedRows: 7, PctViolatedRows: 0.07, NumDenominatorRows: 100}, nil
		default:
			return nil, &dbms.QueryError{Err: context.DeadlineExceeded, Timeout: true}
		}
	}}

	results := New(pool, testRunContext(), 2).Execute(context.Background(), defs)
	require.Len(t, results, 3)

	assert.Equal(t, report.StatusPass, results[0].Status)
	assert.Equal(t, int64(100), results[0].NumDenominatorRows)
	assert.Empty(t, results[0].Error)

	assert.Equal(t, report.StatusFail, results[1].Status)
	assert.Equal(t, int64(7), results[1].NumViolatedRows)
	assert.Equal(t, 0.07, results[1].PctViolatedRows)

	assert.Equal(t, report.StatusError, results[2].Status)
	assert.Contains(t, results[2].Error, "timed out")
	assert.Zero(t, results[2].NumViolatedRows)
}

func TestRunner_Execute_ResultsKeepDefinitionOrder(t *testing.T) {
	var defs []checks.CheckDefinition
	tables := []string{"person", "visit_occurrence", "condition_occurrence", "measurement", "observation"}
	for _, table := range tables {
		defs = append(defs, fieldDef(table, "person_id"))
	}
	pool := &fakePool{handler: func(string) (*dbms.Row, error) {
		return &dbms.Row{NumDenominatorRows: 1}, nil
	}}

	results := New(pool, testRunContext(), 4).Execute(context.Background(), defs)
	require.Len(t, results, len(defs))
	for i, table := range tables {
		assert.Equal(t, table, results[i].CDMTableName)
	}
}

func TestRunner_Execute_FailureIsolation(t *testing.T) {
	defs := []checks.CheckDefinition{
		fieldDef("person", "person_id"),
		fieldDef("measurement", "person_id"),
	}
	pool := &fakePool{handler: func(query string) (*dbms.Row, error) {
		if strings.Contains(query, "main.person ") {
			return nil, &dbms.QueryError{Err: assert.AnError}
		}
		return &dbms.Row{NumViolatedRows: 0, NumDenominatorRows: 10}, nil
	}}

	results := New(pool, testRunContext(), 1).Execute(context.Background(), defs)
	require.Len(t, results, 2)
	assert.Equal(t, report.StatusError, results[0].Status)
	assert.Equal(t, report.StatusPass, results[1].Status)
}

func TestRunner_Execute_RenderErrorIsPerCheck(t *testing.T) {
	broken := checks.CheckDefinition{
		Kind:      checks.IsRequired,
		TableName: "person",
		FieldName: "person_id",
		// cdmFieldName is missing, so the template cannot render.
		Params: sqltemplate.Context{
			"cdmTableName": sqltemplate.StringValue("person"),
		},
	}
	defs := []checks.CheckDefinition{broken, fieldDef("measurement", "person_id")}
	pool := &fakePool{handler: func(string) (*dbms.Row, error) {
		return &dbms.Row{NumViolatedRows: 0, NumDenominatorRows: 10}, nil
	}}

	results := New(pool, testRunContext(), 1).Execute(context.Background(), defs)
	require.Len(t, results, 2)
	assert.Equal(t, report.StatusError, results[0].Status)
	assert.Contains(t, results[0].Error, "cdmFieldName")
	assert.Empty(t, results[0].QueryText)
	assert.Equal(t, report.StatusPass, results[1].Status)
	// The broken check never reached the backend.
	assert.Equal(t, 1, pool.sessions)
}

func TestRunner_Execute_ZeroDenominator(t *testing.T) {
	defs := []checks.CheckDefinition{fieldDef("person", "person_id")}
	pool := &fakePool{handler: func(string) (*dbms.Row, error) {
		return &dbms.Row{NumViolatedRows: 0, PctViolatedRows: 0.5, NumDenominatorRows: 0}, nil
	}}

	results := New(pool, testRunContext(), 1).Execute(context.Background(), defs)
	require.Len(t, results, 1)
	assert.Equal(t, report.StatusPass, results[0].Status)
	assert.Zero(t, results[0].PctViolatedRows)
}

func TestRunner_Execute_Canceled(t *testing.T) {
	defs := []checks.CheckDefinition{
		fieldDef("person", "person_id"),
		fieldDef("measurement", "person_id"),
	}
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	pool := &fakePool{handler: func(string) (*dbms.Row, error) {
		return &dbms.Row{NumDenominatorRows: 1}, nil
	}}

	results := New(pool, testRunContext(), 1).Execute(ctx, defs)
	require.Len(t, results, 2)
	for _, res := range results {
		assert.Equal(t, report.StatusError, res.Status)
		assert.Contains(t, res.Error, "canceled")
	}
	assert.Zero(t, pool.sessions)
}

func TestRunner_Execute_ResultCarriesCheckMetadata(t *testing.T) {
	defs := []checks.CheckDefinition{fieldDef("person", "person_id")}
	pool := &fakePool{handler: func(string) (*dbms.Row, error) {
		return &dbms.Row{NumDenominatorRows: 1}, nil
	}}

	results := New(pool, testRunContext(), 1).Execute(context.Background(), defs)
	require.Len(t, results, 1)

	res := results[0]
	assert.Equal(t, "field_isrequired_person_person_id", res.CheckID)
	assert.Equal(t, checks.IsRequired, res.CheckName)
	assert.Equal(t, checks.FieldLevel, res.CheckLevel)
	assert.Equal(t, checks.CategoryConformance, res.Category)
	assert.NotEmpty(t, res.CheckDescription)
	assert.NotEmpty(t, res.QueryText)
	assert.NotEmpty(t, res.ExecutionTime)
}
