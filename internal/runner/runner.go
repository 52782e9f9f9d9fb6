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

// Package runner executes check definitions against a connected backend and
// turns each outcome into a report verdict. A failing check never aborts the
// run; only a lost connection or an explicit cancellation does.
package runner

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog/log"
	"golang.org/x/sync/semaphore"

	"github.com/cdmlint/cdmlint/internal/checks"
	"github.com/cdmlint/cdmlint/internal/dbms"
	"github.com/cdmlint/cdmlint/internal/report"
	"github.com/cdmlint/cdmlint/internal/sqltemplate"
)

const DefaultWorkers = 4

// Session executes one rendered check query on a pinned connection.
type Session interface {
	Execute(ctx context.Context, query string) (*dbms.Row, error)
	Close() error
}

// Pool hands out sessions to workers. *dbms.Backend is the production
// implementation, wrapped by BackendPool.
type Pool interface {
	Session(ctx context.Context) (Session, error)
}

// BackendPool adapts a connected backend to the Pool interface.
type BackendPool struct {
	Backend *dbms.Backend
}

func (p BackendPool) Session(ctx context.Context) (Session, error) {
	return p.Backend.Session(ctx)
}

// RunContext carries the run-level settings shared by every check of a run.
type RunContext struct {
	Dbms               dbms.Kind
	CDMSchema          string
	VocabSchema        string
	CohortSchema       string
	Cohort             bool
	CohortDefinitionID int64
	CDMVersion         string
}

// TemplateContext returns the substitution variables contributed by the run
// settings. Per-check variables are merged on top of it.
func (rc *RunContext) TemplateContext() sqltemplate.Context {
	vocab := rc.VocabSchema
	if vocab == "" {
		vocab = rc.CDMSchema
	}
	tctx := sqltemplate.Context{
		"dbms":                sqltemplate.StringValue(string(rc.Dbms)),
		"cdmDatabaseSchema":   sqltemplate.StringValue(rc.CDMSchema),
		"vocabDatabaseSchema": sqltemplate.StringValue(vocab),
	}
	if rc.Cohort {
		tctx["cohort"] = sqltemplate.BoolValue(true)
		tctx["cohortDefinitionId"] = sqltemplate.IntValue(rc.CohortDefinitionID)
		schema := rc.CohortSchema
		if schema == "" {
			schema = rc.CDMSchema
		}
		tctx["cohortDatabaseSchema"] = sqltemplate.StringValue(schema)
	}
	return tctx
}

type Runner struct {
	pool    Pool
	run     *RunContext
	workers int
}

func New(pool Pool, run *RunContext, workers int) *Runner {
	if workers <= 0 {
		workers = DefaultWorkers
	}
	return &Runner{pool: pool, run: run, workers: workers}
}

// Render produces the SQL for one check without executing it.
func (r *Runner) Render(def *checks.CheckDefinition) (string, error) {
	tmpl, err := checks.LoadTemplate(def.Kind)
	if err != nil {
		return "", err
	}
	return tmpl.Render(r.run.TemplateContext().Merge(def.Params))
}

// Execute runs every definition with bounded parallelism and returns one
// verdict per definition. Checks not yet started when ctx is canceled are
// reported as errors instead of being silently dropped.
func (r *Runner) Execute(ctx context.Context, defs []checks.CheckDefinition) []report.CheckResult {
	sem := semaphore.NewWeighted(int64(r.workers))
	results := make([]report.CheckResult, len(defs))

	var wg sync.WaitGroup
	for idx := range defs {
		if err := sem.Acquire(ctx, 1); err != nil {
			for i := idx; i < len(defs); i++ {
				results[i] = errorResult(&defs[i], "run canceled before execution")
			}
			break
		}
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			defer sem.Release(1)
			results[i] = r.executeOne(ctx, &defs[i])
		}(idx)
	}
	wg.Wait()
	return results
}

func (r *Runner) executeOne(ctx context.Context, def *checks.CheckDefinition) report.CheckResult {
	res := newResult(def)
	started := time.Now()

	query, err := r.Render(def)
	if err != nil {
		log.Warn().
			Str("CheckId", def.CheckID()).
			Err(err).
			Msg("check query cannot be rendered")
		res.Status = report.StatusError
		res.Error = err.Error()
		return res
	}
	res.QueryText = query

	if ctx.Err() != nil {
		res.Status = report.StatusError
		res.Error = "run canceled before execution"
		return res
	}

	session, err := r.pool.Session(ctx)
	if err != nil {
		res.Status = report.StatusError
		res.Error = fmt.Sprintf("acquiring session: %v", err)
		return res
	}
	defer session.Close()

	row, err := session.Execute(ctx, query)
	res.ExecutionTime = time.Since(started).Round(time.Millisecond).String()
	if err != nil {
		log.Warn().
			Str("CheckId", def.CheckID()).
			Err(err).
			Msg("check query failed")
		res.Status = report.StatusError
		res.Error = err.Error()
		return res
	}

	res.NumViolatedRows = row.NumViolatedRows
	res.PctViolatedRows = row.PctViolatedRows
	res.NumDenominatorRows = row.NumDenominatorRows
	if row.NumDenominatorRows == 0 {
		res.PctViolatedRows = 0
	}
	if row.NumViolatedRows > 0 {
		res.Status = report.StatusFail
	} else {
		res.Status = report.StatusPass
	}
	log.Debug().
		Str("CheckId", def.CheckID()).
		Str("Status", string(res.Status)).
		Int64("NumViolatedRows", res.NumViolatedRows).
		Msg("check executed")
	return res
}

func newResult(def *checks.CheckDefinition) report.CheckResult {
	desc, _ := checks.Lookup(def.Kind)
	return report.CheckResult{
		CheckID:          def.CheckID(),
		CheckName:        def.Kind,
		CheckLevel:       desc.Level,
		Category:         desc.Category,
		CheckDescription: def.Description(),
		CDMTableName:     def.TableName,
		CDMFieldName:     def.FieldName,
		ConceptID:        def.ConceptID,
		UnitConceptID:    def.UnitConceptID,
	}
}

func errorResult(def *checks.CheckDefinition, msg string) report.CheckResult {
	res := newResult(def)
	res.Status = report.StatusError
	res.Error = msg
	return res
}
