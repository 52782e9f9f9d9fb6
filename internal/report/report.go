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

// Package report collects check verdicts into the quality report consumed by
// the visualization front end. The JSON field names are a stable contract
// and must not change across versions.
package report

import (
	"cmp"
	"encoding/csv"
	"encoding/json"
	"io"
	"slices"
	"strconv"
	"time"

	"github.com/cdmlint/cdmlint/internal/checks"
)

type Status string

const (
	StatusPass  Status = "PASS"
	StatusFail  Status = "FAIL"
	StatusError Status = "ERROR"
)

// CheckResult is the verdict of one executed check.
type CheckResult struct {
	CheckID            string       `json:"checkId"`
	CheckName          checks.Kind  `json:"checkName"`
	CheckLevel         checks.Level `json:"checkLevel"`
	Category           string       `json:"category"`
	CheckDescription   string       `json:"checkDescription"`
	CDMTableName       string       `json:"cdmTableName"`
	CDMFieldName       string       `json:"cdmFieldName,omitempty"`
	ConceptID          int64        `json:"conceptId,omitempty"`
	UnitConceptID      int64        `json:"unitConceptId,omitempty"`
	NumViolatedRows    int64        `json:"numViolatedRows"`
	PctViolatedRows    float64      `json:"pctViolatedRows"`
	NumDenominatorRows int64        `json:"numDenominatorRows"`
	Status             Status       `json:"status"`
	Error              string       `json:"error,omitempty"`
	QueryText          string       `json:"queryText,omitempty"`
	ExecutionTime      string       `json:"executionTime,omitempty"`
}

// Overview carries the run-level summary counts, overall and per Kahn
// category.
type Overview struct {
	CountTotal  int `json:"countTotal"`
	CountPassed int `json:"countPassed"`
	CountFailed int `json:"countFailed"`
	CountError  int `json:"countError"`

	CountTotalPlausibility  int `json:"countTotalPlausibility"`
	CountTotalConformance   int `json:"countTotalConformance"`
	CountTotalCompleteness  int `json:"countTotalCompleteness"`
	CountFailedPlausibility int `json:"countFailedPlausibility"`
	CountFailedConformance  int `json:"countFailedConformance"`
	CountFailedCompleteness int `json:"countFailedCompleteness"`
	CountPassedPlausibility int `json:"countPassedPlausibility"`
	CountPassedConformance  int `json:"countPassedConformance"`
	CountPassedCompleteness int `json:"countPassedCompleteness"`
}

// Metadata describes the run that produced the report.
type Metadata struct {
	RunID          string    `json:"runId"`
	CDMVersion     string    `json:"cdmVersion"`
	CDMSourceName  string    `json:"cdmSourceName,omitempty"`
	Dbms           string    `json:"dbms"`
	StartTimestamp time.Time `json:"startTimestamp"`
	EndTimestamp   time.Time `json:"endTimestamp"`
	ExecutionTime  string    `json:"executionTime"`
	OutputFile     string    `json:"outputFile,omitempty"`
}

type QualityReport struct {
	Metadata     Metadata      `json:"metadata"`
	Overview     Overview      `json:"overview"`
	CheckResults []CheckResult `json:"checkResults"`
}

// Aggregate builds the report from the verdicts of one run. Results are
// sorted by table, field, check kind and concept id so the report content is
// independent of execution order.
func Aggregate(results []CheckResult, meta Metadata) *QualityReport {
	sorted := slices.Clone(results)
	slices.SortFunc(sorted, func(a, b CheckResult) int {
		if c := cmp.Compare(a.CDMTableName, b.CDMTableName); c != 0 {
			return c
		}
		if c := cmp.Compare(a.CDMFieldName, b.CDMFieldName); c != 0 {
			return c
		}
		if c := cmp.Compare(a.CheckName, b.CheckName); c != 0 {
			return c
		}
		if c := cmp.Compare(a.ConceptID, b.ConceptID); c != 0 {
			return c
		}
		return cmp.Compare(a.UnitConceptID, b.UnitConceptID)
	})

	var ov Overview
	ov.CountTotal = len(sorted)
	for _, r := range sorted {
		switch r.Status {
		case StatusPass:
			ov.CountPassed++
		case StatusFail:
			ov.CountFailed++
		case StatusError:
			ov.CountError++
		}
		switch r.Category {
		case checks.CategoryPlausibility:
			ov.CountTotalPlausibility++
			addCategoryStatus(r.Status, &ov.CountPassedPlausibility, &ov.CountFailedPlausibility)
		case checks.CategoryConformance:
			ov.CountTotalConformance++
			addCategoryStatus(r.Status, &ov.CountPassedConformance, &ov.CountFailedConformance)
		case checks.CategoryCompleteness:
			ov.CountTotalCompleteness++
			addCategoryStatus(r.Status, &ov.CountPassedCompleteness, &ov.CountFailedCompleteness)
		}
	}

	return &QualityReport{
		Metadata:     meta,
		Overview:     ov,
		CheckResults: sorted,
	}
}

func addCategoryStatus(s Status, passed, failed *int) {
	switch s {
	case StatusPass:
		*passed++
	case StatusFail:
		*failed++
	}
}

// WriteJSON serializes the report for the visualization front end.
func (r *QualityReport) WriteJSON(w io.Writer) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(r)
}

// WriteCSV writes the per-check results as a flat table.
func (r *QualityReport) WriteCSV(w io.Writer) error {
	cw := csv.NewWriter(w)
	header := []string{
		"checkId", "checkName", "checkLevel", "category",
		"cdmTableName", "cdmFieldName", "conceptId", "unitConceptId",
		"numViolatedRows", "pctViolatedRows", "numDenominatorRows",
		"status", "error",
	}
	if err := cw.Write(header); err != nil {
		return err
	}
	for _, res := range r.CheckResults {
		row := []string{
			res.CheckID,
			string(res.CheckName),
			string(res.CheckLevel),
			res.Category,
			res.CDMTableName,
			res.CDMFieldName,
			formatID(res.ConceptID),
			formatID(res.UnitConceptID),
			strconv.FormatInt(res.NumViolatedRows, 10),
			strconv.FormatFloat(res.PctViolatedRows, 'f', -1, 64),
			strconv.FormatInt(res.NumDenominatorRows, 10),
			string(res.Status),
			res.Error,
		}
		if err := cw.Write(row); err != nil {
			return err
		}
	}
	cw.Flush()
	return cw.Error()
}

func formatID(id int64) string {
	if id == 0 {
		return ""
	}
	return strconv.FormatInt(id, 10)
}
