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

package checks

import (
	"encoding/csv"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"slices"
	"strconv"
	"strings"

	"github.com/rs/zerolog/log"

	"github.com/cdmlint/cdmlint/internal/cdm"
	"github.com/cdmlint/cdmlint/internal/sqltemplate"
)

// Filter restricts the loaded checks to a subset of tables and check kinds.
// Table comparison is case-insensitive, matching the metadata convention of
// upper-case table names.
type Filter struct {
	Tables        []string
	ExcludeTables []string
	CheckNames    []string
}

func (f Filter) allowTable(table string) bool {
	u := strings.ToUpper(table)
	if len(f.Tables) > 0 && !containsFold(f.Tables, u) {
		return false
	}
	return !containsFold(f.ExcludeTables, u)
}

func (f Filter) allowKind(kind Kind) bool {
	return len(f.CheckNames) == 0 || containsFold(f.CheckNames, string(kind))
}

func containsFold(haystack []string, needle string) bool {
	return slices.ContainsFunc(haystack, func(s string) bool {
		return strings.EqualFold(s, needle)
	})
}

// Loader builds CheckDefinitions from the table/field/concept level metadata
// files of one CDM version, laid out as
// OMOP_CDMv<version>_{Table,Field,Concept}_Level.csv in a single directory.
type Loader struct {
	dir     string
	version string
}

func NewLoader(dir, cdmVersion string) *Loader {
	return &Loader{dir: dir, version: cdmVersion}
}

// Load reads the metadata files, applies the filter and returns the check
// definitions in metadata order along with the CDM datatype model assembled
// from the field-level file.
func (l *Loader) Load(filter Filter) ([]CheckDefinition, *cdm.Model, error) {
	model, err := cdm.NewModel()
	if err != nil {
		return nil, nil, err
	}

	tableRecs, err := readCSV(l.path("Table_Level"))
	if err != nil {
		return nil, nil, fmt.Errorf("cannot read table level metadata: %w", err)
	}
	fieldRecs, err := readCSV(l.path("Field_Level"))
	if err != nil {
		return nil, nil, fmt.Errorf("cannot read field level metadata: %w", err)
	}
	conceptRecs, err := readCSV(l.path("Concept_Level"))
	if err != nil && !os.IsNotExist(err) {
		return nil, nil, fmt.Errorf("cannot read concept level metadata: %w", err)
	}

	var defs []CheckDefinition
	for _, rec := range tableRecs {
		defs = append(defs, l.tableChecks(rec, filter)...)
	}
	for _, rec := range fieldRecs {
		table := strings.ToLower(rec["cdmTableName"])
		field := strings.ToLower(rec["cdmFieldName"])
		model.SetFieldType(table, field, rec["cdmDatatype"])
		defs = append(defs, l.fieldChecks(rec, model, filter)...)
	}
	for _, rec := range conceptRecs {
		defs = append(defs, l.conceptChecks(rec, filter)...)
	}

	log.Debug().
		Int("TableRows", len(tableRecs)).
		Int("FieldRows", len(fieldRecs)).
		Int("ConceptRows", len(conceptRecs)).
		Int("Checks", len(defs)).
		Msg("loaded check definitions")
	return defs, model, nil
}

func (l *Loader) path(level string) string {
	return filepath.Join(l.dir, fmt.Sprintf("OMOP_CDMv%s_%s.csv", l.version, level))
}

var tableLevelKinds = []Kind{CDMTable, MeasurePersonCompleteness, MeasureConditionEraCompleteness}

func (l *Loader) tableChecks(rec map[string]string, filter Filter) []CheckDefinition {
	table := rec["cdmTableName"]
	if table == "" || !filter.allowTable(table) {
		return nil
	}
	var defs []CheckDefinition
	for _, kind := range tableLevelKinds {
		if !filter.allowKind(kind) || !isYes(rec[string(kind)]) {
			continue
		}
		defs = append(defs, CheckDefinition{
			Kind:      kind,
			TableName: strings.ToLower(table),
			Params: sqltemplate.Context{
				"cdmTableName": sqltemplate.StringValue(strings.ToLower(table)),
			},
		})
	}
	return defs
}

func (l *Loader) fieldChecks(rec map[string]string, model *cdm.Model, filter Filter) []CheckDefinition {
	table := strings.ToLower(rec["cdmTableName"])
	field := strings.ToLower(rec["cdmFieldName"])
	if table == "" || field == "" || !filter.allowTable(table) {
		return nil
	}
	// The ragged "offset" field of the note_nlp table is a reserved word on
	// most backends and is excluded from checking.
	if field == "offset" {
		return nil
	}

	base := sqltemplate.Context{
		"cdmTableName": sqltemplate.StringValue(table),
		"cdmFieldName": sqltemplate.StringValue(field),
		"cdmDatatype":  sqltemplate.StringValue(model.NormalizedType(table, field)),
	}
	add := func(defs []CheckDefinition, kind Kind, extra sqltemplate.Context) []CheckDefinition {
		if !filter.allowKind(kind) {
			return defs
		}
		return append(defs, CheckDefinition{
			Kind:      kind,
			TableName: table,
			FieldName: field,
			Params:    base.Merge(extra),
		})
	}

	var defs []CheckDefinition
	defs = add(defs, CDMField, nil)
	if isYes(rec["isRequired"]) {
		defs = add(defs, IsRequired, nil)
	}
	if isIntegerType(rec["cdmDatatype"]) {
		defs = add(defs, CDMDatatype, nil)
	}
	if isYes(rec["isPrimaryKey"]) {
		defs = add(defs, IsPrimaryKey, nil)
	}
	if isYes(rec["isForeignKey"]) {
		defs = add(defs, IsForeignKey, sqltemplate.Context{
			"fkTableName": sqltemplate.StringValue(strings.ToLower(rec["fkTableName"])),
			"fkFieldName": sqltemplate.StringValue(strings.ToLower(rec["fkFieldName"])),
		})
	}
	if rec["fkDomain"] != "" {
		defs = add(defs, FKDomain, sqltemplate.Context{
			"fkDomain": sqltemplate.StringValue(rec["fkDomain"]),
		})
	}
	if rec["fkClass"] != "" {
		defs = add(defs, FKClass, sqltemplate.Context{
			"fkClass": sqltemplate.StringValue(rec["fkClass"]),
		})
	}
	if isYes(rec["isStandardValidConcept"]) {
		defs = add(defs, IsStandardValidConcept, nil)
	}
	if isYes(rec["measureValueCompleteness"]) {
		defs = add(defs, MeasureValueCompleteness, nil)
	}
	if rec["plausibleValueLow"] != "" {
		defs = add(defs, PlausibleValueLow, sqltemplate.Context{
			"plausibleValueLow": typedValue(rec["plausibleValueLow"]),
		})
	}
	if rec["plausibleValueHigh"] != "" {
		defs = add(defs, PlausibleValueHigh, sqltemplate.Context{
			"plausibleValueHigh": typedValue(rec["plausibleValueHigh"]),
		})
	}
	if isYes(rec["plausibleTemporalAfter"]) {
		afterTable := strings.ToLower(rec["plausibleTemporalAfterTableName"])
		afterField := strings.ToLower(rec["plausibleTemporalAfterFieldName"])
		if afterTable == "" {
			afterTable = "person"
		}
		if afterField == "" {
			afterField = "birth_datetime"
		}
		defs = add(defs, PlausibleTemporalAfter, sqltemplate.Context{
			"plausibleTemporalAfterTableName": sqltemplate.StringValue(afterTable),
			"plausibleTemporalAfterFieldName": sqltemplate.StringValue(afterField),
		})
	}
	if isYes(rec["withinVisitDates"]) {
		defs = add(defs, WithinVisitDates, nil)
	}
	if gender := strings.TrimSpace(rec["plausibleGender"]); gender != "" {
		switch {
		case strings.EqualFold(gender, "Male"):
			defs = add(defs, PlausibleGender, sqltemplate.Context{
				"plausibleGender": sqltemplate.StringValue("Male"),
			})
		case strings.EqualFold(gender, "Female"):
			defs = add(defs, PlausibleGender, sqltemplate.Context{
				"plausibleGender": sqltemplate.StringValue("Female"),
			})
		default:
			log.Warn().
				Str("CdmTableName", table).
				Str("CdmFieldName", field).
				Str("PlausibleGender", gender).
				Msg("skipping plausible gender check with an unknown gender")
		}
	}
	return defs
}

func (l *Loader) conceptChecks(rec map[string]string, filter Filter) []CheckDefinition {
	table := strings.ToLower(rec["cdmTableName"])
	field := strings.ToLower(rec["cdmFieldName"])
	if table == "" || field == "" || !filter.allowTable(table) {
		return nil
	}
	units := rec["plausibleUnitConceptIds"]
	if units == "" || !filter.allowKind(PlausibleUnitConceptIds) {
		return nil
	}
	conceptID, err := strconv.ParseInt(strings.TrimSpace(rec["conceptId"]), 10, 64)
	if err != nil {
		log.Warn().
			Str("CdmTableName", table).
			Str("ConceptId", rec["conceptId"]).
			Msg("skipping concept level row with a malformed concept id")
		return nil
	}
	def := CheckDefinition{
		Kind:      PlausibleUnitConceptIds,
		TableName: table,
		FieldName: field,
		ConceptID: conceptID,
		Params: sqltemplate.Context{
			"cdmTableName":            sqltemplate.StringValue(table),
			"cdmFieldName":            sqltemplate.StringValue(field),
			"conceptId":               sqltemplate.IntValue(conceptID),
			"plausibleUnitConceptIds": sqltemplate.StringValue(units),
		},
	}
	if raw := strings.TrimSpace(rec["unitConceptId"]); raw != "" {
		if unitID, err := strconv.ParseInt(raw, 10, 64); err == nil {
			def.UnitConceptID = unitID
			def.Params["unitConceptId"] = sqltemplate.IntValue(unitID)
		}
	}
	return []CheckDefinition{def}
}

func isYes(s string) bool {
	return strings.EqualFold(strings.TrimSpace(s), "yes")
}

func isIntegerType(datatype string) bool {
	switch strings.ToLower(strings.TrimSpace(datatype)) {
	case "integer", "int", "bigint", "smallint":
		return true
	}
	return false
}

// typedValue tags a metadata literal: plausible bounds are numbers for
// numeric fields and ISO dates for temporal ones.
func typedValue(s string) sqltemplate.Value {
	s = strings.TrimSpace(s)
	if n, err := strconv.ParseFloat(s, 64); err == nil {
		return sqltemplate.NumberValue(n)
	}
	return sqltemplate.StringValue(s)
}

// readCSV loads a headered CSV file into one map per row. Empty cells stay
// empty strings.
func readCSV(path string) ([]map[string]string, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	r := csv.NewReader(f)
	r.FieldsPerRecord = -1
	header, err := r.Read()
	if err != nil {
		return nil, fmt.Errorf("cannot read header of %s: %w", path, err)
	}
	var recs []map[string]string
	for {
		row, err := r.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("cannot read %s: %w", path, err)
		}
		rec := make(map[string]string, len(header))
		for i, col := range header {
			if i < len(row) {
				rec[col] = strings.TrimSpace(row[i])
			}
		}
		recs = append(recs, rec)
	}
	return recs, nil
}
