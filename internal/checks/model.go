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
	"slices"
	"strconv"
	"strings"

	"github.com/cdmlint/cdmlint/internal/sqltemplate"
)

type Level string

const (
	TableLevel   Level = "TABLE"
	FieldLevel   Level = "FIELD"
	ConceptLevel Level = "CONCEPT"
)

// Kahn framework categories used by the report overview.
const (
	CategoryConformance  = "Conformance"
	CategoryCompleteness = "Completeness"
	CategoryPlausibility = "Plausibility"
)

type Kind string

const (
	CDMTable                        Kind = "cdmTable"
	CDMField                        Kind = "cdmField"
	IsRequired                      Kind = "isRequired"
	CDMDatatype                     Kind = "cdmDatatype"
	IsPrimaryKey                    Kind = "isPrimaryKey"
	IsForeignKey                    Kind = "isForeignKey"
	FKDomain                        Kind = "fkDomain"
	FKClass                         Kind = "fkClass"
	IsStandardValidConcept          Kind = "isStandardValidConcept"
	MeasureValueCompleteness        Kind = "measureValueCompleteness"
	MeasurePersonCompleteness       Kind = "measurePersonCompleteness"
	MeasureConditionEraCompleteness Kind = "measureConditionEraCompleteness"
	PlausibleValueLow               Kind = "plausibleValueLow"
	PlausibleValueHigh              Kind = "plausibleValueHigh"
	PlausibleTemporalAfter          Kind = "plausibleTemporalAfter"
	WithinVisitDates                Kind = "withinVisitDates"
	PlausibleGender                 Kind = "plausibleGender"
	PlausibleUnitConceptIds         Kind = "plausibleUnitConceptIds"
)

// Descriptor is the static metadata of one check kind: the level it runs at,
// its Kahn category, the embedded SQL template that implements it and a
// human-readable description template in the same placeholder syntax.
type Descriptor struct {
	Kind        Kind   `json:"checkName"`
	Level       Level  `json:"checkLevel"`
	Category    string `json:"category"`
	SQLFile     string `json:"sqlFile"`
	Description string `json:"checkDescription"`
}

var registry = map[Kind]Descriptor{
	CDMTable: {
		Kind: CDMTable, Level: TableLevel, Category: CategoryConformance,
		SQLFile:     "table_cdm_table.sql",
		Description: "Verify the table {{cdmTableName}} exists",
	},
	MeasurePersonCompleteness: {
		Kind: MeasurePersonCompleteness, Level: TableLevel, Category: CategoryCompleteness,
		SQLFile:     "table_person_completeness.sql",
		Description: "The number of persons in the CDM that do not have at least one record in {{cdmTableName}}",
	},
	MeasureConditionEraCompleteness: {
		Kind: MeasureConditionEraCompleteness, Level: TableLevel, Category: CategoryCompleteness,
		SQLFile:     "table_condition_era_completeness.sql",
		Description: "The number of persons with condition occurrences that are missing from {{cdmTableName}}",
	},
	CDMField: {
		Kind: CDMField, Level: FieldLevel, Category: CategoryConformance,
		SQLFile:     "field_cdm_field.sql",
		Description: "Verify the field {{cdmTableName}}.{{cdmFieldName}} exists",
	},
	IsRequired: {
		Kind: IsRequired, Level: FieldLevel, Category: CategoryConformance,
		SQLFile:     "field_is_required.sql",
		Description: "The number of records with a NULL value in {{cdmTableName}}.{{cdmFieldName}}, a required field",
	},
	CDMDatatype: {
		Kind: CDMDatatype, Level: FieldLevel, Category: CategoryConformance,
		SQLFile:     "field_cdm_datatype.sql",
		Description: "The number of records in {{cdmTableName}}.{{cdmFieldName}} that are not a valid integer",
	},
	IsPrimaryKey: {
		Kind: IsPrimaryKey, Level: FieldLevel, Category: CategoryConformance,
		SQLFile:     "field_is_primary_key.sql",
		Description: "The number of records with a duplicated value in {{cdmTableName}}.{{cdmFieldName}}, the primary key",
	},
	IsForeignKey: {
		Kind: IsForeignKey, Level: FieldLevel, Category: CategoryConformance,
		SQLFile:     "field_is_foreign_key.sql",
		Description: "The number of records in {{cdmTableName}}.{{cdmFieldName}} without a matching record in {{fkTableName}}.{{fkFieldName}}",
	},
	FKDomain: {
		Kind: FKDomain, Level: FieldLevel, Category: CategoryConformance,
		SQLFile:     "field_fk_domain.sql",
		Description: "The number of records in {{cdmTableName}}.{{cdmFieldName}} referencing a concept outside the {{fkDomain}} domain",
	},
	FKClass: {
		Kind: FKClass, Level: FieldLevel, Category: CategoryConformance,
		SQLFile:     "field_fk_class.sql",
		Description: "The number of records in {{cdmTableName}}.{{cdmFieldName}} referencing a concept outside the {{fkClass}} class",
	},
	IsStandardValidConcept: {
		Kind: IsStandardValidConcept, Level: FieldLevel, Category: CategoryConformance,
		SQLFile:     "field_is_standard_valid_concept.sql",
		Description: "The number of records in {{cdmTableName}}.{{cdmFieldName}} referencing a non-standard or invalid concept",
	},
	MeasureValueCompleteness: {
		Kind: MeasureValueCompleteness, Level: FieldLevel, Category: CategoryCompleteness,
		SQLFile:     "field_value_completeness.sql",
		Description: "The number of records with a NULL value in {{cdmTableName}}.{{cdmFieldName}}",
	},
	PlausibleValueLow: {
		Kind: PlausibleValueLow, Level: FieldLevel, Category: CategoryPlausibility,
		SQLFile:     "field_plausible_value_low.sql",
		Description: "The number of records in {{cdmTableName}}.{{cdmFieldName}} below {{plausibleValueLow}}",
	},
	PlausibleValueHigh: {
		Kind: PlausibleValueHigh, Level: FieldLevel, Category: CategoryPlausibility,
		SQLFile:     "field_plausible_value_high.sql",
		Description: "The number of records in {{cdmTableName}}.{{cdmFieldName}} above {{plausibleValueHigh}}",
	},
	PlausibleTemporalAfter: {
		Kind: PlausibleTemporalAfter, Level: FieldLevel, Category: CategoryPlausibility,
		SQLFile:     "field_plausible_temporal_after.sql",
		Description: "The number of records in {{cdmTableName}}.{{cdmFieldName}} that occur before {{plausibleTemporalAfterTableName}}.{{plausibleTemporalAfterFieldName}}",
	},
	WithinVisitDates: {
		Kind: WithinVisitDates, Level: FieldLevel, Category: CategoryPlausibility,
		SQLFile:     "field_within_visit_dates.sql",
		Description: "The number of records in {{cdmTableName}}.{{cdmFieldName}} that fall outside the dates of the associated visit",
	},
	PlausibleGender: {
		Kind: PlausibleGender, Level: FieldLevel, Category: CategoryPlausibility,
		SQLFile:     "field_plausible_gender.sql",
		Description: "The number of records in {{cdmTableName}}.{{cdmFieldName}} associated with a person of an implausible gender (correct gender: {{plausibleGender}})",
	},
	PlausibleUnitConceptIds: {
		Kind: PlausibleUnitConceptIds, Level: ConceptLevel, Category: CategoryPlausibility,
		SQLFile:     "concept_plausible_unit_concept_ids.sql",
		Description: "The number of records of concept {{conceptId}} in {{cdmTableName}} with an implausible unit (accepted: {{plausibleUnitConceptIds}})",
	},
}

// Lookup returns the descriptor of a check kind.
func Lookup(kind Kind) (Descriptor, bool) {
	d, ok := registry[kind]
	return d, ok
}

// All returns every registered descriptor ordered by level then kind.
func All() []Descriptor {
	res := make([]Descriptor, 0, len(registry))
	for _, d := range registry {
		res = append(res, d)
	}
	slices.SortFunc(res, func(a, b Descriptor) int {
		if c := strings.Compare(string(a.Level), string(b.Level)); c != 0 {
			return c
		}
		return strings.Compare(string(a.Kind), string(b.Kind))
	})
	return res
}

// CheckDefinition is one concrete check to execute: a kind bound to a table,
// optionally a field or a concept, plus the rule-specific parameters the
// kind's template substitutes. Definitions are built once per run by the
// loader and never mutated.
type CheckDefinition struct {
	Kind          Kind
	TableName     string
	FieldName     string
	ConceptID     int64
	UnitConceptID int64
	Params        sqltemplate.Context
}

func (d *CheckDefinition) Descriptor() Descriptor {
	return registry[d.Kind]
}

// CheckID is the identity of a check in the report, unique across a run:
// level, kind, table, then field/concept qualifiers when present, joined by
// underscores, lower-cased, spaces stripped.
func (d *CheckDefinition) CheckID() string {
	desc := d.Descriptor()
	items := []string{string(desc.Level), string(d.Kind), d.TableName}
	if d.FieldName != "" {
		items = append(items, d.FieldName)
	}
	if d.ConceptID != 0 {
		items = append(items, strconv.FormatInt(d.ConceptID, 10))
	}
	if d.UnitConceptID != 0 {
		items = append(items, strconv.FormatInt(d.UnitConceptID, 10))
	}
	for i, item := range items {
		items[i] = strings.ReplaceAll(item, " ", "")
	}
	return strings.ToLower(strings.Join(items, "_"))
}

// Description renders the kind's description template against the check's
// own parameters. Unresolvable placeholders degrade to the raw template
// rather than failing the check.
func (d *CheckDefinition) Description() string {
	desc := d.Descriptor()
	tmpl, err := sqltemplate.Parse(string(d.Kind), desc.Description)
	if err != nil {
		return desc.Description
	}
	rendered, err := tmpl.Render(d.Params)
	if err != nil {
		return desc.Description
	}
	return rendered
}
