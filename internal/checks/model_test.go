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
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cdmlint/cdmlint/internal/sqltemplate"
)

func TestCheckDefinition_CheckID(t *testing.T) {
	tests := []struct {
		name     string
		def      CheckDefinition
		expected string
	}{
		{
			name: "table level",
			def: CheckDefinition{
				Kind:      CDMTable,
				TableName: "person",
			},
			expected: "table_cdmtable_person",
		},
		{
			name: "field level",
			def: CheckDefinition{
				Kind:      IsRequired,
				TableName: "person",
				FieldName: "person_id",
			},
			expected: "field_isrequired_person_person_id",
		},
		{
			name: "concept level with unit",
			def: CheckDefinition{
				Kind:          PlausibleUnitConceptIds,
				TableName:     "measurement",
				FieldName:     "unit_concept_id",
				ConceptID:     3000963,
				UnitConceptID: 8713,
			},
			expected: "concept_plausibleunitconceptids_measurement_unit_concept_id_3000963_8713",
		},
		{
			name: "concept level without unit",
			def: CheckDefinition{
				Kind:      PlausibleUnitConceptIds,
				TableName: "measurement",
				FieldName: "unit_concept_id",
				ConceptID: 3000963,
			},
			expected: "concept_plausibleunitconceptids_measurement_unit_concept_id_3000963",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, tt.def.CheckID())
		})
	}
}

func TestCheckDefinition_Description(t *testing.T) {
	def := CheckDefinition{
		Kind:      IsRequired,
		TableName: "person",
		FieldName: "person_id",
		Params: sqltemplate.Context{
			"cdmTableName": sqltemplate.StringValue("person"),
			"cdmFieldName": sqltemplate.StringValue("person_id"),
		},
	}
	desc := def.Description()
	assert.Contains(t, desc, "person")
	assert.Contains(t, desc, "person_id")
	assert.NotContains(t, desc, "{{")
}

func TestCheckDefinition_Description_MissingParams(t *testing.T) {
	def := CheckDefinition{Kind: IsRequired, TableName: "person", FieldName: "person_id"}
	desc, ok := Lookup(IsRequired)
	require.True(t, ok)
	// With no parameters the raw template is returned instead of an error.
	assert.Equal(t, desc.Description, def.Description())
}

func TestLookup(t *testing.T) {
	desc, ok := Lookup(PlausibleGender)
	require.True(t, ok)
	assert.Equal(t, FieldLevel, desc.Level)
	assert.Equal(t, CategoryPlausibility, desc.Category)
	assert.Equal(t, "field_plausible_gender.sql", desc.SQLFile)

	_, ok = Lookup(Kind("noSuchCheck"))
	assert.False(t, ok)
}

func TestAll(t *testing.T) {
	all := All()
	require.Len(t, all, 18)

	seen := map[Kind]bool{}
	for _, d := range all {
		assert.False(t, seen[d.Kind], "duplicate descriptor %s", d.Kind)
		seen[d.Kind] = true
		assert.NotEmpty(t, d.SQLFile)
		assert.NotEmpty(t, d.Description)
	}

	for i := 1; i < len(all); i++ {
		prev, cur := all[i-1], all[i]
		if prev.Level == cur.Level {
			assert.Less(t, string(prev.Kind), string(cur.Kind))
		}
	}
}
