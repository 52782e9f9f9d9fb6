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

package domains

import (
	"sync"

	"github.com/cdmlint/cdmlint/internal/dbms"
)

var (
	Cfg  *Config
	once sync.Once
)

const (
	defaultCdmVersion   = "5.3"
	defaultOutputFolder = "output"
	defaultOutputFile   = "dq-results.json"
)

// vocabularyTables are excluded from checking unless requested explicitly:
// they are reference content shipped with the vocabulary, not site data.
var vocabularyTables = []string{
	"concept", "vocabulary", "concept_ancestor", "concept_relationship",
	"concept_class", "concept_synonym", "relationship", "domain",
	"drug_strength", "source_to_concept_map",
}

func NewConfig() *Config {
	once.Do(
		func() {
			Cfg = &Config{
				Connection: *dbms.NewConfig(),
				Run: Run{
					CdmVersion:    defaultCdmVersion,
					ExcludeTables: vocabularyTables,
					OutputFolder:  defaultOutputFolder,
					OutputFile:    defaultOutputFile,
				},
			}
		},
	)
	return Cfg
}

type Config struct {
	Log        LogConfig   `mapstructure:"log" yaml:"log" json:"log"`
	Connection dbms.Config `mapstructure:"connection" yaml:"connection" json:"connection"`
	Run        Run         `mapstructure:"run" yaml:"run" json:"run"`
}

type LogConfig struct {
	Format string `mapstructure:"format" yaml:"format" json:"format,omitempty"`
	Level  string `mapstructure:"level" yaml:"level" json:"level,omitempty"`
}

type Run struct {
	CdmSchema          string   `mapstructure:"cdm_schema" yaml:"cdm_schema" json:"cdm_schema"`
	VocabSchema        string   `mapstructure:"vocab_schema" yaml:"vocab_schema" json:"vocab_schema,omitempty"`
	CohortSchema       string   `mapstructure:"cohort_schema" yaml:"cohort_schema" json:"cohort_schema,omitempty"`
	Cohort             bool     `mapstructure:"cohort" yaml:"cohort" json:"cohort,omitempty"`
	CohortDefinitionId int64    `mapstructure:"cohort_definition_id" yaml:"cohort_definition_id" json:"cohort_definition_id,omitempty"`
	CdmVersion         string   `mapstructure:"cdm_version" yaml:"cdm_version" json:"cdm_version"`
	CdmSourceName      string   `mapstructure:"cdm_source_name" yaml:"cdm_source_name" json:"cdm_source_name,omitempty"`
	CsvDir             string   `mapstructure:"csv_dir" yaml:"csv_dir" json:"csv_dir"`
	Tables             []string `mapstructure:"tables" yaml:"tables" json:"tables,omitempty"`
	ExcludeTables      []string `mapstructure:"exclude_tables" yaml:"exclude_tables" json:"exclude_tables,omitempty"`
	Checks             []string `mapstructure:"checks" yaml:"checks" json:"checks,omitempty"`
	Workers            int      `mapstructure:"workers" yaml:"workers" json:"workers,omitempty"`
	OutputFolder       string   `mapstructure:"output_folder" yaml:"output_folder" json:"output_folder"`
	OutputFile         string   `mapstructure:"output_file" yaml:"output_file" json:"output_file"`
	WriteCsv           bool     `mapstructure:"write_csv" yaml:"write_csv" json:"write_csv,omitempty"`
	SqlOnly            bool     `mapstructure:"sql_only" yaml:"sql_only" json:"sql_only,omitempty"`
}
