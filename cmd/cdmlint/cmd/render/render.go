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

package render

import (
	"fmt"
	"os"
	"slices"
	"strings"

	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"github.com/cdmlint/cdmlint/internal/checks"
	"github.com/cdmlint/cdmlint/internal/dbms"
	"github.com/cdmlint/cdmlint/internal/domains"
	"github.com/cdmlint/cdmlint/internal/runner"
	"github.com/cdmlint/cdmlint/internal/utils/logger"
)

var (
	Cmd = &cobra.Command{
		Use:   "render [checkId ...]",
		Short: "render check queries to stdout without executing them",
		Run: func(cmd *cobra.Command, args []string) {
			if err := logger.SetLogLevel(Config.Log.Level, Config.Log.Format); err != nil {
				log.Fatal().Err(err).Msg("")
			}

			// These flags shadow the same keys bound by the run command,
			// so they are applied directly instead of through viper.
			if v, _ := cmd.Flags().GetString("cdm-schema"); v != "" {
				Config.Run.CdmSchema = v
			}
			if v, _ := cmd.Flags().GetString("csv-dir"); v != "" {
				Config.Run.CsvDir = v
			}
			if v, _ := cmd.Flags().GetString("dbms"); v != "" {
				Config.Connection.Dbms = v
			}

			if err := run(args); err != nil {
				log.Fatal().Err(err).Msg("")
			}
		},
	}
	Config = domains.NewConfig()
)

func run(checkIds []string) error {
	if Config.Run.CdmSchema == "" {
		return fmt.Errorf("run.cdm_schema cannot be empty")
	}
	if Config.Run.CsvDir == "" {
		return fmt.Errorf("run.csv_dir cannot be empty")
	}
	kind, err := dbms.ParseKind(Config.Connection.Dbms)
	if err != nil {
		return err
	}

	loader := checks.NewLoader(Config.Run.CsvDir, Config.Run.CdmVersion)
	defs, _, err := loader.Load(checks.Filter{
		Tables:        Config.Run.Tables,
		ExcludeTables: Config.Run.ExcludeTables,
		CheckNames:    Config.Run.Checks,
	})
	if err != nil {
		return err
	}

	runCtx := &runner.RunContext{
		Dbms:               kind,
		CDMSchema:          Config.Run.CdmSchema,
		VocabSchema:        Config.Run.VocabSchema,
		CohortSchema:       Config.Run.CohortSchema,
		Cohort:             Config.Run.Cohort,
		CohortDefinitionID: Config.Run.CohortDefinitionId,
		CDMVersion:         Config.Run.CdmVersion,
	}
	r := runner.New(nil, runCtx, 1)

	rendered := 0
	for i := range defs {
		id := defs[i].CheckID()
		if len(checkIds) > 0 && !slices.ContainsFunc(checkIds, func(s string) bool {
			return strings.EqualFold(s, id)
		}) {
			continue
		}
		query, err := r.Render(&defs[i])
		if err != nil {
			return fmt.Errorf("cannot render check %s: %w", id, err)
		}
		if _, err := fmt.Fprintf(os.Stdout, "-- %s\n%s;\n\n", id, query); err != nil {
			return err
		}
		rendered++
	}
	if len(checkIds) > 0 && rendered == 0 {
		return fmt.Errorf("no check matched the requested ids")
	}
	return nil
}

func init() {
	Cmd.Flags().String("cdm-schema", "", "schema holding the CDM tables")
	Cmd.Flags().String("csv-dir", "", "directory with the check metadata csv files")
	Cmd.Flags().String("dbms", "", "target dialect [postgresql|tsql|sqlite]")
}
