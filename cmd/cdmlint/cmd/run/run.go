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

package run

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/cdmlint/cdmlint/internal/checks"
	"github.com/cdmlint/cdmlint/internal/dbms"
	"github.com/cdmlint/cdmlint/internal/domains"
	"github.com/cdmlint/cdmlint/internal/report"
	"github.com/cdmlint/cdmlint/internal/runner"
	"github.com/cdmlint/cdmlint/internal/utils/logger"
)

var (
	Cmd = &cobra.Command{
		Use:   "run",
		Short: "execute the data quality checks and write the quality report",
		Run: func(cmd *cobra.Command, args []string) {
			if err := logger.SetLogLevel(Config.Log.Level, Config.Log.Format); err != nil {
				log.Fatal().Err(err).Msg("")
			}

			ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
			defer cancel()

			if err := run(ctx); err != nil {
				log.Fatal().Err(err).Msg("")
			}
		},
	}
	Config = domains.NewConfig()
)

func run(ctx context.Context) error {
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
	log.Info().
		Int("Checks", len(defs)).
		Str("CdmVersion", Config.Run.CdmVersion).
		Str("Dbms", string(kind)).
		Msg("check definitions loaded")

	runCtx := &runner.RunContext{
		Dbms:               kind,
		CDMSchema:          Config.Run.CdmSchema,
		VocabSchema:        Config.Run.VocabSchema,
		CohortSchema:       Config.Run.CohortSchema,
		Cohort:             Config.Run.Cohort,
		CohortDefinitionID: Config.Run.CohortDefinitionId,
		CDMVersion:         Config.Run.CdmVersion,
	}

	if Config.Run.SqlOnly {
		return writeQueries(runCtx, defs)
	}

	backend, err := dbms.Connect(ctx, &Config.Connection)
	if err != nil {
		return err
	}
	defer backend.Close()

	started := time.Now()
	results := runner.New(runner.BackendPool{Backend: backend}, runCtx, Config.Run.Workers).
		Execute(ctx, defs)
	finished := time.Now()

	outputPath := filepath.Join(Config.Run.OutputFolder, Config.Run.OutputFile)
	rep := report.Aggregate(results, report.Metadata{
		RunID:          uuid.NewString(),
		CDMVersion:     Config.Run.CdmVersion,
		CDMSourceName:  Config.Run.CdmSourceName,
		Dbms:           string(kind),
		StartTimestamp: started,
		EndTimestamp:   finished,
		ExecutionTime:  finished.Sub(started).Round(time.Millisecond).String(),
		OutputFile:     outputPath,
	})

	if err := writeReport(rep, outputPath, Config.Run.WriteCsv); err != nil {
		return err
	}

	log.Info().
		Str("OutputFile", outputPath).
		Int("CountTotal", rep.Overview.CountTotal).
		Int("CountPassed", rep.Overview.CountPassed).
		Int("CountFailed", rep.Overview.CountFailed).
		Int("CountError", rep.Overview.CountError).
		Msg("run finished")
	return nil
}

func writeReport(rep *report.QualityReport, outputPath string, writeCsv bool) error {
	if err := os.MkdirAll(filepath.Dir(outputPath), 0755); err != nil {
		return fmt.Errorf("cannot create output folder: %w", err)
	}
	f, err := os.Create(outputPath)
	if err != nil {
		return fmt.Errorf("cannot create report file: %w", err)
	}
	defer f.Close()
	if err := rep.WriteJSON(f); err != nil {
		return fmt.Errorf("cannot write report: %w", err)
	}

	if !writeCsv {
		return nil
	}
	csvPath := strings.TrimSuffix(outputPath, filepath.Ext(outputPath)) + ".csv"
	cf, err := os.Create(csvPath)
	if err != nil {
		return fmt.Errorf("cannot create csv report file: %w", err)
	}
	defer cf.Close()
	if err := rep.WriteCSV(cf); err != nil {
		return fmt.Errorf("cannot write csv report: %w", err)
	}
	return nil
}

// writeQueries renders every check without connecting and dumps the SQL to
// the output folder, one statement per check.
func writeQueries(runCtx *runner.RunContext, defs []checks.CheckDefinition) error {
	r := runner.New(nil, runCtx, 1)
	outputPath := filepath.Join(Config.Run.OutputFolder, "dq-queries.sql")
	if err := os.MkdirAll(filepath.Dir(outputPath), 0755); err != nil {
		return fmt.Errorf("cannot create output folder: %w", err)
	}
	f, err := os.Create(outputPath)
	if err != nil {
		return fmt.Errorf("cannot create query file: %w", err)
	}
	defer f.Close()

	for i := range defs {
		query, err := r.Render(&defs[i])
		if err != nil {
			log.Warn().
				Str("CheckId", defs[i].CheckID()).
				Err(err).
				Msg("check query cannot be rendered")
			continue
		}
		if _, err := fmt.Fprintf(f, "-- %s\n%s;\n\n", defs[i].CheckID(), query); err != nil {
			return err
		}
	}
	log.Info().Str("OutputFile", outputPath).Msg("queries written")
	return nil
}

func init() {
	cdmSchemaFlagName := "cdm-schema"
	Cmd.Flags().String(
		cdmSchemaFlagName, "", "schema holding the CDM tables",
	)
	if err := viper.BindPFlag("run.cdm_schema", Cmd.Flags().Lookup(cdmSchemaFlagName)); err != nil {
		log.Fatal().Err(err).Msg("")
	}

	vocabSchemaFlagName := "vocab-schema"
	Cmd.Flags().String(
		vocabSchemaFlagName, "", "schema holding the vocabulary tables, defaults to the CDM schema",
	)
	if err := viper.BindPFlag("run.vocab_schema", Cmd.Flags().Lookup(vocabSchemaFlagName)); err != nil {
		log.Fatal().Err(err).Msg("")
	}

	csvDirFlagName := "csv-dir"
	Cmd.Flags().String(
		csvDirFlagName, "", "directory with the check metadata csv files",
	)
	if err := viper.BindPFlag("run.csv_dir", Cmd.Flags().Lookup(csvDirFlagName)); err != nil {
		log.Fatal().Err(err).Msg("")
	}

	cdmVersionFlagName := "cdm-version"
	Cmd.Flags().String(
		cdmVersionFlagName, "5.3", "CDM version of the metadata files, for example 5.3",
	)
	if err := viper.BindPFlag("run.cdm_version", Cmd.Flags().Lookup(cdmVersionFlagName)); err != nil {
		log.Fatal().Err(err).Msg("")
	}

	tablesFlagName := "table"
	Cmd.Flags().StringSlice(
		tablesFlagName, nil, "run checks only for the listed CDM tables",
	)
	if err := viper.BindPFlag("run.tables", Cmd.Flags().Lookup(tablesFlagName)); err != nil {
		log.Fatal().Err(err).Msg("")
	}

	checksFlagName := "check"
	Cmd.Flags().StringSlice(
		checksFlagName, nil, "run only the listed check kinds",
	)
	if err := viper.BindPFlag("run.checks", Cmd.Flags().Lookup(checksFlagName)); err != nil {
		log.Fatal().Err(err).Msg("")
	}

	workersFlagName := "workers"
	Cmd.Flags().Int(
		workersFlagName, runner.DefaultWorkers, "number of parallel check executors",
	)
	if err := viper.BindPFlag("run.workers", Cmd.Flags().Lookup(workersFlagName)); err != nil {
		log.Fatal().Err(err).Msg("")
	}

	sqlOnlyFlagName := "sql-only"
	Cmd.Flags().Bool(
		sqlOnlyFlagName, false, "render the check queries without executing them",
	)
	if err := viper.BindPFlag("run.sql_only", Cmd.Flags().Lookup(sqlOnlyFlagName)); err != nil {
		log.Fatal().Err(err).Msg("")
	}

	writeCsvFlagName := "write-csv"
	Cmd.Flags().Bool(
		writeCsvFlagName, false, "write the per-check results as csv next to the json report",
	)
	if err := viper.BindPFlag("run.write_csv", Cmd.Flags().Lookup(writeCsvFlagName)); err != nil {
		log.Fatal().Err(err).Msg("")
	}
}
