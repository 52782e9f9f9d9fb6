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

package list_checks

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/olekukonko/tablewriter"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"github.com/cdmlint/cdmlint/internal/checks"
	"github.com/cdmlint/cdmlint/internal/domains"
	"github.com/cdmlint/cdmlint/internal/utils/logger"
)

var (
	Cmd = &cobra.Command{
		Use:   "list-checks",
		Short: "list the supported check kinds with documentation",
		Run: func(cmd *cobra.Command, args []string) {
			if err := logger.SetLogLevel(Config.Log.Level, Config.Log.Format); err != nil {
				log.Err(err).Msg("")
			}

			if err := run(); err != nil {
				log.Err(err).Msg("")
			}
		},
	}
	Config = domains.NewConfig()
	format string
)

const (
	JsonFormatName = "json"
	TextFormatName = "text"
)

func run() error {
	switch format {
	case JsonFormatName:
		return listChecksJson()
	case TextFormatName:
		return listChecksText()
	default:
		return fmt.Errorf(`unknown format %s`, format)
	}
}

func listChecksJson() error {
	return json.NewEncoder(os.Stdout).Encode(checks.All())
}

func listChecksText() error {
	table := tablewriter.NewWriter(os.Stdout)
	table.SetHeader([]string{"name", "level", "category", "description"})
	for _, desc := range checks.All() {
		table.Append([]string{
			string(desc.Kind),
			string(desc.Level),
			desc.Category,
			desc.Description,
		})
	}
	table.SetRowLine(true)
	table.Render()
	return nil
}

func init() {
	Cmd.Flags().StringVarP(&format, "format", "f", TextFormatName, "output format [text|json]")
}
