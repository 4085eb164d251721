// Copyright (C) 2025 CardinalHQ, Inc
//
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as
// published by the Free Software Foundation, version 3.
//
// This program is distributed in the hope that it will be useful,
// but WITHOUT ANY WARRANTY; without even the implied warranty of
// MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE. See the
// GNU Affero General Public License for more details.
//
// You should have received a copy of the GNU Affero General Public License
// along with this program. If not, see <http://www.gnu.org/licenses/>.

package cmd

import (
	"os"
	"time"

	"github.com/spf13/cobra"
)

var (
	envFlag           string
	ingestionDateFlag string
	tablesFlag        []string
)

// rootCmd represents the base command when called without any subcommands
var rootCmd = &cobra.Command{
	Use:   "streamlake",
	Short: "Layered lakehouse ETL for streaming telemetry",
	Long: `Move streaming-platform telemetry through the lakehouse layers:
dated landing files into date-partitioned raw object storage, and raw
partitions into validated, columnar trusted datasets.`,
}

func init() {
	rootCmd.PersistentFlags().StringVar(&envFlag, "env", "dev", "environment to load configuration for (dev, prod)")
	rootCmd.PersistentFlags().StringVar(&ingestionDateFlag, "ingestion_date", time.Now().UTC().Format("2006-01-02"), "ingestion date to process (YYYY-MM-DD)")
	rootCmd.PersistentFlags().StringSliceVar(&tablesFlag, "tables", nil, "restrict the run to these tables (default all configured)")
}

// Execute adds all child commands to the root command and sets flags appropriately.
// This is called by main.main(). It only needs to happen once to the rootCmd.
func Execute() {
	err := rootCmd.Execute()
	if err != nil {
		os.Exit(1)
	}
}
