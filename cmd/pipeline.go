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
	"time"

	"github.com/spf13/cobra"

	"github.com/cardinalhq/streamlake/internal/etl"
)

var pipelineCmd = &cobra.Command{
	Use:   "pipeline",
	Short: "Run ingest then promote for one ingestion date",
	Long:  `Run the landing-to-raw stage and, for every table it succeeded on, the raw-to-trusted stage. Exits non-zero if any table failed either stage.`,
	RunE: func(cmd *cobra.Command, _ []string) error {
		ctx, rt, err := setup(cmd.Context())
		if err != nil {
			return err
		}
		defer rt.Close()

		started := time.Now()
		pipe := etl.NewPipeline(
			etl.NewLandingToRaw(rt.cfg, rt.store, rt.cat, rt.registry),
			etl.NewRawToTrusted(rt.cfg, rt.store, rt.engine, rt.cat, rt.registry),
		)
		outcomes, _ := pipe.Run(ctx, newBatch())
		return reportOutcomes(ctx, outcomes, started)
	},
}

func init() {
	rootCmd.AddCommand(pipelineCmd)
}
