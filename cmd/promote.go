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

var promoteCmd = &cobra.Command{
	Use:   "promote",
	Short: "Promote raw partitions into the trusted layer",
	Long:  `Read each table's raw partition for the ingestion date, apply quality rules and schema coercion, and write the surviving rows as columnar trusted data.`,
	RunE: func(cmd *cobra.Command, _ []string) error {
		ctx, rt, err := setup(cmd.Context())
		if err != nil {
			return err
		}
		defer rt.Close()

		started := time.Now()
		proc := etl.NewRawToTrusted(rt.cfg, rt.store, rt.engine, rt.cat, rt.registry)
		return reportOutcomes(ctx, proc.Run(ctx, newBatch()), started)
	},
}

func init() {
	rootCmd.AddCommand(promoteCmd)
}
