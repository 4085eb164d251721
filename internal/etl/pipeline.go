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

package etl

import (
	"context"
	"fmt"

	"github.com/hashicorp/go-multierror"

	"github.com/cardinalhq/streamlake/internal/logctx"
)

// Pipeline sequences landing-to-raw then raw-to-trusted for one batch.
// Promotion runs only for the tables the landing stage succeeded on;
// tables that failed stage one are reported once, not failed twice.
type Pipeline struct {
	landing Processor
	trusted Processor
}

// NewPipeline wires the two stages together.
func NewPipeline(landing, trusted Processor) *Pipeline {
	return &Pipeline{landing: landing, trusted: trusted}
}

// Run executes both stages and returns the union of per-table outcomes.
// The returned error is non-nil if any table failed either stage, even
// when others succeeded; partial success stays visible.
func (p *Pipeline) Run(ctx context.Context, batch Batch) ([]TableOutcome, error) {
	ll := logctx.FromContext(ctx)

	outcomes := p.landing.Run(ctx, batch)

	var promotable []string
	for _, o := range outcomes {
		if o.Err == nil {
			promotable = append(promotable, o.TableName)
		}
	}

	if len(promotable) > 0 {
		next := batch
		next.TableSet = promotable
		outcomes = append(outcomes, p.trusted.Run(ctx, next)...)
	} else {
		ll.Error("skipping promotion, no table survived the landing stage",
			"ingestion_date", batch.IngestionDate)
	}

	return outcomes, Summarize(outcomes)
}

// Summarize folds per-table outcomes into one error, nil when every table
// succeeded. Warnings (catalog registrations over durable data) are not
// failures and do not contribute.
func Summarize(outcomes []TableOutcome) error {
	var merr *multierror.Error
	for _, o := range outcomes {
		if o.Err != nil {
			merr = multierror.Append(merr, fmt.Errorf("table %s, stage %s: %w", o.TableName, o.Stage, o.Err))
		}
	}
	return merr.ErrorOrNil()
}
