package downstream

import (
	"context"

	"priceregistry/internal/components/assert"
	"priceregistry/internal/components/telemetry"
	"priceregistry/internal/partition"
)

// Reporter merges the enriched spreadsheets into output/contracts.xlsx.
type Reporter struct {
	cmd command
}

func NewReporter(argv []string, layout partition.Layout, tel telemetry.API) Reporter {
	assert.NotNil(tel)
	return Reporter{
		cmd: command{
			argv:   argv,
			layout: layout,
			tel:    telemetry.NewScopedAPI("reporter", tel),
		},
	}
}

func (r Reporter) Report(ctx context.Context) error {
	if !r.cmd.enabled() {
		r.cmd.tel.ReportDebug("no report command configured")
		return nil
	}
	return r.cmd.run(ctx)
}
