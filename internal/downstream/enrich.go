package downstream

import (
	"context"
	"errors"
	"io/fs"
	"os"

	"priceregistry/internal/components/assert"
	"priceregistry/internal/components/telemetry"
	"priceregistry/internal/partition"
)

const (
	report_enricher_list_outputs = "enricher.list-outputs"
	report_enricher_created      = "enricher.created"
)

// Enricher geocodes every committed year partition into
// output/contracts_<year>_with_location.xlsx.
type Enricher struct {
	cmd command
}

func NewEnricher(argv []string, layout partition.Layout, tel telemetry.API) Enricher {
	assert.NotNil(tel)
	return Enricher{
		cmd: command{
			argv:   argv,
			layout: layout,
			tel:    telemetry.NewScopedAPI("enricher", tel),
		},
	}
}

// Enrich runs the enrichment command and returns how many files it added to
// the output directory. Without a command it does nothing.
func (e Enricher) Enrich(ctx context.Context) (int, error) {
	if !e.cmd.enabled() {
		e.cmd.tel.ReportDebug("no enrichment command configured")
		return 0, nil
	}

	before, err := e.outputs()
	if err != nil {
		return 0, err
	}
	err = e.cmd.run(ctx)
	if err != nil {
		return 0, err
	}
	after, err := e.outputs()
	if err != nil {
		return 0, err
	}

	created := 0
	for name := range after {
		if _, ok := before[name]; !ok {
			created++
		}
	}
	e.cmd.tel.ReportCount(report_enricher_created, int64(created))
	return created, nil
}

func (e Enricher) outputs() (map[string]struct{}, error) {
	entries, err := os.ReadDir(e.cmd.layout.OutputDir())
	if errors.Is(err, fs.ErrNotExist) {
		return map[string]struct{}{}, nil
	}
	if err != nil {
		e.cmd.tel.ReportBroken(report_enricher_list_outputs, err)
		return nil, &partition.FilesystemError{Op: "readdir", Path: e.cmd.layout.OutputDir(), Err: err}
	}

	out := make(map[string]struct{}, len(entries))
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		out[entry.Name()] = struct{}{}
	}
	return out, nil
}
