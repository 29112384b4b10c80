// Package downstream runs the enrichment and report steps that follow a
// collection. Both are external programs configured as an argv, the data
// root and the output directory are handed to them through the environment.
package downstream

import (
	"bufio"
	"bytes"
	"context"
	"fmt"
	"os"
	"os/exec"
	"strings"

	"priceregistry/internal/components/telemetry"
	"priceregistry/internal/partition"
)

const (
	EnvDataDir   = "PRICEREGISTRY_DATA_DIR"
	EnvOutputDir = "PRICEREGISTRY_OUTPUT_DIR"
)

// stderr lines kept in the error of a failed command
const stderrTail = 20

type command struct {
	argv   []string
	layout partition.Layout
	tel    telemetry.API
}

func (c command) enabled() bool {
	return len(c.argv) > 0
}

func (c command) String() string {
	return strings.Join(c.argv, " ")
}

func (c command) run(ctx context.Context) error {
	cmd := exec.CommandContext(ctx, c.argv[0], c.argv[1:]...)
	cmd.Env = append(
		os.Environ(),
		fmt.Sprintf("%s=%s", EnvDataDir, c.layout.Root),
		fmt.Sprintf("%s=%s", EnvOutputDir, c.layout.OutputDir()),
	)

	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	c.tel.ReportDebug(fmt.Sprintf("$ %s", c))
	err := cmd.Run()

	scanner := bufio.NewScanner(&stdout)
	for scanner.Scan() {
		c.tel.ReportDebug(scanner.Text())
	}

	if err != nil {
		lines := strings.Split(strings.TrimSpace(stderr.String()), "\n")
		if len(lines) > stderrTail {
			lines = lines[len(lines)-stderrTail:]
		}
		return fmt.Errorf("%s: %w: %s", c, err, strings.Join(lines, "\n"))
	}
	return nil
}
