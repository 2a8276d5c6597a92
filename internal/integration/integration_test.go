//go:build integration

package integration

import (
	"flag"
	"fmt"
	"os"
	"testing"
)

var integrationConfig string

func init() {
	flag.StringVar(&integrationConfig, "integration-config", "", "Path to integration configuration file")
}

var targets []Target

func TestMain(m *testing.M) {
	flag.Parse()

	if integrationConfig == "" {
		fmt.Fprintln(os.Stderr, "Error: -integration-config flag is required for integration tests")
		os.Exit(1)
	}

	var err error
	targets, err = loadTargets(integrationConfig)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load %s: %v\n", integrationConfig, err)
		os.Exit(1)
	}

	os.Exit(m.Run())
}
