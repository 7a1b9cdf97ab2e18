package main

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestRun(t *testing.T) {
	dir := t.TempDir()
	configPath := filepath.Join(dir, "buildfarm.yaml")
	content := "artifacts:\n  uploadRoot: " + filepath.Join(dir, "upload") + "\nlogging:\n  level: error\n"
	if err := os.WriteFile(configPath, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}
	testCases := []struct {
		description string
		args        []string
		expectErr   bool
	}{
		{description: "help", args: []string{"--help"}},
		{description: "version", args: []string{"--version"}},
		{description: "single scan", args: []string{"--config", configPath, "--once"}},
		{description: "unknown flag", args: []string{"--bogus"}, expectErr: true},
		{description: "extra argument", args: []string{"serve"}, expectErr: true},
		{description: "missing config", args: []string{"-c", filepath.Join(dir, "missing.yaml"), "--once"}, expectErr: true},
	}
	for _, testCase := range testCases {
		t.Run(testCase.description, func(t *testing.T) {
			err := run(testCase.args)
			if testCase.expectErr {
				assert.Error(t, err)
				return
			}
			assert.NoError(t, err)
		})
	}
}
