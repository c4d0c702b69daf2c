package cli

import (
	"encoding/json"
	"fmt"
	"io"
	"strings"
)

// runResultJSON is the --json output of the run command.
type runResultJSON struct {
	AddonDir string `json:"addonDir"`
	AddonID  string `json:"addonId"`
	Profile  string `json:"profile"`
	Pid      int    `json:"pid"`
	Kept     bool   `json:"profileKept"`
}

// testResultJSON is the --json output of the test command.
type testResultJSON struct {
	AddonDir string   `json:"addonDir"`
	AddonID  string   `json:"addonId"`
	Profile  string   `json:"profile"`
	Pid      int      `json:"pid"`
	TestDir  string   `json:"testDir"`
	Command  []string `json:"command"`
	Output   string   `json:"output"`
}

// writeJSON writes v as indented JSON followed by a newline.
func writeJSON(w io.Writer, v any) error {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return err
	}
	_, err = fmt.Fprintln(w, string(data))
	return err
}

// formatCommandLine renders argv the way a user would type it, quoting
// arguments that contain spaces.
func formatCommandLine(argv []string) string {
	parts := make([]string, len(argv))
	for i, a := range argv {
		if a == "" || strings.ContainsAny(a, " \t\"'") {
			parts[i] = fmt.Sprintf("%q", a)
			continue
		}
		parts[i] = a
	}
	return strings.Join(parts, " ")
}
