package launcher

import (
	"errors"
	"fmt"
	"path/filepath"
	"runtime"
	"strings"
)

// ErrFirefoxNotInstalled is returned when no default browser installation
// could be found.
var ErrFirefoxNotInstalled = errors.New("couldn't detect a Firefox installation on this system; pass --binary")

// LookupFunc looks up an environment variable, like os.LookupEnv.
type LookupFunc func(key string) (string, bool)

// LookPathFunc resolves an executable name or path, like exec.LookPath.
type LookPathFunc func(file string) (string, error)

// Discover returns the first default browser location that lookPath
// accepts. Candidates depend on goos; env supplies the per-user install
// roots on macOS and Windows.
func Discover(goos string, env LookupFunc, lookPath LookPathFunc) (string, error) {
	for _, candidate := range candidates(goos, env) {
		if path, err := lookPath(candidate); err == nil {
			return path, nil
		}
	}
	return "", fmt.Errorf("%w (os: %s)", ErrFirefoxNotInstalled, goos)
}

// candidates lists default browser locations for goos, most preferred first.
func candidates(goos string, env LookupFunc) []string {
	switch goos {
	case "darwin":
		paths := []string{
			"/Applications/Firefox.app/Contents/MacOS/firefox",
			"/Applications/Firefox Developer Edition.app/Contents/MacOS/firefox",
			"/Applications/Firefox Nightly.app/Contents/MacOS/firefox",
		}
		if home, ok := env("HOME"); ok && home != "" {
			paths = append(paths, filepath.Join(home, "Applications/Firefox.app/Contents/MacOS/firefox"))
		}
		return paths

	case "windows":
		paths := []string{"firefox", "firefox.exe"}
		for _, key := range []string{"ProgramFiles", "ProgramFiles(x86)", "ProgramW6432"} {
			if dir, ok := env(key); ok && dir != "" {
				paths = append(paths, dir+`\Mozilla Firefox\firefox.exe`)
			}
		}
		paths = append(paths,
			`C:\Program Files\Mozilla Firefox\firefox.exe`,
			`C:\Program Files (x86)\Mozilla Firefox\firefox.exe`,
		)
		if local, ok := env("LOCALAPPDATA"); ok && local != "" {
			paths = append(paths, local+`\Mozilla Firefox\firefox.exe`)
		}
		return dedupe(paths)

	default:
		return []string{
			"firefox",
			"firefox-esr",
			"firefox-developer-edition",
			"firefox-nightly",
			"/usr/bin/firefox",
			"/usr/lib/firefox/firefox",
			"/snap/bin/firefox",
			"/opt/firefox/firefox",
		}
	}
}

func dedupe(paths []string) []string {
	seen := make(map[string]bool, len(paths))
	out := paths[:0]
	for _, p := range paths {
		key := strings.ToLower(p)
		if seen[key] {
			continue
		}
		seen[key] = true
		out = append(out, p)
	}
	return out
}

// currentOS is the platform Discover probes by default.
var currentOS = runtime.GOOS
