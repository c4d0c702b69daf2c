package profile

import (
	"bufio"
	"bytes"
	"fmt"
	"io"
	"regexp"
	"sort"
	"strconv"
	"strings"
)

// UserPrefsFile is the profile file the preference overrides are written to.
const UserPrefsFile = "user.js"

// Preferences maps preference names to bool, int or string values.
type Preferences map[string]any

// FixedPreferences returns the overrides every shield profile carries:
// unsigned extensions may be installed and extension logging is off.
func FixedPreferences() Preferences {
	return Preferences{
		"xpinstall.signatures.required": false,
		"extensions.logging.enabled":    false,
	}
}

// Clone returns a shallow copy of p.
func (p Preferences) Clone() Preferences {
	out := make(Preferences, len(p))
	for k, v := range p {
		out[k] = v
	}
	return out
}

// Names returns the preference names in sorted order.
func (p Preferences) Names() []string {
	names := make([]string, 0, len(p))
	for k := range p {
		names = append(names, k)
	}
	sort.Strings(names)
	return names
}

// Validate checks that every value has a type user.js can express.
func (p Preferences) Validate() error {
	for _, name := range p.Names() {
		if strings.TrimSpace(name) == "" {
			return fmt.Errorf("preference name must not be empty")
		}
		if _, err := formatValue(p[name]); err != nil {
			return fmt.Errorf("preference %q: %w", name, err)
		}
	}
	return nil
}

// WriteTo writes p as user_pref lines in name order.
func (p Preferences) WriteTo(w io.Writer) (int64, error) {
	var buf bytes.Buffer
	for _, name := range p.Names() {
		value, err := formatValue(p[name])
		if err != nil {
			return 0, fmt.Errorf("preference %q: %w", name, err)
		}
		fmt.Fprintf(&buf, "user_pref(%s, %s);\n", strconv.Quote(name), value)
	}
	n, err := w.Write(buf.Bytes())
	return int64(n), err
}

func formatValue(v any) (string, error) {
	switch v := v.(type) {
	case bool:
		return strconv.FormatBool(v), nil
	case int:
		return strconv.Itoa(v), nil
	case int64:
		return strconv.FormatInt(v, 10), nil
	case string:
		return strconv.Quote(v), nil
	default:
		return "", fmt.Errorf("unsupported value type %T", v)
	}
}

var userPrefLine = regexp.MustCompile(`^\s*user_pref\(\s*("(?:[^"\\]|\\.)*")\s*,\s*(.+?)\s*\)\s*;\s*$`)

// ParsePreferences reads user_pref lines from a user.js or prefs.js file.
// Blank lines and // comments are ignored; anything else is an error.
func ParsePreferences(r io.Reader) (Preferences, error) {
	prefs := Preferences{}
	sc := bufio.NewScanner(r)
	lineNo := 0
	for sc.Scan() {
		lineNo++
		line := strings.TrimSpace(sc.Text())
		if line == "" || strings.HasPrefix(line, "//") {
			continue
		}

		m := userPrefLine.FindStringSubmatch(line)
		if m == nil {
			return nil, fmt.Errorf("line %d: not a user_pref statement", lineNo)
		}
		name, err := strconv.Unquote(m[1])
		if err != nil {
			return nil, fmt.Errorf("line %d: bad preference name: %w", lineNo, err)
		}
		value, err := parseValue(m[2])
		if err != nil {
			return nil, fmt.Errorf("line %d: %w", lineNo, err)
		}
		prefs[name] = value
	}
	if err := sc.Err(); err != nil {
		return nil, err
	}
	return prefs, nil
}

func parseValue(raw string) (any, error) {
	switch {
	case raw == "true":
		return true, nil
	case raw == "false":
		return false, nil
	case strings.HasPrefix(raw, `"`):
		s, err := strconv.Unquote(raw)
		if err != nil {
			return nil, fmt.Errorf("bad string value %s: %w", raw, err)
		}
		return s, nil
	default:
		n, err := strconv.Atoi(raw)
		if err != nil {
			return nil, fmt.Errorf("bad value %s", raw)
		}
		return n, nil
	}
}
