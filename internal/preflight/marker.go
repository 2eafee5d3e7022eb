package preflight

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"slices"
	"time"
)

// MarkerFile is written to the persist dir after a validation run without
// critical failures.
const MarkerFile = ".validated"

// Marker records a passing validation run.
type Marker struct {
	PassedAt time.Time `json:"passed_at"`
	Groups   []Group   `json:"groups"`
}

// MarkPassed writes the marker for the groups that ran.
func MarkPassed(dir string, groups []Group) error {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("create marker directory: %w", err)
	}
	data, err := json.Marshal(Marker{PassedAt: time.Now().UTC(), Groups: groups})
	if err != nil {
		return err
	}
	return os.WriteFile(filepath.Join(dir, MarkerFile), data, 0o644)
}

// ReadMarker returns the marker in dir, or nil when there is none or it
// cannot be parsed.
func ReadMarker(dir string) *Marker {
	data, err := os.ReadFile(filepath.Join(dir, MarkerFile))
	if err != nil {
		return nil
	}
	var m Marker
	if err := json.Unmarshal(data, &m); err != nil || m.PassedAt.IsZero() {
		return nil
	}
	return &m
}

// MarkerGroups must all be among the groups run before a pass is recorded.
var MarkerGroups = []Group{GroupFiles, GroupGraph}

// CoversMarker reports whether groups include every one of MarkerGroups.
func CoversMarker(groups []Group) bool {
	for _, g := range MarkerGroups {
		if !slices.Contains(groups, g) {
			return false
		}
	}
	return true
}

// NeedsCheck reports whether dir lacks a marker covering MarkerGroups.
func NeedsCheck(dir string) bool {
	m := ReadMarker(dir)
	return m == nil || !CoversMarker(m.Groups)
}

// ClearMarker removes the marker, forcing a re-check on next run.
func ClearMarker(dir string) error {
	err := os.Remove(filepath.Join(dir, MarkerFile))
	if err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("remove marker file: %w", err)
	}
	return nil
}

// MarkerAge returns how long ago validation passed, or zero without a marker.
func MarkerAge(dir string) time.Duration {
	m := ReadMarker(dir)
	if m == nil {
		return 0
	}
	return time.Since(m.PassedAt)
}
