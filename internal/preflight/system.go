package preflight

import (
	"fmt"
	"os"
	"path/filepath"
)

func (c *Checker) runSystem() []CheckResult {
	dir := c.effectiveConfig().ResolvePersistDir(c.root)
	return []CheckResult{
		c.CheckWritePermissions(dir),
		c.CheckDiskSpace(dir),
		c.CheckFileDescriptors(),
	}
}

// CheckWritePermissions checks that the index can be written under path.
// A path that does not exist yet is checked at its nearest existing parent,
// since indexing creates it.
func (c *Checker) CheckWritePermissions(path string) CheckResult {
	const name = "write_permissions"

	dir := existingAncestor(path)
	f, err := os.CreateTemp(dir, ".pubrag-preflight-*")
	if err != nil {
		return fail(name, true, fmt.Sprintf("permission denied: %v", err))
	}
	_ = f.Close()
	_ = os.Remove(f.Name())

	r := pass(name, true, "OK")
	r.Details = "Checked " + dir
	return r
}

func existingAncestor(path string) string {
	dir := filepath.Clean(path)
	for {
		if info, err := os.Stat(dir); err == nil && info.IsDir() {
			return dir
		}
		parent := filepath.Dir(dir)
		if parent == dir {
			return dir
		}
		dir = parent
	}
}
