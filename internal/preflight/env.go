package preflight

import (
	"fmt"
	goversion "go/version"
	"strings"
)

// MinGoVersion is the oldest Go toolchain pubrag supports.
const MinGoVersion = "go1.22"

// RequiredModules must be linked into the pubrag binary.
var RequiredModules = []string{
	"github.com/neo4j/neo4j-go-driver/v5",
	"github.com/coder/hnsw",
	"modernc.org/sqlite",
	"gopkg.in/yaml.v3",
	"github.com/spf13/cobra",
}

func (c *Checker) runEnv() []CheckResult {
	return []CheckResult{
		c.CheckGoVersion(),
		c.CheckBuildInfo(),
		c.CheckDependencies(),
	}
}

// CheckGoVersion requires the running binary to be built with MinGoVersion or newer.
func (c *Checker) CheckGoVersion() CheckResult {
	const name = "go_version"

	v := goVersionField(c.goVersion)
	if !goversion.IsValid(v) {
		return warn(name, fmt.Sprintf("unrecognized Go version %q", c.goVersion))
	}
	if goversion.Compare(v, MinGoVersion) < 0 {
		return fail(name, true, fmt.Sprintf("Go %s+ required, found %s",
			strings.TrimPrefix(MinGoVersion, "go"), strings.TrimPrefix(v, "go")))
	}
	return pass(name, true, "Go version: "+strings.TrimPrefix(v, "go"))
}

// goVersionField extracts "go1.x.y" from runtime.Version output such as
// "devel go1.26-abcdef Tue ..." or "go1.25.5 X:nocoverageredesign".
func goVersionField(v string) string {
	for _, f := range strings.Fields(v) {
		if strings.HasPrefix(f, "go1") {
			if i := strings.IndexAny(f, "-+"); i > 0 {
				f = f[:i]
			}
			return f
		}
	}
	return v
}

// CheckBuildInfo reports the module the binary was built from.
func (c *Checker) CheckBuildInfo() CheckResult {
	const name = "build_info"

	bi, ok := c.buildInfo()
	if !ok || bi == nil {
		return warn(name, "Build info not available. Build pubrag with 'go build' from the module root.")
	}
	path := bi.Main.Path
	if path == "" {
		path = bi.Path
	}
	version := bi.Main.Version
	if version == "" {
		version = "(devel)"
	}
	r := pass(name, false, fmt.Sprintf("Module: %s %s", path, version))
	r.Details = "Built with " + bi.GoVersion
	return r
}

// CheckDependencies requires every RequiredModules entry in the build info.
func (c *Checker) CheckDependencies() CheckResult {
	const name = "dependencies"

	bi, ok := c.buildInfo()
	if !ok || bi == nil {
		return warn(name, "Cannot list linked modules without build info")
	}

	linked := make(map[string]string, len(bi.Deps))
	for _, d := range bi.Deps {
		v := d.Version
		if d.Replace != nil {
			v = d.Replace.Version
		}
		linked[d.Path] = v
	}

	var missing, found []string
	for _, mod := range RequiredModules {
		v, ok := linked[mod]
		if !ok {
			missing = append(missing, fmt.Sprintf("Required package '%s' not installed", mod))
			continue
		}
		found = append(found, fmt.Sprintf("Package '%s' installed (%s)", mod, v))
	}

	if len(missing) > 0 {
		r := fail(name, true, strings.Join(missing, "; "))
		r.Details = strings.Join(found, "\n")
		return r
	}
	r := pass(name, true, fmt.Sprintf("%d required modules linked", len(RequiredModules)))
	r.Details = strings.Join(found, "\n")
	return r
}
