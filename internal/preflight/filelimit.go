package preflight

import (
	"fmt"
	"syscall"
)

// MinFileDescriptors is the recommended open file limit. The SQLite
// databases, the vector file and the lock each hold descriptors while
// indexing.
const MinFileDescriptors = 1024

// CheckFileDescriptors warns when the open file limit is low.
func (c *Checker) CheckFileDescriptors() CheckResult {
	const name = "file_descriptors"

	var rLimit syscall.Rlimit
	if err := syscall.Getrlimit(syscall.RLIMIT_NOFILE, &rLimit); err != nil {
		return warn(name, fmt.Sprintf("failed to check file descriptor limit: %v", err))
	}

	msg := fmt.Sprintf("%d (minimum: %d)", rLimit.Cur, MinFileDescriptors)
	if rLimit.Cur < MinFileDescriptors {
		r := warn(name, msg)
		r.Details = "Run 'ulimit -n 10240' to increase the limit"
		return r
	}
	return pass(name, false, msg)
}
