//go:build windows

package converter

import "os/exec"

// configureProcessGroup keeps the default behaviour on Windows, where
// cancellation kills only the converter process itself.
func configureProcessGroup(cmd *exec.Cmd) {}
