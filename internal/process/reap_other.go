//go:build !linux

package process

// awaitExit is a no-op where waitid(WNOWAIT) is unavailable; cmd.Wait then
// reaps before signalling is shut off.
func awaitExit(pid int) {}
