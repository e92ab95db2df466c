//go:build windows

package adb

import (
	"os/exec"
	"syscall"
)

// setNoWindow suppresses the console window adb.exe would otherwise flash
// open for each invocation (spec §4.1: "the child is launched with console
// window creation suppressed").
func setNoWindow(cmd *exec.Cmd) {
	cmd.SysProcAttr = &syscall.SysProcAttr{
		HideWindow: true,
	}
}
