//go:build unix

package main

import (
	"errors"
	"fmt"
	"net"
	"os"
	"os/exec"
	"syscall"
)

// detachedEnv marks a re-executed server whose listener arrives as fd 3.
const detachedEnv = "RINGLOG_DETACHED"

func isDetachedChild() bool {
	return os.Getenv(detachedEnv) == "1"
}

// detach re-executes the binary in a new session with stdio on /dev/null,
// handing it the already bound listener, and returns the child's pid.
func detach(ln net.Listener, args []string) (int, error) {
	fl, ok := ln.(interface{ File() (*os.File, error) })
	if !ok {
		return 0, fmt.Errorf("listener %T cannot be inherited", ln)
	}
	f, err := fl.File()
	if err != nil {
		return 0, err
	}
	defer func() { _ = f.Close() }()

	exe, err := os.Executable()
	if err != nil {
		return 0, err
	}

	cmd := exec.Command(exe, args...)
	cmd.Env = append(os.Environ(), detachedEnv+"=1")
	cmd.ExtraFiles = []*os.File{f}
	cmd.SysProcAttr = &syscall.SysProcAttr{Setsid: true}
	if err := cmd.Start(); err != nil {
		return 0, err
	}
	pid := cmd.Process.Pid
	return pid, cmd.Process.Release()
}

func inheritedListener() (net.Listener, error) {
	f := os.NewFile(3, "listener")
	if f == nil {
		return nil, errors.New("no inherited listener on fd 3")
	}
	defer func() { _ = f.Close() }()
	return net.FileListener(f)
}
