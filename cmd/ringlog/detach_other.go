//go:build !unix

package main

import (
	"errors"
	"net"
)

var errDetachUnsupported = errors.New("detach is not supported on this platform")

func isDetachedChild() bool { return false }

func detach(net.Listener, []string) (int, error) { return 0, errDetachUnsupported }

func inheritedListener() (net.Listener, error) { return nil, errDetachUnsupported }
