package main

import "strings"

// detachArgs drops the detach flag so the re-executed server stays in the
// foreground of its own session.
func detachArgs(args []string) []string {
	out := make([]string, 0, len(args))
	for _, a := range args {
		switch {
		case a == "-d", a == "--detach":
			continue
		case strings.HasPrefix(a, "--detach="):
			continue
		}
		out = append(out, a)
	}
	return out
}
