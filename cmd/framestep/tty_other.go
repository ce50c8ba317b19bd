//go:build !linux

package main

import "os"

// Without a termios check, pretty output has to be requested explicitly.
func isTerminal(*os.File) bool {
	return false
}
