//go:build windows

package ptyproc

func ptyAvailable() bool { return false }

func newPTYBackend() Backend { return nil }
