package main

import "testing"

func TestRootCmdHasSubcommands(t *testing.T) {
	cmd := newRootCmd()
	names := map[string]bool{}
	for _, c := range cmd.Commands() {
		names[c.Name()] = true
	}
	if !names["decode"] {
		t.Error("expected decode subcommand")
	}
	if !names["invoke"] {
		t.Error("expected invoke subcommand")
	}
}
