package main

import (
	"flag"
	"testing"

	"github.com/urfave/cli/v2"

	"NftBridge/internal/derive"
)

func TestCommandNamesUnique(t *testing.T) {
	seen := map[string]bool{}

	var walk func(prefix string, cmds []*cli.Command)
	walk = func(prefix string, cmds []*cli.Command) {
		for _, c := range cmds {
			name := prefix + c.Name
			if seen[name] {
				t.Errorf("duplicate command %q", name)
			}
			seen[name] = true
			walk(name+" ", c.Subcommands)
		}
	}
	walk("", newApp().Commands)

	for _, want := range []string{"status", "escrow lock", "escrow unlock", "collection create", "snapshot"} {
		if !seen[want] {
			t.Errorf("missing command %q", want)
		}
	}
}

func TestParseAddressFlag(t *testing.T) {
	want := derive.ProgramID("x")

	set := flag.NewFlagSet("test", flag.ContinueOnError)
	set.String("to", want.String(), "")
	set.String("bad", "zz", "")
	set.String("empty", "", "")
	ctx := cli.NewContext(newApp(), set, nil)

	if got, err := parseAddressFlag(ctx, "to"); err != nil || got != want {
		t.Errorf("parse: %v %v", got, err)
	}

	if _, err := parseAddressFlag(ctx, "bad"); err == nil {
		t.Error("expected error for invalid address")
	}

	if got, err := parseAddressFlag(ctx, "empty"); err != nil || !got.IsZero() {
		t.Errorf("empty flag: %v %v", got, err)
	}
}

func TestSignerRequiresKey(t *testing.T) {
	set := flag.NewFlagSet("test", flag.ContinueOnError)
	set.String("key", "", "")
	ctx := cli.NewContext(newApp(), set, nil)

	if _, _, err := withSigner(ctx); err == nil {
		t.Error("expected error without --key")
	}
}
