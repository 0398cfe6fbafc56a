package main

import (
	"bytes"
	"strings"
	"testing"
)

func TestRunHelp(t *testing.T) {
	var out, errOut bytes.Buffer
	code := Run([]string{"graintrace", "help"}, &out, &errOut)
	if code != 0 {
		t.Fatalf("help exited %d", code)
	}
	if !strings.Contains(out.String(), "verify <stream-id>") {
		t.Fatalf("usage missing verify command: %s", out.String())
	}
}

func TestRunUnknownCommand(t *testing.T) {
	var out, errOut bytes.Buffer
	code := Run([]string{"graintrace", "frobnicate"}, &out, &errOut)
	if code != 2 {
		t.Fatalf("unknown command exited %d, want 2", code)
	}
	if !strings.Contains(errOut.String(), "Unknown command") {
		t.Fatalf("missing error output: %s", errOut.String())
	}
}

func TestVerifyRequiresStreamID(t *testing.T) {
	var out, errOut bytes.Buffer
	code := Run([]string{"graintrace", "verify"}, &out, &errOut)
	if code != 2 {
		t.Fatalf("verify without args exited %d, want 2", code)
	}
}
