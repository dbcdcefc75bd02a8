package main

import "testing"

func TestNewRootCmdHasSubcommands(t *testing.T) {
	cmd := NewRootCmd()

	found := map[string]bool{}
	for _, c := range cmd.Commands() {
		found[c.Name()] = true
	}
	for _, want := range []string{"crawl", "serve"} {
		if !found[want] {
			t.Errorf("expected root command to have a %q subcommand", want)
		}
	}
}

func TestNewRootCmdDefaultConfigFlag(t *testing.T) {
	cmd := NewRootCmd()
	flag := cmd.PersistentFlags().Lookup("config")
	if flag == nil {
		t.Fatal("expected a --config flag")
	}
	if flag.DefValue != "sitecrawl.yaml" {
		t.Errorf("default config path = %q, want sitecrawl.yaml", flag.DefValue)
	}
}
