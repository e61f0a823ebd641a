package main

import (
	"io"
	"strings"
	"testing"
)

func TestParseArgs(t *testing.T) {
	cases := []struct {
		args    []string
		cmd     string
		wantErr string
		needsDB bool
	}{
		{args: nil, cmd: "up", needsDB: true},
		{args: []string{"-cmd=status"}, cmd: "status", needsDB: true},
		{args: []string{"-cmd=version", "-version=20260101000000"}, cmd: "version", needsDB: true},
		{args: []string{"-cmd=create", "-name=add_gift_cards"}, cmd: "create"},
		{args: []string{"-cmd=validate", "-dir=pkg/migrate/migrations"}, cmd: "validate"},
		{args: []string{"-cmd=create"}, wantErr: "missing -name"},
		{args: []string{"-cmd=version"}, wantErr: "missing -version"},
		{args: []string{"-cmd=redo"}, wantErr: "unknown -cmd value"},
	}
	for _, tc := range cases {
		opts, err := parseArgs(tc.args, io.Discard)
		if tc.wantErr != "" {
			if err == nil || !strings.Contains(err.Error(), tc.wantErr) {
				t.Fatalf("%v: expected error containing %q, got %v", tc.args, tc.wantErr, err)
			}
			continue
		}
		if err != nil {
			t.Fatalf("%v: unexpected error %v", tc.args, err)
		}
		if opts.cmd != tc.cmd || opts.needsDB() != tc.needsDB {
			t.Fatalf("%v: got cmd=%s needsDB=%v", tc.args, opts.cmd, opts.needsDB())
		}
	}
}
