package mutlog

import (
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/janelia-flyem/proofread/graph"
)

func TestNilLogIsSafe(t *testing.T) {
	var l *Log
	edge := graph.Edge{1, 2}
	l.LogMutation(Mutation{Action: "set", Edge: &edge})
	l.Shutdown()
}

func TestUnconfiguredLogDisabled(t *testing.T) {
	l, err := New(Config{})
	if err != nil {
		t.Fatalf("expected no error for empty config, got %v", err)
	}
	if l != nil {
		t.Error("expected nil log when no servers configured")
	}
}

func TestStoreFailedMsg(t *testing.T) {
	path := filepath.Join(t.TempDir(), "failed.jsonl")
	l := &Log{failedPath: path}

	first, _ := json.Marshal(Mutation{Action: "set"})
	second, _ := json.Marshal(Mutation{Action: "del"})
	l.storeFailedMsg(first)
	l.storeFailedMsg(second)

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("read fallback file: %v", err)
	}
	lines := strings.Split(strings.TrimSpace(string(data)), "\n")
	if len(lines) != 2 {
		t.Fatalf("expected 2 fallback lines, got %d", len(lines))
	}
	var m Mutation
	if err := json.Unmarshal([]byte(lines[1]), &m); err != nil {
		t.Fatalf("fallback line is not JSON: %v", err)
	}
	if m.Action != "del" {
		t.Errorf("expected action del, got %s", m.Action)
	}
}
