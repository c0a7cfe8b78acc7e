package server

import (
	"os"
	"path/filepath"
	"testing"
)

const testConfig = `
[server]
host = "proofread.example.org"
httpAddress = "localhost:8500"
note = "test server"
corsDomains = ["http://neuroglancer.example.org"]

[auth]
secret_key = "shhh"

[logging]
logfile = "logs/proofread.log"
max_log_size = 500
max_log_age = 30

[kafka]
servers = ["kafka1:9092", "kafka2:9092"]
topic = "proofread-test"
failed_log = "logs/kafka-failures.jsonl"

[brainmaps]
server = "https://brainmaps.example.org"
volume = "brainmaps:proj:dataset:seg"
cache_mb = 64

[session]
path = "sessions"
autosave = 15
undo_depth = 20
`

func TestLoadConfig(t *testing.T) {
	prev := tc
	defer func() { tc = prev }()

	dir := t.TempDir()
	filename := filepath.Join(dir, "config.toml")
	if err := os.WriteFile(filename, []byte(testConfig), 0644); err != nil {
		t.Fatalf("write config: %v", err)
	}
	if err := LoadConfig(filename); err != nil {
		t.Fatalf("load config: %v", err)
	}

	if HTTPAddress() != "localhost:8500" {
		t.Errorf("http address: got %s", HTTPAddress())
	}
	if Note() != "test server" {
		t.Errorf("note: got %s", Note())
	}
	if !AuthEnabled() {
		t.Error("auth should be enabled when a secret key is set")
	}
	if tc.Session.AutosaveSec != 15 || tc.Session.HistoryLength != 20 {
		t.Errorf("session config: %+v", tc.Session)
	}
	if len(tc.Kafka.Servers) != 2 || tc.Kafka.Topic != "proofread-test" {
		t.Errorf("kafka config: %+v", tc.Kafka)
	}
	if tc.BrainMaps.Volume != "brainmaps:proj:dataset:seg" || tc.BrainMaps.CacheMB != 64 {
		t.Errorf("brainmaps config: %+v", tc.BrainMaps)
	}

	// Relative paths resolve against the config file's directory.
	if tc.Session.Path != filepath.Join(dir, "sessions") {
		t.Errorf("session path not absolutized: %s", tc.Session.Path)
	}
	if tc.Logging.Logfile != filepath.Join(dir, "logs", "proofread.log") {
		t.Errorf("logfile not absolutized: %s", tc.Logging.Logfile)
	}
	if tc.Kafka.FailedLog != filepath.Join(dir, "logs", "kafka-failures.jsonl") {
		t.Errorf("kafka failed_log not absolutized: %s", tc.Kafka.FailedLog)
	}
}

func TestLoadConfigMissingFile(t *testing.T) {
	if err := LoadConfig(""); err == nil {
		t.Error("expected error for empty config filename")
	}
	if err := LoadConfig("/does/not/exist.toml"); err == nil {
		t.Error("expected error for nonexistent config file")
	}
}

func TestLoadConfigRejectsNegativeAutosave(t *testing.T) {
	prev := tc
	defer func() { tc = prev }()

	filename := filepath.Join(t.TempDir(), "config.toml")
	bad := "[session]\nautosave = -5\n"
	if err := os.WriteFile(filename, []byte(bad), 0644); err != nil {
		t.Fatalf("write config: %v", err)
	}
	if err := LoadConfig(filename); err == nil {
		t.Error("expected error for negative autosave period")
	}
}
