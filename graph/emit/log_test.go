package emit

import (
	"bytes"
	"encoding/json"
	"strings"
	"testing"
)

func TestLogEmitter_JSON(t *testing.T) {
	var buf bytes.Buffer
	emitter := NewLogEmitter(&buf, true)

	emitter.Emit(Event{
		RunID:  "run-001",
		Step:   2,
		NodeID: 5,
		Msg:    "node_end",
		Meta:   map[string]interface{}{"op": "add", "duration_ms": 3},
	})

	var line map[string]interface{}
	if err := json.Unmarshal(bytes.TrimSpace(buf.Bytes()), &line); err != nil {
		t.Fatalf("output is not one JSON object: %v\n%s", err, buf.String())
	}

	want := map[string]interface{}{
		"level":       "info",
		"run_id":      "run-001",
		"step":        float64(2),
		"node_id":     float64(5),
		"op":          "add",
		"duration_ms": float64(3),
		"message":     "node_end",
	}
	for k, v := range want {
		if line[k] != v {
			t.Errorf("%s = %v, want %v", k, line[k], v)
		}
	}
	if _, ok := line["time"]; !ok {
		t.Error("expected a timestamp")
	}
}

func TestLogEmitter_ErrorLevel(t *testing.T) {
	var buf bytes.Buffer
	emitter := NewLogEmitter(&buf, true)

	emitter.Emit(Event{RunID: "r", NodeID: -1, Msg: "execution_failed",
		Meta: map[string]interface{}{"error": "boom"}})

	var line map[string]interface{}
	if err := json.Unmarshal(bytes.TrimSpace(buf.Bytes()), &line); err != nil {
		t.Fatal(err)
	}
	if line["level"] != "error" {
		t.Errorf("level = %v, want error", line["level"])
	}
	if _, ok := line["node_id"]; ok {
		t.Error("run-level event should not carry node_id")
	}
}

func TestLogEmitter_Console(t *testing.T) {
	var buf bytes.Buffer
	emitter := NewLogEmitter(&buf, false)

	emitter.Emit(Event{RunID: "run-002", Step: 1, NodeID: 9, Msg: "node_pruned",
		Meta: map[string]interface{}{"reason": "input on untaken branch"}})
	emitter.Emit(Event{RunID: "run-002", Step: 2, NodeID: -1, Msg: "execution_end"})

	out := buf.String()
	if got := strings.Count(out, "\n"); got != 2 {
		t.Errorf("expected 2 lines, got %d:\n%s", got, out)
	}
	for _, want := range []string{"node_pruned", "run-002", "node_id=9", "execution_end"} {
		if !strings.Contains(out, want) {
			t.Errorf("output missing %q:\n%s", want, out)
		}
	}
}
