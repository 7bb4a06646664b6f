package observability

import (
	"bytes"
	"encoding/json"
	"strings"
	"testing"
)

func TestNewLogger(t *testing.T) {
	var buf bytes.Buffer
	l := NewLogger("test-component", &buf)
	if l == nil {
		t.Fatal("NewLogger returned nil")
	}
	if l.Component() != "test-component" {
		t.Errorf("Component = %q", l.Component())
	}
}

func TestNewLogger_NilWriter(t *testing.T) {
	l := NewLogger("test", nil)
	if l == nil {
		t.Fatal("NewLogger with nil writer returned nil")
	}
	// Should not panic on log call.
	l.Info("test message")
}

func TestLogger_Info(t *testing.T) {
	var buf bytes.Buffer
	l := NewLogger("orchestrator", &buf)
	l.Info("hello world", "key", "value")

	output := buf.String()
	if !strings.Contains(output, "hello world") {
		t.Errorf("output missing message: %s", output)
	}
	if !strings.Contains(output, `"component":"orchestrator"`) {
		t.Errorf("output missing component: %s", output)
	}

	// Should be valid JSON.
	var m map[string]any
	if err := json.Unmarshal([]byte(output), &m); err != nil {
		t.Errorf("invalid JSON: %v", err)
	}
}

func TestLogger_Debug(t *testing.T) {
	var buf bytes.Buffer
	l := NewLogger("gate", &buf)
	l.Debug("debug msg")

	if !strings.Contains(buf.String(), "debug msg") {
		t.Error("debug message not found")
	}
}

func TestLogger_Warn(t *testing.T) {
	var buf bytes.Buffer
	l := NewLogger("gate", &buf)
	l.Warn("warning msg")

	if !strings.Contains(buf.String(), "warning msg") {
		t.Error("warn message not found")
	}
}

func TestLogger_Error(t *testing.T) {
	var buf bytes.Buffer
	l := NewLogger("gate", &buf)
	l.Error("error msg", "code", 500)

	output := buf.String()
	if !strings.Contains(output, "error msg") {
		t.Error("error message not found")
	}
	if !strings.Contains(output, "ERROR") {
		t.Error("expected ERROR level")
	}
}

func TestLogger_Snapshot(t *testing.T) {
	var buf bytes.Buffer
	l := NewLogger("orchestrator", &buf)
	l.Snapshot(3, 2, "tasks", 1)

	output := buf.String()
	if !strings.Contains(output, "snapshot processed") {
		t.Error("snapshot message not found")
	}
	if !strings.Contains(output, `"seq":3`) {
		t.Errorf("seq not found: %s", output)
	}
	if !strings.Contains(output, `"anomalies":2`) {
		t.Errorf("anomalies not found: %s", output)
	}
}

func TestLogger_Anomaly(t *testing.T) {
	var buf bytes.Buffer
	l := NewLogger("orchestrator", &buf)
	l.Anomaly("p95_1m_us", "Critical", "score", 0.9)

	output := buf.String()
	if !strings.Contains(output, `"metric":"p95_1m_us"`) {
		t.Errorf("metric not found: %s", output)
	}
	if !strings.Contains(output, `"severity":"Critical"`) {
		t.Errorf("severity not found: %s", output)
	}
}

func TestLogger_Deployment(t *testing.T) {
	var buf bytes.Buffer
	l := NewLogger("stagedeploy", &buf)
	l.Deployment("auto-1", "Deployed", "targets", 2)

	output := buf.String()
	if !strings.Contains(output, `"change_id":"auto-1"`) {
		t.Errorf("change_id not found: %s", output)
	}
	if !strings.Contains(output, `"outcome":"Deployed"`) {
		t.Errorf("outcome not found: %s", output)
	}
}

func TestLogger_With(t *testing.T) {
	var buf bytes.Buffer
	l := NewLogger("orchestrator", &buf)
	l2 := l.With("change_id", "auto-1")

	l2.Info("with context")

	output := buf.String()
	if !strings.Contains(output, "auto-1") {
		t.Errorf("With context not found: %s", output)
	}
	// The derived logger keeps the component name of its parent.
	if l2.Component() != "orchestrator" {
		t.Errorf("Component = %q", l2.Component())
	}
}
