package log

import (
	"bytes"
	"strings"
	"testing"
)

func TestNewWithWriterEmitsJSON(t *testing.T) {
	var buf bytes.Buffer
	l := NewWithWriter(&buf)
	l.Info("top confirmed block height is", "height", 0)

	out := buf.String()
	if !strings.Contains(out, "top confirmed block height is") {
		t.Fatalf("expected message in output, got %q", out)
	}
	if !strings.Contains(out, "\"height\":0") {
		t.Fatalf("expected structured height field, got %q", out)
	}
}

func TestWithAttachesStaticContext(t *testing.T) {
	var buf bytes.Buffer
	base := NewWithWriter(&buf)
	child := base.With("component", "fullnode")
	child.Warn("reorg failed")

	out := buf.String()
	if !strings.Contains(out, "\"component\":\"fullnode\"") {
		t.Fatalf("expected static context to be attached, got %q", out)
	}
}
