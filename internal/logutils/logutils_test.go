package logutils

import "testing"

func TestInitLogger_Levels(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"debug", "debug"},
		{"INFO", "info"},
		{"warn", "warning"},
		{"error", "error"},
		{"bogus", "info"},
		{"", "info"},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			InitLogger(tt.in)
			if got := Log.Level(); got != tt.want {
				t.Errorf("InitLogger(%q): level = %q, want %q", tt.in, got, tt.want)
			}
		})
	}
}

func TestWithFields_DoesNotMutateParent(t *testing.T) {
	InitLogger("error")
	parent := Log.WithField("a", 1)
	child := parent.WithFields(map[string]any{"b": 2})

	if _, ok := parent.entry.Data["b"]; ok {
		t.Error("parent logger gained field from child")
	}
	if child.entry.Data["a"] != 1 || child.entry.Data["b"] != 2 {
		t.Errorf("child fields = %v, want a=1 b=2", child.entry.Data)
	}
}
