package memory

import (
	"runtime/debug"
	"testing"
)

// restoreLimit resets the runtime limit changed by ConfigureFromEnv.
func restoreLimit(t *testing.T) {
	t.Helper()
	prev := debug.SetMemoryLimit(-1)
	t.Cleanup(func() { debug.SetMemoryLimit(prev) })
}

func TestParseLimit(t *testing.T) {
	tests := []struct {
		input   string
		want    int64
		wantErr bool
	}{
		{"1073741824", 1 << 30, false},
		{"2GiB", 2 << 30, false},
		{"512Mi", 512 << 20, false},
		{" 1 GB ", 1_000_000_000, false},
		{"lots", 0, true},
		{"0", 0, true},
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			got, err := parseLimit(tt.input)
			if (err != nil) != tt.wantErr {
				t.Fatalf("parseLimit(%q) error = %v, wantErr %v", tt.input, err, tt.wantErr)
			}
			if got != tt.want {
				t.Errorf("parseLimit(%q) = %d, want %d", tt.input, got, tt.want)
			}
		})
	}
}

func TestParseRatio(t *testing.T) {
	tests := []struct {
		input string
		want  float64
	}{
		{"", DefaultMemoryRatio},
		{"0.75", 0.75},
		{"1", 1},
		{"0", DefaultMemoryRatio},
		{"1.5", DefaultMemoryRatio},
		{"half", DefaultMemoryRatio},
	}
	for _, tt := range tests {
		if got := parseRatio(tt.input); got != tt.want {
			t.Errorf("parseRatio(%q) = %v, want %v", tt.input, got, tt.want)
		}
	}
}

func TestConfigureFromEnv_NotConfigured(t *testing.T) {
	t.Setenv("GOMEMLIMIT", "")
	t.Setenv("MEMORY_LIMIT", "")

	result := ConfigureFromEnv()
	if result.Configured || result.Source != SourceNone {
		t.Errorf("result = %+v, want unconfigured", result)
	}
}

func TestConfigureFromEnv_MemoryLimit(t *testing.T) {
	restoreLimit(t)
	t.Setenv("GOMEMLIMIT", "")
	t.Setenv("MEMORY_LIMIT", "1GiB")
	t.Setenv("MEMORY_RATIO", "0.25")

	result := ConfigureFromEnv()
	if !result.Configured || result.Source != SourceMemoryLimit {
		t.Fatalf("result = %+v, want configured from MEMORY_LIMIT", result)
	}
	if result.GoMemLimit != 256<<20 {
		t.Errorf("GoMemLimit = %d, want %d", result.GoMemLimit, 256<<20)
	}
	if got := debug.SetMemoryLimit(-1); got != 256<<20 {
		t.Errorf("runtime limit = %d, want %d", got, 256<<20)
	}
}

func TestConfigureFromEnv_InvalidLimit(t *testing.T) {
	restoreLimit(t)
	t.Setenv("GOMEMLIMIT", "")
	t.Setenv("MEMORY_LIMIT", "unbounded")

	before := debug.SetMemoryLimit(-1)
	result := ConfigureFromEnv()
	if result.Configured {
		t.Errorf("result = %+v, want unconfigured", result)
	}
	if got := debug.SetMemoryLimit(-1); got != before {
		t.Errorf("runtime limit changed to %d", got)
	}
}

func TestConfigureFromEnv_GOMEMLIMITWins(t *testing.T) {
	restoreLimit(t)
	debug.SetMemoryLimit(300 << 20)
	t.Setenv("GOMEMLIMIT", "300MiB")
	t.Setenv("MEMORY_LIMIT", "1GiB")

	result := ConfigureFromEnv()
	if result.Source != SourceGOMEMLIMIT {
		t.Errorf("Source = %q, want %q", result.Source, SourceGOMEMLIMIT)
	}
	if result.GoMemLimit != 300<<20 {
		t.Errorf("GoMemLimit = %d, want %d", result.GoMemLimit, 300<<20)
	}
}
