package preflight

import (
	"bytes"
	"os"
	"strings"
	"testing"
)

func findCheck(t *testing.T, r *Result, name string) Check {
	t.Helper()
	for _, c := range r.Checks {
		if c.Name == name {
			return c
		}
	}
	t.Fatalf("expected %s check in results", name)
	return Check{}
}

func TestCheck_String(t *testing.T) {
	t.Run("passed_with_required", func(t *testing.T) {
		c := Check{
			Name:     "test_check",
			Required: 100,
			Actual:   200,
			Passed:   true,
		}
		s := c.String()
		if !strings.Contains(s, "✓") {
			t.Error("Passed check should have ✓")
		}
		if !strings.Contains(s, "200") {
			t.Error("Should contain actual value")
		}
		if !strings.Contains(s, "100") {
			t.Error("Should contain required value")
		}
	})

	t.Run("failed_check", func(t *testing.T) {
		c := Check{
			Name:     "test_check",
			Required: 100,
			Actual:   50,
			Passed:   false,
		}
		s := c.String()
		if !strings.Contains(s, "✗") {
			t.Error("Failed check should have ✗")
		}
	})

	t.Run("warning_check", func(t *testing.T) {
		c := Check{
			Name:    "test_check",
			Passed:  true,
			Warning: true,
			Message: "warning message",
		}
		s := c.String()
		if !strings.Contains(s, "⚠") {
			t.Error("Warning check should have ⚠")
		}
		if !strings.Contains(s, "warning message") {
			t.Error("Should contain message")
		}
	})

	t.Run("passed_with_message_only", func(t *testing.T) {
		c := Check{
			Name:    "test_check",
			Passed:  true,
			Message: "all good",
		}
		s := c.String()
		if !strings.Contains(s, "✓") {
			t.Error("Passed check should have ✓")
		}
		if !strings.Contains(s, "all good") {
			t.Error("Should contain message")
		}
	})
}


func TestRunAll_WithShell(t *testing.T) {
	result := RunAll(Request{Executable: "sh", Concurrency: 1})

	if result == nil {
		t.Fatal("RunAll returned nil")
	}
	if len(result.Checks) != 4 {
		t.Errorf("len(Checks) = %d, want 4", len(result.Checks))
	}

	check := findCheck(t, result, "executable")
	if !check.Passed {
		t.Errorf("sh should resolve: %s", check.Message)
	}
	if !strings.Contains(check.Message, "found at") {
		t.Errorf("Message should mention the path: %s", check.Message)
	}
}

func TestRunAll_WithInvalidExecutable(t *testing.T) {
	result := RunAll(Request{Executable: "/nonexistent/drain/child", Concurrency: 10})

	check := findCheck(t, result, "executable")
	if check.Passed {
		t.Error("executable check should fail with invalid path")
	}
	if !strings.Contains(check.Message, "not found") {
		t.Errorf("Message should mention 'not found': %s", check.Message)
	}

	// Overall result should fail
	if result.Passed {
		t.Error("Result should fail when the executable is not found")
	}
}

func TestRunAll_FileDescriptorCheck(t *testing.T) {
	result := RunAll(Request{Executable: "sh", Concurrency: 1})

	check := findCheck(t, result, "file_descriptors")
	if check.Actual <= 0 {
		t.Errorf("Actual FD limit should be positive: %d", check.Actual)
	}
	if check.Required <= 0 {
		t.Errorf("Required FD count should be positive: %d", check.Required)
	}
}

func TestRunAll_ProcessLimitCheck(t *testing.T) {
	result := RunAll(Request{Executable: "sh", Concurrency: 10})

	check := findCheck(t, result, "process_limit")
	// Either compares against a real limit or is a warning (non-Linux)
	if check.Warning {
		if !check.Passed {
			t.Errorf("an undeterminable limit should pass with a warning: %s", check.Message)
		}
		return
	}
	if check.Passed != (check.Actual >= check.Required) {
		t.Errorf("Passed = %v with actual=%d required=%d", check.Passed, check.Actual, check.Required)
	}
}

func TestRunAll_PipeCapacityNeverFails(t *testing.T) {
	result := RunAll(Request{Executable: "sh", Concurrency: 1, Payload: 64 << 20})

	check := findCheck(t, result, "pipe_capacity")
	if !check.Passed {
		t.Errorf("pipe capacity check should only warn: %s", check.Message)
	}
	if !check.Warning {
		t.Errorf("64 MiB payload should exceed any pipe buffer: %s", check.Message)
	}
	if !result.Warnings() {
		t.Error("Warnings() should report the pipe capacity warning")
	}
}

func TestRunAll_ZeroConcurrency(t *testing.T) {
	result := RunAll(Request{Executable: "sh"})

	check := findCheck(t, result, "file_descriptors")
	if check.Required != checkFileDescriptors(1).Required {
		t.Errorf("zero concurrency should be treated as one run: need %d", check.Required)
	}
}

func TestCheckPipeCapacity(t *testing.T) {
	tests := []struct {
		name        string
		payload     int
		capacity    int
		wantWarning bool
	}{
		{"unknown payload", 0, 65536, false},
		{"fits", 1024, 65536, false},
		{"exactly capacity", 65536, 65536, false},
		{"exceeds", 1 << 20, 65536, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := checkPipeCapacity(tt.payload, tt.capacity)
			if !c.Passed {
				t.Error("pipe capacity check should always pass")
			}
			if c.Warning != tt.wantWarning {
				t.Errorf("Warning = %v, want %v (%s)", c.Warning, tt.wantWarning, c.Message)
			}
			if !strings.Contains(c.Message, "65536 bytes") {
				t.Errorf("Message should report the capacity: %s", c.Message)
			}
		})
	}
}

func TestParseMaxProcesses(t *testing.T) {
	const header = "Limit                     Soft Limit           Hard Limit           Units     \n"

	tests := []struct {
		name   string
		limits string
		want   int
	}{
		{"numeric", header + "Max processes             63399                63400                processes \n", 63399},
		{"unlimited", header + "Max processes             unlimited            unlimited            processes \n", 1000000},
		{"missing", header + "Max open files            1024                 4096                 files     \n", 0},
		{"short line", "Max processes\n", 0},
		{"empty", "", 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := parseMaxProcesses(tt.limits); got != tt.want {
				t.Errorf("parseMaxProcesses() = %d, want %d", got, tt.want)
			}
		})
	}
}

func TestSuggestFix(t *testing.T) {
	testCases := []struct {
		name     string
		expected string
	}{
		{"file_descriptors", "ulimit -n"},
		{"process_limit", "ulimit -u"},
		{"executable", "PATH"},
		{"unknown", "documentation"},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			fix := suggestFix(tc.name)
			if !strings.Contains(fix, tc.expected) {
				t.Errorf("suggestFix(%q) = %q, should contain %q", tc.name, fix, tc.expected)
			}
		})
	}
}

func TestCheckExecutable_EdgeCases(t *testing.T) {
	t.Run("empty_path", func(t *testing.T) {
		if check := checkExecutable(""); check.Passed {
			t.Error("Empty path should fail")
		}
	})

	t.Run("directory_as_path", func(t *testing.T) {
		if check := checkExecutable(os.TempDir()); check.Passed {
			t.Error("Directory as executable should fail")
		}
	})
}

func TestCheckFileDescriptors_Scaling(t *testing.T) {
	// Verify required scales with concurrency
	check1 := checkFileDescriptors(1)
	check100 := checkFileDescriptors(100)
	check1000 := checkFileDescriptors(1000)

	if check100.Required <= check1.Required {
		t.Error("Required FDs should increase with concurrency")
	}
	if check1000.Required <= check100.Required {
		t.Error("Required FDs should increase with concurrency")
	}
	if check100.Required-check1.Required != 99*fdsPerRun {
		t.Errorf("each run should need %d fds", fdsPerRun)
	}
}

func TestPrintResults(t *testing.T) {
	result := &Result{
		Checks: []Check{
			{Name: "executable", Passed: true, Message: "found at /bin/sh"},
			{Name: "file_descriptors", Passed: false, Required: 100, Actual: 50},
		},
		Passed: false,
	}

	var buf bytes.Buffer
	PrintResults(&buf, result)

	out := buf.String()
	for _, want := range []string{"Preflight checks:", "found at /bin/sh", "50 available (need 100)", "Fix: ulimit -n"} {
		if !strings.Contains(out, want) {
			t.Errorf("output missing %q\n%s", want, out)
		}
	}
	if strings.Count(out, "Fix:") != 1 {
		t.Error("only failed checks should get a fix")
	}
}
