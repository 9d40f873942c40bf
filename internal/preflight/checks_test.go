package preflight

import (
	"bytes"
	"strings"
	"testing"

	"github.com/spf13/afero"
)

func memFs(t *testing.T, files ...string) afero.Fs {
	t.Helper()
	fs := afero.NewMemMapFs()
	for _, f := range files {
		if err := afero.WriteFile(fs, f, []byte("data"), 0o644); err != nil {
			t.Fatal(err)
		}
	}
	return fs
}

func findCheck(t *testing.T, r *Result, name string) Check {
	t.Helper()
	for _, c := range r.Checks {
		if c.Name == name {
			return c
		}
	}
	t.Fatalf("check %s not found", name)
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
		if !strings.Contains(c.String(), "✗") {
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
}

func TestRunAll_AllPass(t *testing.T) {
	fs := memFs(t, "/media/a.h264", "/media/b.h264")
	result := RunAll(fs, Options{
		Sources:         []string{"/media/a.h264", "/media/b.h264"},
		Layer:           128,
		BackgroundLayer: 64,
	})

	for _, c := range result.Checks {
		if !c.Passed && c.Name != "file_descriptors" {
			t.Errorf("%s failed: %s", c.Name, c.Message)
		}
	}
	if got := findCheck(t, result, "sources").Message; got != "2 readable" {
		t.Errorf("sources message = %q", got)
	}
}

func TestRunAll_MissingSource(t *testing.T) {
	fs := memFs(t, "/media/a.h264")
	result := RunAll(fs, Options{
		Sources:         []string{"/media/a.h264", "/media/missing.h264"},
		Layer:           128,
		BackgroundLayer: 64,
	})

	if result.Passed {
		t.Error("missing source should fail preflight")
	}
	c := findCheck(t, result, "sources")
	if c.Passed || !strings.Contains(c.Message, "missing.h264") {
		t.Errorf("sources check = %+v", c)
	}
	if strings.Contains(c.Message, "/media/a.h264") {
		t.Error("readable source should not be listed")
	}
}

func TestRunAll_DirectorySource(t *testing.T) {
	fs := afero.NewMemMapFs()
	if err := fs.MkdirAll("/media", 0o755); err != nil {
		t.Fatal(err)
	}
	result := RunAll(fs, Options{Sources: []string{"/media"}, Layer: 2, BackgroundLayer: 1})
	c := findCheck(t, result, "sources")
	if c.Passed || !strings.Contains(c.Message, "directory") {
		t.Errorf("directory source check = %+v", c)
	}
}

func TestRunAll_NoSources(t *testing.T) {
	result := RunAll(afero.NewMemMapFs(), Options{Layer: 2, BackgroundLayer: 1})
	if findCheck(t, result, "sources").Passed {
		t.Error("no sources should fail")
	}
}

func TestRunAll_PlaylistFile(t *testing.T) {
	fs := memFs(t, "/media/a.h264", "/media/b.h264")
	if err := afero.WriteFile(fs, "/etc/list.txt", []byte("# intro\n/media/a.h264\n\n/media/b.h264\n"), 0o644); err != nil {
		t.Fatal(err)
	}

	result := RunAll(fs, Options{PlaylistFile: "/etc/list.txt", Layer: 128, BackgroundLayer: 64})

	pl := findCheck(t, result, "playlist_file")
	if !pl.Passed || !strings.Contains(pl.Message, "2 sources") {
		t.Errorf("playlist check = %+v", pl)
	}
	if !findCheck(t, result, "sources").Passed {
		t.Error("playlist sources should be readable")
	}
	if result.Checks[0].Name != "playlist_file" {
		t.Error("playlist check should run first")
	}
}

func TestRunAll_PlaylistFileMissing(t *testing.T) {
	result := RunAll(afero.NewMemMapFs(), Options{PlaylistFile: "/nope.txt", Layer: 2, BackgroundLayer: 1})
	if result.Passed {
		t.Error("missing playlist should fail")
	}
	failed := result.Failed()
	if len(failed) < 2 || failed[0] != "playlist_file" || failed[1] != "sources" {
		t.Errorf("Failed() = %v", failed)
	}
}

func TestCheckLayers(t *testing.T) {
	tests := []struct {
		name           string
		layer, bg      int
		passed, warned bool
	}{
		{"background_below", 128, 64, true, false},
		{"equal", 64, 64, false, false},
		{"background_above", 10, 20, true, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := checkLayers(tt.layer, tt.bg)
			if c.Passed != tt.passed || c.Warning != tt.warned {
				t.Errorf("checkLayers(%d, %d) = %+v", tt.layer, tt.bg, c)
			}
		})
	}
}

func TestCheckFileDescriptors(t *testing.T) {
	c := checkFileDescriptors(10)
	if c.Name != "file_descriptors" {
		t.Errorf("name = %s", c.Name)
	}
	if c.Warning {
		t.Skip("rlimit unavailable")
	}
	if c.Required != 42 {
		t.Errorf("Required = %d, want 42", c.Required)
	}
	if c.Actual <= 0 {
		t.Errorf("Actual = %d, want > 0", c.Actual)
	}
	if c.Passed != (c.Actual >= c.Required) {
		t.Error("Passed should follow Actual >= Required")
	}
}

func TestCheckFileDescriptors_Scaling(t *testing.T) {
	small := checkFileDescriptors(1)
	large := checkFileDescriptors(1000)
	if small.Warning || large.Warning {
		t.Skip("rlimit unavailable")
	}
	if large.Required <= small.Required {
		t.Error("requirement should grow with the playlist")
	}
}

func TestSuggestFix(t *testing.T) {
	for _, name := range []string{"file_descriptors", "sources", "playlist_file", "display_layers"} {
		if fix := suggestFix(name); fix == "see documentation" {
			t.Errorf("suggestFix(%s) should be specific", name)
		}
	}
	if suggestFix("unknown") != "see documentation" {
		t.Error("unknown check should get the generic hint")
	}
}

func TestPrintResults(t *testing.T) {
	result := &Result{
		Checks: []Check{
			{Name: "sources", Passed: true, Message: "1 readable"},
			{Name: "display_layers", Passed: false, Message: "player 1, background 1 (must differ)"},
		},
	}
	var buf bytes.Buffer
	PrintResults(&buf, result)

	out := buf.String()
	for _, want := range []string{"Preflight checks:", "1 readable", "must differ", "Fix: set --layer above --background-layer"} {
		if !strings.Contains(out, want) {
			t.Errorf("output missing %q:\n%s", want, out)
		}
	}
	if strings.Count(out, "Fix:") != 1 {
		t.Error("only failed checks get a fix line")
	}
}
