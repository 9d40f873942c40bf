// Package preflight provides startup validation checks.
package preflight

import (
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/samber/lo"
	"github.com/spf13/afero"
	"golang.org/x/sys/unix"

	"github.com/randomizedcoder/go-chain-player/internal/playlist"
)

// Check represents the result of a single preflight check.
type Check struct {
	Name     string // Name of the check
	Required int    // Required value (if applicable)
	Actual   int    // Actual value found
	Passed   bool   // Whether the check passed
	Warning  bool   // True if it's a warning (non-fatal)
	Message  string // Additional context
}

// Result holds the results of all preflight checks.
type Result struct {
	Checks []Check
	Passed bool
}

// Options is what the checks look at.
type Options struct {
	Sources         []string
	PlaylistFile    string
	Layer           int
	BackgroundLayer int
}

// String returns a human-readable summary of the check.
func (c Check) String() string {
	status := "✓"
	if !c.Passed {
		status = "✗"
	} else if c.Warning {
		status = "⚠"
	}

	if c.Required > 0 {
		return fmt.Sprintf("  %s %s: %d available (need %d)", status, c.Name, c.Actual, c.Required)
	}
	return fmt.Sprintf("  %s %s: %s", status, c.Name, c.Message)
}

// RunAll executes all preflight checks against fs.
func RunAll(fs afero.Fs, opts Options) *Result {
	sources := opts.Sources
	checks := make([]Check, 0, 4)

	if opts.PlaylistFile != "" {
		var plCheck Check
		sources, plCheck = checkPlaylistFile(fs, opts.PlaylistFile)
		checks = append(checks, plCheck)
	}

	checks = append(checks,
		checkSources(fs, sources),
		checkLayers(opts.Layer, opts.BackgroundLayer),
		checkFileDescriptors(len(sources)),
	)

	return &Result{
		Checks: checks,
		Passed: lo.EveryBy(checks, func(c Check) bool { return c.Passed }),
	}
}

// checkPlaylistFile verifies the playlist parses and returns its sources.
func checkPlaylistFile(fs afero.Fs, path string) ([]string, Check) {
	sources, err := playlist.LoadFile(fs, path)
	if err != nil {
		return nil, Check{
			Name:    "playlist_file",
			Passed:  false,
			Message: err.Error(),
		}
	}
	return sources, Check{
		Name:    "playlist_file",
		Passed:  true,
		Message: fmt.Sprintf("%s (%d sources)", path, len(sources)),
	}
}

// checkSources verifies every source is a readable regular file.
func checkSources(fs afero.Fs, sources []string) Check {
	if len(sources) == 0 {
		return Check{
			Name:    "sources",
			Passed:  false,
			Message: "no sources to play",
		}
	}

	bad := lo.FilterMap(lo.Uniq(sources), func(src string, _ int) (string, bool) {
		if err := readable(fs, src); err != nil {
			return fmt.Sprintf("%s (%v)", src, err), true
		}
		return "", false
	})
	if len(bad) > 0 {
		return Check{
			Name:    "sources",
			Passed:  false,
			Message: "unreadable: " + strings.Join(bad, ", "),
		}
	}

	return Check{
		Name:    "sources",
		Passed:  true,
		Message: fmt.Sprintf("%d readable", len(sources)),
	}
}

func readable(fs afero.Fs, path string) error {
	info, err := fs.Stat(path)
	if err != nil {
		return err
	}
	if info.IsDir() {
		return errors.New("is a directory")
	}
	f, err := fs.Open(path)
	if err != nil {
		return err
	}
	return f.Close()
}

// checkLayers verifies the background sits below the player. Equal layers
// fail; a background above the player hides the video and is a warning.
func checkLayers(layer, background int) Check {
	msg := fmt.Sprintf("player %d, background %d", layer, background)
	switch {
	case layer == background:
		return Check{
			Name:    "display_layers",
			Passed:  false,
			Message: msg + " (must differ)",
		}
	case background > layer:
		return Check{
			Name:    "display_layers",
			Passed:  true,
			Warning: true,
			Message: msg + " (background covers the player)",
		}
	default:
		return Check{
			Name:    "display_layers",
			Passed:  true,
			Message: msg,
		}
	}
}

// checkFileDescriptors verifies sufficient file descriptors are available.
func checkFileDescriptors(sources int) Check {
	var limit unix.Rlimit
	if err := unix.Getrlimit(unix.RLIMIT_NOFILE, &limit); err != nil {
		return Check{
			Name:    "file_descriptors",
			Passed:  true,
			Warning: true,
			Message: fmt.Sprintf("unable to check: %v", err),
		}
	}

	// One open reader at a time, plus a handle per playlist entry while
	// preflight and reloads stat them, plus the metrics server and logs.
	required := sources + 32
	actual := int(min(limit.Cur, 1<<30))

	return Check{
		Name:     "file_descriptors",
		Required: required,
		Actual:   actual,
		Passed:   actual >= required,
		Message:  fmt.Sprintf("ulimit -n %d (need %d for %d sources)", actual, required, sources),
	}
}

// PrintResults writes the preflight check results to w.
func PrintResults(w io.Writer, result *Result) {
	fmt.Fprintln(w, "Preflight checks:")
	for _, check := range result.Checks {
		fmt.Fprintln(w, check.String())
		if !check.Passed {
			fmt.Fprintf(w, "    Fix: %s\n", suggestFix(check.Name))
		}
	}
	fmt.Fprintln(w)
}

// Failed returns the names of the checks that did not pass.
func (r *Result) Failed() []string {
	return lo.FilterMap(r.Checks, func(c Check, _ int) (string, bool) {
		return c.Name, !c.Passed
	})
}

// suggestFix returns a suggestion for fixing a failed check.
func suggestFix(name string) string {
	switch name {
	case "file_descriptors":
		return "ulimit -n 1024 (or edit /etc/security/limits.conf)"
	case "sources":
		return "check the paths exist and are readable files"
	case "playlist_file":
		return "list one source per line; '#' starts a comment"
	case "display_layers":
		return "set --layer above --background-layer"
	default:
		return "see documentation"
	}
}
