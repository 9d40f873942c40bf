package playlist

import (
	"bufio"
	"fmt"
	"strings"

	"github.com/samber/lo"
	"github.com/spf13/afero"
)

// LoadFile reads one source per line. Blank lines and lines starting with
// '#' are skipped.
func LoadFile(fs afero.Fs, path string) ([]string, error) {
	f, err := fs.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open playlist: %w", err)
	}
	defer f.Close()

	var lines []string
	sc := bufio.NewScanner(f)
	for sc.Scan() {
		lines = append(lines, sc.Text())
	}
	if err := sc.Err(); err != nil {
		return nil, fmt.Errorf("read playlist %s: %w", path, err)
	}

	sources := lo.FilterMap(lines, func(line string, _ int) (string, bool) {
		line = strings.TrimSpace(line)
		return line, line != "" && !strings.HasPrefix(line, "#")
	})
	if len(sources) == 0 {
		return nil, fmt.Errorf("%s: %w", path, ErrEmpty)
	}
	return sources, nil
}
