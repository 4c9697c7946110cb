package ptztrack

import (
	"bufio"
	"github.com/pkg/errors"
	"os"
	"path/filepath"
	"strings"
)

// LoadFrameList reads the image paths of a frame sequence from the given
// text file.  It should contain one path per line, blank lines and lines
// starting with # are skipped.  Relative paths are resolved against the
// directory of the list file.
func LoadFrameList(file string) ([]string, error) {

	// open the file
	f, err := os.Open(file)

	if err != nil {
		return nil, errors.Wrap(err, "error opening frame list")
	}

	defer f.Close()

	dir := filepath.Dir(file)

	// create a scanner to read the file.
	scanner := bufio.NewScanner(f)

	var paths []string

	// read and trim each line
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())

		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}

		if !filepath.IsAbs(line) {
			line = filepath.Join(dir, line)
		}

		paths = append(paths, line)
	}

	// check for errors during scanning
	if err := scanner.Err(); err != nil {
		return nil, errors.Wrap(err, "error reading frame list")
	}

	if len(paths) == 0 {
		return nil, errors.Errorf("frame list %s has no frames", file)
	}

	return paths, nil
}
