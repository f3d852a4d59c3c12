package corpus

import (
	"os"
	"strings"

	"github.com/edsrzf/mmap-go"
	"github.com/pkg/errors"
)

// Lines reads a newline-delimited corpus through a memory mapping, one
// document per line. Windows line endings are tolerated and blank lines are
// dropped. The returned strings are copies; the mapping is released before
// returning.
func Lines(path string) ([]string, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, errors.Wrapf(err, "opening corpus %s", path)
	}
	defer f.Close()

	info, err := f.Stat()
	if err != nil {
		return nil, errors.Wrapf(err, "stat corpus %s", path)
	}
	if info.Size() == 0 {
		return nil, nil
	}

	m, err := mmap.Map(f, mmap.RDONLY, 0)
	if err != nil {
		return nil, errors.Wrapf(err, "mapping corpus %s", path)
	}
	defer m.Unmap()

	var docs []string
	start := 0
	for i := 0; i <= len(m); i++ {
		if i != len(m) && m[i] != '\n' {
			continue
		}
		line := string(m[start:i]) // copies out of the mapping
		start = i + 1
		line = strings.TrimSuffix(line, "\r")
		if line != "" {
			docs = append(docs, line)
		}
	}
	return docs, nil
}
