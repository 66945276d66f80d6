package output

import (
	"fmt"
	"path/filepath"
	"strings"
)

var delimitersByExt = map[string]string{
	"csv": ",",
	"tsv": "\t",
}

// ResolveDelimiter picks the field delimiter for an output file.
//
// An explicit delim always wins. With no filename there is nothing to
// write and "" is returned. Otherwise the delimiter is inferred from the
// file extension (csv or tsv, case-insensitive).
func ResolveDelimiter(filename, delim string) (string, error) {
	if delim != "" {
		return delim, nil
	}
	if filename == "" {
		return "", nil
	}

	ext := strings.ToLower(strings.TrimPrefix(filepath.Ext(filename), "."))
	if d, ok := delimitersByExt[ext]; ok {
		return d, nil
	}
	return "", fmt.Errorf("%w: %q", ErrUnknownDelimiter, filename)
}
