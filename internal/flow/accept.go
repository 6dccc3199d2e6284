package flow

import (
	"errors"
	"fmt"
	"path/filepath"
	"strings"
)

var (
	// ErrRejected marks a file that is not a spreadsheet.
	ErrRejected = errors.New("file type not accepted")
	// ErrNoFile is returned when nothing was dropped or picked.
	ErrNoFile = errors.New("no file selected")
)

var acceptedMIME = map[string]string{
	"text/csv":                 ".csv",
	"application/vnd.ms-excel": ".xls",
	"application/vnd.openxmlformats-officedocument.spreadsheetml.sheet": ".xlsx",
}

var acceptedExt = map[string]string{
	".csv":  "text/csv",
	".xls":  "application/vnd.ms-excel",
	".xlsx": "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet",
}

// Accept reports whether a file may be uploaded and returns the content
// type to send. A file passes when either its declared MIME type or its
// extension is a spreadsheet type. mimeType may be empty.
func Accept(name, mimeType string) (string, error) {
	mt := strings.ToLower(strings.TrimSpace(mimeType))
	if i := strings.IndexByte(mt, ';'); i >= 0 {
		mt = strings.TrimSpace(mt[:i])
	}
	if _, ok := acceptedMIME[mt]; ok {
		return mt, nil
	}
	ext := strings.ToLower(filepath.Ext(name))
	if ct, ok := acceptedExt[ext]; ok {
		return ct, nil
	}
	return "", fmt.Errorf("%w: %s", ErrRejected, filepath.Base(name))
}

// FirstFile picks the single file an action operates on. Extra files in a
// multi-file drop are ignored.
func FirstFile(paths []string) (string, int, error) {
	for i, p := range paths {
		if p = strings.TrimSpace(p); p != "" {
			ignored := 0
			for _, rest := range paths[i+1:] {
				if strings.TrimSpace(rest) != "" {
					ignored++
				}
			}
			return p, ignored, nil
		}
	}
	return "", 0, ErrNoFile
}
