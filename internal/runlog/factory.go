package runlog

import (
	"fmt"
	"net/url"
	"strings"
)

// BuildRecorderFromDSN selects a backend by scheme: memory://, file://<path>,
// or postgres://. A bare path and an empty scheme mean a JSON file; an empty
// DSN means no recorder at all.
func BuildRecorderFromDSN(dsn string) (Recorder, error) {
	dsn = strings.TrimSpace(dsn)
	if dsn == "" {
		return nil, nil
	}
	parsed, err := url.Parse(dsn)
	if err != nil {
		return nil, err
	}
	scheme := strings.ToLower(strings.TrimSpace(parsed.Scheme))
	switch scheme {
	case "", "file":
		path, pathErr := dsnPath(parsed, dsn)
		if pathErr != nil {
			return nil, pathErr
		}
		return NewFileRecorder(path)
	case "memory", "mem", "inmem":
		return NewInMemoryRecorder(), nil
	case "postgres", "postgresql":
		return NewPostgresRecorder(dsn)
	default:
		return nil, fmt.Errorf("unsupported run log scheme: %s", scheme)
	}
}

func dsnPath(parsed *url.URL, raw string) (string, error) {
	if parsed.Scheme == "" {
		return raw, nil
	}
	path := parsed.Path
	if parsed.Host != "" {
		path = parsed.Host + path
	}
	if strings.TrimSpace(path) == "" {
		return "", fmt.Errorf("%w: file DSN has no path: %s", ErrInvalidInput, raw)
	}
	return path, nil
}
