package storage

import (
	"fmt"
	"path"
	"regexp"
	"strings"
	"time"
)

var pathComponentPattern = regexp.MustCompile(`^[a-zA-Z0-9][a-zA-Z0-9._-]{0,127}$`)

// BuildDatasetFilePath lays files out as <prefix>/<subject>/month=YYYY-MM/part-<seq>.parquet.
func BuildDatasetFilePath(prefix, subject string, month time.Time, sequence int) (string, error) {
	if err := validatePathComponent(subject, "subject"); err != nil {
		return "", err
	}
	if sequence < 0 {
		return "", fmt.Errorf("sequence must be >= 0")
	}
	ts := month.UTC()
	return path.Join(
		DatasetPrefix(prefix, subject),
		fmt.Sprintf("month=%04d-%02d", ts.Year(), ts.Month()),
		fmt.Sprintf("part-%05d.parquet", sequence),
	), nil
}

func DatasetPrefix(prefix, subject string) string {
	prefix = strings.Trim(strings.TrimSpace(prefix), "/")
	if prefix == "" {
		return subject
	}
	return path.Join(prefix, subject)
}

func IsParquetKey(key string) bool {
	return strings.HasSuffix(strings.ToLower(key), ".parquet")
}

func validatePathComponent(value, field string) error {
	if !pathComponentPattern.MatchString(value) {
		return fmt.Errorf("invalid %s: %q", field, value)
	}
	return nil
}
