// Package naming validates and generates container names.
//
// Container names double as file names for history records and as arguments
// to the container engine, so only a conservative character set is accepted.
package naming

import (
	"regexp"
	"strings"

	"github.com/google/uuid"
)

// MaxLength is the longest container name accepted.
const MaxLength = 64

// GeneratedPrefix is prepended to names created for requests without a name.
const GeneratedPrefix = "box-"

var pattern = regexp.MustCompile(`^[A-Za-z0-9][A-Za-z0-9_.-]{0,63}$`)

// Valid reports whether name matches the safe container-name pattern.
func Valid(name string) bool {
	return pattern.MatchString(name)
}

// Generate returns a fresh valid name such as "box-1f3a9c2e".
func Generate() string {
	id := strings.ReplaceAll(uuid.NewString(), "-", "")
	return GeneratedPrefix + id[:8]
}
