package blob

import (
	"net/url"
	"regexp"
	"strings"
	"unicode"
	"unicode/utf8"
)

const maxKeyLength = 1024

// a leading separator or any backslash
var regexForbiddenPatterns = regexp.MustCompile(`^/+|\\`)

// ValidateKey checks that a key is usable both as an S3 key and as a path
// inside the staging tree. A trailing "/" is allowed for folder markers.
func ValidateKey(key string) bool {
	if len(key) == 0 || len(key) > maxKeyLength || !utf8.ValidString(key) {
		return false
	}
	if regexForbiddenPatterns.MatchString(key) {
		return false
	}
	if strings.ContainsFunc(key, unicode.IsControl) {
		return false
	}

	segments := strings.Split(strings.TrimSuffix(key, "/"), "/")
	for _, segment := range segments {
		// "." and ".." would escape or alias paths in the staging tree
		if segment == "" || segment == "." || segment == ".." {
			return false
		}
	}
	return true
}

// copySource builds the x-amz-copy-source value for key in bucket. S3 decodes
// the value, so each segment is escaped and "+" must not reach it as a space.
func copySource(bucket, key string) string {
	segments := strings.Split(key, "/")
	for i, segment := range segments {
		segments[i] = strings.ReplaceAll(url.PathEscape(segment), "+", "%2B")
	}
	return bucket + "/" + strings.Join(segments, "/")
}
