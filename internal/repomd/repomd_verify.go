package repomd

import (
	"crypto/md5"
	"crypto/sha1"
	"crypto/sha256"
	"crypto/sha512"
	"encoding/hex"
	"fmt"
	"hash"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
)

var digests = map[string]func() hash.Hash{
	"sha":    sha1.New,
	"sha1":   sha1.New,
	"sha256": sha256.New,
	"sha384": sha512.New384,
	"sha512": sha512.New,
	"md5":    md5.New,
}

// newDigest returns the hash named by algorithm, falling back to sha256.
func newDigest(algorithm string) hash.Hash {
	if fn, ok := digests[strings.ToLower(algorithm)]; ok {
		return fn()
	}
	return sha256.New()
}

// FileDigest computes the hex digest of the file at path.
func FileDigest(path, algorithm string) (string, error) {
	file, err := os.Open(path)
	if err != nil {
		return "", err
	}
	defer file.Close()

	h := newDigest(algorithm)
	if _, err := io.Copy(h, file); err != nil {
		return "", err
	}
	return hex.EncodeToString(h.Sum(nil)), nil
}

// ResolveAndVerify resolves the document declared for typ under root, checks
// it exists with a compressed extension and matches the declared digest. It
// returns the absolute path of the document.
func ResolveAndVerify(typ string, index *Index, root string, layout Layout) (string, error) {
	ref, ok := index.Ref(typ)
	if !ok || ref.Location == "" {
		return "", &IntegrityError{Reason: fmt.Sprintf("index declares no %s document", typ)}
	}

	docPath := filepath.Join(root, filepath.FromSlash(ref.Location))
	info, err := os.Stat(docPath)
	if err != nil || !info.Mode().IsRegular() || !layout.IsCompressed(docPath) {
		return "", &IntegrityError{
			Reason: fmt.Sprintf("%s metadata document does not exist or is not compressed", typ),
			Paths:  []string{ref.Location},
		}
	}

	actual, err := FileDigest(docPath, ref.ChecksumType)
	if err != nil {
		return "", fmt.Errorf("checksum %s: %w", docPath, err)
	}
	if !strings.EqualFold(actual, ref.Checksum) {
		return "", &ChecksumMismatchError{
			Path:      ref.Location,
			Algorithm: ref.ChecksumType,
			Expected:  ref.Checksum,
			Actual:    actual,
		}
	}
	return docPath, nil
}

// VerifyAll verifies every member type of the layout that the index declares.
// The primary document is always required.
func VerifyAll(index *Index, root string, layout Layout) error {
	for _, typ := range layout.MemberTypes {
		if _, ok := index.Ref(typ); !ok && typ != layout.PrimaryType {
			slog.Debug("metadata type not declared, skipping", "type", typ)
			continue
		}
		if _, err := ResolveAndVerify(typ, index, root, layout); err != nil {
			return err
		}
	}
	return nil
}
