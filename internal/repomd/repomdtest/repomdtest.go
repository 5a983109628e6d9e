// Package repomdtest writes small but well-formed repository metadata for tests.
package repomdtest

import (
	"bytes"
	"crypto/sha256"
	"encoding/hex"
	"encoding/xml"
	"fmt"
	"os"
	"path/filepath"

	"github.com/klauspost/compress/gzip"
	"github.com/openmined/s3repo/internal/repomd"
)

const (
	RepoNamespace   = "http://linux.duke.edu/metadata/repo"
	CommonNamespace = "http://linux.duke.edu/metadata/common"
)

// PrimaryXML renders a primary document declaring members in order.
func PrimaryXML(ns string, members []string) []byte {
	var buf bytes.Buffer
	buf.WriteString(xml.Header)
	fmt.Fprintf(&buf, "<metadata xmlns=%q xmlns:rpm=\"http://linux.duke.edu/metadata/rpm\" packages=\"%d\">\n", ns, len(members))
	for _, member := range members {
		buf.WriteString("  <package type=\"rpm\">\n")
		fmt.Fprintf(&buf, "    <name>%s</name>\n", escape(filepath.Base(member)))
		fmt.Fprintf(&buf, "    <location href=\"%s\"/>\n", escape(member))
		buf.WriteString("  </package>\n")
	}
	buf.WriteString("</metadata>\n")
	return buf.Bytes()
}

// IndexXML renders an index document for refs.
func IndexXML(ns string, refs ...repomd.DataRef) []byte {
	var buf bytes.Buffer
	buf.WriteString(xml.Header)
	fmt.Fprintf(&buf, "<repomd xmlns=%q xmlns:rpm=\"http://linux.duke.edu/metadata/rpm\">\n", ns)
	buf.WriteString("  <revision>1</revision>\n")
	for _, ref := range refs {
		fmt.Fprintf(&buf, "  <data type=\"%s\">\n", escape(ref.Type))
		fmt.Fprintf(&buf, "    <checksum type=\"%s\">%s</checksum>\n", escape(ref.ChecksumType), escape(ref.Checksum))
		fmt.Fprintf(&buf, "    <location href=\"%s\"/>\n", escape(ref.Location))
		buf.WriteString("  </data>\n")
	}
	buf.WriteString("</repomd>\n")
	return buf.Bytes()
}

// Gzip compresses data.
func Gzip(data []byte) []byte {
	var buf bytes.Buffer
	gz := gzip.NewWriter(&buf)
	_, _ = gz.Write(data)
	_ = gz.Close()
	return buf.Bytes()
}

// Write generates repodata/primary.xml.gz and repodata/repomd.xml under root
// declaring members. The index carries a valid sha256 digest.
func Write(root string, members []string) error {
	dir := filepath.Join(root, repomd.DefaultLayout.Folder)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return err
	}

	primary := Gzip(PrimaryXML(CommonNamespace, members))
	if err := os.WriteFile(filepath.Join(dir, "primary.xml.gz"), primary, 0o644); err != nil {
		return err
	}

	sum := sha256.Sum256(primary)
	index := IndexXML(RepoNamespace, repomd.DataRef{
		Type:         repomd.DefaultLayout.PrimaryType,
		Location:     repomd.DefaultLayout.Folder + "/primary.xml.gz",
		ChecksumType: "sha256",
		Checksum:     hex.EncodeToString(sum[:]),
	})
	return os.WriteFile(filepath.Join(dir, repomd.DefaultLayout.IndexFile), index, 0o644)
}

func escape(s string) string {
	var buf bytes.Buffer
	_ = xml.EscapeText(&buf, []byte(s))
	return buf.String()
}
