package repomd

import (
	"encoding/xml"
	"errors"
	"fmt"
	"io"
	"strings"
)

type locationElement struct {
	XMLName xml.Name
	Href    string `xml:"href,attr"`
}

type checksumElement struct {
	XMLName xml.Name
	Type    string `xml:"type,attr"`
	Value   string `xml:",chardata"`
}

type dataElement struct {
	Type      string            `xml:"type,attr"`
	Locations []locationElement `xml:"location"`
	Checksums []checksumElement `xml:"checksum"`
}

type packageElement struct {
	Locations []locationElement `xml:"location"`
}

// ReadIndex parses an index-of-indexes document. The namespace is taken from
// the root element so documents from any generator version are accepted.
func ReadIndex(r io.Reader) (*Index, error) {
	index := &Index{Data: make(map[string]DataRef)}

	ns, err := walkChildren(r, "repomd", "data", func(ns string, d *xml.Decoder, start xml.StartElement) error {
		var elem dataElement
		if err := d.DecodeElement(&elem, &start); err != nil {
			return err
		}
		if elem.Type == "" {
			return nil
		}

		ref := DataRef{Type: elem.Type}
		for _, loc := range elem.Locations {
			if loc.XMLName.Space == ns {
				ref.Location = loc.Href
				break
			}
		}
		for _, sum := range elem.Checksums {
			if sum.XMLName.Space == ns {
				ref.ChecksumType = sum.Type
				ref.Checksum = strings.TrimSpace(sum.Value)
				break
			}
		}
		// first declaration wins
		if _, ok := index.Data[ref.Type]; !ok {
			index.Data[ref.Type] = ref
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	index.Namespace = ns
	return index, nil
}

// ReadMemberList parses a primary member-list document and returns every
// package location in document order.
func ReadMemberList(r io.Reader) ([]string, error) {
	var members []string

	_, err := walkChildren(r, "metadata", "package", func(ns string, d *xml.Decoder, start xml.StartElement) error {
		var elem packageElement
		if err := d.DecodeElement(&elem, &start); err != nil {
			return err
		}
		for _, loc := range elem.Locations {
			if loc.XMLName.Space == ns && loc.Href != "" {
				members = append(members, loc.Href)
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return members, nil
}

// walkChildren checks the root element is named root and calls fn for every
// direct child named child in the root's namespace. Other children are skipped.
func walkChildren(r io.Reader, root, child string, fn func(ns string, d *xml.Decoder, start xml.StartElement) error) (string, error) {
	d := xml.NewDecoder(r)

	var ns string
	seenRoot := false
	depth := 0
	for {
		tok, err := d.Token()
		if errors.Is(err, io.EOF) {
			break
		} else if err != nil {
			return "", &IntegrityError{Reason: fmt.Sprintf("malformed %s document: %v", root, err)}
		}

		switch t := tok.(type) {
		case xml.StartElement:
			if depth == 0 {
				if t.Name.Local != root {
					return "", &IntegrityError{Reason: fmt.Sprintf("unexpected root element <%s>, want <%s>", t.Name.Local, root)}
				}
				ns = t.Name.Space
				seenRoot = true
				depth++
				continue
			}
			if depth == 1 && t.Name.Local == child && t.Name.Space == ns {
				if err := fn(ns, d, t); err != nil {
					return "", &IntegrityError{Reason: fmt.Sprintf("malformed <%s> element: %v", child, err)}
				}
				continue
			}
			if err := d.Skip(); err != nil {
				return "", &IntegrityError{Reason: fmt.Sprintf("malformed %s document: %v", root, err)}
			}
		case xml.EndElement:
			depth--
		}
	}

	if !seenRoot {
		return "", &IntegrityError{Reason: fmt.Sprintf("empty %s document", root)}
	}
	return ns, nil
}
