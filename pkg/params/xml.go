package params

import (
	"encoding/xml"
	"fmt"
	"strconv"
	"strings"
)

// XMLHeader starts every parameter blob.
const XMLHeader = `<?xml version="1.0" encoding="utf-8"?>`

// XMLTrailer ends every parameter blob.
const XMLTrailer = "</root>"

type xmlRoot struct {
	XMLName xml.Name   `xml:"root"`
	Entries []xmlEntry `xml:",any"`
}

type xmlEntry struct {
	XMLName xml.Name
	Name    string `xml:"name,attr"`
	Value   string `xml:"value,attr"`
}

// MarshalText renders the set as an XML blob.
func (s *Set) MarshalText() ([]byte, error) {
	root := xmlRoot{}
	for _, n := range s.Names() {
		v := s.values[n]
		root.Entries = append(root.Entries, xmlEntry{
			XMLName: xml.Name{Local: v.Kind.String()},
			Name:    n,
			Value:   v.Text(),
		})
	}
	body, err := xml.MarshalIndent(root, "", " ")
	if err != nil {
		return nil, fmt.Errorf("failed to marshal parameters: %w", err)
	}
	return []byte(XMLHeader + "\n" + string(body)), nil
}

// XML returns the blob as a string. An empty set yields an empty root.
func (s *Set) XML() string {
	b, err := s.MarshalText()
	if err != nil {
		return XMLHeader + "\n<root></root>"
	}
	return string(b)
}

// ParseXML reads a blob produced by MarshalText.
func ParseXML(blob string) (*Set, error) {
	blob = strings.TrimSpace(blob)
	if !strings.HasPrefix(blob, "<?xml") {
		return nil, fmt.Errorf("parameter blob must start with <?xml")
	}
	if !strings.HasSuffix(blob, XMLTrailer) {
		return nil, fmt.Errorf("parameter blob must end with %s", XMLTrailer)
	}

	var root xmlRoot
	if err := xml.Unmarshal([]byte(blob), &root); err != nil {
		return nil, fmt.Errorf("failed to parse parameters: %w", err)
	}

	s := New()
	for _, e := range root.Entries {
		if e.Name == "" {
			return nil, fmt.Errorf("parameter element <%s> without name", e.XMLName.Local)
		}
		switch e.XMLName.Local {
		case "double":
			v, err := strconv.ParseFloat(strings.TrimSpace(e.Value), 64)
			if err != nil {
				return nil, fmt.Errorf("parameter %q: invalid number %q", e.Name, e.Value)
			}
			s.SetNumber(e.Name, v)
		case "string":
			s.SetString(e.Name, e.Value)
		default:
			return nil, fmt.Errorf("parameter %q: unsupported type <%s>", e.Name, e.XMLName.Local)
		}
	}
	return s, nil
}
