package score

import (
	"archive/zip"
	"bytes"
	"encoding/xml"
	"errors"
	"fmt"
	"io"
	"path"
	"strings"

	"golang.org/x/net/html/charset"
	"golang.org/x/text/encoding/unicode"
)

var (
	ErrMarkup    = errors.New("score: invalid markup")
	ErrContainer = errors.New("score: invalid .mxl container")
)

var zipMagic = []byte("PK\x03\x04")

// IsContainer reports whether data looks like a compressed .mxl archive.
func IsContainer(data []byte) bool {
	return bytes.HasPrefix(data, zipMagic)
}

// Markup returns the MusicXML text inside data, unpacking .mxl archives.
// UTF-16 text is transcoded to UTF-8; other plain markup is returned as is.
func Markup(data []byte) ([]byte, error) {
	if !IsContainer(data) {
		return fromUTF16(data)
	}
	b, err := Unpack(data)
	if err != nil {
		return nil, err
	}
	return fromUTF16(b)
}

type container struct {
	Rootfiles []struct {
		FullPath string `xml:"full-path,attr"`
	} `xml:"rootfiles>rootfile"`
}

// Unpack extracts the root score of a .mxl archive. The rootfile named in
// META-INF/container.xml wins; otherwise the first .xml/.musicxml entry
// outside META-INF is used.
func Unpack(data []byte) ([]byte, error) {
	zr, err := zip.NewReader(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrContainer, err)
	}
	files := map[string]*zip.File{}
	for _, f := range zr.File {
		files[f.Name] = f
	}

	if f, ok := files["META-INF/container.xml"]; ok {
		b, err := readZipFile(f)
		if err != nil {
			return nil, err
		}
		var c container
		if err := xml.Unmarshal(b, &c); err == nil {
			for _, rf := range c.Rootfiles {
				if root, ok := files[rf.FullPath]; ok {
					return readZipFile(root)
				}
			}
		}
	}

	for _, f := range zr.File {
		if strings.HasPrefix(f.Name, "META-INF/") {
			continue
		}
		switch strings.ToLower(path.Ext(f.Name)) {
		case ".xml", ".musicxml":
			return readZipFile(f)
		}
	}
	return nil, fmt.Errorf("%w: no score entry", ErrContainer)
}

func readZipFile(f *zip.File) ([]byte, error) {
	rc, err := f.Open()
	if err != nil {
		return nil, fmt.Errorf("%w: open %s: %v", ErrContainer, f.Name, err)
	}
	defer rc.Close()
	b, err := io.ReadAll(rc)
	if err != nil {
		return nil, fmt.Errorf("%w: read %s: %v", ErrContainer, f.Name, err)
	}
	return b, nil
}

// CharsetReader decodes the encodings named in XML declarations. UTF-16
// documents were transcoded by Markup before the decoder saw them.
func CharsetReader(label string, input io.Reader) (io.Reader, error) {
	if strings.HasPrefix(strings.ToLower(strings.TrimSpace(label)), "utf-16") {
		return input, nil
	}
	r, err := charset.NewReaderLabel(label, input)
	if err != nil {
		return nil, fmt.Errorf("%w: charset %q: %v", ErrMarkup, label, err)
	}
	return r, nil
}

var (
	bomLE = []byte{0xFF, 0xFE}
	bomBE = []byte{0xFE, 0xFF}
)

// fromUTF16 transcodes BOM-marked UTF-16 text to UTF-8.
func fromUTF16(data []byte) ([]byte, error) {
	if !bytes.HasPrefix(data, bomLE) && !bytes.HasPrefix(data, bomBE) {
		return data, nil
	}
	out, err := unicode.UTF16(unicode.BigEndian, unicode.ExpectBOM).NewDecoder().Bytes(data)
	if err != nil {
		return nil, fmt.Errorf("%w: utf-16: %v", ErrMarkup, err)
	}
	return out, nil
}
