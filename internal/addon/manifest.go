package addon

import (
	"archive/zip"
	"encoding/json"
	"encoding/xml"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/afero"
	"github.com/tidwall/jsonc"

	"github.com/shinji-kodama/shield/internal/model"
)

const (
	// ManifestFile is the WebExtension manifest file name.
	ManifestFile = "manifest.json"

	// InstallRDFFile is the legacy install manifest file name.
	InstallRDFFile = "install.rdf"

	// PackedExt is the file extension of a packed extension archive.
	PackedExt = ".xpi"

	installManifestAbout = "urn:mozilla:install-manifest"
)

// Kind identifies the manifest format an extension was described with.
type Kind string

const (
	// KindWebExtension is an extension described by manifest.json.
	KindWebExtension Kind = "webextension"

	// KindLegacy is a bootstrapped extension described by install.rdf.
	KindLegacy Kind = "legacy"
)

// String returns the string representation of Kind.
func (k Kind) String() string {
	return string(k)
}

// ErrNoManifest is returned when a package has neither manifest.json nor
// install.rdf.
var ErrNoManifest = errors.New("extension package has no " + ManifestFile + " or " + InstallRDFFile)

// ErrNoID is returned when a manifest does not declare an extension ID.
var ErrNoID = errors.New("extension manifest does not declare an ID")

// Manifest is the subset of an extension's metadata needed to install it.
type Manifest struct {
	// ID is the extension ID; it names the entry under extensions/.
	ID string `json:"id"`

	// Name is the display name, if declared.
	Name string `json:"name,omitempty"`

	// Version is the declared version, if any.
	Version string `json:"version,omitempty"`

	// Kind is the manifest format.
	Kind Kind `json:"kind"`

	// Path is the package location (directory or .xpi file).
	Path string `json:"path"`

	// Packed reports whether Path is an .xpi archive.
	Packed bool `json:"packed"`
}

// webExtensionManifest mirrors the manifest.json fields we read.
type webExtensionManifest struct {
	Name                   string         `json:"name"`
	Version                string         `json:"version"`
	BrowserSpecificSetting *geckoSettings `json:"browser_specific_settings,omitempty"`
	Applications           *geckoSettings `json:"applications,omitempty"`
}

type geckoSettings struct {
	Gecko struct {
		ID string `json:"id"`
	} `json:"gecko"`
}

// rdfDocument mirrors the parts of install.rdf we read. Element and
// attribute forms of the em: properties are both valid RDF/XML.
type rdfDocument struct {
	XMLName      xml.Name         `xml:"http://www.w3.org/1999/02/22-rdf-syntax-ns# RDF"`
	Descriptions []rdfDescription `xml:"http://www.w3.org/1999/02/22-rdf-syntax-ns# Description"`
}

type rdfDescription struct {
	About       string `xml:"about,attr"`
	IDAttr      string `xml:"http://www.mozilla.org/2004/em-rdf# id,attr"`
	NameAttr    string `xml:"http://www.mozilla.org/2004/em-rdf# name,attr"`
	VersionAttr string `xml:"http://www.mozilla.org/2004/em-rdf# version,attr"`
	ID          string `xml:"http://www.mozilla.org/2004/em-rdf# id"`
	Name        string `xml:"http://www.mozilla.org/2004/em-rdf# name"`
	Version     string `xml:"http://www.mozilla.org/2004/em-rdf# version"`
}

// Load reads the manifest of the extension package at path, which may be
// a directory or a packed .xpi file.
//
// Every failure is returned as a CONFIGURATION_ERROR: a missing path, an
// unreadable archive, a package without a manifest, or a manifest without
// an ID.
func Load(fs afero.Fs, path string) (*Manifest, error) {
	info, err := fs.Stat(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, model.ConfigurationError(fmt.Sprintf("addon not found: %s", path), err)
		}
		return nil, model.ConfigurationError(fmt.Sprintf("failed to read addon %s", path), err)
	}

	var m *Manifest
	if info.IsDir() {
		m, err = loadDir(fs, path)
	} else {
		m, err = loadPacked(fs, path, info.Size())
	}
	if err != nil {
		return nil, model.ConfigurationError(fmt.Sprintf("invalid addon package %s", path), err)
	}
	m.Path = path
	return m, nil
}

func loadDir(fs afero.Fs, dir string) (*Manifest, error) {
	return loadFrom(func(name string) ([]byte, error) {
		return afero.ReadFile(fs, filepath.Join(dir, name))
	})
}

func loadPacked(fs afero.Fs, path string, size int64) (*Manifest, error) {
	if !strings.EqualFold(filepath.Ext(path), PackedExt) {
		return nil, fmt.Errorf("not a directory or %s archive", PackedExt)
	}

	f, err := fs.Open(path)
	if err != nil {
		return nil, err
	}
	defer func() { _ = f.Close() }()

	zr, err := zip.NewReader(f, size)
	if err != nil {
		return nil, fmt.Errorf("reading %s archive: %w", PackedExt, err)
	}

	m, err := loadFrom(func(name string) ([]byte, error) {
		return readZipEntry(zr, name)
	})
	if err != nil {
		return nil, err
	}
	m.Packed = true
	return m, nil
}

func readZipEntry(zr *zip.Reader, name string) ([]byte, error) {
	for _, zf := range zr.File {
		if zf.Name != name {
			continue
		}
		rc, err := zf.Open()
		if err != nil {
			return nil, err
		}
		defer func() { _ = rc.Close() }()
		return io.ReadAll(rc)
	}
	return nil, os.ErrNotExist
}

// loadFrom prefers manifest.json and falls back to install.rdf.
func loadFrom(read func(name string) ([]byte, error)) (*Manifest, error) {
	data, err := read(ManifestFile)
	if err == nil {
		return ParseWebExtension(data)
	}
	if !errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("reading %s: %w", ManifestFile, err)
	}

	data, err = read(InstallRDFFile)
	if err == nil {
		return ParseInstallRDF(data)
	}
	if !errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("reading %s: %w", InstallRDFFile, err)
	}
	return nil, ErrNoManifest
}

// ParseWebExtension parses a manifest.json document. JSONC comments and
// trailing commas are stripped before decoding.
func ParseWebExtension(data []byte) (*Manifest, error) {
	var raw webExtensionManifest
	if err := json.Unmarshal(jsonc.ToJSON(data), &raw); err != nil {
		return nil, fmt.Errorf("failed to parse %s: %w", ManifestFile, err)
	}

	var id string
	switch {
	case raw.BrowserSpecificSetting != nil && raw.BrowserSpecificSetting.Gecko.ID != "":
		id = raw.BrowserSpecificSetting.Gecko.ID
	case raw.Applications != nil && raw.Applications.Gecko.ID != "":
		id = raw.Applications.Gecko.ID
	}
	if id == "" {
		return nil, fmt.Errorf("%s: %w", ManifestFile, ErrNoID)
	}

	m := &Manifest{
		ID:      id,
		Name:    raw.Name,
		Version: raw.Version,
		Kind:    KindWebExtension,
	}
	if err := m.Validate(); err != nil {
		return nil, err
	}
	return m, nil
}

// ParseInstallRDF parses a legacy install.rdf document. The description
// about urn:mozilla:install-manifest is used; if none is marked, the first
// description is.
func ParseInstallRDF(data []byte) (*Manifest, error) {
	var doc rdfDocument
	if err := xml.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("failed to parse %s: %w", InstallRDFFile, err)
	}
	if len(doc.Descriptions) == 0 {
		return nil, fmt.Errorf("%s: no Description element", InstallRDFFile)
	}

	desc := doc.Descriptions[0]
	for _, d := range doc.Descriptions {
		if d.About == installManifestAbout {
			desc = d
			break
		}
	}

	m := &Manifest{
		ID:      firstNonEmpty(desc.ID, desc.IDAttr),
		Name:    firstNonEmpty(desc.Name, desc.NameAttr),
		Version: firstNonEmpty(desc.Version, desc.VersionAttr),
		Kind:    KindLegacy,
	}
	if m.ID == "" {
		return nil, fmt.Errorf("%s: %w", InstallRDFFile, ErrNoID)
	}
	if err := m.Validate(); err != nil {
		return nil, err
	}
	return m, nil
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v = strings.TrimSpace(v); v != "" {
			return v
		}
	}
	return ""
}
