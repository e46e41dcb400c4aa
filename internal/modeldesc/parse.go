package modeldesc

import (
	"archive/zip"
	"encoding/xml"
	"fmt"
	"io"
	"os"
	"path/filepath"
)

const descriptionFile = "modelDescription.xml"

// Parse decodes and validates a modelDescription.xml document.
func Parse(r io.Reader) (*ModelDescription, error) {
	var md ModelDescription
	if err := xml.NewDecoder(r).Decode(&md); err != nil {
		return nil, fmt.Errorf("modeldesc: decode: %w", err)
	}
	if err := md.Validate(); err != nil {
		return nil, err
	}
	return &md, nil
}

// Read parses the model description of an FMU. path may be the .fmu
// archive or an already extracted directory.
func Read(path string) (*ModelDescription, error) {
	info, err := os.Stat(path)
	if err != nil {
		return nil, err
	}
	if info.IsDir() {
		f, err := os.Open(filepath.Join(path, descriptionFile))
		if err != nil {
			return nil, err
		}
		defer f.Close()
		return Parse(f)
	}

	zr, err := zip.OpenReader(path)
	if err != nil {
		return nil, fmt.Errorf("modeldesc: open %s: %w", path, err)
	}
	defer zr.Close()

	f, err := zr.Open(descriptionFile)
	if err != nil {
		return nil, fmt.Errorf("modeldesc: %s: %w", path, err)
	}
	defer f.Close()
	return Parse(f)
}
