package modeldesc

import (
	"archive/zip"
	"fmt"
	"io"
	"net/url"
	"os"
	"path/filepath"
	"runtime"
	"strings"
	"sync"
)

// Package is an FMU whose binaries and resources have been extracted to a
// private temporary directory.
type Package struct {
	Path        string
	Dir         string
	Description *ModelDescription

	once sync.Once
	err  error
}

// extracted lists the archive prefixes a Model-Exchange import needs.
var extracted = []string{"binaries/", "resources/", descriptionFile}

// Open reads the model description of the FMU at path and extracts its
// binaries and resources. The caller must Close the package; on error
// nothing is left on disk.
func Open(path string) (pkg *Package, err error) {
	md, err := Read(path)
	if err != nil {
		return nil, err
	}

	dir, err := os.MkdirTemp("", "fmu-"+md.ModelExchange.ModelIdentifier+"-")
	if err != nil {
		return nil, err
	}
	pkg = &Package{Path: path, Dir: dir, Description: md}
	defer func() {
		if err != nil {
			pkg.Close()
			pkg = nil
		}
	}()

	if err := extract(path, dir); err != nil {
		return nil, err
	}
	return pkg, nil
}

func extract(path, dir string) error {
	zr, err := zip.OpenReader(path)
	if err != nil {
		return fmt.Errorf("modeldesc: open %s: %w", path, err)
	}
	defer zr.Close()

	for _, f := range zr.File {
		if !wanted(f.Name) || strings.HasSuffix(f.Name, "/") {
			continue
		}
		target := filepath.Join(dir, filepath.FromSlash(f.Name))
		if !strings.HasPrefix(target, filepath.Clean(dir)+string(os.PathSeparator)) {
			return fmt.Errorf("modeldesc: illegal path %q in archive", f.Name)
		}
		if err := extractFile(f, target); err != nil {
			return err
		}
	}
	return nil
}

func wanted(name string) bool {
	for _, p := range extracted {
		if strings.HasPrefix(name, p) {
			return true
		}
	}
	return false
}

func extractFile(f *zip.File, target string) error {
	if err := os.MkdirAll(filepath.Dir(target), 0755); err != nil {
		return err
	}
	rc, err := f.Open()
	if err != nil {
		return err
	}
	defer rc.Close()

	out, err := os.OpenFile(target, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0755)
	if err != nil {
		return err
	}
	if _, err := io.Copy(out, rc); err != nil {
		out.Close()
		return err
	}
	return out.Close()
}

// BinaryPath is the shared library for the running platform.
func (p *Package) BinaryPath() (string, error) {
	return BinaryPath(p.Dir, p.Description.ModelExchange.ModelIdentifier, runtime.GOOS, runtime.GOARCH)
}

// ResourceURI is the file URI of the resources directory passed to
// fmi2Instantiate.
func (p *Package) ResourceURI() string {
	return ResourceURI(p.Dir)
}

// Close removes the extraction directory. Only the first call has an effect.
func (p *Package) Close() error {
	p.once.Do(func() {
		p.err = os.RemoveAll(p.Dir)
	})
	return p.err
}

// BinaryPath resolves binaries/<platform>/<modelIdentifier>.<ext> under dir.
func BinaryPath(dir, modelIdentifier, goos, goarch string) (string, error) {
	platform, ext, err := platformDir(goos, goarch)
	if err != nil {
		return "", err
	}
	path := filepath.Join(dir, "binaries", platform, modelIdentifier+ext)
	if _, err := os.Stat(path); err != nil {
		return "", fmt.Errorf("modeldesc: no %s binary for %s: %w", platform, modelIdentifier, err)
	}
	return path, nil
}

func platformDir(goos, goarch string) (string, string, error) {
	if goarch != "amd64" && goarch != "arm64" {
		return "", "", fmt.Errorf("modeldesc: unsupported architecture %s", goarch)
	}
	switch goos {
	case "linux":
		return "linux64", ".so", nil
	case "darwin":
		return "darwin64", ".dylib", nil
	case "windows":
		return "win64", ".dll", nil
	default:
		return "", "", fmt.Errorf("modeldesc: unsupported platform %s", goos)
	}
}

func ResourceURI(dir string) string {
	abs, err := filepath.Abs(filepath.Join(dir, "resources"))
	if err != nil {
		abs = filepath.Join(dir, "resources")
	}
	u := url.URL{Scheme: "file", Path: filepath.ToSlash(abs)}
	return u.String() + "/"
}
