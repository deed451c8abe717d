package catalog

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
)

type (
	LibraryConfig struct {
		// Path is the root directory media files are stored beneath,
		// one sub-directory per folder.
		Path string `yaml:"path" env:"MEDIA_LIBRARY_PATH" env-default:"/var/lib/gramvault/media"`

		// BaseURL is prefixed to library-relative paths to form the URL
		// recorded on catalog entities.
		BaseURL string `yaml:"base_url" env:"MEDIA_BASE_URL" env-default:"/media"`
	}

	// Library places uploaded files on disk and derives the URLs they
	// will be served from. It knows nothing about the database; the store
	// records what the library returns.
	Library struct {
		config LibraryConfig
	}
)

func NewLibrary(config LibraryConfig) *Library {
	return &Library{config: config}
}

// StoreFile copies the file at sourcePath in to the library beneath the
// named folder, returning the on-disk path and the serving URL.
func (library *Library) StoreFile(sourcePath string, folderName string, fileName string) (diskPath string, url string, err error) {
	destDir := filepath.Join(library.config.Path, folderName)
	if err := os.MkdirAll(destDir, 0o755); err != nil {
		return "", "", err
	}

	diskPath = filepath.Join(destDir, fileName)
	if err := copyFile(sourcePath, diskPath); err != nil {
		return "", "", fmt.Errorf("failed to store %s in library: %w", fileName, err)
	}

	return diskPath, library.URLFor(folderName, fileName), nil
}

// URLFor derives the serving URL of a library file without touching disk.
func (library *Library) URLFor(folderName string, fileName string) string {
	base := strings.TrimRight(library.config.BaseURL, "/")
	return base + "/" + folderName + "/" + fileName
}

// DerivedDir returns (and creates) the directory that derived formats of
// the named file live in, e.g. HLS segments and resolution variants.
func (library *Library) DerivedDir(folderName string, fileName string) (string, error) {
	stem := strings.TrimSuffix(fileName, filepath.Ext(fileName))
	dir := filepath.Join(library.config.Path, folderName, stem)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", err
	}

	return dir, nil
}

// DerivedURL maps a path inside the library back to its serving URL.
func (library *Library) DerivedURL(diskPath string) string {
	relative, err := filepath.Rel(library.config.Path, diskPath)
	if err != nil {
		return ""
	}

	base := strings.TrimRight(library.config.BaseURL, "/")
	return base + "/" + filepath.ToSlash(relative)
}

func copyFile(sourcePath string, destPath string) error {
	source, err := os.Open(sourcePath)
	if err != nil {
		return err
	}
	defer source.Close()

	dest, err := os.Create(destPath)
	if err != nil {
		return err
	}
	defer dest.Close()

	if _, err := io.Copy(dest, source); err != nil {
		return err
	}

	return dest.Close()
}
