package frontendsim

import (
	"fmt"
	"os"
	"path"

	"gopkg.in/yaml.v3"
)

// HeaderEntry is a single image header card.
type HeaderEntry struct {
	Name    string `yaml:"name" json:"name"`
	Value   string `yaml:"value" json:"value"`
	Comment string `yaml:"comment,omitempty" json:"comment,omitempty"`
}

// ImageInfo describes the dimensions reported for an image file.
type ImageInfo struct {
	Width      int           `yaml:"width"`
	Height     int           `yaml:"height"`
	Depth      int           `yaml:"depth"`
	Stokes     int           `yaml:"stokes"`
	Dimensions int           `yaml:"dimensions"`
	Header     []HeaderEntry `yaml:"header"`
}

// DefaultImageInfo is reported for files missing from the catalog.
var DefaultImageInfo = ImageInfo{Width: 100, Height: 100, Depth: 1, Stokes: 1, Dimensions: 2}

// Catalog maps image file paths, relative to the file system root, to their
// dimensions. Entries may also be keyed by bare file name.
type Catalog struct {
	Images map[string]ImageInfo `yaml:"images"`
}

// LoadCatalog reads a YAML catalog:
//
//	images:
//	  data/cube.fits: {width: 512, height: 512, depth: 64, stokes: 4, dimensions: 4}
func LoadCatalog(file string) (*Catalog, error) {
	data, err := os.ReadFile(file)
	if err != nil {
		return nil, fmt.Errorf("frontendsim: read catalog: %w", err)
	}
	return ParseCatalog(data)
}

// ParseCatalog decodes a YAML catalog document.
func ParseCatalog(data []byte) (*Catalog, error) {
	var c Catalog
	if err := yaml.Unmarshal(data, &c); err != nil {
		return nil, fmt.Errorf("frontendsim: parse catalog: %w", err)
	}
	for name, info := range c.Images {
		if info.Width <= 0 || info.Height <= 0 {
			return nil, fmt.Errorf("frontendsim: catalog entry %q: width and height must be positive", name)
		}
		if info.Depth <= 0 {
			info.Depth = 1
		}
		if info.Stokes <= 0 {
			info.Stokes = 1
		}
		if info.Dimensions == 0 {
			info.Dimensions = inferDimensions(info)
		}
		c.Images[name] = info
	}
	return &c, nil
}

func inferDimensions(info ImageInfo) int {
	switch {
	case info.Stokes > 1:
		return 4
	case info.Depth > 1:
		return 3
	}
	return 2
}

// Lookup returns the info for a file path, falling back to its base name
// and then to DefaultImageInfo.
func (c *Catalog) Lookup(filePath string) ImageInfo {
	if c != nil {
		if info, ok := c.Images[filePath]; ok {
			return info
		}
		if info, ok := c.Images[path.Base(filePath)]; ok {
			return info
		}
	}
	return DefaultImageInfo
}
