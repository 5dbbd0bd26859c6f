package zip

import (
	"archive/zip"
	"bytes"
	"fmt"
	"path"
	"strings"
)

// Asset is one file to include in an archive.
type Asset struct {
	Filename string
	MIME     string
	Data     []byte
}

// ArchiveAssets packs the assets into a zip held in memory. Filenames are
// flattened to their base name and deduplicated so repeated names both
// survive the archive. Returns nil when a write fails.
func ArchiveAssets(assets []Asset) []byte {
	buf := &bytes.Buffer{}
	zw := zip.NewWriter(buf)
	seen := make(map[string]int, len(assets))
	for _, asset := range assets {
		base := path.Base(strings.ReplaceAll(asset.Filename, "\\", "/"))
		if base == "." || base == "/" || base == "" {
			continue
		}
		name := base
		if n := seen[base]; n > 0 {
			ext := path.Ext(base)
			name = fmt.Sprintf("%s-%d%s", strings.TrimSuffix(base, ext), n+1, ext)
		}
		seen[base]++
		w, err := zw.Create(name)
		if err != nil {
			continue
		}
		if _, err := w.Write(asset.Data); err != nil {
			return nil
		}
	}
	_ = zw.Close()
	return buf.Bytes()
}
