package imageset

import (
	"io/ioutil"
	"path/filepath"
	"strings"

	"github.com/signetml/signet/signet-go/asl"
	"github.com/signetml/signet/signet-golib/errors"
)

// ListDir enumerates the labeled image files under a preprocessed dataset
// root: one subdirectory per class, the class inferred from the
// subdirectory's name. The listing is sorted by path so downstream splits
// and traversals are deterministic. A subdirectory that is not a known
// class, a stray non-image file, or a class with no images is an error:
// dataset problems surface immediately rather than silently shrinking the
// corpus.
func ListDir(root string) ([]File, error) {
	entries, err := ioutil.ReadDir(root)
	if err != nil {
		return nil, errors.Wrapf(err, "error reading dataset root %s", root)
	}

	var files []File
	for _, entry := range entries {
		if strings.HasPrefix(entry.Name(), ".") {
			continue
		}
		if !entry.IsDir() {
			return nil, errors.Errorf("unexpected file %s in dataset root %s", entry.Name(), root)
		}

		label, err := asl.FromName(entry.Name())
		if err != nil {
			return nil, errors.Wrapf(err, "bad class directory in %s", root)
		}

		classDir := filepath.Join(root, entry.Name())
		images, err := ioutil.ReadDir(classDir)
		if err != nil {
			return nil, errors.Wrapf(err, "error reading class directory %s", classDir)
		}

		var count int
		for _, img := range images {
			if strings.HasPrefix(img.Name(), ".") {
				continue
			}
			if img.IsDir() {
				return nil, errors.Errorf("unexpected directory %s under class directory %s", img.Name(), classDir)
			}
			if !isImagePath(img.Name()) {
				return nil, errors.Errorf("unexpected non-image file %s under class directory %s", img.Name(), classDir)
			}
			files = append(files, File{
				Path:  filepath.Join(classDir, img.Name()),
				Label: label,
			})
			count++
		}
		if count == 0 {
			return nil, errors.Errorf("class directory %s contains no images", classDir)
		}
	}

	if len(files) == 0 {
		return nil, errors.Errorf("no class directories found under %s", root)
	}
	return files, nil
}

func isImagePath(name string) bool {
	switch strings.ToLower(filepath.Ext(name)) {
	case ".png", ".jpg", ".jpeg":
		return true
	}
	return false
}
