package imageset

import (
	"image"
	_ "image/jpeg"
	_ "image/png"
	"log"
	"os"
	"runtime"
	"sync"
	"sync/atomic"

	humanize "github.com/dustin/go-humanize"
	"github.com/nfnt/resize"
	"github.com/signetml/signet/signet-golib/errors"
	"github.com/signetml/signet/signet-golib/workerpool"
)

// Options configure image loading
type Options struct {
	// Workers is the number of parallel decoders, defaulting to NumCPU
	Workers int
	// Width and Height are the target dimensions; images at any other size
	// are resized on load. Both default to DefaultSize.
	Width  int
	Height int
}

func (o Options) withDefaults() Options {
	if o.Workers <= 0 {
		o.Workers = runtime.NumCPU()
	}
	if o.Width <= 0 {
		o.Width = DefaultSize
	}
	if o.Height <= 0 {
		o.Height = DefaultSize
	}
	return o
}

// Load decodes the listed files into samples. Decoding runs on a worker
// pool but the output order always matches the input order, so partition
// membership and traversal order never depend on worker interleaving. Any
// unreadable or undecodable file fails the whole load; every bad file is
// reported, not just the first.
func Load(files []File, opts Options) ([]Sample, error) {
	opts = opts.withDefaults()

	samples := make([]Sample, len(files))
	var completed int64

	var m sync.Mutex
	var loadErrs errors.Errors

	jobs := make([]workerpool.Job, 0, len(files))
	for i, f := range files {
		i, f := i, f
		jobs = append(jobs, func() error {
			s, err := loadOne(f, opts)
			if err != nil {
				m.Lock()
				loadErrs = errors.Append(loadErrs, err)
				m.Unlock()
				return err
			}
			samples[i] = s
			if n := atomic.AddInt64(&completed, 1); n%1000 == 0 {
				log.Printf("loaded %s images", humanize.Comma(n))
			}
			return nil
		})
	}

	pool := workerpool.New(opts.Workers)
	defer pool.Stop()
	pool.AddBlocking(jobs)
	if err := pool.Wait(); err != nil {
		return nil, loadErrs
	}
	return samples, nil
}

func loadOne(f File, opts Options) (Sample, error) {
	r, err := os.Open(f.Path)
	if err != nil {
		return Sample{}, errors.Wrapf(err, "error opening image %s", f.Path)
	}
	defer r.Close()

	decoded, _, err := image.Decode(r)
	if err != nil {
		return Sample{}, errors.Wrapf(err, "error decoding image %s", f.Path)
	}

	bounds := decoded.Bounds()
	if bounds.Dx() != opts.Width || bounds.Dy() != opts.Height {
		decoded = resize.Resize(uint(opts.Width), uint(opts.Height), decoded, resize.Bilinear)
	}

	return Sample{
		Image: FromImage(decoded),
		Label: f.Label,
		Path:  f.Path,
	}, nil
}

// LoadSplit lists, splits, and loads a dataset directory in one call
func LoadSplit(root string, seed int64, validateRatio float64, opts Options) (train, validate []Sample, err error) {
	files, err := ListDir(root)
	if err != nil {
		return nil, nil, err
	}

	split, err := Split(files, seed, validateRatio)
	if err != nil {
		return nil, nil, err
	}
	log.Printf("%s: %s files, %s train / %s validate (seed %d)",
		root,
		humanize.Comma(int64(len(files))),
		humanize.Comma(int64(len(split.Train))),
		humanize.Comma(int64(len(split.Validate))),
		seed)

	train, err = Load(split.Train, opts)
	if err != nil {
		return nil, nil, err
	}
	validate, err = Load(split.Validate, opts)
	if err != nil {
		return nil, nil, err
	}
	return train, validate, nil
}
