// Package imagefolder loads ImageNet-style validation datasets and serves
// them as batched GoMLX tensors.
//
// Two on-disk layouts are supported:
//
//   - A directory tree with one subdirectory per class ("imagefolder"
//     convention): class names sorted lexically define the label indices.
//   - A parquet file of {image: {bytes, path}, label} rows, the layout
//     HuggingFace uses to distribute ImageNet-1k shards.
package imagefolder

import (
	"io"
	"os"
	"path/filepath"
	"slices"
	"strings"

	"github.com/parquet-go/parquet-go"
	"github.com/pkg/errors"
	"k8s.io/klog/v2"
)

// imageExtensions are the file extensions collected by the directory scan.
var imageExtensions = []string{".jpg", ".jpeg", ".png", ".gif"}

// sample is one example: an image either on disk (Path) or in memory (Raw),
// and its true class index.
type sample struct {
	Path  string
	Raw   []byte
	Label int32
}

// Dataset is an ordered, finite collection of labeled images.
type Dataset struct {
	samples []sample
	// classes is nil for parquet datasets, which carry only label indices.
	classes []string
}

// Open loads the dataset at path: a class-per-subdirectory image tree, or a
// parquet file when path ends in ".parquet".
func Open(path string) (*Dataset, error) {
	info, err := os.Stat(path)
	if err != nil {
		return nil, errors.Wrapf(err, "failed to open dataset in %s", path)
	}
	if info.IsDir() {
		return openDir(path)
	}
	if strings.EqualFold(filepath.Ext(path), ".parquet") {
		return openParquet(path)
	}
	return nil, errors.Errorf("dataset path %s is neither a directory nor a .parquet file", path)
}

// NumSamples returns the number of examples in the dataset.
func (d *Dataset) NumSamples() int { return len(d.samples) }

// Classes returns the class names defining the label indices, or nil if the
// dataset only carries numeric labels (parquet).
func (d *Dataset) Classes() []string { return d.classes }

// openDir scans a class-per-subdirectory tree. The sample order is
// deterministic: classes sorted lexically, files sorted within each class.
func openDir(root string) (*Dataset, error) {
	entries, err := os.ReadDir(root)
	if err != nil {
		return nil, errors.Wrapf(err, "failed to read dataset directory %s", root)
	}
	ds := &Dataset{}
	for _, entry := range entries {
		if entry.IsDir() {
			ds.classes = append(ds.classes, entry.Name())
		}
	}
	if len(ds.classes) == 0 {
		return nil, errors.Errorf("no class subdirectories found in %s", root)
	}
	slices.Sort(ds.classes)

	for classIdx, className := range ds.classes {
		classDir := filepath.Join(root, className)
		files, err := os.ReadDir(classDir)
		if err != nil {
			return nil, errors.Wrapf(err, "failed to read class directory %s", classDir)
		}
		for _, file := range files {
			if file.IsDir() || !hasImageExtension(file.Name()) {
				continue
			}
			ds.samples = append(ds.samples, sample{
				Path:  filepath.Join(classDir, file.Name()),
				Label: int32(classIdx),
			})
		}
	}
	if len(ds.samples) == 0 {
		return nil, errors.Errorf("no images found under %s", root)
	}
	klog.V(1).Infof("imagefolder: %d classes, %d samples in %s", len(ds.classes), len(ds.samples), root)
	return ds, nil
}

func hasImageExtension(name string) bool {
	ext := strings.ToLower(filepath.Ext(name))
	return slices.Contains(imageExtensions, ext)
}

// parquetImage mirrors the nested image column of HuggingFace image datasets.
type parquetImage struct {
	Bytes []byte `parquet:"bytes"`
	Path  string `parquet:"path,optional"`
}

// parquetRow is one row of a HuggingFace ImageNet-1k parquet shard.
type parquetRow struct {
	Image parquetImage `parquet:"image"`
	Label int64        `parquet:"label"`
}

// openParquet reads all rows of the shard into memory: validation shards are
// small enough, and it keeps the loader free of parquet state.
func openParquet(path string) (*Dataset, error) {
	schema := parquet.SchemaOf(&parquetRow{})
	info, err := os.Stat(path)
	if err != nil {
		return nil, errors.Wrapf(err, "failed to stat parquet file %s", path)
	}
	f, err := os.Open(path)
	if err != nil {
		return nil, errors.Wrapf(err, "failed to open parquet file %s", path)
	}
	defer func() { _ = f.Close() }()
	pqFile, err := parquet.OpenFile(f, info.Size())
	if err != nil {
		return nil, errors.Wrapf(err, "failed to parse parquet file %s", path)
	}
	reader := parquet.NewGenericReader[parquetRow](pqFile, schema)
	defer func() { _ = reader.Close() }()

	ds := &Dataset{}
	const readBatchSize = 64
	rows := make([]parquetRow, readBatchSize)
	for {
		numRead, err := reader.Read(rows)
		for _, row := range rows[:numRead] {
			ds.samples = append(ds.samples, sample{
				Raw:   row.Image.Bytes,
				Label: int32(row.Label),
			})
		}
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			// Only io.EOF is a clean end: anything else (e.g. a damaged data
			// page) must not pass off a truncated dataset as complete.
			return nil, errors.Wrapf(err, "failed to read parquet rows from %s", path)
		}
		if numRead == 0 {
			break
		}
	}
	if len(ds.samples) == 0 {
		return nil, errors.Errorf("no rows found in parquet file %s", path)
	}
	klog.V(1).Infof("imagefolder: %d samples from parquet shard %s", len(ds.samples), path)
	return ds, nil
}
