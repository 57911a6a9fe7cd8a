// Package zoo fetches pretrained classification models by name from
// HuggingFace Hub and parses them into onnx-gomlx models.
package zoo

import (
	"crypto/sha256"
	"maps"
	"os"
	"slices"

	"github.com/gomlx/go-huggingface/hub"
	"github.com/gomlx/onnx-gomlx/onnx"
	"github.com/pkg/errors"
	"k8s.io/klog/v2"
)

// hfAuthToken is the HuggingFace authentication token read from the
// environment. It can be created in https://huggingface.co and is only needed
// for gated repositories.
var hfAuthToken = os.Getenv("HF_TOKEN")

// Entry describes where a pretrained model lives on HuggingFace Hub.
type Entry struct {
	RepoID   string
	FileName string
}

// registry of the supported pretrained models.
var registry = map[string]Entry{
	"resnet18": {RepoID: "onnx-community/resnet-18", FileName: "onnx/model.onnx"},
	"resnet50": {RepoID: "onnx-community/resnet-50", FileName: "onnx/model.onnx"},
}

// Names returns the sorted names of the registered models.
func Names() []string {
	return slices.Sorted(maps.Keys(registry))
}

// Lookup returns the registry entry for name.
func Lookup(name string) (Entry, error) {
	entry, found := registry[name]
	if !found {
		return Entry{}, errors.Errorf("unknown model %q, available models: %v", name, Names())
	}
	return entry, nil
}

// Fetch downloads the named model into the local hub cache (a no-op if
// already cached) and returns the local file path.
func Fetch(name string) (string, error) {
	entry, err := Lookup(name)
	if err != nil {
		return "", err
	}
	repo := hub.New(entry.RepoID).WithAuth(hfAuthToken)
	localPath, err := repo.DownloadFile(entry.FileName)
	if err != nil {
		return "", errors.Wrapf(err, "failed to download %s from HuggingFace repo %s", entry.FileName, entry.RepoID)
	}
	if klog.V(1).Enabled() {
		contents, err := os.ReadFile(localPath)
		if err == nil {
			klog.Infof("zoo: model %s from %s at %s (SHA256 %x)",
				name, entry.RepoID, localPath, sha256.Sum256(contents))
		}
	}
	return localPath, nil
}

// Load fetches the named model and parses it. It returns the parsed model and
// the local path of the ONNX file it was read from.
func Load(name string) (*onnx.Model, string, error) {
	localPath, err := Fetch(name)
	if err != nil {
		return nil, "", err
	}
	model, err := onnx.ReadFile(localPath)
	if err != nil {
		return nil, "", errors.WithMessagef(err, "parsing model %q", name)
	}
	return model, localPath, nil
}
