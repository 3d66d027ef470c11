// Package hub resolves model artifacts: given a model identifier it yields
// local paths for the config document, the tokenizer model, and every
// distinct weight shard named by the sharded-safetensors index. It also
// downloads and checksum-verifies those artifacts from the upstream hub.
package hub

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
)

// DefaultRepo is the canonical model for this service.
const DefaultRepo = "parler-tts/parler-tts-large-v1"

// Well-known artifact filenames within a model repository.
const (
	ConfigFile    = "config.json"
	TokenizerFile = "tokenizer.model"
	IndexFile     = "model.safetensors.index.json"
	SingleWeights = "model.safetensors"
)

// Bundle names resolved local artifact paths for one model.
type Bundle struct {
	ConfigPath    string
	TokenizerPath string
	WeightPaths   []string
}

// ResolveLocal maps a local model directory to artifact paths. Weight shards
// come from the index file when present, otherwise from the single
// model.safetensors file. Missing weights or config are errors; a missing
// tokenizer is not (the pipeline degrades to the character tokenizer).
func ResolveLocal(dir string) (Bundle, error) {
	b := Bundle{
		ConfigPath:    filepath.Join(dir, ConfigFile),
		TokenizerPath: filepath.Join(dir, TokenizerFile),
	}

	if _, err := os.Stat(b.ConfigPath); err != nil {
		return Bundle{}, fmt.Errorf("hub: model config not found: %w", err)
	}

	indexPath := filepath.Join(dir, IndexFile)

	indexData, err := os.ReadFile(indexPath)
	if os.IsNotExist(err) {
		single := filepath.Join(dir, SingleWeights)
		if _, err := os.Stat(single); err != nil {
			return Bundle{}, fmt.Errorf("hub: neither %s nor %s found in %s", IndexFile, SingleWeights, dir)
		}

		b.WeightPaths = []string{single}

		return b, nil
	} else if err != nil {
		return Bundle{}, fmt.Errorf("hub: read shard index: %w", err)
	}

	shards, err := ShardsFromIndex(indexData)
	if err != nil {
		return Bundle{}, err
	}

	for _, shard := range shards {
		path := filepath.Join(dir, filepath.FromSlash(shard))
		if _, err := os.Stat(path); err != nil {
			return Bundle{}, fmt.Errorf("hub: weight shard %s listed in index but missing: %w", shard, err)
		}

		b.WeightPaths = append(b.WeightPaths, path)
	}

	return b, nil
}

// ShardsFromIndex parses a sharded-safetensors index document and returns the
// distinct shard filenames in sorted order.
func ShardsFromIndex(data []byte) ([]string, error) {
	var index struct {
		WeightMap map[string]string `json:"weight_map"`
	}

	if err := json.Unmarshal(data, &index); err != nil {
		return nil, fmt.Errorf("hub: parse shard index: %w", err)
	}

	if len(index.WeightMap) == 0 {
		return nil, fmt.Errorf("hub: shard index has no weight map")
	}

	seen := make(map[string]struct{}, len(index.WeightMap))

	var shards []string

	for _, file := range index.WeightMap {
		if file == "" {
			return nil, fmt.Errorf("hub: shard index maps a tensor to an empty filename")
		}

		if _, ok := seen[file]; ok {
			continue
		}

		seen[file] = struct{}{}
		shards = append(shards, file)
	}

	sort.Strings(shards)

	return shards, nil
}
