package storage

import "path/filepath"

// PathConfig controls how blob ids map onto a directory tree.
type PathConfig struct {
	BasePath string
	// ShardLevels is the number of nested directories; ShardWidth the characters per level.
	ShardLevels int
	ShardWidth  int
}

// DefaultPathConfig shards two levels of two characters: base/ab/cd/abcd...
func DefaultPathConfig(basePath string) PathConfig {
	return PathConfig{BasePath: basePath, ShardLevels: 2, ShardWidth: 2}
}

// ComputePath returns the file path for id.
func ComputePath(cfg PathConfig, id string) string {
	return filepath.Join(ShardDir(cfg, id), id)
}

// ShardDir returns the directory holding id. Ids too short to shard live in BasePath.
func ShardDir(cfg PathConfig, id string) string {
	if len(id) < cfg.ShardLevels*cfg.ShardWidth {
		return cfg.BasePath
	}

	components := make([]string, 0, cfg.ShardLevels+1)
	components = append(components, cfg.BasePath)
	for i := 0; i < cfg.ShardLevels; i++ {
		components = append(components, id[i*cfg.ShardWidth:(i+1)*cfg.ShardWidth])
	}
	return filepath.Join(components...)
}
