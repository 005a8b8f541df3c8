package store

import (
	"errors"
	"os"
	"path/filepath"
)

const (
	nodeDBFile      = "nodes.db"
	vectorIndexFile = "vectors.hnsw"
)

// Corpus is the persisted half of an index: node payloads in SQLite and
// vectors in an HNSW graph, both living in one collection directory.
// The sparse BM25 side is rebuilt from Nodes on demand and never stored.
type Corpus struct {
	Dir     string
	Nodes   NodeStore
	Vectors VectorIndex
}

// CorpusExists reports whether a corpus has been persisted at dir.
func CorpusExists(dir string) bool {
	_, err := os.Stat(filepath.Join(dir, nodeDBFile))
	return err == nil
}

// OpenCorpus opens (creating if needed) the corpus at dir. An existing
// vector index file is loaded; otherwise an empty index with the given
// config is used.
func OpenCorpus(dir string, vcfg VectorIndexConfig) (*Corpus, error) {
	nodes, err := NewSQLiteNodeStore(filepath.Join(dir, nodeDBFile))
	if err != nil {
		return nil, err
	}

	vectors, err := NewHNSWIndex(vcfg)
	if err != nil {
		_ = nodes.Close()
		return nil, err
	}

	vectorPath := filepath.Join(dir, vectorIndexFile)
	if _, err := os.Stat(vectorPath); err == nil {
		if err := vectors.Load(vectorPath); err != nil {
			_ = nodes.Close()
			_ = vectors.Close()
			return nil, err
		}
	}

	return &Corpus{
		Dir:     dir,
		Nodes:   nodes,
		Vectors: vectors,
	}, nil
}

// Save persists the vector index. Node writes are already durable.
func (c *Corpus) Save() error {
	return c.Vectors.Save(filepath.Join(c.Dir, vectorIndexFile))
}

// Close closes both halves, joining any errors.
func (c *Corpus) Close() error {
	return errors.Join(c.Nodes.Close(), c.Vectors.Close())
}
