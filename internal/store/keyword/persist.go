package keyword

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/vmihailenco/msgpack/v5"
)

// indexFormatVersion is written into snapshots. A mismatching version on load
// is skipped so the caller rebuilds from the source of truth.
const indexFormatVersion = "1.0.0"

// snapshot is the serializable form of the index (no mutex).
type snapshot struct {
	Version        string                    `msgpack:"version"`
	Entries        map[string]entry          `msgpack:"entries"`
	Inverted       map[string]map[string]int `msgpack:"inverted"`
	DocLengths     map[string]int            `msgpack:"doc_lengths"`
	TotalDocLength int64                     `msgpack:"total_doc_length"`
	DocCount       int                       `msgpack:"doc_count"`
}

// Save writes the index to path in msgpack format. Data is copied under a
// short read lock so I/O does not block searches, and the file is written to
// a temp path then renamed so a crash never leaves a torn snapshot.
func (idx *Index) Save(path string) error {
	idx.mu.RLock()
	snap := snapshot{
		Version:        indexFormatVersion,
		Entries:        make(map[string]entry, len(idx.entries)),
		Inverted:       make(map[string]map[string]int, len(idx.inverted)),
		DocLengths:     make(map[string]int, len(idx.docLengths)),
		TotalDocLength: idx.totalDocLength,
		DocCount:       idx.docCount,
	}
	for k, v := range idx.entries {
		snap.Entries[k] = v
	}
	for term, docs := range idx.inverted {
		inner := make(map[string]int, len(docs))
		for d, cnt := range docs {
			inner[d] = cnt
		}
		snap.Inverted[term] = inner
	}
	for k, v := range idx.docLengths {
		snap.DocLengths[k] = v
	}
	idx.mu.RUnlock()

	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("failed to create index dir: %w", err)
	}

	tmp := path + ".tmp"
	file, err := os.Create(tmp)
	if err != nil {
		return fmt.Errorf("failed to create snapshot file: %w", err)
	}
	if err := msgpack.NewEncoder(file).Encode(&snap); err != nil {
		_ = file.Close()
		_ = os.Remove(tmp)
		return fmt.Errorf("failed to encode snapshot: %w", err)
	}
	if err := file.Close(); err != nil {
		_ = os.Remove(tmp)
		return fmt.Errorf("failed to close snapshot file: %w", err)
	}
	return os.Rename(tmp, path)
}

// Load replaces the index contents from a snapshot file. A missing file is
// not an error; a version mismatch leaves the index empty for rebuild.
func (idx *Index) Load(path string) error {
	file, err := os.Open(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil
		}
		return fmt.Errorf("failed to open snapshot: %w", err)
	}
	defer func() { _ = file.Close() }()

	var snap snapshot
	if err := msgpack.NewDecoder(file).Decode(&snap); err != nil {
		return fmt.Errorf("failed to decode snapshot: %w", err)
	}
	if snap.Version != indexFormatVersion {
		idx.logger.WithField("version", snap.Version).Warn("Keyword index snapshot version mismatch, skipping load")
		return nil
	}

	idx.mu.Lock()
	defer idx.mu.Unlock()
	idx.entries = snap.Entries
	idx.inverted = snap.Inverted
	idx.docLengths = snap.DocLengths
	idx.totalDocLength = snap.TotalDocLength
	idx.docCount = snap.DocCount
	if idx.entries == nil {
		idx.entries = make(map[string]entry)
	}
	if idx.inverted == nil {
		idx.inverted = make(map[string]map[string]int)
	}
	if idx.docLengths == nil {
		idx.docLengths = make(map[string]int)
	}
	return nil
}
