// Package index is the append-only embedding index: a raw float32
// vectors file plus a row-aligned JSON metadata sidecar, with
// mmap-backed cosine similarity search, decay-weighted scoring, and
// artifact-type filtering (spec §4.7).
package index

import (
	"bufio"
	"encoding/binary"
	"encoding/json"
	"fmt"
	"math"
	"os"
	"sort"
	"strings"

	"golang.org/x/exp/mmap"

	"github.com/ternarybob/memorybank/internal/fileutil"
	"github.com/ternarybob/memorybank/internal/logger"
	"github.com/ternarybob/memorybank/internal/storage"
)

// decayAlpha bounds the freshness boost to 10% of the raw score.
const decayAlpha = 0.10

// MetadataRow is one JSON object in metadata.jsonl, in the same row
// order as its corresponding vector in vectors.bin.
type MetadataRow struct {
	ChunkID      string  `json:"chunk_id"`
	SessionID    string  `json:"session_id"`
	Text         string  `json:"text"`
	TsStart      float64 `json:"ts_start"`
	TsEnd        float64 `json:"ts_end"`
	ArtifactType string  `json:"artifact_type,omitempty"`
	QualityScore float64 `json:"quality_score,omitempty"`
}

const metadataTextTruncateLen = 500

// Index is the embedding index for one project root.
type Index struct {
	storage *storage.Storage
	dim     int
}

// New returns an Index handle bound to a fixed vector dimension D.
func New(s *storage.Storage, dim int) *Index {
	return &Index{storage: s, dim: dim}
}

// Dim returns the index's fixed vector width.
func (ix *Index) Dim() int { return ix.dim }

// Add L2-normalizes vector (a zero-norm vector is stored as-is),
// appends its raw bytes to vectors.bin, then appends row's metadata
// line to metadata.jsonl.
func (ix *Index) Add(vector []float32, row MetadataRow) error {
	if len(vector) != ix.dim {
		return fmt.Errorf("vector has dim %d, index expects %d", len(vector), ix.dim)
	}
	normalized := normalize(vector)

	buf := make([]byte, len(normalized)*4)
	for i, v := range normalized {
		binary.LittleEndian.PutUint32(buf[i*4:], math.Float32bits(v))
	}
	if err := fileutil.AppendBytes(ix.storage.VectorsPath(), buf); err != nil {
		return err
	}

	if len(row.Text) > metadataTextTruncateLen {
		row.Text = row.Text[:metadataTextTruncateLen]
	}
	line, err := json.Marshal(row)
	if err != nil {
		return err
	}
	return fileutil.AppendLine(ix.storage.IndexMetadataPath(), line)
}

func normalize(v []float32) []float32 {
	var sumSq float64
	for _, x := range v {
		sumSq += float64(x) * float64(x)
	}
	norm := math.Sqrt(sumSq)
	if norm == 0 {
		return v
	}
	out := make([]float32, len(v))
	for i, x := range v {
		out[i] = float32(float64(x) / norm)
	}
	return out
}

// Clear unlinks both index files.
func (ix *Index) Clear() error {
	if err := os.Remove(ix.storage.VectorsPath()); err != nil && !os.IsNotExist(err) {
		return err
	}
	if err := os.Remove(ix.storage.IndexMetadataPath()); err != nil && !os.IsNotExist(err) {
		return err
	}
	return nil
}

// readMetadata reads every metadata row, tolerating malformed lines.
func (ix *Index) readMetadata() ([]MetadataRow, error) {
	f, err := os.Open(ix.storage.IndexMetadataPath())
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, err
	}
	defer f.Close()

	var rows []MetadataRow
	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 0, 64*1024), 16*1024*1024)
	for scanner.Scan() {
		line := scanner.Bytes()
		if len(strings.TrimSpace(string(line))) == 0 {
			continue
		}
		var row MetadataRow
		if err := json.Unmarshal(line, &row); err != nil {
			logger.GetLogger().Warn().Err(err).Msg("skipping malformed index metadata line")
			continue
		}
		rows = append(rows, row)
	}
	return rows, scanner.Err()
}

// vectorCount returns how many D-wide rows are in vectors.bin.
func (ix *Index) vectorCount() (int, error) {
	info, err := os.Stat(ix.storage.VectorsPath())
	if err != nil {
		if os.IsNotExist(err) {
			return 0, nil
		}
		return 0, err
	}
	rowBytes := int64(ix.dim) * 4
	if rowBytes == 0 {
		return 0, nil
	}
	return int(info.Size() / rowBytes), nil
}

// Result is one scored search hit.
type Result struct {
	MetadataRow
	Score float64
}

// Search embeds nothing itself; queryVector must already be an
// embedding in the index's dimension. See spec §4.7 for the full
// algorithm: alignment check + truncation, mmap + normalized cosine,
// decay boost, top-k selection, then — only when artifactType is
// supplied — a filter ("session" matches rows with no artifact_type,
// anything else is an exact match). An empty artifactType returns
// every row type unfiltered.
func (ix *Index) Search(queryVector []float32, topK int, halfLifeDays float64, noDecay bool, artifactType string, nowSeconds float64) ([]Result, error) {
	metadata, err := ix.readMetadata()
	if err != nil {
		return nil, err
	}
	vecCount, err := ix.vectorCount()
	if err != nil {
		return nil, err
	}

	n := vecCount
	if len(metadata) < n {
		n = len(metadata)
	}
	if n < vecCount || n < len(metadata) {
		logger.GetLogger().Warn().
			Int("vector_count", vecCount).
			Int("metadata_count", len(metadata)).
			Msg("vectors.bin and metadata.jsonl row counts mismatch; truncating to the minimum")
	}
	if n == 0 {
		return nil, nil
	}
	metadata = metadata[:n]

	reader, err := mmap.Open(ix.storage.VectorsPath())
	if err != nil {
		return nil, fmt.Errorf("open vectors file: %w", err)
	}
	defer reader.Close()

	query := normalize(queryVector)
	rowBytes := ix.dim * 4

	scored := make([]Result, 0, n)
	rowBuf := make([]byte, rowBytes)
	for i := 0; i < n; i++ {
		if _, err := reader.ReadAt(rowBuf, int64(i)*int64(rowBytes)); err != nil {
			return nil, fmt.Errorf("read vector row %d: %w", i, err)
		}
		score := cosine(rowBuf, query)

		row := metadata[i]
		if halfLifeDays > 0 && !noDecay && row.ArtifactType == "" {
			ageDays := (nowSeconds - row.TsEnd) / 86400.0
			if ageDays < 0 {
				ageDays = 0
			}
			decay := math.Exp(-ageDays * math.Ln2 / halfLifeDays)
			score *= 1 + decayAlpha*decay
		}

		scored = append(scored, Result{MetadataRow: row, Score: score})
	}

	sort.SliceStable(scored, func(i, j int) bool { return scored[i].Score > scored[j].Score })

	if artifactType == "" {
		if len(scored) > topK {
			scored = scored[:topK]
		}
		return scored, nil
	}

	filtered := make([]Result, 0, topK)
	for _, r := range scored {
		if matchesArtifactType(r.ArtifactType, artifactType) {
			filtered = append(filtered, r)
			if len(filtered) >= topK {
				break
			}
		}
	}
	return filtered, nil
}

func matchesArtifactType(rowType, want string) bool {
	if want == "session" {
		return rowType == ""
	}
	return rowType == want
}

func cosine(rowBytes []byte, query []float32) float64 {
	var dot float64
	for i := 0; i < len(query); i++ {
		bits := binary.LittleEndian.Uint32(rowBytes[i*4:])
		v := math.Float32frombits(bits)
		dot += float64(v) * float64(query[i])
	}
	return dot
}
