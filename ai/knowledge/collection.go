// Package knowledge implements the hybrid retrieval layer over the
// knowledge_base and product_catalog collections. Dense vectors use
// L2-normalized inner product (equivalent to cosine), the sparse side
// is BM25 over whitespace tokens.
package knowledge

import (
	"context"
	"encoding/gob"
	"encoding/json"
	"fmt"
	"log/slog"
	"math"
	"os"
	"path/filepath"
	"sort"
	"sync"

	"github.com/pkg/errors"

	"github.com/gradmall/mallchat/ai/core/embedding"
)

// Canonical collection names.
const (
	CollectionKnowledgeBase  = "knowledge_base"
	CollectionProductCatalog = "product_catalog"
)

// On-disk layout under <persist_dir>/<collection>/.
const (
	indexFileName = "index.faiss"
	dataFileName  = "data.pkl"
)

// Document 待入库的文档.
type Document struct {
	ID       string
	Content  string
	Metadata map[string]interface{}
}

// Collection 单个检索集合: 向量索引 + BM25 索引 + 原始文档.
// 读写并发由内部读写锁保护, 变更操作持写锁重建 BM25.
type Collection struct {
	name     string
	dir      string
	embedder embedding.Service

	mu        sync.RWMutex
	ids       []string
	documents []string
	metadatas []map[string]interface{}
	vectors   [][]float32
	bm25      *bm25Index
}

// indexFile 是 index.faiss 的序列化形态.
type indexFile struct {
	Dim     int
	Vectors [][]float32
}

// dataFile 是 data.pkl 的序列化形态, 保持插入顺序.
type dataFile struct {
	IDs       []string                 `json:"ids"`
	Documents []string                 `json:"documents"`
	Metadatas []map[string]interface{} `json:"metadatas"`
}

// Store 管理多个集合, 按需从磁盘加载.
type Store struct {
	persistDir string
	embedder   embedding.Service

	mu          sync.Mutex
	collections map[string]*Collection
}

// NewStore creates a collection store rooted at persistDir.
func NewStore(persistDir string, embedder embedding.Service) *Store {
	return &Store{
		persistDir:  persistDir,
		embedder:    embedder,
		collections: make(map[string]*Collection),
	}
}

// Collection returns the named collection, loading persisted state if present.
func (s *Store) Collection(name string) (*Collection, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if col, ok := s.collections[name]; ok {
		return col, nil
	}

	col := &Collection{
		name:     name,
		dir:      filepath.Join(s.persistDir, name),
		embedder: s.embedder,
		bm25:     newBM25Index(nil),
	}
	if err := col.load(); err != nil {
		return nil, errors.Wrapf(err, "load collection %s", name)
	}

	s.collections[name] = col
	return col, nil
}

// Name returns the collection name.
func (c *Collection) Name() string { return c.name }

// Size returns the number of stored documents.
func (c *Collection) Size() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.ids)
}

// load 从磁盘恢复索引与文档, 文件缺失视为空集合.
func (c *Collection) load() error {
	data := dataFile{}
	raw, err := os.ReadFile(filepath.Join(c.dir, dataFileName))
	if os.IsNotExist(err) {
		return nil
	}
	if err != nil {
		return err
	}
	if err := json.Unmarshal(raw, &data); err != nil {
		return errors.Wrap(err, "decode data file")
	}

	idx := indexFile{}
	f, err := os.Open(filepath.Join(c.dir, indexFileName))
	if err != nil {
		return err
	}
	defer f.Close()
	if err := gob.NewDecoder(f).Decode(&idx); err != nil {
		return errors.Wrap(err, "decode index file")
	}

	if len(idx.Vectors) != len(data.IDs) {
		return errors.Errorf("index/data mismatch: %d vectors, %d ids", len(idx.Vectors), len(data.IDs))
	}

	c.ids = data.IDs
	c.documents = data.Documents
	c.metadatas = data.Metadatas
	c.vectors = idx.Vectors
	c.bm25 = newBM25Index(c.documents)
	return nil
}

// save 原子落盘: 先写临时文件再重命名. 调用方需持写锁.
func (c *Collection) save() error {
	if err := os.MkdirAll(c.dir, 0o755); err != nil {
		return err
	}

	data, err := json.Marshal(dataFile{
		IDs:       c.ids,
		Documents: c.documents,
		Metadatas: c.metadatas,
	})
	if err != nil {
		return err
	}
	if err := writeFileAtomic(filepath.Join(c.dir, dataFileName), data); err != nil {
		return errors.Wrap(err, "write data file")
	}

	dim := 0
	if len(c.vectors) > 0 {
		dim = len(c.vectors[0])
	}
	tmp, err := os.CreateTemp(c.dir, indexFileName+".tmp-*")
	if err != nil {
		return err
	}
	if err := gob.NewEncoder(tmp).Encode(indexFile{Dim: dim, Vectors: c.vectors}); err != nil {
		tmp.Close()
		os.Remove(tmp.Name())
		return errors.Wrap(err, "encode index file")
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmp.Name())
		return err
	}
	return os.Rename(tmp.Name(), filepath.Join(c.dir, indexFileName))
}

func writeFileAtomic(path string, data []byte) error {
	tmp, err := os.CreateTemp(filepath.Dir(path), filepath.Base(path)+".tmp-*")
	if err != nil {
		return err
	}
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmp.Name())
		return err
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmp.Name())
		return err
	}
	return os.Rename(tmp.Name(), path)
}

// AddDocuments 批量入库: 生成向量, 追加索引, 落盘并重建 BM25.
func (c *Collection) AddDocuments(ctx context.Context, docs []Document) error {
	if len(docs) == 0 {
		return nil
	}
	if c.embedder == nil {
		return errors.New("no embedding service configured")
	}

	texts := make([]string, len(docs))
	for i, d := range docs {
		texts[i] = d.Content
	}

	vectors, err := c.embedder.EmbedDocuments(ctx, texts)
	if err != nil {
		return errors.Wrap(err, "embed documents")
	}
	if len(vectors) != len(docs) {
		return errors.Errorf("embedding count mismatch: got %d, want %d", len(vectors), len(docs))
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	for i, d := range docs {
		id := d.ID
		if id == "" {
			id = fmt.Sprintf("%s-%d", c.name, len(c.ids))
		}
		c.ids = append(c.ids, id)
		c.documents = append(c.documents, d.Content)
		c.metadatas = append(c.metadatas, d.Metadata)
		c.vectors = append(c.vectors, l2Normalize(vectors[i]))
	}
	c.bm25 = newBM25Index(c.documents)

	if err := c.save(); err != nil {
		slog.Error("Failed to persist collection", "collection", c.name, "error", err)
		return err
	}

	slog.Info("Documents added to collection",
		"collection", c.name,
		"added", len(docs),
		"total", len(c.ids),
	)
	return nil
}

// DeleteDocument 按 id 删除并从剩余向量重建索引.
func (c *Collection) DeleteDocument(id string) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	pos := -1
	for i, existing := range c.ids {
		if existing == id {
			pos = i
			break
		}
	}
	if pos < 0 {
		return errors.Errorf("document %s not found in %s", id, c.name)
	}

	c.ids = append(c.ids[:pos], c.ids[pos+1:]...)
	c.documents = append(c.documents[:pos], c.documents[pos+1:]...)
	c.metadatas = append(c.metadatas[:pos], c.metadatas[pos+1:]...)
	c.vectors = append(c.vectors[:pos], c.vectors[pos+1:]...)
	c.bm25 = newBM25Index(c.documents)

	return c.save()
}

// UpdateDocument 先算新向量再原位替换, 嵌入失败时旧文档保持不变.
func (c *Collection) UpdateDocument(ctx context.Context, doc Document) error {
	if doc.ID == "" {
		return errors.New("document id required")
	}
	if c.embedder == nil {
		return errors.New("no embedding service configured")
	}

	vectors, err := c.embedder.EmbedDocuments(ctx, []string{doc.Content})
	if err != nil {
		return errors.Wrap(err, "embed document")
	}
	if len(vectors) != 1 {
		return errors.Errorf("embedding count mismatch: got %d, want 1", len(vectors))
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	pos := -1
	for i, existing := range c.ids {
		if existing == doc.ID {
			pos = i
			break
		}
	}
	if pos < 0 {
		return errors.Errorf("document %s not found in %s", doc.ID, c.name)
	}

	c.documents[pos] = doc.Content
	c.metadatas[pos] = doc.Metadata
	c.vectors[pos] = l2Normalize(vectors[0])
	c.bm25 = newBM25Index(c.documents)

	return c.save()
}

// denseSearch 返回与查询向量内积最高的 k 个文档下标.
// 查询向量须已 L2 归一化, 调用方需持读锁.
func (c *Collection) denseSearch(queryVec []float32, k int) []scoredIndex {
	if len(c.vectors) == 0 || k <= 0 {
		return nil
	}

	results := make([]scoredIndex, 0, len(c.vectors))
	for i, v := range c.vectors {
		results = append(results, scoredIndex{Index: i, Score: dotProduct(queryVec, v)})
	}

	sort.Slice(results, func(i, j int) bool {
		return results[i].Score > results[j].Score
	})

	if len(results) > k {
		results = results[:k]
	}
	return results
}

func l2Normalize(v []float32) []float32 {
	var sum float64
	for _, x := range v {
		sum += float64(x) * float64(x)
	}
	if sum == 0 {
		return v
	}
	norm := float32(math.Sqrt(sum))
	out := make([]float32, len(v))
	for i, x := range v {
		out[i] = x / norm
	}
	return out
}

func dotProduct(a, b []float32) float64 {
	n := len(a)
	if len(b) < n {
		n = len(b)
	}
	var sum float64
	for i := 0; i < n; i++ {
		sum += float64(a[i]) * float64(b[i])
	}
	return sum
}
