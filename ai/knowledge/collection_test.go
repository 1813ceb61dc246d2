package knowledge

import (
	"context"
	"testing"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// flakyEmbedder 可切换为嵌入失败, 用于验证更新的原子性.
type flakyEmbedder struct {
	fakeEmbedder
	fail bool
}

func (f *flakyEmbedder) EmbedDocuments(ctx context.Context, texts []string) ([][]float32, error) {
	if f.fail {
		return nil, errors.New("embedding backend unavailable")
	}
	return f.fakeEmbedder.EmbedDocuments(ctx, texts)
}

func TestCollection_UpdateDocumentInPlace(t *testing.T) {
	store := NewStore(t.TempDir(), &fakeEmbedder{})
	col := seedCollection(t, store, CollectionKnowledgeBase, testDocs())

	err := col.UpdateDocument(context.Background(), Document{
		ID:       "d2",
		Content:  "go 分布式 系统 设计 课程",
		Metadata: map[string]interface{}{"category": "distributed"},
	})
	require.NoError(t, err)

	assert.Equal(t, 4, col.Size())
	assert.Equal(t, []string{"d1", "d2", "d3", "d4"}, col.ids, "document order preserved")
	assert.Equal(t, "go 分布式 系统 设计 课程", col.documents[1])
	assert.Equal(t, "distributed", col.metadatas[1]["category"])
}

func TestCollection_UpdateDocumentKeepsOldOnEmbedFailure(t *testing.T) {
	embedder := &flakyEmbedder{}
	store := NewStore(t.TempDir(), embedder)
	col := seedCollection(t, store, CollectionKnowledgeBase, testDocs())

	embedder.fail = true
	err := col.UpdateDocument(context.Background(), Document{
		ID:      "d2",
		Content: "go 分布式 系统 设计 课程",
	})
	require.Error(t, err)

	assert.Equal(t, 4, col.Size(), "failed update must not drop the document")
	assert.Equal(t, "go 微服务 后端 开发 课程", col.documents[1])
}

func TestCollection_UpdateDocumentUnknownID(t *testing.T) {
	store := NewStore(t.TempDir(), &fakeEmbedder{})
	col := seedCollection(t, store, CollectionKnowledgeBase, testDocs())

	err := col.UpdateDocument(context.Background(), Document{ID: "missing", Content: "内容"})
	assert.Error(t, err)
	assert.Equal(t, 4, col.Size())
}
