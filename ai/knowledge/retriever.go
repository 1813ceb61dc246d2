package knowledge

import (
	"context"
	"fmt"
	"log/slog"
	"regexp"
	"sort"
	"strconv"
	"strings"
	"sync"

	"golang.org/x/sync/errgroup"

	"github.com/gradmall/mallchat/ai/core/llm"
	"github.com/gradmall/mallchat/ai/core/reranker"
)

const (
	// DefaultTopK is the result count when the caller does not specify one.
	DefaultTopK = 3

	// maxRewriteQueries caps the LLM-generated alternative phrasings.
	maxRewriteQueries = 3

	// dedupeKeyRunes keys candidates by a content prefix when merging
	// results across queries.
	dedupeKeyRunes = 100
)

// RetrievedDocument 召回结果.
type RetrievedDocument struct {
	Content  string                 `json:"content"`
	Metadata map[string]interface{} `json:"metadata"`
	Score    float64                `json:"score"`
}

// RetrieveOptions 单次召回的可调参数, 零值字段取配置默认.
type RetrieveOptions struct {
	TopK            int
	Filter          map[string]interface{}
	UseHybrid       bool
	UseRerank       bool
	UseQueryRewrite bool
}

// RetrieverConfig 召回器默认行为.
type RetrieverConfig struct {
	TopK                int
	UseHybridSearch     bool
	UseRerank           bool
	UseQueryRewrite     bool
	RerankTopK          int
	SimilarityThreshold float64
}

// Retriever 混合召回器: 向量 + BM25 + 可选的查询改写与重排.
// 任一子步骤失败只丢弃该步骤的贡献, Retrieve 本身从不向调用方抛错.
type Retriever struct {
	store    *Store
	llm      llm.Service
	reranker reranker.Service
	config   RetrieverConfig
}

// NewRetriever 创建召回器. llmService 可为 nil, 此时改写与重排自动关闭.
func NewRetriever(store *Store, llmService llm.Service, cfg RetrieverConfig) *Retriever {
	if cfg.TopK <= 0 {
		cfg.TopK = DefaultTopK
	}
	if cfg.RerankTopK <= 0 {
		cfg.RerankTopK = 10
	}
	return &Retriever{store: store, llm: llmService, config: cfg}
}

// SetReranker 配置专用重排服务. 配置后优先于 LLM 重排, 失败时回退.
func (r *Retriever) SetReranker(service reranker.Service) {
	r.reranker = service
}

// DefaultOptions returns options mirroring the retriever configuration.
func (r *Retriever) DefaultOptions() RetrieveOptions {
	return RetrieveOptions{
		TopK:            r.config.TopK,
		UseHybrid:       r.config.UseHybridSearch,
		UseRerank:       r.config.UseRerank,
		UseQueryRewrite: r.config.UseQueryRewrite,
	}
}

type candidate struct {
	content  string
	metadata map[string]interface{}
	score    float64
	method   string
}

// Retrieve 按相关度返回至多 topK 篇文档. 空集合立即返回空且不触发任何 LLM 调用.
func (r *Retriever) Retrieve(ctx context.Context, query, collection string, opts RetrieveOptions) []RetrievedDocument {
	col, err := r.store.Collection(collection)
	if err != nil {
		slog.Error("Failed to open collection", "collection", collection, "error", err)
		return nil
	}
	if col.Size() == 0 {
		return nil
	}

	topK := opts.TopK
	if topK <= 0 {
		topK = r.config.TopK
	}

	queries := []string{query}
	if opts.UseQueryRewrite && r.llm != nil {
		queries = append(queries, r.rewriteQuery(ctx, query)...)
	}

	merged := r.gatherCandidates(ctx, col, queries, topK, opts)
	if len(merged) == 0 {
		return nil
	}

	sort.Slice(merged, func(i, j int) bool {
		return merged[i].score > merged[j].score
	})
	if cut := 3 * topK; len(merged) > cut {
		merged = merged[:cut]
	}

	reranked := false
	if opts.UseRerank && len(merged) > 1 {
		merged, reranked = r.rerank(ctx, query, merged, topK)
	}
	if len(merged) > topK {
		merged = merged[:topK]
	}

	results := make([]RetrievedDocument, 0, len(merged))
	for _, c := range merged {
		meta := make(map[string]interface{}, len(c.metadata)+3)
		for k, v := range c.metadata {
			meta[k] = v
		}
		meta["retrieval_method"] = c.method
		meta["hybrid_search"] = opts.UseHybrid
		meta["reranked"] = reranked
		results = append(results, RetrievedDocument{
			Content:  c.content,
			Metadata: meta,
			Score:    c.score,
		})
	}

	slog.Info("Retrieval completed",
		"collection", collection,
		"queries", len(queries),
		"results", len(results),
		"reranked", reranked,
	)
	return results
}

// gatherCandidates 对每个查询并行执行稠密与 BM25 召回, 跨查询去重.
// 去重键为内容前 100 字符, 重复时保留高分.
func (r *Retriever) gatherCandidates(ctx context.Context, col *Collection, queries []string, topK int, opts RetrieveOptions) []candidate {
	var (
		mu     sync.Mutex
		dedupe = make(map[string]candidate)
	)

	merge := func(c candidate) {
		key := dedupeKey(c.content)
		mu.Lock()
		defer mu.Unlock()
		if existing, ok := dedupe[key]; !ok || c.score > existing.score {
			dedupe[key] = c
		}
	}

	g, gctx := errgroup.WithContext(ctx)
	for _, q := range queries {
		query := q
		g.Go(func() error {
			r.searchOne(gctx, col, query, topK*2, opts, merge)
			return nil
		})
	}
	// workers only report via merge, errors are degraded in-place
	_ = g.Wait()

	out := make([]candidate, 0, len(dedupe))
	for _, c := range dedupe {
		out = append(out, c)
	}
	return out
}

// searchOne 单查询召回. 向量侧失败时只保留 BM25 的贡献.
func (r *Retriever) searchOne(ctx context.Context, col *Collection, query string, limit int, opts RetrieveOptions, merge func(candidate)) {
	col.mu.RLock()
	defer col.mu.RUnlock()

	if col.embedder != nil {
		queryVec, err := col.embedder.EmbedQuery(ctx, query)
		if err != nil {
			slog.Warn("Query embedding failed, dense contribution dropped",
				"collection", col.name, "error", err)
		} else {
			for _, hit := range col.denseSearch(l2Normalize(queryVec), limit) {
				if hit.Score < r.config.SimilarityThreshold {
					continue
				}
				if !matchFilter(col.metadatas[hit.Index], opts.Filter) {
					continue
				}
				merge(candidate{
					content:  col.documents[hit.Index],
					metadata: col.metadatas[hit.Index],
					score:    hit.Score,
					method:   "dense",
				})
			}
		}
	}

	if !opts.UseHybrid {
		return
	}

	hits := col.bm25.search(query, limit)
	if len(hits) == 0 {
		return
	}
	// 以本查询内的最大 BM25 分数归一化, 使其与余弦分数可比
	maxScore := hits[0].Score
	for _, hit := range hits {
		if !matchFilter(col.metadatas[hit.Index], opts.Filter) {
			continue
		}
		merge(candidate{
			content:  col.documents[hit.Index],
			metadata: col.metadatas[hit.Index],
			score:    hit.Score / maxScore,
			method:   "bm25",
		})
	}
}

func matchFilter(metadata, filter map[string]interface{}) bool {
	if len(filter) == 0 {
		return true
	}
	for k, want := range filter {
		got, ok := metadata[k]
		if !ok || fmt.Sprintf("%v", got) != fmt.Sprintf("%v", want) {
			return false
		}
	}
	return true
}

func dedupeKey(content string) string {
	runes := []rune(content)
	if len(runes) > dedupeKeyRunes {
		runes = runes[:dedupeKeyRunes]
	}
	return string(runes)
}

// rewriteQuery 请求 LLM 生成至多 3 个同义改写. 失败时返回空, 仅用原查询.
func (r *Retriever) rewriteQuery(ctx context.Context, query string) []string {
	prompt := fmt.Sprintf(`请为下面的搜索查询生成最多 %d 个不同措辞的同义改写, 用于提高检索召回率。
每行一个改写, 不要编号, 不要解释。

原始查询: %s`, maxRewriteQueries, query)

	content, _, err := r.llm.Chat(ctx, []llm.Message{llm.UserMessage(prompt)})
	if err != nil {
		slog.Warn("Query rewrite failed, using original only", "error", err)
		return nil
	}

	var rewrites []string
	for _, line := range strings.Split(content, "\n") {
		line = strings.TrimSpace(strings.TrimLeft(strings.TrimSpace(line), "0123456789.、- "))
		if line == "" || line == query {
			continue
		}
		rewrites = append(rewrites, line)
		if len(rewrites) >= maxRewriteQueries {
			break
		}
	}
	return rewrites
}

var rerankIndexPattern = regexp.MustCompile(`\d+`)

// rerank 重排候选. 优先走专用重排服务, 未配置或失败时走 LLM,
// 两者都不可用时保持分数序.
func (r *Retriever) rerank(ctx context.Context, query string, candidates []candidate, topK int) ([]candidate, bool) {
	if r.reranker != nil && r.reranker.IsEnabled() {
		if ordered, ok := r.rerankByService(ctx, query, candidates, topK); ok {
			return ordered, true
		}
	}
	if r.llm == nil {
		return candidates, false
	}
	return r.rerankByLLM(ctx, query, candidates, topK)
}

// rerankByService 调用重排 API. 失败时返回 ok=false 交给 LLM 路径.
func (r *Retriever) rerankByService(ctx context.Context, query string, candidates []candidate, topK int) ([]candidate, bool) {
	documents := make([]string, len(candidates))
	for i, c := range candidates {
		documents[i] = c.content
	}

	results, err := r.reranker.Rerank(ctx, query, documents, topK)
	if err != nil {
		slog.Warn("Reranker service failed, falling back to LLM rerank", "error", err)
		return nil, false
	}

	ordered := make([]candidate, 0, topK)
	for _, res := range results {
		if res.Index < 0 || res.Index >= len(candidates) {
			continue
		}
		ordered = append(ordered, candidates[res.Index])
		if len(ordered) >= topK {
			break
		}
	}
	if len(ordered) == 0 {
		return nil, false
	}
	return ordered, true
}

// rerankByLLM 让 LLM 按相关度输出候选下标. 输出不可解析时回退到分数序.
func (r *Retriever) rerankByLLM(ctx context.Context, query string, candidates []candidate, topK int) ([]candidate, bool) {
	var sb strings.Builder
	sb.WriteString("请根据查询对下列候选文档按相关度从高到低排序, 只输出文档编号, 用逗号分隔。\n\n")
	sb.WriteString("查询: ")
	sb.WriteString(query)
	sb.WriteString("\n\n候选文档:\n")
	for i, c := range candidates {
		snippet := c.content
		if runes := []rune(snippet); len(runes) > 200 {
			snippet = string(runes[:200])
		}
		fmt.Fprintf(&sb, "[%d] %s\n", i, snippet)
	}

	content, _, err := r.llm.Chat(ctx, []llm.Message{llm.UserMessage(sb.String())})
	if err != nil {
		slog.Warn("Rerank failed, keeping score order", "error", err)
		return candidates, false
	}

	seen := make(map[int]bool)
	ordered := make([]candidate, 0, topK)
	for _, m := range rerankIndexPattern.FindAllString(content, -1) {
		idx, err := strconv.Atoi(m)
		if err != nil || idx < 0 || idx >= len(candidates) || seen[idx] {
			continue
		}
		seen[idx] = true
		ordered = append(ordered, candidates[idx])
		if len(ordered) >= topK {
			break
		}
	}

	if len(ordered) == 0 {
		slog.Warn("Rerank output unparsable, keeping score order")
		return candidates, false
	}
	return ordered, true
}
