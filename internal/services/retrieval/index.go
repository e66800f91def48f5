// -----------------------------------------------------------------------
// Keyword index - per-repository retrieval index persisted in Badger
// -----------------------------------------------------------------------

package retrieval

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"sort"
	"strings"
	"sync"
	"unicode"

	"github.com/ternarybob/arbor"
	"golang.org/x/sync/errgroup"

	"github.com/neto007/HRM-pipeline/internal/interfaces"
	"github.com/neto007/HRM-pipeline/internal/models"
	"github.com/neto007/HRM-pipeline/internal/services/analyzer"
)

var identifierPattern = regexp.MustCompile(`[A-Za-z_][A-Za-z0-9_]*`)

// KeywordIndex implements interfaces.VectorIndex with identifier-token matching.
type KeywordIndex struct {
	store           interfaces.IndexStorage
	extensions      []string
	maxSnippetChars int
	logger          arbor.ILogger

	mu    sync.RWMutex
	cache map[string][]models.IndexDocument
}

// NewKeywordIndex creates a keyword index backed by store
func NewKeywordIndex(store interfaces.IndexStorage, extensions []string, maxSnippetChars int, logger arbor.ILogger) *KeywordIndex {
	if len(extensions) == 0 {
		extensions = []string{".java"}
	}
	return &KeywordIndex{
		store:           store,
		extensions:      extensions,
		maxSnippetChars: maxSnippetChars,
		logger:          logger,
		cache:           make(map[string][]models.IndexDocument),
	}
}

// Index scans the repository checkout and replaces its stored documents.
func (k *KeywordIndex) Index(ctx context.Context, repo *models.Repository) (models.RepositoryStats, error) {
	var stats models.RepositoryStats
	if repo.LocalPath == "" {
		return stats, interfaces.NewConfigurationError("repository %s has no local checkout", repo.Name)
	}
	if info, err := os.Stat(repo.LocalPath); err != nil || !info.IsDir() {
		return stats, interfaces.NewConfigurationError("repository %s checkout %s is not a directory", repo.Name, repo.LocalPath)
	}

	files, err := analyzer.DiscoverFiles(repo.LocalPath, k.extensions)
	if err != nil {
		return stats, fmt.Errorf("failed to discover files: %w", err)
	}

	docs := make([]models.IndexDocument, len(files))
	classes := make([]int, len(files))
	lines := make([]int, len(files))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(4)
	for i, rel := range files {
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			data, err := os.ReadFile(filepath.Join(repo.LocalPath, filepath.FromSlash(rel)))
			if err != nil {
				return nil
			}
			code := string(data)
			tokens := Tokenize(code)
			if unit, err := analyzer.ParseJava(gctx, rel, data); err == nil {
				classes[i] = len(unit.Classes)
				tokens = mergeTokens(tokens, unit.Classes)
			}
			lines[i] = strings.Count(code, "\n")
			docs[i] = models.IndexDocument{
				ID:         repo.Name + "/" + rel,
				Repository: repo.Name,
				Path:       rel,
				Code:       code,
				Tokens:     tokens,
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return stats, err
	}

	kept := docs[:0]
	for i, d := range docs {
		if d.ID == "" {
			continue
		}
		kept = append(kept, d)
		stats.Files++
		stats.Lines += lines[i]
		stats.Classes += classes[i]
	}

	if err := k.store.ReplaceIndex(ctx, repo.Name, kept); err != nil {
		return stats, fmt.Errorf("failed to store index: %w", err)
	}

	k.mu.Lock()
	k.cache[repo.Name] = kept
	k.mu.Unlock()

	k.logger.Info().
		Str("repository", repo.Name).
		Int("files", stats.Files).
		Int("lines", stats.Lines).
		Int("classes", stats.Classes).
		Msg("Repository indexed")

	return stats, nil
}

// Query ranks indexed documents by the fraction of query tokens they contain.
func (k *KeywordIndex) Query(ctx context.Context, repository string, text string, topK int) (*models.RetrievalContext, error) {
	docs, err := k.documents(ctx, repository)
	if err != nil {
		return nil, err
	}

	result := &models.RetrievalContext{
		Snippets:         []string{},
		SourcePaths:      []string{},
		SimilarityScores: []float64{},
		Mode:             models.RetrievalModeIndexed,
		Repository:       repository,
	}

	query := Tokenize(text)
	if len(query) == 0 || topK <= 0 {
		return result, nil
	}

	type hit struct {
		doc   *models.IndexDocument
		score float64
	}
	var hits []hit
	for i := range docs {
		matches := countMatches(query, docs[i].Tokens)
		if matches == 0 {
			continue
		}
		hits = append(hits, hit{doc: &docs[i], score: float64(matches) / float64(len(query))})
	}

	sort.Slice(hits, func(i, j int) bool {
		if hits[i].score != hits[j].score {
			return hits[i].score > hits[j].score
		}
		return hits[i].doc.Path < hits[j].doc.Path
	})
	if len(hits) > topK {
		hits = hits[:topK]
	}

	for _, h := range hits {
		result.Snippets = append(result.Snippets, truncate(h.doc.Code, k.maxSnippetChars))
		result.SourcePaths = append(result.SourcePaths, h.doc.Path)
		result.SimilarityScores = append(result.SimilarityScores, h.score)
	}
	return result, nil
}

// Drop removes a repository's index.
func (k *KeywordIndex) Drop(ctx context.Context, repository string) error {
	k.mu.Lock()
	delete(k.cache, repository)
	k.mu.Unlock()
	return k.store.DeleteIndex(ctx, repository)
}

func (k *KeywordIndex) documents(ctx context.Context, repository string) ([]models.IndexDocument, error) {
	k.mu.RLock()
	docs, ok := k.cache[repository]
	k.mu.RUnlock()
	if ok {
		return docs, nil
	}

	docs, err := k.store.ListDocuments(ctx, repository)
	if err != nil {
		return nil, fmt.Errorf("failed to load index for %s: %w", repository, err)
	}

	k.mu.Lock()
	k.cache[repository] = docs
	k.mu.Unlock()
	return docs, nil
}

// Tokenize returns the sorted, de-duplicated capitalised identifiers of code.
func Tokenize(code string) []string {
	seen := make(map[string]bool)
	for _, word := range identifierPattern.FindAllString(code, -1) {
		if len(word) < 2 || !unicode.IsUpper(rune(word[0])) {
			continue
		}
		seen[word] = true
	}
	tokens := make([]string, 0, len(seen))
	for w := range seen {
		tokens = append(tokens, w)
	}
	sort.Strings(tokens)
	return tokens
}

func mergeTokens(tokens, extra []string) []string {
	if len(extra) == 0 {
		return tokens
	}
	seen := make(map[string]bool, len(tokens)+len(extra))
	for _, t := range tokens {
		seen[t] = true
	}
	for _, t := range extra {
		if !seen[t] {
			seen[t] = true
			tokens = append(tokens, t)
		}
	}
	sort.Strings(tokens)
	return tokens
}

// countMatches counts query tokens present in the sorted doc token list.
func countMatches(query, docTokens []string) int {
	n := 0
	for _, q := range query {
		i := sort.SearchStrings(docTokens, q)
		if i < len(docTokens) && docTokens[i] == q {
			n++
		}
	}
	return n
}

func truncate(code string, max int) string {
	if max <= 0 || len(code) <= max {
		return code
	}
	cut := max
	for cut > 0 && !utf8Start(code[cut]) {
		cut--
	}
	return code[:cut] + "\n// ..."
}

func utf8Start(b byte) bool {
	return b&0xC0 != 0x80
}
