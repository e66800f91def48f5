package retrieval

import (
	"context"
	"os"
	"path/filepath"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/ternarybob/arbor"

	"github.com/neto007/HRM-pipeline/internal/interfaces"
	"github.com/neto007/HRM-pipeline/internal/models"
)

type memIndexStore struct {
	mu   sync.Mutex
	docs map[string][]models.IndexDocument
}

func newMemIndexStore() *memIndexStore {
	return &memIndexStore{docs: make(map[string][]models.IndexDocument)}
}

func (m *memIndexStore) ReplaceIndex(ctx context.Context, repository string, docs []models.IndexDocument) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.docs[repository] = append([]models.IndexDocument(nil), docs...)
	return nil
}

func (m *memIndexStore) ListDocuments(ctx context.Context, repository string) ([]models.IndexDocument, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.docs[repository], nil
}

func (m *memIndexStore) DeleteIndex(ctx context.Context, repository string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.docs, repository)
	return nil
}

type fakeRepos struct {
	interfaces.RepositoryStorage
	active *models.Repository
}

func (f *fakeRepos) GetActive(ctx context.Context) (*models.Repository, error) {
	if f.active == nil {
		return nil, interfaces.NewNotFound("no active repository")
	}
	return f.active, nil
}

func write(t *testing.T, root, rel, content string) {
	t.Helper()
	full := filepath.Join(root, rel)
	require.NoError(t, os.MkdirAll(filepath.Dir(full), 0755))
	require.NoError(t, os.WriteFile(full, []byte(content), 0644))
}

func indexedRepo(t *testing.T) (*KeywordIndex, *models.Repository) {
	t.Helper()
	root := t.TempDir()
	write(t, root, "world/World.java", "package world;\npublic class World { Player player; Item item; }\n")
	write(t, root, "world/Player.java", "package world;\npublic class Player { Inventory inv; }\n")
	write(t, root, "world/Inventory.java", "package world;\npublic class Inventory { Item item; }\n")

	idx := NewKeywordIndex(newMemIndexStore(), []string{".java"}, 0, arbor.NewLogger())
	repo := &models.Repository{Name: "game", LocalPath: root}

	stats, err := idx.Index(context.Background(), repo)
	require.NoError(t, err)
	assert.Equal(t, 3, stats.Files)
	assert.Equal(t, 3, stats.Classes)
	assert.Equal(t, 6, stats.Lines)
	return idx, repo
}

func TestTokenize(t *testing.T) {
	tokens := Tokenize("public class Foo extends Bar { int x; Foo y = new Foo(); String s; }")
	assert.Equal(t, []string{"Bar", "Foo", "String"}, tokens)
}

func TestKeywordIndex_QueryRanksAndBounds(t *testing.T) {
	idx, repo := indexedRepo(t)

	rctx, err := idx.Query(context.Background(), repo.Name, "class Shop { Item item; Inventory inv; }", 2)
	require.NoError(t, err)

	assert.Equal(t, models.RetrievalModeIndexed, rctx.Mode)
	require.Len(t, rctx.Snippets, 2)
	assert.Equal(t, []string{"world/Inventory.java", "world/Player.java"}, rctx.SourcePaths)
	for i, s := range rctx.SimilarityScores {
		assert.GreaterOrEqual(t, s, 0.0)
		assert.LessOrEqual(t, s, 1.0)
		if i > 0 {
			assert.LessOrEqual(t, s, rctx.SimilarityScores[i-1])
		}
	}
	assert.InDelta(t, 2.0/3.0, rctx.SimilarityScores[0], 1e-9)
}

func TestKeywordIndex_NoMatches(t *testing.T) {
	idx, repo := indexedRepo(t)
	rctx, err := idx.Query(context.Background(), repo.Name, "class Unrelated {}", 5)
	require.NoError(t, err)
	assert.Equal(t, 0, rctx.Len())
}

func TestTruncate(t *testing.T) {
	assert.Equal(t, "abc", truncate("abc", 10))
	assert.Equal(t, "ab\n// ...", truncate("abcdef", 2))
}

func TestRetriever_SimulatedWithoutIndexedRepository(t *testing.T) {
	idx := NewKeywordIndex(newMemIndexStore(), nil, 0, arbor.NewLogger())
	unit := &models.SourceUnit{ID: "a.B", Code: "class B { Item i; }"}

	r := NewRetriever(&fakeRepos{}, idx, arbor.NewLogger())
	rctx, err := r.Retrieve(context.Background(), unit, 3)
	require.NoError(t, err)
	assert.Equal(t, models.RetrievalModeSimulated, rctx.Mode)
	assert.Empty(t, rctx.Snippets)

	r = NewRetriever(&fakeRepos{active: &models.Repository{Name: "game", Indexed: false}}, idx, arbor.NewLogger())
	rctx, err = r.Retrieve(context.Background(), unit, 3)
	require.NoError(t, err)
	assert.Equal(t, models.RetrievalModeSimulated, rctx.Mode)
}

func TestRetriever_IndexedActiveRepository(t *testing.T) {
	idx, repo := indexedRepo(t)
	repo.Indexed = true
	repo.Active = true

	r := NewRetriever(&fakeRepos{active: repo}, idx, arbor.NewLogger())
	rctx, err := r.Retrieve(context.Background(), &models.SourceUnit{ID: "x.Y", Code: "Player p;"}, 5)
	require.NoError(t, err)
	assert.Equal(t, models.RetrievalModeIndexed, rctx.Mode)
	assert.Equal(t, []string{"world/Player.java", "world/World.java"}, rctx.SourcePaths)
}
