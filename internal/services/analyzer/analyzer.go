// -----------------------------------------------------------------------
// Analyzer - Java repository scan into a dependency graph
// -----------------------------------------------------------------------

package analyzer

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync/atomic"

	"github.com/ternarybob/arbor"
	"golang.org/x/sync/errgroup"

	"github.com/neto007/HRM-pipeline/internal/interfaces"
	"github.com/neto007/HRM-pipeline/internal/models"
)

// maxFileBytes skips generated or vendored giants
const maxFileBytes = 2 * 1024 * 1024

// externalPrefixes are import roots that never resolve to repository units
var externalPrefixes = []string{"java.", "javax.", "jdk.", "sun."}

// Analyzer implements interfaces.Analyzer for Java sources.
type Analyzer struct {
	logger      arbor.ILogger
	concurrency int
}

// NewAnalyzer creates an analyzer that parses up to concurrency files at once.
func NewAnalyzer(logger arbor.ILogger, concurrency int) interfaces.Analyzer {
	if concurrency <= 0 {
		concurrency = 4
	}
	return &Analyzer{logger: logger, concurrency: concurrency}
}

// Analyze discovers, parses and links every matching file under repoPath.
// Files that fail to parse are logged and left out of the graph.
func (a *Analyzer) Analyze(ctx context.Context, repoPath string, extensions []string) (*models.DependencyGraph, error) {
	if len(extensions) == 0 {
		extensions = []string{".java"}
	}

	info, err := os.Stat(repoPath)
	if err != nil {
		return nil, interfaces.NewNotFound("repository path %s not found", repoPath)
	}
	if !info.IsDir() {
		return nil, fmt.Errorf("repository path %s is not a directory", repoPath)
	}

	files, err := DiscoverFiles(repoPath, extensions)
	if err != nil {
		return nil, fmt.Errorf("failed to discover files: %w", err)
	}

	units := make([]*models.SourceUnit, len(files))
	var skipped int64

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(a.concurrency)
	for i, rel := range files {
		g.Go(func() error {
			full := filepath.Join(repoPath, filepath.FromSlash(rel))
			st, err := os.Stat(full)
			if err != nil || st.Size() > maxFileBytes {
				atomic.AddInt64(&skipped, 1)
				return nil
			}
			data, err := os.ReadFile(full)
			if err != nil {
				atomic.AddInt64(&skipped, 1)
				return nil
			}
			unit, err := ParseJava(gctx, rel, data)
			if err != nil {
				if gctx.Err() != nil {
					return gctx.Err()
				}
				a.logger.Warn().Err(err).Str("path", rel).Msg("Skipping unparsable file")
				atomic.AddInt64(&skipped, 1)
				return nil
			}
			units[i] = unit
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	parsed := make([]*models.SourceUnit, 0, len(units))
	for _, u := range units {
		if u != nil {
			parsed = append(parsed, u)
		}
	}

	ResolveDependencies(parsed)
	graph := models.NewDependencyGraph(parsed)

	a.logger.Info().
		Str("repo", repoPath).
		Int("files", len(files)).
		Int64("skipped", skipped).
		Int("nodes", len(graph.Nodes)).
		Int("edges", len(graph.Edges)).
		Msg("Repository analyzed")

	return graph, nil
}

// ParseSource analyzes a single in-memory file.
func (a *Analyzer) ParseSource(ctx context.Context, path string, code []byte) (*models.SourceUnit, error) {
	return ParseJava(ctx, path, code)
}

// ResolveDependencies fills each unit's Dependencies from its imports and from
// same-package type references. Explicit imports resolve to a unit id; wildcard
// imports depend on every unit of the imported package.
func ResolveDependencies(units []*models.SourceUnit) {
	classIndex := make(map[string]string) // package.Type -> unit id
	byPackage := make(map[string][]string)
	for _, u := range units {
		byPackage[u.Package] = append(byPackage[u.Package], u.ID)
		classIndex[u.ID] = u.ID
		for _, c := range u.Classes {
			qualified := c
			if u.Package != "" {
				qualified = u.Package + "." + c
			}
			if _, taken := classIndex[qualified]; !taken {
				classIndex[qualified] = u.ID
			}
		}
	}

	for _, u := range units {
		deps := make(map[string]bool)

		for _, imp := range u.Imports {
			if isExternal(imp) {
				continue
			}
			if strings.HasSuffix(imp, ".*") {
				pkg := strings.TrimSuffix(imp, ".*")
				for _, id := range byPackage[pkg] {
					deps[id] = true
				}
				// import static a.b.C.* names a class, not a package
				if id, ok := classIndex[pkg]; ok {
					deps[id] = true
				}
				continue
			}
			if id, ok := resolveImport(imp, classIndex); ok {
				deps[id] = true
			}
		}

		for _, ref := range u.References {
			qualified := ref
			if u.Package != "" {
				qualified = u.Package + "." + ref
			}
			if id, ok := classIndex[qualified]; ok {
				deps[id] = true
			}
		}

		delete(deps, u.ID)
		u.Dependencies = make([]string, 0, len(deps))
		for id := range deps {
			u.Dependencies = append(u.Dependencies, id)
		}
		sort.Strings(u.Dependencies)
	}
}

// resolveImport matches the longest prefix of imp that names a known type, which
// covers nested types and static member imports.
func resolveImport(imp string, classIndex map[string]string) (string, bool) {
	for candidate := imp; candidate != ""; {
		if id, ok := classIndex[candidate]; ok {
			return id, true
		}
		dot := strings.LastIndex(candidate, ".")
		if dot < 0 {
			break
		}
		candidate = candidate[:dot]
	}
	return "", false
}

func isExternal(imp string) bool {
	for _, p := range externalPrefixes {
		if strings.HasPrefix(imp, p) {
			return true
		}
	}
	return false
}
