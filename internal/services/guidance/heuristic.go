package guidance

import (
	"context"
	"fmt"
	"hash/fnv"
	"io"
	"os"
	"regexp"
	"strings"

	"github.com/neto007/HRM-pipeline/internal/interfaces"
	"github.com/neto007/HRM-pipeline/internal/models"
)

// rule maps a Java construct to the concern it raises and the Go pattern that answers it
type rule struct {
	match   *regexp.Regexp
	concern string
	pattern string
}

var rules = []rule{
	{regexp.MustCompile(`\bextends\s+\w+`), "inheritance", "struct-embedding"},
	{regexp.MustCompile(`\bimplements\s+\w+`), "interface-contracts", "interface-driven"},
	{regexp.MustCompile(`\bthrows\b|\btry\s*\{|\bcatch\s*\(`), "exception-handling", "error-returns"},
	{regexp.MustCompile(`<\s*[A-Z]\w*(\s*,\s*[A-Z]\w*)*\s*>`), "generics", "type-parameters"},
	{regexp.MustCompile(`\bsynchronized\b|\bvolatile\b|\bReentrantLock\b|\bAtomic[A-Z]\w*`), "thread-safety", "sync-mutex"},
	{regexp.MustCompile(`\bThread\b|\bExecutorService\b|\bRunnable\b|\bCompletableFuture\b`), "concurrency", "goroutines-channels"},
	{regexp.MustCompile(`\.stream\(\)|\.forEach\(|->`), "stream-api", "explicit-loops"},
	{regexp.MustCompile(`@(?:[A-Z]\w*)`), "annotations", "struct-tags"},
	{regexp.MustCompile(`[!=]=\s*null\b|\bnull\s*[!=]=`), "nil-handling", "zero-values"},
	{regexp.MustCompile(`\bstatic\s+\w+\s+getInstance\s*\(|\bprivate\s+static\s+\w+\s+_?instance\b`), "global-state", "package-level-singleton"},
	{regexp.MustCompile(`\b(?:HashMap|ArrayList|LinkedList|HashSet|ConcurrentHashMap)\b`), "collections", "builtin-maps-slices"},
	{regexp.MustCompile(`\benum\s+\w+`), "enums", "typed-constants"},
}

var overrideAnnotation = regexp.MustCompile(`@Override\b`)

var strategies = []string{
	"Port %s to a Go struct with methods, keeping the public surface and replacing class hierarchy with composition",
	"Translate %s into a Go type plus constructor function, converting Java idioms to their Go counterparts",
	"Rewrite %s as an idiomatic Go package member, preserving behavior and exported names",
}

// HeuristicRuntime derives guidance from the Java constructs of a unit. The
// checkpoint seeds strategy phrasing so inference is deterministic per checkpoint.
type HeuristicRuntime struct{}

// NewHeuristicRuntime creates the default guidance runtime
func NewHeuristicRuntime() *HeuristicRuntime {
	return &HeuristicRuntime{}
}

// Load reads the checkpoint header and returns a seeded model.
func (h *HeuristicRuntime) Load(ctx context.Context, checkpoint models.Checkpoint) (interfaces.GuidanceModel, error) {
	f, err := os.Open(checkpoint.Path)
	if err != nil {
		return nil, interfaces.NewConfigurationError("cannot open checkpoint %s: %v", checkpoint.Name, err)
	}
	defer f.Close()

	header := make([]byte, 4096)
	n, err := io.ReadFull(f, header)
	if err != nil && err != io.ErrUnexpectedEOF {
		return nil, interfaces.NewConfigurationError("corrupt checkpoint %s: %v", checkpoint.Name, err)
	}
	if n == 0 {
		return nil, interfaces.NewConfigurationError("corrupt checkpoint %s: empty", checkpoint.Name)
	}

	hash := fnv.New64a()
	hash.Write(header[:n])
	return &heuristicModel{checkpoint: checkpoint, seed: hash.Sum64()}, nil
}

type heuristicModel struct {
	checkpoint models.Checkpoint
	seed       uint64
}

func (m *heuristicModel) Infer(ctx context.Context, unit *models.SourceUnit, rctx *models.RetrievalContext) (*models.Guidance, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	code := overrideAnnotation.ReplaceAllString(unit.Code, "")

	var concerns, patterns []string
	for _, r := range rules {
		if r.match.MatchString(code) {
			concerns = append(concerns, r.concern)
			patterns = append(patterns, r.pattern)
		}
	}
	patterns = append(patterns, "struct-based")

	name := unit.ID
	if len(unit.Classes) > 0 {
		name = unit.Classes[0]
	}

	strategy := fmt.Sprintf(strategies[m.seed%uint64(len(strategies))], name)
	if len(concerns) > 0 {
		strategy += "; focus on " + strings.Join(normalizeSet(concerns), ", ")
	}

	return &models.Guidance{
		Strategy:            strategy,
		CriticalConcerns:    normalizeSet(concerns),
		RecommendedPatterns: normalizeSet(patterns),
		Checkpoint:          m.checkpoint.Name,
	}, nil
}
