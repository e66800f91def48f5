// -----------------------------------------------------------------------
// Validator - structural checks on generated Go and the composite reward
// -----------------------------------------------------------------------

package validator

import (
	"context"
	"fmt"
	"regexp"
	"strings"
	"unicode"

	sitter "github.com/smacker/go-tree-sitter"
	"github.com/smacker/go-tree-sitter/golang"

	"github.com/neto007/HRM-pipeline/internal/models"
)

// javaConstruct is a source-language leftover that should not survive translation
type javaConstruct struct {
	name  string
	match *regexp.Regexp
}

var javaConstructs = []javaConstruct{
	{"public class", regexp.MustCompile(`\bpublic\s+(?:final\s+|abstract\s+)?class\b`)},
	{"System.out", regexp.MustCompile(`\bSystem\.(?:out|err)\b`)},
	{"new X(", regexp.MustCompile(`\bnew\s+[A-Z]\w*\s*[(<]`)},
	{"import java.", regexp.MustCompile(`\bimport\s+javax?\.`)},
	{"@Override", regexp.MustCompile(`@Override\b`)},
	{"throws", regexp.MustCompile(`\bthrows\s+[A-Z]`)},
	{"extends", regexp.MustCompile(`\b(?:class|interface)\s+\w+(?:<[^>]*>)?\s+extends\b`)},
	{"implements", regexp.MustCompile(`\bimplements\s+[A-Z]`)},
	{"final", regexp.MustCompile(`\bfinal\s+[A-Za-z]`)},
}

// semicolonRatioLimit is the share of ;-terminated lines tolerated in Go output
const semicolonRatioLimit = 0.2

// leftoverPenalty is deducted from the idiomatic score per finding
const leftoverPenalty = 0.25

var goIdentifier = regexp.MustCompile(`[A-Za-z_][A-Za-z0-9_]*`)

// Report carries the raw dimension scores (each in [0,1]) and findings.
type Report struct {
	Scores map[string]float64
	Notes  []string
}

// Validator evaluates generated code and combines the checks into a reward.
type Validator struct {
	weights  map[string]float64
	compiler Compiler
}

// NewValidator creates a validator with the given non-negative weights. A
// weight is the maximum number of points its dimension contributes. compiler
// may be nil, in which case the compiles dimension follows the syntax check.
func NewValidator(weights map[string]float64, compiler Compiler) *Validator {
	w := make(map[string]float64, len(weights))
	for k, v := range weights {
		w[k] = v
	}
	return &Validator{weights: w, compiler: compiler}
}

// Evaluate checks output against the source unit, its retrieval context and
// guidance, and scores it.
func (v *Validator) Evaluate(
	ctx context.Context,
	output string,
	unit *models.SourceUnit,
	rctx *models.RetrievalContext,
	guidance *models.Guidance,
) *models.RewardScore {
	report := Check(ctx, output, unit, rctx, guidance)
	if v.compiler != nil && report.Scores[models.DimensionSyntax] > 0 {
		v.compile(ctx, output, &report)
	}
	score := Combine(v.weights, report.Scores)
	score.Notes = report.Notes
	return score
}

// compile replaces the syntax-derived compiles score with a real build.
func (v *Validator) compile(ctx context.Context, output string, report *Report) {
	result, err := v.compiler.Compile(ctx, output)
	if err != nil {
		report.Notes = append(report.Notes, "compile check skipped: "+err.Error())
		return
	}
	if result.OK {
		report.Scores[models.DimensionCompiles] = 1
		return
	}
	report.Scores[models.DimensionCompiles] = 0
	report.Notes = append(report.Notes, "compiler errors:\n"+result.Output)
}

// Check runs every structural check. Empty output scores zero everywhere.
func Check(ctx context.Context, output string, unit *models.SourceUnit, rctx *models.RetrievalContext, guidance *models.Guidance) Report {
	report := Report{Scores: map[string]float64{
		models.DimensionNonEmpty:      0,
		models.DimensionSyntax:        0,
		models.DimensionCompiles:      0,
		models.DimensionIdiomatic:     0,
		models.DimensionPublicSurface: 0,
		models.DimensionContext:       0,
		models.DimensionGuidance:      0,
	}}

	if strings.TrimSpace(output) == "" {
		report.Notes = append(report.Notes, "empty output")
		return report
	}
	report.Scores[models.DimensionNonEmpty] = 1

	syntax, note := checkSyntax(ctx, output)
	report.Scores[models.DimensionSyntax] = syntax
	report.Scores[models.DimensionCompiles] = syntax
	if note != "" {
		report.Notes = append(report.Notes, note)
	}

	leftovers := FindJavaConstructs(output)
	idiomatic := 1 - leftoverPenalty*float64(len(leftovers))
	if idiomatic < 0 {
		idiomatic = 0
	}
	report.Scores[models.DimensionIdiomatic] = idiomatic
	for _, l := range leftovers {
		report.Notes = append(report.Notes, "leftover java construct: "+l)
	}

	surface, missing := publicSurface(output, unit)
	report.Scores[models.DimensionPublicSurface] = surface
	if len(missing) > 0 {
		report.Notes = append(report.Notes, "missing public members: "+strings.Join(missing, ", "))
	}

	similarity, shared, total := contextSimilarity(output, rctx)
	report.Scores[models.DimensionContext] = similarity
	if similarity < 0.5 {
		report.Notes = append(report.Notes, fmt.Sprintf("follows repository context in %d of %d snippets", shared, total))
	}

	compliance, unmet := guidanceCompliance(output, guidance)
	report.Scores[models.DimensionGuidance] = compliance
	if len(unmet) > 0 {
		report.Notes = append(report.Notes, "recommended patterns not followed: "+strings.Join(unmet, ", "))
	}
	return report
}

// checkSyntax parses output as Go. Files without a package clause get half credit.
func checkSyntax(ctx context.Context, output string) (float64, string) {
	parser := sitter.NewParser()
	defer parser.Close()
	parser.SetLanguage(golang.GetLanguage())

	source := []byte(output)
	tree, err := parser.ParseCtx(ctx, nil, source)
	if err != nil {
		return 0, "go parse failed: " + err.Error()
	}
	defer tree.Close()

	root := tree.RootNode()
	if root.HasError() {
		errs := 0
		walk(root, func(n *sitter.Node) {
			if n.IsError() || n.IsMissing() {
				errs++
			}
		})
		return 0, fmt.Sprintf("go syntax errors: %d", errs)
	}

	hasPackage := false
	for i := 0; i < int(root.NamedChildCount()); i++ {
		if root.NamedChild(i).Type() == "package_clause" {
			hasPackage = true
			break
		}
	}
	if !hasPackage {
		return 0.5, "missing package clause"
	}
	return 1, ""
}

// FindJavaConstructs lists the Java leftovers found in Go output.
func FindJavaConstructs(output string) []string {
	var found []string
	for _, c := range javaConstructs {
		if c.match.MatchString(output) {
			found = append(found, c.name)
		}
	}

	var lines, terminated int
	for _, line := range strings.Split(output, "\n") {
		line = strings.TrimSpace(line)
		if line == "" || strings.HasPrefix(line, "//") {
			continue
		}
		lines++
		if strings.HasSuffix(line, ";") {
			terminated++
		}
	}
	if lines > 0 && float64(terminated)/float64(lines) > semicolonRatioLimit {
		found = append(found, "semicolon-terminated lines")
	}
	return found
}

// publicSurface returns the fraction of the unit's public members whose
// exported Go name appears in output, with the names that did not.
func publicSurface(output string, unit *models.SourceUnit) (float64, []string) {
	if unit == nil {
		return 1, nil
	}
	names := append(append([]string{}, unit.PublicMethods...), unit.PublicFields...)
	if len(names) == 0 {
		return 1, nil
	}

	exported := make(map[string]bool)
	for _, id := range goIdentifier.FindAllString(output, -1) {
		if unicode.IsUpper(rune(id[0])) {
			exported[strings.ToLower(id)] = true
		}
	}

	var missing []string
	for _, name := range names {
		if !surfaceMatch(name, exported) {
			missing = append(missing, name)
		}
	}
	return float64(len(names)-len(missing)) / float64(len(names)), missing
}

func surfaceMatch(name string, identifiers map[string]bool) bool {
	lower := strings.ToLower(strings.ReplaceAll(name, "_", ""))
	if identifiers[strings.ToLower(name)] || identifiers[lower] {
		return true
	}
	// getFoo / isFoo become Foo in idiomatic Go
	for _, prefix := range []string{"get", "is"} {
		if strings.HasPrefix(lower, prefix) && len(lower) > len(prefix) && identifiers[lower[len(prefix):]] {
			return true
		}
	}
	return false
}

func walk(n *sitter.Node, fn func(*sitter.Node)) {
	fn(n)
	for i := 0; i < int(n.ChildCount()); i++ {
		walk(n.Child(i), fn)
	}
}
