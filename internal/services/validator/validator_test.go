package validator

import (
	"context"
	"errors"
	"math/rand/v2"
	"os"
	"os/exec"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/neto007/HRM-pipeline/internal/common"
	"github.com/neto007/HRM-pipeline/internal/models"
)

var dimensions = []string{
	models.DimensionNonEmpty,
	models.DimensionSyntax,
	models.DimensionCompiles,
	models.DimensionIdiomatic,
	models.DimensionPublicSurface,
	models.DimensionContext,
	models.DimensionGuidance,
}

const goodGo = `package bank

import "errors"

// Account holds a balance.
type Account struct {
	Owner   string
	balance int64
}

func (a *Account) Deposit(amount int64) error {
	if amount <= 0 {
		return errors.New("invalid amount")
	}
	a.balance += amount
	return nil
}

func (a *Account) Balance() int64 {
	return a.balance
}
`

const javaish = `public class Account extends Base {
    @Override
    public void deposit(long amount) throws Exception {
        System.out.println(amount);
        Foo f = new Foo();
    }
}
`

var accountUnit = &models.SourceUnit{
	ID:            "bank.Account",
	PublicMethods: []string{"deposit", "getBalance"},
	PublicFields:  []string{"owner"},
}

func TestCheck_GoodTranslation(t *testing.T) {
	guidance := &models.Guidance{RecommendedPatterns: []string{"error-returns", "struct-based"}}
	r := Check(context.Background(), goodGo, accountUnit, nil, guidance)

	for _, d := range dimensions {
		assert.Equal(t, 1.0, r.Scores[d], d)
	}
	assert.Empty(t, r.Notes)
}

func TestCheck_JavaLeftovers(t *testing.T) {
	r := Check(context.Background(), javaish, accountUnit, nil, nil)

	assert.Equal(t, 1.0, r.Scores[models.DimensionNonEmpty])
	assert.Equal(t, 0.0, r.Scores[models.DimensionSyntax])
	assert.Equal(t, 0.0, r.Scores[models.DimensionIdiomatic])

	found := FindJavaConstructs(javaish)
	for _, c := range []string{"public class", "System.out", "new X(", "@Override", "throws", "extends", "semicolon-terminated lines"} {
		assert.Contains(t, found, c)
	}
	assert.Empty(t, FindJavaConstructs(goodGo))
}

func TestCheck_EmptyOutputScoresZero(t *testing.T) {
	r := Check(context.Background(), "   \n", accountUnit, nil, nil)
	for _, d := range dimensions {
		assert.Equal(t, 0.0, r.Scores[d], d)
	}

	v := NewValidator(common.DefaultRewardWeights(), nil)
	assert.Equal(t, 0.0, v.Evaluate(context.Background(), "", accountUnit, nil, nil).Total)
}

func TestCheck_MissingPackageAndSurface(t *testing.T) {
	r := Check(context.Background(), "func Deposit() {}\n", accountUnit, nil, nil)
	assert.Equal(t, 0.5, r.Scores[models.DimensionSyntax])
	assert.InDelta(t, 1.0/3.0, r.Scores[models.DimensionPublicSurface], 1e-9)
}

func TestEvaluate_PerfectScoreIsMax(t *testing.T) {
	v := NewValidator(common.DefaultRewardWeights(), nil)
	guidance := &models.Guidance{RecommendedPatterns: []string{"error-returns"}}

	score := v.Evaluate(context.Background(), goodGo, accountUnit, nil, guidance)
	assert.Equal(t, models.MaxRewardTotal, score.Total)
	assert.Equal(t, models.MaxRewardTotal, score.MaxTotal)
}

func TestCombine_BoundedForAnyInput(t *testing.T) {
	rng := rand.New(rand.NewPCG(1, 2))
	heavy := map[string]float64{}
	for _, d := range dimensions {
		heavy[d] = 100
	}

	for i := 0; i < 500; i++ {
		raw := map[string]float64{}
		for _, d := range dimensions {
			raw[d] = rng.Float64()*4 - 2
		}
		for _, weights := range []map[string]float64{common.DefaultRewardWeights(), heavy, {}} {
			s := Combine(weights, raw)
			assert.GreaterOrEqual(t, s.Total, 0.0)
			assert.LessOrEqual(t, s.Total, models.MaxRewardTotal)
		}
	}
}

func TestCombine_MonotonicInEachDimension(t *testing.T) {
	weights := common.DefaultRewardWeights()
	rng := rand.New(rand.NewPCG(3, 4))

	for i := 0; i < 200; i++ {
		raw := map[string]float64{}
		for _, d := range dimensions {
			raw[d] = rng.Float64()
		}
		base := Combine(weights, raw).Total

		for _, d := range dimensions {
			bumped := map[string]float64{}
			for k, v := range raw {
				bumped[k] = v
			}
			bumped[d] += rng.Float64()
			require.GreaterOrEqual(t, Combine(weights, bumped).Total, base, d)
		}
	}
}

func TestCombine_NegativeWeightIgnored(t *testing.T) {
	s := Combine(map[string]float64{models.DimensionSyntax: -5}, map[string]float64{models.DimensionSyntax: 1})
	assert.Equal(t, 0.0, s.Total)
}

func TestCheck_MissingPackageMirrorsIntoCompiles(t *testing.T) {
	r := Check(context.Background(), "func Deposit() {}\n", accountUnit, nil, nil)
	assert.Equal(t, r.Scores[models.DimensionSyntax], r.Scores[models.DimensionCompiles])
}

func TestCheck_ContextSimilarity(t *testing.T) {
	rctx := &models.RetrievalContext{
		Snippets: []string{
			"public class Ledger { private Account account; }",
			"public class AuditTrail { void record(String entry) {} }",
			"public class Inventory { List<Item> items; }",
			"public class Deposit {}", // beyond the compared snippets
		},
	}

	r := Check(context.Background(), goodGo, accountUnit, rctx, nil)
	assert.InDelta(t, 1.0/3.0, r.Scores[models.DimensionContext], 1e-9)
	assert.Contains(t, r.Notes, "follows repository context in 1 of 3 snippets")

	// common Java vocabulary does not count as shared
	onlyVocabulary := &models.RetrievalContext{Snippets: []string{"String s = new String(); System.out.println(s);"}}
	r = Check(context.Background(), "package x\n\nvar String = System\n", nil, onlyVocabulary, nil)
	assert.Equal(t, 0.0, r.Scores[models.DimensionContext])

	r = Check(context.Background(), goodGo, accountUnit, models.NewSimulatedContext(), nil)
	assert.Equal(t, 1.0, r.Scores[models.DimensionContext])
}

func TestCheck_UnmetGuidanceIsNoted(t *testing.T) {
	guidance := &models.Guidance{RecommendedPatterns: []string{"struct-based", "goroutines-channels"}}
	r := Check(context.Background(), goodGo, accountUnit, nil, guidance)
	assert.Equal(t, 0.5, r.Scores[models.DimensionGuidance])
	assert.Contains(t, r.Notes, "recommended patterns not followed: goroutines-channels")
}

type stubCompiler struct {
	result CompileResult
	err    error
	calls  int
}

func (c *stubCompiler) Compile(context.Context, string) (CompileResult, error) {
	c.calls++
	return c.result, c.err
}

func TestEvaluate_CompilerDecidesCompilesDimension(t *testing.T) {
	weights := common.DefaultRewardWeights()
	ctx := context.Background()

	broken := &stubCompiler{result: CompileResult{OK: false, Output: "./generated.go:3:2: undefined: errors"}}
	score := NewValidator(weights, broken).Evaluate(ctx, goodGo, accountUnit, nil, nil)
	assert.Equal(t, 0.0, score.DimensionScores[models.DimensionCompiles])
	assert.Equal(t, models.MaxRewardTotal-weights[models.DimensionCompiles], score.Total)
	assert.Contains(t, score.Notes, "compiler errors:\n./generated.go:3:2: undefined: errors")

	ok := &stubCompiler{result: CompileResult{OK: true}}
	score = NewValidator(weights, ok).Evaluate(ctx, goodGo, accountUnit, nil, nil)
	assert.Equal(t, models.MaxRewardTotal, score.Total)

	// the check could not run: the syntax result stands
	unavailable := &stubCompiler{err: errors.New("go: not found")}
	score = NewValidator(weights, unavailable).Evaluate(ctx, goodGo, accountUnit, nil, nil)
	assert.Equal(t, weights[models.DimensionCompiles], score.DimensionScores[models.DimensionCompiles])
	assert.Contains(t, score.Notes, "compile check skipped: go: not found")

	// output that does not parse is never sent to the compiler
	skipped := &stubCompiler{result: CompileResult{OK: true}}
	NewValidator(weights, skipped).Evaluate(ctx, javaish, accountUnit, nil, nil)
	assert.Equal(t, 0, skipped.calls)
}

func TestGoCompiler(t *testing.T) {
	if _, err := exec.LookPath("go"); err != nil {
		t.Skip("go toolchain not available")
	}
	assert.Nil(t, NewGoCompiler(common.CompileConfig{Enabled: false}))

	dir := t.TempDir()
	c := NewGoCompiler(common.CompileConfig{Enabled: true, SandboxDir: dir, Timeout: "2m"})
	require.NotNil(t, c)
	ctx := context.Background()

	result, err := c.Compile(ctx, goodGo)
	require.NoError(t, err)
	assert.True(t, result.OK, result.Output)

	result, err = c.Compile(ctx, "package bank\n\nfunc F() { fmt.Println(1) }\n")
	require.NoError(t, err)
	assert.False(t, result.OK)
	assert.Contains(t, result.Output, "undefined: fmt")
	assert.NotContains(t, result.Output, dir)

	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	assert.Empty(t, entries, "scratch modules are removed")
}
