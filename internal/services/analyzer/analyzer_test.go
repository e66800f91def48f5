package analyzer

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/ternarybob/arbor"

	"github.com/neto007/HRM-pipeline/internal/models"
	"github.com/neto007/HRM-pipeline/internal/services/planner"
)

const accountSource = `package com.acme.bank;

import java.util.List;
import com.acme.core.Entity;
import static com.acme.core.Money.ZERO;

public class Account extends Entity {
    public String owner;
    private long balance;
    public static final int LIMIT = 10;

    public void deposit(long amount) {
        balance += amount;
    }

    public long getBalance() {
        return balance;
    }

    private void audit() {}

    Ledger ledger() { return new Ledger(); }
}
`

func writeFile(t *testing.T, root, rel, content string) {
	t.Helper()
	full := filepath.Join(root, filepath.FromSlash(rel))
	require.NoError(t, os.MkdirAll(filepath.Dir(full), 0755))
	require.NoError(t, os.WriteFile(full, []byte(content), 0644))
}

func TestParseJava_ExtractsSurface(t *testing.T) {
	unit, err := ParseJava(context.Background(), "src/com/acme/bank/Account.java", []byte(accountSource))
	require.NoError(t, err)

	assert.Equal(t, "com.acme.bank.Account", unit.ID)
	assert.Equal(t, "com.acme.bank", unit.Package)
	assert.Equal(t, []string{"java.util.List", "com.acme.core.Entity", "com.acme.core.Money.ZERO"}, unit.Imports)
	assert.Equal(t, []string{"Account"}, unit.Classes)
	assert.Equal(t, []string{"deposit", "getBalance"}, unit.PublicMethods)
	assert.Equal(t, []string{"LIMIT", "owner"}, unit.PublicFields)
	assert.Contains(t, unit.References, "Ledger")
	assert.Contains(t, unit.References, "Entity")
	assert.NotContains(t, unit.References, "Account")
}

func TestParseJava_InterfaceMethodsArePublic(t *testing.T) {
	src := `package com.acme;
interface Repo { void save(String id); String find(); }`

	unit, err := ParseJava(context.Background(), "Repo.java", []byte(src))
	require.NoError(t, err)
	assert.Equal(t, []string{"find", "save"}, unit.PublicMethods)
}

func TestResolveDependencies(t *testing.T) {
	units := []*models.SourceUnit{
		{ID: "com.acme.bank.Account", Package: "com.acme.bank", Classes: []string{"Account"},
			Imports:    []string{"java.util.List", "com.acme.core.Entity", "com.acme.core.Money.ZERO"},
			References: []string{"Ledger", "Entity"}},
		{ID: "com.acme.bank.Ledger", Package: "com.acme.bank", Classes: []string{"Ledger"}},
		{ID: "com.acme.core.Entity", Package: "com.acme.core", Classes: []string{"Entity"}},
		{ID: "com.acme.core.Money", Package: "com.acme.core", Classes: []string{"Money"}},
		{ID: "com.acme.app.Main", Package: "com.acme.app", Classes: []string{"Main"},
			Imports: []string{"com.acme.core.*"}},
	}

	ResolveDependencies(units)

	assert.Equal(t, []string{"com.acme.bank.Ledger", "com.acme.core.Entity", "com.acme.core.Money"}, units[0].Dependencies)
	assert.Empty(t, units[1].Dependencies)
	assert.Equal(t, []string{"com.acme.core.Entity", "com.acme.core.Money"}, units[4].Dependencies)
}

func TestAnalyze_BuildsPlannableGraph(t *testing.T) {
	root := t.TempDir()
	writeFile(t, root, "src/com/acme/core/Entity.java", "package com.acme.core;\npublic class Entity { public String id; }\n")
	writeFile(t, root, "src/com/acme/bank/Account.java", accountSource)
	writeFile(t, root, "src/com/acme/bank/Ledger.java", "package com.acme.bank;\npublic class Ledger {}\n")
	writeFile(t, root, "build/Generated.java", "package gen;\npublic class Generated {}\n")
	writeFile(t, root, "ignored/Skip.java", "package skip;\npublic class Skip {}\n")
	writeFile(t, root, ".gitignore", "ignored/\n")
	writeFile(t, root, "README.md", "# not java\n")

	a := NewAnalyzer(arbor.NewLogger(), 2)
	graph, err := a.Analyze(context.Background(), root, []string{".java"})
	require.NoError(t, err)
	require.NoError(t, graph.Validate())

	assert.Equal(t, []string{"com.acme.bank.Account", "com.acme.bank.Ledger", "com.acme.core.Entity"}, graph.Nodes)

	plan := planner.NewPlanner(5, nil).Plan(graph)
	assert.Equal(t, "com.acme.bank.Account", plan.MigrationOrder[len(plan.MigrationOrder)-1])
}

func TestAnalyze_MissingRepository(t *testing.T) {
	a := NewAnalyzer(arbor.NewLogger(), 1)
	_, err := a.Analyze(context.Background(), filepath.Join(t.TempDir(), "missing"), nil)
	require.Error(t, err)
}
