package main

import (
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/neto007/HRM-pipeline/internal/models"
)

func formatPlan(plan *models.MigrationPlan) string {
	var sb strings.Builder
	name := plan.Repository
	if name == "" {
		name = "active repository"
	}
	sb.WriteString(fmt.Sprintf("## Migration plan for %s\n\n", name))
	sb.WriteString(fmt.Sprintf("**Classes:** %d  **Dependencies:** %d\n", plan.Nodes, plan.Edges))
	sb.WriteString(fmt.Sprintf("**Generated:** %s\n\n", plan.GeneratedAt.Format(time.RFC3339)))

	if plan.Cyclic {
		sb.WriteString("### Dependency cycles\n")
		for _, component := range plan.CyclicComponents {
			sb.WriteString("- " + strings.Join(component, " <-> ") + "\n")
		}
		sb.WriteString("\n")
	}

	sb.WriteString("### Recommended batch\n")
	for i, class := range plan.RecommendedBatch {
		sb.WriteString(fmt.Sprintf("%d. %s\n", i+1, class))
	}

	sb.WriteString("\n### Full order\n")
	sb.WriteString(strings.Join(plan.MigrationOrder, ", "))
	sb.WriteString("\n")
	return sb.String()
}

func formatDataset(entries []models.DatasetSummary) string {
	if len(entries) == 0 {
		return "No dataset entries found.\n"
	}

	var sb strings.Builder
	sb.WriteString(fmt.Sprintf("## Dataset (%d entries)\n\n", len(entries)))
	sb.WriteString("| Filename | Source | Status | Reward | Model |\n")
	sb.WriteString("|---|---|---|---|---|\n")
	for _, e := range entries {
		sb.WriteString(fmt.Sprintf("| %s | %s | %s | %.2f | %s |\n", e.Filename, e.SourceFile, e.Status, e.Reward, e.ModelUsed))
	}
	return sb.String()
}

func formatEntry(entry *models.DatasetEntry) string {
	var sb strings.Builder
	sb.WriteString(fmt.Sprintf("## %s\n", entry.Filename))
	sb.WriteString(fmt.Sprintf("**Source:** %s  **Status:** %s  **Target:** %s  **Model:** %s\n\n",
		entry.SourceFile, entry.Status, entry.TargetLang, entry.ModelUsed))

	if entry.Guidance != nil {
		writeGuidance(&sb, entry.Guidance)
	}
	if entry.Reward != nil {
		writeReward(&sb, entry.Reward)
	}

	sb.WriteString("### Output\n```" + entry.TargetLang + "\n")
	sb.WriteString(entry.OutputCode)
	sb.WriteString("\n```\n")
	return sb.String()
}

func formatCheckpoints(checkpoints []models.Checkpoint) string {
	if len(checkpoints) == 0 {
		return "No checkpoints found.\n"
	}

	var sb strings.Builder
	sb.WriteString(fmt.Sprintf("## Checkpoints (%d)\n\n", len(checkpoints)))
	for _, cp := range checkpoints {
		marker := ""
		if cp.IsDefault {
			marker = " (default)"
		}
		state := "valid"
		if !cp.Valid {
			state = "invalid: " + cp.Reason
		}
		sb.WriteString(fmt.Sprintf("- **%s**%s epoch %d, %s\n", cp.Name, marker, cp.Epoch, state))
	}
	return sb.String()
}

func formatTranscription(result *models.TranscribeResult) string {
	var sb strings.Builder
	if result.Guidance != nil {
		writeGuidance(&sb, result.Guidance)
	}
	if result.Reward != nil {
		writeReward(&sb, result.Reward)
	}
	sb.WriteString(fmt.Sprintf("**Attempts:** %d\n\n", result.Attempts))
	sb.WriteString("### Output\n```\n")
	sb.WriteString(result.Output)
	sb.WriteString("\n```\n")
	return sb.String()
}

func writeGuidance(sb *strings.Builder, g *models.Guidance) {
	sb.WriteString("### Guidance\n")
	sb.WriteString(fmt.Sprintf("**Strategy:** %s\n", g.Strategy))
	for _, c := range g.CriticalConcerns {
		sb.WriteString("- concern: " + c + "\n")
	}
	for _, p := range g.RecommendedPatterns {
		sb.WriteString("- pattern: " + p + "\n")
	}
	sb.WriteString("\n")
}

func writeReward(sb *strings.Builder, r *models.RewardScore) {
	sb.WriteString(fmt.Sprintf("### Reward %.2f / %.2f\n", r.Total, r.MaxTotal))
	dims := make([]string, 0, len(r.DimensionScores))
	for d := range r.DimensionScores {
		dims = append(dims, d)
	}
	sort.Strings(dims)
	for _, d := range dims {
		sb.WriteString(fmt.Sprintf("- %s: %.2f\n", d, r.DimensionScores[d]))
	}
	for _, n := range r.Notes {
		sb.WriteString("- note: " + n + "\n")
	}
	sb.WriteString("\n")
}
