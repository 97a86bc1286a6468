package tools

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/JustHereToHelp/HydraMCP/internal/circuit"
	"github.com/JustHereToHelp/HydraMCP/internal/model"
)

// ListModels groups the merged catalog by provider_key and renders one
// section per provider. b.ListModels (SmartBackend) already excludes any
// model whose circuit is open, per spec.md §4.6/§8 property 4. When
// breaker is non-nil, those excluded models are still surfaced in a
// separate "Cooling down" section annotated with their cooldown
// remaining, instead of silently vanishing with no explanation, per
// SPEC_FULL.md's supplemented list_models annotation — they are not
// re-added to the normal catalog.
func ListModels(ctx context.Context, b Backend, breaker *circuit.Breaker) Output {
	models, err := b.ListModels(ctx)
	if err != nil {
		return errorOutput(err)
	}

	byProvider := make(map[string][]model.Info)
	var providers []string
	for _, m := range models {
		if _, ok := byProvider[m.ProviderKey]; !ok {
			providers = append(providers, m.ProviderKey)
		}
		byProvider[m.ProviderKey] = append(byProvider[m.ProviderKey], m)
	}
	sort.Strings(providers)

	var b2 strings.Builder
	for _, p := range providers {
		fmt.Fprintf(&b2, "### %s\n\n", p)
		entries := byProvider[p]
		sort.Slice(entries, func(i, j int) bool { return entries[i].ID < entries[j].ID })
		for _, m := range entries {
			fmt.Fprintf(&b2, "- `%s`", m.ID)
			if m.DisplayName != "" {
				fmt.Fprintf(&b2, " — %s", m.DisplayName)
			}
			b2.WriteString("\n")
		}
		b2.WriteString("\n")
	}

	if len(providers) == 0 {
		b2.WriteString("No models are currently available.\n")
	}

	if breaker != nil {
		if open := breaker.OpenModels(); len(open) > 0 {
			sort.Strings(open)
			b2.WriteString("### Cooling down\n\n")
			for _, id := range open {
				remaining := breaker.CooldownRemaining(id).Round(time.Second)
				fmt.Fprintf(&b2, "- `%s` (cooling down, %s left)\n", id, remaining)
			}
			b2.WriteString("\n")
		}
	}

	return Output{Text: b2.String()}
}
