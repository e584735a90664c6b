package preset

// BundledPresets returns the six default export presets (spec.md
// §3.5), each marked read_only+immutable. Direct "update" calls on
// these redirect to a protected clone (see Registry.Update).
func BundledPresets() map[string]*Preset {
	protect := func(p *Preset) *Preset {
		p.Meta.ReadOnly = true
		p.Meta.Immutable = true
		return p
	}

	unified := protect(&Preset{
		Meta: Meta{Title: "Context: unified JSON", Usage: "export --preset=context-unified"},
		Settings: Settings{
			Destination: Destination{Format: "json", Response: true},
			Options:     Options{MissingPayload: "empty"},
		},
		Selection: Selection{Projects: []string{"${project}"}},
		Templates: Templates{Root: "{projects}", Entity: "{record.payload}"},
	})

	jsonl := protect(&Preset{
		Meta: Meta{Title: "Context: JSON lines", Usage: "export --preset=context-jsonl"},
		Settings: Settings{
			Destination: Destination{Format: "jsonl", Response: true},
			Options:     Options{MissingPayload: "skip"},
		},
		Selection: Selection{Projects: []string{"${project}"}},
		Templates: Templates{Root: "{entities}", Entity: "{record.payload}"},
	})

	mdUnified := protect(&Preset{
		Meta: Meta{Title: "Context: unified markdown", Usage: "export --preset=context-markdown-unified"},
		Settings: Settings{
			Destination: Destination{Format: "markdown", Response: true, NestChildren: true},
			Options:     Options{MissingPayload: "empty"},
		},
		Selection: Selection{Projects: []string{"${project}"}},
		Templates: Templates{
			Root:    "# ${project}\n\n{entities}",
			Entity:  "## {entity}\n\n{record.payload}\n",
			Project: "# ${project}\n\n{entities}",
		},
	})

	mdSlim := protect(&Preset{
		Meta: Meta{Title: "Context: slim markdown", Usage: "export --preset=context-markdown-slim"},
		Settings: Settings{
			Destination: Destination{Format: "markdown", Response: true},
			Transform:   Transform{Blacklist: []string{"meta", "timestamps"}},
			Options:     Options{MissingPayload: "skip"},
		},
		Selection: Selection{Projects: []string{"${project}"}},
		Templates: Templates{Root: "{entities}", Entity: "### {entity}\n{record.payload}\n"},
	})

	mdPlain := protect(&Preset{
		Meta: Meta{Title: "Context: plain markdown", Usage: "export --preset=context-markdown-plain"},
		Settings: Settings{
			Destination: Destination{Format: "markdown", Response: true},
			Options:     Options{MissingPayload: "skip"},
		},
		Selection: Selection{Projects: []string{"${project}"}},
		Templates: Templates{Root: "{entities}", Entity: "{record.payload}\n"},
	})

	textPlain := protect(&Preset{
		Meta: Meta{Title: "Context: plain text", Usage: "export --preset=context-text-plain"},
		Settings: Settings{
			Destination: Destination{Format: "text", Response: true},
			Options:     Options{MissingPayload: "skip"},
		},
		Selection: Selection{Projects: []string{"${project}"}},
		Templates: Templates{Root: "{entities}", Entity: "{entity}: {record.payload}"},
	})

	return map[string]*Preset{
		"context-unified":           unified,
		"context-jsonl":             jsonl,
		"context-markdown-unified":  mdUnified,
		"context-markdown-slim":     mdSlim,
		"context-markdown-plain":    mdPlain,
		"context-text-plain":        textPlain,
	}
}
