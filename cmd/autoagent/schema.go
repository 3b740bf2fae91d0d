package main

import (
	"encoding/json"
	"fmt"
	"sort"
	"strings"

	"github.com/invopop/jsonschema"
	"github.com/jingkaihe/autonomous-agent/pkg/closedloop"
	"github.com/jingkaihe/autonomous-agent/pkg/integration"
	"github.com/jingkaihe/autonomous-agent/pkg/reflexion"
	"github.com/jingkaihe/autonomous-agent/pkg/skills"
	"github.com/jingkaihe/autonomous-agent/pkg/swarm"
	"github.com/jingkaihe/autonomous-agent/pkg/tracker"
	"github.com/jingkaihe/autonomous-agent/pkg/usage"
	"github.com/pkg/errors"
	"github.com/spf13/cobra"
)

// schemaKinds maps each persisted document kind to a zero value of its type
var schemaKinds = map[string]any{
	"session":        &tracker.Session{},
	"summary":        &tracker.Summary{},
	"loop":           &closedloop.Loop{},
	"fix":            &reflexion.Fix{},
	"reflection":     &reflexion.Reflection{},
	"integration":    &integration.Report{},
	"usage":          &usage.Record{},
	"skill-registry": &skills.Registry{},
	"agent-registry": &swarm.Registry{},
	"repair-report":  &skills.Report{},
	"config":         &AppConfig{},
}

func schemaKindNames() []string {
	names := make([]string, 0, len(schemaKinds))
	for name := range schemaKinds {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Schema returns the JSON schema of a document kind
func Schema(kind string) (*jsonschema.Schema, error) {
	v, ok := schemaKinds[kind]
	if !ok {
		return nil, errors.Errorf("unknown schema kind %q, expected one of: %s", kind, strings.Join(schemaKindNames(), ", "))
	}
	reflector := jsonschema.Reflector{
		DoNotReference: true,
	}
	return reflector.Reflect(v), nil
}

func newSchemaCmd() *cobra.Command {
	return &cobra.Command{
		Use:       "schema <kind>",
		Short:     "Print the JSON schema of a runtime document",
		Long:      "Print the JSON schema of a runtime document. Kinds: " + strings.Join(schemaKindNames(), ", "),
		Args:      cobra.ExactArgs(1),
		ValidArgs: schemaKindNames(),
		RunE: func(cmd *cobra.Command, args []string) error {
			schema, err := Schema(args[0])
			if err != nil {
				return err
			}
			out, err := json.MarshalIndent(schema, "", "  ")
			if err != nil {
				return errors.Wrap(err, "failed to marshal schema")
			}
			fmt.Fprintln(cmd.OutOrStdout(), string(out))
			return nil
		},
	}
}
