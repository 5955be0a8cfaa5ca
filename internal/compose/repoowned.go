package compose

import (
	"fmt"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"
)

// materializeRepoOwned transforms a repo's own preview compose file: it
// overwrites the app service's ports with the host's allocation and layers
// on env/env_file/startup_commands from preview-config.yml, while leaving
// every other key the repo wrote untouched. It operates on the raw
// yaml.Node tree rather than a typed struct so unknown top-level keys
// (networks, volumes, other services) survive the round trip.
func materializeRepoOwned(in Input, path string) (string, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return "", fmt.Errorf("compose: reading repo-owned compose file: %w", err)
	}

	var doc yaml.Node
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return "", fmt.Errorf("compose: parsing repo-owned compose file: %w", err)
	}
	if len(doc.Content) == 0 {
		return "", fmt.Errorf("compose: repo-owned compose file is empty")
	}

	root := doc.Content[0]
	if root.Kind != yaml.MappingNode {
		return "", fmt.Errorf("compose: repo-owned compose file must be a mapping")
	}

	services := mappingGet(root, "services")
	if services == nil || services.Kind != yaml.MappingNode {
		return "", fmt.Errorf("compose: repo-owned compose file has no services mapping")
	}

	app := mappingGet(services, "app")
	if app == nil || app.Kind != yaml.MappingNode {
		return "", fmt.Errorf("compose: repo-owned compose file has no app service")
	}

	mappingSet(app, "ports", sequenceNode(fmt.Sprintf("%d:%d", in.ExposedAppPort, in.AppPort)))
	applyAppOverridesNode(app, in)

	out, err := yaml.Marshal(&doc)
	if err != nil {
		return "", fmt.Errorf("compose: serializing generated compose file: %w", err)
	}

	outPath := filepath.Join(in.WorkDir, generatedComposeName)
	if err := writeFileAtomic(outPath, out, 0644); err != nil {
		return "", err
	}
	return outPath, nil
}

func applyAppOverridesNode(app *yaml.Node, in Input) {
	items := stringSequence(mappingGet(app, "environment"))
	items = append(items, fmt.Sprintf("%s=%d", in.AppPortEnv, in.AppPort))
	items = append(items, in.Env...)
	mappingSet(app, "environment", sequenceNode(items...))

	if in.EnvFile != "" {
		mappingSet(app, "env_file", sequenceNode(in.EnvFile))
	}

	if entrypoint := wrappedEntrypoint(in.StartupCommands); entrypoint != nil {
		mappingSet(app, "entrypoint", sequenceNode(entrypoint...))
		mappingSet(app, "command", sequenceNode(defaultProcess(in)...))
	}
}

func stringSequence(node *yaml.Node) []string {
	if node == nil || node.Kind != yaml.SequenceNode {
		return nil
	}
	out := make([]string, 0, len(node.Content))
	for _, c := range node.Content {
		out = append(out, c.Value)
	}
	return out
}

// mappingGet returns the value node for key in mapping m, or nil.
func mappingGet(m *yaml.Node, key string) *yaml.Node {
	for i := 0; i+1 < len(m.Content); i += 2 {
		if m.Content[i].Value == key {
			return m.Content[i+1]
		}
	}
	return nil
}

// mappingSet overwrites key's value in m if present, otherwise appends it.
func mappingSet(m *yaml.Node, key string, value *yaml.Node) {
	for i := 0; i+1 < len(m.Content); i += 2 {
		if m.Content[i].Value == key {
			m.Content[i+1] = value
			return
		}
	}
	m.Content = append(m.Content, &yaml.Node{Kind: yaml.ScalarNode, Tag: "!!str", Value: key}, value)
}

func scalarNode(v string) *yaml.Node {
	return &yaml.Node{Kind: yaml.ScalarNode, Tag: "!!str", Value: v}
}

func sequenceNode(items ...string) *yaml.Node {
	n := &yaml.Node{Kind: yaml.SequenceNode, Tag: "!!seq"}
	for _, it := range items {
		n.Content = append(n.Content, scalarNode(it))
	}
	return n
}
