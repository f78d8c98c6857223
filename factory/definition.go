/*
Package factory provides JSON and YAML to Go product definition conversion.

PURPOSE:
  Converts product definition documents into generic.ProductDefinition
  values. This enables product configuration without code changes: a
  product team defines "2 year fixed mortgage" as a document, and the
  factory checks it against the product's manifest and parameter rules.

WHY DOCUMENTS?
  - Non-developers can define products
  - Easy integration with admin UI
  - Version control for product definitions
  - Database storage of definitions

JSON SCHEMA:
  {
    "id": "mortgage-2y-fix",
    "name": "2 year fix",
    "product_id": "mortgage",
    "description": "Fixed then variable rate repayment mortgage",
    "parameters": {
      "denomination": "GBP",
      "principal": 250000,
      "fixed_interest_rate": "0.0425",
      "tiered_interest_rates": {"STANDARD": "0.01"}
    }
  }

  Parameter values may be strings, numbers or booleans. Objects and
  arrays (tiered rates) are stored as compact JSON text.

YAML:
  The same document in YAML. Nested mappings are converted to JSON text
  keeping each scalar exactly as written.

USAGE:
  factory := NewDefinitionFactory()

  def, err := factory.ParseJSON(data)
  def, err := factory.ParseYAML(data)
  def, err := factory.LoadFile("definitions/easy-saver.yaml")

  // From product presets (recommended)
  jsonStr := mortgage.FixedRateJSON("m-fix", "2 year fix", "250000", 300, "0.0425", 24, "0.0525")
  def, err := factory.ParseJSON([]byte(jsonStr))

SEE ALSO:
  - generic/store.go: ProductDefinition
  - generic/product.go: ParameterValidator
  - mortgage/presets.go, lineofcredit/presets.go, deposit/presets.go
*/
package factory

import (
	"bytes"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/warp/product-engine/generic"
	"gopkg.in/yaml.v3"
)

// =============================================================================
// DOCUMENT TYPES
// =============================================================================

// DefinitionDocument is the JSON and YAML representation of a definition.
type DefinitionDocument struct {
	ID          string     `json:"id" yaml:"id"`
	Name        string     `json:"name" yaml:"name"`
	ProductID   string     `json:"product_id" yaml:"product_id"`
	Description string     `json:"description,omitempty" yaml:"description,omitempty"`
	Parameters  Parameters `json:"parameters" yaml:"parameters"`
}

// Parameters flattens every value to the text form products read.
type Parameters map[string]string

func (p *Parameters) UnmarshalJSON(data []byte) error {
	var raw map[string]json.RawMessage
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	out := make(Parameters, len(raw))
	for name, msg := range raw {
		msg = bytes.TrimSpace(msg)
		switch {
		case len(msg) == 0 || string(msg) == "null":
			continue
		case msg[0] == '"':
			var s string
			if err := json.Unmarshal(msg, &s); err != nil {
				return fmt.Errorf("parameter %s: %w", name, err)
			}
			out[name] = s
		case msg[0] == '{' || msg[0] == '[':
			var buf bytes.Buffer
			if err := json.Compact(&buf, msg); err != nil {
				return fmt.Errorf("parameter %s: %w", name, err)
			}
			out[name] = buf.String()
		default:
			// numbers and booleans keep their literal text
			out[name] = string(msg)
		}
	}
	*p = out
	return nil
}

func (p *Parameters) UnmarshalYAML(node *yaml.Node) error {
	if node.Kind != yaml.MappingNode {
		return fmt.Errorf("line %d: parameters must be a mapping", node.Line)
	}
	out := make(Parameters, len(node.Content)/2)
	for i := 0; i+1 < len(node.Content); i += 2 {
		name, value := node.Content[i].Value, node.Content[i+1]
		switch value.Kind {
		case yaml.ScalarNode:
			if value.Tag == "!!null" {
				continue
			}
			out[name] = value.Value
		case yaml.MappingNode, yaml.SequenceNode:
			b, err := json.Marshal(yamlValue(value))
			if err != nil {
				return fmt.Errorf("parameter %s: %w", name, err)
			}
			out[name] = string(b)
		default:
			return fmt.Errorf("line %d: unsupported value for parameter %s", value.Line, name)
		}
	}
	*p = out
	return nil
}

// yamlValue converts a node to plain values, keeping scalars as written so
// decimal rates never pass through float64.
func yamlValue(node *yaml.Node) interface{} {
	switch node.Kind {
	case yaml.MappingNode:
		m := make(map[string]interface{}, len(node.Content)/2)
		for i := 0; i+1 < len(node.Content); i += 2 {
			m[node.Content[i].Value] = yamlValue(node.Content[i+1])
		}
		return m
	case yaml.SequenceNode:
		s := make([]interface{}, 0, len(node.Content))
		for _, item := range node.Content {
			s = append(s, yamlValue(item))
		}
		return s
	case yaml.AliasNode:
		return yamlValue(node.Alias)
	default:
		return node.Value
	}
}

// =============================================================================
// DEFINITION FACTORY
// =============================================================================

// DefinitionFactory converts definition documents to ProductDefinitions.
type DefinitionFactory struct{}

func NewDefinitionFactory() *DefinitionFactory {
	return &DefinitionFactory{}
}

// ParseJSON parses and validates a JSON definition.
func (f *DefinitionFactory) ParseJSON(data []byte) (*generic.ProductDefinition, error) {
	var doc DefinitionDocument
	if err := json.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("failed to parse definition JSON: %w", err)
	}
	return f.FromDocument(doc)
}

// ParseYAML parses and validates a YAML definition.
func (f *DefinitionFactory) ParseYAML(data []byte) (*generic.ProductDefinition, error) {
	var doc DefinitionDocument
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("failed to parse definition YAML: %w", err)
	}
	return f.FromDocument(doc)
}

// LoadFile reads a definition, choosing the format from the extension.
func (f *DefinitionFactory) LoadFile(path string) (*generic.ProductDefinition, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read definition %s: %w", path, err)
	}
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		return f.ParseYAML(data)
	default:
		return f.ParseJSON(data)
	}
}

// FromDocument checks a document against its product: the product must be
// registered, every parameter must be one the manifest declares, and the
// product's own parameter rules must pass.
func (f *DefinitionFactory) FromDocument(doc DefinitionDocument) (*generic.ProductDefinition, error) {
	if strings.TrimSpace(doc.ID) == "" {
		return nil, generic.ConfigError("id", "definition id is required")
	}
	product, err := generic.LookupProduct(generic.ProductID(doc.ProductID))
	if err != nil {
		return nil, err
	}

	declared := make(map[string]bool)
	for _, name := range product.Manifest().ParameterNames() {
		declared[name] = true
	}
	for name := range doc.Parameters {
		if !declared[name] {
			return nil, generic.ConfigError(name, "not a parameter of product %s", product.ID())
		}
	}

	if v, ok := product.(generic.ParameterValidator); ok {
		if err := v.ValidateParameters(doc.Parameters); err != nil {
			return nil, fmt.Errorf("definition %s: %w", doc.ID, err)
		}
	}

	name := doc.Name
	if name == "" {
		name = doc.ID
	}
	params := make(map[string]string, len(doc.Parameters))
	for k, v := range doc.Parameters {
		params[k] = v
	}
	return &generic.ProductDefinition{
		ID:          doc.ID,
		ProductID:   product.ID(),
		Name:        name,
		Description: doc.Description,
		Parameters:  params,
	}, nil
}

// ToDocument converts a definition back to its document form.
func (f *DefinitionFactory) ToDocument(def generic.ProductDefinition) DefinitionDocument {
	return DefinitionDocument{
		ID:          def.ID,
		Name:        def.Name,
		ProductID:   string(def.ProductID),
		Description: def.Description,
		Parameters:  Parameters(def.Parameters),
	}
}
