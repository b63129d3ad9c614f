package recall

import (
	"embed"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/santhosh-tekuri/jsonschema/v5"
)

//go:embed schemas/*.json
var schemaFS embed.FS

const schemaBaseURL = "https://smriti.local/schemas/"

var (
	addMemorySchema = mustCompile("add_memory.json")
	askSchema       = mustCompile("ask.json")
)

func mustCompile(name string) *jsonschema.Schema {
	raw, err := schemaFS.ReadFile("schemas/" + name)
	if err != nil {
		panic(fmt.Sprintf("recall: read schema %s: %v", name, err))
	}
	return jsonschema.MustCompileString(schemaBaseURL+name, string(raw))
}

// ParseAddMemory validates body against the add-memory schema and decodes
// it. Text is trimmed and must not be blank.
func ParseAddMemory(body []byte) (*AddMemoryRequest, error) {
	if err := validate(addMemorySchema, body); err != nil {
		return nil, err
	}
	var req AddMemoryRequest
	if err := json.Unmarshal(body, &req); err != nil {
		return nil, fmt.Errorf("add-memory parse: %w", err)
	}
	req.Text = strings.TrimSpace(req.Text)
	if req.Text == "" {
		return nil, fmt.Errorf("text must not be blank")
	}
	return &req, nil
}

// ParseAsk validates body against the ask schema and decodes it.
func ParseAsk(body []byte) (*AskRequest, error) {
	if err := validate(askSchema, body); err != nil {
		return nil, err
	}
	var req AskRequest
	if err := json.Unmarshal(body, &req); err != nil {
		return nil, fmt.Errorf("ask parse: %w", err)
	}
	req.Question = strings.TrimSpace(req.Question)
	if req.Question == "" {
		return nil, fmt.Errorf("question must not be blank")
	}
	return &req, nil
}

func validate(schema *jsonschema.Schema, body []byte) error {
	var doc interface{}
	if err := json.Unmarshal(body, &doc); err != nil {
		return fmt.Errorf("invalid JSON: %w", err)
	}
	if err := schema.Validate(doc); err != nil {
		return fmt.Errorf("schema: %w", err)
	}
	return nil
}
