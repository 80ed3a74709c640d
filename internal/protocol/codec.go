// File: internal/protocol/codec.go

// Package protocol implements the directive codec: the structured-output
// contract between the build agent and the language model. Encoding produces
// the exact textual contract a node's prompt carries; decoding validates raw
// model text into typed directives and fails closed on anything malformed.
package protocol

import (
	"encoding/json"
	"regexp"
	"strings"

	jsoniter "github.com/json-iterator/go"

	"github.com/xkilldash9x/loom/api/schemas"
)

// StartDelimiter and EndDelimiter bound every non-routing directive in raw
// model output. The model is instructed to emit them verbatim; the codec
// strips them before anything reaches the wire.
const (
	StartDelimiter = "___start___"
	EndDelimiter   = "___end___"
)

var fastjson = jsoniter.ConfigCompatibleWithStandardLibrary

var (
	// blockRegex captures the payload between one delimiter pair.
	blockRegex = regexp.MustCompile(`(?s)` + StartDelimiter + `(.*?)` + EndDelimiter)
	// fenceRegex strips a markdown code fence the model sometimes wraps
	// around a block despite instructions.
	fenceRegex = regexp.MustCompile("(?s)^\x60\x60\x60[a-zA-Z]*\\s*(.*?)\\s*\x60\x60\x60$")
)

// ExtractBlocks returns the payloads of all delimited blocks in raw model
// output, in order, with surrounding whitespace and stray markdown fences
// removed.
func ExtractBlocks(raw string) []string {
	matches := blockRegex.FindAllStringSubmatch(raw, -1)
	blocks := make([]string, 0, len(matches))
	for _, m := range matches {
		block := strings.TrimSpace(m[1])
		if fm := fenceRegex.FindStringSubmatch(block); len(fm) > 1 {
			block = strings.TrimSpace(fm[1])
		}
		blocks = append(blocks, block)
	}
	return blocks
}

// Decode validates raw model output against the directive schema for the
// given node kind. It returns exactly one directive for every node except the
// Examiner, which must produce two back-to-back (asset acknowledgment, then
// plan). Missing required fields or malformed JSON are a DecodeError, never a
// partially-filled directive.
func Decode(raw string, kind schemas.NodeKind) ([]schemas.Directive, error) {
	switch kind {
	case schemas.NodeRouter:
		d, err := decodeRouter(raw)
		if err != nil {
			return nil, err
		}
		return []schemas.Directive{d}, nil

	case schemas.NodeExaminer:
		return decodeExaminer(raw)

	case schemas.NodeAssetCollector:
		block, err := singleBlock(raw, kind)
		if err != nil {
			return nil, err
		}
		d, err := decodeAsset(block, kind)
		if err != nil {
			return nil, err
		}
		return []schemas.Directive{d}, nil

	case schemas.NodeFrontendCoder, schemas.NodeBackendCoder:
		block, err := singleBlock(raw, kind)
		if err != nil {
			return nil, err
		}
		d, err := decodeCode(block, kind)
		if err != nil {
			return nil, err
		}
		return []schemas.Directive{d}, nil

	case schemas.NodeTerminalExecutor:
		block, err := singleBlock(raw, kind)
		if err != nil {
			return nil, err
		}
		d, err := decodeTerminal(block, kind)
		if err != nil {
			return nil, err
		}
		return []schemas.Directive{d}, nil

	case schemas.NodeFeatureSuggester:
		block, err := singleBlock(raw, kind)
		if err != nil {
			return nil, err
		}
		d, err := decodeFeatures(block, kind)
		if err != nil {
			return nil, err
		}
		return []schemas.Directive{d}, nil

	default:
		return nil, newDecodeError(kind, raw, "unknown node kind")
	}
}

// decodeRouter handles the one undelimited variant. The Router either emits a
// bare JSON routing object, or a delimited explanation block when it intends
// a terminal, user-facing reply.
func decodeRouter(raw string) (schemas.Directive, error) {
	if candidate, ok := findJSONObject(raw); ok {
		var fields map[string]json.RawMessage
		if err := fastjson.Unmarshal([]byte(candidate), &fields); err == nil {
			if _, hasNext := fields["nextNode"]; hasNext {
				var routing schemas.Routing
				if err := fastjson.Unmarshal([]byte(candidate), &routing); err != nil {
					return nil, newDecodeError(schemas.NodeRouter, raw, "malformed routing object: %v", err)
				}
				if _, hasMsg := fields["userMessage"]; !hasMsg {
					return nil, newDecodeError(schemas.NodeRouter, raw, "routing object missing required field %q", "userMessage")
				}
				// An unknown nextNode is a valid terminal decision, resolved
				// by the orchestrator; a missing one is not.
				return &routing, nil
			}
			if typ, hasType := fields["type"]; hasType && strings.Trim(string(typ), `"`) == string(schemas.DirectiveExplanation) {
				return decodeExplanation(candidate, schemas.NodeRouter)
			}
		}
	}

	// No routing object: fall back to a delimited explanation block.
	blocks := ExtractBlocks(raw)
	if len(blocks) == 1 {
		return decodeExplanation(blocks[0], schemas.NodeRouter)
	}
	return nil, newDecodeError(schemas.NodeRouter, raw, "no routing object and no explanation block found")
}

func decodeExaminer(raw string) ([]schemas.Directive, error) {
	blocks := ExtractBlocks(raw)
	if len(blocks) != 2 {
		return nil, newDecodeError(schemas.NodeExaminer, raw, "expected exactly 2 delimited blocks, found %d", len(blocks))
	}
	asset, err := decodeAsset(blocks[0], schemas.NodeExaminer)
	if err != nil {
		return nil, err
	}
	plan, err := decodePlan(blocks[1], schemas.NodeExaminer)
	if err != nil {
		return nil, err
	}
	return []schemas.Directive{asset, plan}, nil
}

func decodeExplanation(block string, kind schemas.NodeKind) (*schemas.Explanation, error) {
	fields, err := requireFields(block, kind, "type", "data")
	if err != nil {
		return nil, err
	}
	if err := requireType(fields, block, kind, schemas.DirectiveExplanation); err != nil {
		return nil, err
	}
	var d schemas.Explanation
	if err := fastjson.Unmarshal([]byte(block), &d); err != nil {
		return nil, newDecodeError(kind, block, "malformed explanation directive: %v", err)
	}
	d.Role = schemas.RoleAI
	return &d, nil
}

func decodeAsset(block string, kind schemas.NodeKind) (*schemas.Asset, error) {
	fields, err := requireFields(block, kind, "type", "action", "url")
	if err != nil {
		return nil, err
	}
	if err := requireType(fields, block, kind, schemas.DirectiveAsset); err != nil {
		return nil, err
	}
	var d schemas.Asset
	if err := fastjson.Unmarshal([]byte(block), &d); err != nil {
		return nil, newDecodeError(kind, block, "malformed asset directive: %v", err)
	}
	d.Role = schemas.RoleAI
	return &d, nil
}

func decodePlan(block string, kind schemas.NodeKind) (*schemas.Plan, error) {
	fields, err := requireFields(block, kind, "type", "data", "url", "planId")
	if err != nil {
		return nil, err
	}
	if err := requireType(fields, block, kind, schemas.DirectivePlan); err != nil {
		return nil, err
	}
	var d schemas.Plan
	if err := fastjson.Unmarshal([]byte(block), &d); err != nil {
		return nil, newDecodeError(kind, block, "malformed plan directive: %v", err)
	}
	d.Role = schemas.RoleAI
	return &d, nil
}

func decodeCode(block string, kind schemas.NodeKind) (*schemas.Code, error) {
	fields, err := requireFields(block, kind, "type", "file", "code", "nextFile", "isachieved")
	if err != nil {
		return nil, err
	}
	if err := requireType(fields, block, kind, schemas.DirectiveCode); err != nil {
		return nil, err
	}
	var d schemas.Code
	if err := fastjson.Unmarshal([]byte(block), &d); err != nil {
		return nil, newDecodeError(kind, block, "malformed code directive: %v", err)
	}
	if strings.TrimSpace(d.File) == "" {
		return nil, newDecodeError(kind, block, "code directive has empty file path")
	}
	if d.Content == "" {
		return nil, newDecodeError(kind, block, "code directive has empty content")
	}
	d.Role = schemas.RoleAI
	return &d, nil
}

func decodeTerminal(block string, kind schemas.NodeKind) (*schemas.Terminal, error) {
	fields, err := requireFields(block, kind, "type", "command", "isachieved")
	if err != nil {
		return nil, err
	}
	if err := requireType(fields, block, kind, schemas.DirectiveTerminal); err != nil {
		return nil, err
	}
	var d schemas.Terminal
	if err := fastjson.Unmarshal([]byte(block), &d); err != nil {
		return nil, newDecodeError(kind, block, "malformed terminal directive: %v", err)
	}
	if strings.TrimSpace(d.Command) == "" && !d.IsAchieved {
		return nil, newDecodeError(kind, block, "terminal directive has empty command")
	}
	d.Role = schemas.RoleAI
	return &d, nil
}

func decodeFeatures(block string, kind schemas.NodeKind) (*schemas.FeatureSuggestion, error) {
	fields, err := requireFields(block, kind, "type", "data")
	if err != nil {
		return nil, err
	}
	if err := requireType(fields, block, kind, schemas.DirectiveFeatures); err != nil {
		return nil, err
	}
	var d schemas.FeatureSuggestion
	if err := fastjson.Unmarshal([]byte(block), &d); err != nil {
		return nil, newDecodeError(kind, block, "malformed feature suggestion directive: %v", err)
	}
	d.Role = schemas.RoleAI
	return &d, nil
}

// MarshalWire serializes a directive into its client-visible JSON form. The
// role tag is always present; routing directives never reach the wire.
func MarshalWire(d schemas.Directive) ([]byte, error) {
	if d.Kind() == schemas.DirectiveRouting {
		return nil, newDecodeError(schemas.NodeRouter, "", "routing directives are internal and have no wire form")
	}
	return fastjson.Marshal(d)
}

// singleBlock extracts exactly one delimited block or fails.
func singleBlock(raw string, kind schemas.NodeKind) (string, error) {
	blocks := ExtractBlocks(raw)
	if len(blocks) != 1 {
		return "", newDecodeError(kind, raw, "expected exactly 1 delimited block, found %d", len(blocks))
	}
	return blocks[0], nil
}

// requireFields parses a block as a JSON object and verifies every required
// field is present. Presence is checked on the raw object so zero values
// cannot mask an omission.
func requireFields(block string, kind schemas.NodeKind, required ...string) (map[string]json.RawMessage, error) {
	var fields map[string]json.RawMessage
	if err := fastjson.Unmarshal([]byte(block), &fields); err != nil {
		return nil, newDecodeError(kind, block, "block is not a JSON object: %v", err)
	}
	for _, name := range required {
		if _, ok := fields[name]; !ok {
			return nil, newDecodeError(kind, block, "missing required field %q", name)
		}
	}
	return fields, nil
}

func requireType(fields map[string]json.RawMessage, block string, kind schemas.NodeKind, want schemas.DirectiveType) error {
	got := strings.Trim(string(fields["type"]), `"`)
	if got != string(want) {
		return newDecodeError(kind, block, "unexpected directive type %q, want %q", got, want)
	}
	return nil
}

// findJSONObject locates the outermost {...} span in conversational text.
// Models frequently wrap structured output in prose or markdown fences.
func findJSONObject(raw string) (string, bool) {
	raw = strings.TrimSpace(raw)
	first := strings.Index(raw, "{")
	last := strings.LastIndex(raw, "}")
	if first == -1 || last == -1 || last <= first {
		return "", false
	}
	return raw[first : last+1], true
}
