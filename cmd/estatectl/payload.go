package main

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"

	"estatecore/internal/core"
	"estatecore/pkg/domain"
)

// readPayload loads a payload document from path, or from stdin when path
// is "-". YAML documents are converted to JSON before parsing so both
// formats share one set of payload rules.
func readPayload(path string, stdin io.Reader) (core.Payload, error) {
	var (
		raw []byte
		err error
	)
	if path == "-" {
		raw, err = io.ReadAll(stdin)
	} else {
		raw, err = os.ReadFile(path)
	}
	if err != nil {
		return nil, fmt.Errorf("read payload: %w", err)
	}
	if isYAML(path, raw) {
		raw, err = yamlToJSON(raw)
		if err != nil {
			return nil, err
		}
	}
	return domain.ParsePayload(raw)
}

func isYAML(path string, raw []byte) bool {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		return true
	case ".json":
		return false
	}
	trimmed := bytes.TrimSpace(raw)
	return len(trimmed) > 0 && trimmed[0] != '{'
}

func yamlToJSON(raw []byte) ([]byte, error) {
	var doc map[string]any
	if err := yaml.Unmarshal(raw, &doc); err != nil {
		return nil, domain.ParameterError{Field: "payload", Reason: fmt.Sprintf("invalid YAML: %v", err)}
	}
	if doc == nil {
		return nil, domain.ParameterError{Field: "payload", Reason: "empty document"}
	}
	out, err := json.Marshal(doc)
	if err != nil {
		return nil, domain.ParameterError{Field: "payload", Reason: fmt.Sprintf("YAML document is not JSON compatible: %v", err)}
	}
	return out, nil
}
