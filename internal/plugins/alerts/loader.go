package alerts

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"

	"gopkg.in/yaml.v3"
)

// rulesFile is the top level of an ALERT_RULES_FILE document:
//
//	rules:
//	  - id: 6f1c2a4e-0d3b-4c55-9f0e-2b7c1d8e9a10
//	    name: Admin deleted a post
//	    status: enabled
//	    groups:
//	      - {index: 0, relation: and}
//	      - {index: 1, parent: 0, relation: or}
//	    triggers:
//	      - {group: 0, type: connector, operator: "=", value: posts}
//	      - {group: 1, type: action, operator: in, value: [trashed, deleted]}
//	    actions:
//	      - type: email
//	        params: {emails: ops@example.com, subject: "%%summary%%", message: "%%author%% at %%created%%"}
type rulesFile struct {
	Rules []Rule `yaml:"rules"`
}

// LoadRulesFile reads and compiles rules from a YAML file. Every rule must
// carry an ID so re-seeding replaces rather than duplicates it.
func LoadRulesFile(path string) ([]Rule, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading rules file: %w", err)
	}
	return ParseRules(data)
}

// ParseRules decodes and validates a YAML rules document.
func ParseRules(data []byte) ([]Rule, error) {
	var doc rulesFile
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(&doc); err != nil {
		if errors.Is(err, io.EOF) {
			return nil, nil
		}
		return nil, fmt.Errorf("parsing rules file: %w", err)
	}

	seen := make(map[string]bool, len(doc.Rules))
	for i := range doc.Rules {
		rule := &doc.Rules[i]
		if rule.ID == "" {
			return nil, fmt.Errorf("rule %d (%q) has no id", i, rule.Name)
		}
		if seen[rule.ID] {
			return nil, fmt.Errorf("rule id %s appears more than once", rule.ID)
		}
		seen[rule.ID] = true
		if rule.Status == "" {
			rule.Status = StatusEnabled
		}
		if _, err := Compile(rule); err != nil {
			return nil, fmt.Errorf("rule %s: %w", rule.ID, err)
		}
	}
	return doc.Rules, nil
}
