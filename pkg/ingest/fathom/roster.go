package fathom

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	pferrors "github.com/otherjamesbrown/fathom-etl/pkg/errors"
)

// rosterFile is the document shape of a roster file.
type rosterFile struct {
	Speakers []Speaker `yaml:"speakers_internal"`
}

// LoadRoster reads a speaker roster from a YAML or JSON file. The file holds
// either {"speakers_internal": [...]} or a bare list of speakers.
func LoadRoster(path string) ([]Speaker, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read roster %s: %w", path, err)
	}
	speakers, err := ParseRoster(data)
	if err != nil {
		return nil, fmt.Errorf("roster %s: %w", path, err)
	}
	return speakers, nil
}

// ParseRoster decodes roster bytes. JSON is accepted as YAML.
func ParseRoster(data []byte) ([]Speaker, error) {
	var root yaml.Node
	if err := yaml.Unmarshal(data, &root); err != nil {
		return nil, fmt.Errorf("%w: decode roster: %v", pferrors.ErrValidation, err)
	}
	if len(root.Content) == 0 {
		return nil, nil
	}

	var speakers []Speaker
	switch node := root.Content[0]; node.Kind {
	case yaml.SequenceNode:
		if err := node.Decode(&speakers); err != nil {
			return nil, fmt.Errorf("%w: decode roster: %v", pferrors.ErrValidation, err)
		}
	case yaml.MappingNode:
		var rf rosterFile
		if err := node.Decode(&rf); err != nil {
			return nil, fmt.Errorf("%w: decode roster: %v", pferrors.ErrValidation, err)
		}
		speakers = rf.Speakers
	default:
		return nil, fmt.Errorf("%w: roster must be a list or a mapping", pferrors.ErrValidation)
	}

	for i, s := range speakers {
		if s.Name == "" || s.Email == "" {
			return nil, fmt.Errorf("%w: roster entry %d: name and email are required", pferrors.ErrValidation, i+1)
		}
	}
	return speakers, nil
}
