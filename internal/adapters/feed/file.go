package feed

import (
	"context"
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/bauman-code-tournament/leaderboard/internal/domain/model"
)

// fileFeed is the on-disk layout. A bare list of metrics is accepted too.
type fileFeed struct {
	Metrics []WireMetric `yaml:"metrics"`
}

// FileSource re-reads a YAML (or JSON) metrics file on every fetch, so an
// operator can edit results by hand during a contest.
type FileSource struct {
	path string
}

// NewFileSource creates a source reading path.
func NewFileSource(path string) *FileSource {
	return &FileSource{path: path}
}

// Name identifies the source in logs and metrics.
func (s *FileSource) Name() string { return "file" }

// Fetch reads and decodes the file.
func (s *FileSource) Fetch(ctx context.Context) ([]model.ParticipantMetric, error) {
	if err := ctx.Err(); err != nil {
		return nil, unavailable(s.Name(), err)
	}
	data, err := os.ReadFile(s.path)
	if err != nil {
		return nil, unavailable(s.Name(), err)
	}
	wire, err := parseFileFeed(data)
	if err != nil {
		return nil, unavailable(s.Name(), fmt.Errorf("parse %s: %w", s.path, err))
	}
	return FromWire(wire), nil
}

func parseFileFeed(data []byte) ([]WireMetric, error) {
	var node yaml.Node
	if err := yaml.Unmarshal(data, &node); err != nil {
		return nil, err
	}
	if len(node.Content) == 0 {
		return nil, nil
	}
	root := node.Content[0]
	if root.Kind == yaml.SequenceNode {
		var list []WireMetric
		if err := root.Decode(&list); err != nil {
			return nil, err
		}
		return list, nil
	}
	var doc fileFeed
	if err := root.Decode(&doc); err != nil {
		return nil, err
	}
	return doc.Metrics, nil
}
