package service

import (
	"errors"

	"circuitsync/internal/classify"
	"circuitsync/internal/diff"
	"circuitsync/internal/normalize"
	"circuitsync/internal/tolerance"
	"circuitsync/internal/validate"
)

// Pipeline bundles the pure stages of a pass. A pass loads the pipeline once,
// so a rule reload never splits a pass across two rule sets.
type Pipeline struct {
	Normalizer *normalize.Normalizer
	Differ     *diff.Engine
	Filter     *tolerance.Filter
	Classifier *classify.Classifier
	// Validator is optional; nil runs no checks
	Validator *validate.Validator
}

// DefaultPipeline uses the built-in vendor tables
func DefaultPipeline() (*Pipeline, error) {
	table, err := tolerance.DefaultTable()
	if err != nil {
		return nil, err
	}
	checks, err := validate.DefaultTable()
	if err != nil {
		return nil, err
	}
	return &Pipeline{
		Normalizer: normalize.New(nil),
		Differ:     diff.New(diff.Options{}),
		Filter:     tolerance.New(table),
		Classifier: classify.New(nil),
		Validator:  validate.New(checks),
	}, nil
}

func (p *Pipeline) validate() error {
	if p == nil || p.Normalizer == nil || p.Differ == nil || p.Filter == nil || p.Classifier == nil {
		return errors.New("pipeline is missing a stage")
	}
	return nil
}
