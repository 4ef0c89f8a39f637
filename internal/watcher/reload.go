package watcher

import (
	"context"
	"sync/atomic"

	"github.com/sirupsen/logrus"

	"circuitsync/internal/loader"
	"circuitsync/internal/logging"
	"circuitsync/internal/service"
)

// PipelineSetter swaps the pipeline used by subsequent passes
type PipelineSetter interface {
	SetPipeline(p *service.Pipeline) error
}

// RuleReloader loads the rule tables from a file and installs them.
// A file that fails to load leaves the current tables in place.
type RuleReloader struct {
	path    string
	target  PipelineSetter
	reloads atomic.Int64
	log     *logrus.Entry
}

// NewRuleReloader creates a reloader for path
func NewRuleReloader(path string, target PipelineSetter) *RuleReloader {
	return &RuleReloader{path: path, target: target, log: logging.For("rules")}
}

// Reload reads the file and installs the resulting pipeline
func (r *RuleReloader) Reload() error {
	rs, err := loader.LoadRules(r.path)
	if err != nil {
		r.log.WithError(err).WithField("path", r.path).Error("Rule reload failed, keeping current tables")
		return err
	}
	for _, w := range rs.Warnings {
		r.log.WithField("path", r.path).Warn(w)
	}
	if err := r.target.SetPipeline(rs.Pipeline()); err != nil {
		r.log.WithError(err).Error("Rule reload rejected")
		return err
	}
	r.reloads.Add(1)
	r.log.WithField("path", r.path).Info("Rule tables reloaded")
	return nil
}

// Reloads returns how many reloads succeeded
func (r *RuleReloader) Reloads() int64 {
	return r.reloads.Load()
}

// Watch reloads on every change until ctx is cancelled
func (r *RuleReloader) Watch(ctx context.Context) error {
	return New(r.path, func() { _ = r.Reload() }).Watch(ctx)
}
