package bootstrap

import (
	"context"
	"time"

	"github.com/sirupsen/logrus"

	"circuitsync/internal/config"
	"circuitsync/internal/logging"
)

// Result contains all bootstrap findings
type Result struct {
	Timestamp time.Time     `json:"timestamp"`
	Duration  time.Duration `json:"duration"`
	Evidence  []Evidence    `json:"evidence"`
	Report    Report        `json:"report"`
}

// Run gathers evidence in phases and synthesizes a recommendation
func Run(ctx context.Context, cfg *config.Config) (*Result, error) {
	log := logging.For("bootstrap")
	log.Debug("Starting readiness check")
	start := time.Now()

	evidence := NewEvidenceSet()
	phases := []struct {
		name   string
		detect func() []Evidence
	}{
		{"environment", DetectEnvironment},
		{"tools", func() []Evidence { return DetectTools(cfg) }},
		{"paths", func() []Evidence { return DetectPaths(cfg) }},
		{"credentials", func() []Evidence { return DetectCredentials(cfg) }},
	}
	for _, phase := range phases {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		found := phase.detect()
		evidence.AddAll(found)
		log.WithFields(logrus.Fields{"phase": phase.name, "evidence": len(found)}).Debug("Phase complete")
	}

	report := Synthesize(evidence, cfg)
	result := &Result{
		Timestamp: time.Now(),
		Duration:  time.Since(start),
		Evidence:  evidence.All(),
		Report:    report,
	}

	log.WithFields(logrus.Fields{
		"mode":       report.Mode,
		"confidence": report.Confidence,
		"problems":   len(report.Problems),
		"duration":   result.Duration,
	}).Info("Readiness check complete")
	for _, w := range report.Warnings {
		log.Warn(w)
	}

	return result, nil
}
