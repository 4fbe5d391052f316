// Package janitor runs cron-scheduled maintenance for a long-lived proxy:
// compacting idle session entries out of the buffer store and pruning old
// journal rows. Neither task touches pending text.
package janitor

import (
	"fmt"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/HyphaGroup/demitasse/internal/debounce"
	"github.com/HyphaGroup/demitasse/internal/journal"
	"github.com/HyphaGroup/demitasse/internal/logger"
)

// cronParser accepts standard 5-field cron (minute hour day month weekday)
var cronParser = cron.NewParser(cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow)

// ValidateSpec checks a cron expression
func ValidateSpec(spec string) error {
	if _, err := cronParser.Parse(spec); err != nil {
		return fmt.Errorf("invalid cron expression %q: %w", spec, err)
	}
	return nil
}

// Config holds janitor settings
type Config struct {
	Spec      string           // cron expression for maintenance runs
	Store     *debounce.Store  // buffer store to compact
	Journal   *journal.Journal // optional journal to prune
	Retention time.Duration    // journal retention window
}

// Janitor owns the cron scheduler
type Janitor struct {
	cfg Config
	c   *cron.Cron
}

// New creates a janitor; Start validates the spec and begins scheduling
func New(cfg Config) *Janitor {
	return &Janitor{cfg: cfg}
}

// Start schedules the maintenance job
func (jn *Janitor) Start() error {
	if err := ValidateSpec(jn.cfg.Spec); err != nil {
		return err
	}

	jn.c = cron.New(cron.WithParser(cronParser))
	if _, err := jn.c.AddFunc(jn.cfg.Spec, jn.run); err != nil {
		return fmt.Errorf("failed to schedule maintenance: %w", err)
	}
	jn.c.Start()

	logger.Info("janitor started", "spec", jn.cfg.Spec, "retention", jn.cfg.Retention)
	return nil
}

// Stop halts scheduling and waits for a running job to finish
func (jn *Janitor) Stop() {
	if jn.c != nil {
		<-jn.c.Stop().Done()
	}
}

// run performs one maintenance pass
func (jn *Janitor) run() {
	if jn.cfg.Store != nil {
		if removed := jn.cfg.Store.Compact(); removed > 0 {
			logger.Info("compacted idle sessions", "removed", removed)
		}
	}

	if jn.cfg.Journal != nil && jn.cfg.Retention > 0 {
		pruned, err := jn.cfg.Journal.Prune(jn.cfg.Retention)
		if err != nil {
			logger.Error("journal prune failed", "error", err)
		} else if pruned > 0 {
			logger.Info("pruned journal", "rows", pruned)
		}
	}
}
