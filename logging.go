package audiograph

import (
	"time"

	"github.com/joeycumines/go-catrate"
	"github.com/joeycumines/logiface"
)

// Log categories, set as the "category" field of every entry.
const (
	logCategoryCommand = `command`
	logCategoryRender  = `render`
	logCategoryUpdate  = `update`
	logCategoryLeak    = `leak`
	logCategoryOutput  = `output`
)

// graphLogger wraps the optional logger. Entries emitted from the render path
// go through allow, which applies per-category rate limits.
type graphLogger struct {
	logger  *logiface.Logger[logiface.Event]
	limiter *catrate.Limiter
}

func newGraphLogger(logger *logiface.Logger[logiface.Event], rates map[time.Duration]int) *graphLogger {
	x := &graphLogger{logger: logger}
	if logger != nil && len(rates) != 0 {
		x.limiter = catrate.NewLimiter(rates)
	}
	return x
}

func (x *graphLogger) enabled() bool {
	return x != nil && x.logger != nil
}

// allow reports whether an entry for category may be written now.
func (x *graphLogger) allow(category string) bool {
	if !x.enabled() {
		return false
	}
	if x.limiter == nil {
		return true
	}
	_, ok := x.limiter.Allow(category)
	return ok
}

func (x *graphLogger) commandFailed(err *CommandError) {
	if !x.allow(logCategoryCommand) {
		return
	}
	b := x.logger.Warning().
		Str(`category`, logCategoryCommand).
		Str(`op`, err.Op).
		Err(err.Err)
	if err.Node.Valid() {
		b = b.Uint64(`node`, uint64(err.Node.Index)).
			Uint64(`generation`, uint64(err.Node.Generation))
	}
	b.Log(`command failed validation`)
}

func (x *graphLogger) overrun(quantum uint64, elapsed, budget time.Duration) {
	if !x.allow(logCategoryRender) {
		return
	}
	x.logger.Warning().
		Str(`category`, logCategoryRender).
		Uint64(`quantum`, quantum).
		Dur(`elapsed`, elapsed).
		Dur(`budget`, budget).
		Log(`render quantum overran its budget`)
}

func (x *graphLogger) updateFailed(node NodeHandle, err error) {
	if !x.allow(logCategoryUpdate) {
		return
	}
	x.logger.Warning().
		Str(`category`, logCategoryUpdate).
		Uint64(`node`, uint64(node.Index)).
		Err(err).
		Log(`update request failed`)
}

func (x *graphLogger) leaked(r leakRecord, collected bool) {
	if !x.enabled() {
		return
	}
	x.logger.Warning().
		Str(`category`, logCategoryLeak).
		Str(`kind`, r.kind.String()).
		Uint64(`node`, uint64(r.node.Index)).
		Int(`bytes`, r.size).
		Bool(`collected`, collected).
		Log(`allocation outstanding at dispose`)
}

func (x *graphLogger) outputError(op string, err error) {
	if !x.enabled() {
		return
	}
	x.logger.Err().
		Str(`category`, logCategoryOutput).
		Str(`op`, op).
		Err(err).
		Log(`output driver failed`)
}

func (x *graphLogger) disposed(quanta uint64, nodes, connections int) {
	if !x.enabled() {
		return
	}
	x.logger.Info().
		Str(`category`, logCategoryRender).
		Uint64(`quanta`, quanta).
		Int(`nodes`, nodes).
		Int(`connections`, connections).
		Log(`graph disposed`)
}
