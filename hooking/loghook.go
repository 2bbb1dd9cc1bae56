package hooking

import (
	"fmt"
	"log"
)

// A LogHook prints every hook event it receives to a logger. Positions can be
// filtered so that only the interesting events are printed.
type LogHook struct {
	*log.Logger

	positions map[*HookPos]bool
}

// NewLogHook creates a LogHook that writes to logger. If no position is
// given, all positions are logged.
func NewLogHook(logger *log.Logger, positions ...*HookPos) *LogHook {
	h := &LogHook{
		Logger:    logger,
		positions: make(map[*HookPos]bool),
	}

	for _, p := range positions {
		h.positions[p] = true
	}

	return h
}

// Func prints the hook context.
func (h *LogHook) Func(ctx HookCtx) {
	if len(h.positions) > 0 && !h.positions[ctx.Pos] {
		return
	}

	where := "?"
	if named, ok := ctx.Domain.(Named); ok {
		where = named.Name()
	}

	msg := fmt.Sprintf("[%s] %s", where, ctx.Pos.Name)
	if ctx.Item != nil {
		msg += fmt.Sprintf(" item=%v", ctx.Item)
	}

	if ctx.Detail != nil {
		msg += fmt.Sprintf(" detail=%v", ctx.Detail)
	}

	h.Println(msg)
}
