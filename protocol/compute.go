package protocol

import (
	"context"
	"errors"
	"fmt"
	"log"

	"github.com/sarchlab/radarctl/fault"
	"github.com/sarchlab/radarctl/pipeline"
	"github.com/sarchlab/radarctl/stage"
)

// Pipeline is what the compute core drives.
type Pipeline interface {
	ConfigureAll(mode string, params stage.StaticParams) error
	RunOneFrame(ctx context.Context) (*pipeline.Result, error)
}

// Decoder turns a configuration blob into a mode and its parameters.
type Decoder func(blob []byte) (mode string, params stage.StaticParams, err error)

// Stopper is the frame-driven side of the compute core. It is stopped when
// the core leaves Ready and resumed when a configuration is applied.
type Stopper interface {
	Stop()
	Resume()
}

// ComputeConfig holds the collaborators of a compute core.
type ComputeConfig struct {
	Link     *Endpoint
	Shared   *Shared
	Pipeline Pipeline
	Decode   Decoder
	Frames   Stopper
	Logger   *log.Logger
}

// NewComputeCore creates the state machine of the compute core.
func NewComputeCore(name string, cfg ComputeConfig) *Core {
	if cfg.Link == nil || cfg.Shared == nil || cfg.Pipeline == nil ||
		cfg.Decode == nil {
		panic("compute core needs a link, shared memory, a pipeline, " +
			"and a decoder")
	}

	var c *Core

	actions := map[Action]ActionFunc{
		ActNoOp: func(context.Context, Message) error { return nil },
		ActApplyConfig: func(ctx context.Context, _ Message) error {
			return applyConfig(ctx, c, cfg)
		},
		ActExecuteOnce: func(ctx context.Context, _ Message) error {
			return executeOnce(ctx, c, cfg)
		},
		ActStop: func(context.Context, Message) error {
			if cfg.Frames != nil {
				cfg.Frames.Stop()
			}

			return nil
		},
	}

	c = NewCore(name, ComputeTable(), actions, cfg.Link, cfg.Logger)

	return c
}

func applyConfig(ctx context.Context, c *Core, cfg ComputeConfig) error {
	blob := cfg.Shared.Config()

	mode, params, err := cfg.Decode(blob)
	if err != nil {
		return fmt.Errorf("decode configuration: %w", err)
	}

	err = cfg.Pipeline.ConfigureAll(mode, params)
	if err != nil {
		return err
	}

	if cfg.Frames != nil {
		cfg.Frames.Resume()
	}

	cfg.Shared.inFlight.Add(-1)

	return c.reply(ctx, ConfigDone, 0)
}

func executeOnce(ctx context.Context, c *Core, cfg ComputeConfig) error {
	result, err := cfg.Pipeline.RunOneFrame(ctx)
	if errors.Is(err, fault.ErrStageProcess) {
		return c.reply(ctx, ResultReady, NoResult)
	}

	if err != nil {
		return err
	}

	token := cfg.Shared.Store(result)

	return c.reply(ctx, ResultReady, token)
}
