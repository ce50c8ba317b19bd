package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/goccy/go-json"
	"github.com/urfave/cli/v3"

	"github.com/samcharles93/framestep/internal/logger"
	"github.com/samcharles93/framestep/internal/session"
	"github.com/samcharles93/framestep/pkg/frame"
)

type runOptions struct {
	backend     string
	maxTokens   int64
	prompt      string
	eos         int64
	yieldEvery  int64
	refuseAfter int64
	rate        float64
	burst       int64
	output      string
	timeout     time.Duration

	vocab       int64
	seed        int64
	temperature float64
	topK        int64
	topP        float64
}

func runFlags(o *runOptions) []cli.Flag {
	return []cli.Flag{
		&cli.StringFlag{
			Name:        "backend",
			Aliases:     []string{"b"},
			Usage:       "stepper backend (noop, echo, sample)",
			Value:       session.BackendNoop,
			Destination: &o.backend,
		},
		&cli.Int64Flag{
			Name:        "max-tokens",
			Aliases:     []string{"n"},
			Usage:       "tokens to generate before finishing",
			Value:       8,
			Destination: &o.maxTokens,
		},
		&cli.StringFlag{
			Name:        "prompt",
			Aliases:     []string{"p"},
			Usage:       "comma separated prompt token ids (echo and sample backends)",
			Destination: &o.prompt,
		},
		&cli.Int64Flag{
			Name:        "eos",
			Usage:       "token id that ends the run (echo and sample backends, -1 = none)",
			Value:       -1,
			Destination: &o.eos,
		},
		&cli.Int64Flag{
			Name:        "yield-every",
			Usage:       "yield on every Nth scheduling decision (0 = never)",
			Destination: &o.yieldEvery,
		},
		&cli.Int64Flag{
			Name:        "refuse-after",
			Usage:       "cancel the frame once the cursor reaches this position (0 = never)",
			Destination: &o.refuseAfter,
		},
		&cli.Float64Flag{
			Name:        "rate",
			Usage:       "allowed steps per second (0 = unlimited)",
			Destination: &o.rate,
		},
		&cli.Int64Flag{
			Name:        "burst",
			Usage:       "rate limiter burst",
			Value:       1,
			Destination: &o.burst,
		},
		&cli.StringFlag{
			Name:        "output",
			Aliases:     []string{"o"},
			Usage:       "step output format (text, json)",
			Value:       "text",
			Destination: &o.output,
		},
		&cli.DurationFlag{
			Name:        "timeout",
			Usage:       "cancel the frame after this long (0 = no limit)",
			Destination: &o.timeout,
		},
		&cli.Int64Flag{
			Name:        "vocab",
			Usage:       "sample backend vocabulary size (0 = default)",
			Destination: &o.vocab,
		},
		&cli.Int64Flag{
			Name:        "seed",
			Usage:       "sample backend RNG seed",
			Destination: &o.seed,
		},
		&cli.Float64Flag{
			Name:        "temperature",
			Aliases:     []string{"temp"},
			Usage:       "sample backend temperature (0 = greedy)",
			Destination: &o.temperature,
		},
		&cli.Int64Flag{
			Name:        "top-k",
			Usage:       "sample backend top-k (0 = default)",
			Destination: &o.topK,
		},
		&cli.Float64Flag{
			Name:        "top-p",
			Usage:       "sample backend top-p (0 = disabled)",
			Destination: &o.topP,
		},
	}
}

func runCmd() *cli.Command {
	var o runOptions

	return &cli.Command{
		Name:  "run",
		Usage: "Drive one frame to completion and print every step",
		Flags: append(runFlags(&o), loggingFlags()...),
		Action: func(ctx context.Context, cmd *cli.Command) error {
			cfg, err := LoadConfig(configFile)
			if err != nil {
				return cli.Exit(fmt.Sprintf("error: %v", err), 1)
			}
			applyRunConfig(cmd, cfg, &o)
			applyLoggingConfig(cmd, cfg)

			log, err := openLogger()
			if err != nil {
				return cli.Exit(fmt.Sprintf("error: %v", err), 1)
			}

			spec, err := o.spec()
			if err != nil {
				return cli.Exit(fmt.Sprintf("error: %v", err), 1)
			}
			sess, err := session.New(spec, session.WithLogger(log))
			if err != nil {
				return cli.Exit(fmt.Sprintf("error: %v", err), 1)
			}

			if o.timeout > 0 {
				var cancel context.CancelFunc
				ctx, cancel = context.WithTimeout(ctx, o.timeout)
				defer cancel()
			}

			log.Info("running frame", "session", sess.ID(), "backend", spec.Backend, "max_tokens", spec.MaxTokens)
			start := time.Now()
			if err := runHarness(logger.WithContext(ctx, log), os.Stdout, sess, o.output); err != nil {
				return cli.Exit(fmt.Sprintf("error: %v", err), 1)
			}
			log.Debug("run complete", "elapsed", time.Since(start))
			return nil
		},
	}
}

// spec converts the flag values into a session spec.
func (o runOptions) spec() (session.Spec, error) {
	prompt, err := parseIDs(o.prompt)
	if err != nil {
		return session.Spec{}, fmt.Errorf("prompt: %w", err)
	}
	spec := session.Spec{
		Backend:     o.backend,
		MaxTokens:   int(o.maxTokens),
		Prompt:      prompt,
		YieldEvery:  int(o.yieldEvery),
		RefuseAfter: o.refuseAfter,
		Rate:        o.rate,
		Burst:       int(o.burst),

		Vocab:       int(o.vocab),
		Seed:        o.seed,
		Temperature: float32(o.temperature),
		TopK:        int(o.topK),
		TopP:        float32(o.topP),
	}
	if o.eos >= 0 {
		if o.eos > int64(^uint32(0)) {
			return session.Spec{}, fmt.Errorf("eos: %d out of range", o.eos)
		}
		eos := uint32(o.eos)
		spec.EOS = &eos
	}
	return spec, spec.Validate()
}

type stepLine struct {
	Step   int               `json:"step"`
	Result session.StepView  `json:"result"`
	Frame  *session.Snapshot `json:"frame,omitempty"`
}

// runHarness is the external scheduler: it steps sess until it finishes and
// writes one line per step, then the generated ids. A done ctx cancels a live
// frame.
func runHarness(ctx context.Context, w io.Writer, sess session.Session, format string) error {
	var emit func(n int, res frame.StepResult, final *session.Snapshot) error
	switch format {
	case "", "text":
		emit = func(n int, res frame.StepResult, final *session.Snapshot) error {
			if _, err := fmt.Fprintln(w, formatStep(n, res)); err != nil {
				return err
			}
			if final == nil {
				return nil
			}
			_, err := fmt.Fprintf(w, "generated: [%s]\n", joinIDs(final.Generated, " "))
			return err
		}
	case "json":
		enc := json.NewEncoder(w)
		emit = func(n int, res frame.StepResult, final *session.Snapshot) error {
			return enc.Encode(stepLine{Step: n, Result: session.NewStepView(res), Frame: final})
		}
	default:
		return fmt.Errorf("unknown output format %q", format)
	}

	log := logger.FromContext(ctx)
	for n := 1; ; n++ {
		if ctx.Err() != nil {
			if sess.Interrupt() {
				log.Warn("context done, cancelling frame", "error", ctx.Err())
			}
		}
		res, err := sess.Step(ctx)
		if err != nil {
			return err
		}
		if !res.Finished() {
			if err := emit(n, res, nil); err != nil {
				return err
			}
			if res.Outcome == frame.Yielded {
				sess.Backoff(ctx)
			}
			continue
		}
		snap := sess.Snapshot()
		return emit(n, res, &snap)
	}
}

func formatStep(n int, res frame.StepResult) string {
	var b strings.Builder
	fmt.Fprintf(&b, "%4d %-8s", n, res.Outcome)
	if tok, ok := res.Token(); ok {
		fmt.Fprintf(&b, " token=%d", tok)
	}
	if reason, ok := res.Reason(); ok {
		fmt.Fprintf(&b, " reason=%s", reason)
	}
	for _, r := range res.Receipts {
		fmt.Fprintf(&b, " %s=%d", r.Kind, r.Value)
	}
	return strings.TrimRight(b.String(), " ")
}

func parseIDs(s string) ([]uint32, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return nil, nil
	}
	parts := strings.FieldsFunc(s, func(r rune) bool { return r == ',' || r == ' ' })
	ids := make([]uint32, 0, len(parts))
	for _, p := range parts {
		v, err := strconv.ParseUint(p, 10, 32)
		if err != nil {
			return nil, fmt.Errorf("invalid token id %q", p)
		}
		ids = append(ids, uint32(v))
	}
	return ids, nil
}

func joinIDs(ids []uint32, sep string) string {
	parts := make([]string, len(ids))
	for i, id := range ids {
		parts[i] = strconv.FormatUint(uint64(id), 10)
	}
	return strings.Join(parts, sep)
}
