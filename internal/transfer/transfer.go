// Package transfer copies a resource in tuned chunks, timing every step of
// the per-chunk operation chain and retuning the batch size as it goes.
package transfer

import (
	"context"
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/johndauphine/batchtune/internal/logging"
	"github.com/johndauphine/batchtune/internal/progress"
	"github.com/johndauphine/batchtune/internal/tuning"
	"golang.org/x/text/transform"
)

// Job pairs a source with its destination.
type Job struct {
	Source Source
	Dest   io.Writer
}

// Options configures the operation chain and the retune policy.
type Options struct {
	// RetuneEvery is the number of chunks between tuning passes.
	RetuneEvery int

	// ForceLinear scans every bucket instead of searching.
	ForceLinear bool

	// Weight returns the weight of a kind. Nil weighs every kind as 1.
	Weight func(tuning.OperationKind) float64

	// SourceEncoding decodes the input to UTF-8 while reading.
	SourceEncoding string

	// TargetEncoding encodes UTF-8 text before writing.
	TargetEncoding string

	Hexlify   bool
	Dehexlify bool

	// OnDecision is called after every tuning pass that ran a strategy.
	OnDecision func(tuning.Decision)

	// Progress, if set, is advanced by the bytes read.
	Progress *progress.Tracker
}

func (o *Options) validate() error {
	if o.Hexlify && o.Dehexlify {
		return fmt.Errorf("hexlify and dehexlify are mutually exclusive")
	}
	if o.RetuneEvery < 0 {
		return fmt.Errorf("retune interval must not be negative, got %d", o.RetuneEvery)
	}
	return nil
}

// Kinds returns the operation kinds a transfer with these options exercises,
// in chain order.
func (o *Options) Kinds() []tuning.OperationKind {
	kinds := []tuning.OperationKind{tuning.RawInsert}
	if !isUTF8(o.SourceEncoding) {
		kinds[0] = tuning.Insert
	}
	if o.Dehexlify {
		kinds = append(kinds, tuning.Dehexlify)
	}
	if o.Hexlify {
		kinds = append(kinds, tuning.Hexlify)
	}
	if !isUTF8(o.TargetEncoding) {
		kinds = append(kinds, tuning.Encode)
	}
	return append(kinds, tuning.Write)
}

func (o *Options) weighted() []tuning.Weighted {
	kinds := o.Kinds()
	out := make([]tuning.Weighted, len(kinds))
	for i, k := range kinds {
		w := 1.0
		if o.Weight != nil {
			w = o.Weight(k)
		}
		out[i] = tuning.Weighted{Kind: k, Weight: w}
	}
	return out
}

type runner struct {
	state *tuning.State
	opts  Options
	stats *Stats
}

// step times fn under kind. fn returns the byte count to record.
func (r *runner) step(kind tuning.OperationKind, fn func() (int64, error)) error {
	start := time.Now()
	done := r.state.Stopwatch(kind)
	n, err := fn()
	if err != nil {
		return err
	}
	done(n)
	r.stats.add(kind, time.Since(start))
	return nil
}

// Run copies job.Source to job.Dest. Each chunk is read at the current batch
// size of state, passed through the configured operations and written out.
// The state is retuned every opts.RetuneEvery chunks.
func Run(ctx context.Context, job Job, state *tuning.State, opts Options) (*Stats, error) {
	if err := opts.validate(); err != nil {
		return nil, err
	}

	decoder, err := lookupEncoding(opts.SourceEncoding)
	if err != nil {
		return nil, fmt.Errorf("source encoding: %w", err)
	}
	target, err := lookupEncoding(opts.TargetEncoding)
	if err != nil {
		return nil, fmt.Errorf("target encoding: %w", err)
	}

	src := job.Source
	size := src.Size()
	if size < 0 {
		// Unknown length: assume the resource is big enough for any batch.
		size = 2 * state.MaxBatchSize()
	}
	state.SetResourceSize(size)
	state.SetRemote(src.Remote())

	var reader io.Reader = src
	readKind := tuning.RawInsert
	if decoder != nil {
		reader = transform.NewReader(src, decoder.NewDecoder())
		readKind = tuning.Insert
	}
	var encoder *textEncoder
	if target != nil {
		encoder = newTextEncoder(target)
	}
	var dehex *dehexlifier
	if opts.Dehexlify {
		dehex = &dehexlifier{}
	}

	if opts.Progress != nil {
		opts.Progress.SetTotal(src.Size())
	}

	r := &runner{state: state, opts: opts, stats: newStats()}
	weighted := opts.weighted()

	logging.Info("Transferring %s (%s, remote=%v, batch=%s)",
		src.Name(), sizeLabel(src.Size()), src.Remote(), humanize.IBytes(uint64(state.BatchSize())))

	var buf []byte
	for {
		if err := ctx.Err(); err != nil {
			return r.stats, err
		}

		batch := state.BatchSize()
		if int64(cap(buf)) < batch {
			buf = make([]byte, batch)
		}
		chunk := buf[:batch]

		var n int
		var eof bool
		err := r.step(readKind, func() (int64, error) {
			var err error
			n, err = io.ReadFull(reader, chunk)
			if errors.Is(err, io.EOF) || errors.Is(err, io.ErrUnexpectedEOF) {
				eof = true
				err = nil
			}
			if err != nil {
				return 0, fmt.Errorf("reading chunk: %w", err)
			}
			return int64(n), nil
		})
		if err != nil {
			return r.stats, err
		}
		if n == 0 {
			break
		}
		r.stats.BytesIn += int64(n)
		if opts.Progress != nil {
			opts.Progress.Add(int64(n))
		}

		// Every step is recorded against the size of the chunk read so
		// that all kinds of one chunk fall into the same bucket.
		out := chunk[:n]
		if err := r.transform(&out, int64(n), dehex, encoder, eof); err != nil {
			return r.stats, err
		}
		if err := r.write(job.Dest, out, int64(n)); err != nil {
			return r.stats, err
		}

		r.stats.Chunks++
		if opts.RetuneEvery > 0 && r.stats.Chunks%opts.RetuneEvery == 0 {
			r.retune(weighted)
		}
		if eof {
			break
		}
	}

	if dehex != nil {
		if err := dehex.finish(); err != nil {
			return r.stats, err
		}
	}
	if encoder != nil {
		tail, err := encoder.encode(nil, true)
		if err != nil {
			return r.stats, err
		}
		if len(tail) > 0 {
			if err := r.write(job.Dest, tail, int64(len(tail))); err != nil {
				return r.stats, err
			}
		}
	}

	if opts.Progress != nil {
		opts.Progress.Finish()
	}
	logging.Info("Transfer complete: %s", r.stats)
	return r.stats, nil
}

func (r *runner) transform(out *[]byte, n int64, dehex *dehexlifier, enc *textEncoder, final bool) error {
	if dehex != nil {
		err := r.step(tuning.Dehexlify, func() (int64, error) {
			b, err := dehex.decode(*out)
			if err != nil {
				return 0, err
			}
			*out = b
			return n, nil
		})
		if err != nil {
			return err
		}
	}
	if r.opts.Hexlify {
		err := r.step(tuning.Hexlify, func() (int64, error) {
			*out = hexlify(*out)
			return n, nil
		})
		if err != nil {
			return err
		}
	}
	if enc != nil {
		err := r.step(tuning.Encode, func() (int64, error) {
			b, err := enc.encode(*out, final)
			if err != nil {
				return 0, err
			}
			*out = b
			return n, nil
		})
		if err != nil {
			return err
		}
	}
	return nil
}

func (r *runner) write(w io.Writer, out []byte, n int64) error {
	return r.step(tuning.Write, func() (int64, error) {
		m, err := w.Write(out)
		r.stats.BytesOut += int64(m)
		if err != nil {
			return 0, fmt.Errorf("writing chunk: %w", err)
		}
		return n, nil
	})
}

func (r *runner) retune(weighted []tuning.Weighted) {
	d := r.state.Optimize(weighted, r.opts.ForceLinear)
	if d.Strategy == tuning.StrategyNone {
		return
	}
	r.stats.Decisions = append(r.stats.Decisions, d)
	if d.Changed() {
		r.stats.Retunes++
		logging.Info("Batch size %s -> %s (%s)",
			humanize.IBytes(uint64(d.Previous)), humanize.IBytes(uint64(d.BatchSize)), d.Strategy)
		if r.opts.Progress != nil {
			r.opts.Progress.Describe(fmt.Sprintf("Transferring [batch %s]", humanize.IBytes(uint64(d.BatchSize))))
		}
	}
	if r.opts.OnDecision != nil {
		r.opts.OnDecision(d)
	}
}

func sizeLabel(n int64) string {
	if n < 0 {
		return "unknown size"
	}
	return humanize.IBytes(uint64(n))
}
