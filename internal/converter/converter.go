// =============================================================================
// NFS-e Tax Audit - Converter Module
// =============================================================================
//
// This module contains the batch pipeline. It turns a set of raw invoice
// documents into the audit table.
//
// CONVERSION PIPELINE (per document):
//   1. Decode the XML into a tree
//   2. Flatten the tree into path keys
//   3. Resolve every output column through the rule set
//   4. Coerce money, apply transforms and the retention branch
//   5. Compute the divergence diagnostic
//
// A document that fails step 1 is recorded as skipped with its reason and
// never stops the batch. Records keep the input order.
//
// CONCURRENCY:
//   With more than one worker, documents are processed in parallel and
//   placed by input index, so the output order does not depend on timing.
//
// =============================================================================

package converter

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/ginjaninja78/nfse-tax-audit/internal/rules"
	"github.com/ginjaninja78/nfse-tax-audit/internal/tree"
	"github.com/ginjaninja78/nfse-tax-audit/internal/types"
)

// =============================================================================
// CONVERTER STRUCTURE
// =============================================================================

// Converter runs the batch pipeline with a fixed rule set. It is safe for
// concurrent use.
type Converter struct {
	assembler *Assembler
	workers   int
}

// Option configures a Converter.
type Option func(*options)

type options struct {
	workers      int
	decimalComma bool
}

// WithWorkers sets how many documents are processed in parallel. Values
// below 2 process sequentially.
func WithWorkers(n int) Option {
	return func(o *options) { o.workers = n }
}

// WithDecimalComma enables Brazilian "1.234,56" money notation.
func WithDecimalComma(enabled bool) Option {
	return func(o *options) { o.decimalComma = enabled }
}

// =============================================================================
// CONSTRUCTOR
// =============================================================================

// New creates a Converter for a compiled rule set.
//
// RETURNS:
//   - The Converter.
//   - An error if the rule set's transforms cannot be compiled.
func New(rs *rules.RuleSet, opts ...Option) (*Converter, error) {
	o := options{workers: 1}
	for _, opt := range opts {
		opt(&o)
	}
	a, err := NewAssembler(rs, o.decimalComma)
	if err != nil {
		return nil, err
	}
	if o.workers < 1 {
		o.workers = 1
	}
	return &Converter{assembler: a, workers: o.workers}, nil
}

// =============================================================================
// MAIN PROCESSING FUNCTIONS
// =============================================================================

// Process turns one raw document into one record.
//
// RETURNS:
//   - The record.
//   - A *types.DocumentError wrapping the parse failure when the document
//     cannot be decoded.
func (c *Converter) Process(doc types.RawDocument) (types.Record, error) {
	n, err := tree.FromXML(doc.Content)
	if err != nil {
		return types.Record{}, &types.DocumentError{Name: doc.Name, Err: err}
	}
	return c.assembler.Assemble(doc.Name, tree.Flatten(n)), nil
}

type outcome struct {
	record types.Record
	err    error
}

// Aggregate processes every document and builds the audit table.
//
// Per-document failures become entries in Table.Skipped. The only error
// returned is the context's, when it is cancelled before the batch ends.
// The logger is taken from ctx with zerolog.Ctx.
func (c *Converter) Aggregate(ctx context.Context, docs []types.RawDocument) (types.Table, error) {
	logger := zerolog.Ctx(ctx)
	start := time.Now()

	results := make([]outcome, len(docs))
	if err := c.run(ctx, docs, results); err != nil {
		return types.Table{}, err
	}

	table := types.Table{Records: make([]types.Record, 0, len(docs))}
	for i, res := range results {
		if res.err != nil {
			reason := res.err
			var de *types.DocumentError
			if errors.As(res.err, &de) {
				reason = de.Err
			}
			table.Skipped = append(table.Skipped, types.Skip{Name: docs[i].Name, Reason: reason})
			logger.Warn().Str("file", docs[i].Name).Str("reason", reason.Error()).Msg("document skipped")
			continue
		}
		table.Records = append(table.Records, res.record)
		if res.record.Diagnostico == types.Divergent {
			logger.Debug().
				Str("document", docs[i].Name).
				Str("bruto", res.record.VlrBruto.String()).
				Str("liquido", res.record.VlrLiquido.String()).
				Msg("gross and net amounts diverge")
		}
	}

	logger.Info().
		Int("documents", len(docs)).
		Int("processed", table.Processed()).
		Int("skipped", table.SkippedCount()).
		Dur("elapsed", time.Since(start)).
		Msg("batch aggregated")
	return table, nil
}

// run fills results by input index.
func (c *Converter) run(ctx context.Context, docs []types.RawDocument, results []outcome) error {
	if c.workers <= 1 || len(docs) < 2 {
		for i, doc := range docs {
			if err := ctx.Err(); err != nil {
				return err
			}
			rec, err := c.Process(doc)
			results[i] = outcome{record: rec, err: err}
		}
		return nil
	}

	jobs := make(chan int)
	var wg sync.WaitGroup
	for w := 0; w < c.workers; w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := range jobs {
				rec, err := c.Process(docs[i])
				results[i] = outcome{record: rec, err: err}
			}
		}()
	}

	var err error
feed:
	for i := range docs {
		if err = ctx.Err(); err != nil {
			break
		}
		select {
		case <-ctx.Done():
			err = ctx.Err()
			break feed
		case jobs <- i:
		}
	}
	close(jobs)
	wg.Wait()

	return err
}
