package audit

import (
	"context"
	"fmt"
	"strings"
	"sync"

	"github.com/hazyhaar/consentcrawl/consent"
)

// Sink receives each result as its audit completes. Calls are serialized.
type Sink func(consent.AuditResult)

// Batch audits urls in consecutive batches of at most Config.BatchSize
// concurrent audits and returns the results in input order. Each result is
// also handed to sink, when set, as soon as it is ready. URLs not started
// before ctx ends are reported with status "error".
func (a *Auditor) Batch(ctx context.Context, urls []string, sink Sink) []consent.AuditResult {
	size := a.opts.Config.BatchSize
	if size <= 0 {
		size = consent.Defaults().BatchSize
	}
	results := make([]consent.AuditResult, len(urls))

	var mu sync.Mutex
	deliver := func(i int, r consent.AuditResult) {
		mu.Lock()
		defer mu.Unlock()
		results[i] = r
		if sink != nil {
			sink(r)
		}
	}

	for lo := 0; lo < len(urls); lo += size {
		hi := min(lo+size, len(urls))
		a.logger.Info("audit: batch", "from", lo, "to", hi, "total", len(urls))

		var wg sync.WaitGroup
		for i := lo; i < hi; i++ {
			if err := ctx.Err(); err != nil {
				deliver(i, a.cancelled(urls[i], err))
				continue
			}
			wg.Add(1)
			go func(i int) {
				defer wg.Done()
				deliver(i, a.Audit(ctx, urls[i]))
			}(i)
		}
		wg.Wait()
	}
	return results
}

func (a *Auditor) cancelled(rawURL string, err error) consent.AuditResult {
	r := newResult(rawURL, a.now())
	r.Advance(consent.StatusError, "not started: "+err.Error())
	return r
}

// Tally counts results per status.
type Tally map[consent.Status]int

// Count tallies results.
func Count(results []consent.AuditResult) Tally {
	t := make(Tally)
	for _, r := range results {
		t[r.Status]++
	}
	return t
}

// Failed is the number of results that found no banner or broke.
func (t Tally) Failed() int {
	n := 0
	for st, c := range t {
		if st.Rank() <= consent.StatusFailed.Rank() {
			n += c
		}
	}
	return n
}

// String renders the non-zero counts, best status first:
// "success_detailed=3 failed=1".
func (t Tally) String() string {
	var parts []string
	for _, st := range []consent.Status{consent.StatusSuccessDetailed, consent.StatusSuccessBasic,
		consent.StatusFailed, consent.StatusError, consent.StatusPending} {
		if t[st] > 0 {
			parts = append(parts, fmt.Sprintf("%s=%d", st, t[st]))
		}
	}
	return strings.Join(parts, " ")
}
