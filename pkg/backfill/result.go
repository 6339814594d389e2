package backfill

import "fmt"

// Result summarizes one backfill run.
type Result struct {
	// Scanned is the total number of memories examined.
	Scanned int

	// Skipped memories already had a vector id.
	Skipped int

	// Candidates counts rows a dry run would have mirrored.
	Candidates int

	// Mirrored rows were embedded and upserted this run.
	Mirrored int

	// Failed rows errored again and were left for the next run.
	Failed int
}

// Summary renders a one-line human summary of the run.
func (r *Result) Summary(dryRun bool) string {
	if dryRun {
		return fmt.Sprintf("%d memories scanned, %d already mirrored, %d would be mirrored",
			r.Scanned, r.Skipped, r.Candidates)
	}
	return fmt.Sprintf("%d memories scanned, %d already mirrored, %d mirrored, %d failed",
		r.Scanned, r.Skipped, r.Mirrored, r.Failed)
}
