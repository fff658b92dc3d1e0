package cryptvault

// ProgressFunc receives completion percentages in [0,100]. Successive calls
// never decrease and a successful operation always ends with 100.
type ProgressFunc func(percent int)

// progressTracker enforces the ProgressFunc contract: values are clamped,
// repeats and regressions are dropped, and 100 is delivered at most once.
type progressTracker struct {
	fn      ProgressFunc
	last    int
	started bool
}

func newProgressTracker(fn ProgressFunc) *progressTracker {
	return &progressTracker{fn: fn}
}

func (p *progressTracker) report(percent int) {
	if p == nil || p.fn == nil {
		return
	}
	percent = clampPercent(percent)
	if p.started && percent <= p.last {
		return
	}
	p.started = true
	p.last = percent
	p.fn(percent)
}

// done reports 100 unless it has already been reported.
func (p *progressTracker) done() {
	p.report(100)
}

// span maps a sub-operation's 0..100 onto lo..hi of the parent operation.
func (p *progressTracker) span(lo, hi int) ProgressFunc {
	return func(percent int) {
		p.report(lo + (hi-lo)*clampPercent(percent)/100)
	}
}

// fraction converts done/total into a percentage; an empty total is complete.
func fraction(done, total int64) int {
	if total <= 0 {
		return 100
	}
	return int(done * 100 / total)
}

func clampPercent(percent int) int {
	if percent < 0 {
		return 0
	}
	if percent > 100 {
		return 100
	}
	return percent
}
