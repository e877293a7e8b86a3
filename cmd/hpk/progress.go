package main

import (
	"io"
	"sync"

	"github.com/cheggaaa/pb"

	"github.com/meigma/hpk"
)

// progressBar renders hpk progress events as a byte counter on w.
// The bar is created on the first event that carries a total.
type progressBar struct {
	w   io.Writer
	mu  sync.Mutex
	bar *pb.ProgressBar
}

func newProgressBar(w io.Writer) *progressBar {
	return &progressBar{w: w}
}

func (p *progressBar) update(e hpk.ProgressEvent) {
	if e.Stage == hpk.StageEnumerating || e.BytesTotal == 0 {
		return
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.bar == nil {
		p.bar = pb.New64(int64(e.BytesTotal)) //nolint:gosec // totals fit in int64
		p.bar.Output = p.w
		p.bar.SetUnits(pb.U_BYTES)
		p.bar.Prefix(e.Stage.String() + " ")
		p.bar.Start()
	}
	if done := int64(e.BytesDone); done > p.bar.Get() { //nolint:gosec // see above
		p.bar.Set64(done)
	}
}

func (p *progressBar) finish() {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.bar != nil {
		p.bar.Finish()
	}
}

// progressBar returns a bar writing to w when --progress is set, nil otherwise.
func (c *cli) progressBar(w io.Writer) *progressBar {
	if !c.v.GetBool(keyProgress) {
		return nil
	}
	return newProgressBar(w)
}
