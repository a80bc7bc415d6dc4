// Package progress renders one mpb bar per concurrent download.
package progress

import (
	"io"
	"sync"

	"github.com/vbauerster/mpb/v8"
	"github.com/vbauerster/mpb/v8/decor"
)

type Progress struct {
	progress *mpb.Progress

	mu   sync.Mutex
	bars map[string]*mpb.Bar
}

// countingReader advances bar by every byte read through it.
type countingReader struct {
	reader io.Reader
	bar    *mpb.Bar
}

func (c *countingReader) Read(p []byte) (n int, err error) {
	n, err = c.reader.Read(p)
	c.bar.IncrBy(n)
	return
}

func New(opts ...mpb.ContainerOption) *Progress {
	return &Progress{
		progress: mpb.New(opts...),
		bars:     make(map[string]*mpb.Bar),
	}
}

func (p *Progress) NewBar(n int64, text string) *mpb.Bar {
	bar := p.progress.AddBar(n,
		mpb.PrependDecorators(
			decor.Name(text, decor.WC{W: 24, C: decor.DindentRight}),
			decor.CountersKibiByte(" % .2f / % .2f", decor.WCSyncWidth),
		),
		mpb.AppendDecorators(
			decor.OnComplete(decor.Elapsed(decor.ET_STYLE_GO, decor.WC{W: 8}), " done"),
		),
	)

	// an empty download has nothing to count
	if n == 0 {
		bar.SetTotal(-1, true)
	}

	return bar
}

// Reader wraps r so reads advance bar.
func (p *Progress) Reader(r io.Reader, bar *mpb.Bar) io.Reader {
	return &countingReader{reader: r, bar: bar}
}

// Hook matches core.Client.Progress and gives every fetch its own bar.
// Pair it with Finish so failed fetches do not hold up Wait.
func (p *Progress) Hook(name string, size int64, r io.Reader) io.Reader {
	bar := p.NewBar(size, name)

	p.mu.Lock()
	p.bars[name] = bar
	p.mu.Unlock()

	return p.Reader(r, bar)
}

// Finish aborts the bar of name unless the fetch completed.
func (p *Progress) Finish(name string, err error) {
	p.mu.Lock()
	bar, ok := p.bars[name]
	delete(p.bars, name)
	p.mu.Unlock()

	if !ok {
		return
	}

	if err != nil || !bar.Completed() {
		bar.Abort(false)
	}
}

// Execute copies n bytes from src to dst, advancing bar.
func (p *Progress) Execute(dst io.Writer, src io.Reader, n int64, bar *mpb.Bar) (int64, error) {
	return io.CopyN(dst, p.Reader(src, bar), n)
}

// Wait blocks until every bar is complete or aborted.
func (p *Progress) Wait() {
	p.progress.Wait()
}
