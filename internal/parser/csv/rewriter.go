package csv

import (
	"bytes"
	"io"
)

// withReplacements wraps r in one streaming rewriter per replacement. With
// no replacements r is returned unchanged.
func withReplacements(r io.Reader, reps []Replacement) io.Reader {
	for _, rep := range reps {
		if rep.From == "" || rep.From == rep.To {
			continue
		}
		r = newStreamingRewriter(r, []byte(rep.From), []byte(rep.To))
	}
	return r
}

// streamingRewriter replaces every occurrence of pat with repl without
// buffering the whole stream. Unmatched trailing bytes that could start a
// match spanning the next read are held back as raw carry.
type streamingRewriter struct {
	r     io.Reader
	pat   []byte
	repl  []byte
	carry []byte
	tmp   []byte
	buf   bytes.Buffer
	eof   bool
}

func newStreamingRewriter(r io.Reader, pat, repl []byte) *streamingRewriter {
	return &streamingRewriter{
		r:    r,
		pat:  pat,
		repl: repl,
		tmp:  make([]byte, 64*1024),
	}
}

func (sr *streamingRewriter) Read(p []byte) (int, error) {
	for sr.buf.Len() == 0 {
		if sr.eof {
			return 0, io.EOF
		}
		n, err := sr.r.Read(sr.tmp)
		if err == io.EOF {
			sr.eof = true
		} else if err != nil {
			return 0, err
		}
		block := append(sr.carry, sr.tmp[:n]...)
		sr.carry = sr.rewrite(block)
	}
	return sr.buf.Read(p)
}

// rewrite emits block with replacements applied and returns the raw tail
// that must wait for more input.
func (sr *streamingRewriter) rewrite(block []byte) []byte {
	for {
		i := bytes.Index(block, sr.pat)
		if i < 0 {
			break
		}
		sr.buf.Write(block[:i])
		sr.buf.Write(sr.repl)
		block = block[i+len(sr.pat):]
	}
	hold := 0
	if !sr.eof {
		hold = min(len(sr.pat)-1, len(block))
	}
	sr.buf.Write(block[:len(block)-hold])
	return append([]byte(nil), block[len(block)-hold:]...)
}
