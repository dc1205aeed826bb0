package clean

import "github.com/varpipe/varpipe-vcf/vcf"

// Entry is one cleaned record queued for output. NonVariant marks records
// whose surviving calls are all homozygous reference (or whose ALTs are
// purely symbolic), the only kind the merger may discard.
type Entry struct {
	Rec        *vcf.Record
	NonVariant bool
}

// Merger is a single-record lookahead over the surviving records of a batch.
// It works around an upstream caller artifact: an indel at position P can be
// preceded by a homozygous-reference call or non-variant block at the same P
// that spuriously claims the indel's anchor base. It also restores local
// position order after trimming shifted an indel, and shortens a non-variant
// block whose END runs into the following record. None of its cases are
// errors.
type Merger struct {
	buf *Entry
}

// Push feeds the next surviving record and returns the records released for
// output, in order.
func (m *Merger) Push(e *Entry) []*Entry {
	if m.buf == nil {
		m.buf = e
		return nil
	}

	prev := m.buf

	if prev.Rec.Chrom != e.Rec.Chrom {
		m.buf = e
		return []*Entry{prev}
	}

	if prev.Rec.Pos == e.Rec.Pos {
		switch {
		case prev.NonVariant && !e.NonVariant:
			// Phantom HR preceding the indel: drop it.
			m.buf = e
			return nil
		case e.NonVariant && !prev.NonVariant:
			// Phantom HR following the indel: drop the newcomer.
			return nil
		default:
			m.buf = e
			return []*Entry{prev}
		}
	}

	// Trimming can shift an indel to an earlier position than the record
	// before it; swap to restore order.
	if prev.Rec.Pos > e.Rec.Pos {
		prev, e = e, prev
	}

	// A non-variant block reaching exactly into the next record gives up
	// that base.
	if prev.NonVariant {
		if end, ok := prev.Rec.End(); ok && end == e.Rec.Pos {
			prev.Rec.SetEnd(end - 1)
		}
	}

	m.buf = e
	return []*Entry{prev}
}

// Flush releases the buffered record at end of batch.
func (m *Merger) Flush() []*Entry {
	if m.buf == nil {
		return nil
	}
	out := []*Entry{m.buf}
	m.buf = nil
	return out
}
