package zone

import (
	jsoniter "github.com/json-iterator/go"
)

var jsonConfig = jsoniter.Config{
	OnlyTaggedField: true,
	CaseSensitive:   true,
}.Froze()

type ClassStats struct {
	Size         int `json:"size"`
	Align        int `json:"align"`
	SlotsPerPage int `json:"slots_per_page"`
	EmptyPages   int `json:"empty_pages"`
	PartialPages int `json:"partial_pages"`
	FullPages    int `json:"full_pages"`
	Live         int `json:"live"`
	Acquired     int `json:"acquired"`
	Released     int `json:"released"`
}

func (c *ClassStats) Pages() int {
	return c.EmptyPages + c.PartialPages + c.FullPages
}

type Stats struct {
	PageSize  int          `json:"page_size"`
	Pages     int          `json:"pages"`
	Live      int          `json:"live"`
	LiveBytes int          `json:"live_bytes"`
	Classes   []ClassStats `json:"classes"`
}

func (z *Zone) Stats() Stats {
	st := Stats{PageSize: z.pageSize, Classes: make([]ClassStats, len(z.classes))}
	for i, c := range z.classes {
		cs := c.Stats()
		st.Classes[i] = ClassStats{
			Size:         cs.ObjectSize,
			Align:        cs.Align,
			SlotsPerPage: cs.SlotsPerPage,
			EmptyPages:   cs.EmptyPages,
			PartialPages: cs.PartialPages,
			FullPages:    cs.FullPages,
			Live:         cs.Live,
			Acquired:     cs.Acquired,
			Released:     cs.Released,
		}
		st.Pages += cs.Pages()
		st.Live += cs.Live
		st.LiveBytes += cs.Live * cs.ObjectSize
	}
	return st
}

// Utilization is the share of page bytes held by live objects.
func (s *Stats) Utilization() float64 {
	if s.Pages == 0 {
		return 0
	}
	return float64(s.LiveBytes) / float64(s.Pages*s.PageSize)
}

func (s *Stats) Encode(stream *jsoniter.Stream) {
	stream.Write([]byte(`{"page_size":`))
	stream.WriteInt(s.PageSize)
	stream.Write([]byte(`,"pages":`))
	stream.WriteInt(s.Pages)
	stream.Write([]byte(`,"live":`))
	stream.WriteInt(s.Live)
	stream.Write([]byte(`,"live_bytes":`))
	stream.WriteInt(s.LiveBytes)
	stream.Write([]byte(`,"utilization":`))
	stream.WriteFloat64(s.Utilization())
	stream.Write([]byte(`,"classes":[`))
	for i := range s.Classes {
		if i != 0 {
			stream.WriteMore()
		}
		s.Classes[i].encode(stream)
	}
	stream.Write([]byte(`]}`))
}

func (c *ClassStats) encode(stream *jsoniter.Stream) {
	stream.Write([]byte(`{"size":`))
	stream.WriteInt(c.Size)
	stream.Write([]byte(`,"align":`))
	stream.WriteInt(c.Align)
	stream.Write([]byte(`,"slots_per_page":`))
	stream.WriteInt(c.SlotsPerPage)
	stream.Write([]byte(`,"empty_pages":`))
	stream.WriteInt(c.EmptyPages)
	stream.Write([]byte(`,"partial_pages":`))
	stream.WriteInt(c.PartialPages)
	stream.Write([]byte(`,"full_pages":`))
	stream.WriteInt(c.FullPages)
	stream.Write([]byte(`,"live":`))
	stream.WriteInt(c.Live)
	stream.Write([]byte(`,"acquired":`))
	stream.WriteInt(c.Acquired)
	stream.Write([]byte(`,"released":`))
	stream.WriteInt(c.Released)
	stream.Write([]byte(`}`))
}

func (s *Stats) JSON() []byte {
	stream := jsonConfig.BorrowStream(nil)
	s.Encode(stream)
	out := append([]byte(nil), stream.Buffer()...)
	jsonConfig.ReturnStream(stream)
	return out
}

func ParseStats(data []byte) (Stats, error) {
	var st Stats
	err := jsonConfig.Unmarshal(data, &st)
	return st, err
}
