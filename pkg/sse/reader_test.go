package sse_test

import (
	"strings"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/storyloom/loom/pkg/sse"
)

var _ = Describe("Reader", func() {
	read := func(stream string) []*sse.Event {
		r := sse.NewReader(strings.NewReader(stream))
		var events []*sse.Event
		for {
			ev, err := r.Next()
			Expect(err).NotTo(HaveOccurred())
			if ev == nil {
				return events
			}
			events = append(events, ev)
		}
	}

	It("parses a single data event", func() {
		events := read("data: hello\n\n")
		Expect(events).To(HaveLen(1))
		Expect(events[0].Data).To(Equal("hello"))
		Expect(events[0].Type).To(Equal(""))
	})

	It("parses multiple events delimited by blank lines", func() {
		events := read("data: one\n\ndata: two\n\ndata: three\n\n")
		Expect(events).To(HaveLen(3))
		Expect(events[0].Data).To(Equal("one"))
		Expect(events[1].Data).To(Equal("two"))
		Expect(events[2].Data).To(Equal("three"))
	})

	It("joins multiple data lines with a newline", func() {
		events := read("data: first line\ndata: second line\n\n")
		Expect(events).To(HaveLen(1))
		Expect(events[0].Data).To(Equal("first line\nsecond line"))
	})

	It("captures the event type and id fields", func() {
		events := read("event: completion\nid: 42\ndata: {\"text\":\"hi\"}\n\n")
		Expect(events).To(HaveLen(1))
		Expect(events[0].Type).To(Equal("completion"))
		Expect(events[0].ID).To(Equal("42"))
		Expect(events[0].Data).To(Equal(`{"text":"hi"}`))
	})

	It("strips a single leading space after the colon", func() {
		events := read("data:no-space\n\ndata:  two-spaces\n\n")
		Expect(events).To(HaveLen(2))
		Expect(events[0].Data).To(Equal("no-space"))
		Expect(events[1].Data).To(Equal(" two-spaces"))
	})

	It("skips comment lines", func() {
		events := read(": keep-alive\ndata: payload\n: another comment\n\n")
		Expect(events).To(HaveLen(1))
		Expect(events[0].Data).To(Equal("payload"))
	})

	It("skips leading and repeated blank lines", func() {
		events := read("\n\ndata: after-blanks\n\n\n\n")
		Expect(events).To(HaveLen(1))
		Expect(events[0].Data).To(Equal("after-blanks"))
	})

	It("yields a trailing event when the stream ends without a blank line", func() {
		events := read("data: unterminated")
		Expect(events).To(HaveLen(1))
		Expect(events[0].Data).To(Equal("unterminated"))
	})

	It("ignores retry and unknown fields", func() {
		events := read("retry: 3000\nunknown: x\ndata: kept\n\n")
		Expect(events).To(HaveLen(1))
		Expect(events[0].Data).To(Equal("kept"))
	})

	It("returns nil for an empty stream", func() {
		r := sse.NewReader(strings.NewReader(""))
		ev, err := r.Next()
		Expect(err).NotTo(HaveOccurred())
		Expect(ev).To(BeNil())
	})

	It("parses a terminal done marker as ordinary data", func() {
		events := read("data: [DONE]\n\n")
		Expect(events).To(HaveLen(1))
		Expect(events[0].Data).To(Equal("[DONE]"))
	})
})
