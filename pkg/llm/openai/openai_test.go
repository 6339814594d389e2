package openai_test

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
	"go.uber.org/zap"

	"github.com/storyloom/loom/pkg/llm"
	"github.com/storyloom/loom/pkg/llm/openai"
)

var _ = Describe("Client", func() {
	var logger *zap.Logger

	BeforeEach(func() {
		logger = zap.NewNop()
	})

	Describe("Complete", func() {
		It("returns the first choice content and sends the bearer token", func() {
			server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				Expect(r.URL.Path).To(Equal("/chat/completions"))
				Expect(r.Header.Get("Authorization")).To(Equal("Bearer sk-test"))
				fmt.Fprint(w, `{"choices":[{"message":{"content":"A lantern in the fog."}}]}`)
			}))
			defer server.Close()

			client := openai.NewClient(openai.Config{BaseURL: server.URL, APIKey: "sk-test"}, logger)
			got, err := client.Complete(context.Background(), llm.Request{
				Messages: []llm.Message{{Role: "user", Content: "write"}},
			})
			Expect(err).NotTo(HaveOccurred())
			Expect(got).To(Equal("A lantern in the fog."))
		})

		It("returns ErrNoContent when choices are empty", func() {
			server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				fmt.Fprint(w, `{"choices":[]}`)
			}))
			defer server.Close()

			client := openai.NewClient(openai.Config{BaseURL: server.URL}, logger)
			_, err := client.Complete(context.Background(), llm.Request{})
			Expect(err).To(MatchError(llm.ErrNoContent))
		})
	})

	Describe("Stream", func() {
		It("parses SSE deltas until [DONE]", func() {
			server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				w.Header().Set("Content-Type", "text/event-stream")
				fmt.Fprint(w, "data: {\"choices\":[{\"delta\":{\"content\":\"Night \"}}]}\n\n")
				fmt.Fprint(w, "data: {\"choices\":[{\"delta\":{\"content\":\"fell.\"}}]}\n\n")
				fmt.Fprint(w, "data: [DONE]\n\n")
			}))
			defer server.Close()

			client := openai.NewClient(openai.Config{BaseURL: server.URL}, logger)
			chunks, err := client.Stream(context.Background(), llm.Request{})
			Expect(err).NotTo(HaveOccurred())

			var text string
			var done bool
			for chunk := range chunks {
				Expect(chunk.Err).NotTo(HaveOccurred())
				text += chunk.Text
				done = done || chunk.Done
			}
			Expect(text).To(Equal("Night fell."))
			Expect(done).To(BeTrue())
		})

		It("stops on a finish reason without [DONE]", func() {
			server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				w.Header().Set("Content-Type", "text/event-stream")
				fmt.Fprint(w, "data: {\"choices\":[{\"delta\":{\"content\":\"End.\"},\"finish_reason\":\"stop\"}]}\n\n")
			}))
			defer server.Close()

			client := openai.NewClient(openai.Config{BaseURL: server.URL}, logger)
			chunks, err := client.Stream(context.Background(), llm.Request{})
			Expect(err).NotTo(HaveOccurred())

			var text string
			var done bool
			for chunk := range chunks {
				Expect(chunk.Err).NotTo(HaveOccurred())
				text += chunk.Text
				done = done || chunk.Done
			}
			Expect(text).To(Equal("End."))
			Expect(done).To(BeTrue())
		})
	})
})
