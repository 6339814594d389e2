package chroma_test

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
	"go.uber.org/zap"

	"github.com/storyloom/loom/pkg/vector"
	"github.com/storyloom/loom/pkg/vector/chroma"
)

var _ = Describe("Driver", func() {
	var logger *zap.Logger

	BeforeEach(func() {
		logger = zap.NewNop()
	})

	Describe("NewDriver", func() {
		It("should return an error when URL is empty", func() {
			_, err := chroma.NewDriver(chroma.Config{URL: ""}, logger)
			Expect(err).To(HaveOccurred())
			Expect(err.Error()).To(ContainSubstring("chroma URL is required"))
		})
	})

	Describe("Interface compliance", func() {
		It("should implement vector.Driver interface", func() {
			var _ vector.Driver = (*chroma.Driver)(nil)
		})
	})

	Describe("against a fake server", func() {
		var (
			ctx     context.Context
			server  *httptest.Server
			driver  *chroma.Driver
			queries []map[string]any
		)

		BeforeEach(func() {
			ctx = context.Background()
			queries = nil

			server = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				switch {
				case r.Method == "GET" && strings.Contains(r.URL.Path, "/collections/"):
					// Collection lookup misses so creation is exercised.
					http.Error(w, "not found", http.StatusNotFound)
				case r.Method == "POST" && strings.HasSuffix(r.URL.Path, "/collections"):
					json.NewEncoder(w).Encode(map[string]string{"id": "col-123", "name": "m_test"})
				case strings.HasSuffix(r.URL.Path, "/query"):
					var req map[string]any
					json.NewDecoder(r.Body).Decode(&req)
					queries = append(queries, req)
					json.NewEncoder(w).Encode(map[string]any{
						"ids":       [][]string{{"m1", "m2"}},
						"distances": [][]float32{{0.5, 9.0}},
						"metadatas": [][]map[string]any{{
							{"chapter_id": "ch-1"},
							{"chapter_id": "ch-2"},
						}},
					})
				default:
					json.NewEncoder(w).Encode(map[string]any{})
				}
			}))

			var err error
			driver, err = chroma.NewDriver(chroma.Config{URL: server.URL}, logger)
			Expect(err).NotTo(HaveOccurred())
		})

		AfterEach(func() {
			server.Close()
		})

		It("creates missing collections on first use", func() {
			Expect(driver.EnsureCollection(ctx, "m_test", 4)).To(Succeed())
		})

		It("pushes the filter down as a where clause", func() {
			_, err := driver.Query(ctx, vector.Query{
				Collection: "m_test",
				Embedding:  []float32{1, 0},
				TopK:       5,
				Filter:     vector.Filter{"project_id": "p1"},
			})
			Expect(err).NotTo(HaveOccurred())
			Expect(queries).To(HaveLen(1))

			where, ok := queries[0]["where"].(map[string]any)
			Expect(ok).To(BeTrue())
			cond, ok := where["project_id"].(map[string]any)
			Expect(ok).To(BeTrue())
			Expect(cond["$eq"]).To(Equal("p1"))
		})

		It("converts distances to scores and applies the floor", func() {
			results, err := driver.Query(ctx, vector.Query{
				Collection: "m_test",
				Embedding:  []float32{1, 0},
				TopK:       5,
				Floor:      0.3,
			})
			Expect(err).NotTo(HaveOccurred())

			// distance 0.5 -> score ~0.667 passes; distance 9 -> 0.1 is cut
			Expect(results).To(HaveLen(1))
			Expect(results[0].ID).To(Equal("m1"))
			Expect(results[0].Score).To(BeNumerically("~", 1.0/1.5, 1e-3))
			Expect(results[0].Payload["chapter_id"]).To(Equal("ch-1"))
		})
	})
})
