package sqlitevec_test

import (
	"context"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
	"go.uber.org/zap"

	"github.com/storyloom/loom/pkg/vector"
	"github.com/storyloom/loom/pkg/vector/sqlitevec"
)

var _ = Describe("Driver", func() {
	var logger *zap.Logger

	BeforeEach(func() {
		logger = zap.NewNop()
	})

	Describe("NewDriver", func() {
		It("should return an error when DBPath is empty", func() {
			_, err := sqlitevec.NewDriver(sqlitevec.Config{DBPath: ""}, logger)
			Expect(err).To(HaveOccurred())
			Expect(err.Error()).To(ContainSubstring("database path is required"))
		})

		It("should create a driver with an in-memory database", func() {
			driver, err := sqlitevec.NewDriver(sqlitevec.Config{DBPath: ":memory:"}, logger)
			Expect(err).NotTo(HaveOccurred())
			Expect(driver).NotTo(BeNil())
			Expect(driver.Close()).To(Succeed())
		})
	})

	Describe("Interface compliance", func() {
		It("should implement vector.Driver interface", func() {
			var _ vector.Driver = (*sqlitevec.Driver)(nil)
		})
	})

	Describe("collections", func() {
		var (
			ctx    context.Context
			driver *sqlitevec.Driver
		)

		const collection = "m_1a2b3c4d_5e6f7a8b"

		BeforeEach(func() {
			ctx = context.Background()

			var err error
			driver, err = sqlitevec.NewDriver(sqlitevec.Config{DBPath: ":memory:"}, logger)
			Expect(err).NotTo(HaveOccurred())
			Expect(driver.EnsureCollection(ctx, collection, 4)).To(Succeed())
		})

		AfterEach(func() {
			Expect(driver.Close()).To(Succeed())
		})

		It("should reject zero dimensions", func() {
			Expect(driver.EnsureCollection(ctx, "other", 0)).NotTo(Succeed())
		})

		It("should be idempotent", func() {
			Expect(driver.EnsureCollection(ctx, collection, 4)).To(Succeed())
		})

		It("should upsert and query documents", func() {
			docs := []vector.Document{
				{ID: "doc-1", Embedding: []float32{1, 0, 0, 0}, Payload: map[string]any{"chapter_id": "ch-1"}},
				{ID: "doc-2", Embedding: []float32{0, 1, 0, 0}, Payload: map[string]any{"chapter_id": "ch-2"}},
			}
			Expect(driver.Upsert(ctx, collection, docs)).To(Succeed())

			results, err := driver.Query(ctx, vector.Query{
				Collection: collection,
				Embedding:  []float32{1, 0, 0, 0},
				TopK:       2,
			})
			Expect(err).NotTo(HaveOccurred())
			Expect(results).To(HaveLen(2))
			Expect(results[0].ID).To(Equal("doc-1"))
			Expect(results[0].Score).To(BeNumerically(">", results[1].Score))
		})

		It("should update on duplicate id", func() {
			Expect(driver.Upsert(ctx, collection, []vector.Document{
				{ID: "doc-1", Embedding: []float32{1, 0, 0, 0}},
			})).To(Succeed())
			Expect(driver.Upsert(ctx, collection, []vector.Document{
				{ID: "doc-1", Embedding: []float32{0, 0, 0, 1}},
			})).To(Succeed())

			results, err := driver.Query(ctx, vector.Query{
				Collection: collection,
				Embedding:  []float32{0, 0, 0, 1},
				TopK:       1,
			})
			Expect(err).NotTo(HaveOccurred())
			Expect(results).To(HaveLen(1))
			Expect(results[0].ID).To(Equal("doc-1"))
		})

		It("should apply the payload filter", func() {
			docs := []vector.Document{
				{ID: "doc-1", Embedding: []float32{1, 0, 0, 0}, Payload: map[string]any{"chapter_id": "ch-1"}},
				{ID: "doc-2", Embedding: []float32{0.9, 0.1, 0, 0}, Payload: map[string]any{"chapter_id": "ch-2"}},
			}
			Expect(driver.Upsert(ctx, collection, docs)).To(Succeed())

			results, err := driver.Query(ctx, vector.Query{
				Collection: collection,
				Embedding:  []float32{1, 0, 0, 0},
				TopK:       5,
				Filter:     vector.Filter{"chapter_id": "ch-2"},
			})
			Expect(err).NotTo(HaveOccurred())
			Expect(results).To(HaveLen(1))
			Expect(results[0].ID).To(Equal("doc-2"))
		})

		It("should apply the score floor", func() {
			docs := []vector.Document{
				{ID: "near", Embedding: []float32{1, 0, 0, 0}},
				{ID: "far", Embedding: []float32{0, 0, 0, 1}},
			}
			Expect(driver.Upsert(ctx, collection, docs)).To(Succeed())

			results, err := driver.Query(ctx, vector.Query{
				Collection: collection,
				Embedding:  []float32{1, 0, 0, 0},
				TopK:       5,
				Floor:      0.9,
			})
			Expect(err).NotTo(HaveOccurred())
			Expect(results).To(HaveLen(1))
			Expect(results[0].ID).To(Equal("near"))
		})

		It("should delete documents by id", func() {
			Expect(driver.Upsert(ctx, collection, []vector.Document{
				{ID: "doc-1", Embedding: []float32{1, 0, 0, 0}},
			})).To(Succeed())
			Expect(driver.Delete(ctx, collection, []string{"doc-1", "missing"})).To(Succeed())

			results, err := driver.Query(ctx, vector.Query{
				Collection: collection,
				Embedding:  []float32{1, 0, 0, 0},
				TopK:       5,
			})
			Expect(err).NotTo(HaveOccurred())
			Expect(results).To(BeEmpty())
		})

		It("should drop a collection", func() {
			Expect(driver.DropCollection(ctx, collection)).To(Succeed())

			_, err := driver.Query(ctx, vector.Query{
				Collection: collection,
				Embedding:  []float32{1, 0, 0, 0},
			})
			Expect(err).To(HaveOccurred())
		})
	})
})
