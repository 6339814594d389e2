package generate_test

import (
	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/storyloom/loom/pkg/generate"
)

var _ = Describe("LockTable", func() {
	var (
		table *generate.LockTable
		key   generate.LockKey
	)

	BeforeEach(func() {
		table = generate.NewLockTable()
		key = generate.LockKey{ProjectID: "proj-1", OutlineID: "out-1", SubIndex: 0}
	})

	It("acquires a free key", func() {
		release, err := table.TryAcquire(key)
		Expect(err).NotTo(HaveOccurred())
		Expect(release).NotTo(BeNil())
		Expect(table.Held(key)).To(BeTrue())
	})

	It("rejects a held key immediately", func() {
		_, err := table.TryAcquire(key)
		Expect(err).NotTo(HaveOccurred())

		_, err = table.TryAcquire(key)
		Expect(err).To(MatchError(generate.ErrGenerationInFlight))
	})

	It("allows re-acquisition after release", func() {
		release, err := table.TryAcquire(key)
		Expect(err).NotTo(HaveOccurred())
		release()

		_, err = table.TryAcquire(key)
		Expect(err).NotTo(HaveOccurred())
	})

	It("keeps distinct keys independent", func() {
		_, err := table.TryAcquire(key)
		Expect(err).NotTo(HaveOccurred())

		other := generate.LockKey{ProjectID: "proj-1", OutlineID: "out-1", SubIndex: 1}
		_, err = table.TryAcquire(other)
		Expect(err).NotTo(HaveOccurred())
	})

	It("treats release as idempotent", func() {
		release, err := table.TryAcquire(key)
		Expect(err).NotTo(HaveOccurred())
		release()

		again, err := table.TryAcquire(key)
		Expect(err).NotTo(HaveOccurred())

		// A stale double release must not free the new holder's lock.
		release()
		Expect(table.Held(key)).To(BeTrue())

		again()
		Expect(table.Held(key)).To(BeFalse())
	})
})
