package physmem

import (
	"errors"

	"pagemap/kernel"
	"pagemap/kernel/mm"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
	"golang.org/x/sys/unix"
)

var _ = Describe("Memory", func() {
	var (
		mem *Memory
	)

	BeforeEach(func() {
		var err *kernel.Error
		mem, err = New(64 * mm.Kb)
		Expect(err).To(BeNil())
	})

	AfterEach(func() {
		if mem.data != nil {
			Expect(mem.Close()).To(BeNil())
		}
	})

	It("should reject sizes that are not page multiples", func() {
		_, err := New(0)
		Expect(err).To(BeIdenticalTo(errInvalidSize))

		_, err = New(4097)
		Expect(err).To(BeIdenticalTo(errInvalidSize))
	})

	It("should report its geometry", func() {
		Expect(mem.Size()).To(Equal(64 * mm.Kb))
		Expect(mem.FrameCount()).To(Equal(uint64(16)))
		Expect(mem.Base()).NotTo(BeZero())
		Expect(mem.Base() % mm.PageSize).To(BeZero())
		Expect(mem.Contains(mm.Frame(15))).To(BeTrue())
		Expect(mem.Contains(mm.Frame(16))).To(BeFalse())
		Expect(mem.Contains(mm.InvalidFrame)).To(BeFalse())
	})

	It("should start zero-filled", func() {
		for frame := mm.Frame(0); uint64(frame) < mem.FrameCount(); frame++ {
			data, err := mem.Bytes(frame)
			Expect(err).To(BeNil())
			Expect(data).To(HaveLen(int(mm.PageSize)))
			Expect(data).To(HaveEach(byte(0)))
		}
	})

	It("should expose frame contents through their addresses", func() {
		addr, err := mem.FrameAddress(mm.Frame(3))
		Expect(err).To(BeNil())
		Expect(addr).To(Equal(mem.Base() + 3*mm.PageSize))

		kernel.Memset(addr, 0xAB, mm.PageSize)

		data, err := mem.Bytes(mm.Frame(3))
		Expect(err).To(BeNil())
		Expect(data).To(HaveEach(byte(0xAB)))

		neighbour, err := mem.Bytes(mm.Frame(4))
		Expect(err).To(BeNil())
		Expect(neighbour).To(HaveEach(byte(0)))
	})

	It("should reject frames outside of memory", func() {
		_, err := mem.FrameAddress(mm.Frame(16))
		Expect(err).To(BeIdenticalTo(errFrameOutRange))

		_, err = mem.Bytes(mm.Frame(1024))
		Expect(err).To(BeIdenticalTo(errFrameOutRange))
	})

	It("should fail once closed", func() {
		Expect(mem.Close()).To(BeNil())
		Expect(mem.Close()).To(BeIdenticalTo(errClosed))

		_, err := mem.FrameAddress(mm.Frame(0))
		Expect(err).To(BeIdenticalTo(errClosed))
	})
})

var _ = Describe("Host failures", func() {
	AfterEach(func() {
		mmapFn = unix.Mmap
		munmapFn = unix.Munmap
	})

	It("should convert mmap errors", func() {
		mmapFn = func(int, int64, int, int, int) ([]byte, error) {
			return nil, errors.New("cannot allocate memory")
		}

		_, err := New(4 * mm.Kb)
		Expect(err).NotTo(BeNil())
		Expect(err.Module).To(Equal("physmem"))
		Expect(err.Message).To(Equal("cannot allocate memory"))
	})

	It("should convert munmap errors", func() {
		mem, err := New(4 * mm.Kb)
		Expect(err).To(BeNil())

		data := mem.data
		munmapFn = func([]byte) error {
			return errors.New("invalid argument")
		}
		defer func() { _ = unix.Munmap(data) }()

		err = mem.Close()
		Expect(err).NotTo(BeNil())
		Expect(err.Message).To(Equal("invalid argument"))
	})
})
