package mm

import (
	"testing"

	"pagemap/kernel"
)

func TestFrameMethods(t *testing.T) {
	for frameIndex := uint64(0); frameIndex < 128; frameIndex++ {
		frame := Frame(frameIndex)

		if !frame.Valid() {
			t.Errorf("expected frame %d to be valid", frameIndex)
		}

		if exp, got := uintptr(frameIndex<<PageShift), frame.Address(); got != exp {
			t.Errorf("expected frame (%d, index: %d) call to Address() to return %x; got %x", frame, frameIndex, exp, got)
		}
	}

	invalidFrame := InvalidFrame
	if invalidFrame.Valid() {
		t.Error("expected InvalidFrame.Valid() to return false")
	}
}

func TestFrameFromAddress(t *testing.T) {
	specs := []struct {
		input    uintptr
		expFrame Frame
	}{
		{0, Frame(0)},
		{4095, Frame(0)},
		{4096, Frame(1)},
		{4123, Frame(1)},
	}

	for specIndex, spec := range specs {
		if got := FrameFromAddress(spec.input); got != spec.expFrame {
			t.Errorf("[spec %d] expected returned frame to be %v; got %v", specIndex, spec.expFrame, got)
		}
	}
}

func TestFrameAllocatorFn(t *testing.T) {
	var allocCalled bool
	var alloc FrameAllocator = FrameAllocatorFn(func() (Frame, *kernel.Error) {
		allocCalled = true
		return FrameFromAddress(0xbadf00), nil
	})

	frame, err := alloc.AllocFrame()
	if err != nil {
		t.Fatal(err)
	}

	if !allocCalled {
		t.Fatal("expected custom allocator to be invoked by AllocFrame")
	}

	if exp := Frame(0xbad); frame != exp {
		t.Fatalf("expected allocated frame to be %d; got %d", exp, frame)
	}

	if err = alloc.FreeFrame(frame); err != nil {
		t.Fatalf("expected FreeFrame to be a no-op; got %v", err)
	}
}

func TestPageMethods(t *testing.T) {
	for pageIndex := uint64(0); pageIndex < 128; pageIndex++ {
		page := Page(pageIndex)

		if exp, got := uintptr(pageIndex<<PageShift), page.Address(); got != exp {
			t.Errorf("expected page (%d, index: %d) call to Address() to return %x; got %x", page, pageIndex, exp, got)
		}
	}
}

func TestPageFromAddress(t *testing.T) {
	specs := []struct {
		input   uintptr
		expPage Page
	}{
		{0, Page(0)},
		{4095, Page(0)},
		{4096, Page(1)},
		{4123, Page(1)},
	}

	for specIndex, spec := range specs {
		if got := PageFromAddress(spec.input); got != spec.expPage {
			t.Errorf("[spec %d] expected returned page to be %v; got %v", specIndex, spec.expPage, got)
		}
	}
}

func TestPageTableIndices(t *testing.T) {
	specs := []struct {
		virtAddr   uintptr
		expIndices [4]uint
	}{
		{0x0, [4]uint{0, 0, 0, 0}},
		{0x1000, [4]uint{0, 0, 0, 1}},
		{0x1064, [4]uint{0, 0, 0, 1}},
		{0x200000, [4]uint{0, 0, 1, 0}},
		{0x40000000, [4]uint{0, 1, 0, 0}},
		{0x8000000000, [4]uint{1, 0, 0, 0}},
		// temporary mapping address used by gopher-os style kernels
		{0xffffff7ffffff000, [4]uint{510, 511, 511, 511}},
		// recursively mapped P4 table
		{0xfffffffffffff000, [4]uint{511, 511, 511, 511}},
	}

	for specIndex, spec := range specs {
		page := PageFromAddress(spec.virtAddr)
		got := [4]uint{page.P4Index(), page.P3Index(), page.P2Index(), page.P1Index()}
		if got != spec.expIndices {
			t.Errorf("[spec %d] expected indices for 0x%x to be %v; got %v", specIndex, spec.virtAddr, spec.expIndices, got)
		}

		if exp := spec.virtAddr &^ (PageSize - 1); page.Address() != exp {
			t.Errorf("[spec %d] expected page start address to be 0x%x; got 0x%x", specIndex, exp, page.Address())
		}
	}
}

func TestSize(t *testing.T) {
	specs := []struct {
		size       Size
		expPages   uint64
		expAligned Size
	}{
		{1 * Byte, 1, 4 * Kb},
		{4 * Kb, 1, 4 * Kb},
		{4097 * Byte, 2, 8 * Kb},
		{1023 * Kb, 256, 1 * Mb},
		{2 * Mb, 512, 2 * Mb},
	}

	for specIndex, spec := range specs {
		if got := spec.size.Pages(); got != spec.expPages {
			t.Errorf("[spec %d] expected Pages(%d bytes) to equal %d; got %d", specIndex, spec.size, spec.expPages, got)
		}

		if got := spec.size.PageAligned(); got != spec.expAligned {
			t.Errorf("[spec %d] expected PageAligned(%d bytes) to equal %d; got %d", specIndex, spec.size, spec.expAligned, got)
		}
	}
}
