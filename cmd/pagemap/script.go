package main

import (
	"bufio"
	"fmt"
	"io"
	"strconv"
	"strings"

	"pagemap/kernel"
	"pagemap/kernel/hal"
	"pagemap/kernel/mm"
	"pagemap/kernel/mm/vmm"

	"github.com/docker/go-units"
)

type opKind uint8

const (
	opMap opKind = iota
	opMapTo
	opIdentity
	opUnmap
	opTranslate
	opDump
)

var (
	opNames = map[string]opKind{
		"map":       opMap,
		"map_to":    opMapTo,
		"identity":  opIdentity,
		"unmap":     opUnmap,
		"translate": opTranslate,
		"dump":      opDump,
	}

	// opArgs is the number of numeric arguments expected by each op.
	opArgs = map[opKind]int{
		opMap:       1,
		opMapTo:     2,
		opIdentity:  1,
		opUnmap:     1,
		opTranslate: 1,
		opDump:      0,
	}

	flagNames = map[string]vmm.PageTableEntryFlag{
		"rw":           vmm.FlagRW,
		"user":         vmm.FlagUserAccessible,
		"writethrough": vmm.FlagWriteThroughCaching,
		"nocache":      vmm.FlagDoNotCache,
		"global":       vmm.FlagGlobal,
		"cow":          vmm.FlagCopyOnWrite,
		"nx":           vmm.FlagNoExecute,
	}
)

// scriptOp is a single parsed script line.
type scriptOp struct {
	line  int
	kind  opKind
	args  []uint64
	flags vmm.PageTableEntryFlag
}

// parseScript reads one operation per line. Blank lines and text following
// a '#' are ignored. Addresses and frame numbers accept decimal or
// 0x-prefixed values; trailing words name entry flags:
//
//	map_to 0x1000 5 rw nx
//	translate 0x1064
func parseScript(r io.Reader) ([]scriptOp, error) {
	var (
		ops     []scriptOp
		scanner = bufio.NewScanner(r)
	)

	for lineNum := 1; scanner.Scan(); lineNum++ {
		line := scanner.Text()
		if commentIndex := strings.IndexByte(line, '#'); commentIndex != -1 {
			line = line[:commentIndex]
		}

		fields := strings.Fields(line)
		if len(fields) == 0 {
			continue
		}

		op, err := parseOp(fields)
		if err != nil {
			return nil, fmt.Errorf("line %d: %w", lineNum, err)
		}

		op.line = lineNum
		ops = append(ops, op)
	}

	if err := scanner.Err(); err != nil {
		return nil, err
	}

	return ops, nil
}

func parseOp(fields []string) (scriptOp, error) {
	kind, ok := opNames[fields[0]]
	if !ok {
		return scriptOp{}, fmt.Errorf("unknown operation %q", fields[0])
	}

	argCount := opArgs[kind]
	if len(fields)-1 < argCount {
		return scriptOp{}, fmt.Errorf("%s expects %d argument(s)", fields[0], argCount)
	}

	op := scriptOp{kind: kind}
	for _, field := range fields[1 : argCount+1] {
		value, err := strconv.ParseUint(field, 0, 64)
		if err != nil {
			return scriptOp{}, fmt.Errorf("invalid number %q", field)
		}
		op.args = append(op.args, value)
	}

	for _, field := range fields[argCount+1:] {
		if kind == opUnmap || kind == opTranslate || kind == opDump {
			return scriptOp{}, fmt.Errorf("%s does not accept flags", fields[0])
		}

		flag, ok := flagNames[strings.ToLower(field)]
		if !ok {
			return scriptOp{}, fmt.Errorf("unknown flag %q", field)
		}
		op.flags |= flag
	}

	return op, nil
}

// exec runs op against m and reports its outcome to w. Frames named by
// map_to and identity are reserved in the allocator so they are never handed
// out for page tables. Fatal mapper errors are recovered and returned.
func (op scriptOp) exec(m *hal.Machine, w io.Writer) (err error) {
	defer func() {
		if r := recover(); r != nil {
			kErr, ok := r.(*kernel.Error)
			if !ok {
				panic(r)
			}
			err = fmt.Errorf("line %d: fatal: %s", op.line, kErr.Message)
		}
	}()

	var kErr *kernel.Error
	switch op.kind {
	case opMap:
		page := mm.PageFromAddress(uintptr(op.args[0]))
		if kErr = m.Mapper.Map(page, op.flags, m.Allocator); kErr == nil {
			frame, _ := m.Mapper.TranslatePage(page)
			fmt.Fprintf(w, "map %#x -> %#x\n", page.Address(), frame.Address())
		}
	case opMapTo:
		page := mm.PageFromAddress(uintptr(op.args[0]))
		frame := mm.Frame(op.args[1])
		if kErr = m.Allocator.ReserveFrame(frame); kErr != nil {
			break
		}
		if kErr = m.Mapper.MapTo(page, frame, op.flags, m.Allocator); kErr == nil {
			fmt.Fprintf(w, "map %#x -> %#x\n", page.Address(), frame.Address())
		}
	case opIdentity:
		frame := mm.Frame(op.args[0])
		if kErr = m.Allocator.ReserveFrame(frame); kErr != nil {
			break
		}
		if kErr = m.Mapper.IdentityMap(frame, op.flags, m.Allocator); kErr == nil {
			fmt.Fprintf(w, "map %#x -> %#x\n", frame.Address(), frame.Address())
		}
	case opUnmap:
		page := mm.PageFromAddress(uintptr(op.args[0]))
		m.Mapper.Unmap(page, m.Allocator)
		fmt.Fprintf(w, "unmap %#x\n", page.Address())
	case opTranslate:
		virtAddr := uintptr(op.args[0])
		if physAddr, ok := m.Translate(virtAddr); ok {
			fmt.Fprintf(w, "translate %#x -> %#x\n", virtAddr, physAddr)
		} else {
			fmt.Fprintf(w, "translate %#x -> unmapped\n", virtAddr)
		}
	case opDump:
		dumpMappings(m.Mapper, w)
	}

	if kErr != nil {
		return fmt.Errorf("line %d: %s", op.line, kErr.Message)
	}

	return nil
}

// dumpMappings writes one line per mapping established by mapper.
func dumpMappings(mapper *vmm.Mapper, w io.Writer) {
	var count int
	mapper.Visit(func(mapping vmm.Mapping) bool {
		count++
		fmt.Fprintf(w, "%#018x -> %#014x %8s %s %s\n",
			mapping.Page.Address(),
			mapping.Frame.Address(),
			units.BytesSize(float64(mapping.Size)),
			mapping.Level,
			mapping.Flags,
		)
		return true
	})
	fmt.Fprintf(w, "%d mapping(s)\n", count)
}
