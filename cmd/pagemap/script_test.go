package main

import (
	"bytes"
	"strings"
	"testing"

	"pagemap/kernel/hal"
	"pagemap/kernel/mm"
	"pagemap/kernel/mm/vmm"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseScript(t *testing.T) {
	ops, err := parseScript(strings.NewReader(`
# map a page
map_to 0x1000 5 rw NX   # trailing comment
map 0x200000 user
identity 300
translate 4196
unmap 0x1000

dump
`))
	require.NoError(t, err)

	assert.Equal(t, []scriptOp{
		{line: 3, kind: opMapTo, args: []uint64{0x1000, 5}, flags: vmm.FlagRW | vmm.FlagNoExecute},
		{line: 4, kind: opMap, args: []uint64{0x200000}, flags: vmm.FlagUserAccessible},
		{line: 5, kind: opIdentity, args: []uint64{300}},
		{line: 6, kind: opTranslate, args: []uint64{4196}},
		{line: 7, kind: opUnmap, args: []uint64{0x1000}},
		{line: 9, kind: opDump},
	}, ops)
}

func TestParseScriptErrors(t *testing.T) {
	specs := []struct {
		script string
		expErr string
	}{
		{"remap 0x1000", `line 1: unknown operation "remap"`},
		{"\nmap_to 0x1000", "line 2: map_to expects 2 argument(s)"},
		{"map zz", `line 1: invalid number "zz"`},
		{"map 0x1000 exec", `line 1: unknown flag "exec"`},
		{"unmap 0x1000 rw", "line 1: unmap does not accept flags"},
	}

	for specIndex, spec := range specs {
		_, err := parseScript(strings.NewReader(spec.script))
		if assert.Error(t, err, "[spec %d]", specIndex) {
			assert.Equal(t, spec.expErr, err.Error(), "[spec %d]", specIndex)
		}
	}
}

func runScript(t *testing.T, m *hal.Machine, script string) (string, error) {
	t.Helper()

	ops, err := parseScript(strings.NewReader(script))
	require.NoError(t, err)

	var buf bytes.Buffer
	for _, op := range ops {
		if err = op.exec(m, &buf); err != nil {
			break
		}
	}

	return buf.String(), err
}

func TestScriptExec(t *testing.T) {
	m, kErr := hal.Boot(hal.Config{MemorySize: 4 * mm.Mb})
	require.Nil(t, kErr)
	t.Cleanup(func() { _ = m.Shutdown() })

	out, err := runScript(t, m, `
map_to 0x1000 5 rw
identity 0x200 rw nx
translate 0x1064
translate 0x200abc
translate 0x5000
dump
unmap 0x1000
translate 0x1000
`)
	require.NoError(t, err)

	assert.Equal(t, strings.Join([]string{
		"map 0x1000 -> 0x5000",
		"map 0x200000 -> 0x200000",
		"translate 0x1064 -> 0x5064",
		"translate 0x200abc -> 0x200abc",
		"translate 0x5000 -> unmapped",
		"0x0000000000001000 -> 0x000000005000     4KiB P1 P|RW",
		"0x0000000000200000 -> 0x000000200000     4KiB P1 P|RW|NX",
		"2 mapping(s)",
		"unmap 0x1000",
		"translate 0x1000 -> unmapped",
	}, "\n")+"\n", out)

	t.Run("map allocates a frame", func(t *testing.T) {
		out, err := runScript(t, m, "map 0x400000 rw\n")
		require.NoError(t, err)
		assert.True(t, strings.HasPrefix(out, "map 0x400000 -> 0x"), out)
	})

	t.Run("frames in use are rejected", func(t *testing.T) {
		_, err := runScript(t, m, "identity 0x300 rw\nmap_to 0x700000 0x300\n")
		require.Error(t, err)
		assert.Equal(t, "line 2: frame already marked as used", err.Error())
	})

	t.Run("fatal errors are reported", func(t *testing.T) {
		_, err := runScript(t, m, "map_to 0x3000 6\nmap_to 0x3000 7\n")
		require.Error(t, err)
		assert.Equal(t, "line 2: fatal: page already mapped", err.Error())

		_, err = runScript(t, m, "unmap 0x9000\n")
		require.Error(t, err)
		assert.Equal(t, "line 1: fatal: page not mapped", err.Error())
	})
}

func TestScriptExecOutOfMemory(t *testing.T) {
	m, kErr := hal.Boot(hal.Config{MemorySize: 2 * mm.Mb})
	require.Nil(t, kErr)
	t.Cleanup(func() { _ = m.Shutdown() })

	// Drain the allocator
	for {
		if _, kErr := m.Allocator.AllocFrame(); kErr != nil {
			break
		}
	}

	_, err := runScript(t, m, "map_to 0x1000 5\n")
	require.Error(t, err)
	assert.Equal(t, "line 1: out of memory", err.Error())
}

func TestDemoCommand(t *testing.T) {
	t.Setenv(envConfigPath, "")
	t.Setenv(envLogLevel, "")

	var stdout, stderr bytes.Buffer
	rootCmd.SetOut(&stdout)
	rootCmd.SetErr(&stderr)
	rootCmd.SetArgs([]string{"demo", "--log-level", "warn"})
	t.Cleanup(func() {
		rootCmd.SetOut(nil)
		rootCmd.SetErr(nil)
		rootCmd.SetArgs(nil)
	})

	require.Equal(t, 0, Execute())

	assert.Equal(t, strings.Join([]string{
		"map 0x1000 -> 0x5000",
		"translate 0x1000 -> 0x5000",
		"translate 0x1064 -> 0x5064",
		"0x0000000000001000 -> 0x000000005000     4KiB P1 P|RW",
		"1 mapping(s)",
		"unmap 0x1000",
		"translate 0x1000 -> unmapped",
		"free frames: 16124 of 16384",
	}, "\n")+"\n", stdout.String())
}

func TestRunCommand(t *testing.T) {
	t.Setenv(envConfigPath, "")
	t.Setenv(envLogLevel, "")

	var stdout, stderr bytes.Buffer
	rootCmd.SetOut(&stdout)
	rootCmd.SetErr(&stderr)
	rootCmd.SetArgs([]string{"run", "--config", "testdata/pagemap.toml", "testdata/identity.script"})
	t.Cleanup(func() {
		rootCmd.SetOut(nil)
		rootCmd.SetErr(nil)
		rootCmd.SetArgs(nil)
		configPath = ""
	})

	require.Equal(t, 0, Execute(), stderr.String())

	assert.Equal(t, strings.Join([]string{
		"map 0x400000 -> 0x400000",
		"map 0x401000 -> 0x401000",
		"map 0x402000 -> 0x402000",
		"map 0x403000 -> 0x403000",
		"translate 0x400010 -> 0x400010",
		"translate 0x403fff -> 0x403fff",
		"translate 0x404000 -> unmapped",
	}, "\n")+"\n", stdout.String())
	assert.Equal(t, 8*mm.Mb, activeConfig.Machine.MemorySize)
}
