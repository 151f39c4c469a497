//go:build linux

package vma

import (
	"fmt"
	"os"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const sampleMaps = `55d74cf13000-55d74cf14000 rw-p 00003000 fe:03 1194719                    /usr/bin/python3.8
55d74cf14000-55d74cf20000 r-xp 00004000 fe:03 1194719                    /usr/bin/python3.8
55d74e76d000-55d74e968000 rw-p 00000000 00:00 0                          [heap]
7f3bcfe69000-7f3c4fe6a000 rw-p 00000000 00:00 0
7ffc7e3a9000-7ffc7e3ca000 rw-p 00000000 00:00 0                          [stack]
7ffc7e3f0000-7ffc7e3f4000 r--p 00000000 00:00 0                          [vvar]
7ffc7e3f4000-7ffc7e3f6000 r-xp 00000000 00:00 0                          [vdso]
ffffffffff600000-ffffffffff601000 --xp 00000000 00:00 0                  [vsyscall]
garbage line that should be skipped
7f3c50000000-7f3c50021000 rw-s 00000000 00:05 262150                     /memfd:shm (deleted)
`

func TestParse(t *testing.T) {
	regions := Parse(strings.NewReader(sampleMaps))
	require.Len(t, regions, 9)

	first := regions[0]
	assert.Equal(t, uint64(0x55d74cf13000), first.Start)
	assert.Equal(t, uint64(0x55d74cf14000), first.End)
	assert.Equal(t, "rw-p", first.Perms)
	assert.Equal(t, uint64(0x3000), first.Offset)
	assert.Equal(t, "fe:03", first.Device)
	assert.Equal(t, uint64(1194719), first.Inode)
	assert.Equal(t, "/usr/bin/python3.8", first.Pathname)

	anon := regions[3]
	assert.Equal(t, "", anon.Pathname)
	assert.Equal(t, uint64(0x7f3bcfe69000), anon.Start)
}

func TestRegion_Writable(t *testing.T) {
	assert.True(t, Region{Perms: "rw-p"}.Writable())
	assert.True(t, Region{Perms: "rw-s"}.Writable())
	assert.False(t, Region{Perms: "r-xp"}.Writable())
	assert.False(t, Region{Perms: "r--p"}.Writable())
	assert.False(t, Region{Perms: ""}.Writable())
}

func TestRegion_Pages(t *testing.T) {
	r := Region{Start: 0x1000, End: 0x5000}
	assert.Equal(t, uint64(4), r.Pages(4096))
}

func TestRegion_Type(t *testing.T) {
	cases := []struct {
		pathname string
		perms    string
		want     string
	}{
		{"[heap]", "rw-p", "heap"},
		{"[stack]", "rw-p", "stack"},
		{"[vdso]", "r-xp", "vdso"},
		{"[vvar]", "r--p", "vdso"},
		{"[vsyscall]", "--xp", "vdso"},
		{"", "rw-p", "anonymous"},
		{"/usr/bin/python3.8", "r-xp", "code"},
		{"/usr/bin/python3.8", "rw-p", "data"},
		{"/usr/lib/libc.so.6", "r--p", "data"},
		{"[anon:scudo]", "rw-p", "unknown"},
		{"anon_inode:[eventfd]", "rw-p", "unknown"},
	}
	for i, tc := range cases {
		t.Run(fmt.Sprintf("case_%d_%s", i, tc.want), func(t *testing.T) {
			r := Region{Pathname: tc.pathname, Perms: tc.perms}
			got := r.Type()
			require.Equal(t, tc.want, got)
			// classification is a pure function: same input, same class
			require.Equal(t, got, r.Type())
		})
	}
}

func TestParseMaps_Self(t *testing.T) {
	regions, err := ParseMaps(os.Getpid())
	require.NoError(t, err)
	require.NotEmpty(t, regions)

	var hasWritable bool
	for _, r := range regions {
		assert.GreaterOrEqual(t, r.End, r.Start)
		if r.Writable() {
			hasWritable = true
		}
	}
	assert.True(t, hasWritable, "a live Go process always has writable regions")
}

func TestParseMaps_NoSuchPid(t *testing.T) {
	_, err := ParseMaps(999999999)
	require.Error(t, err)
}
