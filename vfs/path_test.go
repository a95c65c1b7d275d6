package vfs

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestCanonicalizePath(t *testing.T) {
	tests := []struct {
		in, want string
	}{
		{`\Device\Cdrom0\default.xex`, `\Device\Cdrom0\default.xex`},
		{`/Device//Cdrom0/./media/`, `\Device\Cdrom0\media`},
		{`game:\media\..\default.xex`, `game:\default.xex`},
		{`\..\a`, `\a`},
		{``, ``},
		{`\`, `\`},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			assert.Equal(t, tt.want, CanonicalizePath(tt.in))
		})
	}
}

func TestPathHelpers(t *testing.T) {
	assert.Equal(t, []string{"a", "b", "c"}, SplitPath(`\a/b\\c\`))
	assert.Equal(t, `\Device\Cdrom0\media`, JoinPath(`\Device\Cdrom0\`, "media"))
	assert.Equal(t, `a\b`, JoinPath("", "a", "", "b"))
	assert.Equal(t, `\Device\Cdrom0`, BasePath(`\Device\Cdrom0\default.xex`))
	assert.Equal(t, "", BasePath("default.xex"))
	assert.Equal(t, "default.xex", NameFromPath(`\Device\Cdrom0\default.xex`))
	assert.Equal(t, "media", NameFromPath(`game:\media\`))
}

func TestHasPathPrefixFold(t *testing.T) {
	tests := []struct {
		path, prefix string
		want         bool
	}{
		{`\Device\Cdrom0\x`, `\device\CDROM0`, true},
		{`\Device\Cdrom0`, `\Device\Cdrom0`, true},
		{`\Device\Cdrom01\x`, `\Device\Cdrom0`, false},
		{`game:\x`, `game:`, true},
		{`game:\x`, `game:\`, true},
		{`gamer:\x`, `game`, false},
		{`\a`, `\a\b`, false},
		{`\a`, ``, true},
	}
	for _, tt := range tests {
		t.Run(tt.path+"|"+tt.prefix, func(t *testing.T) {
			assert.Equal(t, tt.want, hasPathPrefixFold(tt.path, tt.prefix))
		})
	}
}
