package ffmpeg

import (
	"os"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestXfadeFilterTwoClips(t *testing.T) {
	filter := XfadeFilter([]float64{5, 5}, 1.0)
	require.Equal(t, "[0:v][1:v]xfade=transition=fade:duration=1:offset=4.000[vout]", filter)
}

func TestXfadeFilterThreeClips(t *testing.T) {
	filter := XfadeFilter([]float64{5, 10, 5}, 1.0)
	parts := strings.Split(filter, ";")
	require.Len(t, parts, 2)

	// First transition 1s before the end of clip 0, second 1s before the
	// end of the merged 5+10-1 timeline.
	require.Equal(t, "[0:v][1:v]xfade=transition=fade:duration=1:offset=4.000[v1]", parts[0])
	require.Equal(t, "[v1][2:v]xfade=transition=fade:duration=1:offset=13.000[vout]", parts[1])
}

func TestAssembleFilter(t *testing.T) {
	filter := AssembleFilter(2, 1280, 720)
	require.Contains(t, filter, "[0:v]scale=1280:720:force_original_aspect_ratio=decrease,pad=1280:720:(ow-iw)/2:(oh-ih)/2,setsar=1[v0]")
	require.Contains(t, filter, "[1:v]scale=1280:720")
	require.True(t, strings.HasSuffix(filter, "[v0][v1]concat=n=2:v=1:a=0[out]"))
}

func TestWriteConcatListEscaping(t *testing.T) {
	path, err := writeConcatList([]string{"clips/clip_001.mp4", "clips/clip_002.mp4"})
	require.NoError(t, err)
	t.Cleanup(func() { os.Remove(path) })

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	lines := strings.Split(strings.TrimSpace(string(data)), "\n")
	require.Len(t, lines, 2)
	for _, line := range lines {
		require.True(t, strings.HasPrefix(line, "file '"))
		require.True(t, strings.HasSuffix(line, ".mp4'"))
	}
}
