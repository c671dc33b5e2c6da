package checkpointer

import (
	"fmt"
	"time"
)

// FilenameEnumerator returns a function which returns filenames with a
// counter suffix. Each call returns a suffix one higher than the
// previous call, starting after start. The filename parameter is the
// full filename with its path, while the extension parameter sets the
// file extension.
func FilenameEnumerator(start int, filename, extension string) func(int64) string {
	i := start
	return func(int64) string {
		i++
		return fmt.Sprintf("%v%v%v", filename, i, extension)
	}
}

// FileTimer returns a function which appends to a filename the number
// of nanoseconds since January 1, 1970
func FileTimer(filename, extension string) func(int64) string {
	return func(int64) string {
		return fmt.Sprintf("%v-%v%v", filename, time.Now().UnixNano(),
			extension)
	}
}

// FileVersion returns a function which appends the policy version to a
// filename
func FileVersion(filename, extension string) func(int64) string {
	return func(version int64) string {
		return fmt.Sprintf("%v-v%v%v", filename, version, extension)
	}
}
