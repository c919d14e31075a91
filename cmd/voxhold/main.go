// Command voxhold is a push-to-talk dictation daemon. Each configured
// profile binds a hotkey to a whisper model: hold the keys to record,
// release to transcribe, and the text is typed into the focused window.
//
// Usage:
//
//	voxhold run [--config path]
//	voxhold init
//	voxhold check
//	voxhold listen
//	voxhold inject [--method type|paste] [text]
//	voxhold devices
//	voxhold models pull <name>...
package main

import (
	"fmt"
	"os"
)

func main() {
	if err := Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}
