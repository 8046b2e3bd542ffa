// Command devtools talks to a debugging endpoint from the shell: send commands,
// follow events, publish and resolve endpoint addresses, or run a loopback peer.
package main

import "os"

func main() {
	if err := RootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}
