// Command lookup drives the product suggestion and verification core from a
// terminal, using the same configuration as the server.
package main

import "os"

func main() {
	err := rootCmd.Execute()
	closeCore()
	if err != nil {
		os.Exit(1)
	}
}
