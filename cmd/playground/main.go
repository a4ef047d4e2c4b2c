// Playground is a terminal and HTTP host for the simulated redis, mongo and
// cassandra engines.
//
// Usage:
//
//	playground [command] [flags]
//
// Commands:
//
//	shell     interactive shell (default)
//	serve     HTTP API, optionally with a shell on the same terminal
//	export    write every bucket to an archive file
//	import    replace every bucket from an archive file
//	buckets   list the stored bucket files
//	reset     delete the stored bucket files
//	version   print the version
//
// Every flag can also be set as PLAYGROUND_<FLAG> (e.g. PLAYGROUND_DATA_DIR),
// in .env or .env.local, or in the file given by --config.
package main

import (
	"os"
)

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}
