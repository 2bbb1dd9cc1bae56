// Command radarctl plans, runs, and reports on the radar frame pipeline.
package main

import "github.com/sarchlab/radarctl/radarctl/cmd"

func main() {
	cmd.Execute()
}
