package main

import "github.com/carpool-sim/carpool-sim/cmd"

func main() {
	cmd.Execute()
}
