package main

import (
	"github.com/lorawan-sim/virtual-lorawan-device/cmd/virtual-lorawan-device/cmd"
)

var version string // set by the compiler

func main() {
	cmd.Execute(version)
}
