package main

import (
	"fmt"

	"go.bug.st/serial"
)

// listPorts is serial.GetPortsList unless replaced in tests.
var listPorts = serial.GetPortsList

// runPorts lists the serial ports a P100 could be attached to.
func (a *app) runPorts(args []string) error {
	if len(args) > 0 {
		return usageError("ports takes no arguments")
	}
	ports, err := listPorts()
	if err != nil {
		return fmt.Errorf("listing serial ports: %w", err)
	}
	if len(ports) == 0 {
		fmt.Fprintln(a.out, "No serial ports found")
		return nil
	}
	for _, p := range ports {
		fmt.Fprintln(a.out, p)
	}
	return nil
}
