package adapter

import (
	"errors"
	"fmt"
	"runtime"
	"strings"

	"github.com/roffe/canbtr"
	"go.bug.st/serial/enumerator"
)

var ErrNoPorts = errors.New("no serial ports found")

// ListPorts returns the serial ports present on this machine.
func ListPorts() ([]*enumerator.PortDetails, error) {
	ports, err := enumerator.GetDetailedPortsList()
	if err != nil {
		return nil, err
	}
	if len(ports) == 0 {
		return nil, ErrNoPorts
	}
	return ports, nil
}

// DescribePort formats a port the way the ports command prints it.
func DescribePort(port *enumerator.PortDetails) string {
	if !port.IsUSB {
		return port.Name
	}
	desc := fmt.Sprintf("%s  USB ID %s:%s", port.Name, port.VID, port.PID)
	if port.SerialNumber != "" {
		desc += "  serial " + port.SerialNumber
	}
	return desc
}

// resolvePort matches the name against the enumerated ports ignoring case.
// Unknown names are passed through, some systems expose ports the
// enumerator cannot see.
func resolvePort(portName string) (string, error) {
	if portName == "" {
		return "", fmt.Errorf("%w: no port given", canbtr.ErrInvalidParameter)
	}
	if runtime.GOOS == "windows" {
		portName = strings.ToUpper(portName)
	}
	ports, err := enumerator.GetDetailedPortsList()
	if err != nil || len(ports) == 0 {
		return portName, nil
	}
	for _, port := range ports {
		if strings.EqualFold(port.Name, portName) {
			return port.Name, nil
		}
	}
	return portName, nil
}
