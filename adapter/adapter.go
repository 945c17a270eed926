// Package adapter binds canbtr.Transport to real and emulated adapters.
package adapter

import (
	"fmt"
	"log"
	"sort"
	"strings"

	"github.com/roffe/canbtr"
)

const DefaultPortBaudrate = 2000000

type Config struct {
	Port         string
	PortBaudrate int
	OnMessage    func(string)
}

type AdapterInfo struct {
	Name               string
	Description        string
	RequiresSerialPort bool
	New                func(*Config) (canbtr.Transport, error)
}

func (a *AdapterInfo) String() string {
	return fmt.Sprintf("%s | %s, requires serial port: %v", a.Name, a.Description, a.RequiresSerialPort)
}

var adapterMap = make(map[string]*AdapterInfo)

// Register makes an adapter available by name. It is meant to be called from init.
func Register(adapter *AdapterInfo) error {
	key := strings.ToLower(adapter.Name)
	if _, found := adapterMap[key]; found {
		return fmt.Errorf("adapter %s already registered", adapter.Name)
	}
	adapterMap[key] = adapter
	return nil
}

// New opens the named adapter. Names are case insensitive.
func New(adapterName string, cfg *Config) (canbtr.Transport, error) {
	if cfg.OnMessage == nil {
		cfg.OnMessage = func(msg string) {
			log.Println(msg)
		}
	}
	if cfg.PortBaudrate == 0 {
		cfg.PortBaudrate = DefaultPortBaudrate
	}
	adapter, found := Lookup(adapterName)
	if !found {
		return nil, fmt.Errorf("%w: unknown adapter %q, available: %s", canbtr.ErrInvalidParameter,
			adapterName, strings.Join(ListAdapterNames(), ", "))
	}
	if adapter.RequiresSerialPort && cfg.Port == "" {
		return nil, fmt.Errorf("%w: adapter %s requires a serial port", canbtr.ErrInvalidParameter, adapter.Name)
	}
	return adapter.New(cfg)
}

// Lookup returns the registration of the named adapter.
func Lookup(adapterName string) (*AdapterInfo, bool) {
	adapter, found := adapterMap[strings.ToLower(adapterName)]
	return adapter, found
}

func ListAdapterNames() []string {
	var out []string
	for _, adapter := range adapterMap {
		out = append(out, adapter.Name)
	}
	sort.Slice(out, func(i, j int) bool { return strings.ToLower(out[i]) < strings.ToLower(out[j]) })
	return out
}

func ListAdapters() []AdapterInfo {
	var out []AdapterInfo
	for _, adapter := range adapterMap {
		out = append(out, *adapter)
	}
	sort.Slice(out, func(i, j int) bool { return strings.ToLower(out[i].Name) < strings.ToLower(out[j].Name) })
	return out
}
