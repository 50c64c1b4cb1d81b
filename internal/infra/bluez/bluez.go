// Package bluez drives a Bluetooth audio sink through the BlueZ D-Bus API.
package bluez

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"

	"github.com/godbus/dbus/v5"
	"github.com/rs/zerolog/log"

	"github.com/edumarques81/stellar-pocket/internal/domain/link"
)

const (
	service = "org.bluez"

	adapterIface    = "org.bluez.Adapter1"
	deviceIface     = "org.bluez.Device1"
	propertiesIface = "org.freedesktop.DBus.Properties"
	objectMgrIface  = "org.freedesktop.DBus.ObjectManager"

	signalPropertiesChanged = propertiesIface + ".PropertiesChanged"
	signalInterfacesAdded   = objectMgrIface + ".InterfacesAdded"
)

// ErrNoDevice is returned by Disconnect when no connect was ever issued.
var ErrNoDevice = errors.New("no device selected")

// Device implements link.Device on one BlueZ adapter.
type Device struct {
	conn    *dbus.Conn
	adapter dbus.ObjectPath
	signals chan *dbus.Signal

	mu      sync.Mutex
	target  link.Address
	onState func(addr link.Address, connected bool)
	found   func(link.DiscoveredDevice)
}

// New subscribes to BlueZ signals for adapter (e.g. "hci0"). Call Run to
// process them.
func New(conn *dbus.Conn, adapter string) (*Device, error) {
	d := newDevice(adapter)
	d.conn = conn

	if err := conn.AddMatchSignal(
		dbus.WithMatchInterface(propertiesIface),
		dbus.WithMatchMember("PropertiesChanged"),
		dbus.WithMatchPathNamespace(d.adapter),
	); err != nil {
		return nil, fmt.Errorf("failed to add PropertiesChanged match: %w", err)
	}
	if err := conn.AddMatchSignal(
		dbus.WithMatchInterface(objectMgrIface),
		dbus.WithMatchMember("InterfacesAdded"),
	); err != nil {
		return nil, fmt.Errorf("failed to add InterfacesAdded match: %w", err)
	}
	conn.Signal(d.signals)

	log.Info().Str("adapter", string(d.adapter)).Msg("BlueZ adapter attached")
	return d, nil
}

func newDevice(adapter string) *Device {
	return &Device{
		adapter: dbus.ObjectPath("/org/bluez/" + adapter),
		signals: make(chan *dbus.Signal, 32),
	}
}

// Run dispatches D-Bus signals until ctx is done.
func (d *Device) Run(ctx context.Context) error {
	defer d.conn.RemoveSignal(d.signals)
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case sig, ok := <-d.signals:
			if !ok || sig == nil {
				return nil
			}
			d.handleSignal(sig)
		}
	}
}

// OnConnectionStateChanged implements link.Device.
func (d *Device) OnConnectionStateChanged(fn func(addr link.Address, connected bool)) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.onState = fn
}

// Connect implements link.Device. The outcome arrives through the
// connection-state callback.
func (d *Device) Connect(addr link.Address) error {
	d.mu.Lock()
	d.target = addr
	d.mu.Unlock()

	obj := d.conn.Object(service, DevicePath(d.adapter, addr))
	done := make(chan *dbus.Call, 1)
	call := obj.Go(deviceIface+".Connect", 0, done)
	if call.Err != nil {
		return fmt.Errorf("failed to connect %s: %w", addr, call.Err)
	}

	go func() {
		result := <-done
		if result.Err != nil {
			log.Warn().Err(result.Err).Str("address", addr.String()).Msg("Connect failed")
			d.report(addr, false)
			return
		}
		d.report(addr, true)
	}()
	return nil
}

// Disconnect implements link.Device.
func (d *Device) Disconnect() error {
	d.mu.Lock()
	addr := d.target
	d.mu.Unlock()
	if addr.IsZero() {
		return ErrNoDevice
	}

	obj := d.conn.Object(service, DevicePath(d.adapter, addr))
	if err := obj.Call(deviceIface+".Disconnect", 0).Err; err != nil {
		return fmt.Errorf("failed to disconnect %s: %w", addr, err)
	}
	return nil
}

// Connected implements link.Device.
func (d *Device) Connected() bool {
	d.mu.Lock()
	addr := d.target
	d.mu.Unlock()
	if addr.IsZero() {
		return false
	}

	v, err := d.conn.Object(service, DevicePath(d.adapter, addr)).GetProperty(deviceIface + ".Connected")
	if err != nil {
		return false
	}
	connected, _ := v.Value().(bool)
	return connected
}

// StartDiscovery implements link.Device. Devices BlueZ already knows are
// reported first.
func (d *Device) StartDiscovery(found func(link.DiscoveredDevice)) error {
	d.mu.Lock()
	d.found = found
	d.mu.Unlock()

	adapter := d.conn.Object(service, d.adapter)
	filter := map[string]dbus.Variant{"Transport": dbus.MakeVariant("bredr")}
	if err := adapter.Call(adapterIface+".SetDiscoveryFilter", 0, filter).Err; err != nil {
		log.Debug().Err(err).Msg("Discovery filter rejected")
	}
	if err := adapter.Call(adapterIface+".StartDiscovery", 0).Err; err != nil {
		return fmt.Errorf("failed to start discovery: %w", err)
	}

	var objects map[dbus.ObjectPath]map[string]map[string]dbus.Variant
	if err := d.conn.Object(service, "/").Call(objectMgrIface+".GetManagedObjects", 0).Store(&objects); err != nil {
		log.Warn().Err(err).Msg("Failed to list known devices")
		return nil
	}
	for path, ifaces := range objects {
		if props, ok := ifaces[deviceIface]; ok && d.owns(path) {
			if dev, ok := parseDevice(path, props); ok {
				found(dev)
			}
		}
	}
	return nil
}

// StopDiscovery implements link.Device.
func (d *Device) StopDiscovery() error {
	d.mu.Lock()
	d.found = nil
	d.mu.Unlock()

	if err := d.conn.Object(service, d.adapter).Call(adapterIface+".StopDiscovery", 0).Err; err != nil {
		return fmt.Errorf("failed to stop discovery: %w", err)
	}
	return nil
}

func (d *Device) handleSignal(sig *dbus.Signal) {
	switch sig.Name {
	case signalPropertiesChanged:
		if !d.owns(sig.Path) {
			return
		}
		addr, changed, ok := parsePropertiesChanged(sig)
		if !ok {
			return
		}
		if v, ok := changed["Connected"]; ok {
			if connected, ok := v.Value().(bool); ok {
				log.Debug().Str("address", addr.String()).Bool("connected", connected).Msg("Connection state changed")
				d.report(addr, connected)
			}
		}
		if name := deviceName(changed); name != "" {
			d.discovered(link.DiscoveredDevice{Address: addr, Name: name})
		}

	case signalInterfacesAdded:
		if len(sig.Body) < 2 {
			return
		}
		path, ok := sig.Body[0].(dbus.ObjectPath)
		if !ok || !d.owns(path) {
			return
		}
		ifaces, ok := sig.Body[1].(map[string]map[string]dbus.Variant)
		if !ok {
			return
		}
		if props, ok := ifaces[deviceIface]; ok {
			if dev, ok := parseDevice(path, props); ok {
				d.discovered(dev)
			}
		}
	}
}

func (d *Device) report(addr link.Address, connected bool) {
	d.mu.Lock()
	fn := d.onState
	d.mu.Unlock()
	if fn != nil {
		fn(addr, connected)
	}
}

func (d *Device) discovered(dev link.DiscoveredDevice) {
	d.mu.Lock()
	fn := d.found
	d.mu.Unlock()
	if fn != nil {
		fn(dev)
	}
}

func (d *Device) owns(path dbus.ObjectPath) bool {
	return strings.HasPrefix(string(path), string(d.adapter)+"/")
}

// DevicePath returns the BlueZ object path of addr on adapter.
func DevicePath(adapter dbus.ObjectPath, addr link.Address) dbus.ObjectPath {
	s := strings.ToUpper(strings.ReplaceAll(addr.String(), ":", "_"))
	return dbus.ObjectPath(string(adapter) + "/dev_" + s)
}

// AddressFromPath parses the address out of a BlueZ device path.
func AddressFromPath(path dbus.ObjectPath) (link.Address, bool) {
	s := string(path)
	i := strings.LastIndex(s, "/dev_")
	if i < 0 {
		return link.Address{}, false
	}
	rest := s[i+len("/dev_"):]
	if strings.Contains(rest, "/") {
		return link.Address{}, false
	}
	addr, err := link.ParseAddress(strings.ReplaceAll(rest, "_", ":"))
	if err != nil {
		return link.Address{}, false
	}
	return addr, true
}

func parsePropertiesChanged(sig *dbus.Signal) (link.Address, map[string]dbus.Variant, bool) {
	if len(sig.Body) < 2 {
		return link.Address{}, nil, false
	}
	if iface, ok := sig.Body[0].(string); !ok || iface != deviceIface {
		return link.Address{}, nil, false
	}
	changed, ok := sig.Body[1].(map[string]dbus.Variant)
	if !ok {
		return link.Address{}, nil, false
	}
	addr, ok := AddressFromPath(sig.Path)
	if !ok {
		return link.Address{}, nil, false
	}
	return addr, changed, true
}

func parseDevice(path dbus.ObjectPath, props map[string]dbus.Variant) (link.DiscoveredDevice, bool) {
	var addr link.Address
	var err error
	if v, ok := props["Address"]; ok {
		s, _ := v.Value().(string)
		addr, err = link.ParseAddress(s)
	}
	if addr.IsZero() || err != nil {
		var ok bool
		if addr, ok = AddressFromPath(path); !ok {
			return link.DiscoveredDevice{}, false
		}
	}
	return link.DiscoveredDevice{Address: addr, Name: deviceName(props)}, true
}

func deviceName(props map[string]dbus.Variant) string {
	for _, key := range []string{"Alias", "Name"} {
		if v, ok := props[key]; ok {
			if s, ok := v.Value().(string); ok && s != "" {
				return s
			}
		}
	}
	return ""
}
