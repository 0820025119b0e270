package ble

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"sync"

	"tinygo.org/x/bluetooth"

	"github.com/IceNet-01/Mesh-Bridge-GUI-sub003/errors"
)

// writeChunkSize keeps characteristic writes under the smallest MTU the
// radios negotiate in practice.
const writeChunkSize = 180

// nusLink is the production GATT transport: a central connection to the
// peripheral's Nordic UART service. Frames write to the RX characteristic
// and arrive as TX notifications.
type nusLink struct {
	logger *slog.Logger

	mu        sync.Mutex
	device    bluetooth.Device
	writeChar bluetooth.DeviceCharacteristic
	connected bool
}

func newNUSLink(logger *slog.Logger) *nusLink {
	if logger == nil {
		logger = slog.Default()
	}
	return &nusLink{logger: logger.With("component", "nuslink")}
}

// Dial scans for the peripheral by address, connects, and wires the UART
// characteristics.
func (l *nusLink) Dial(ctx context.Context, endpoint string, onData func([]byte)) error {
	ble := bluetooth.DefaultAdapter
	if err := ble.Enable(); err != nil {
		return errors.WrapFatal(err, "nusLink", "Dial", "adapter enable")
	}

	addr, err := l.scan(ctx, ble, endpoint)
	if err != nil {
		return err
	}

	device, err := ble.Connect(addr, bluetooth.ConnectionParams{})
	if err != nil {
		return errors.WrapTransient(err, "nusLink", "Dial", "connect")
	}

	services, err := device.DiscoverServices([]bluetooth.UUID{bluetooth.ServiceUUIDNordicUART})
	if err != nil || len(services) == 0 {
		_ = device.Disconnect()
		return errors.WrapFatal(
			fmt.Errorf("%w: nordic uart service", errors.ErrMissingCharacteristic),
			"nusLink", "Dial", "service discovery")
	}

	chars, err := services[0].DiscoverCharacteristics([]bluetooth.UUID{
		bluetooth.CharacteristicUUIDUARTRX,
		bluetooth.CharacteristicUUIDUARTTX,
	})
	if err != nil || len(chars) < 2 {
		_ = device.Disconnect()
		return errors.WrapFatal(
			fmt.Errorf("%w: uart rx/tx", errors.ErrMissingCharacteristic),
			"nusLink", "Dial", "characteristic discovery")
	}

	var writeChar, notifyChar bluetooth.DeviceCharacteristic
	for _, c := range chars {
		switch c.UUID() {
		case bluetooth.CharacteristicUUIDUARTRX:
			writeChar = c
		case bluetooth.CharacteristicUUIDUARTTX:
			notifyChar = c
		}
	}

	if err := notifyChar.EnableNotifications(func(buf []byte) {
		onData(buf)
	}); err != nil {
		_ = device.Disconnect()
		return errors.WrapFatal(
			fmt.Errorf("%w: notifications on uart tx", errors.ErrMissingCharacteristic),
			"nusLink", "Dial", "enable notifications")
	}

	l.mu.Lock()
	l.device = device
	l.writeChar = writeChar
	l.connected = true
	l.mu.Unlock()

	l.logger.Debug("gatt link established", "address", endpoint)
	return nil
}

// scan finds the peripheral advertising under the endpoint address. The
// context bounds the scan.
func (l *nusLink) scan(ctx context.Context, ble *bluetooth.Adapter, endpoint string) (bluetooth.Address, error) {
	found := make(chan bluetooth.Address, 1)
	scanErr := make(chan error, 1)

	go func() {
		err := ble.Scan(func(_ *bluetooth.Adapter, result bluetooth.ScanResult) {
			if strings.EqualFold(result.Address.String(), endpoint) {
				select {
				case found <- result.Address:
				default:
				}
				_ = ble.StopScan()
			}
		})
		if err != nil {
			scanErr <- err
		}
	}()

	select {
	case addr := <-found:
		return addr, nil
	case err := <-scanErr:
		return bluetooth.Address{}, errors.WrapTransient(err, "nusLink", "scan", "scan")
	case <-ctx.Done():
		_ = ble.StopScan()
		return bluetooth.Address{}, errors.WrapTransient(
			fmt.Errorf("%w: peripheral %s not found", errors.ErrDeviceUnreachable, endpoint),
			"nusLink", "scan", "scan window")
	}
}

// Write sends p to the RX characteristic in MTU-sized chunks.
func (l *nusLink) Write(p []byte) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if !l.connected {
		return errors.Wrap(errors.ErrNotConnected, "nusLink", "Write", "link check")
	}

	for len(p) > 0 {
		n := len(p)
		if n > writeChunkSize {
			n = writeChunkSize
		}
		if _, err := l.writeChar.WriteWithoutResponse(p[:n]); err != nil {
			return errors.WrapTransient(err, "nusLink", "Write", "characteristic write")
		}
		p = p[n:]
	}
	return nil
}

// Close drops the GATT connection.
func (l *nusLink) Close() error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if !l.connected {
		return nil
	}
	l.connected = false
	return l.device.Disconnect()
}
