// Package device is the simulated OmniStream handset: module selector,
// scan generator, ghost mode and the rolling action log.
package device

import "errors"

type Module string

const (
	SubGHz    Module = "Sub-GHz"
	NFC       Module = "NFC"
	RFID      Module = "RFID"
	Infrared  Module = "Infrared"
	Bluetooth Module = "Bluetooth"
	WiFi      Module = "Wi-Fi 7"
	GPIO      Module = "GPIO"
	NeuralLab Module = "Neural Lab"
)

// Modules lists every module in display order.
var Modules = []Module{SubGHz, NFC, RFID, Infrared, Bluetooth, WiFi, GPIO, NeuralLab}

var ErrUnknownModule = errors.New("unknown module")

// Names returns the module names in display order.
func Names() []string {
	out := make([]string, len(Modules))
	for i, m := range Modules {
		out[i] = string(m)
	}
	return out
}

// ParseModule matches name exactly against the catalog.
func ParseModule(name string) (Module, bool) {
	for _, m := range Modules {
		if string(m) == name {
			return m, true
		}
	}
	return "", false
}
