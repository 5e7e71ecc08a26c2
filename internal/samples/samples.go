// Package samples bundles representative webhook deliveries for each event type. They
// back the send-samples command and serve as fixtures in tests.
package samples

import (
	"embed"
	"fmt"
)

//go:embed payloads/*.json
var payloads embed.FS

// Names lists the bundled samples in the order they are sent.
var Names = []string{"uplink", "alert", "ping"}

// Load returns the raw JSON body of the named sample.
func Load(name string) ([]byte, error) {
	b, err := payloads.ReadFile("payloads/" + name + ".json")
	if err != nil {
		return nil, fmt.Errorf("unknown sample %q: %w", name, err)
	}
	return b, nil
}

// MustLoad is Load for tests and static tables.
func MustLoad(name string) []byte {
	b, err := Load(name)
	if err != nil {
		panic(err)
	}
	return b
}

const (
	UplinkDeviceID = "1eaedbc0-75f7-11eb-8585-01d3d033571a"
	AlertDeviceID  = "e3d81db0-75f9-11eb-8585-01d3d033571a"
	PingDeviceID   = "f2a4d140-9f5f-11ec-8d8f-0ffa3ba25edd"

	UplinkTimestamp = int64(1614196169569)
	AlertTimestamp  = int64(1614201509775)
	PingTimestamp   = int64(1677561910261)
)
