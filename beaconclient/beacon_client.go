// Package beaconclient provides a beacon-node event stream client
package beaconclient

// BeaconNodeClient is the lifecycle API of an event stream client.
type BeaconNodeClient interface {
	Subscribe(topics ...Topic) error
	AddListener(topic Topic, fn Listener) (ListenerID, error)
	RemoveListener(topic Topic, id ListenerID) error
	Start() error
	Stop() error
	IsConnected() bool
	State() State
	Topics() []Topic
	Stats() Stats
	GetURI() string
	Close() error
}
