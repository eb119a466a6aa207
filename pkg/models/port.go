package models

// Port represents a connection point on a node.
type Port struct {
	ID          string `json:"id"`      // Globally unique: "{nodeID}:{portName}"
	NodeID      string `json:"node_id"` // Which node this port belongs to
	Name        string `json:"name"`    // Port name (unique within node)
	Description string `json:"description,omitempty"`
}

// PortArity declares how many input and output ports a node type exposes.
type PortArity struct {
	Inputs  []string `json:"inputs"`
	Outputs []string `json:"outputs"`
}

// HasInput reports whether the arity declares an input port with the given name.
func (a PortArity) HasInput(name string) bool {
	for _, p := range a.Inputs {
		if p == name {
			return true
		}
	}

	return false
}

// HasOutput reports whether the arity declares an output port with the given name.
func (a PortArity) HasOutput(name string) bool {
	for _, p := range a.Outputs {
		if p == name {
			return true
		}
	}

	return false
}

// ParsePortID parses a port ID in format "{node_id}:{port_name}" into components.
func ParsePortID(portID string) (string, string, bool) {
	for i := range len(portID) {
		if portID[i] == ':' {
			return portID[:i], portID[i+1:], true
		}
	}

	return "", "", false
}

// MakePortID creates a port ID from node ID and port name.
func MakePortID(nodeID, portName string) string {
	return nodeID + ":" + portName
}
