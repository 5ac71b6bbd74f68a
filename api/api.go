// Package api holds the documents exchanged between cloudd and cloudctl over
// the Cloudd gRPC service.
package api

import "time"

const DefaultAddress = "localhost:25373"

type PingRequest struct{}

type Ping struct {
	Version string `json:"version"`
	Commit  string `json:"commit"`
}

type Cloud struct {
	ID          string     `json:"id"`
	InstanceCap *int       `json:"instanceCap,omitempty"`
	Templates   []Template `json:"templates"`
}

type Template struct {
	Image       string   `json:"image"`
	Flavor      string   `json:"flavor"`
	Zone        string   `json:"zone,omitempty"`
	Description string   `json:"description,omitempty"`
	Labels      []string `json:"labels,omitempty"`
}

type ListCloudsRequest struct{}

type CloudList struct {
	Clouds []Cloud `json:"clouds"`
}

// CloudRequest names the cloud an operation applies to.
type CloudRequest struct {
	Cloud string `json:"cloud"`
}

type ProvisionRequest struct {
	Cloud  string `json:"cloud"`
	Label  string `json:"label"`
	Demand int    `json:"demand"`
	// Wait holds the response until every planned node finished launching.
	Wait bool `json:"wait"`
}

type ProvisionTemplateRequest struct {
	Cloud string `json:"cloud"`
	Image string `json:"image"`
	Wait  bool   `json:"wait"`
}

type AttachRequest struct {
	Cloud    string `json:"cloud"`
	Instance string `json:"instance"`
	Wait     bool   `json:"wait"`
}

type ImageRequest struct {
	Cloud string `json:"cloud"`
	Image string `json:"image"`
}

type KeygenRequest struct {
	Bits int `json:"bits,omitempty"`
}

type ListNodesRequest struct {
	Cloud   string `json:"cloud,omitempty"`
	Refresh bool   `json:"refresh"`
}

type NodeList struct {
	Nodes []Node `json:"nodes"`
}

// NodeRequest references a node by instance id or name.
type NodeRequest struct {
	Node string `json:"node"`
}

type ConsoleRequest struct {
	Node  string `json:"node"`
	Lines int    `json:"lines"`
}

type LogRequest struct {
	Node      string `json:"node"`
	TailLines int    `json:"tailLines"`
	// Follow keeps the stream open while the node is launching.
	Follow bool `json:"follow"`
}

type LogChunk struct {
	Data []byte `json:"data"`
}

type Empty struct{}

type Node struct {
	ID        string    `json:"id"`
	Name      string    `json:"name"`
	Cloud     string    `json:"cloud"`
	Template  string    `json:"template"`
	Labels    []string  `json:"labels,omitempty"`
	Executors int       `json:"executors"`
	State     string    `json:"state,omitempty"`
	Address   string    `json:"address,omitempty"`
	Connected bool      `json:"connected"`
	Idle      bool      `json:"idle"`
	IdleSince time.Time `json:"idleSince"`
	Uptime    string    `json:"uptime,omitempty"`
	// Outcome is set once a launch finished.
	Outcome string `json:"outcome,omitempty"`
	Error   string `json:"error,omitempty"`
}

type ProvisionResponse struct {
	Nodes []Node `json:"nodes"`
	// Error reports a failure that interrupted provisioning after Nodes were created.
	Error string `json:"error,omitempty"`
}

type ZoneList struct {
	Zones []Zone `json:"zones"`
}

type TestResult struct {
	Flavors []Flavor `json:"flavors"`
}

type Flavor struct {
	ID    string `json:"id"`
	Name  string `json:"name"`
	VCPUs int    `json:"vcpus"`
	RAM   int    `json:"ram"`
	Disk  int    `json:"disk"`
}

type Zone struct {
	Name      string `json:"name"`
	Available bool   `json:"available"`
}

type Image struct {
	ID     string `json:"id"`
	Name   string `json:"name"`
	Status string `json:"status"`
}

type KeyPair struct {
	PublicKey   string `json:"publicKey"`
	PrivateKey  string `json:"privateKey"`
	Fingerprint string `json:"fingerprint"`
}

type Console struct {
	Output string `json:"output"`
}
