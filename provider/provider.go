// Package provider describes the infrastructure-as-a-service surface the
// provisioner needs: compute instances, keypairs and object storage.
package provider

import (
	"context"
	"io"
	"time"

	"github.com/platformlayer/openstack-jenkins/secret"
)

type Credentials struct {
	AuthURL   string
	Tenant    string
	Domain    string
	Region    string
	AccessID  string
	SecretKey secret.Secret
}

type Capabilities struct {
	SSHKeys       bool
	FileInjection bool
}

type File struct {
	Path     string
	Contents []byte
}

type CreateRequest struct {
	Name           string
	ImageRef       string
	FlavorRef      string
	Zone           string
	KeyName        string
	Networks       []string
	SecurityGroups []string
	Files          []File
	Metadata       map[string]string
}

type Address struct {
	Addr    string
	Version int
}

type Network struct {
	Name      string
	Addresses []Address
}

// Server is a point-in-time description of an instance.
type Server struct {
	ID         string
	Name       string
	Status     string
	AccessIPv4 string
	Networks   []Network
	FlavorID   string
	ImageID    string
	Created    time.Time
	Metadata   map[string]string
}

type Flavor struct {
	ID    string
	Name  string
	VCPUs int
	RAM   int
	Disk  int
}

type Image struct {
	ID     string
	Name   string
	Status string
}

type Zone struct {
	Name      string
	Available bool
}

type KeyPair struct {
	Name        string
	Fingerprint string
	PublicKey   string
}

type Compute interface {
	Capabilities(ctx context.Context) (Capabilities, error)

	CreateServer(ctx context.Context, request CreateRequest) (*Server, error)
	GetServer(ctx context.Context, id string) (*Server, error)
	ListServers(ctx context.Context) ([]Server, error)
	DeleteServer(ctx context.Context, id string) error
	StopServer(ctx context.Context, id string) error
	ConsoleOutput(ctx context.Context, id string, lines int) (string, error)

	GetFlavor(ctx context.Context, id string) (*Flavor, error)
	ListFlavors(ctx context.Context) ([]Flavor, error)
	GetImage(ctx context.Context, id string) (*Image, error)
	ListZones(ctx context.Context) ([]Zone, error)

	ListKeyPairs(ctx context.Context) ([]KeyPair, error)
	CreateKeyPair(ctx context.Context, name string, publicKey string) (*KeyPair, error)
}

type Storage interface {
	GetContainer(ctx context.Context, name string) error
	CreateContainer(ctx context.Context, name string) error
	PutObject(ctx context.Context, container, object string, content io.Reader, length int64) error
	TempURL(ctx context.Context, container, object string, ttl time.Duration) (string, error)
}

// Session is an authenticated connection to a provider.
type Session interface {
	Compute() Compute
	Storage() (Storage, error)
}
