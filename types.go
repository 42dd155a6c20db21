package ghgql

// types.go has the types of the public API

import (
	"fmt"

	"github.com/andrewwphillips/ghgql/internal/datasource"
	"github.com/andrewwphillips/ghgql/internal/github"
)

// DataSource is the interface of all the data sources (see App.GetDataSource)
type DataSource = datasource.DataSource

type (
	Repository       = github.Repository
	RepositoryDetail = github.RepositoryDetail
	Commit           = github.Commit
	DateTime         = github.DateTime
)

// ServiceType selects the style of data source returned by App.GetDataSource
type ServiceType int

const (
	Callback ServiceType = iota // default
	Reactive
	StructuredConcurrency
)

var serviceNames = [...]string{"callback", "reactive", "structured"}

func (s ServiceType) String() string {
	if s < 0 || int(s) >= len(serviceNames) {
		return fmt.Sprintf("ServiceType(%d)", int(s))
	}
	return serviceNames[s]
}

// ParseServiceType returns the ServiceType with the name (see String)
func ParseServiceType(name string) (ServiceType, error) {
	for i, n := range serviceNames {
		if n == name {
			return ServiceType(i), nil
		}
	}
	return Callback, fmt.Errorf("unknown data source %q (expected callback, reactive or structured)", name)
}
