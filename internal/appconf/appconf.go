// Package appconf holds the typed application configuration shared between
// the entrypoint, the HTTP layer, and tests.
package appconf

// Environment names the operating environment the server runs in.
type Environment int

const (
	Development Environment = iota
	Test
	Production
)

// EnvFlagToEnvironment maps the -env flag value to an Environment; anything
// unrecognized is treated as development.
func EnvFlagToEnvironment(flag string) Environment {
	switch flag {
	case "production":
		return Production
	case "test":
		return Test
	default:
		return Development
	}
}

func (e Environment) String() string {
	switch e {
	case Production:
		return "production"
	case Test:
		return "test"
	default:
		return "development"
	}
}

// Config holds all the configuration settings for the application.
type Config struct {
	Port    int
	Env     Environment
	ApiKeys []string

	// Reference data sources; the first one set wins (postgres, then GTFS).
	PostgresDSN string
	GTFSPath    string

	// Optional NATS server for live snapshot publishing.
	NATSURL string
}
