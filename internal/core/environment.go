package core

// Environment selects runtime behaviour that differs between local runs
// and deployed instances, such as log format and gin mode.
type Environment string

const (
	Development Environment = "development"
	Staging     Environment = "staging"
	Testing     Environment = "testing"
	Production  Environment = "production"
)

func (e Environment) String() string {
	return string(e)
}

// IsProduction reports whether the service runs with production settings.
func (e Environment) IsProduction() bool {
	return e == Production
}

// ParseEnvironment maps APP_ENV onto a known environment. Anything
// unrecognised means a local run, so it resolves to Development.
func ParseEnvironment(v string) Environment {
	switch Environment(v) {
	case Production:
		return Production
	case Staging:
		return Staging
	case Testing:
		return Testing
	default:
		return Development
	}
}
