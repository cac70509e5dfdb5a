package application

import (
	"fmt"
	"reflect"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/gestio-pm/gestio/pkg/eventbus"
)

// Application is the composition root shared by modules: it carries the
// database pool, the event bus and the service registry.
type Application interface {
	DB() *pgxpool.Pool
	EventPublisher() eventbus.EventBus
	RegisterServices(services ...interface{})
	Service(service interface{}) interface{}
}

// Module wires a feature area into the application.
type Module interface {
	Name() string
	Register(app Application) error
}

func New(pool *pgxpool.Pool, bus eventbus.EventBus) Application {
	return &application{
		pool:     pool,
		eventBus: bus,
		services: make(map[reflect.Type]interface{}),
	}
}

type application struct {
	pool     *pgxpool.Pool
	eventBus eventbus.EventBus
	services map[reflect.Type]interface{}
}

func (app *application) DB() *pgxpool.Pool {
	return app.pool
}

func (app *application) EventPublisher() eventbus.EventBus {
	return app.eventBus
}

func (app *application) RegisterServices(services ...interface{}) {
	for _, service := range services {
		app.services[reflect.TypeOf(service)] = service
	}
}

// Service returns the registered instance matching the type of the given
// zero value. Panics when the service was never registered, which is a
// wiring bug, not a runtime condition.
func (app *application) Service(service interface{}) interface{} {
	svc, ok := app.services[reflect.TypeOf(service)]
	if !ok {
		panic(fmt.Sprintf("service %s not registered", reflect.TypeOf(service)))
	}
	return svc
}

// Load registers every module, failing on the first error.
func Load(app Application, modules ...Module) error {
	for _, module := range modules {
		if err := module.Register(app); err != nil {
			return fmt.Errorf("register module %s: %w", module.Name(), err)
		}
	}
	return nil
}
