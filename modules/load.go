package modules

import (
	"github.com/gestio-pm/gestio/modules/portfolio"
	"github.com/gestio-pm/gestio/pkg/application"
)

var BuiltInModules = []application.Module{
	portfolio.NewModule(),
}

func Load(app application.Application, externalModules ...application.Module) error {
	return application.Load(app, append(BuiltInModules, externalModules...)...)
}
