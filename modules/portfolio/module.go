package portfolio

import (
	"embed"

	"github.com/gestio-pm/gestio/modules/portfolio/infrastructure/persistence"
	"github.com/gestio-pm/gestio/modules/portfolio/services"
	"github.com/gestio-pm/gestio/pkg/application"
	"github.com/gestio-pm/gestio/pkg/configuration"
)

//go:embed infrastructure/persistence/schema/portfolio-schema.sql
var schemaFiles embed.FS

// SchemaSQL returns the DDL for the portfolio tables.
func SchemaSQL() (string, error) {
	b, err := schemaFiles.ReadFile("infrastructure/persistence/schema/portfolio-schema.sql")
	if err != nil {
		return "", err
	}
	return string(b), nil
}

func NewModule() application.Module {
	return &Module{}
}

type Module struct{}

func (m *Module) Register(app application.Application) error {
	conf := configuration.Use()
	app.RegisterServices(
		services.NewImportService(
			persistence.NewPortfolioRepository(),
			app.EventPublisher(),
			services.WithLogger(conf.Logger()),
			services.WithProgressBuffer(conf.Import.ProgressBuffer),
		),
	)
	return nil
}

func (m *Module) Name() string {
	return "portfolio"
}
