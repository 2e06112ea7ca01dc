package availability

import (
	"github.com/smallbiznis/serene/internal/availability/repository"
	"github.com/smallbiznis/serene/internal/availability/service"
	"go.uber.org/fx"
)

var Module = fx.Module("availability",
	fx.Provide(repository.Provide),
	fx.Provide(service.New),
)
