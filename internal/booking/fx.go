package booking

import (
	"github.com/smallbiznis/serene/internal/booking/repository"
	"github.com/smallbiznis/serene/internal/booking/service"
	"go.uber.org/fx"
)

var Module = fx.Module("booking",
	fx.Provide(repository.Provide),
	fx.Provide(service.New),
)
