package feature

import (
	"github.com/slpdexdb/slpdexd/infrastructure/logger"
)

var log = logger.RegisterSubSystem("PROT")
