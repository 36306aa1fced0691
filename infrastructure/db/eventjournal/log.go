package eventjournal

import (
	"github.com/slpdexdb/slpdexd/infrastructure/logger"
)

var log = logger.RegisterSubSystem("JRNL")
