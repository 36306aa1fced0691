package app

import (
	"github.com/slpdexdb/slpdexd/infrastructure/logger"
	"github.com/slpdexdb/slpdexd/util/panics"
)

var log = logger.RegisterSubSystem("SLPD")
var spawn = panics.GoroutineWrapperFunc(log)
