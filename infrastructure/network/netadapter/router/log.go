package router

import (
	"github.com/slpdexdb/slpdexd/infrastructure/logger"
	"github.com/slpdexdb/slpdexd/util/panics"
)

var log = logger.RegisterSubSystem("ROUT")
var spawn = panics.GoroutineWrapperFunc(log)
