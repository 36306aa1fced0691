package handshake

import (
	"github.com/slpdexdb/slpdexd/infrastructure/logger"
	"github.com/slpdexdb/slpdexd/util/panics"
)

var log = logger.RegisterSubSystem("PROT")
var afterFunc = panics.AfterFuncWrapperFunc(log)
var spawn = panics.GoroutineWrapperFunc(log)
