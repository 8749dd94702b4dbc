package vm

import "github.com/tliron/commonlog"

var (
	log       = commonlog.GetLogger("neon.vm")
	loaderLog = commonlog.GetLogger("neon.loader")
	traceLog  = commonlog.GetLogger("neon.trace")
)
