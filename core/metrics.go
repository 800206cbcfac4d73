package core

import "github.com/ethereum/go-ethereum/metrics"

var (
	callCounter        = metrics.NewRegisteredCounter("executor/calls", nil)
	callNativeCounter  = metrics.NewRegisteredCounter("executor/calls/native", nil)
	callInterpCounter  = metrics.NewRegisteredCounter("executor/calls/interpreted", nil)
	callFaultCounter   = metrics.NewRegisteredCounter("executor/calls/fault", nil)
	mismatchCounter    = metrics.NewRegisteredCounter("executor/calls/mismatch", nil)
	callTimer          = metrics.NewRegisteredTimer("executor/call/duration", nil)
	versionCacheHits   = metrics.NewRegisteredMeter("executor/version/cache/hits", nil)
	versionCacheMisses = metrics.NewRegisteredMeter("executor/version/cache/misses", nil)
	proofNodesHist     = metrics.NewRegisteredHistogram("executor/proof/nodes", nil, metrics.NewExpDecaySample(1028, 0.015))
	proofBytesHist     = metrics.NewRegisteredHistogram("executor/proof/bytes", nil, metrics.NewExpDecaySample(1028, 0.015))
)
