package status

import (
	"github.com/go-echarts/statsview"
	"github.com/go-echarts/statsview/viewer"

	"digitalrgb/logging"
)

// StartStatsview serves runtime statistics (heap, GC, goroutines) at
// addr/debug/statsview and pprof at addr/debug/pprof. The returned
// function stops the server.
func StartStatsview(addr string) func() {
	viewer.SetConfiguration(viewer.WithAddr(addr))
	mgr := statsview.New()
	go mgr.Start()

	logging.Info(logging.ComponentMain, "stats server available", "url", "http://"+addr+"/debug/statsview")
	return mgr.Stop
}
