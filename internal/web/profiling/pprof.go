// Package profiling serves pprof and runtime statistics for the API process.
//
// The handler is meant for a separate, internal-only listener
// (server.debug_addr); it carries no authentication of its own.
package profiling

import (
	"net/http"
	"net/http/pprof"
	"runtime"

	"github.com/go-chi/chi/v5"

	"github.com/windmill-io/windmill/internal/web/response"
)

// Config holds profiling configuration
type Config struct {
	// Path is the URL prefix of the pprof endpoints
	Path string

	// BlockRate sets the block profiling rate (0 = disabled)
	BlockRate int

	// MutexFraction sets the mutex profiling fraction (0 = disabled)
	MutexFraction int
}

// DefaultConfig returns default profiling configuration
func DefaultConfig() *Config {
	return &Config{
		Path:          "/debug/pprof",
		BlockRate:     1,
		MutexFraction: 1,
	}
}

// Handler returns a router serving pprof under config.Path and runtime
// statistics at /debug/stats. It sets the process-wide block and mutex
// profiling rates.
func Handler(config *Config) http.Handler {
	if config == nil {
		config = DefaultConfig()
	}
	runtime.SetBlockProfileRate(config.BlockRate)
	runtime.SetMutexProfileFraction(config.MutexFraction)

	router := chi.NewRouter()
	router.Route(config.Path, func(r chi.Router) {
		r.HandleFunc("/", pprof.Index)
		r.HandleFunc("/cmdline", pprof.Cmdline)
		r.HandleFunc("/profile", pprof.Profile)
		r.HandleFunc("/symbol", pprof.Symbol)
		r.HandleFunc("/trace", pprof.Trace)
		for _, name := range []string{"allocs", "block", "goroutine", "heap", "mutex", "threadcreate"} {
			r.Handle("/"+name, pprof.Handler(name))
		}
	})
	router.Get("/debug/stats", StatsHandler())
	return router
}

// Stats is a snapshot of runtime statistics.
type Stats struct {
	Goroutines int         `json:"goroutines"`
	Memory     MemoryStats `json:"memory"`
	CPU        CPUStats    `json:"cpu"`
}

// MemoryStats is the memory part of Stats.
type MemoryStats struct {
	Alloc      uint64 `json:"alloc"`
	TotalAlloc uint64 `json:"total_alloc"`
	Sys        uint64 `json:"sys"`
	NumGC      uint32 `json:"num_gc"`
}

// CPUStats is the CPU part of Stats.
type CPUStats struct {
	NumCPU     int   `json:"num_cpu"`
	NumCgoCall int64 `json:"num_cgo_call"`
}

// RuntimeStats returns current runtime statistics
func RuntimeStats() Stats {
	var m runtime.MemStats
	runtime.ReadMemStats(&m)

	return Stats{
		Goroutines: runtime.NumGoroutine(),
		Memory: MemoryStats{
			Alloc:      m.Alloc,
			TotalAlloc: m.TotalAlloc,
			Sys:        m.Sys,
			NumGC:      m.NumGC,
		},
		CPU: CPUStats{
			NumCPU:     runtime.NumCPU(),
			NumCgoCall: runtime.NumCgoCall(),
		},
	}
}

// StatsHandler serves RuntimeStats as JSON.
func StatsHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		response.JSON(w, http.StatusOK, RuntimeStats())
	}
}
