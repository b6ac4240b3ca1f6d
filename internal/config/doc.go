// Package config loads the derive.json project configuration.
//
// The file sits at the project root and configures the engine bounds, the
// CLI logger and the optional Prometheus and OpenTelemetry observers.
//
// # Configuration File Structure
//
//	{
//	  "name": "checkout",
//	  "engine": {
//	    "maxRecompute": 8,
//	    "maxBatches": 64
//	  },
//	  "log": {
//	    "level": "info",
//	    "format": "text"
//	  },
//	  "metrics": {
//	    "enabled": true,
//	    "namespace": "derive"
//	  },
//	  "trace": {
//	    "enabled": false,
//	    "tracerName": "derive"
//	  },
//	  "paths": {
//	    "scenarios": "scenarios"
//	  }
//	}
//
// # Usage
//
//	cfg, err := config.LoadFromWorkingDir()
//	if err != nil {
//	    log.Fatal(err)
//	}
//
//	c, err := derive.New(def, cfg.EngineOptions()...)
package config
